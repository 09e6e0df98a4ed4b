//go:build linux && arm64

package exceptor

import "encoding/binary"

// patchLen is the fixed length of this architecture's hook preamble: a
// 4-instruction MOVZ/MOVK wide-immediate load into x16 followed by BR
// x16. AArch64 instructions are fixed-width, so this is always
// instruction-aligned and there is no need to disassemble to avoid
// truncating an instruction.
const patchLen = 20

const regX16 = 16

func movz(rd int, imm16 uint32, shift uint32) uint32 {
	return 0xD2800000 | (shift/16)<<21 | (imm16&0xFFFF)<<5 | uint32(rd&0x1f)
}

func movk(rd int, imm16 uint32, shift uint32) uint32 {
	return 0xF2800000 | (shift/16)<<21 | (imm16&0xFFFF)<<5 | uint32(rd&0x1f)
}

func br(rn int) uint32 {
	return 0xD61F0000 | uint32(rn&0x1f)<<5
}

// buildPatch returns the machine code written over a function's prologue
// to redirect execution to hookAddr.
func buildPatch(hookAddr uintptr) []byte {
	imm := uint64(hookAddr)
	insns := []uint32{
		movz(regX16, uint32(imm&0xFFFF), 0),
		movk(regX16, uint32((imm>>16)&0xFFFF), 16),
		movk(regX16, uint32((imm>>32)&0xFFFF), 32),
		movk(regX16, uint32((imm>>48)&0xFFFF), 48),
		br(regX16),
	}
	buf := make([]byte, 0, patchLen)
	for _, insn := range insns {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], insn)
		buf = append(buf, b[:]...)
	}
	return buf
}

// stealBytes reads the whole-instruction window the patch will overwrite.
// Every AArch64 instruction is 4 bytes, so no disassembly is needed to
// stay instruction-aligned.
func stealBytes(addr uintptr, n int) []byte {
	aligned := ((n + 3) / 4) * 4
	return readCode(addr, aligned)
}

// buildTrampoline returns a small buffer containing the stolen original
// instructions followed by an absolute branch back to the call site just
// past the patched region.
func buildTrampoline(stolen []byte, resumeAddr uintptr) []byte {
	buf := make([]byte, 0, len(stolen)+patchLen)
	buf = append(buf, stolen...)
	buf = append(buf, buildPatch(resumeAddr)...)
	return buf
}
