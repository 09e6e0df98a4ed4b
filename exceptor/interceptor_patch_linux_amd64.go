//go:build linux && amd64

package exceptor

import (
	"encoding/binary"

	"golang.org/x/arch/x86/x86asm"
)

// patchLen is the fixed length of this architecture's hook preamble: a
// 64-bit immediate load into rax followed by an indirect jump through it
// (movabs rax, imm64; jmp rax).
const patchLen = 12

// buildPatch returns the machine code written over a function's prologue
// to redirect execution to hookAddr.
func buildPatch(hookAddr uintptr) []byte {
	buf := make([]byte, patchLen)
	buf[0] = 0x48 // REX.W
	buf[1] = 0xB8 // MOV RAX, imm64
	binary.LittleEndian.PutUint64(buf[2:10], uint64(hookAddr))
	buf[10] = 0xFF // JMP RAX
	buf[11] = 0xE0
	return buf
}

// stealBytes reads whole instructions starting at addr until at least n
// bytes have been consumed, so a later overwrite never truncates an
// instruction the trampoline would otherwise need to re-execute.
func stealBytes(addr uintptr, n int) []byte {
	window := readCode(addr, n+16)
	total := 0
	for total < n {
		inst, err := x86asm.Decode(window[total:], 64)
		if err != nil || inst.Len == 0 {
			total++
			continue
		}
		total += inst.Len
	}
	return readCode(addr, total)
}

// buildTrampoline returns a small buffer containing the stolen original
// instructions followed by an absolute jump back to the call site just
// past the patched region, so hooked code can still call through to the
// original function body.
func buildTrampoline(stolen []byte, resumeAddr uintptr) []byte {
	buf := make([]byte, 0, len(stolen)+patchLen)
	buf = append(buf, stolen...)
	buf = append(buf, buildPatch(resumeAddr)...)
	return buf
}
