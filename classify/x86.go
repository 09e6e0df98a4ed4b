package classify

import "golang.org/x/arch/x86/x86asm"

// writeOps is the enumerated set of x86/x86-64 mnemonics that may write
// memory: plain and non-temporal MOV variants, XCHG, AES helpers,
// pack/pack-saturating, CRC32, the MOVNT family, RDRAND/RDSEED when
// targeting memory, and the flag/state-save ops.
var writeOps = map[x86asm.Op]bool{
	x86asm.MOV:      true,
	x86asm.MOVSX:    true,
	x86asm.MOVZX:    true,
	x86asm.MOVSXD:   true,
	x86asm.MOVAPS:   true,
	x86asm.MOVAPD:   true,
	x86asm.MOVUPS:   true,
	x86asm.MOVUPD:   true,
	x86asm.MOVDQA:   true,
	x86asm.MOVDQU:   true,
	x86asm.MOVD:     true,
	x86asm.MOVQ:     true,
	x86asm.MOVNTDQ:  true,
	x86asm.MOVNTDQA: true,
	x86asm.MOVNTI:   true,
	x86asm.MOVNTPD:  true,
	x86asm.MOVNTPS:  true,
	x86asm.MOVNTQ:   true,
	x86asm.MOVNTSD:  true,
	x86asm.MOVNTSS:  true,
	x86asm.XCHG:     true,
	x86asm.AESENC:       true,
	x86asm.AESENCLAST:   true,
	x86asm.AESDEC:       true,
	x86asm.AESDECLAST:   true,
	x86asm.AESIMC:       true,
	x86asm.AESKEYGENASSIST: true,
	x86asm.PACKSSWB: true,
	x86asm.PACKSSDW: true,
	x86asm.PACKUSWB: true,
	x86asm.PACKUSDW: true,
	x86asm.CRC32:    true,
	x86asm.RDRAND:   true,
	x86asm.RDSEED:   true,
	x86asm.XSAVE:    true,
	x86asm.XSAVE64:  true,
	x86asm.XSAVEC:   true,
	x86asm.XSAVEOPT: true,
	x86asm.XSAVES:   true,
	x86asm.FXSAVE:   true,
	x86asm.FXSAVE64: true,
	x86asm.STMXCSR:  true,
}

// classifyX86 disassembles one x86 or x86-64 instruction from window: for
// recognized write-capable mnemonics, inspect operand 0; a memory operand
// there means the instruction writes, otherwise it reads. Unrecognized
// opcodes default to read.
func classifyX86(window []byte, mode int) Operation {
	inst, err := x86asm.Decode(window, mode)
	if err != nil {
		return Read
	}
	if !writeOps[inst.Op] {
		return Read
	}
	if _, ok := inst.Args[0].(x86asm.Mem); ok {
		return Write
	}
	return Read
}
