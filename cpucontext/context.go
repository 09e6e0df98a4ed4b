// Package cpucontext provides an architecture-tagged canonical register file
// used uniformly across the instrumentation core, independent of the
// OS-native ucontext/mcontext layout.
package cpucontext

import "fmt"

// Arch identifies the architecture a CPUContext was captured on.
type Arch int

const (
	// AMD64 is the x86-64 architecture.
	AMD64 Arch = iota
	// ARM64 is the aarch64 architecture.
	ARM64
	// ARM is the 32-bit AArch32 architecture.
	ARM
	// X86 is the 32-bit x86 architecture.
	X86
	// MIPS is the 32/64-bit MIPS architecture.
	MIPS
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case AMD64:
		return "amd64"
	case ARM64:
		return "arm64"
	case ARM:
		return "arm"
	case X86:
		return "x86"
	case MIPS:
		return "mips"
	default:
		return fmt.Sprintf("Arch(%d)", int(a))
	}
}

// CPUContext is the canonical, architecture-tagged register file passed to
// exception handlers. Only the fields relevant to Arch are populated; the
// others are undefined and must not be read.
//
// A handler mutates the fields of the active architecture's struct and the
// trampoline unparses the mutation back into the OS-native context before
// resuming the faulting thread.
type CPUContext struct {
	Arch Arch

	AMD64 AMD64Regs
	ARM64 ARM64Regs
	ARM   ARMRegs
	X86   X86Regs
	MIPS  MIPSRegs
}

// PC returns the program counter for whichever architecture is active.
func (c *CPUContext) PC() uint64 {
	switch c.Arch {
	case AMD64:
		return c.AMD64.Rip
	case ARM64:
		return c.ARM64.PC
	case ARM:
		return c.ARM.PC
	case X86:
		return uint64(c.X86.Eip)
	case MIPS:
		return c.MIPS.PC
	default:
		return 0
	}
}

// SetPC sets the program counter for whichever architecture is active.
// Used by handlers that single-step past a faulting instruction.
func (c *CPUContext) SetPC(pc uint64) {
	switch c.Arch {
	case AMD64:
		c.AMD64.Rip = pc
	case ARM64:
		c.ARM64.PC = pc
	case ARM:
		c.ARM.PC = uint32(pc)
	case X86:
		c.X86.Eip = uint32(pc)
	case MIPS:
		c.MIPS.PC = pc
	}
}

// AMD64Regs is the x86-64 general-purpose register layout: rip, then
// r15..r8, rdi, rsi, rbp, rsp, rbx, rdx, rcx, rax.
type AMD64Regs struct {
	Rip                                        uint64
	R15, R14, R13, R12, R11, R10, R9, R8        uint64
	Rdi, Rsi, Rbp, Rsp, Rbx, Rdx, Rcx, Rax      uint64
	EFlags                                      uint64
}

// X86Regs is the x86-32 general-purpose register layout: eip, then edi,
// esi, ebp, esp, ebx, edx, ecx, eax.
type X86Regs struct {
	Eip                                         uint32
	Edi, Esi, Ebp, Esp, Ebx, Edx, Ecx, Eax      uint32
	EFlags                                      uint32
}

// ARM64Regs is the AArch64 register layout: pc, sp, x[0..28], fp, lr, plus
// a 128-byte SIMD save area.
type ARM64Regs struct {
	PC, SP   uint64
	X        [29]uint64
	FP, LR   uint64
	PState   uint64
	SIMD     [128]byte
}

// ARMRegs is the AArch32 register layout: cpsr, pc, sp, r8..r12, r[0..7],
// lr.
type ARMRegs struct {
	CPSR   uint32
	PC, SP uint32
	R8, R9, R10, R11, R12 uint32
	R      [8]uint32
	LR     uint32
}

// ThumbMode reports whether the Thumb instruction set bit (bit 5) is set in
// CPSR — used by the instruction classifier to pick a disassembly mode.
func (r *ARMRegs) ThumbMode() bool {
	return r.CPSR&(1<<5) != 0
}

// MIPSRegs is the MIPS n64 general-purpose register layout.
type MIPSRegs struct {
	PC, GP, SP, FP, RA, HI, LO, AT uint64
	V                              [2]uint64
	A                              [4]uint64
	T                              [10]uint64
	S                              [8]uint64
	K                              [2]uint64
}
