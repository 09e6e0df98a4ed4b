//go:build linux && arm64

package cpucontext

import "unsafe"

// NativeContext is the kernel ucontext_t passed to a SA_SIGINFO handler on
// linux/arm64, mirroring <asm/ucontext.h> / <asm/sigcontext.h>.
type NativeContext struct {
	UCFlags uint64
	UCLink  uintptr
	UCStack struct {
		SSSP    uintptr
		SSFlags int32
		_       [4]byte
		SSSize  uintptr
	}
	UCSigmask uint64
	_         [120]byte // sigset_t padding to the kernel's reserved block
	_         [8]byte   // uc_mcontext is 16-byte aligned
	MC        Mcontext
}

// Mcontext mirrors struct sigcontext for arm64: fault_address, 31 general
// registers, sp, pc, pstate, followed by the reserved extension area
// (unused here — no SVE/SIMD context is modeled).
type Mcontext struct {
	FaultAddress uint64
	Regs         [31]uint64
	SP           uint64
	PC           uint64
	PState       uint64
	Reserved     [4096]byte
}

// NativeContextFromPtr reinterprets an opaque pointer handed to a SA_SIGINFO
// handler as a *NativeContext.
func NativeContextFromPtr(p unsafe.Pointer) *NativeContext {
	return (*NativeContext)(p)
}

// Parse converts the OS-native context into the canonical register file.
func Parse(nc *NativeContext) *CPUContext {
	c := &CPUContext{Arch: ARM64}
	r := &c.ARM64
	r.X = [29]uint64(nc.MC.Regs[:29])
	r.FP = nc.MC.Regs[29]
	r.LR = nc.MC.Regs[30]
	r.SP = nc.MC.SP
	r.PC = nc.MC.PC
	r.PState = nc.MC.PState
	return c
}

// Unparse writes the canonical register file back into the native context.
func Unparse(c *CPUContext, nc *NativeContext) {
	r := &c.ARM64
	copy(nc.MC.Regs[:29], r.X[:])
	nc.MC.Regs[29] = r.FP
	nc.MC.Regs[30] = r.LR
	nc.MC.SP = r.SP
	nc.MC.PC = r.PC
	nc.MC.PState = r.PState
}
