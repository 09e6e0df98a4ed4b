//go:build linux && amd64

package cpucontext

import "unsafe"

// NativeContext is the kernel ucontext_t passed to a SA_SIGINFO handler on
// linux/amd64. Only the fields the core touches are named; the rest are
// opaque padding, mirroring glibc's <sys/ucontext.h> layout.
type NativeContext struct {
	UCFlags uint64
	UCLink  uintptr
	UCStack struct {
		SSSP    uintptr
		SSFlags int32
		_       [4]byte
		SSSize  uintptr
	}
	MC Mcontext
	_  [256]byte // sigmask + fpregs_mem + ssp, not modeled
}

// Mcontext mirrors glibc's mcontext_t for x86-64: a 23-entry greg_t array
// indexed by the REG_* constants below, followed by an fpregs pointer.
type Mcontext struct {
	Gregs    [23]uint64
	FPRegs   uintptr
	Reserved [8]uint64
}

// REG_* indices into Mcontext.Gregs, per glibc <sys/ucontext.h>.
const (
	regR8 = iota
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
	regRDI
	regRSI
	regRBP
	regRBX
	regRDX
	regRAX
	regRCX
	regRSP
	regRIP
	regEFL
)

// NativeContextFromPtr reinterprets an opaque pointer handed to a SA_SIGINFO
// handler as a *NativeContext. The pointer must come from the kernel
// (signal trampoline third argument); never constructed by Go code.
func NativeContextFromPtr(p unsafe.Pointer) *NativeContext {
	return (*NativeContext)(p)
}

// Parse converts the OS-native context into the canonical register file.
func Parse(nc *NativeContext) *CPUContext {
	g := &nc.MC.Gregs
	c := &CPUContext{Arch: AMD64}
	r := &c.AMD64
	r.Rip = g[regRIP]
	r.R15, r.R14, r.R13, r.R12 = g[regR15], g[regR14], g[regR13], g[regR12]
	r.R11, r.R10, r.R9, r.R8 = g[regR11], g[regR10], g[regR9], g[regR8]
	r.Rdi, r.Rsi, r.Rbp, r.Rsp = g[regRDI], g[regRSI], g[regRBP], g[regRSP]
	r.Rbx, r.Rdx, r.Rcx, r.Rax = g[regRBX], g[regRDX], g[regRCX], g[regRAX]
	r.EFlags = g[regEFL]
	return c
}

// Unparse writes a (possibly handler-mutated) canonical register file back
// into the OS-native context buffer, so the kernel resumes the faulting
// thread with the new register state.
func Unparse(c *CPUContext, nc *NativeContext) {
	g := &nc.MC.Gregs
	r := &c.AMD64
	g[regRIP] = r.Rip
	g[regR15], g[regR14], g[regR13], g[regR12] = r.R15, r.R14, r.R13, r.R12
	g[regR11], g[regR10], g[regR9], g[regR8] = r.R11, r.R10, r.R9, r.R8
	g[regRDI], g[regRSI], g[regRBP], g[regRSP] = r.Rdi, r.Rsi, r.Rbp, r.Rsp
	g[regRBX], g[regRDX], g[regRCX], g[regRAX] = r.Rbx, r.Rdx, r.Rcx, r.Rax
	g[regEFL] = r.EFlags
}
