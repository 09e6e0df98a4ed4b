//go:build linux

package exceptor

import "golang.org/x/sys/unix"

// FaultKind is the coarse category a managed signal is mapped to before
// being handed to the user handler.
type FaultKind int

const (
	FaultAbort FaultKind = iota
	FaultAccessViolation
	FaultIllegalInstruction
	FaultArithmetic
	FaultBreakpoint
	FaultSystem
)

func (k FaultKind) String() string {
	switch k {
	case FaultAbort:
		return "abort"
	case FaultAccessViolation:
		return "access-violation"
	case FaultIllegalInstruction:
		return "illegal-instruction"
	case FaultArithmetic:
		return "arithmetic"
	case FaultBreakpoint:
		return "breakpoint"
	default:
		return "system"
	}
}

// managedSignals is the fixed set of signals the trampoline installs
// itself on. Anything outside this set is left entirely alone.
var managedSignals = []int{
	unix.SIGABRT,
	unix.SIGSEGV,
	unix.SIGBUS,
	unix.SIGILL,
	unix.SIGFPE,
	unix.SIGTRAP,
	unix.SIGSYS,
}

// faultKindOf maps a managed signal number to its FaultKind.
func faultKindOf(sig int) FaultKind {
	switch sig {
	case unix.SIGABRT:
		return FaultAbort
	case unix.SIGSEGV, unix.SIGBUS:
		return FaultAccessViolation
	case unix.SIGILL:
		return FaultIllegalInstruction
	case unix.SIGFPE:
		return FaultArithmetic
	case unix.SIGTRAP:
		return FaultBreakpoint
	default:
		return FaultSystem
	}
}

// highestManagedSignal sizes the dense saved-dispositions array.
func highestManagedSignal() int {
	max := 0
	for _, s := range managedSignals {
		if s > max {
			max = s
		}
	}
	return max
}

// siginfoT is the fields of Linux's siginfo_t this package actually reads:
// si_signo, si_errno, si_code, then si_addr at its fixed offset for the
// fault-address-bearing signals (SIGSEGV/SIGBUS/SIGILL/SIGFPE).
type siginfoT struct {
	Signo, Errno, Code int32
	_                  int32
	Addr               uint64
	_                  [128 - 24]byte
}
