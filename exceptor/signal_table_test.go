//go:build linux

package exceptor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFaultKindMapping(t *testing.T) {
	cases := map[int]FaultKind{
		unix.SIGABRT: FaultAbort,
		unix.SIGSEGV: FaultAccessViolation,
		unix.SIGBUS:  FaultAccessViolation,
		unix.SIGILL:  FaultIllegalInstruction,
		unix.SIGFPE:  FaultArithmetic,
		unix.SIGTRAP: FaultBreakpoint,
		unix.SIGSYS:  FaultSystem,
	}
	for sig, want := range cases {
		require.Equal(t, want, faultKindOf(sig))
	}
}

func TestFaultKindStringIsNeverEmpty(t *testing.T) {
	for k := FaultAbort; k <= FaultSystem; k++ {
		require.NotEmpty(t, k.String())
	}
}

func TestHighestManagedSignalCoversEveryEntry(t *testing.T) {
	max := highestManagedSignal()
	for _, s := range managedSignals {
		require.LessOrEqual(t, s, max)
	}
}
