//go:build linux

package exceptor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestLibcInterceptorDivertsManagedSignal(t *testing.T) {
	li := NewLibcInterceptor()

	var gotSig int
	var gotDisp SavedDisposition
	err := li.ReplaceSignalFunctions(func(sig int, newDisp SavedDisposition) SavedDisposition {
		gotSig = sig
		gotDisp = newDisp
		return SavedDisposition{valid: true, handler: 0xdead}
	})
	require.NoError(t, err)
	defer li.RevertSignalFunctions()

	impl := li.(*libcInterceptor)
	prior := impl.sigactionShim(int32(unix.SIGSEGV), &unix.Sigaction{Handler: 0xbeef, Flags: unix.SA_SIGINFO}, nil)
	require.Equal(t, int32(0), prior)
	require.Equal(t, unix.SIGSEGV, gotSig)
	require.Equal(t, uintptr(0xbeef), gotDisp.handler)
	require.True(t, gotDisp.siginfo)
}

func TestLibcInterceptorRevertRestoresOriginalBytes(t *testing.T) {
	li := NewLibcInterceptor()
	require.NoError(t, li.ReplaceSignalFunctions(func(int, SavedDisposition) SavedDisposition {
		return SavedDisposition{}
	}))
	require.NoError(t, li.RevertSignalFunctions())
}
