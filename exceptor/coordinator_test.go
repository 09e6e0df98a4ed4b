//go:build linux

package exceptor

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAttachDetachRestoresPriorDisposition(t *testing.T) {
	var prior unix.Sigaction
	require.NoError(t, unix.Sigaction(unix.SIGTRAP, nil, &prior))

	var calls int32
	b := NewBackend(nil)
	err := b.Attach(func(details *ExceptionDetails, opaque unsafe.Pointer) bool {
		atomic.AddInt32(&calls, 1)
		details.Context.SetPC(details.Context.PC() + 1)
		return true
	}, nil)
	require.NoError(t, err)

	var installed unix.Sigaction
	require.NoError(t, unix.Sigaction(unix.SIGTRAP, nil, &installed))
	require.NotEqual(t, prior.Handler, installed.Handler)

	require.NoError(t, b.Detach())

	var after unix.Sigaction
	require.NoError(t, unix.Sigaction(unix.SIGTRAP, nil, &after))
	require.Equal(t, prior.Handler, after.Handler)
	require.Equal(t, prior.Flags, after.Flags)
}

func TestDoubleAttachIsRejected(t *testing.T) {
	b := NewBackend(nil)
	require.NoError(t, b.Attach(func(*ExceptionDetails, unsafe.Pointer) bool { return true }, nil))
	defer b.Detach()

	err := b.Attach(func(*ExceptionDetails, unsafe.Pointer) bool { return true }, nil)
	require.Error(t, err)
}

func TestDetachWithoutAttachIsRejected(t *testing.T) {
	b := NewBackend(nil)
	require.Error(t, b.Detach())
}

func TestSecondConcurrentBackendIsRejected(t *testing.T) {
	b1 := NewBackend(nil)
	require.NoError(t, b1.Attach(func(*ExceptionDetails, unsafe.Pointer) bool { return true }, nil))
	defer b1.Detach()

	b2 := NewBackend(nil)
	err := b2.Attach(func(*ExceptionDetails, unsafe.Pointer) bool { return true }, nil)
	require.Error(t, err)
}
