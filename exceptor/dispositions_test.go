//go:build linux

package exceptor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDispositionTableSaveGetClear(t *testing.T) {
	tbl := newDispositionTable()

	_, ok := tbl.get(unix.SIGSEGV)
	require.False(t, ok)

	sa := &unix.Sigaction{Handler: 0x1234, Flags: unix.SA_SIGINFO, Mask: 7}
	tbl.save(unix.SIGSEGV, sa)

	got, ok := tbl.get(unix.SIGSEGV)
	require.True(t, ok)
	require.Equal(t, uintptr(0x1234), got.handler)
	require.True(t, got.siginfo)
	require.True(t, got.chainable())

	tbl.clear(unix.SIGSEGV)
	_, ok = tbl.get(unix.SIGSEGV)
	require.False(t, ok)
}

func TestSavedDispositionChainableRejectsDefaultAndIgnore(t *testing.T) {
	d := SavedDisposition{valid: true, handler: 0}
	require.False(t, d.chainable())

	d = SavedDisposition{valid: true, handler: 1}
	require.False(t, d.chainable())

	d = SavedDisposition{valid: true, handler: 0xdead}
	require.True(t, d.chainable())
}

func TestAsSigactionRoundTrip(t *testing.T) {
	d := SavedDisposition{handler: 0xbeef, flags: unix.SA_RESTART, mask: 3, restorer: 9}
	sa := d.asSigaction()
	require.Equal(t, uintptr(0xbeef), sa.Handler)
	require.Equal(t, uint64(unix.SA_RESTART), sa.Flags)
	require.Equal(t, uint64(3), sa.Mask)
	require.Equal(t, uintptr(9), sa.Restorer)
}
