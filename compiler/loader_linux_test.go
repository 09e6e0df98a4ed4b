//go:build linux

package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateExecutableRejectsEmptyCode(t *testing.T) {
	_, err := allocateExecutable(nil)
	require.Error(t, err)
}

func TestAllocateExecutableRoundTrip(t *testing.T) {
	// ret (0xC3) on amd64; harmless to map RX and never execute.
	code := []byte{0xC3}
	r, err := allocateExecutable(code)
	require.NoError(t, err)
	require.NotZero(t, r.base)
	require.NoError(t, r.free())
}
