package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewReturnsCompileErrorOnBadSource(t *testing.T) {
	_, err := New("int broken( {")
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
}

func TestAddSymbolAfterLinkIsRejected(t *testing.T) {
	m, err := New("int f(void){ return 1; }")
	require.NoError(t, err)

	orig := generateCode
	defer func() { generateCode = orig }()
	generateCode = func(mod *IRModule, symbols map[string]uintptr) ([]byte, map[string]int, error) {
		return []byte{0xC3}, map[string]int{"f": 0}, nil
	}
	require.NoError(t, m.Link())

	err = m.AddSymbol("extra", 1)
	require.Error(t, err)
	var ioErr *ErrInvalidOperation
	require.ErrorAs(t, err, &ioErr)
}

func TestFindSymbolBeforeLinkReturnsZero(t *testing.T) {
	m, err := New("int f(void){ return 1; }")
	require.NoError(t, err)
	require.Equal(t, uintptr(0), m.FindSymbol("f"))
}

func TestFreeTwiceIsRejected(t *testing.T) {
	m, err := New("int f(void){ return 1; }")
	require.NoError(t, err)

	orig := generateCode
	defer func() { generateCode = orig }()
	generateCode = func(mod *IRModule, symbols map[string]uintptr) ([]byte, map[string]int, error) {
		return []byte{0xC3}, map[string]int{"f": 0}, nil
	}
	require.NoError(t, m.Link())
	require.NoError(t, m.Free())

	err = m.Free()
	require.Error(t, err)
}
