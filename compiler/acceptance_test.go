package compiler

import (
	"testing"

	"github.com/ebitengine/purego"
	"github.com/stretchr/testify/require"
)

// These tests drive the real architecture-specific generateCode (whichever
// of backend_amd64.go / backend_arm64.go registered itself via init() for
// the running GOARCH) through the full New -> AddSymbol -> Link ->
// FindSymbol -> call -> Free lifecycle. No stubbing of generateCode here:
// the point is to exercise the actual code generator and the executable
// memory it produces.

func TestAcceptanceCompileAndCallReturnsConstant(t *testing.T) {
	m, err := New(`int answer(void){ return 42; }`)
	require.NoError(t, err)
	require.NoError(t, m.Link())
	defer m.Free()

	fn := m.FindSymbol("answer")
	require.NotZero(t, fn)
	require.Equal(t, int64(42), CallForTest(fn))
}

func TestAcceptanceImportBindingCallsHostFunction(t *testing.T) {
	add := func(a, b int64) int64 { return a + b }
	addAddr := purego.NewCallback(add)

	m, err := New(`
extern int add(int, int);
int sum3(int a, int b, int c){
	return add(add(a, b), c);
}
`)
	require.NoError(t, err)
	require.NoError(t, m.AddSymbol("add", addAddr))
	require.NoError(t, m.Link())
	defer m.Free()

	fn := m.FindSymbol("sum3")
	require.NotZero(t, fn)
	require.Equal(t, int64(6), CallForTestArgs(fn, 1, 2, 3))
}

func TestAcceptanceInitAndFinalizeRunAgainstHostImports(t *testing.T) {
	var initSeen, finalizeSeen int64

	record := func(tag int64) int64 {
		switch tag {
		case 1:
			initSeen = 1
		case 2:
			finalizeSeen = 1
		}
		return 0
	}
	recordAddr := purego.NewCallback(record)

	m, err := New(`
extern int record(int);
int init(void){ return record(1); }
int finalize(void){ return record(2); }
`)
	require.NoError(t, err)
	require.NoError(t, m.AddSymbol("record", recordAddr))
	require.NoError(t, m.Link())

	require.Equal(t, int64(1), initSeen)
	require.Equal(t, int64(0), finalizeSeen)

	require.NoError(t, m.Free())
	require.Equal(t, int64(1), finalizeSeen)
}

func TestAcceptanceFindSymbolMissingFunctionReturnsZero(t *testing.T) {
	m, err := New(`int present(void){ return 1; }`)
	require.NoError(t, err)
	require.NoError(t, m.Link())
	defer m.Free()

	require.Zero(t, m.FindSymbol("absent"))
}
