//go:build linux && amd64

package cpucontext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUnparseRoundTrip(t *testing.T) {
	var nc NativeContext
	for i := range nc.MC.Gregs {
		nc.MC.Gregs[i] = uint64(i*7 + 1)
	}

	ctx := Parse(&nc)
	require.Equal(t, AMD64, ctx.Arch)

	var out NativeContext
	Unparse(ctx, &out)

	require.Equal(t, nc.MC.Gregs[:regEFL+1], out.MC.Gregs[:regEFL+1], "round trip must be byte-identical for modeled fields")
}

func TestSetPCAdvancesFaultingInstruction(t *testing.T) {
	ctx := &CPUContext{Arch: AMD64}
	ctx.AMD64.Rip = 0x1000
	require.Equal(t, uint64(0x1000), ctx.PC())

	ctx.SetPC(0x1003)
	require.Equal(t, uint64(0x1003), ctx.PC())
}
