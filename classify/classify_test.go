package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func TestClassifyX86MovRegFromMemIsRead(t *testing.T) {
	// mov rax, [rcx]  => 48 8B 01
	window := []byte{0x48, 0x8B, 0x01, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	inst, err := x86asm.Decode(window, 64)
	require.NoError(t, err)
	require.Equal(t, x86asm.MOV, inst.Op)

	require.Equal(t, Read, classifyX86(window, 64))
}

func TestClassifyX86MovMemFromRegIsWrite(t *testing.T) {
	// mov [rcx], rax => 48 89 01
	window := []byte{0x48, 0x89, 0x01, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	inst, err := x86asm.Decode(window, 64)
	require.NoError(t, err)
	require.Equal(t, x86asm.MOV, inst.Op)

	require.Equal(t, Write, classifyX86(window, 64))
}

func TestClassifyX86UnrecognizedDefaultsToRead(t *testing.T) {
	// nop (0x90) is not in writeOps.
	window := []byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}
	require.Equal(t, Read, classifyX86(window, 64))
}

func TestClassifyX86InvalidEncodingDefaultsToRead(t *testing.T) {
	window := []byte{0x48, 0x8B} // REX.W + MOV opcode with its ModRM byte cut off: Decode fails
	require.Equal(t, Read, classifyX86(window, 64))
}
