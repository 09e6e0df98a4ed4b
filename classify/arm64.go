package classify

import (
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// classifyARM64 disassembles one AArch64 instruction from window and maps
// explicit load-family opcodes to Read and store-family opcodes to Write,
// defaulting to Read for everything else.
func classifyARM64(window []byte) Operation {
	inst, err := arm64asm.Decode(window)
	if err != nil {
		return Read
	}
	name := inst.Op.String()
	switch {
	case strings.HasPrefix(name, "LD"):
		return Read
	case strings.HasPrefix(name, "ST"):
		return Write
	default:
		return Read
	}
}
