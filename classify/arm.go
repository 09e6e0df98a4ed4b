package classify

import (
	"strings"

	"golang.org/x/arch/arm/armasm"
)

// classifyARM disassembles one AArch32 instruction from window, in Thumb
// or ARM mode per thumb (the caller reads this from CPSR bit 5), and maps
// load-family opcodes to Read, store-family to Write.
func classifyARM(window []byte, thumb bool) Operation {
	mode := armasm.ModeARM
	if thumb {
		mode = armasm.ModeThumb
	}
	inst, err := armasm.Decode(window, mode)
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
