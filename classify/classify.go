// Package classify implements the instruction classifier: given a faulting
// address and canonical CPU context, disassemble exactly one instruction and
// report whether the faulting memory access was a read, write, execute, or
// could not be determined.
//
// Precision on write-vs-read matters: hardened client handlers discriminate
// by operation, and the conservative default on an unrecognized opcode is
// read, which minimizes false writes.
package classify

import (
	"unsafe"

	"j5.nz/gumcore/cpucontext"
)

// Operation is the classified memory access kind.
type Operation int

const (
	// Invalid means classification could not determine an operation (used
	// for fault kinds that are not memory-access faults at all).
	Invalid Operation = iota
	Read
	Write
	Execute
)

func (o Operation) String() string {
	switch o {
	case Read:
		return "read"
	case Write:
		return "write"
	case Execute:
		return "execute"
	default:
		return "invalid"
	}
}

// windowSize is the fixed disassembly window read starting at the fault
// address; it needs to be only as large as the longest instruction on any
// supported architecture.
const windowSize = 16

// readWindow copies windowSize bytes starting at addr into a buffer it
// allocates on every call. On real hardware this is a plain memory read
// of already-mapped, already-executed code.
func readWindow(addr uint64) []byte {
	buf := make([]byte, windowSize)
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), windowSize)
	copy(buf, src)
	return buf
}

// Classify disassembles one instruction at address using context to select
// architecture (and, on ARM, Thumb-vs-ARM mode) and returns the memory
// operation it performs. If disassembly fails, it returns Read.
func Classify(address uint64, ctx *cpucontext.CPUContext) Operation {
	window := readWindow(address)
	switch ctx.Arch {
	case cpucontext.AMD64:
		return classifyX86(window, 64)
	case cpucontext.X86:
		return classifyX86(window, 32)
	case cpucontext.ARM64:
		return classifyARM64(window)
	case cpucontext.ARM:
		return classifyARM(window, ctx.ARM.ThumbMode())
	default:
		return Read
	}
}
