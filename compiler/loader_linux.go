//go:build linux

package compiler

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// executableRange is a loaded module's code page, kept around so Free can
// unmap it.
type executableRange struct {
	base uintptr
	size int
}

// allocateExecutable reserves len(code) bytes (rounded up to a page),
// copies code into it as RW, then flips the mapping to RX. JIT-compiled
// code is never W^X-violating after this call returns.
func allocateExecutable(code []byte) (*executableRange, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("compiler: empty code buffer")
	}
	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("compiler: mmap: %w", err)
	}
	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("compiler: mprotect RX: %w", err)
	}

	return &executableRange{base: uintptr(unsafe.Pointer(&mem[0])), size: size}, nil
}

func (r *executableRange) free() error {
	mem := unsafe.Slice((*byte)(unsafe.Pointer(r.base)), r.size)
	return unix.Munmap(mem)
}
