//go:build linux

package exceptor

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// readCode copies n bytes of already-mapped, already-executing code
// starting at addr. Used both to capture the bytes a patch will
// overwrite and, on amd64, to disassemble them to find an
// instruction-aligned steal length.
func readCode(addr uintptr, n int) []byte {
	buf := make([]byte, n)
	copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	return buf
}

func pageRound(addr uintptr, length int) (base uintptr, size int) {
	pageSize := uintptr(unix.Getpagesize())
	base = addr &^ (pageSize - 1)
	end := (addr + uintptr(length) + pageSize - 1) &^ (pageSize - 1)
	return base, int(end - base)
}

func writeCode(addr uintptr, code []byte) error {
	base, size := pageRound(addr, len(code))
	page := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
	if err := unix.Mprotect(page, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("exceptor: mprotect RWX for hook: %w", err)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(code))
	copy(dst, code)
	_ = unix.Mprotect(page, unix.PROT_READ|unix.PROT_EXEC)
	return nil
}

// allocExecBuf mmaps an anonymous RW buffer, copies code into it and
// flips it to RX — used for the call-through trampolines built alongside
// each hook.
func allocExecBuf(code []byte) (uintptr, error) {
	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, fmt.Errorf("exceptor: mmap trampoline: %w", err)
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return 0, fmt.Errorf("exceptor: mprotect trampoline RX: %w", err)
	}
	return uintptr(unsafe.Pointer(&mem[0])), nil
}

// hookedFunc is one patched libc entry point: enough to restore the
// original bytes on revert. The call-through trampoline stays mapped
// after revert.
type hookedFunc struct {
	addr           uintptr
	origBytes      []byte
	trampolineAddr uintptr
}

func hookFunction(addr uintptr, hookAddr uintptr) (*hookedFunc, error) {
	stolen := stealBytes(addr, patchLen)
	resumeAddr := addr + uintptr(len(stolen))
	trampoline := buildTrampoline(stolen, resumeAddr)

	trampolineAddr, err := allocExecBuf(trampoline)
	if err != nil {
		return nil, err
	}

	if err := writeCode(addr, buildPatch(hookAddr)); err != nil {
		return nil, err
	}

	return &hookedFunc{addr: addr, origBytes: stolen, trampolineAddr: trampolineAddr}, nil
}

func (h *hookedFunc) revert() error {
	return writeCode(h.addr, h.origBytes)
}

// libcInterceptor is the real FunctionInterceptor: it patches libc's
// signal(3) and sigaction(2) entry points so that, for the duration of
// one attachment, calls made anywhere in the process targeting a
// managed signal are redirected to onInstall instead of reaching the
// kernel, while calls for any other signal are forwarded unchanged
// through a call-through trampoline built from the stolen prologue.
type libcInterceptor struct {
	onInstall func(sig int, newDisp SavedDisposition) SavedDisposition

	sigactionHook *hookedFunc
	signalHook    *hookedFunc

	sigactionCB uintptr
	signalCB    uintptr
}

// NewLibcInterceptor builds a FunctionInterceptor that hooks libc's
// signal/sigaction entry points directly, so host code elsewhere in the
// process observes the virtualized disposition the coordinator expects.
func NewLibcInterceptor() FunctionInterceptor {
	return &libcInterceptor{}
}

func (li *libcInterceptor) ReplaceSignalFunctions(onInstall func(sig int, newDisp SavedDisposition) SavedDisposition) error {
	li.onInstall = onInstall

	handle, err := purego.Dlopen("libc.so.6", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return fmt.Errorf("exceptor: dlopen libc: %w", err)
	}

	sigactionAddr, err := purego.Dlsym(handle, "sigaction")
	if err != nil {
		return fmt.Errorf("exceptor: dlsym sigaction: %w", err)
	}
	signalAddr, err := purego.Dlsym(handle, "signal")
	if err != nil {
		return fmt.Errorf("exceptor: dlsym signal: %w", err)
	}

	li.sigactionCB = purego.NewCallback(li.sigactionShim)
	li.signalCB = purego.NewCallback(li.signalShim)

	li.sigactionHook, err = hookFunction(sigactionAddr, li.sigactionCB)
	if err != nil {
		return err
	}
	li.signalHook, err = hookFunction(signalAddr, li.signalCB)
	if err != nil {
		_ = li.sigactionHook.revert()
		li.sigactionHook = nil
		return err
	}
	return nil
}

func (li *libcInterceptor) RevertSignalFunctions() error {
	var firstErr error
	if li.sigactionHook != nil {
		if err := li.sigactionHook.revert(); err != nil && firstErr == nil {
			firstErr = err
		}
		li.sigactionHook = nil
	}
	if li.signalHook != nil {
		if err := li.signalHook.revert(); err != nil && firstErr == nil {
			firstErr = err
		}
		li.signalHook = nil
	}
	return firstErr
}

// sigactionShim has the C signature
// int sigaction(int signum, const struct sigaction *act, struct sigaction *oldact).
// For a managed signal it diverts to onInstall instead of touching the
// kernel; for anything else it calls through to the real libc sigaction
// via the call-through trampoline built at hook time.
func (li *libcInterceptor) sigactionShim(signum int32, act, oldact *unix.Sigaction) int32 {
	sig := int(signum)
	if !isManaged(sig) {
		r, _, _ := purego.SyscallN(li.sigactionHook.trampolineAddr, uintptr(signum), uintptr(unsafe.Pointer(act)), uintptr(unsafe.Pointer(oldact)))
		return int32(r)
	}

	var newDisp SavedDisposition
	if act != nil {
		newDisp = SavedDisposition{
			valid:    true,
			handler:  act.Handler,
			siginfo:  act.Flags&unix.SA_SIGINFO != 0,
			flags:    act.Flags,
			mask:     act.Mask,
			restorer: act.Restorer,
		}
	}
	prior := li.onInstall(sig, newDisp)
	if oldact != nil {
		*oldact = prior.asSigaction()
	}
	return 0
}

// signalShim has the C signature void (*signal(int signum, void (*handler)(int)))(int).
// Per the reachability decision recorded for the trampoline's chain
// path, a signal() call always installs a single-argument handler, so the
// saved disposition it produces never carries SA_SIGINFO.
func (li *libcInterceptor) signalShim(signum int32, handler uintptr) uintptr {
	sig := int(signum)
	if !isManaged(sig) {
		r, _, _ := purego.SyscallN(li.signalHook.trampolineAddr, uintptr(signum), handler)
		return r
	}

	newDisp := SavedDisposition{valid: true, handler: handler, siginfo: false}
	prior := li.onInstall(sig, newDisp)
	return prior.handler
}

func isManaged(sig int) bool {
	for _, s := range managedSignals {
		if s == sig {
			return true
		}
	}
	return false
}
