//go:build linux

package exceptor

import (
	"syscall"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"

	"j5.nz/gumcore/classify"
	"j5.nz/gumcore/cpucontext"
)

// ExceptionDetails is what a handler sees for one signal delivery: enough
// to classify the fault and, if the handler repairs the fault condition,
// resume execution at an adjusted context.
type ExceptionDetails struct {
	ThreadID     int
	Kind         FaultKind
	Address      uintptr // faulting instruction address (context PC)
	MemoryAccess *MemoryAccessDetails
	Context      *cpucontext.CPUContext
}

// MemoryAccessDetails narrows an access-violation fault: whether the
// faulting instruction itself was the access (an execute fault) or it
// faulted while reading/writing a separate operand address, and which.
type MemoryAccessDetails struct {
	Operation classify.Operation
	Address   uintptr
}

// Handler is called for every delivery of a managed signal on the
// attached backend. It returns true if it repaired the fault and
// execution should resume at Context; false to chain to whatever
// disposition was in place before Attach.
type Handler func(details *ExceptionDetails, opaque unsafe.Pointer) bool

// backend is the process-wide singleton the trampoline consults on
// every delivery. There is at most one attached backend per process.
type backend struct {
	handler Handler
	opaque  unsafe.Pointer
	saved   *dispositionTable
}

var activeBackend *backend

func installTrampoline(sig int) (uintptr, error) {
	cb := purego.NewCallback(func(sig int32, info *siginfoT, ctxRaw unsafe.Pointer) {
		handleDelivery(int(sig), info, ctxRaw)
	})
	return cb, nil
}

// handleDelivery implements the per-delivery protocol: resolve the
// singleton backend, build ExceptionDetails from the kernel-supplied
// ucontext and siginfo, dispatch to the handler, then either resume
// (handler repaired the fault) or chain to the previously-installed
// disposition.
//
// This runs on the signal-delivery stack. It must not allocate on the
// heap in a way that can block, must not take a lock the interrupted
// code might be holding, and must not call a non-reentrant library
// function.
func handleDelivery(sig int, info *siginfoT, ctxRaw unsafe.Pointer) {
	b := activeBackend
	if b == nil {
		reraiseDefault(sig)
		return
	}

	slot, ok := b.saved.get(sig)
	if !ok {
		// No recorded prior disposition: nothing to chain to, nothing
		// safe to do but let the default action happen.
		reraiseDefault(sig)
		return
	}

	nc := cpucontext.NativeContextFromPtr(ctxRaw)
	ctx := cpucontext.Parse(nc)

	details := &ExceptionDetails{
		ThreadID: gettid(),
		Kind:     faultKindOf(sig),
		Address:  uintptr(ctx.PC()),
		Context:  ctx,
	}

	if sig == int(unix.SIGSEGV) || sig == int(unix.SIGBUS) {
		faultAddr := uintptr(info.Addr)
		if faultAddr == details.Address {
			details.MemoryAccess = &MemoryAccessDetails{Operation: classify.Execute, Address: faultAddr}
		} else {
			op := classify.Classify(uint64(details.Address), ctx)
			details.MemoryAccess = &MemoryAccessDetails{Operation: op, Address: faultAddr}
		}
	} else {
		details.MemoryAccess = &MemoryAccessDetails{Operation: classify.Invalid, Address: 0}
	}

	handled := b.handler(details, b.opaque)
	if handled {
		cpucontext.Unparse(details.Context, nc)
		return
	}

	chainOrReraise(sig, info, ctxRaw, slot)
}

func chainOrReraise(sig int, info *siginfoT, ctxRaw unsafe.Pointer, slot SavedDisposition) {
	if slot.valid && slot.siginfo && slot.handler == 0 {
		// The shim clears SA_SIGINFO whenever a single-argument signal()
		// call is virtualized, so a saved slot can never combine
		// SA_SIGINFO with a null sa_sigaction pointer.
		panic("exceptor: unreachable: saved disposition has SA_SIGINFO set with a null handler")
	}
	if !slot.chainable() {
		reraiseDefault(sig)
		return
	}
	if slot.siginfo {
		fn := slot.handler
		purego.SyscallN(fn, uintptr(sig), uintptr(unsafe.Pointer(info)), uintptr(ctxRaw))
		return
	}
	purego.SyscallN(slot.handler, uintptr(sig))
}

// reraiseDefault restores the signal to its default disposition and
// re-raises it on the current thread, so the process terminates (or
// otherwise behaves) exactly as it would have with no handler attached.
func reraiseDefault(sig int) {
	_ = unix.Sigaction(sig, &unix.Sigaction{Handler: 0 /* SIG_DFL */}, nil)
	_ = unix.Tgkill(unix.Getpid(), gettid(), syscall.Signal(sig))
}

func gettid() int {
	return unix.Gettid()
}
