//go:build linux

package exceptor

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Backend is the attach/detach handle the rest of the instrumentation
// core holds. There can only be one attached Backend per process; a
// second concurrent Attach fails.
type Backend struct {
	mu          sync.Mutex
	attached    bool
	saved       *dispositionTable
	interceptor FunctionInterceptor
}

var coordinatorMu sync.Mutex

// NewBackend builds a detached Backend. interceptor may be nil, in which
// case signal/sigaction calls made elsewhere in the process are not
// virtualized.
func NewBackend(interceptor FunctionInterceptor) *Backend {
	if interceptor == nil {
		interceptor = noopInterceptor{}
	}
	return &Backend{interceptor: interceptor}
}

// Attach installs the trampoline on every managed signal, records what
// was there before, opens an interceptor transaction over
// signal/sigaction, and publishes this Backend as the process-wide
// singleton the trampoline dispatches to.
func (b *Backend) Attach(handler Handler, opaque unsafe.Pointer) error {
	coordinatorMu.Lock()
	defer coordinatorMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return &ErrAlreadyAttached{}
	}
	if activeBackend != nil {
		return &ErrAnotherBackendAttached{}
	}

	saved := newDispositionTable()
	installed := make([]int, 0, len(managedSignals))
	rollback := func() {
		for _, s := range installed {
			if old, ok := saved.get(s); ok {
				sa := old.asSigaction()
				_ = unix.Sigaction(s, &sa, nil)
			}
		}
	}

	for _, sig := range managedSignals {
		var old unix.Sigaction
		if err := unix.Sigaction(sig, nil, &old); err != nil {
			rollback()
			return fmt.Errorf("exceptor: query disposition for signal %d: %w", sig, err)
		}
		saved.save(sig, &old)

		cb, err := installTrampoline(sig)
		if err != nil {
			rollback()
			return fmt.Errorf("exceptor: install trampoline for signal %d: %w", sig, err)
		}

		newSa := unix.Sigaction{
			Handler: cb,
			Flags:   unix.SA_SIGINFO | unix.SA_RESTART,
		}
		if err := unix.Sigaction(sig, &newSa, nil); err != nil {
			rollback()
			return fmt.Errorf("exceptor: install handler for signal %d: %w", sig, err)
		}
		installed = append(installed, sig)
	}

	if err := b.interceptor.ReplaceSignalFunctions(func(sig int, newDisp SavedDisposition) SavedDisposition {
		prior, _ := saved.get(sig)
		saved.save(sig, &unix.Sigaction{Handler: newDisp.handler, Flags: uint64(newDisp.flags), Restorer: newDisp.restorer, Mask: newDisp.mask})
		return prior
	}); err != nil {
		rollback()
		return fmt.Errorf("exceptor: replace signal functions: %w", err)
	}

	b.saved = saved
	b.attached = true
	activeBackend = &backend{handler: handler, opaque: opaque, saved: saved}
	return nil
}

// Detach reverts the interceptor hooks, restores every managed signal's
// pre-Attach disposition, and clears the process-wide singleton.
func (b *Backend) Detach() error {
	coordinatorMu.Lock()
	defer coordinatorMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return &ErrNotAttached{}
	}

	if err := b.interceptor.RevertSignalFunctions(); err != nil {
		return fmt.Errorf("exceptor: revert signal functions: %w", err)
	}

	for _, sig := range managedSignals {
		if old, ok := b.saved.get(sig); ok {
			sa := old.asSigaction()
			if err := unix.Sigaction(sig, &sa, nil); err != nil {
				return fmt.Errorf("exceptor: restore disposition for signal %d: %w", sig, err)
			}
		}
		b.saved.clear(sig)
	}

	activeBackend = nil
	b.attached = false
	b.saved = nil
	return nil
}

// PrepareFork and RecoverFromFork are no-ops: the child inherits the
// parent's installed dispositions and the coordinator's in-process state
// is simply duplicated by fork, so there is nothing to redo.
func (b *Backend) PrepareFork()     {}
func (b *Backend) RecoverFromFork() {}

// ErrAlreadyAttached is returned by Attach on a Backend that is already
// attached.
type ErrAlreadyAttached struct{}

func (*ErrAlreadyAttached) Error() string { return "exceptor: backend already attached" }

// ErrAnotherBackendAttached is returned by Attach when a different
// Backend already holds the process-wide singleton.
type ErrAnotherBackendAttached struct{}

func (*ErrAnotherBackendAttached) Error() string {
	return "exceptor: another backend is already attached in this process"
}

// ErrNotAttached is returned by Detach on a Backend that is not attached.
type ErrNotAttached struct{}

func (*ErrNotAttached) Error() string { return "exceptor: backend not attached" }
