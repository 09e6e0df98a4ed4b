// Package gum is the public surface of the in-process instrumentation
// core: compile-and-load C modules, and attach an exception backend that
// intercepts the managed signal set across the whole process.
package gum

import (
	"unsafe"

	"j5.nz/gumcore/compiler"
	"j5.nz/gumcore/cpucontext"
	"j5.nz/gumcore/exceptor"
)

// CModule is a compiled, linked C module. Construct with NewCModule,
// release with Destroy.
type CModule struct {
	m *compiler.Module
}

// NewCModule compiles source (the curated C subset) and links it against
// imports, a name -> address map satisfying every `extern` the source
// declares that the built-in header does not already provide. The
// returned CModule's init function, if any, has already run.
func NewCModule(source string, imports map[string]uintptr) (*CModule, error) {
	m, err := compiler.New(source)
	if err != nil {
		return nil, err
	}
	for name, addr := range imports {
		if err := m.AddSymbol(name, addr); err != nil {
			return nil, err
		}
	}
	if err := m.Link(); err != nil {
		return nil, err
	}
	return &CModule{m: m}, nil
}

// FindSymbol returns the address of a module-defined function, or 0 if
// name is not defined.
func (c *CModule) FindSymbol(name string) uintptr {
	return c.m.FindSymbol(name)
}

// Destroy runs the module's finalize function, if any, and releases its
// executable memory. The CModule must not be used again afterward.
func (c *CModule) Destroy() error {
	return c.m.Free()
}

// ExceptionDetails describes one delivery of a managed signal to an
// ExceptionBackend's handler.
type ExceptionDetails = exceptor.ExceptionDetails

// FaultKind is the coarse category a managed signal is mapped to.
type FaultKind = exceptor.FaultKind

// CPUContext is the canonical, architecture-tagged register file a
// handler inspects and may mutate before resuming.
type CPUContext = cpucontext.CPUContext

// HandlerFunc is called on every managed-signal delivery. Returning true
// means the fault was handled and the (possibly mutated) context should
// resume; false means chain to whatever was installed before attach.
type HandlerFunc func(details *ExceptionDetails, opaque unsafe.Pointer) bool

// ExceptionBackend is one attached instance of the signal trampoline,
// handler-install interceptor, and attach/detach coordinator. Construct
// with NewExceptionBackend (attaches immediately), release with Destroy
// (detaches).
type ExceptionBackend struct {
	b      *exceptor.Backend
	opaque unsafe.Pointer
}

// NewExceptionBackend attaches a backend with the given handler and
// opaque user data immediately. Only one ExceptionBackend may be
// attached per process at a time.
func NewExceptionBackend(handler HandlerFunc, opaque unsafe.Pointer) (*ExceptionBackend, error) {
	b := exceptor.NewBackend(exceptor.NewLibcInterceptor())
	if err := b.Attach(exceptor.Handler(handler), opaque); err != nil {
		return nil, err
	}
	return &ExceptionBackend{b: b, opaque: opaque}, nil
}

// Destroy detaches the backend, restoring every managed signal's
// pre-attach disposition.
func (e *ExceptionBackend) Destroy() error {
	return e.b.Detach()
}
