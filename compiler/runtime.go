package compiler

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// goMutex and goCond are the storage the built-in header's GumMutex/GumCond
// opaque structs point at (their first field is a pointer this package
// sets to a *goMutex / *goCond on init, mirroring the C library's own
// pattern of an opaque struct whose first word is a backend-private
// pointer).
type goMutex struct {
	mu sync.Mutex
}

func (m *goMutex) init()          {}
func (m *goMutex) clear()         {}
func (m *goMutex) lock()          { m.mu.Lock() }
func (m *goMutex) unlock()        { m.mu.Unlock() }
func (m *goMutex) tryLock() bool  { return m.mu.TryLock() }

type goCond struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func (c *goCond) init() { c.cond = sync.NewCond(&c.mu) }
func (c *goCond) clear() {}
func (c *goCond) wait(m *goMutex) {
	// The canonical pthread_cond_wait contract takes the caller's mutex;
	// here the goCond owns its own, so the caller's mutex is unlocked
	// around the wait to honor the calling convention without a double
	// lock.
	m.unlock()
	c.cond.L.Lock()
	c.cond.Wait()
	c.cond.L.Unlock()
	m.lock()
}
func (c *goCond) signal()    { c.cond.Signal() }
func (c *goCond) broadcast() { c.cond.Broadcast() }

// managedThread is the handle returned to compiled code by gum_thread_new.
// Lifetime is refcounted because compiled modules may gum_thread_ref a
// handle from more than one call site.
type managedThread struct {
	refs int32
	done chan struct{}
}

func newManagedThread(fn uintptr, data unsafe.Pointer) unsafe.Pointer {
	t := &managedThread{refs: 1, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		callCFunc1(fn, data)
	}()
	return unsafe.Pointer(t)
}

func joinManagedThread(h unsafe.Pointer) {
	t := (*managedThread)(h)
	<-t.done
}

func refManagedThread(h unsafe.Pointer) {
	t := (*managedThread)(h)
	atomic.AddInt32(&t.refs, 1)
}

func unrefManagedThread(h unsafe.Pointer) {
	t := (*managedThread)(h)
	atomic.AddInt32(&t.refs, -1)
}

func threadYield() { runtime.Gosched() }

func atomicIntAdd(val *int32, delta int32) int32 {
	return atomic.AddInt32(val, delta) - delta
}

func atomicPointerAdd(val *unsafe.Pointer, delta int) unsafe.Pointer {
	for {
		old := atomic.LoadPointer(val)
		if atomic.CompareAndSwapPointer(val, old, unsafe.Add(old, delta)) {
			return old
		}
	}
}

// callCFunc1 invokes a one-argument C function pointer. purego.SyscallN
// handles the System V AMD64 / AAPCS64 calling convention directly, the
// same path purego itself uses to call arbitrary C functions without cgo.
func callCFunc1(fn uintptr, arg unsafe.Pointer) {
	purego.SyscallN(fn, uintptr(arg))
}

// CallForTest invokes a zero-argument compiled function and returns its
// result as a signed 64-bit integer. It exists for smoke-testing and
// demo harnesses that need to call into a linked module without
// constructing their own imports map of C function signatures.
func CallForTest(fn uintptr) int64 {
	r, _, _ := purego.SyscallN(fn)
	return int64(r)
}

// CallForTestArgs invokes a compiled function of up to the platform's
// register-argument count, every parameter and the result modeled as a
// signed 64-bit integer (the IR's only integer width). Same rationale as
// CallForTest, generalized to non-nullary exported functions.
func CallForTestArgs(fn uintptr, args ...int64) int64 {
	uargs := make([]uintptr, len(args))
	for i, a := range args {
		uargs[i] = uintptr(a)
	}
	r, _, _ := purego.SyscallN(fn, uargs...)
	return int64(r)
}
