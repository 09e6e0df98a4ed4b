package compiler

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// libcHandle is the dlopen handle for the host libc, opened lazily and
// kept for the process lifetime — the built-in header's curated libc
// subset resolves against it without cgo, using the same dlopen/dlsym
// mechanism github.com/ebitengine/purego uses to call C functions from
// pure Go.
var (
	libcOnce   sync.Once
	libcHandle uintptr
	libcErr    error
)

func openLibc() (uintptr, error) {
	libcOnce.Do(func() {
		libcHandle, libcErr = purego.Dlopen("libc.so.6", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	})
	return libcHandle, libcErr
}

// resolveLibcSymbol looks up name in the host libc via dlsym. It is the
// sole place OS dynamic-linker knowledge enters the built-in header's
// resolution path.
func resolveLibcSymbol(name string) (uintptr, bool) {
	handle, err := openLibc()
	if err != nil {
		return 0, false
	}
	addr, err := purego.Dlsym(handle, name)
	if err != nil || addr == 0 {
		return 0, false
	}
	return addr, true
}

// runtimeShims holds the Go implementations backing builtinRuntimeSymbols.
// Each is converted to a callable machine-code address via
// purego.NewCallback, the same trampoline mechanism purego uses to let C
// code call back into Go.
var runtimeShims = map[string]uintptr{}

func init() {
	registerRuntimeShim("gum_malloc", purego.NewCallback(shimMalloc))
	registerRuntimeShim("gum_calloc", purego.NewCallback(shimCalloc))
	registerRuntimeShim("gum_free", purego.NewCallback(shimFree))
	registerRuntimeShim("gum_strdup", purego.NewCallback(shimStrdup))

	registerRuntimeShim("gum_thread_new", purego.NewCallback(shimThreadNew))
	registerRuntimeShim("gum_thread_join", purego.NewCallback(shimThreadJoin))
	registerRuntimeShim("gum_thread_ref", purego.NewCallback(shimThreadRef))
	registerRuntimeShim("gum_thread_unref", purego.NewCallback(shimThreadUnref))
	registerRuntimeShim("gum_thread_yield", purego.NewCallback(shimThreadYield))

	registerRuntimeShim("gum_mutex_init", purego.NewCallback(shimMutexInit))
	registerRuntimeShim("gum_mutex_clear", purego.NewCallback(shimMutexClear))
	registerRuntimeShim("gum_mutex_lock", purego.NewCallback(shimMutexLock))
	registerRuntimeShim("gum_mutex_unlock", purego.NewCallback(shimMutexUnlock))
	registerRuntimeShim("gum_mutex_trylock", purego.NewCallback(shimMutexTrylock))

	registerRuntimeShim("gum_cond_init", purego.NewCallback(shimCondInit))
	registerRuntimeShim("gum_cond_clear", purego.NewCallback(shimCondClear))
	registerRuntimeShim("gum_cond_wait", purego.NewCallback(shimCondWait))
	registerRuntimeShim("gum_cond_signal", purego.NewCallback(shimCondSignal))
	registerRuntimeShim("gum_cond_broadcast", purego.NewCallback(shimCondBroadcast))

	registerRuntimeShim("gum_atomic_int_add", purego.NewCallback(shimAtomicIntAdd))
	registerRuntimeShim("gum_atomic_pointer_add", purego.NewCallback(shimAtomicPointerAdd))
}

func registerRuntimeShim(name string, addr uintptr) {
	runtimeShims[name] = addr
}

// The shim implementations below back the threading/allocation primitives
// of the built-in header. They are plain Go functions; purego.NewCallback
// is what makes them callable from JIT-compiled native code without cgo.

// liveAllocs keeps every buffer handed out by gum_malloc, gum_calloc and
// gum_strdup reachable for the garbage collector until gum_free drops it;
// the collector cannot see references held by compiled code.
var liveAllocs sync.Map

func shimMalloc(n uintptr) unsafe.Pointer {
	buf := make([]byte, n)
	p := unsafe.Pointer(&buf[0])
	liveAllocs.Store(p, buf)
	return p
}

func shimCalloc(count, n uintptr) unsafe.Pointer {
	return shimMalloc(count * n)
}

func shimFree(p unsafe.Pointer) {
	// Go-managed memory: dropping the liveAllocs entry lets the garbage
	// collector reclaim it.
	liveAllocs.Delete(p)
}

func shimStrdup(s *byte) *byte {
	if s == nil {
		return nil
	}
	n := 0
	for ; *(*byte)(unsafe.Add(unsafe.Pointer(s), n)) != 0; n++ {
	}
	buf := make([]byte, n+1)
	copy(buf, unsafe.Slice(s, n))
	liveAllocs.Store(unsafe.Pointer(&buf[0]), buf)
	return &buf[0]
}

func shimThreadNew(fn uintptr, data unsafe.Pointer) unsafe.Pointer {
	return newManagedThread(fn, data)
}

func shimThreadJoin(handle unsafe.Pointer)   { joinManagedThread(handle) }
func shimThreadRef(handle unsafe.Pointer)    { refManagedThread(handle) }
func shimThreadUnref(handle unsafe.Pointer)  { unrefManagedThread(handle) }
func shimThreadYield()                       { threadYield() }

func shimMutexInit(m *goMutex)     { m.init() }
func shimMutexClear(m *goMutex)    { m.clear() }
func shimMutexLock(m *goMutex)     { m.lock() }
func shimMutexUnlock(m *goMutex)   { m.unlock() }
func shimMutexTrylock(m *goMutex) int32 {
	if m.tryLock() {
		return 1
	}
	return 0
}

func shimCondInit(c *goCond)      { c.init() }
func shimCondClear(c *goCond)     { c.clear() }
func shimCondWait(c *goCond, m *goMutex) { c.wait(m) }
func shimCondSignal(c *goCond)    { c.signal() }
func shimCondBroadcast(c *goCond) { c.broadcast() }

func shimAtomicIntAdd(val *int32, delta int32) int32 {
	return atomicIntAdd(val, delta)
}

func shimAtomicPointerAdd(val *unsafe.Pointer, delta int) unsafe.Pointer {
	return atomicPointerAdd(val, delta)
}
