//go:build linux

package exceptor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// SavedDisposition is the pre-attach handler state for one managed signal,
// captured so Detach (or a chained delivery) can restore exactly what was
// there before.
type SavedDisposition struct {
	mu sync.Mutex

	valid bool

	// handler holds the raw disposition word: either a one-arg sa_handler
	// (SIG_DFL/SIG_IGN/a plain function pointer) or, when sigaction is
	// three-arg, the sa_sigaction pointer. Which one applies is recorded
	// in siginfo.
	handler  uintptr
	siginfo  bool
	flags    uint64
	mask     uint64
	restorer uintptr
}

// dispositionTable is the dense array of saved dispositions, one slot per
// signal number up to the highest managed signal. The trampoline reads a
// slot's snapshot fields without locking; only Attach, the signal/sigaction
// install shim and Detach write a slot, under its per-signal lock.
type dispositionTable struct {
	slots []SavedDisposition
}

func newDispositionTable() *dispositionTable {
	return &dispositionTable{slots: make([]SavedDisposition, highestManagedSignal()+1)}
}

func (t *dispositionTable) save(sig int, sa *unix.Sigaction) {
	slot := &t.slots[sig]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.handler = uintptr(sa.Handler)
	slot.siginfo = sa.Flags&unix.SA_SIGINFO != 0
	slot.flags = uint64(sa.Flags)
	slot.mask = sa.Mask
	slot.restorer = uintptr(sa.Restorer)
	slot.valid = true
}

// get returns a snapshot of a slot's fields without taking its lock.
// Called from the trampoline's async-signal context, where blocking on a
// lock the interrupted thread might itself be holding (inside save, from
// this same shim) would deadlock. A shim write and a concurrent fault on
// the same signal can race here; the result is a stale-but-consistent
// view, which is the tolerated outcome the disposition table is designed
// around (a handler install racing with a fault is observationally
// equivalent to the fault having arrived just before the install).
func (t *dispositionTable) get(sig int) (SavedDisposition, bool) {
	slot := &t.slots[sig]
	snap := SavedDisposition{
		handler:  slot.handler,
		siginfo:  slot.siginfo,
		flags:    slot.flags,
		mask:     slot.mask,
		restorer: slot.restorer,
		valid:    slot.valid,
	}
	return snap, snap.valid
}

func (t *dispositionTable) clear(sig int) {
	slot := &t.slots[sig]
	slot.mu.Lock()
	defer slot.mu.Unlock()
	*slot = SavedDisposition{}
}

// asSigaction reconstructs the unix.Sigaction a chained restore would
// install, used by Detach to put the original handler back.
func (d SavedDisposition) asSigaction() unix.Sigaction {
	return unix.Sigaction{
		Handler:  d.handler,
		Flags:    d.flags,
		Restorer: d.restorer,
		Mask:     d.mask,
	}
}

// chainable reports whether the saved disposition is something the
// trampoline can call directly (a real handler, not SIG_DFL/SIG_IGN).
func (d SavedDisposition) chainable() bool {
	return d.valid && d.handler != 0 && d.handler != 1
}
