// Package hazptr implements a hazard-pointer safe-reclamation domain.
//
// Readers protect a pointer before dereferencing it; concurrent mutators
// retire pointers instead of freeing them directly. A retired pointer's
// deleter only runs once no holder protects it anymore.
package hazptr

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// localThreshold is the per-holder retired-list size that triggers a splice
// onto the domain's global retired list.
const localThreshold = 100

// globalThreshold is the global retired-list size that triggers a Scan pass.
const globalThreshold = 5000

// slot is one hazard-pointer slot in the domain's slot list.
type slot struct {
	ptr   atomic.Pointer[byte]
	owned atomic.Bool
	next  atomic.Pointer[slot]
}

type retirement struct {
	ptr     unsafe.Pointer
	deleter func()
}

// Domain is a hazard-pointer domain: a set of slots readers can claim, and a
// retirement list mutators append to instead of freeing memory directly.
type Domain struct {
	head atomic.Pointer[slot]

	globalMu sync.Mutex
	global   []retirement

	reclaimed atomic.Int64
}

// NewDomain creates a fresh, independent hazard-pointer domain. Most callers
// should use Default instead.
func NewDomain() *Domain {
	return &Domain{}
}

var (
	defaultOnce   sync.Once
	defaultDomain *Domain
)

// Default returns the process-wide default hazard-pointer domain, lazily
// initialized on first use.
func Default() *Domain {
	defaultOnce.Do(func() { defaultDomain = NewDomain() })
	return defaultDomain
}

// Holder is a hazard-pointer slot acquired by a goroutine, together with the
// goroutine's own local retirement bucket. It must be released (Release or
// Close) when the goroutine is done with it.
type Holder struct {
	domain  *Domain
	slot    *slot
	mu      sync.Mutex
	pending []retirement
}

// Acquire claims a free slot in the domain, allocating a new one if every
// existing slot is owned.
func (d *Domain) Acquire() *Holder {
	for s := d.head.Load(); s != nil; s = s.next.Load() {
		if !s.owned.Load() && s.owned.CompareAndSwap(false, true) {
			return &Holder{domain: d, slot: s}
		}
	}

	s := &slot{}
	s.owned.Store(true)
	for {
		old := d.head.Load()
		s.next.Store(old)
		if d.head.CompareAndSwap(old, s) {
			break
		}
	}
	return &Holder{domain: d, slot: s}
}

// Protect publishes ptr as in-use by this holder, with release ordering: a
// concurrent Scan that observes this value was preceded by whatever store
// published the pointer in the first place.
func (h *Holder) Protect(ptr unsafe.Pointer) {
	h.slot.ptr.Store((*byte)(ptr))
}

// Unprotect clears whatever pointer this holder currently protects without
// releasing the slot itself, so the holder can keep retiring through it.
func (h *Holder) Unprotect() {
	h.slot.ptr.Store(nil)
}

// Release clears the slot, stops protecting whatever pointer it held, and
// frees the slot for reuse by another goroutine. Any pending local
// retirements are flushed to the domain first.
func (h *Holder) Release() {
	h.flush(true)
	h.slot.ptr.Store(nil)
	h.slot.owned.Store(false)
}

// Close is an alias for Release, matching the io.Closer-style cleanup idiom
// used throughout this codebase for one-shot resources.
func (h *Holder) Close() { h.Release() }

// Retire declares ptr logically unreachable. deleter runs at or after the
// first moment no holder protects ptr — never while one does.
func (h *Holder) Retire(ptr unsafe.Pointer, deleter func()) {
	h.mu.Lock()
	h.pending = append(h.pending, retirement{ptr: ptr, deleter: deleter})
	shouldFlush := len(h.pending) >= localThreshold
	h.mu.Unlock()

	if shouldFlush {
		h.flush(false)
	}
}

// flush splices this holder's pending retirements onto the domain's global
// list. If force is true the splice happens regardless of the local
// threshold (used on Release, so nothing is lost when a holder goes away).
func (h *Holder) flush(force bool) {
	h.mu.Lock()
	if len(h.pending) == 0 || (!force && len(h.pending) < localThreshold) {
		h.mu.Unlock()
		return
	}
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	h.domain.globalMu.Lock()
	h.domain.global = append(h.domain.global, batch...)
	shouldScan := len(h.domain.global) > globalThreshold
	h.domain.globalMu.Unlock()

	if shouldScan {
		h.domain.Scan()
	}
}

// Scan snapshots every slot's protected pointer and reclaims every record on
// the domain's global retired list whose pointer is absent from that
// snapshot, invoking deleters outside any lock. Retirements still sitting in
// a holder's local list (not yet spliced by a threshold crossing or Release)
// are not seen by Scan.
func (d *Domain) Scan() {
	protected := map[unsafe.Pointer]struct{}{}
	for s := d.head.Load(); s != nil; s = s.next.Load() {
		if p := s.ptr.Load(); p != nil {
			protected[unsafe.Pointer(p)] = struct{}{}
		}
	}

	var toReclaim []retirement

	d.globalMu.Lock()
	kept := d.global[:0]
	for _, r := range d.global {
		if _, stillProtected := protected[r.ptr]; stillProtected {
			kept = append(kept, r)
		} else {
			toReclaim = append(toReclaim, r)
		}
	}
	d.global = kept
	d.globalMu.Unlock()

	for _, r := range toReclaim {
		r.deleter()
	}
	d.reclaimed.Add(int64(len(toReclaim)))
}

// Stats reports point-in-time counters useful for tests and observability.
type Stats struct {
	Slots     int
	Retired   int
	Reclaimed int64
}

// Stats returns a snapshot of the domain's slot count, pending-retirement
// count, and total reclaimed count.
func (d *Domain) Stats() Stats {
	slots := 0
	for s := d.head.Load(); s != nil; s = s.next.Load() {
		slots++
	}
	d.globalMu.Lock()
	retiredCount := len(d.global)
	d.globalMu.Unlock()
	return Stats{Slots: slots, Retired: retiredCount, Reclaimed: d.reclaimed.Load()}
}

// Shutdown reclaims everything still retired and frees the domain's slot
// list. Intended for process teardown and test cleanup, not for use on a
// live domain with other goroutines still holding slots.
func (d *Domain) Shutdown() {
	d.Scan()
	d.head.Store(nil)
}
