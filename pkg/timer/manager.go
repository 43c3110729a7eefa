// Package timer implements the cooperative, single-threaded timer
// manager the packet analysis core uses for fragment expiry and tunnel
// inactivity. There is no wall clock and no goroutine: time only moves
// forward when the pipeline driver calls Advance with the timestamp of
// the packet it is about to process, mirroring how the source
// this spec is drawn from drives its timer manager off simulation time
// rather than real time.
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Callback receives expired=false for a normal deadline-reached firing
// from Advance, and expired=true when Shutdown fires it early —
// per the spec, an expired callback must only clean up, never
// reschedule.
type Callback func(expired bool)

// Handle is a weak reference into the manager's arena. A Handle whose
// entry has already fired or been cancelled is not an error to look
// up or cancel again — both are no-ops, which is what lets a
// reassembler or tunnel map entry clear its back-pointer without
// destructor ordering games.
type Handle struct {
	id  uint64
	gen uint32
}

type entry struct {
	deadline  time.Time
	cb        Callback
	gen       uint32
	cancelled bool
}

// Manager is a min-heap of scheduled callbacks keyed by deadline.
type Manager struct {
	mu      sync.Mutex
	entries map[uint64]*entry
	pq      timerHeap
	nextID  uint64
	now     time.Time
}

// NewManager returns an empty timer manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[uint64]*entry)}
}

// Schedule registers cb to fire at (or after) the next Advance whose
// time reaches deadline.
func (m *Manager) Schedule(deadline time.Time, cb Callback) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	e := &entry{deadline: deadline, cb: cb, gen: 1}
	m.entries[id] = e
	heap.Push(&m.pq, pqItem{id: id, deadline: deadline})
	return Handle{id: id, gen: e.gen}
}

// Cancel disarms a scheduled callback. Idempotent: cancelling an
// already-fired or already-cancelled handle is a no-op.
func (m *Manager) Cancel(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[h.id]
	if !ok || e.gen != h.gen {
		return
	}
	e.cancelled = true
	delete(m.entries, h.id)
}

// Advance fires, in deadline order, every scheduled callback whose
// deadline is <= now. Firing a callback marks its handle stale: a
// later Cancel or repeated Advance is a no-op for it.
func (m *Manager) Advance(now time.Time) {
	for {
		cb, ok := m.pop(now, false)
		if !ok {
			return
		}
		cb(false)
	}
}

// Shutdown fires every remaining scheduled callback with expired=true
// and drops them, per the spec's "expired mode" semantics: cleanup
// only, no rescheduling.
func (m *Manager) Shutdown() {
	for {
		cb, ok := m.pop(time.Time{}, true)
		if !ok {
			return
		}
		cb(true)
	}
}

// pop removes and returns the next due callback (or, in shutdown
// mode, the next callback regardless of deadline). Lazy deletion:
// cancelled entries are dropped without invoking their callback.
func (m *Manager) pop(now time.Time, shutdown bool) (Callback, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.pq.Len() > 0 {
		top := m.pq[0]
		if !shutdown && top.deadline.After(now) {
			return nil, false
		}
		heap.Pop(&m.pq)

		e, ok := m.entries[top.id]
		if !ok || e.cancelled {
			continue
		}
		delete(m.entries, top.id)
		return e.cb, true
	}
	return nil, false
}

// Len reports the number of live (not yet fired or cancelled)
// scheduled callbacks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type pqItem struct {
	id       uint64
	deadline time.Time
}

type timerHeap []pqItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(pqItem)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
