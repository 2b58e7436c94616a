// Package trigger decides, from inbound agent activity, when to surface the
// controller popout autonomously.
package trigger

import "sync"

// Ledger is a bounded FIFO set of identifiers. When full, adding a new
// identifier evicts the oldest. Memory stays capped under sustained volume.
type Ledger struct {
	mu    sync.Mutex
	cap   int
	ring  []string
	head  int
	count int
	set   map[string]struct{}
}

// NewLedger creates a ledger holding at most capacity identifiers.
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	return &Ledger{
		cap:  capacity,
		ring: make([]string, capacity),
		set:  make(map[string]struct{}, capacity),
	}
}

// Contains reports whether id is currently in the ledger.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.set[id]
	return ok
}

// Add records id, evicting the oldest entry when the ledger is full. It
// reports whether id was newly added.
func (l *Ledger) Add(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.set[id]; ok {
		return false
	}

	if l.count == l.cap {
		delete(l.set, l.ring[l.head])
		l.head = (l.head + 1) % l.cap
		l.count--
	}

	tail := (l.head + l.count) % l.cap
	l.ring[tail] = id
	l.count++
	l.set[id] = struct{}{}
	return true
}

// Len returns the number of identifiers currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
