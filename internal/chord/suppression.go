package chord

import (
	"sync"
	"time"
)

const (
	// DefaultSuppressionCapacity is the number of removed nodes remembered.
	DefaultSuppressionCapacity = 20

	// DefaultSuppressionWindow is how long a removed node stays suppressed.
	DefaultSuppressionWindow = 30 * time.Second
)

// removedEntry records when a node was evicted from the view.
type removedEntry struct {
	node      Node
	removedAt time.Time
}

// RemovedNodes remembers recently evicted nodes so that stale successor lists
// gossiped by neighbours cannot immediately re-admit them. It is a bounded
// FIFO: recording beyond capacity forgets the oldest entry.
type RemovedNodes struct {
	mu       sync.RWMutex
	entries  []removedEntry
	capacity int
	window   time.Duration
	now      func() time.Time
}

// NewRemovedNodes creates a suppression set holding at most capacity nodes,
// each suppressed for window after its removal. Non-positive arguments select
// the defaults.
func NewRemovedNodes(capacity int, window time.Duration) *RemovedNodes {
	if capacity <= 0 {
		capacity = DefaultSuppressionCapacity
	}
	if window <= 0 {
		window = DefaultSuppressionWindow
	}
	return &RemovedNodes{
		entries:  make([]removedEntry, 0, capacity),
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
}

// Add records node as removed now. A node already present is moved to the
// back with a fresh timestamp.
func (r *RemovedNodes) Add(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleteLocked(node.ID)
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
	}
	r.entries = append(r.entries, removedEntry{node: node, removedAt: r.now()})
}

// Suppressed reports whether a node with this ID was removed within the window.
func (r *RemovedNodes) Suppressed(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.node.ID == id {
			return r.now().Sub(e.removedAt) < r.window
		}
	}
	return false
}

// Contains reports whether any entry, expired or not, exists for id.
func (r *RemovedNodes) Contains(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.node.ID == id {
			return true
		}
	}
	return false
}

// Forget drops the entry for id, used when an expired node is re-admitted.
func (r *RemovedNodes) Forget(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked(id)
}

// Len returns the number of recorded nodes.
func (r *RemovedNodes) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *RemovedNodes) deleteLocked(id int) {
	for i, e := range r.entries {
		if e.node.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}
