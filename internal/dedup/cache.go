// Package dedup remembers recently applied request IDs so that a retransmitted
// mutation is applied, acknowledged and replicated only once.
package dedup

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCapacity is the number of request IDs remembered.
	DefaultCapacity = 50

	// DefaultWindow is how long a request ID suppresses its duplicates.
	DefaultWindow = 15 * time.Second
)

// Cache is a bounded set of request IDs with a validity window. Once full,
// recording a new ID evicts the oldest one.
type Cache[K comparable] struct {
	mu      sync.Mutex
	entries *expirable.LRU[K, struct{}]
}

// New creates a cache holding up to capacity IDs for window each.
func New[K comparable](capacity int, window time.Duration) *Cache[K] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache[K]{
		entries: expirable.NewLRU[K, struct{}](capacity, nil, window),
	}
}

// Seen records id and reports whether it was already recorded within the
// window. An expired record is refreshed and reported as unseen.
func (c *Cache[K]) Seen(id K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Peek leaves eviction order untouched: the oldest recorded ID goes first.
	if _, ok := c.entries.Peek(id); ok {
		return true
	}
	c.entries.Add(id, struct{}{})
	return false
}

// Len returns the number of live records.
func (c *Cache[K]) Len() int {
	return c.entries.Len()
}
