package pkg

import (
	"sync"
	"sync/atomic"
)

// DefaultStoreCapacity is the number of keys a MemoryStore holds when no capacity is given.
const DefaultStoreCapacity = 100

// MemoryStore is a capacity-bounded key-value map safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	capacity int

	// Metrics for monitoring
	hits    atomic.Int64
	misses  atomic.Int64
	puts    atomic.Int64
	removes atomic.Int64
	rejects atomic.Int64
}

// NewMemoryStore creates a store that accepts at most capacity distinct keys.
// A non-positive capacity selects DefaultStoreCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &MemoryStore{
		data:     make(map[string][]byte, capacity),
		capacity: capacity,
	}
}

// Put stores value under key. Overwriting an existing key never fails on capacity.
func (ms *MemoryStore) Put(key string, value []byte) error {
	if key == "" || len(value) == 0 {
		ms.rejects.Add(1)
		return ErrInvalidFormat
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.data[key]; !exists && len(ms.data) >= ms.capacity {
		ms.rejects.Add(1)
		return ErrStoreFull
	}
	ms.data[key] = valueCopy
	ms.puts.Add(1)
	return nil
}

// Get returns a copy of the value stored under key.
func (ms *MemoryStore) Get(key string) ([]byte, error) {
	ms.mu.RLock()
	value, exists := ms.data[key]
	ms.mu.RUnlock()

	if !exists {
		ms.misses.Add(1)
		return nil, ErrKeyNotFound
	}
	ms.hits.Add(1)

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Remove deletes key, returning ErrKeyNotFound if it was absent.
func (ms *MemoryStore) Remove(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.data[key]; !exists {
		ms.misses.Add(1)
		return ErrKeyNotFound
	}
	delete(ms.data, key)
	ms.removes.Add(1)
	return nil
}

// Len returns the number of stored keys.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.data)
}

// Stats returns current storage statistics.
type Stats struct {
	Entries  int   `json:"entries"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Puts     int64 `json:"puts"`
	Removes  int64 `json:"removes"`
	Rejects  int64 `json:"rejects"`
}

// Stats returns a snapshot of the store counters.
func (ms *MemoryStore) Stats() Stats {
	return Stats{
		Entries:  ms.Len(),
		Capacity: ms.capacity,
		Hits:     ms.hits.Load(),
		Misses:   ms.misses.Load(),
		Puts:     ms.puts.Load(),
		Removes:  ms.removes.Load(),
		Rejects:  ms.rejects.Load(),
	}
}
