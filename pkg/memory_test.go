package pkg

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePut(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*MemoryStore)
		key     string
		value   []byte
		wantErr error
	}{
		{
			name:  "valid put",
			setup: func(*MemoryStore) {},
			key:   "k",
			value: []byte("v"),
		},
		{
			name:    "empty key",
			setup:   func(*MemoryStore) {},
			key:     "",
			value:   []byte("v"),
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "empty value",
			setup:   func(*MemoryStore) {},
			key:     "k",
			value:   nil,
			wantErr: ErrInvalidFormat,
		},
		{
			name: "store full",
			setup: func(ms *MemoryStore) {
				require.NoError(t, ms.Put("a", []byte("1")))
				require.NoError(t, ms.Put("b", []byte("2")))
			},
			key:     "c",
			value:   []byte("3"),
			wantErr: ErrStoreFull,
		},
		{
			name: "overwrite when full",
			setup: func(ms *MemoryStore) {
				require.NoError(t, ms.Put("a", []byte("1")))
				require.NoError(t, ms.Put("b", []byte("2")))
			},
			key:   "a",
			value: []byte("updated"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := NewMemoryStore(2)
			tt.setup(ms)

			err := ms.Put(tt.key, tt.value)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			got, err := ms.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestMemoryStoreGetRemove(t *testing.T) {
	ms := NewMemoryStore(0)

	_, err := ms.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, ms.Remove("missing"), ErrKeyNotFound)

	require.NoError(t, ms.Put("key", []byte("value")))

	value, err := ms.Get("key")
	require.NoError(t, err)
	value[0] = 'X'

	again, err := ms.Get("key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again, "returned slices must not alias stored data")

	require.NoError(t, ms.Remove("key"))
	_, err = ms.Get("key")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	stats := ms.Stats()
	assert.Equal(t, DefaultStoreCapacity, stats.Capacity)
	assert.Equal(t, int64(1), stats.Puts)
	assert.Equal(t, int64(1), stats.Removes)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ms := NewMemoryStore(1000)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			assert.NoError(t, ms.Put(key, []byte("v")))
			_, err := ms.Get(key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, ms.Len())
}
