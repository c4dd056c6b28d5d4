package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		check func(*testing.T, int)
	}{
		{
			name: "deterministic",
			data: []byte("test"),
			check: func(t *testing.T, id int) {
				assert.Equal(t, id, HashKey([]byte("test")), "same input should produce same hash")
			},
		},
		{
			name: "string and bytes agree",
			data: []byte("some-key"),
			check: func(t *testing.T, id int) {
				assert.Equal(t, id, HashString("some-key"))
			},
		},
		{
			name: "empty data",
			data: []byte{},
			check: func(t *testing.T, id int) {
				assert.True(t, IsValidID(id))
			},
		},
		{
			name: "valid range",
			data: []byte("test"),
			check: func(t *testing.T, id int) {
				assert.GreaterOrEqual(t, id, 0)
				assert.Less(t, id, RingSize)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, HashKey(tt.data))
		})
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name      string
		x, lo, hi int
		want      bool
	}{
		{"inside plain range", 10, 5, 20, true},
		{"upper bound inclusive", 10, 5, 10, true},
		{"lower bound exclusive", 5, 5, 20, false},
		{"below plain range", 10, 0, 5, false},
		{"wrap above lo", 205, 200, 10, true},
		{"wrap below hi", 1, 20, 10, true},
		{"wrap upper bound inclusive", 10, 20, 10, true},
		{"wrap lower bound exclusive", 200, 200, 10, false},
		{"wrap gap", 15, 20, 10, false},
		{"wrap zero", 0, 200, 11, true},
		{"empty range", 7, 7, 7, false},
		{"empty range other id", 3, 7, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InRange(tt.x, tt.lo, tt.hi)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInRangeNegative(t *testing.T) {
	for _, args := range [][3]int{{-1, 0, 5}, {1, -1, 5}, {1, 0, -5}} {
		_, err := InRange(args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

// Every id lands in exactly one of the arcs cut by a set of ring points.
func TestInRangePartitionsRing(t *testing.T) {
	points := []int{3, 9, 27, 81, 200}

	for x := 0; x < 256; x++ {
		hits := 0
		for i := range points {
			lo := points[(i+len(points)-1)%len(points)]
			ok, err := InRange(x, lo, points[i])
			require.NoError(t, err)
			if ok {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "id %d", x)
	}
}
