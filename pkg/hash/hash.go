package hash

import (
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

const (
	// M is the size of the identifier space in bits.
	M = 24

	// RingSize is 2^M, the number of identifiers on the ring.
	RingSize = 1 << M
)

var (
	// ErrInvalidArgument is returned when a negative identifier reaches a ring computation.
	ErrInvalidArgument = errors.New("invalid ring identifier")
)

// HashKey hashes arbitrary data to an identifier in [0, RingSize).
func HashKey(data []byte) int {
	return int(xxh3.Hash(data) % RingSize)
}

// HashString hashes a string to an identifier in [0, RingSize).
func HashString(s string) int {
	return int(xxh3.HashString(s) % RingSize)
}

// InRange checks if x is in the range (lo, hi] on the ring.
// The range wraps around zero if hi < lo. lo == hi describes an empty range.
//
// Examples:
//   - InRange(10, 5, 20) = true    // 10 is in (5, 20]
//   - InRange(5, 5, 20) = false    // exclusive start
//   - InRange(20, 5, 20) = true    // inclusive end
//   - InRange(205, 200, 10) = true // wraps past zero
//   - InRange(15, 20, 10) = false
func InRange(x, lo, hi int) (bool, error) {
	if x < 0 || lo < 0 || hi < 0 {
		return false, fmt.Errorf("%w: in range check x=%d lo=%d hi=%d", ErrInvalidArgument, x, lo, hi)
	}

	switch {
	case lo < hi:
		return x > lo && x <= hi, nil
	case lo > hi:
		return x > lo || x <= hi, nil
	default:
		return false, nil
	}
}

// IsValidID checks if an ID is within the valid range [0, RingSize).
func IsValidID(id int) bool {
	return id >= 0 && id < RingSize
}
