package pkg

import "errors"

var (
	// ErrKeyNotFound is returned when a key doesn't exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrStoreFull is returned when the store has reached its capacity
	ErrStoreFull = errors.New("store is full")

	// ErrInvalidFormat is returned for empty keys or values
	ErrInvalidFormat = errors.New("invalid key or value format")
)
