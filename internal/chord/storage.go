package chord

import (
	"errors"

	"github.com/zde37/ringkv/pkg"
)

// KeyValueStore is the local store a node serves owned and replicated keys from.
type KeyValueStore interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Remove(key string) error
	Len() int
	Stats() pkg.Stats
}

var _ KeyValueStore = (*pkg.MemoryStore)(nil)

// statusFor maps a store error onto the response code sent to the client.
func statusFor(err error) Command {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, pkg.ErrKeyNotFound):
		return CodeNonExistentKey
	case errors.Is(err, pkg.ErrStoreFull):
		return CodeOutOfSpace
	default:
		return CodeInternalFailure
	}
}
