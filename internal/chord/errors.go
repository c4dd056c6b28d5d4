package chord

import (
	"errors"

	"github.com/zde37/ringkv/pkg/hash"
)

var (
	// ErrInvalidArgument is returned when a negative identifier reaches a routing decision.
	ErrInvalidArgument = hash.ErrInvalidArgument

	// ErrInvalidState is returned when the ring view violates a routing precondition,
	// such as a known predecessor with an empty successor list.
	ErrInvalidState = errors.New("invalid ring view state")

	// ErrNoTransport is returned when the node has to reach a peer before
	// SetTransport was called.
	ErrNoTransport = errors.New("transport not set")

	// ErrUnexpectedReply is returned when a probe is answered with the wrong code.
	ErrUnexpectedReply = errors.New("unexpected reply")
)
