package chord

import (
	"context"
	"time"
)

// Transport defines how a ChordNode reaches other nodes and clients.
// This interface allows the ChordNode to send datagrams without directly
// depending on the transport layer, avoiding circular dependencies.
type Transport interface {
	// Send delivers msg to addr without waiting for a reply.
	Send(ctx context.Context, addr string, msg *Message) error

	// Request sends msg to addr and waits up to timeout for a reply
	// carrying the same request ID.
	Request(ctx context.Context, addr string, msg *Message, timeout time.Duration) (*Message, error)

	// Dial prepares an exchange that can send msg to addr several times over
	// one socket.
	Dial(ctx context.Context, addr string, msg *Message) (Exchange, error)
}

// Exchange is one request retried over a single socket. A reply to any
// earlier attempt is accepted by a later one.
type Exchange interface {
	// Attempt sends the request and waits up to timeout for a reply.
	Attempt(ctx context.Context, timeout time.Duration) (*Message, error)
	Close() error
}
