package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/internal/wire"
	"github.com/zde37/ringkv/pkg"
)

// ErrTimeout is returned by Request when no matching reply arrives in time.
var ErrTimeout = errors.New("request timed out")

// UDPClient implements chord.Transport over UDP.
type UDPClient struct {
	conn   *net.UDPConn
	logger *pkg.Logger
}

var _ chord.Transport = (*UDPClient)(nil)

// NewUDPClient creates a client. Fire-and-forget messages go out through conn
// so peers see the node's listening address as the sender; a nil conn makes
// Send use a throwaway socket instead.
func NewUDPClient(conn *net.UDPConn, logger *pkg.Logger) *UDPClient {
	if logger == nil {
		logger = pkg.Nop()
	}
	return &UDPClient{
		conn:   conn,
		logger: logger.Component("udp_client"),
	}
}

// Send encodes msg and writes it to addr without waiting for an answer.
func (c *UDPClient) Send(ctx context.Context, addr string, msg *chord.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn := c.conn
	if conn == nil {
		conn, err = net.ListenUDP("udp", nil)
		if err != nil {
			return fmt.Errorf("failed to open socket: %w", err)
		}
		defer conn.Close()
	}

	if _, err := conn.WriteToUDP(data, to); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg.Command, addr, err)
	}

	c.logger.Trace().
		Str("to", addr).
		Stringer("command", msg.Command).
		Stringer("request_id", msg.ID).
		Msg("Sent")
	return nil
}

// Request sends msg from a fresh socket and waits for the first reply carrying
// the same request ID. The reply may come from any address, because forwarded
// requests are answered by whichever node handles them.
func (c *UDPClient) Request(ctx context.Context, addr string, msg *chord.Message, timeout time.Duration) (*chord.Message, error) {
	exchange, err := c.Dial(ctx, addr, msg)
	if err != nil {
		return nil, err
	}
	defer exchange.Close()

	return exchange.Attempt(ctx, timeout)
}

// Dial opens the socket every attempt of msg is sent from and read on.
func (c *UDPClient) Dial(ctx context.Context, addr string, msg *chord.Message) (chord.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := wire.Encode(msg)
	if err != nil {
		return nil, err
	}
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}

	return &udpExchange{
		conn:    conn,
		to:      to,
		addr:    addr,
		data:    data,
		command: msg.Command,
		id:      msg.ID,
		logger:  c.logger,
	}, nil
}

// udpExchange keeps its socket open across attempts so replies to earlier
// attempts are still read.
type udpExchange struct {
	conn    *net.UDPConn
	to      *net.UDPAddr
	addr    string
	data    []byte
	command chord.Command
	id      chord.RequestID
	logger  *pkg.Logger

	buf []byte
}

var _ chord.Exchange = (*udpExchange)(nil)

func (e *udpExchange) Attempt(ctx context.Context, timeout time.Duration) (*chord.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := e.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read when ctx ends before the deadline.
	stop := context.AfterFunc(ctx, func() {
		e.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := e.conn.WriteToUDP(e.data, e.to); err != nil {
		return nil, fmt.Errorf("failed to send %s to %s: %w", e.command, e.addr, err)
	}

	if e.buf == nil {
		e.buf = make([]byte, wire.MaxDatagramSize+1)
	}
	for {
		n, from, err := e.conn.ReadFromUDP(e.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s to %s after %s", ErrTimeout, e.command, e.addr, timeout)
			}
			return nil, err
		}

		reply, err := wire.Decode(e.buf[:n])
		if err != nil {
			e.logger.Debug().Err(err).Stringer("from", from).Msg("Ignoring undecodable reply")
			continue
		}
		if reply.ID != e.id {
			e.logger.Debug().
				Stringer("from", from).
				Stringer("request_id", reply.ID).
				Msg("Ignoring reply to another request")
			continue
		}
		return reply, nil
	}
}

func (e *udpExchange) Close() error {
	return e.conn.Close()
}
