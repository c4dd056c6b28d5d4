package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/internal/wire"
	"github.com/zde37/ringkv/pkg"
)

// Handler processes decoded datagrams. *chord.ChordNode satisfies it.
type Handler interface {
	HandleMessage(ctx context.Context, from string, msg *chord.Message)
}

// UDPServer reads datagrams from one socket and hands each to the handler on
// its own goroutine. Replies leave through the same socket via UDPClient.
type UDPServer struct {
	handler Handler
	logger  *pkg.Logger
	dropLog *pkg.Logger // sampled

	address string
	conn    *net.UDPConn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUDPServer creates a server for address. Nothing is bound until Listen or
// Start.
func NewUDPServer(address string, logger *pkg.Logger) (*UDPServer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	logger = logger.Component("udp_server")
	ctx, cancel := context.WithCancel(context.Background())
	return &UDPServer{
		address: address,
		logger:  logger,
		dropLog: logger.Sampled(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Listen binds the socket without reading from it yet, so the bound port and
// Conn are available before a handler exists. Datagrams queue in the socket.
func (s *UDPServer) Listen() error {
	if s.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", s.address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.conn = conn
	return nil
}

// Start binds the socket if Listen has not and hands every datagram to handler.
func (s *UDPServer) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if s.handler != nil {
		return fmt.Errorf("server already started")
	}
	if err := s.Listen(); err != nil {
		return err
	}
	s.handler = handler

	s.logger.Info().
		Str("address", s.conn.LocalAddr().String()).
		Msg("Starting UDP server")

	s.wg.Add(1)
	go s.serve()

	return nil
}

// Addr returns the bound address, which differs from the configured one when
// port 0 was requested.
func (s *UDPServer) Addr() string {
	if s.conn == nil {
		return s.address
	}
	return s.conn.LocalAddr().String()
}

// Port returns the bound port, or 0 before Listen.
func (s *UDPServer) Port() int {
	if s.conn == nil {
		return 0
	}
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Conn exposes the bound socket so outgoing messages share the node's port.
func (s *UDPServer) Conn() *net.UDPConn {
	return s.conn
}

func (s *UDPServer) serve() {
	defer s.wg.Done()

	buf := make([]byte, wire.MaxDatagramSize+1)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("Read failed")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		s.wg.Add(1)
		go s.handle(data, from)
	}
}

func (s *UDPServer) handle(data []byte, from *net.UDPAddr) {
	defer s.wg.Done()

	msg, err := wire.Decode(data)
	if err != nil {
		s.dropLog.Debug().
			Err(err).
			Stringer("from", from).
			Int("bytes", len(data)).
			Msg("Dropping undecodable datagram")
		if msg != nil {
			s.reply(msg.Reply(wire.ErrorCode(err)), from)
		}
		return
	}

	s.handler.HandleMessage(s.ctx, from.String(), msg)
}

func (s *UDPServer) reply(msg *chord.Message, to *net.UDPAddr) {
	data, err := wire.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error reply")
		return
	}
	if _, err := s.conn.WriteToUDP(data, to); err != nil {
		s.logger.Debug().Err(err).Stringer("to", to).Msg("Failed to send error reply")
	}
}

// Stop closes the socket and waits for in-flight handlers.
func (s *UDPServer) Stop() error {
	s.logger.Info().Msg("Stopping UDP server")

	s.cancel()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.wg.Wait()

	return err
}
