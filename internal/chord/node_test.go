package chord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/ringkv/internal/config"
	"github.com/zde37/ringkv/pkg"
)

var errProbeTimeout = errors.New("probe timed out")

type sentMessage struct {
	addr string
	msg  *Message
}

// mockTransport records outbound traffic and answers requests through respond.
type mockTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	requests []sentMessage
	timeouts []time.Duration
	dials    int
	respond  func(addr string, msg *Message) (*Message, error)
}

func (m *mockTransport) Send(_ context.Context, addr string, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{addr: addr, msg: msg.Clone()})
	return nil
}

func (m *mockTransport) Request(_ context.Context, addr string, msg *Message, timeout time.Duration) (*Message, error) {
	m.mu.Lock()
	m.requests = append(m.requests, sentMessage{addr: addr, msg: msg.Clone()})
	m.timeouts = append(m.timeouts, timeout)
	respond := m.respond
	m.mu.Unlock()

	if respond == nil {
		return nil, errProbeTimeout
	}
	return respond(addr, msg)
}

func (m *mockTransport) Dial(_ context.Context, addr string, msg *Message) (Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials++
	return &mockExchange{transport: m, addr: addr, msg: msg.Clone()}, nil
}

func (m *mockTransport) Dials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials
}

// mockExchange records each attempt as a request of its transport.
type mockExchange struct {
	transport *mockTransport
	addr      string
	msg       *Message
}

func (e *mockExchange) Attempt(ctx context.Context, timeout time.Duration) (*Message, error) {
	return e.transport.Request(ctx, e.addr, e.msg, timeout)
}

func (e *mockExchange) Close() error {
	return nil
}

func (m *mockTransport) setRespond(fn func(addr string, msg *Message) (*Message, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.respond = fn
}

func (m *mockTransport) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockTransport) Requests() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.requests...)
}

func (m *mockTransport) Timeouts() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timeouts...)
}

func (m *mockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent, m.requests, m.timeouts, m.dials = nil, nil, nil, 0
}

func testConfig(id int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.NodeID = id
	cfg.Host = "127.0.0.1"
	cfg.Port = 9000 + id
	cfg.ProbeTimeout = 10 * time.Millisecond
	cfg.PredecessorCheckInterval = time.Hour
	cfg.SuccessorCheckInterval = time.Hour
	return cfg
}

// createTestNode builds a node whose identity matches the n(id) helper.
func createTestNode(t *testing.T, id int) (*ChordNode, *mockTransport) {
	t.Helper()
	return createTestNodeWithConfig(t, testConfig(id))
}

func createTestNodeWithConfig(t *testing.T, cfg *config.Config) (*ChordNode, *mockTransport) {
	t.Helper()

	node, err := NewChordNode(cfg, pkg.Nop())
	require.NoError(t, err)
	require.NotNil(t, node)

	transport := &mockTransport{}
	node.SetTransport(transport)
	t.Cleanup(func() { _ = node.Shutdown() })

	return node, transport
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []RingUpdateEvent
}

func (b *recordingBroadcaster) BroadcastRingUpdate(update any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, update.(RingUpdateEvent))
	return nil
}

func (b *recordingBroadcaster) Events() []RingUpdateEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RingUpdateEvent(nil), b.events...)
}

func TestNewChordNode(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		node, _ := createTestNode(t, 10)

		assert.Equal(t, n(10), node.Self())
		assert.False(t, node.HasJoined())
		assert.False(t, node.IsShutdown())
		assert.Equal(t, 0, node.Store().Len())
	})

	t.Run("nil config", func(t *testing.T) {
		node, err := NewChordNode(nil, pkg.Nop())
		assert.Error(t, err)
		assert.Nil(t, node)
		assert.Contains(t, err.Error(), "config cannot be nil")
	})

	t.Run("nil logger", func(t *testing.T) {
		node, err := NewChordNode(testConfig(1), nil)
		assert.Error(t, err)
		assert.Nil(t, node)
		assert.Contains(t, err.Error(), "logger cannot be nil")
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.Port = -1

		node, err := NewChordNode(cfg, pkg.Nop())
		assert.Error(t, err)
		assert.Nil(t, node)
		assert.Contains(t, err.Error(), "invalid config")
	})

	t.Run("unbound port", func(t *testing.T) {
		cfg := testConfig(1)
		cfg.Port = 0

		node, err := NewChordNode(cfg, pkg.Nop())
		assert.Error(t, err)
		assert.Nil(t, node)
	})
}

func TestChordNodeStartAndShutdown(t *testing.T) {
	node, err := NewChordNode(testConfig(3), pkg.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, node.Start(), ErrNoTransport)

	node.SetTransport(&mockTransport{})
	require.NoError(t, node.Start())
	assert.Error(t, node.Start(), "second start is rejected")

	require.NoError(t, node.Shutdown())
	assert.True(t, node.IsShutdown())
	assert.NoError(t, node.Shutdown(), "shutdown is idempotent")
}

func TestHandleMessageWithoutTransport(t *testing.T) {
	node, err := NewChordNode(testConfig(10), pkg.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Shutdown() })
	ctx := context.Background()

	assert.NotPanics(t, func() {
		node.HandleMessage(ctx, "10.0.0.9:1", &Message{ID: NewRequestID(), Command: CmdPredAlive})
		node.HandleMessage(ctx, "10.0.0.9:1", kvRequest(CmdPut, []byte("k"), []byte("v")))
	})
	assert.Equal(t, 1, node.Store().Len(), "requests are still served")

	_, err = node.probe(ctx, n(20), CmdSuccAlive, CodeSuccAliveReply)
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestHandleMessageLiveness(t *testing.T) {
	node, transport := createTestNode(t, 10)
	node.View().SetSuccessorList(nodes(20, 30))
	node.View().SetPredecessor(n(5))
	ctx := context.Background()

	req := &Message{ID: NewRequestID(), Command: CmdPredAlive}
	node.HandleMessage(ctx, "10.0.0.9:1", req)

	req2 := &Message{ID: NewRequestID(), Command: CmdSuccAlive}
	node.HandleMessage(ctx, "10.0.0.9:2", req2)

	req3 := &Message{ID: NewRequestID(), Command: CmdNodeList}
	node.HandleMessage(ctx, "10.0.0.9:3", req3)

	sent := transport.Sent()
	require.Len(t, sent, 3)

	assert.Equal(t, "10.0.0.9:1", sent[0].addr)
	assert.Equal(t, CodePredAliveReply, sent[0].msg.Command)
	assert.Equal(t, req.ID, sent[0].msg.ID)

	assert.Equal(t, "10.0.0.9:2", sent[1].addr)
	assert.Equal(t, CodeSuccAliveReply, sent[1].msg.Command)
	assert.Equal(t, nodes(5, 10, 20, 30), sent[1].msg.Nodes)

	assert.Equal(t, CodeNodeListResponse, sent[2].msg.Command)
	assert.Equal(t, nodes(5, 10, 20, 30), sent[2].msg.Nodes)
}

func TestHandleMessageNodeListWithoutPredecessor(t *testing.T) {
	node, transport := createTestNode(t, 10)
	node.View().SetSuccessorList(nodes(20))

	node.HandleMessage(context.Background(), "c:1", &Message{ID: NewRequestID(), Command: CmdSuccAlive})

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []Node{NoNode, n(10), n(20)}, sent[0].msg.Nodes)
}

func TestHandleMessageShutdown(t *testing.T) {
	node, transport := createTestNode(t, 10)

	node.HandleMessage(context.Background(), "c:1", &Message{ID: NewRequestID(), Command: CmdShutdown})
	node.HandleMessage(context.Background(), "c:1", &Message{ID: NewRequestID(), Command: CmdShutdown})

	select {
	case <-node.ShutdownRequested():
	default:
		t.Fatal("shutdown was not signalled")
	}

	sent := transport.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, CodeSuccess, sent[0].msg.Command)
}

func TestHandleMessageUnrecognized(t *testing.T) {
	node, transport := createTestNode(t, 10)

	node.HandleMessage(context.Background(), "c:1", &Message{ID: NewRequestID(), Command: Command(0x7F)})
	node.HandleMessage(context.Background(), "c:1", nil)

	sent := transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, CodeUnrecognizedCommand, sent[0].msg.Command)
}

func TestHandleMessageIgnoresStrayReplies(t *testing.T) {
	node, transport := createTestNode(t, 10)

	for _, code := range []Command{CodeSuccess, CodeUnrecognizedCommand, CodePredAliveReply, CodeNodeListResponse} {
		node.HandleMessage(context.Background(), "10.0.0.2:9000", &Message{ID: NewRequestID(), Command: code})
	}

	assert.Empty(t, transport.Sent())
}

func TestChordNodeStatus(t *testing.T) {
	node, _ := createTestNode(t, 10)
	node.View().SetSuccessorList(nodes(20))
	require.NoError(t, node.Store().Put("k", []byte("v")))

	status := node.Status()
	assert.Equal(t, n(10), status.Self)
	assert.Nil(t, status.Predecessor)
	assert.Equal(t, nodes(20), status.Successors)
	assert.False(t, status.Joined)
	assert.Equal(t, 1, status.Keys)
	assert.Equal(t, 1, status.Store.Entries)
	assert.Equal(t, int64(1), status.Store.Puts)
	assert.Equal(t, config.DefaultConfig().StoreCapacity, status.Store.Capacity)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "JOIN", CmdJoin.String())
	assert.Equal(t, "CLIENT_FWD_RESPONSE", CodeClientForwardResponse.String())
	assert.Equal(t, "0x01", CmdPut.String())
}
