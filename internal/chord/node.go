package chord

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zde37/ringkv/internal/config"
	"github.com/zde37/ringkv/internal/dedup"
	"github.com/zde37/ringkv/pkg"
)

// ChordNode represents a node in the ring: its view, local store and the
// background tasks that keep the view current.
type ChordNode struct {
	self   Node
	config *config.Config
	logger *pkg.Logger

	view    *RingView
	removed *RemovedNodes
	seen    *dedup.Cache[RequestID]
	store   KeyValueStore

	transport   Transport
	transportMu sync.RWMutex

	broadcaster   RingUpdateBroadcaster
	broadcasterMu sync.RWMutex

	// hasJoined flips once the node is part of a ring, either through JOIN-OK
	// or by admitting another node. admittedBefore guards first-admission handling.
	hasJoined      atomic.Bool
	admittedBefore atomic.Bool

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	shutdown atomic.Bool

	shutdownRequested chan struct{}
	shutdownOnce      sync.Once
}

// NewChordNode creates a node listening as host:port with the configured or
// hostname-derived ID. The node does nothing until a transport is set and
// Start is called.
func NewChordNode(cfg *config.Config, logger *pkg.Logger) (*ChordNode, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("node needs a bound port, got 0")
	}

	id, err := cfg.ResolveNodeID()
	if err != nil {
		return nil, err
	}
	self := NewNode(cfg.Host, cfg.Port, id)

	removed := NewRemovedNodes(cfg.SuppressionCapacity, cfg.SuppressionWindow)
	ctx, cancel := context.WithCancel(context.Background())

	node := &ChordNode{
		self:              self,
		config:            cfg,
		logger:            logger.WithFields(pkg.Fields{"node_id": id}),
		view:              NewRingView(self, cfg.MaxSuccessors, removed),
		removed:           removed,
		seen:              dedup.New[RequestID](cfg.DedupCapacity, cfg.DedupWindow),
		store:             pkg.NewMemoryStore(cfg.StoreCapacity),
		ctx:               ctx,
		cancel:            cancel,
		shutdownRequested: make(chan struct{}),
	}

	node.logger.Info().
		Str("addr", self.Address()).
		Int("id", id).
		Str("contact", cfg.Contact).
		Msg("ChordNode created")

	return node, nil
}

// Self returns this node's identity.
func (n *ChordNode) Self() Node {
	return n.self
}

// View returns the node's ring view.
func (n *ChordNode) View() *RingView {
	return n.view
}

// Store returns the local key-value store.
func (n *ChordNode) Store() KeyValueStore {
	return n.store
}

// HasJoined reports whether the node is part of a ring.
func (n *ChordNode) HasJoined() bool {
	return n.hasJoined.Load()
}

// SetTransport sets how the node reaches peers and clients. Datagrams handled
// before a transport is set are processed but their replies are dropped.
func (n *ChordNode) SetTransport(t Transport) {
	n.transportMu.Lock()
	defer n.transportMu.Unlock()
	n.transport = t
}

func (n *ChordNode) peer() Transport {
	n.transportMu.RLock()
	defer n.transportMu.RUnlock()
	return n.transport
}

// Start launches the join initiator (when a contact is configured) and the
// liveness loops. A node without a contact waits to be joined by others.
func (n *ChordNode) Start() error {
	if n.peer() == nil {
		return ErrNoTransport
	}
	if !n.started.CompareAndSwap(false, true) {
		return fmt.Errorf("node already started")
	}

	if n.config.Contact != "" {
		n.wg.Add(1)
		go n.joinLoop(n.config.Contact)
	} else {
		n.logger.Info().Msg("No contact configured, waiting for nodes to join")
	}

	n.wg.Add(2)
	go n.runEvery(n.config.PredecessorCheckInterval, "predecessor check", n.checkPredecessor)
	go n.runEvery(n.config.SuccessorCheckInterval, "successor check", n.checkSuccessor)

	return nil
}

// runEvery calls fn on every tick once the node has joined, until shutdown.
func (n *ChordNode) runEvery(interval time.Duration, name string, fn func(context.Context)) {
	defer n.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			n.logger.Debug().Str("task", name).Msg("Background task stopped")
			return
		case <-ticker.C:
			if n.hasJoined.Load() {
				fn(n.ctx)
			}
		}
	}
}

// ShutdownRequested is closed when a SHUTDOWN command has been acknowledged.
func (n *ChordNode) ShutdownRequested() <-chan struct{} {
	return n.shutdownRequested
}

// Shutdown stops background tasks and waits for them to exit.
func (n *ChordNode) Shutdown() error {
	if !n.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	n.logger.Info().Msg("Shutting down ChordNode")
	n.cancel()
	n.wg.Wait()
	n.logger.Info().Msg("ChordNode shutdown complete")
	return nil
}

// IsShutdown returns true if the node has been shut down.
func (n *ChordNode) IsShutdown() bool {
	return n.shutdown.Load()
}

// Status summarises the node for the HTTP API.
type Status struct {
	Snapshot
	Joined bool      `json:"joined"`
	Keys   int       `json:"keys"`
	Store  pkg.Stats `json:"store"`
}

// Status returns a consistent view snapshot plus join state.
func (n *ChordNode) Status() Status {
	stats := n.store.Stats()
	return Status{
		Snapshot: n.view.Snapshot(),
		Joined:   n.hasJoined.Load(),
		Keys:     stats.Entries,
		Store:    stats,
	}
}

// send delivers msg, logging instead of failing: every outbound datagram is best effort.
func (n *ChordNode) send(ctx context.Context, addr string, msg *Message) {
	if addr == "" {
		return
	}
	transport := n.peer()
	if transport == nil {
		n.logger.Warn().
			Str("to", addr).
			Stringer("command", msg.Command).
			Msg("No transport, message dropped")
		return
	}
	if err := transport.Send(ctx, addr, msg); err != nil {
		n.logger.Debug().
			Err(err).
			Str("to", addr).
			Stringer("command", msg.Command).
			Str("request_id", msg.ID.String()).
			Msg("Send failed")
	}
}
