package chord

import "time"

// Ring update event types
const (
	EventNodeJoin      = "node_join"
	EventNodeLeave     = "node_leave"
	EventStabilization = "stabilization"
)

// RingUpdateBroadcaster is an interface for broadcasting ring updates.
// This allows the ChordNode to notify external systems (like WebSocket clients)
// when its view of the ring changes without creating circular dependencies.
type RingUpdateBroadcaster interface {
	BroadcastRingUpdate(update any) error
}

// RingUpdateEvent represents a change in a node's ring view.
type RingUpdateEvent struct {
	Type      string `json:"type"`    // "node_join", "node_leave", "stabilization"
	NodeID    int    `json:"node_id"` // node reporting the change
	Peer      *Node  `json:"peer,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// SetBroadcaster registers where ring updates are published. Passing nil disables publishing.
func (n *ChordNode) SetBroadcaster(b RingUpdateBroadcaster) {
	n.broadcasterMu.Lock()
	defer n.broadcasterMu.Unlock()
	n.broadcaster = b
}

func (n *ChordNode) publish(eventType string, peer Node, message string) {
	n.broadcasterMu.RLock()
	b := n.broadcaster
	n.broadcasterMu.RUnlock()

	if b == nil {
		return
	}

	event := RingUpdateEvent{
		Type:      eventType,
		NodeID:    n.self.ID,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	if !peer.IsNone() {
		p := peer
		event.Peer = &p
	}
	if err := b.BroadcastRingUpdate(event); err != nil {
		n.logger.Debug().Err(err).Str("event", eventType).Msg("Failed to broadcast ring update")
	}
}
