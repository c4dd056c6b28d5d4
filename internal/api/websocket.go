package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zde37/ringkv/internal/chord"
	"github.com/zde37/ringkv/pkg"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512

	// Events buffered per subscriber before it counts as slow
	subscriberBuffer = 256
)

// EventSnapshot is the type of the first event every subscriber receives.
const EventSnapshot = "snapshot"

// SnapshotEvent carries the node's view at subscription time.
type SnapshotEvent struct {
	Type      string       `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Status    chord.Status `json:"status"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriber is one WebSocket connection receiving ring events. Each event
// is written as its own text frame.
type subscriber struct {
	conn   *websocket.Conn
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// WebSocketHub streams ring update events to WebSocket subscribers. Slow
// subscribers are disconnected instead of slowing the node down.
type WebSocketHub struct {
	status func() chord.Status

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	closed      bool

	wg     sync.WaitGroup
	logger *pkg.Logger
}

var _ chord.RingUpdateBroadcaster = (*WebSocketHub)(nil)

// NewWebSocketHub creates a hub. status, when non-nil, provides the snapshot
// sent to each new subscriber.
func NewWebSocketHub(status func() chord.Status, logger *pkg.Logger) *WebSocketHub {
	return &WebSocketHub{
		status:      status,
		subscribers: make(map[*subscriber]struct{}),
		logger:      logger.Component("websocket_hub"),
	}
}

// HandleWebSocket upgrades the request and subscribes the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to websocket")
		return
	}

	sub := &subscriber{
		conn:   conn,
		events: make(chan []byte, subscriberBuffer),
		done:   make(chan struct{}),
	}
	if snapshot := h.snapshot(); snapshot != nil {
		sub.events <- snapshot
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.subscribers[sub] = struct{}{}
	total := len(h.subscribers)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Int("subscribers", total).
		Msg("Subscriber connected")

	go h.writeLoop(sub)
	go h.readLoop(sub)
}

func (h *WebSocketHub) snapshot() []byte {
	if h.status == nil {
		return nil
	}
	data, err := json.Marshal(SnapshotEvent{
		Type:      EventSnapshot,
		Timestamp: time.Now().Unix(),
		Status:    h.status(),
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode snapshot")
		return nil
	}
	return data
}

func (h *WebSocketHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	total := len(h.subscribers)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.Info().Int("subscribers", total).Msg("Subscriber disconnected")
	}
}

// readLoop consumes control frames so pongs and close frames are seen.
func (h *WebSocketHub) readLoop(sub *subscriber) {
	defer h.wg.Done()
	defer h.unsubscribe(sub)

	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
	}
}

// writeLoop is the only writer on the connection and closes it on exit,
// which also ends readLoop.
func (h *WebSocketHub) writeLoop(sub *subscriber) {
	defer h.wg.Done()
	defer sub.conn.Close()
	defer h.unsubscribe(sub)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-sub.done:
			sub.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return

		case event := <-sub.events:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, event); err != nil {
				return
			}

		case <-ping.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// BroadcastRingUpdate queues update for every subscriber without blocking.
func (h *WebSocketHub) BroadcastRingUpdate(update any) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	var slow []*subscriber
	h.mu.Lock()
	for sub := range h.subscribers {
		select {
		case sub.events <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range slow {
		h.logger.Warn().Msg("Subscriber too slow, disconnecting")
		h.unsubscribe(sub)
	}
	return nil
}

// Subscribers returns the number of connected subscribers.
func (h *WebSocketHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Stop disconnects every subscriber, refuses new ones and waits for their
// goroutines to exit.
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		h.unsubscribe(sub)
	}
	h.wg.Wait()
}
