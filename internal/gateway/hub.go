// Package gateway relays finished backtest reports to WebSocket clients.
//
// Reports arrive either from Redis PubSub (PubSubRouter) or directly from an
// in-process runner (Hub implements backtest.Sink). Each is wrapped in a
// sequenced envelope, kept in a per-channel report log and fanned out to
// the clients subscribed to its symbol.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market-analyzer/internal/backtest"
	"market-analyzer/internal/metrics"
	"market-analyzer/internal/store/redis"
)

const (
	clientSendBuffer = 256
	replayCapacity   = 200
)

// Hub manages WebSocket clients and report fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel recent envelopes for gap backfill
	reports map[string]*reportLog

	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	Broadcaster *Broadcaster
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		reports:     make(map[string]*reportLog),
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Record implements backtest.Sink for in-process delivery.
func (h *Hub) Record(_ context.Context, rep *backtest.Report) error {
	h.Broadcaster.Broadcast(redis.ReportChannel(rep.Symbol), rep.JSON())
	return nil
}

// ServeWS upgrades the request to a WebSocket and registers the client.
// An optional last_ts query parameter (RFC3339Nano) limits the initial
// state to reports newer than the client's last seen one.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}
	h.register(conn, r.URL.Query().Get("last_ts"))
}

func (h *Hub) register(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}

	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(count))
	}
}

// GetLatestAll returns a snapshot of the latest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetReplayRange returns buffered envelopes for a channel with channel_seq
// in [fromSeq, toSeq]. A non-empty runID restricts them to that run.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64, runID string) [][]byte {
	h.mu.RLock()
	rl, exists := h.reports[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rl.between(fromSeq, toSeq, runID)
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
