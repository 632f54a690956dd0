package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market-analyzer/internal/store/redis"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed symbols; empty means all.
	subMu sync.RWMutex
	subs  map[string]bool
}

// controlMsg is any client → server message.
type controlMsg struct {
	Type    string   `json:"type"` // SUBSCRIBE | UNSUBSCRIBE | PING
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"symbol":      redis.SymbolFromChannel(channel),
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var ctl controlMsg
		if err := json.Unmarshal(msg, &ctl); err != nil {
			c.sendJSON(map[string]string{"type": "ERROR", "error": "invalid message: " + err.Error()})
			continue
		}

		switch strings.ToUpper(ctl.Type) {
		case "SUBSCRIBE":
			c.subscribe(ctl.Symbols)
			c.sendJSON(map[string]interface{}{"type": "SUBSCRIBED", "symbols": c.symbols()})
		case "UNSUBSCRIBE":
			c.unsubscribe(ctl.Symbols)
			c.sendJSON(map[string]interface{}{"type": "SUBSCRIBED", "symbols": c.symbols()})
		case "PING":
			c.sendJSON(map[string]interface{}{
				"type":      "PONG",
				"ping":      ctl.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
		default:
			c.sendJSON(map[string]string{"type": "ERROR", "error": "unknown type " + ctl.Type})
		}
	}
}

// sendJSON queues v without blocking; a full queue drops the message.
func (c *Client) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			c.subs[s] = true
		}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.subs, strings.TrimSpace(s))
	}
}

func (c *Client) symbols() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

// matchesChannel reports whether the client should receive a message on channel.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	symbol := redis.SymbolFromChannel(channel)
	if symbol == "" {
		return true // non-report channel, always deliver
	}
	return c.subs[symbol]
}
