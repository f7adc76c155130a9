package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single chart WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	filters ClientFilters
}

// ClientFilters selects the series a client receives. An empty list
// matches everything.
type ClientFilters struct {
	Tokens     []string `json:"tokens"`     // "exchange:token" or bare token
	Indicators []string `json:"indicators"` // indicator names, e.g. "HA_35_weighted_valcu"
	TFs        []int    `json:"tfs"`
	NoLive     bool     `json:"no_live"` // suppress previews from forming bars
}

func (f *ClientFilters) matches(meta channelMeta, live bool) bool {
	if live && f.NoLive {
		return false
	}
	if len(f.TFs) > 0 && !containsInt(f.TFs, meta.TF) {
		return false
	}
	if len(f.Indicators) > 0 && !containsString(f.Indicators, meta.Name) {
		return false
	}
	if len(f.Tokens) == 0 {
		return true
	}
	for _, t := range f.Tokens {
		if t == meta.Key || strings.HasSuffix(meta.Key, ":"+t) {
			return true
		}
	}
	return false
}

func (c *Client) matches(meta channelMeta, live bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filters.matches(meta, live)
}

// clientMsg is any client → server message.
type clientMsg struct {
	Type string `json:"type"` // SUBSCRIBE, REPLAY, PING
	ClientFilters
	Channel string `json:"channel"`
	FromSeq int64  `json:"from_seq"`
	Ping    int64  `json:"ping"`
}

// sendInitialState queues the latest confirmed value of every matching
// channel. Must run before writePump drains or from the read goroutine.
func (c *Client) sendInitialState() {
	now := time.Now().UTC()

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, e := range c.hub.latest {
		if !c.matches(e.meta, false) {
			continue
		}
		env := buildEnvelope(msgInitial, channel, e.data, now, c.hub.seq, e.seq)
		select {
		case c.send <- env:
		default:
			return
		}
	}
}

func (c *Client) queue(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[gateway] json marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
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

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
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
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.queue(map[string]string{"type": "error", "error": "invalid JSON"})
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.mu.Lock()
			c.filters = msg.ClientFilters
			c.mu.Unlock()
			c.queue(map[string]interface{}{"type": "subscribed", "filters": msg.ClientFilters})
			c.sendInitialState()

		case "REPLAY":
			if msg.Channel == "" {
				c.queue(map[string]string{"type": "error", "error": "channel is required"})
				continue
			}
			to := c.hub.GetChannelSeq(msg.Channel)
			for _, env := range c.hub.GetReplayRange(msg.Channel, msg.FromSeq, to) {
				select {
				case c.send <- env:
				default:
				}
			}

		default:
			if msg.Ping > 0 || msg.Type == "PING" {
				c.queue(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				continue
			}
			c.queue(map[string]string{"type": "error", "error": "unknown message type " + msg.Type})
		}
	}
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
