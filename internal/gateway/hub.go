package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"chart-indicators/internal/model"

	"github.com/gorilla/websocket"
)

const (
	defaultSendBuffer = 256
	defaultReplayCap  = 500
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// channelMeta identifies the series a channel carries, for client filters.
type channelMeta struct {
	Key  string // "exchange:token"
	Name string // indicator name, e.g. "VWAP_daily"
	TF   int
}

type latestEntry struct {
	meta    channelMeta
	channel string
	data    []byte // result JSON
	seq     int64  // per-channel seq
}

// Hub fans indicator results out to chart WebSocket clients. Confirmed
// results are numbered per channel and kept in a replay buffer so clients
// can detect and fill gaps; the latest confirmed value of every channel is
// sent to clients when they subscribe.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	seq         int64

	// Latency tracks bar-close to broadcast latency for confirmed results.
	Latency *LatencyTracker

	// OnClients observes the connected client count.
	OnClients func(n int)
	// OnDrop is called for every message dropped because a client's send
	// buffer was full.
	OnDrop func()

	sendBuffer int
	replayCap  int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		sendBuffer:  defaultSendBuffer,
		replayCap:   defaultReplayCap,
	}
}

func metaOf(r *model.IndicatorResult) channelMeta {
	return channelMeta{Key: r.Key(), Name: r.Name, TF: r.TF}
}

// Publish broadcasts a batch of results. Results that are neither ready nor
// live carry no values and are skipped.
func (h *Hub) Publish(results []model.IndicatorResult) {
	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		if !r.Ready && !r.Live {
			continue
		}
		if r.Live {
			h.broadcastLive(r, now)
			continue
		}
		h.broadcastConfirmed(r, now)
		if h.Latency != nil {
			closeTime := r.TS.Add(time.Duration(r.TF) * time.Second)
			if lag := now.Sub(closeTime); lag >= 0 && lag <= time.Minute {
				h.Latency.Record(float64(lag.Microseconds()) / 1000.0)
			}
		}
	}
}

// Seed stores confirmed results as latest values without broadcasting,
// so clients connecting after a restart get current values.
func (h *Hub) Seed(results []model.IndicatorResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range results {
		r := &results[i]
		if !r.Ready || r.Live {
			continue
		}
		channel := r.PubSubChannel()
		if cur, ok := h.latest[channel]; ok && cur.seq > 0 {
			continue
		}
		h.latest[channel] = latestEntry{meta: metaOf(r), channel: channel, data: r.JSON()}
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
// Optional query parameters tokens, indicators and tfs (comma separated)
// set the initial filters; no_live=1 suppresses live previews.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade error: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	q := r.URL.Query()
	c := &Client{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		hub:  h,
		filters: ClientFilters{
			Tokens:     splitList(q.Get("tokens")),
			Indicators: splitList(q.Get("indicators")),
			TFs:        parseTFList(q.Get("tfs")),
			NoLive:     q.Get("no_live") == "1",
		},
	}

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.OnClients != nil {
		h.OnClients(count)
	}
	log.Printf("[gateway] ws client connected (%d total)", count)

	c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

// RemoveClient unregisters a client and closes its send channel.
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

	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// StatsHandler serves client and latency statistics as JSON.
func (h *Hub) StatsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		clients, channels := len(h.clients), len(h.latest)
		h.mu.RUnlock()

		var p50, p95, p99 float64
		if h.Latency != nil {
			p50, p95, p99 = h.Latency.Percentiles()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"clients":        clients,
			"channels":       channels,
			"latency_p50_ms": p50,
			"latency_p95_ms": p95,
			"latency_p99_ms": p99,
		})
	})
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseTFList(s string) []int {
	var out []int
	for _, p := range splitList(s) {
		if n, err := strconv.Atoi(strings.TrimSuffix(p, "s")); err == nil && n > 0 {
			out = append(out, n)
		}
	}
	return out
}
