// Package gateway serves presented indicator results over REST and
// WebSocket. The Hub keeps the latest result per symbol and fans every
// new result out to connected clients.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"rde-engine/internal/markethours"
	"rde-engine/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Hub manages WebSocket clients and result fan-out.
type Hub struct {
	log  *slog.Logger
	prom *metrics.Metrics

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	replay *ReplayBuffer
	now    func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub. prom may be nil.
func NewHub(log *slog.Logger, prom *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log.With(slog.String("component", "gateway")),
		prom:    prom,
		clients: make(map[*Client]bool),
		latest:  make(map[string]latestEntry),
		replay:  NewReplayBuffer(500),
		now:     time.Now,
	}
}

// Publish stores v as symbol's latest result and broadcasts it.
func (h *Hub) Publish(_ context.Context, symbol string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gateway publish %s: %w", symbol, err)
	}
	h.broadcast(symbol, data)
	return nil
}

// Relay broadcasts results received on a Redis PubSub subscription until
// ctx is cancelled. The symbol is taken from each payload.
func (h *Hub) Relay(ctx context.Context, ps *goredis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	h.log.Info("relaying results from redis")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			symbol := gjson.Get(msg.Payload, "symbol").String()
			if symbol == "" {
				h.log.Warn("dropping result without symbol", slog.String("channel", msg.Channel))
				continue
			}
			h.broadcast(symbol, []byte(msg.Payload))
		}
	}
}

// Latest returns symbol's latest result.
func (h *Hub) Latest(symbol string) (json.RawMessage, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[symbol]
	return e.Data, ok
}

// LatestAll returns a snapshot of every symbol's latest result.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Seq returns the sequence number of the last broadcast.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Register attaches an upgraded connection. A client that passes the last
// sequence it saw gets the missed envelopes replayed when the buffer still
// holds them, and the latest snapshot otherwise.
func (h *Hub) Register(conn *websocket.Conn, lastSeq int64) *Client {
	client := newClient(h, conn)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
	h.log.Info("ws client connected", slog.Int("clients", count))

	h.sendInitialState(client, lastSeq)
	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) sendInitialState(c *Client, lastSeq int64) {
	if lastSeq > 0 {
		if missed, ok := h.replay.After(lastSeq); ok {
			for _, env := range missed {
				c.enqueue(env)
			}
			return
		}
	}
	h.sendSnapshot(c, nil)
}

// sendSnapshot queues the latest result of each symbol, or of only the
// given symbols when the list is non-empty.
func (h *Hub) sendSnapshot(c *Client, symbols []string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(symbols) == 0 {
		for s := range h.latest {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
	}
	for _, s := range symbols {
		e, ok := h.latest[s]
		if !ok {
			continue
		}
		c.enqueue(buildEnvelope(typeResult, s, e.Data, e.TS, e.Seq, true))
	}
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

	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
	h.log.Info("ws client disconnected", slog.Int("clients", count))
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartStatusBroadcast sends the market session state to all clients on
// every tick until ctx is cancelled.
func (h *Hub) StartStatusBroadcast(ctx context.Context, session markethours.Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := h.now()
			envelope, _ := json.Marshal(map[string]any{
				"type":         typeStatus,
				"marketOpen":   session.IsMarketOpen(now),
				"marketStatus": session.StatusString(now),
				"clients":      h.ClientCount(),
				"seq":          h.Seq(),
				"ts":           now.UTC().Format(time.RFC3339Nano),
			})
			h.mu.RLock()
			for client := range h.clients {
				client.enqueue(envelope)
			}
			h.mu.RUnlock()
		}
	}
}
