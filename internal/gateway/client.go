package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
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

	// Subscribed symbols. Empty means every symbol.
	subMu sync.RWMutex
	subs  map[string]bool
}

// clientMsg is any message a client may send.
type clientMsg struct {
	Type    string   `json:"type"` // SUBSCRIBE | UNSUBSCRIBE | PING
	Symbols []string `json:"symbols,omitempty"`
	Ping    int64    `json:"ping,omitempty"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]bool),
	}
}

// enqueue queues msg without blocking. Slow clients drop messages.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) matches(symbol string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[symbol]
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
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
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
			break
		}
		var msg clientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message: " + err.Error())
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			if len(msg.Symbols) == 0 {
				c.sendError("symbols are required")
				continue
			}
			c.subMu.Lock()
			for _, s := range msg.Symbols {
				c.subs[s] = true
			}
			c.subMu.Unlock()
			c.hub.log.Debug("client subscribed", slog.Any("symbols", msg.Symbols))
			c.hub.sendSnapshot(c, msg.Symbols)

		case "UNSUBSCRIBE":
			c.subMu.Lock()
			if len(msg.Symbols) == 0 {
				c.subs = make(map[string]bool)
			}
			for _, s := range msg.Symbols {
				delete(c.subs, s)
			}
			c.subMu.Unlock()

		case "PING":
			pong, _ := json.Marshal(map[string]any{
				"type":      typePong,
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.enqueue(pong)

		default:
			c.sendError("unknown message type " + msg.Type)
		}
	}
}

func (c *Client) sendError(text string) {
	b, _ := json.Marshal(map[string]string{"type": typeError, "error": text})
	c.enqueue(b)
}
