package gateway

import (
	"strconv"
	"time"
)

const (
	typeResult = "result"
	typeStatus = "status"
	typePong   = "pong"
	typeError  = "error"
)

// broadcast records data as symbol's latest result and sends it to every
// client subscribed to the symbol.
func (h *Hub) broadcast(symbol string, data []byte) {
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.latest[symbol] = latestEntry{Data: data, TS: now, Seq: seq}
	h.mu.Unlock()

	buf := buildEnvelope(typeResult, symbol, data, now, seq, false)
	h.replay.Add(seq, symbol, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matches(symbol) {
			continue
		}
		client.enqueue(buf)
	}
}

// buildEnvelope hand-crafts the envelope JSON around an already encoded
// payload: {"type":...,"symbol":...,"data":...,"ts":...,"seq":N}.
func buildEnvelope(typ, symbol string, data []byte, ts time.Time, seq int64, initial bool) []byte {
	buf := make([]byte, 0, len(symbol)+len(data)+128)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","symbol":`...)
	buf = strconv.AppendQuote(buf, symbol)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
