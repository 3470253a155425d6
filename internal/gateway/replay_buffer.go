package gateway

import "sync"

// replayed is one result envelope kept for catch-up.
type replayed struct {
	Seq      int64
	Symbol   string
	Envelope []byte
}

// ReplayBuffer keeps the most recent result envelopes in seq order so a
// client reconnecting with last_seq receives only what it missed.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring []replayed
	next int // slot of the next write
	size int
}

// NewReplayBuffer holds up to capacity envelopes; 500 when capacity <= 0.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{ring: make([]replayed, capacity)}
}

// Add records symbol's envelope under seq, evicting the oldest when full.
func (rb *ReplayBuffer) Add(seq int64, symbol string, envelope []byte) {
	cp := append([]byte(nil), envelope...)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.ring[rb.next] = replayed{Seq: seq, Symbol: symbol, Envelope: cp}
	rb.next = (rb.next + 1) % len(rb.ring)
	if rb.size < len(rb.ring) {
		rb.size++
	}
}

// After returns the envelopes with seq greater than seq. ok is false when
// the buffer cannot prove continuity: it is empty, entries right after seq
// were evicted, or seq is newer than anything held (the hub restarted).
func (rb *ReplayBuffer) After(seq int64) (out [][]byte, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.size == 0 {
		return nil, false
	}
	if rb.at(0).Seq > seq+1 || rb.at(rb.size-1).Seq < seq {
		return nil, false
	}
	for i := 0; i < rb.size; i++ {
		if e := rb.at(i); e.Seq > seq {
			out = append(out, e.Envelope)
		}
	}
	return out, true
}

// Range returns the entries with seq in [from, to], oldest first. A
// non-empty symbol keeps only that symbol's results.
func (rb *ReplayBuffer) Range(from, to int64, symbol string) []replayed {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out []replayed
	for i := 0; i < rb.size; i++ {
		e := rb.at(i)
		if e.Seq < from || e.Seq > to || (symbol != "" && e.Symbol != symbol) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the number of envelopes held.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// at maps a logical position (0 = oldest) onto the ring.
func (rb *ReplayBuffer) at(i int) replayed {
	start := rb.next - rb.size
	if start < 0 {
		start += len(rb.ring)
	}
	return rb.ring[(start+i)%len(rb.ring)]
}
