package indicator

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer; the mean is taken over the buffer on
// each update so long series do not accumulate running-sum drift.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.window(-1, 0)
	}
}

// window returns the mean of the buffer with slot skip replaced by price.
// skip < 0 means no replacement.
func (s *SMA) window(skip int, price float64) float64 {
	sum := 0.0
	for i, v := range s.buf {
		if i == skip {
			v = price
		}
		sum += v
	}
	return sum / float64(s.period)
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (s *SMA) Peek(price float64) (float64, bool) {
	if s.count+1 < s.period {
		return 0, false
	}
	// The slot at idx is either unused (warm-up) or holds the oldest value.
	return s.window(s.idx, price), true
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// Snapshot serializes the SMA state.
func (s *SMA) Snapshot() State {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return State{
		Type:    "SMA",
		Period:  s.period,
		Buf:     bufCopy,
		Idx:     s.idx,
		Count:   s.count,
		Current: s.current,
	}
}

// Restore restores SMA state from a snapshot.
func (s *SMA) Restore(snap State) error {
	if err := checkState("SMA", s.period, snap); err != nil {
		return err
	}
	s.idx = snap.Idx
	s.count = snap.Count
	s.current = snap.Current
	s.buf = make([]float64, s.period)
	copy(s.buf, snap.Buf)
	return nil
}
