package indicator

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	seed    float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(price float64) {
	s.count++

	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += price
		if s.count == s.period {
			s.seed = s.sum / float64(s.period)
			s.current = s.seed
		}
		return
	}

	s.current = s.next(price)
}

func (s *SMMA) next(price float64) float64 {
	p := float64(s.period)
	return (s.current*(p-1) + price) / p
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (s *SMMA) Peek(price float64) (float64, bool) {
	switch {
	case s.count+1 < s.period:
		return 0, false
	case s.count+1 == s.period:
		return (s.sum + price) / float64(s.period), true
	}
	return s.next(price), true
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.seed = 0
	s.current = 0
}

// Snapshot serializes the SMMA state.
func (s *SMMA) Snapshot() State {
	return State{
		Type:    "SMMA",
		Period:  s.period,
		Count:   s.count,
		Sum:     s.sum,
		Seed:    s.seed,
		Current: s.current,
	}
}

// Restore restores SMMA state from a snapshot.
func (s *SMMA) Restore(snap State) error {
	if err := checkState("SMMA", s.period, snap); err != nil {
		return err
	}
	s.count = snap.Count
	s.sum = snap.Sum
	s.seed = snap.Seed
	s.current = snap.Current
	return nil
}
