package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update with no window storage. The first value is the SMA
// of the first period prices; afterwards EMA = price*k + prev*(1-k) with
// k = 2/(period+1).
type EMA struct {
	period     int
	multiplier float64
	seed       float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.seed = e.sum / float64(e.period)
			e.current = e.seed
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with an additional price without mutating state.
func (e *EMA) Peek(price float64) (float64, bool) {
	switch {
	case e.count+1 < e.period:
		return 0, false
	case e.count+1 == e.period:
		return (e.sum + price) / float64(e.period), true
	}
	return (price * e.multiplier) + (e.current * (1 - e.multiplier)), true
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.seed = 0
	e.current = 0
	e.count = 0
	e.sum = 0
}

// Snapshot serializes the EMA state.
func (e *EMA) Snapshot() State {
	return State{
		Type:       "EMA",
		Period:     e.period,
		Multiplier: e.multiplier,
		Seed:       e.seed,
		Current:    e.current,
		Count:      e.count,
		Sum:        e.sum,
	}
}

// Restore restores EMA state from a snapshot.
func (e *EMA) Restore(snap State) error {
	if err := checkState("EMA", e.period, snap); err != nil {
		return err
	}
	e.seed = snap.Seed
	e.current = snap.Current
	e.count = snap.Count
	e.sum = snap.Sum
	return nil
}
