package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Gains and losses between consecutive prices each feed an SMMA; the first
// value needs period+1 prices. Update is O(1) per price.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gain      *SMMA
	loss      *SMMA
	seed      float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gain:   NewSMMA(period),
		loss:   NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First price: no delta yet
		r.prevClose = price
		return
	}

	g, l := split(price - r.prevClose)
	r.prevClose = price
	r.gain.Update(g)
	r.loss.Update(l)

	if r.gain.Ready() {
		r.current = rsiFrom(r.gain.Value(), r.loss.Value())
		if r.count == r.period+1 {
			r.seed = r.current
		}
	}
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// Peek computes what RSI would be with an additional price without mutating state.
func (r *RSI) Peek(price float64) (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	g, l := split(price - r.prevClose)
	ag, ok := r.gain.Peek(g)
	if !ok {
		return 0, false
	}
	al, _ := r.loss.Peek(l)
	return rsiFrom(ag, al), true
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.seed = 0
	r.current = 0
	r.gain.Reset()
	r.loss.Reset()
}

// Snapshot serializes the RSI state.
func (r *RSI) Snapshot() State {
	return State{
		Type:      "RSI",
		Period:    r.period,
		Count:     r.count,
		PrevClose: r.prevClose,
		AvgGain:   r.gain.current,
		AvgLoss:   r.loss.current,
		GainSum:   r.gain.sum,
		LossSum:   r.loss.sum,
		Seed:      r.seed,
		Current:   r.current,
	}
}

// Restore restores RSI state from a snapshot.
func (r *RSI) Restore(snap State) error {
	if err := checkState("RSI", r.period, snap); err != nil {
		return err
	}
	r.count = snap.Count
	r.prevClose = snap.PrevClose
	r.seed = snap.Seed
	r.current = snap.Current

	deltas := snap.Count - 1
	if deltas < 0 {
		deltas = 0
	}
	r.gain = &SMMA{period: r.period, count: deltas, sum: snap.GainSum, current: snap.AvgGain}
	r.loss = &SMMA{period: r.period, count: deltas, sum: snap.LossSum, current: snap.AvgLoss}
	if deltas >= r.period {
		r.gain.seed = snap.GainSum / float64(r.period)
		r.loss.seed = snap.LossSum / float64(r.period)
	}
	return nil
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// rsiFrom maps average gain and loss to RSI. A zero average loss is 100.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
