// Package indicator provides the moving-average and momentum indicators
// computed over price series.
//
// Every indicator is an accumulator fed one price at a time. The pure series
// functions (SMA, EMA, RSI and their *Series forms) drive the same
// accumulators, so incremental and batch results agree exactly.
package indicator

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator type ("SMA", "EMA", "SMMA", "RSI").
	Name() string

	// Update feeds the next price of the series.
	Update(price float64)

	// Value returns the current value. Returns 0 if not Ready.
	Value() float64

	// Ready returns true when enough prices have been accumulated.
	Ready() bool

	// Peek computes what Value() would be if price were fed next, WITHOUT
	// mutating internal state. ok is false if that value would not be ready.
	Peek(price float64) (v float64, ok bool)

	// Reset clears all accumulated state.
	Reset()

	// Snapshot captures the accumulator state.
	Snapshot() State

	// Restore replaces the accumulator state with a snapshot.
	Restore(State) error
}

// New creates an accumulator by type name. Period must be positive.
func New(typ string, period int) (Indicator, bool) {
	switch typ {
	case "SMA", "DMA":
		return NewSMA(period), true
	case "EMA":
		return NewEMA(period), true
	case "SMMA":
		return NewSMMA(period), true
	case "RSI":
		return NewRSI(period), true
	}
	return nil, false
}
