package indicator

import "fmt"

// Value is one position of an indicator series. OK is false where the
// indicator has too little history; V is then meaningless, never zero-filled.
type Value struct {
	V  float64
	OK bool
}

// SMAOf returns the mean of the last period prices.
func SMAOf(prices []float64, period int) (float64, bool) {
	if period <= 0 {
		return 0, false
	}
	return last(NewSMA(period), prices)
}

// SMASeries returns the trailing SMA at every index.
func SMASeries(prices []float64, period int) []Value {
	if period <= 0 {
		return make([]Value, len(prices))
	}
	return run(NewSMA(period), prices)
}

// SMAAt returns the mean of prices[i-period+1 .. i].
func SMAAt(prices []float64, period, i int) (float64, bool) {
	if period <= 0 || i < period-1 || i >= len(prices) {
		return 0, false
	}
	sum := 0.0
	for _, p := range prices[i-period+1 : i+1] {
		sum += p
	}
	return sum / float64(period), true
}

// EMAOf returns the exponential moving average at the last price, seeded with
// the SMA of the first period prices.
func EMAOf(prices []float64, period int) (float64, bool) {
	if period <= 0 {
		return 0, false
	}
	return last(NewEMA(period), prices)
}

// EMASeries returns the EMA at every index; the first period-1 are absent.
func EMASeries(prices []float64, period int) []Value {
	if period <= 0 {
		return make([]Value, len(prices))
	}
	return run(NewEMA(period), prices)
}

// RSIOf returns Wilder's RSI at the last price. It needs period+1 prices.
func RSIOf(prices []float64, period int) (float64, bool) {
	if period <= 0 {
		return 0, false
	}
	return last(NewRSI(period), prices)
}

// RSISeries returns Wilder's RSI at every index; the first period are absent.
func RSISeries(prices []float64, period int) []Value {
	if period <= 0 {
		return make([]Value, len(prices))
	}
	return run(NewRSI(period), prices)
}

func last(ind Indicator, prices []float64) (float64, bool) {
	for _, p := range prices {
		ind.Update(p)
	}
	if !ind.Ready() {
		return 0, false
	}
	return ind.Value(), true
}

func run(ind Indicator, prices []float64) []Value {
	out := make([]Value, len(prices))
	for i, p := range prices {
		ind.Update(p)
		if ind.Ready() {
			out[i] = Value{V: ind.Value(), OK: true}
		}
	}
	return out
}

// SeriesOf runs the indicator named typ over prices and returns its value at
// every index.
func SeriesOf(typ string, prices []float64, period int) ([]Value, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid period=%d for %s", period, typ)
	}
	ind, ok := New(typ, period)
	if !ok {
		return nil, fmt.Errorf("unknown indicator type %q", typ)
	}
	return run(ind, prices), nil
}
