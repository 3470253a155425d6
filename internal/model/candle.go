package model

import "time"

// Candle is one OHLCV bar for a single instrument. TS is the bar's opening
// time in the exchange location. Close is the canonical price used by every
// indicator.
type Candle struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series is an ordered run of candles. After a merge it is strictly
// increasing by TS with no duplicate timestamps.
type Series []Candle

// Closes returns the close prices in series order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Points returns (TS, Close) pairs in series order.
func (s Series) Points() []Point {
	out := make([]Point, len(s))
	for i, c := range s {
		out[i] = Point{TS: c.TS, Price: c.Close}
	}
	return out
}

// Last returns the final candle of the series.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// DailyClose is the representative closing price of one trading day.
// Date is local midnight of that day.
type DailyClose struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// DailyPoints converts daily closes into indicator input points.
func DailyPoints(days []DailyClose) []Point {
	out := make([]Point, len(days))
	for i, d := range days {
		out[i] = Point{TS: d.Date, Price: d.Close}
	}
	return out
}

// Point is a single timestamped price fed to an indicator.
type Point struct {
	TS    time.Time
	Price float64
}

// RawCandle is one candle tuple exactly as a data source delivered it:
// (timestamp, open, high, low, close, volume[, open interest]). Elements are
// JSON-decoded values: string, float64 or nil.
type RawCandle []any
