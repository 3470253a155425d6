package pipeline

import (
	"math"
	"time"

	"rde-engine/internal/model"
	"rde-engine/internal/signal"
)

// Report is the full-precision outcome of one run.
type Report struct {
	Symbol       string                            `json:"symbol"`
	Instrument   string                            `json:"instrument"`
	Price        float64                           `json:"price"`
	PriceTS      time.Time                         `json:"price_ts"`
	DataPoints   int                               `json:"data_points"` // daily closes
	Candles      int                               `json:"candles"`     // merged candles
	Dropped      int                               `json:"dropped"`     // malformed candles
	Reseeds      int                               `json:"reseeds"`
	Indicators   []model.IndicatorResult           `json:"indicators"`
	Insufficient []*model.InsufficientHistoryError `json:"-"`
	Trend        signal.Trend                      `json:"trend"`     // price against the DMAs
	EMATrend     signal.Trend                      `json:"ema_trend"` // fast EMA against slow EMA
	AsOf         time.Time                         `json:"as_of"`
}

// Indicator returns the result for name and period, e.g. ("RSI", 14).
func (r *Report) Indicator(name string, period int) (model.IndicatorResult, bool) {
	for _, res := range r.Indicators {
		if res.Name == name && res.Period == period {
			return res, true
		}
	}
	return model.IndicatorResult{}, false
}

// Result is the presentation shape of a report. Numbers are rounded to two
// decimals; absent values are null.
type Result struct {
	Symbol       string              `json:"symbol"`
	CurrentPrice float64             `json:"current_price"`
	DataPoints   int                 `json:"data_points"`
	Timestamp    string              `json:"timestamp"`
	RSI          map[string]RSIEntry `json:"rsi"`
	DMA          map[string]MAEntry  `json:"dma"`
	EMA          map[string]MAEntry  `json:"ema"`
	Trend        signal.Trend        `json:"trend"`
	EMATrend     signal.Trend        `json:"ema_trend"`
}

// RSIEntry is one presented RSI value.
type RSIEntry struct {
	Value  *float64 `json:"value"`
	Signal *string  `json:"signal"`
}

// MAEntry is one presented moving average compared with the current price.
type MAEntry struct {
	Value         *float64 `json:"value"`
	Difference    *float64 `json:"difference"`
	DifferencePct *float64 `json:"difference_pct"`
	Signal        *string  `json:"signal"`
}

// Present rounds a report for display. Rounding happens here only.
func Present(r *Report) Result {
	out := Result{
		Symbol:       r.Symbol,
		CurrentPrice: round2(r.Price),
		DataPoints:   r.DataPoints,
		Timestamp:    r.AsOf.Format(time.DateTime),
		RSI:          make(map[string]RSIEntry),
		DMA:          make(map[string]MAEntry),
		EMA:          make(map[string]MAEntry),
		Trend:        r.Trend,
		EMATrend:     r.EMATrend,
	}
	for _, res := range r.Indicators {
		key := res.Key()
		if res.Name == "RSI" {
			e := RSIEntry{}
			if res.Ready {
				e.Value = ptr(round2(res.Value))
				e.Signal = ptr(res.Signal)
			}
			out.RSI[key] = e
			continue
		}
		e := MAEntry{}
		if res.Ready {
			e.Value = ptr(round2(res.Value))
			e.Difference = ptr(round2(res.Difference))
			e.DifferencePct = ptr(round2(res.DifferencePct))
			e.Signal = ptr(res.Signal)
		}
		if res.Name == "EMA" {
			out.EMA[key] = e
		} else {
			out.DMA[key] = e
		}
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func ptr[T any](v T) *T { return &v }
