package model

import (
	"strconv"
	"strings"
	"time"
)

// Input selects which price series an indicator reads.
type Input string

const (
	// InputIntraday is the full merged candle series, sessions concatenated.
	InputIntraday Input = "intraday"
	// InputDaily is one session-filtered close per trading day.
	InputDaily Input = "daily"
)

// IndicatorResult holds a computed indicator value for one instrument.
// Values are full precision; rounding happens only when presenting.
type IndicatorResult struct {
	Name   string    `json:"name"` // "RSI", "DMA", "EMA"
	Period int       `json:"period"`
	Input  Input     `json:"input"`
	Value  float64   `json:"value"`
	Ready  bool      `json:"ready"` // false when history is shorter than the period requires
	TS     time.Time `json:"ts"`    // timestamp of the last point consumed

	// Comparison against the reference (current) price. Only meaningful when Ready.
	Reference     float64 `json:"reference"`
	Difference    float64 `json:"difference"`     // reference - value
	DifferencePct float64 `json:"difference_pct"` // difference / value * 100
	Signal        string  `json:"signal,omitempty"`
}

// Key returns the presentation key, e.g. "rsi_14", "dma_50".
func (r IndicatorResult) Key() string {
	return strings.ToLower(r.Name) + "_" + strconv.Itoa(r.Period)
}
