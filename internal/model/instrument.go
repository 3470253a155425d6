package model

import (
	"sort"
	"strings"
)

// Instrument maps a human trading symbol to the data source's instrument key.
type Instrument struct {
	Symbol string `json:"symbol" yaml:"symbol"` // e.g. RELIANCE
	Key    string `json:"key" yaml:"key"`       // e.g. NSE_EQ|INE002A01018
}

// Segment returns the exchange segment of the instrument key ("NSE_EQ").
func (i Instrument) Segment() string {
	seg, _, ok := strings.Cut(i.Key, "|")
	if !ok {
		return ""
	}
	return seg
}

// Instruments is a symbol → instrument key table.
type Instruments map[string]string

// Lookup resolves a symbol, case-insensitively.
func (m Instruments) Lookup(symbol string) (Instrument, bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	key, ok := m[s]
	if !ok {
		return Instrument{}, false
	}
	return Instrument{Symbol: s, Key: key}, true
}

// Symbols returns the configured symbols in sorted order.
func (m Instruments) Symbols() []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// DefaultInstruments is the NIFTY large-cap set the dashboards track.
func DefaultInstruments() Instruments {
	return Instruments{
		"RELIANCE":  "NSE_EQ|INE002A01018",
		"TCS":       "NSE_EQ|INE467B01029",
		"HDFCBANK":  "NSE_EQ|INE040A01034",
		"INFY":      "NSE_EQ|INE009A01021",
		"ICICIBANK": "NSE_EQ|INE090A01021",
	}
}
