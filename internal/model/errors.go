package model

import "fmt"

// NoDataError is returned when no batch produced a single candle for an
// instrument. It is fatal for that instrument's run only.
type NoDataError struct {
	Instrument string
}

func (e *NoDataError) Error() string {
	if e.Instrument == "" {
		return "no candle data"
	}
	return fmt.Sprintf("no candle data for %s", e.Instrument)
}

// InsufficientHistoryError records that an indicator had fewer points than
// its period requires. The indicator value is absent; this is never a failure.
type InsufficientHistoryError struct {
	Indicator string
	Period    int
	Have      int
	Need      int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%s_%d: insufficient history (have %d, need %d)", e.Indicator, e.Period, e.Have, e.Need)
}

// MalformedCandleError describes a raw candle that was dropped during parsing.
type MalformedCandleError struct {
	Index  int // position within its source batch
	Reason string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle at %d: %s", e.Index, e.Reason)
}
