package indicator

import (
	"fmt"
	"time"
)

// State is the serialized state of one accumulator. The tracking fields
// record how far along its canonical series the accumulator has advanced.
type State struct {
	Type   string `json:"type"`   // "SMA", "EMA", "SMMA", "RSI"
	Period int    `json:"period"` // indicator period
	Count  int    `json:"count"`  // prices consumed

	Seed    float64 `json:"seed,omitempty"` // value at the end of warm-up
	Current float64 `json:"current"`
	Sum     float64 `json:"sum,omitempty"`

	// SMA fields
	Buf []float64 `json:"buf,omitempty"`
	Idx int       `json:"idx,omitempty"`

	// EMA fields
	Multiplier float64 `json:"multiplier,omitempty"`

	// RSI fields
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`
	GainSum   float64 `json:"gain_sum,omitempty"`
	LossSum   float64 `json:"loss_sum,omitempty"`

	// Tracking fields, set by Tracker
	LastIndex int       `json:"last_index"`       // index of the last consumed point, -1 before any
	Anchor    time.Time `json:"anchor,omitempty"` // first point of the seeding series
	LastTS    time.Time `json:"last_ts,omitempty"`
	LastPrice float64   `json:"last_price,omitempty"`
}

func checkState(want string, period int, s State) error {
	if s.Type != want {
		return fmt.Errorf("restore %s from %s state", want, s.Type)
	}
	if s.Period != period {
		return fmt.Errorf("restore %s(%d) from period %d", want, period, s.Period)
	}
	return nil
}
