package pipeline

import (
	"fmt"
	"time"

	"rde-engine/internal/source"
)

// Leg is one fetch of a plan: a resolution over a window of calendar days
// counted back from today, or the current session when Intraday is set.
type Leg struct {
	Name        string `yaml:"name" json:"name"`
	Resolution  int    `yaml:"resolution" json:"resolution"` // minutes
	FromDaysAgo int    `yaml:"from_days_ago" json:"from_days_ago"`
	ToDaysAgo   int    `yaml:"to_days_ago" json:"to_days_ago"`
	Intraday    bool   `yaml:"intraday" json:"intraday"`
}

// Request builds the source request for instrument at now. Days are
// evaluated in loc.
func (l Leg) Request(instrument string, now time.Time, loc *time.Location) source.Request {
	req := source.Request{Instrument: instrument, Resolution: l.Resolution, Intraday: l.Intraday}
	if l.Intraday {
		return req
	}
	lt := now.In(loc)
	today := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	req.From = today.AddDate(0, 0, -l.FromDaysAgo)
	req.To = today.AddDate(0, 0, -l.ToDaysAgo)
	return req
}

// Plan lists the legs fetched for one run, oldest history first. Later legs
// win when two legs deliver a candle for the same instant.
type Plan struct {
	Legs []Leg `yaml:"legs" json:"legs"`

	// PriceResolution is the intraday bar size whose latest close is the
	// current price. Zero disables the price leg.
	PriceResolution int `yaml:"price_resolution" json:"price_resolution"`

	// RSIResolution selects the legs that make up the intraday series. Zero
	// uses every leg.
	RSIResolution int `yaml:"rsi_resolution" json:"rsi_resolution"`

	// DisplayResolution is the bar size of timeline rows.
	DisplayResolution int `yaml:"display_resolution" json:"display_resolution"`
}

// DefaultPlan covers 90 days: 4-hour bars for the older part, 15-minute
// bars for the last 30 completed days, today's 15-minute session and a
// 1-minute price leg.
func DefaultPlan() Plan {
	return Plan{
		Legs: []Leg{
			{Name: "history", Resolution: 240, FromDaysAgo: 90, ToDaysAgo: 31},
			{Name: "recent", Resolution: 15, FromDaysAgo: 30, ToDaysAgo: 1},
			{Name: "intraday", Resolution: 15, Intraday: true},
		},
		PriceResolution:   1,
		RSIResolution:     15,
		DisplayResolution: 60,
	}
}

// Validate checks resolutions and day windows.
func (p Plan) Validate() error {
	if len(p.Legs) == 0 {
		return fmt.Errorf("fetch plan has no legs")
	}
	for i, l := range p.Legs {
		if l.Resolution <= 0 {
			return fmt.Errorf("fetch leg %d (%s): invalid resolution=%d", i, l.Name, l.Resolution)
		}
		if l.Intraday {
			continue
		}
		if l.FromDaysAgo < l.ToDaysAgo || l.ToDaysAgo < 0 {
			return fmt.Errorf("fetch leg %d (%s): window %d..%d days ago is empty", i, l.Name, l.FromDaysAgo, l.ToDaysAgo)
		}
	}
	if p.PriceResolution < 0 || p.RSIResolution < 0 || p.DisplayResolution < 0 {
		return fmt.Errorf("fetch plan: resolutions must not be negative")
	}
	return nil
}

// Span returns how many calendar days the plan reaches back.
func (p Plan) Span() int {
	n := 0
	for _, l := range p.Legs {
		if l.FromDaysAgo > n {
			n = l.FromDaysAgo
		}
	}
	return n
}
