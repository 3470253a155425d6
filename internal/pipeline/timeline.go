package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rde-engine/internal/indicator"
	"rde-engine/internal/marketdata"
	"rde-engine/internal/model"
	"rde-engine/internal/signal"
)

// Timeline is a session-bounded table of display candles with the daily
// moving averages as they stood on each candle's day.
type Timeline struct {
	Symbol  string        `json:"symbol"`
	Columns []string      `json:"columns"` // moving-average keys, e.g. "dma_10"
	Rows    []TimelineRow `json:"rows"`
}

// TimelineRow is one display candle. Values align with Timeline.Columns;
// nil marks an average without enough history on that day.
type TimelineRow struct {
	TS     time.Time    `json:"ts"`
	Price  float64      `json:"price"`
	Values []*float64   `json:"values"`
	Trend  signal.Trend `json:"trend"`
}

// Timeline builds the display table for the last days calendar days.
func (p *Pipeline) Timeline(ctx context.Context, symbol string, days int) (*Timeline, error) {
	if days <= 0 {
		return nil, fmt.Errorf("timeline: days must be positive, got %d", days)
	}
	inst, ok := p.opts.Instruments.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSymbol, symbol)
	}
	log := p.log.With(slog.String("symbol", inst.Symbol), slog.String("view", "timeline"))

	data, err := p.collect(ctx, inst, log)
	if err != nil {
		return nil, err
	}
	sess := p.opts.Session
	closes := marketdata.DailyCloses(data.all, sess)
	prices := make([]float64, len(closes))
	for i, d := range closes {
		prices[i] = d.Close
	}

	// Daily moving averages over the whole history, read back by date.
	var cols []string
	var series [][]indicator.Value
	var dmaCols []int
	for _, spec := range p.engine.Specs() {
		if spec.Input != model.InputDaily || spec.Type == "RSI" {
			continue
		}
		vals, err := indicator.SeriesOf(spec.Type, prices, spec.Period)
		if err != nil {
			return nil, err
		}
		if spec.Type == "DMA" || spec.Type == "SMA" {
			dmaCols = append(dmaCols, len(cols))
		}
		cols = append(cols, model.IndicatorResult{Name: spec.Type, Period: spec.Period}.Key())
		series = append(series, vals)
	}

	display, err := p.display(ctx, inst, days, data, log)
	if err != nil {
		return nil, err
	}

	tl := &Timeline{Symbol: inst.Symbol, Columns: cols}
	for _, c := range display {
		if !sess.IsWeekday(c.TS) || !sess.InSession(c.TS) {
			continue
		}
		row := TimelineRow{TS: c.TS, Price: c.Close, Values: make([]*float64, len(cols))}
		if i := marketdata.IndexAsOf(closes, c.TS, sess); i >= 0 {
			for j := range cols {
				if v := series[j][i]; v.OK {
					row.Values[j] = ptr(v.V)
				}
			}
		}
		mas := make([]signal.MA, 0, len(dmaCols))
		for _, j := range dmaCols {
			if v := row.Values[j]; v != nil {
				mas = append(mas, signal.MA{Value: *v, OK: true})
			}
		}
		row.Trend = signal.TrendFromMAs(c.Close, mas)
		tl.Rows = append(tl.Rows, row)
	}
	return tl, nil
}

// display fetches the display-resolution candles of the last days. Without
// a display resolution the merged series is used.
func (p *Pipeline) display(ctx context.Context, inst model.Instrument, days int, data *collected, log *slog.Logger) (model.Series, error) {
	sess := p.opts.Session
	now := p.now()
	cutoff := sess.DayOf(now).AddDate(0, 0, -(days - 1))

	var series model.Series
	if res := p.opts.Plan.DisplayResolution; res > 0 {
		hist := Leg{Name: "display", Resolution: res, FromDaysAgo: days - 1, ToDaysAgo: 1}
		today := Leg{Name: "display_intraday", Resolution: res, Intraday: true}
		var legs []model.Series
		for _, leg := range []Leg{hist, today} {
			if leg.FromDaysAgo < leg.ToDaysAgo {
				continue
			}
			s, err := p.fetch(ctx, leg, leg.Request(inst.Key, now, sess.Loc), data, log)
			if err != nil {
				return nil, err
			}
			legs = append(legs, s)
		}
		series, _ = marketdata.Merge(legs...)
	} else {
		series = data.all
	}

	out := make(model.Series, 0, len(series))
	for _, c := range series {
		if !c.TS.Before(cutoff) {
			out = append(out, c)
		}
	}
	return out, nil
}
