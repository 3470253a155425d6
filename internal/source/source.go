// Package source defines where raw candles come from.
package source

import (
	"context"
	"fmt"
	"time"

	"rde-engine/internal/model"
)

// Request asks for the candles of one instrument at one resolution.
// Intraday requests cover the current session and ignore From/To.
type Request struct {
	Instrument string    // data source instrument key, e.g. "NSE_EQ|INE002A01018"
	Resolution int       // bar size in minutes
	From       time.Time // inclusive calendar day
	To         time.Time // inclusive calendar day
	Intraday   bool
}

func (r Request) String() string {
	if r.Intraday {
		return fmt.Sprintf("%s %dm intraday", r.Instrument, r.Resolution)
	}
	return fmt.Sprintf("%s %dm %s..%s", r.Instrument, r.Resolution, r.From.Format(time.DateOnly), r.To.Format(time.DateOnly))
}

// DataSource fetches raw candle tuples. An empty slice means no data; an
// error means the source was unavailable. Retries are the source's concern.
type DataSource interface {
	FetchCandles(ctx context.Context, req Request) ([]model.RawCandle, error)
}

// Func adapts an ordinary function to DataSource.
type Func func(ctx context.Context, req Request) ([]model.RawCandle, error)

// FetchCandles calls f(ctx, req).
func (f Func) FetchCandles(ctx context.Context, req Request) ([]model.RawCandle, error) {
	return f(ctx, req)
}
