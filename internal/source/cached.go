package source

import (
	"context"
	"log/slog"
	"time"

	"rde-engine/internal/marketdata"
	"rde-engine/internal/model"
)

// CandleCache stores completed historical ranges.
type CandleCache interface {
	Covered(ctx context.Context, instrument string, resolution int, from, to time.Time) (bool, error)
	ReadCandles(ctx context.Context, instrument string, resolution int, from, to time.Time, loc *time.Location) (model.Series, error)
	WriteRange(ctx context.Context, instrument string, resolution int, from, to time.Time, candles model.Series) error
}

// Cached is a read-through cache in front of another source. Only
// historical requests that end before today are cached; intraday and
// still-open ranges always go upstream.
type Cached struct {
	upstream DataSource
	cache    CandleCache
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// Ensure Cached implements the DataSource interface.
var _ DataSource = (*Cached)(nil)

// NewCached wraps upstream with cache. Calendar days are evaluated in loc.
func NewCached(upstream DataSource, cache CandleCache, loc *time.Location, log *slog.Logger) *Cached {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Cached{
		upstream: upstream,
		cache:    cache,
		loc:      loc,
		now:      time.Now,
		log:      log.With(slog.String("component", "cache")),
	}
}

// WithClock replaces the clock used to decide which days are complete.
func (c *Cached) WithClock(now func() time.Time) *Cached {
	c.now = now
	return c
}

func (c *Cached) FetchCandles(ctx context.Context, req Request) ([]model.RawCandle, error) {
	if req.Intraday || !c.completed(req) {
		return c.upstream.FetchCandles(ctx, req)
	}

	from, to := c.day(req.From), c.day(req.To)
	covered, err := c.cache.Covered(ctx, req.Instrument, req.Resolution, from, to)
	if err != nil {
		c.log.Warn("cache lookup failed", slog.String("request", req.String()), slog.Any("err", err))
	}
	if covered {
		series, err := c.cache.ReadCandles(ctx, req.Instrument, req.Resolution, from, to.AddDate(0, 0, 1), c.loc)
		if err == nil {
			c.log.Debug("cache hit", slog.String("request", req.String()), slog.Int("candles", len(series)))
			return toRaw(series), nil
		}
		c.log.Warn("cache read failed", slog.String("request", req.String()), slog.Any("err", err))
	}

	rows, err := c.upstream.FetchCandles(ctx, req)
	if err != nil {
		return nil, err
	}
	series, _ := marketdata.ParseBatch(rows, c.loc)
	if err := c.cache.WriteRange(ctx, req.Instrument, req.Resolution, from, to, series); err != nil {
		c.log.Warn("cache write failed", slog.String("request", req.String()), slog.Any("err", err))
	}
	return rows, nil
}

func (c *Cached) completed(req Request) bool {
	return c.day(req.To).Before(c.day(c.now()))
}

func (c *Cached) day(t time.Time) time.Time {
	lt := t.In(c.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.loc)
}

func toRaw(series model.Series) []model.RawCandle {
	out := make([]model.RawCandle, len(series))
	for i, c := range series {
		out[i] = model.RawCandle{c.TS.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume}
	}
	return out
}
