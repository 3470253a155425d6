// Package barfile serves candles from Parquet bar files on local disk, for
// offline runs and reproducible backtests of the indicator pipeline.
package barfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"rde-engine/internal/model"
	"rde-engine/internal/source"
)

// Bar is the on-disk row layout, one file per instrument and resolution.
type Bar struct {
	Timestamp int64   `json:"t" parquet:"t"` // bar open, Unix milliseconds
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    int64   `json:"v" parquet:"v"`
}

// FromCandle converts a candle to a bar row.
func FromCandle(c model.Candle) Bar {
	return Bar{
		Timestamp: c.TS.UnixMilli(),
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    int64(c.Volume),
	}
}

// Path returns the file holding an instrument's bars at a resolution,
// e.g. dir/NSE_EQ_INE002A01018_15m.parquet.
func Path(dir, instrument string, resolution int) string {
	name := strings.NewReplacer("|", "_", "/", "_", ":", "_").Replace(instrument)
	return filepath.Join(dir, name+"_"+strconv.Itoa(resolution)+"m.parquet")
}

// Write stores bars at path.
func Write(path string, bars []Bar) error {
	return parquet.WriteFile(path, bars)
}

// Source reads bar files from a directory.
type Source struct {
	dir string
	loc *time.Location
	now func() time.Time
}

// Ensure Source implements the DataSource interface.
var _ source.DataSource = (*Source)(nil)

// New creates a bar file source. Calendar days are evaluated in loc.
func New(dir string, loc *time.Location) *Source {
	if loc == nil {
		loc = time.UTC
	}
	return &Source{dir: dir, loc: loc, now: time.Now}
}

// WithClock sets the clock that defines "today" for intraday requests.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

// FetchCandles returns the bars of the requested day range. A missing file
// is an empty result, not an error.
func (s *Source) FetchCandles(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := Path(s.dir, req.Instrument, req.Resolution)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	bars, err := parquet.ReadFile[Bar](path)
	if err != nil {
		return nil, fmt.Errorf("barfile: read %s: %w", path, err)
	}

	from, to := s.day(req.From), s.day(req.To).AddDate(0, 0, 1)
	if req.Intraday {
		from = s.day(s.now())
		to = from.AddDate(0, 0, 1)
	}
	lo, hi := from.UnixMilli(), to.UnixMilli()

	out := make([]model.RawCandle, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp < lo || b.Timestamp >= hi {
			continue
		}
		ts := time.UnixMilli(b.Timestamp).In(s.loc).Format(time.RFC3339)
		out = append(out, model.RawCandle{ts, b.Open, b.High, b.Low, b.Close, float64(b.Volume)})
	}
	return out, nil
}

func (s *Source) day(t time.Time) time.Time {
	lt := t.In(s.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.loc)
}
