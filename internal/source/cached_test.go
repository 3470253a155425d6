package source_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"rde-engine/internal/markethours"
	"rde-engine/internal/model"
	"rde-engine/internal/source"
	"rde-engine/internal/store/sqlite"
)

func TestCached_ReadThrough(t *testing.T) {
	ist := markethours.IST
	store, err := sqlite.New(sqlite.Config{DBPath: filepath.Join(t.TempDir(), "cache.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	calls := 0
	upstream := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		calls++
		return []model.RawCandle{
			{"2025-01-07T15:15:00+05:30", 10.0, 11.0, 9.0, 10.5, 100.0},
			{"2025-01-06T15:15:00+05:30", 9.0, 10.0, 8.0, 9.5, 100.0},
			{"bad", 1.0, 1.0, 1.0, 1.0, 1.0},
		}, nil
	})
	now := time.Date(2025, 1, 10, 11, 0, 0, 0, ist)
	cached := source.NewCached(upstream, store, ist, nil).WithClock(func() time.Time { return now })

	req := source.Request{
		Instrument: "NSE_EQ|INE002A01018", Resolution: 15,
		From: time.Date(2025, 1, 6, 0, 0, 0, 0, ist),
		To:   time.Date(2025, 1, 9, 0, 0, 0, 0, ist),
	}

	first, err := cached.FetchCandles(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || calls != 1 {
		t.Fatalf("first fetch: rows=%d calls=%d", len(first), calls)
	}

	second, err := cached.FetchCandles(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("second fetch should be served from cache, upstream calls=%d", calls)
	}
	if len(second) != 2 {
		t.Fatalf("cached rows=%d, want 2 valid candles", len(second))
	}
	if second[0][0] != "2025-01-06T15:15:00+05:30" {
		t.Errorf("cached rows should be ascending, first ts=%v", second[0][0])
	}

	// A sub-range of a covered range is also a hit.
	sub := req
	sub.From = time.Date(2025, 1, 7, 0, 0, 0, 0, ist)
	rows, _ := cached.FetchCandles(context.Background(), sub)
	if calls != 1 || len(rows) != 1 {
		t.Errorf("sub-range: calls=%d rows=%d", calls, len(rows))
	}
}

func TestCached_BypassesOpenRanges(t *testing.T) {
	ist := markethours.IST
	store, err := sqlite.New(sqlite.Config{DBPath: filepath.Join(t.TempDir(), "cache.db")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	calls := 0
	upstream := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		calls++
		return nil, errors.New("offline")
	})
	now := time.Date(2025, 1, 10, 11, 0, 0, 0, ist)
	cached := source.NewCached(upstream, store, ist, nil).WithClock(func() time.Time { return now })

	ctx := context.Background()
	if _, err := cached.FetchCandles(ctx, source.Request{Instrument: "X", Resolution: 1, Intraday: true}); err == nil {
		t.Error("intraday must go upstream and surface its error")
	}
	if _, err := cached.FetchCandles(ctx, source.Request{Instrument: "X", Resolution: 15, From: now.AddDate(0, 0, -3), To: now}); err == nil {
		t.Error("range ending today must go upstream")
	}
	if calls != 2 {
		t.Errorf("upstream calls=%d, want 2", calls)
	}
}
