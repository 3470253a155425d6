package sqlite

import (
	"context"
	"fmt"
	"time"

	"rde-engine/internal/model"
)

// Covered reports whether a stored range contains [from, to] by calendar day.
func (s *Store) Covered(ctx context.Context, instrument string, resolution int, from, to time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fetched_ranges
		WHERE instrument = ? AND resolution = ? AND from_day <= ? AND to_day >= ?
	`, instrument, resolution, dayKey(from), dayKey(to)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite query fetched_ranges: %w", err)
	}
	return n > 0, nil
}

// ReadCandles returns cached candles with timestamps in [from, to), ordered
// by timestamp ascending. Timestamps are returned in loc.
func (s *Store) ReadCandles(ctx context.Context, instrument string, resolution int, from, to time.Time, loc *time.Location) (model.Series, error) {
	if loc == nil {
		loc = time.UTC
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE instrument = ? AND resolution = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, instrument, resolution, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var out model.Series
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).In(loc)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountCandles returns the number of cached candles for an instrument.
func (s *Store) CountCandles(ctx context.Context, instrument string, resolution int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM candles WHERE instrument = ? AND resolution = ?`,
		instrument, resolution,
	).Scan(&n)
	return n, err
}
