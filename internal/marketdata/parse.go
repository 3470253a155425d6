// Package marketdata turns raw candle batches into one canonical series and
// reduces that series to daily closes.
package marketdata

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rde-engine/internal/model"
)

// Tuple layout of a raw candle.
const (
	fieldTS = iota
	fieldOpen
	fieldHigh
	fieldLow
	fieldClose
	fieldVolume

	minFields = fieldClose + 1
)

// ParseBatch converts raw tuples into candles in loc. Rows that cannot be
// parsed are dropped and reported as *model.MalformedCandleError; the
// remaining candles keep their source order.
func ParseBatch(rows []model.RawCandle, loc *time.Location) (model.Series, []error) {
	if loc == nil {
		loc = time.UTC
	}
	out := make(model.Series, 0, len(rows))
	var errs []error
	for i, row := range rows {
		c, reason := parseRow(row, loc)
		if reason != "" {
			errs = append(errs, &model.MalformedCandleError{Index: i, Reason: reason})
			continue
		}
		out = append(out, c)
	}
	return out, errs
}

func parseRow(row model.RawCandle, loc *time.Location) (model.Candle, string) {
	if len(row) < minFields {
		return model.Candle{}, fmt.Sprintf("expected at least %d fields, got %d", minFields, len(row))
	}
	ts, err := parseTimestamp(row[fieldTS])
	if err != nil {
		return model.Candle{}, err.Error()
	}

	var c model.Candle
	c.TS = ts.In(loc)
	prices := [...]struct {
		name string
		dst  *float64
	}{
		{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close},
	}
	for j, p := range prices {
		v, ok := number(row[fieldOpen+j])
		if !ok {
			return model.Candle{}, fmt.Sprintf("non-numeric %s %v", p.name, row[fieldOpen+j])
		}
		*p.dst = v
	}
	if len(row) > fieldVolume && row[fieldVolume] != nil {
		v, ok := number(row[fieldVolume])
		if !ok || v < 0 {
			return model.Candle{}, fmt.Sprintf("invalid volume %v", row[fieldVolume])
		}
		c.Volume = v
	}
	return c, ""
}

func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		if ts.IsZero() {
			return time.Time{}, fmt.Errorf("zero timestamp")
		}
		return ts, nil
	case string:
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(ts))
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q", ts)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("timestamp has type %T", v)
	}
}

// number accepts JSON numbers, numeric strings and Go numeric types.
// NaN and ±Inf are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
