package marketdata

import (
	"slices"

	"rde-engine/internal/model"
)

// Merge combines candle batches into one series strictly increasing by
// timestamp. Batches are concatenated in argument order and stably sorted;
// when two candles share an instant the one seen last wins, so a later batch
// overrides an earlier one. Inputs are not modified.
//
// Merging is idempotent and an empty batch is the identity. If every batch
// is empty the result is a *model.NoDataError.
func Merge(batches ...model.Series) (model.Series, error) {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	if n == 0 {
		return nil, &model.NoDataError{}
	}

	all := make(model.Series, 0, n)
	for _, b := range batches {
		all = append(all, b...)
	}
	slices.SortStableFunc(all, func(a, b model.Candle) int {
		return a.TS.Compare(b.TS)
	})

	// Walk the sorted run; a candle replaces the previous output element when
	// they share an instant.
	out := all[:0]
	for _, c := range all {
		if k := len(out); k > 0 && out[k-1].TS.Equal(c.TS) {
			out[k-1] = c
			continue
		}
		out = append(out, c)
	}
	return slices.Clip(out), nil
}
