package indicator

import (
	"sort"
	"time"

	"rde-engine/internal/model"
)

// Tracker binds one accumulator to a canonical point series and advances it
// strictly forward across calls.
//
// Every point but the last is committed into the accumulator; the last point
// is applied with Peek because it may be a forming bar whose price changes
// on the next poll. Fetch windows are counted back from today, so the start
// of the series moves forward day by day; the committed prefix is found by
// the timestamp of the last committed point, not by index. When that point
// is missing, changed, or is the final point, the accumulator is reset and
// replayed from the series once.
type Tracker struct {
	ind       Indicator
	lastIndex int
	anchor    time.Time
	lastTS    time.Time
	lastPrice float64
}

// NewTracker wraps a fresh accumulator.
func NewTracker(ind Indicator) *Tracker {
	return &Tracker{ind: ind, lastIndex: -1}
}

// Advance brings the tracker up to date with points and returns the
// indicator value at the final point. reseeded reports whether the
// committed state had to be rebuilt from the start of the series.
func (t *Tracker) Advance(points []model.Point) (value float64, ok, reseeded bool) {
	n := len(points)
	if n == 0 {
		reseeded = t.lastIndex >= 0
		t.reset()
		return 0, false, reseeded
	}

	if t.lastIndex >= 0 {
		if i, found := t.locate(points); found {
			t.lastIndex = i
		} else {
			t.reset()
			reseeded = true
		}
	}
	if t.lastIndex < 0 {
		t.anchor = points[0].TS
	}

	for i := t.lastIndex + 1; i < n-1; i++ {
		t.ind.Update(points[i].Price)
		t.lastIndex = i
		t.lastTS = points[i].TS
		t.lastPrice = points[i].Price
	}

	value, ok = t.ind.Peek(points[n-1].Price)
	return value, ok, reseeded
}

// locate returns the index of the last committed point in points. It fails
// when the point is gone, its price was revised, or nothing follows it.
func (t *Tracker) locate(points []model.Point) (int, bool) {
	n := len(points)
	i := sort.Search(n, func(i int) bool { return !points[i].TS.Before(t.lastTS) })
	if i >= n-1 || !points[i].TS.Equal(t.lastTS) || points[i].Price != t.lastPrice {
		return 0, false
	}
	return i, true
}

func (t *Tracker) reset() {
	t.ind.Reset()
	t.lastIndex = -1
	t.anchor = time.Time{}
	t.lastTS = time.Time{}
	t.lastPrice = 0
}

// State returns the accumulator snapshot with tracking fields filled in.
func (t *Tracker) State() State {
	s := t.ind.Snapshot()
	s.LastIndex = t.lastIndex
	s.Anchor = t.anchor
	s.LastTS = t.lastTS
	s.LastPrice = t.lastPrice
	return s
}

// Restore loads a snapshot previously taken with State.
func (t *Tracker) Restore(s State) error {
	if err := t.ind.Restore(s); err != nil {
		return err
	}
	t.lastIndex = s.LastIndex
	t.anchor = s.Anchor
	t.lastTS = s.LastTS
	t.lastPrice = s.LastPrice
	return nil
}
