package marketdata

import (
	"sort"
	"time"

	"rde-engine/internal/markethours"
	"rde-engine/internal/model"
)

// dayPick tracks the representative candle candidates for one day.
type dayPick struct {
	latest    model.Candle // latest in-session candle
	preferred model.Candle // latest in-session candle at or after the prefer cutoff
	hasPref   bool
}

// DailyCloses reduces a series to one close per weekday. Only in-session
// candles are considered. For each day the latest candle at or after the
// session's prefer cutoff is chosen; a day that never reaches the cutoff
// uses its latest candle. Days without in-session candles are omitted.
// The result is ascending by date.
func DailyCloses(series model.Series, sess markethours.Session) []model.DailyClose {
	picks := make(map[time.Time]*dayPick)
	for _, c := range series {
		if !sess.IsWeekday(c.TS) || !sess.InSession(c.TS) {
			continue
		}
		day := sess.DayOf(c.TS)
		p, ok := picks[day]
		if !ok {
			p = &dayPick{latest: c}
			picks[day] = p
		} else if !c.TS.Before(p.latest.TS) {
			p.latest = c
		}
		if sess.Preferred(c.TS) && (!p.hasPref || !c.TS.Before(p.preferred.TS)) {
			p.preferred = c
			p.hasPref = true
		}
	}

	out := make([]model.DailyClose, 0, len(picks))
	for day, p := range picks {
		c := p.latest
		if p.hasPref {
			c = p.preferred
		}
		out = append(out, model.DailyClose{Date: day, Close: c.Close})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// IndexAsOf returns the index of the last daily close dated on or before t's
// local day, or -1 when every close is later.
func IndexAsOf(days []model.DailyClose, t time.Time, sess markethours.Session) int {
	target := sess.DayOf(t)
	i := sort.Search(len(days), func(i int) bool { return days[i].Date.After(target) })
	return i - 1
}
