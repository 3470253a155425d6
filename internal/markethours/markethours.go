// Package markethours defines the NSE trading session and the calendar
// checks built on it.
package markethours

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo database
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30

	// Candles at or after this time are preferred as a day's close.
	PreferHour   = 15
	PreferMinute = 0
)

// Session is a daily trading window. Offsets are measured from local
// midnight in Loc at second resolution; both ends are inclusive.
type Session struct {
	Loc        *time.Location
	Open       time.Duration
	Close      time.Duration
	PreferFrom time.Duration
}

// DefaultSession returns the NSE cash session 09:15:00–15:30:00 IST with the
// day's close preferred from 15:00:00.
func DefaultSession() Session {
	return Session{
		Loc:        IST,
		Open:       hm(OpenHour, OpenMinute),
		Close:      hm(CloseHour, CloseMinute),
		PreferFrom: hm(PreferHour, PreferMinute),
	}
}

// NewSession builds a session from clock strings ("09:15" or "09:15:00").
// An empty timezone or "IST" uses the fixed IST zone; any other name must be
// a known IANA zone.
func NewSession(timezone, open, close, preferFrom string) (Session, error) {
	s := DefaultSession()
	if tz := strings.TrimSpace(timezone); tz != "" && tz != "IST" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Session{}, fmt.Errorf("session timezone: %w", err)
		}
		s.Loc = loc
	}
	var err error
	if open != "" {
		if s.Open, err = ParseClock(open); err != nil {
			return Session{}, fmt.Errorf("session open: %w", err)
		}
	}
	if close != "" {
		if s.Close, err = ParseClock(close); err != nil {
			return Session{}, fmt.Errorf("session close: %w", err)
		}
	}
	if preferFrom != "" {
		if s.PreferFrom, err = ParseClock(preferFrom); err != nil {
			return Session{}, fmt.Errorf("session prefer_from: %w", err)
		}
	}
	if s.Open >= s.Close {
		return Session{}, fmt.Errorf("session open %s must be before close %s", FormatClock(s.Open), FormatClock(s.Close))
	}
	return s, nil
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	layout := "15:04:05"
	if strings.Count(v, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

// FormatClock renders an offset from midnight as HH:MM:SS.
func FormatClock(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// clock returns t's offset from local midnight, truncated to the second.
func (s Session) clock(t time.Time) time.Duration {
	lt := t.In(s.Loc)
	return time.Duration(lt.Hour())*time.Hour + time.Duration(lt.Minute())*time.Minute + time.Duration(lt.Second())*time.Second
}

// InSession reports whether t's local clock time lies within [Open, Close].
// 15:30:00 is in session, 15:30:01 is not.
func (s Session) InSession(t time.Time) bool {
	c := s.clock(t)
	return c >= s.Open && c <= s.Close
}

// Preferred reports whether t is at or after the preferred close cutoff.
func (s Session) Preferred(t time.Time) bool {
	return s.clock(t) >= s.PreferFrom
}

// IsWeekday returns true if t is Mon–Fri in the session location.
func (s Session) IsWeekday(t time.Time) bool {
	wd := t.In(s.Loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// DayOf returns local midnight of t's calendar day.
func (s Session) DayOf(t time.Time) time.Time {
	lt := t.In(s.Loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, s.Loc)
}

// OpenOn returns the session open instant on t's local day.
func (s Session) OpenOn(t time.Time) time.Time { return s.DayOf(t).Add(s.Open) }

// CloseOn returns the session close instant on t's local day.
func (s Session) CloseOn(t time.Time) time.Time { return s.DayOf(t).Add(s.Close) }

// IsTradingDay returns true if t is a weekday and not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	return s.IsWeekday(t) && !IsHoliday(t)
}

// IsMarketOpen returns true if t falls on a trading day inside the session.
func (s Session) IsMarketOpen(t time.Time) bool {
	return s.IsTradingDay(t) && s.InSession(t)
}

// NextOpen returns the next session open on a trading day.
// If t is before today's open on a trading day, returns today's open.
func (s Session) NextOpen(t time.Time) time.Time {
	todayOpen := s.OpenOn(t)
	if t.Before(todayOpen) && s.IsTradingDay(t) {
		return todayOpen
	}
	d := s.DayOf(t).AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if s.IsTradingDay(d) {
			return d.Add(s.Open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.DayOf(t).AddDate(0, 0, 1).Add(s.Open)
}

// StatusString returns a human-readable market status.
func (s Session) StatusString(t time.Time) string {
	if s.IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(s.CloseOn(t).Sub(t)))
	}
	next := s.NextOpen(t)
	lt := next.In(s.Loc)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		lt.Weekday().String()[:3], lt.Format("15:04"), fmtDur(next.Sub(t)))
}

// IsMarketOpen reports whether the default NSE session is open at t.
func IsMarketOpen(t time.Time) bool { return DefaultSession().IsMarketOpen(t) }

// IsWeekday returns true if t is Mon–Fri in IST.
func IsWeekday(t time.Time) bool { return DefaultSession().IsWeekday(t) }

// IsTradingDay returns true if t is an IST weekday and not a holiday.
func IsTradingDay(t time.Time) bool { return DefaultSession().IsTradingDay(t) }

func hm(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
