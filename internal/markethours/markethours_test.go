package markethours

import (
	"testing"
	"time"
)

func ist(y int, m time.Month, d, h, min, s int) time.Time {
	return time.Date(y, m, d, h, min, s, 0, IST)
}

func TestInSession_Boundaries(t *testing.T) {
	s := DefaultSession()
	cases := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{"before open", ist(2025, 1, 6, 9, 14, 59), false},
		{"at open", ist(2025, 1, 6, 9, 15, 0), true},
		{"midday", ist(2025, 1, 6, 12, 0, 0), true},
		{"at close", ist(2025, 1, 6, 15, 30, 0), true},
		{"one second after close", ist(2025, 1, 6, 15, 30, 1), false},
		{"15:31", ist(2025, 1, 6, 15, 31, 0), false},
		{"utc instant inside window", time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC), true}, // 09:30 IST
		{"utc instant after close", time.Date(2025, 1, 6, 10, 5, 0, 0, time.UTC), false}, // 15:35 IST
	}
	for _, c := range cases {
		if got := s.InSession(c.ts); got != c.want {
			t.Errorf("%s: InSession(%s)=%v, want %v", c.name, c.ts, got, c.want)
		}
	}
}

func TestInSession_SubSecondAtClose(t *testing.T) {
	s := DefaultSession()
	ts := time.Date(2025, 1, 6, 15, 30, 0, 500_000_000, IST)
	if !s.InSession(ts) {
		t.Error("15:30:00.5 should count as the 15:30:00 second")
	}
}

func TestIsWeekday(t *testing.T) {
	s := DefaultSession()
	if s.IsWeekday(ist(2025, 1, 4, 12, 0, 0)) { // Saturday
		t.Error("Saturday reported as weekday")
	}
	if s.IsWeekday(ist(2025, 1, 5, 12, 0, 0)) { // Sunday
		t.Error("Sunday reported as weekday")
	}
	if !s.IsWeekday(ist(2025, 1, 6, 12, 0, 0)) { // Monday
		t.Error("Monday not reported as weekday")
	}
	// Friday 20:00 UTC is Saturday 01:30 IST.
	if s.IsWeekday(time.Date(2025, 1, 3, 20, 0, 0, 0, time.UTC)) {
		t.Error("weekday must be evaluated in IST")
	}
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("", "09:00", "15:00:30", "14:30")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !s.InSession(ist(2025, 1, 6, 15, 0, 30)) {
		t.Error("expected 15:00:30 in custom session")
	}
	if s.InSession(ist(2025, 1, 6, 15, 0, 31)) {
		t.Error("expected 15:00:31 outside custom session")
	}
	if FormatClock(s.PreferFrom) != "14:30:00" {
		t.Errorf("prefer from = %s", FormatClock(s.PreferFrom))
	}

	if _, err := NewSession("", "15:30", "09:15", ""); err == nil {
		t.Error("expected error for open after close")
	}
	if _, err := NewSession("", "9h15", "", ""); err == nil {
		t.Error("expected error for bad clock")
	}
}

func TestNewSession_Timezone(t *testing.T) {
	s, err := NewSession("Asia/Kolkata", "", "", "")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if s.Loc.String() != "Asia/Kolkata" {
		t.Errorf("loc = %s", s.Loc)
	}
	if !s.InSession(time.Date(2025, 1, 6, 3, 45, 0, 0, time.UTC)) {
		t.Error("09:15 IST should open the session")
	}

	if _, err := NewSession("Asia/Kolkatta", "", "", ""); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if s, err := NewSession("IST", "", "", ""); err != nil || s.Loc != IST {
		t.Errorf("IST should use the fixed zone, got %v %v", s.Loc, err)
	}
}

func TestIsMarketOpen_Holiday(t *testing.T) {
	// Republic Day 2026 is a Monday.
	if IsMarketOpen(ist(2026, 1, 26, 10, 0, 0)) {
		t.Error("market should be closed on Republic Day")
	}
	if !IsMarketOpen(ist(2026, 1, 27, 10, 0, 0)) {
		t.Error("market should be open on a regular Tuesday")
	}
	if !IsHoliday(ist(2025, 10, 21, 10, 0, 0)) {
		t.Error("Diwali 2025 should be a holiday")
	}
}

func TestNextOpen_SkipsWeekend(t *testing.T) {
	s := DefaultSession()
	// Friday after close → Monday open.
	got := s.NextOpen(ist(2025, 1, 10, 16, 0, 0))
	want := ist(2025, 1, 13, 9, 15, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen=%s, want %s", got, want)
	}
	// Before open on a trading day → same day.
	got = s.NextOpen(ist(2025, 1, 13, 8, 0, 0))
	if !got.Equal(want) {
		t.Errorf("NextOpen=%s, want %s", got, want)
	}
}

func TestStatusString(t *testing.T) {
	s := DefaultSession()
	if got := s.StatusString(ist(2025, 1, 6, 15, 0, 0)); got != "Market Open, closes in 30m" {
		t.Errorf("status=%q", got)
	}
	if got := s.StatusString(ist(2025, 1, 10, 16, 0, 0)); got != "Market Closed, opens Mon 09:15 (65h15m)" {
		t.Errorf("status=%q", got)
	}
}
