package indicator

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"rde-engine/internal/model"
)

func points(prices []float64) []model.Point {
	start := time.Date(2025, 1, 6, 9, 15, 0, 0, time.UTC)
	out := make([]model.Point, len(prices))
	for i, p := range prices {
		out[i] = model.Point{TS: start.Add(time.Duration(i) * 15 * time.Minute), Price: p}
	}
	return out
}

// ─── Tracker ───

func TestTracker_IncrementalMatchesFullRecompute(t *testing.T) {
	prices := randomWalk(400, 5)
	pts := points(prices)
	tr := NewTracker(NewRSI(14))

	for _, n := range []int{5, 14, 15, 16, 100, 101, 250, 400} {
		got, ok, reseeded := tr.Advance(pts[:n])
		if reseeded {
			t.Errorf("n=%d: unexpected reseed on a growing series", n)
		}
		want, wantOK := RSIOf(prices[:n], 14)
		if ok != wantOK {
			t.Fatalf("n=%d: ok=%v, want %v", n, ok, wantOK)
		}
		if ok {
			assertClose(t, "incremental RSI", got, want, 1e-9)
		}
	}
	if s := tr.State(); s.LastIndex != 398 {
		t.Errorf("last index consumed=%d, want 398 (final point is only peeked)", s.LastIndex)
	}
}

func TestTracker_FormingBarChangesWithoutReseed(t *testing.T) {
	prices := randomWalk(60, 8)
	pts := points(prices)
	tr := NewTracker(NewEMA(9))
	tr.Advance(pts)

	// The final bar is re-polled with a new close.
	pts2 := append([]model.Point(nil), pts...)
	pts2[59].Price += 7.5
	got, ok, reseeded := tr.Advance(pts2)
	if reseeded {
		t.Error("changing only the final bar must not reseed")
	}
	prices2 := append([]float64(nil), prices...)
	prices2[59] += 7.5
	want, _ := EMAOf(prices2, 9)
	if !ok {
		t.Fatal("expected EMA value")
	}
	assertClose(t, "EMA after forming bar update", got, want, 1e-9)
}

func TestTracker_SlidingWindowAdvancesWithoutReseed(t *testing.T) {
	prices := randomWalk(120, 9)
	pts := points(prices)
	tr := NewTracker(NewEMA(9))
	tr.Advance(pts[:20])

	// Next day: the window start moved forward and one more bar arrived.
	got, ok, reseeded := tr.Advance(pts[3:21])
	if reseeded {
		t.Error("a forward-sliding window must not reseed")
	}
	if !ok {
		t.Fatal("expected EMA value")
	}
	want, _ := EMAOf(prices[:21], 9)
	assertClose(t, "EMA seeded once and advanced", got, want, 1e-9)
	truncated, _ := EMAOf(prices[3:21], 9)
	if math.Abs(got-truncated) < 1e-6 {
		t.Errorf("EMA equals the windowed recompute %v", truncated)
	}

	got, _, reseeded = tr.Advance(pts[10:90])
	if reseeded {
		t.Error("second slide must not reseed")
	}
	want, _ = EMAOf(prices[:90], 9)
	assertClose(t, "EMA after second slide", got, want, 1e-9)
}

func TestTracker_ReseedsWhenHistoryChanges(t *testing.T) {
	prices := randomWalk(80, 9)
	pts := points(prices)
	tr := NewTracker(NewSMA(10))
	tr.Advance(pts[:40])

	// The window jumped past the last committed point.
	_, _, reseeded := tr.Advance(pts[45:])
	if !reseeded {
		t.Error("expected reseed when the last committed point is gone")
	}
	got, _, _ := tr.Advance(pts[45:])
	want, _ := SMAOf(prices[45:], 10)
	assertClose(t, "SMA after reseed", got, want, 1e-9)

	// A committed bar was revised.
	revised := append([]model.Point(nil), pts[45:]...)
	revised[len(revised)-2].Price = 1
	got, _, reseeded = tr.Advance(revised)
	if !reseeded {
		t.Error("expected reseed when a committed point changes")
	}
	cl := make([]float64, len(revised))
	for i, p := range revised {
		cl[i] = p.Price
	}
	want, _ = SMAOf(cl, 10)
	assertClose(t, "SMA after revision", got, want, 1e-9)

	// Shrinking series.
	if _, _, reseeded = tr.Advance(revised[:20]); !reseeded {
		t.Error("expected reseed when the series shrinks")
	}
	if _, ok, _ := tr.Advance(nil); ok {
		t.Error("empty series must be absent")
	}
}

func TestTracker_StateRoundTrip(t *testing.T) {
	prices := randomWalk(120, 10)
	pts := points(prices)

	for _, typ := range []string{"SMA", "EMA", "SMMA", "RSI"} {
		a, _ := New(typ, 14)
		ta := NewTracker(a)
		ta.Advance(pts[:70])

		raw, err := json.Marshal(ta.State())
		if err != nil {
			t.Fatal(err)
		}
		var st State
		if err := json.Unmarshal(raw, &st); err != nil {
			t.Fatal(err)
		}

		b, _ := New(typ, 14)
		tb := NewTracker(b)
		if err := tb.Restore(st); err != nil {
			t.Fatalf("%s restore: %v", typ, err)
		}
		va, _, _ := ta.Advance(pts)
		vb, _, reseeded := tb.Advance(pts)
		if reseeded {
			t.Errorf("%s: restored tracker reseeded", typ)
		}
		assertClose(t, typ+" restored", vb, va, 1e-9)
	}
}

func TestRestore_RejectsMismatchedState(t *testing.T) {
	if err := NewEMA(9).Restore(NewSMA(9).Snapshot()); err == nil {
		t.Error("expected type mismatch error")
	}
	if err := NewRSI(14).Restore(NewRSI(9).Snapshot()); err == nil {
		t.Error("expected period mismatch error")
	}
}

// ─── Engine ───

func TestEngine_ComputeModes(t *testing.T) {
	intraday := randomWalk(200, 12)
	daily := randomWalk(40, 13)
	specs := []Spec{
		{Type: "RSI", Period: 14, Input: model.InputIntraday},
		{Type: "RSI", Period: 14, Input: model.InputDaily},
		{Type: "DMA", Period: 10, Input: model.InputDaily},
		{Type: "DMA", Period: 50, Input: model.InputDaily},
		{Type: "EMA", Period: 9, Input: model.InputDaily},
	}
	e := NewEngine(specs)
	inputs := map[model.Input][]model.Point{
		model.InputIntraday: points(intraday),
		model.InputDaily:    points(daily),
	}
	results, reseeds := e.Compute("RELIANCE", inputs)
	if reseeds != 0 {
		t.Errorf("first compute reseeds=%d", reseeds)
	}
	if len(results) != len(specs) {
		t.Fatalf("got %d results", len(results))
	}

	rsiIntra, _ := RSIOf(intraday, 14)
	rsiDaily, _ := RSIOf(daily, 14)
	dma10, _ := SMAOf(daily, 10)
	ema9, _ := EMAOf(daily, 9)
	assertClose(t, "RSI intraday", results[0].Value, rsiIntra, 1e-9)
	assertClose(t, "RSI daily", results[1].Value, rsiDaily, 1e-9)
	assertClose(t, "DMA 10", results[2].Value, dma10, 1e-9)
	assertClose(t, "EMA 9", results[4].Value, ema9, 1e-9)

	if results[3].Ready {
		t.Error("DMA 50 over 40 days must be absent")
	}
	if results[3].Value != 0 {
		t.Error("absent value must not carry a number")
	}
	if results[2].Key() != "dma_10" || results[0].Key() != "rsi_14" {
		t.Errorf("keys: %s %s", results[2].Key(), results[0].Key())
	}
	if len(e.Snapshot("RELIANCE")) != len(specs) {
		t.Error("snapshot should have one state per spec")
	}
	e.Forget("RELIANCE")
	if e.Snapshot("RELIANCE") != nil {
		t.Error("Forget should drop state")
	}
}

// ─── Spec parsing ───

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("RSI:14, dma:10,EMA:9,RSI:14@daily", model.InputIntraday)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"RSI_14@intraday", "DMA_10@daily", "EMA_9@daily", "RSI_14@daily"}
	for i, s := range specs {
		if s.Key() != want[i] {
			t.Errorf("spec %d = %s, want %s", i, s.Key(), want[i])
		}
	}
	if specs[0].MinPoints() != 15 || specs[1].MinPoints() != 10 {
		t.Error("unexpected MinPoints")
	}

	for _, bad := range []string{"", "RSI", "RSI:x", "MACD:12", "EMA:0", "EMA:9,EMA:9", "EMA:9@weekly"} {
		if _, err := ParseSpecs(bad, model.InputIntraday); err == nil {
			t.Errorf("ParseSpecs(%q) should fail", bad)
		}
	}
	_, err = ParseSpecs("EMA:9,EMA:9", model.InputIntraday)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}
