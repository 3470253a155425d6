package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"rde-engine/internal/indicator"
	"rde-engine/internal/markethours"
	"rde-engine/internal/model"
	"rde-engine/internal/signal"
	"rde-engine/internal/source"
)

var ist = markethours.IST

func at(day, h, m int) time.Time { return time.Date(2025, 1, day, h, m, 0, 0, ist) }

func raw(ts time.Time, close float64) model.RawCandle {
	return model.RawCandle{ts.Format(time.RFC3339), close, close, close, close, 100.0}
}

func assertClose(t *testing.T, label string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s: got %.12f, want %.12f", label, got, want)
	}
}

// now is Wednesday 2025-01-08 15:20 IST.
func clock() time.Time { return at(8, 15, 20) }

func newPipeline(t *testing.T, src source.DataSource, specs string, plan Plan) *Pipeline {
	t.Helper()
	parsed, err := indicator.ParseSpecs(specs, model.InputIntraday)
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(src, Options{
		Instruments: model.Instruments{"RELIANCE": "NSE_EQ|INE002A01018"},
		Session:     markethours.DefaultSession(),
		Plan:        plan,
		Specs:       parsed,
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return p.WithClock(clock)
}

var rsiScenario = []float64{44, 44.5, 43, 44.5, 45, 45.5, 46, 45.5, 46, 47, 46.5, 47.5, 47, 46.5}

func intradayRows(prices []float64) []model.RawCandle {
	rows := make([]model.RawCandle, len(prices))
	for i, p := range prices {
		rows[i] = raw(at(8, 9, 15).Add(time.Duration(15*i)*time.Minute), p)
	}
	return rows
}

func TestRun_RSIScenario(t *testing.T) {
	prices := append([]float64(nil), rsiScenario...)
	src := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		if !req.Intraday {
			t.Errorf("unexpected historical request %s", req)
		}
		return intradayRows(prices), nil
	})
	plan := Plan{Legs: []Leg{{Name: "intraday", Resolution: 15, Intraday: true}}, RSIResolution: 15}
	p := newPipeline(t, src, "RSI:9", plan)

	report, err := p.Run(context.Background(), "reliance")
	if err != nil {
		t.Fatal(err)
	}
	rsi, ok := report.Indicator("RSI", 9)
	if !ok || !rsi.Ready {
		t.Fatalf("RSI_9 missing: %+v", report.Indicators)
	}
	assertClose(t, "RSI(9)", rsi.Value, 5132800.0/84713.0)
	assert.Equal(t, string(signal.Neutral), rsi.Signal)
	assert.Equal(t, "RELIANCE", report.Symbol)
	assert.Equal(t, 1, report.DataPoints)
	assert.Equal(t, 46.5, report.Price)

	// The forming bar is re-polled with a new price: no reseed, and the
	// value matches a full recomputation.
	prices[len(prices)-1] = 47.25
	report, err = p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := indicator.RSIOf(prices, 9)
	rsi, _ = report.Indicator("RSI", 9)
	assertClose(t, "RSI(9) re-polled", rsi.Value, want)
	assert.Equal(t, 0, report.Reseeds)

	// A new bar extends the series.
	prices = append(prices, 48)
	report, _ = p.Run(context.Background(), "RELIANCE")
	want, _ = indicator.RSIOf(prices, 9)
	rsi, _ = report.Indicator("RSI", 9)
	assertClose(t, "RSI(9) extended", rsi.Value, want)
	assert.Equal(t, 0, report.Reseeds)

	// A revision of the last committed bar forces one reseed from full
	// history.
	prices[len(prices)-2] = 47.5
	report, _ = p.Run(context.Background(), "RELIANCE")
	want, _ = indicator.RSIOf(prices, 9)
	rsi, _ = report.Indicator("RSI", 9)
	assertClose(t, "RSI(9) revised", rsi.Value, want)
	assert.Equal(t, 1, report.Reseeds)
}

// dailySource serves five completed days at 15m, a 1m price leg for today
// and 60m display candles.
func dailySource(t *testing.T) source.Func {
	return func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		switch {
		case req.Resolution == 15 && !req.Intraday:
			if !req.From.Equal(time.Date(2024, 12, 9, 0, 0, 0, 0, ist)) || !req.To.Equal(time.Date(2025, 1, 7, 0, 0, 0, 0, ist)) {
				t.Errorf("recent leg window = %s", req)
			}
			return []model.RawCandle{
				raw(at(1, 15, 15), 10),
				raw(at(2, 15, 15), 20),
				raw(at(3, 15, 15), 30),
				raw(at(6, 15, 15), 40),
				raw(at(7, 15, 15), 50),
			}, nil
		case req.Resolution == 1 && req.Intraday:
			return []model.RawCandle{raw(at(8, 10, 0), 60)}, nil
		case req.Resolution == 60 && !req.Intraday:
			return []model.RawCandle{
				raw(at(6, 10, 15), 44),
				raw(at(7, 9, 15), 41),
				raw(at(7, 12, 15), 39),
				raw(at(7, 15, 30), 49),
				raw(at(7, 15, 45), 52),
			}, nil
		case req.Resolution == 60 && req.Intraday:
			return []model.RawCandle{raw(at(8, 9, 15), 58)}, nil
		}
		return nil, nil
	}
}

func dailyPlan() Plan {
	return Plan{
		Legs: []Leg{
			{Name: "recent", Resolution: 15, FromDaysAgo: 30, ToDaysAgo: 1},
			{Name: "intraday", Resolution: 15, Intraday: true},
		},
		PriceResolution:   1,
		RSIResolution:     15,
		DisplayResolution: 60,
	}
}

const dailySpecs = "RSI:14,DMA:3,DMA:10,EMA:2,EMA:3"

func TestRun_DailyAverages(t *testing.T) {
	p := newPipeline(t, dailySource(t), dailySpecs, dailyPlan())
	report, err := p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, 60.0, report.Price)
	assert.Equal(t, 6, report.DataPoints)

	dma3, _ := report.Indicator("DMA", 3)
	assertClose(t, "DMA(3)", dma3.Value, 50)
	assertClose(t, "DMA(3) difference", dma3.Difference, 10)
	assertClose(t, "DMA(3) difference pct", dma3.DifferencePct, 20)
	assert.Equal(t, string(signal.Above), dma3.Signal)

	ema2, _ := report.Indicator("EMA", 2)
	ema3, _ := report.Indicator("EMA", 3)
	assertClose(t, "EMA(2)", ema2.Value, 55)
	assertClose(t, "EMA(3)", ema3.Value, 50)
	assert.Equal(t, signal.Bullish, report.EMATrend)

	// Only DMA(3) is present and the price is above it.
	assert.Equal(t, signal.StrongBullish, report.Trend)

	if len(report.Insufficient) != 2 {
		t.Fatalf("insufficient = %v", report.Insufficient)
	}
	assert.Equal(t, "RSI_14: insufficient history (have 5, need 15)", report.Insufficient[0].Error())
	assert.Equal(t, "DMA_10: insufficient history (have 6, need 10)", report.Insufficient[1].Error())
}

// closesSource serves one 15:15 candle per weekday inside the requested
// window and a 10:00 candle for the current day on intraday requests.
func closesSource(now *time.Time, closes map[time.Time]float64) source.Func {
	return func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		if req.Intraday {
			day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, ist)
			return []model.RawCandle{raw(day.Add(10*time.Hour), closes[day])}, nil
		}
		var rows []model.RawCandle
		for d := req.From; !d.After(req.To); d = d.AddDate(0, 0, 1) {
			if c, ok := closes[d]; ok {
				rows = append(rows, raw(d.Add(15*time.Hour+15*time.Minute), c))
			}
		}
		return rows, nil
	}
}

func TestRun_ConsecutiveDaysAdvanceWithoutReseed(t *testing.T) {
	closes := make(map[time.Time]float64)
	var ordered []time.Time
	for d := time.Date(2024, 12, 2, 0, 0, 0, 0, ist); !d.After(at(9, 0, 0)); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		i := len(ordered)
		closes[d] = 100 + float64(i%7)*3 - float64(i%3)*5
		ordered = append(ordered, d)
	}
	series := func(from, to time.Time) []float64 {
		var out []float64
		for _, d := range ordered {
			if !d.Before(from) && !d.After(to) {
				out = append(out, closes[d])
			}
		}
		return out
	}

	now := at(8, 15, 20)
	plan := Plan{Legs: []Leg{
		{Name: "recent", Resolution: 15, FromDaysAgo: 30, ToDaysAgo: 1},
		{Name: "intraday", Resolution: 15, Intraday: true},
	}}
	p := newPipeline(t, closesSource(&now, closes), "EMA:9", plan).WithClock(func() time.Time { return now })

	report, err := p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	day1Start := time.Date(2024, 12, 9, 0, 0, 0, 0, ist)
	want, _ := indicator.EMAOf(series(day1Start, at(8, 0, 0)), 9)
	ema, _ := report.Indicator("EMA", 9)
	assertClose(t, "EMA(9) day 1", ema.Value, want)
	assert.Equal(t, 0, report.Reseeds)

	// The next day the window starts one day later.
	now = at(9, 15, 20)
	report, err = p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, report.Reseeds)
	want, _ = indicator.EMAOf(series(day1Start, at(9, 0, 0)), 9)
	ema, _ = report.Indicator("EMA", 9)
	assertClose(t, "EMA(9) day 2 seeded once", ema.Value, want)

	windowed, _ := indicator.EMAOf(series(day1Start.AddDate(0, 0, 1), at(9, 0, 0)), 9)
	if math.Abs(ema.Value-windowed) < 1e-9 {
		t.Errorf("day 2 EMA %v equals the windowed recompute", ema.Value)
	}
}

func TestPresent(t *testing.T) {
	p := newPipeline(t, dailySource(t), dailySpecs, dailyPlan())
	report, err := p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	res := Present(report)

	assert.Equal(t, 60.0, res.CurrentPrice)
	assert.Equal(t, 6, res.DataPoints)
	if res.RSI["rsi_14"].Value != nil {
		t.Errorf("absent RSI should be nil, got %v", *res.RSI["rsi_14"].Value)
	}
	assert.Equal(t, 50.0, *res.DMA["dma_3"].Value)
	assert.Equal(t, 20.0, *res.DMA["dma_3"].DifferencePct)
	assert.Equal(t, "Above", *res.DMA["dma_3"].Signal)
	assert.Equal(t, 55.0, *res.EMA["ema_2"].Value)

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"dma_10":{"value":null,"difference":null,"difference_pct":null,"signal":null}`,
		`"rsi_14":{"value":null,"signal":null}`,
		`"current_price":60`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("json missing %s in %s", want, b)
		}
	}
}

func TestPresent_RoundsOnlyAtBoundary(t *testing.T) {
	report := &Report{
		Symbol: "TCS",
		Price:  123.456,
		Indicators: []model.IndicatorResult{
			{Name: "DMA", Period: 10, Ready: true, Value: 100.0 / 3, Difference: 123.456 - 100.0/3, DifferencePct: (123.456 - 100.0/3) / (100.0 / 3) * 100, Signal: "Above"},
			{Name: "RSI", Period: 14, Ready: true, Value: 5132800.0 / 84713.0, Signal: "Neutral"},
		},
	}
	res := Present(report)
	assert.Equal(t, 123.46, res.CurrentPrice)
	assert.Equal(t, 33.33, *res.DMA["dma_10"].Value)
	assert.Equal(t, 90.12, *res.DMA["dma_10"].Difference)
	assert.Equal(t, 270.37, *res.DMA["dma_10"].DifferencePct)
	assert.Equal(t, 60.59, *res.RSI["rsi_14"].Value)

	// The report itself keeps full precision.
	assert.Equal(t, 123.456, report.Price)
}

func TestRun_NoData(t *testing.T) {
	src := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		return nil, nil
	})
	p := newPipeline(t, src, dailySpecs, dailyPlan())
	_, err := p.Run(context.Background(), "RELIANCE")
	var nd *model.NoDataError
	if !errors.As(err, &nd) {
		t.Fatalf("expected NoDataError, got %v", err)
	}
	assert.Equal(t, "RELIANCE", nd.Instrument)
}

func TestRun_FailedLegAndMalformedRows(t *testing.T) {
	src := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		if req.Intraday {
			return nil, errors.New("upstream 503")
		}
		return []model.RawCandle{
			raw(at(6, 15, 15), 40),
			{"not a time", 1.0, 1.0, 1.0, 1.0, 1.0},
			{"2025-01-07T15:15:00+05:30", 1.0},
			raw(at(7, 15, 15), 50),
		}, nil
	})
	p := newPipeline(t, src, dailySpecs, dailyPlan())
	report, err := p.Run(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 2, report.Dropped)
	assert.Equal(t, 2, report.DataPoints)
	// Without a price leg the current price is the last daily close.
	assert.Equal(t, 50.0, report.Price)
}

func TestRun_ContextCanceled(t *testing.T) {
	src := source.Func(func(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
		return nil, ctx.Err()
	})
	p := newPipeline(t, src, dailySpecs, dailyPlan())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, "RELIANCE"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_UnknownSymbol(t *testing.T) {
	p := newPipeline(t, dailySource(t), dailySpecs, dailyPlan())
	_, err := p.Run(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestTimeline(t *testing.T) {
	p := newPipeline(t, dailySource(t), dailySpecs, dailyPlan())
	tl, err := p.Timeline(context.Background(), "RELIANCE", 2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []string{"dma_3", "dma_10", "ema_2", "ema_3"}, tl.Columns)

	// 2025-01-06 is before the window and 15:45 is after the close.
	if len(tl.Rows) != 4 {
		t.Fatalf("rows = %d, want 4: %+v", len(tl.Rows), tl.Rows)
	}
	wantTS := []time.Time{at(7, 9, 15), at(7, 12, 15), at(7, 15, 30), at(8, 9, 15)}
	wantDMA := []float64{40, 40, 40, 50}
	wantTrend := []signal.Trend{signal.StrongBullish, signal.StrongBearish, signal.StrongBullish, signal.StrongBullish}
	for i, row := range tl.Rows {
		if !row.TS.Equal(wantTS[i]) {
			t.Errorf("row %d ts = %s, want %s", i, row.TS, wantTS[i])
		}
		if row.Values[0] == nil {
			t.Fatalf("row %d: dma_3 absent", i)
		}
		assertClose(t, "dma_3 as of date", *row.Values[0], wantDMA[i])
		if row.Values[1] != nil {
			t.Errorf("row %d: dma_10 should be absent", i)
		}
		assert.Equal(t, wantTrend[i], row.Trend)
	}
	assertClose(t, "ema_2 on 2025-01-08", *tl.Rows[3].Values[2], 55)
}

func TestLeg_Request(t *testing.T) {
	leg := Leg{Name: "history", Resolution: 240, FromDaysAgo: 90, ToDaysAgo: 31}
	req := leg.Request("NSE_EQ|X", clock(), ist)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, ist), req.From)
	assert.Equal(t, time.Date(2024, 12, 8, 0, 0, 0, 0, ist), req.To)
	assert.Equal(t, 240, req.Resolution)

	intraday := Leg{Resolution: 1, Intraday: true}.Request("NSE_EQ|X", clock(), ist)
	assert.True(t, intraday.Intraday)
	assert.True(t, intraday.From.IsZero())
}

func TestPlan_Validate(t *testing.T) {
	if err := DefaultPlan().Validate(); err != nil {
		t.Errorf("default plan: %v", err)
	}
	assert.Equal(t, 90, DefaultPlan().Span())

	bad := []Plan{
		{},
		{Legs: []Leg{{Name: "x", Resolution: 0, Intraday: true}}},
		{Legs: []Leg{{Name: "x", Resolution: 15, FromDaysAgo: 1, ToDaysAgo: 5}}},
		{Legs: []Leg{{Name: "x", Resolution: 15, Intraday: true}}, PriceResolution: -1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("plan %d should be invalid", i)
		}
	}
}
