// Package pipeline runs one instrument end to end: fetch every leg of the
// plan, merge, reduce to daily closes, compute indicators and classify them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rde-engine/internal/indicator"
	"rde-engine/internal/logger"
	"rde-engine/internal/marketdata"
	"rde-engine/internal/markethours"
	"rde-engine/internal/metrics"
	"rde-engine/internal/model"
	"rde-engine/internal/signal"
	"rde-engine/internal/source"
)

// ErrUnknownSymbol is returned for symbols missing from the instrument table.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Options is the immutable configuration of a pipeline.
type Options struct {
	Instruments model.Instruments
	Session     markethours.Session
	Plan        Plan
	Specs       []indicator.Spec
	Bands       signal.Bands
}

// Pipeline computes indicator reports. It is safe for concurrent use;
// runs for different symbols proceed in parallel.
type Pipeline struct {
	src    source.DataSource
	opts   Options
	engine *indicator.Engine
	log    *slog.Logger
	prom   *metrics.Metrics
	now    func() time.Time
}

// New validates opts and creates a pipeline over src. A nil logger uses
// slog.Default; nil metrics register on a private registry.
func New(src source.DataSource, opts Options, log *slog.Logger, prom *metrics.Metrics) (*Pipeline, error) {
	if src == nil {
		return nil, fmt.Errorf("pipeline: nil data source")
	}
	if len(opts.Instruments) == 0 {
		return nil, fmt.Errorf("pipeline: no instruments configured")
	}
	if err := indicator.ValidateSpecs(opts.Specs); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if err := opts.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if opts.Session.Loc == nil {
		opts.Session = markethours.DefaultSession()
	}
	if opts.Bands == (signal.Bands{}) {
		opts.Bands = signal.DefaultBands()
	}
	if log == nil {
		log = slog.Default()
	}
	if prom == nil {
		prom = metrics.NewMetrics(prometheus.NewRegistry())
	}
	return &Pipeline{
		src:    src,
		opts:   opts,
		engine: indicator.NewEngine(opts.Specs),
		log:    log.With(slog.String("component", "pipeline")),
		prom:   prom,
		now:    time.Now,
	}, nil
}

// WithClock replaces the wall clock used to place fetch windows.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Symbols returns the configured symbols, sorted.
func (p *Pipeline) Symbols() []string { return p.opts.Instruments.Symbols() }

// Session returns the trading session the pipeline filters with.
func (p *Pipeline) Session() markethours.Session { return p.opts.Session }

// Engine exposes the indicator engine for inspection.
func (p *Pipeline) Engine() *indicator.Engine { return p.engine }

// collected is the merged market data of one run.
type collected struct {
	all      model.Series // every leg and the price leg
	intraday model.Series // legs at the RSI resolution
	price    model.Series // price leg only
	dropped  int
}

// Run computes the report for symbol. A *model.NoDataError means no leg
// delivered a single candle.
func (p *Pipeline) Run(ctx context.Context, symbol string) (*Report, error) {
	start := time.Now()
	inst, ok := p.opts.Instruments.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSymbol, symbol)
	}
	log := p.log.With(slog.String("symbol", inst.Symbol))
	log = log.With(logger.LogWithTrace(ctx)...)

	data, err := p.collect(ctx, inst, log)
	if err != nil {
		p.prom.RunsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}

	sess := p.opts.Session
	days := marketdata.DailyCloses(data.all, sess)
	inputs := map[model.Input][]model.Point{
		model.InputIntraday: data.intraday.Points(),
		model.InputDaily:    model.DailyPoints(days),
	}
	results, reseeds := p.engine.Compute(inst.Key, inputs)

	price, priceTS := currentPrice(data, days)
	report := &Report{
		Symbol:     inst.Symbol,
		Instrument: inst.Key,
		Price:      price,
		PriceTS:    priceTS,
		DataPoints: len(days),
		Candles:    len(data.all),
		Dropped:    data.dropped,
		Reseeds:    reseeds,
		AsOf:       p.now(),
	}
	p.classify(report, results, inputs)

	p.prom.RunsTotal.WithLabelValues("ok").Inc()
	p.prom.RunDuration.Observe(time.Since(start).Seconds())
	p.prom.MergedCandles.Observe(float64(len(data.all)))
	p.prom.AccumulatorReseed.Add(float64(reseeds))
	p.prom.IndicatorsTotal.Add(float64(len(results) - len(report.Insufficient)))
	p.prom.IndicatorsAbsent.Add(float64(len(report.Insufficient)))

	log.Debug("run complete",
		slog.Float64("price", price),
		slog.Int("candles", len(data.all)),
		slog.Int("daily_closes", len(days)),
		slog.Int("dropped", data.dropped),
		slog.Int("reseeds", reseeds),
		slog.Duration("took", time.Since(start)),
	)
	return report, nil
}

// collect fetches and merges every leg of the plan. A failing leg is logged
// and treated as empty.
func (p *Pipeline) collect(ctx context.Context, inst model.Instrument, log *slog.Logger) (*collected, error) {
	plan := p.opts.Plan
	now := p.now()
	loc := p.opts.Session.Loc

	data := &collected{}
	var legs, rsiLegs []model.Series
	for _, leg := range plan.Legs {
		series, err := p.fetch(ctx, leg, leg.Request(inst.Key, now, loc), data, log)
		if err != nil {
			return nil, err
		}
		legs = append(legs, series)
		if plan.RSIResolution == 0 || leg.Resolution == plan.RSIResolution {
			rsiLegs = append(rsiLegs, series)
		}
	}
	if plan.PriceResolution > 0 {
		leg := Leg{Name: "price", Resolution: plan.PriceResolution, Intraday: true}
		series, err := p.fetch(ctx, leg, leg.Request(inst.Key, now, loc), data, log)
		if err != nil {
			return nil, err
		}
		data.price = series
		legs = append(legs, series)
	}

	all, err := marketdata.Merge(legs...)
	if err != nil {
		var nd *model.NoDataError
		if errors.As(err, &nd) {
			return nil, &model.NoDataError{Instrument: inst.Symbol}
		}
		return nil, err
	}
	data.all = all
	// No candles at the RSI resolution leaves the intraday series empty.
	data.intraday, _ = marketdata.Merge(rsiLegs...)
	if len(data.price) > 0 {
		data.price, _ = marketdata.Merge(data.price)
	}
	return data, nil
}

// fetch runs one leg. Only context cancellation is returned as an error.
func (p *Pipeline) fetch(ctx context.Context, leg Leg, req source.Request, data *collected, log *slog.Logger) (model.Series, error) {
	start := time.Now()
	rows, err := p.src.FetchCandles(ctx, req)
	p.prom.FetchDuration.WithLabelValues(leg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.prom.FetchErrors.WithLabelValues(leg.Name).Inc()
		log.Warn("fetch failed, leg treated as empty",
			slog.String("leg", leg.Name),
			slog.String("request", req.String()),
			slog.Any("err", err),
		)
		return nil, nil
	}

	series, errs := marketdata.ParseBatch(rows, p.opts.Session.Loc)
	if len(errs) > 0 {
		data.dropped += len(errs)
		p.prom.MalformedCandles.Add(float64(len(errs)))
		log.Warn("dropped malformed candles",
			slog.String("leg", leg.Name),
			slog.Int("dropped", len(errs)),
			slog.Any("first", errs[0]),
		)
	}
	return series, nil
}

// currentPrice is the latest close of the price leg, else the last daily
// close, else the last merged close.
func currentPrice(data *collected, days []model.DailyClose) (float64, time.Time) {
	if c, ok := data.price.Last(); ok {
		return c.Close, c.TS
	}
	if n := len(days); n > 0 {
		return days[n-1].Close, days[n-1].Date
	}
	c, _ := data.all.Last()
	return c.Close, c.TS
}

// classify fills comparisons, signals and trends into the report.
func (p *Pipeline) classify(r *Report, results []model.IndicatorResult, inputs map[model.Input][]model.Point) {
	specs := p.engine.Specs()
	var dmas []signal.MA
	var emas []emaValue

	for i := range results {
		res := &results[i]
		spec := specs[i]
		if !res.Ready {
			r.Insufficient = append(r.Insufficient, &model.InsufficientHistoryError{
				Indicator: spec.Type,
				Period:    spec.Period,
				Have:      len(inputs[spec.Input]),
				Need:      spec.MinPoints(),
			})
		}

		switch spec.Type {
		case "RSI":
			if res.Ready {
				res.Signal = string(p.opts.Bands.ClassifyRSI(res.Value))
			}
		default:
			if res.Ready {
				res.Reference = r.Price
				res.Difference = r.Price - res.Value
				if res.Value != 0 {
					res.DifferencePct = res.Difference / res.Value * 100
				}
				res.Signal = string(signal.ClassifyMA(r.Price, res.Value))
			}
			switch spec.Type {
			case "DMA", "SMA":
				dmas = append(dmas, signal.MA{Value: res.Value, OK: res.Ready})
			case "EMA":
				emas = append(emas, emaValue{period: spec.Period, ma: signal.MA{Value: res.Value, OK: res.Ready}})
			}
		}
	}

	r.Indicators = results
	r.Trend = signal.TrendFromMAs(r.Price, dmas)
	r.EMATrend = crossover(emas)
}

type emaValue struct {
	period int
	ma     signal.MA
}

// crossover compares the two shortest EMAs, fast against slow.
func crossover(emas []emaValue) signal.Trend {
	if len(emas) < 2 {
		return signal.Unknown
	}
	slices.SortFunc(emas, func(a, b emaValue) int { return a.period - b.period })
	return signal.Crossover(emas[0].ma, emas[1].ma)
}

func outcome(err error) string {
	var nd *model.NoDataError
	if errors.As(err, &nd) {
		return "no_data"
	}
	return "error"
}
