// Package scanner runs the pipeline for every configured symbol on a cron
// schedule, publishes presented results and raises RSI alerts.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"rde-engine/internal/logger"
	"rde-engine/internal/markethours"
	"rde-engine/internal/metrics"
	"rde-engine/internal/model"
	"rde-engine/internal/notification"
	"rde-engine/internal/pipeline"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Runner computes one symbol's report.
type Runner interface {
	Symbols() []string
	Session() markethours.Session
	Run(ctx context.Context, symbol string) (*pipeline.Report, error)
}

// Publisher receives every presented result.
type Publisher interface {
	Publish(ctx context.Context, symbol string, v any) error
}

// Options configures a Scanner.
type Options struct {
	Schedule       string        // robfig/cron spec, e.g. "@every 30s" or "*/5 9-15 * * 1-5"
	Workers        int           // concurrent symbol runs, 1 scans sequentially
	OutsideHours   bool          // scan even when the market is closed
	AlertThreshold float64       // RSI at or above this raises an alert
	Timeout        time.Duration // per-scan deadline, 0 for none
}

// Summary describes one scan.
type Summary struct {
	ScanID   string        `json:"scan_id"`
	At       time.Time     `json:"at"`
	Skipped  string        `json:"skipped,omitempty"` // market_closed | busy
	OK       []string      `json:"ok"`
	NoData   []string      `json:"no_data"`
	Failed   []string      `json:"failed"`
	Alerts   []string      `json:"alerts"`
	Duration time.Duration `json:"duration"`
}

type sink struct {
	name string
	pub  Publisher
}

// Scanner schedules and executes scans.
type Scanner struct {
	runner   Runner
	opts     Options
	log      *slog.Logger
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	notifier notification.Notifier
	sinks    []sink
	now      func() time.Time

	cron    *cron.Cron
	running sync.Mutex

	mu    sync.Mutex
	above map[string]bool // alert key → RSI was at or above threshold last scan
}

// New creates a scanner. prom may be nil.
func New(runner Runner, opts Options, log *slog.Logger, prom *metrics.Metrics) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{
		runner: runner,
		opts:   opts,
		log:    log.With(slog.String("component", "scanner")),
		prom:   prom,
		now:    time.Now,
		above:  make(map[string]bool),
	}
}

// AddSink registers a publisher under name, used as the metrics label.
func (s *Scanner) AddSink(name string, p Publisher) *Scanner {
	s.sinks = append(s.sinks, sink{name: name, pub: p})
	return s
}

// WithNotifier sets where alerts go.
func (s *Scanner) WithNotifier(n notification.Notifier) *Scanner {
	s.notifier = n
	return s
}

// WithHealth records scan outcomes on h.
func (s *Scanner) WithHealth(h *metrics.HealthStatus) *Scanner {
	s.health = h
	return s
}

// WithClock overrides the clock used for market gating.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Start schedules scans in the session's time zone. Scans run with ctx
// until Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	clog := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLocation(s.runner.Session().Loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := s.cron.AddFunc(s.opts.Schedule, func() { s.ScanOnce(ctx) }); err != nil {
		return fmt.Errorf("scanner: schedule %q: %w", s.opts.Schedule, err)
	}
	s.cron.Start()
	s.log.Info("scanner started",
		slog.String("schedule", s.opts.Schedule),
		slog.Int("workers", s.opts.Workers),
		slog.Int("symbols", len(s.runner.Symbols())))
	return nil
}

// Stop stops scheduling and waits for a running scan to finish or ctx to
// expire.
func (s *Scanner) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scanner stopped")
}

// ScanOnce runs every symbol once. It returns an error only when ctx ends
// the scan; per-symbol failures are reported in the summary.
func (s *Scanner) ScanOnce(ctx context.Context) (Summary, error) {
	start := s.now()
	sum := Summary{ScanID: logger.GenerateTraceID("scan"), At: start}
	ctx = logger.WithTraceID(ctx, sum.ScanID)
	log := s.log.With(slog.String("scan_id", sum.ScanID))

	open := s.runner.Session().IsMarketOpen(start)
	if s.health != nil {
		s.health.SetMarketOpen(open)
	}
	if s.prom != nil {
		s.prom.MarketState.Set(boolGauge(open))
	}
	if !open && !s.opts.OutsideHours {
		sum.Skipped = "market_closed"
		s.skip(sum.Skipped)
		log.Debug("market closed, scan skipped")
		return sum, nil
	}
	if !s.running.TryLock() {
		sum.Skipped = "busy"
		s.skip(sum.Skipped)
		log.Warn("previous scan still running, scan skipped")
		return sum, nil
	}
	defer s.running.Unlock()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, symbol := range s.runner.Symbols() {
		g.Go(func() error {
			outcome, alerts := s.scanSymbol(gctx, symbol, log)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeOK:
				sum.OK = append(sum.OK, symbol)
			case outcomeNoData:
				sum.NoData = append(sum.NoData, symbol)
			default:
				sum.Failed = append(sum.Failed, symbol)
			}
			sum.Alerts = append(sum.Alerts, alerts...)
			return nil
		})
	}
	g.Wait()

	sort.Strings(sum.OK)
	sort.Strings(sum.NoData)
	sort.Strings(sum.Failed)
	sort.Strings(sum.Alerts)
	sum.Duration = s.now().Sub(start)

	if s.prom != nil {
		s.prom.ScansTotal.Inc()
		s.prom.ScanDuration.Observe(sum.Duration.Seconds())
	}
	if s.health != nil {
		s.health.RecordScan(start, len(sum.OK), len(sum.Failed))
	}
	log.Info("scan complete",
		slog.Int("ok", len(sum.OK)),
		slog.Int("no_data", len(sum.NoData)),
		slog.Int("failed", len(sum.Failed)),
		slog.Int("alerts", len(sum.Alerts)),
		slog.Duration("duration", sum.Duration))

	if err := ctx.Err(); err != nil {
		return sum, err
	}
	return sum, nil
}

const (
	outcomeOK     = "ok"
	outcomeNoData = "no_data"
	outcomeFailed = "failed"
)

func (s *Scanner) scanSymbol(ctx context.Context, symbol string, log *slog.Logger) (string, []string) {
	report, err := s.runner.Run(ctx, symbol)
	var noData *model.NoDataError
	switch {
	case errors.As(err, &noData):
		log.Warn("no data, symbol skipped", slog.String("symbol", symbol))
		return outcomeNoData, nil
	case err != nil:
		log.Error("run failed", slog.String("symbol", symbol), slog.Any("error", err))
		return outcomeFailed, nil
	}

	result := pipeline.Present(report)
	for _, sk := range s.sinks {
		if err := sk.pub.Publish(ctx, symbol, result); err != nil {
			if s.prom != nil {
				s.prom.PublishErrors.WithLabelValues(sk.name).Inc()
			}
			log.Warn("publish failed", slog.String("symbol", symbol), slog.String("sink", sk.name), slog.Any("error", err))
		}
	}
	return outcomeOK, s.checkAlerts(ctx, report, log)
}

// checkAlerts notifies when a ready RSI rises to the threshold. An alert
// fires once per crossing and re-arms when the RSI drops back below.
func (s *Scanner) checkAlerts(ctx context.Context, r *pipeline.Report, log *slog.Logger) []string {
	if s.opts.AlertThreshold <= 0 {
		return nil
	}
	var fired []string
	for _, res := range r.Indicators {
		if res.Name != "RSI" || !res.Ready {
			continue
		}
		key := r.Symbol + ":" + res.Key()
		hit := res.Value >= s.opts.AlertThreshold

		s.mu.Lock()
		was := s.above[key]
		s.above[key] = hit
		s.mu.Unlock()
		if !hit || was {
			continue
		}

		fired = append(fired, key)
		if s.prom != nil {
			s.prom.AlertsTotal.WithLabelValues(r.Symbol).Inc()
		}
		if s.notifier == nil {
			continue
		}
		alert := notification.RSIAlert(r.Symbol, res.Key(), res.Value, s.opts.AlertThreshold, r.Price, r.AsOf)
		if err := s.notifier.Send(ctx, alert); err != nil {
			log.Warn("alert delivery failed", slog.String("alert", key), slog.Any("error", err))
		}
	}
	return fired
}

func (s *Scanner) skip(reason string) {
	if s.prom != nil {
		s.prom.ScansSkipped.WithLabelValues(reason).Inc()
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
