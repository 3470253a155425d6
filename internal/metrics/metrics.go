package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
type Metrics struct {
	// Pipeline
	RunsTotal        *prometheus.CounterVec // labels: outcome=ok|no_data|error
	RunDuration      prometheus.Histogram
	FetchDuration    *prometheus.HistogramVec // labels: leg
	FetchErrors      *prometheus.CounterVec   // labels: leg
	MalformedCandles prometheus.Counter
	MergedCandles    prometheus.Histogram

	// Indicator engine
	IndicatorsTotal   prometheus.Counter
	IndicatorsAbsent  prometheus.Counter
	AccumulatorReseed prometheus.Counter

	// Scanner
	ScansTotal   prometheus.Counter
	ScansSkipped *prometheus.CounterVec // labels: reason=market_closed|busy
	ScanDuration prometheus.Histogram
	AlertsTotal  *prometheus.CounterVec // labels: symbol

	// Publishing and serving
	PublishErrors *prometheus.CounterVec // labels: sink
	WSClients     prometheus.Gauge

	// Market session state
	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the metric set and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rde_pipeline_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rde_pipeline_run_duration_seconds",
			Help:    "End-to-end latency of one instrument run",
			Buckets: prometheus.DefBuckets,
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rde_source_fetch_duration_seconds",
			Help:    "Data source fetch latency per plan leg",
			Buckets: prometheus.DefBuckets,
		}, []string{"leg"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rde_source_fetch_errors_total",
			Help: "Data source fetches that failed and were treated as empty",
		}, []string{"leg"}),
		MalformedCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rde_malformed_candles_total",
			Help: "Raw candles dropped during parsing",
		}),
		MergedCandles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rde_merged_candles",
			Help:    "Candles in the merged series per run",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		}),

		IndicatorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rde_indicators_total",
			Help: "Indicator values computed",
		}),
		IndicatorsAbsent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rde_indicators_absent_total",
			Help: "Indicators left absent for insufficient history",
		}),
		AccumulatorReseed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rde_accumulator_reseeds_total",
			Help: "Accumulators rebuilt from the start of their series",
		}),

		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rde_scans_total",
			Help: "Scheduled scans executed",
		}),
		ScansSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rde_scans_skipped_total",
			Help: "Scheduled scans skipped",
		}, []string{"reason"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rde_scan_duration_seconds",
			Help:    "Latency of a full scan over all symbols",
			Buckets: prometheus.DefBuckets,
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rde_alerts_total",
			Help: "RSI alerts raised",
		}, []string{"symbol"}),

		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rde_publish_errors_total",
			Help: "Result publish failures by sink",
		}, []string{"sink"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rde_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),

		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rde_market_state",
			Help: "Market session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.FetchDuration,
		m.FetchErrors,
		m.MalformedCandles,
		m.MergedCandles,
		m.IndicatorsTotal,
		m.IndicatorsAbsent,
		m.AccumulatorReseed,
		m.ScansTotal,
		m.ScansSkipped,
		m.ScanDuration,
		m.AlertsTotal,
		m.PublishErrors,
		m.WSClients,
		m.MarketState,
	)

	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	MarketOpen     bool      `json:"market_open"`
	LastScanAt     time.Time `json:"last_scan_at"`
	LastScanOK     int       `json:"last_scan_ok"`
	LastScanFailed int       `json:"last_scan_failed"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.MarketOpen = v
	h.mu.Unlock()
}

// RecordScan stores the outcome of the latest scan.
func (h *HealthStatus) RecordScan(at time.Time, ok, failed int) {
	h.mu.Lock()
	h.LastScanAt = at
	h.LastScanOK = ok
	h.LastScanFailed = failed
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the cache database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown || h.LastScanFailed > 0 {
		overallStatus = "degraded"
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastScan := ""
	if !h.LastScanAt.IsZero() {
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		MarketOpen      bool     `json:"market_open"`
		Symbols         []string `json:"symbols"`
		LastScanAt      string   `json:"last_scan_at"`
		LastScanOK      int      `json:"last_scan_ok"`
		LastScanFailed  int      `json:"last_scan_failed"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		MarketOpen:      h.MarketOpen,
		Symbols:         h.Symbols,
		LastScanAt:      lastScan,
		LastScanOK:      h.LastScanOK,
		LastScanFailed:  h.LastScanFailed,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
