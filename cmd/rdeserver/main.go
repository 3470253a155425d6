// cmd/rdeserver scans the configured symbols on a schedule and serves the
// latest indicator results over REST and WebSocket.
//
// Usage:
//
//	go run ./cmd/rdeserver --config=config/rde.yaml
//	go run ./cmd/rdeserver --mode=gateway   # serve results relayed from Redis
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rde-engine/config"
	"rde-engine/internal/app"
	"rde-engine/internal/gateway"
	"rde-engine/internal/logger"
	"rde-engine/internal/metrics"
	"rde-engine/internal/model"
	"rde-engine/internal/pipeline"
	"rde-engine/internal/scanner"
	redisstore "rde-engine/internal/store/redis"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	modeAll     = "all"
	modeGateway = "gateway"
)

func main() {
	cfgPath := flag.String("config", "config/rde.yaml", "Path to YAML config (optional)")
	mode := flag.String("mode", modeAll, "all: scan and serve; gateway: serve results relayed from Redis")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[rdeserver] config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[rdeserver] invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init("rdeserver", cfg.Log.Level, cfg.Log.Format)
	log.Info("[rdeserver] starting",
		slog.String("mode", *mode),
		slog.String("source", cfg.Source),
		slog.Int("symbols", len(cfg.Instruments)),
		slog.String("indicators", cfg.Indicators.Specs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, log); err != nil {
		log.Error("[rdeserver] fatal", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("[rdeserver] stopped")
}

func run(ctx context.Context, cfg *config.Config, mode string, log *slog.Logger) error {
	if mode != modeAll && mode != modeGateway {
		return fmt.Errorf("unknown mode %q", mode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	health.SetSymbols(model.Instruments(cfg.Instruments).Symbols())
	hub := gateway.NewHub(log, prom)

	var pub *redisstore.Publisher
	if cfg.Redis.Addr != "" {
		p, err := redisstore.New(redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			TTL:      cfg.Redis.TTL,
		}, log)
		switch {
		case err == nil:
			pub = p
			defer pub.Close()
		case mode == modeGateway:
			return fmt.Errorf("gateway mode needs redis: %w", err)
		default:
			log.Warn("[rdeserver] redis unavailable, results stay in-process", slog.Any("error", err))
		}
	} else if mode == modeGateway {
		return errors.New("gateway mode needs redis.addr")
	}

	src, err := app.OpenSource(cfg, log)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	defer src.Close()

	opts, err := cfg.PipelineOptions()
	if err != nil {
		return err
	}
	pl, err := pipeline.New(src, opts, log, prom)
	if err != nil {
		return err
	}

	var sc *scanner.Scanner
	switch mode {
	case modeAll:
		sc = scanner.New(pl, scanner.Options{
			Schedule:       cfg.Scan.Schedule,
			Workers:        cfg.Scan.Workers,
			OutsideHours:   cfg.Scan.OutsideHours,
			AlertThreshold: cfg.Scan.AlertThreshold,
		}, log, prom).
			AddSink("hub", hub).
			WithNotifier(app.Notifier(cfg, log)).
			WithHealth(health)
		if pub != nil {
			sc.AddSink("redis", pub)
		}
		if err := sc.Start(ctx); err != nil {
			return err
		}
		// Fill the hub without waiting for the first tick.
		go sc.ScanOnce(ctx)
	case modeGateway:
		go hub.Relay(ctx, pub.Subscribe(ctx))
	}

	var rdb *goredis.Client
	if pub != nil {
		rdb = pub.Client()
	}
	health.StartLivenessChecker(ctx, rdb, src.DB, 15*time.Second)
	go hub.StartStatusBroadcast(ctx, opts.Session, 5*time.Second)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, gateway.Routes{
		Hub:     hub,
		Runner:  pl,
		Health:  health,
		Metrics: metrics.Handler(reg),
		Log:     log,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("[rdeserver] listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	}

	log.Info("[rdeserver] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if sc != nil {
		sc.Stop(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
