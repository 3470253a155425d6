// cmd/rdescan computes indicators once and prints them, either as JSON for
// every symbol or as the intraday moving-average table for one symbol.
//
// Usage:
//
//	go run ./cmd/rdescan                          # all symbols, JSON
//	go run ./cmd/rdescan --symbol=TCS,INFY
//	go run ./cmd/rdescan --symbol=TCS --table --days=5
//	go run ./cmd/rdescan --source=parquet
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"rde-engine/config"
	"rde-engine/internal/app"
	"rde-engine/internal/logger"
	"rde-engine/internal/model"
	"rde-engine/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "config/rde.yaml", "Path to YAML config (optional)")
	symbols := flag.String("symbol", "", "Comma-separated symbols (default: all configured)")
	table := flag.Bool("table", false, "Print the moving-average timeline table for one symbol")
	days := flag.Int("days", 5, "Calendar days shown by --table")
	src := flag.String("source", "", "Override the data source: upstox, sqlite or parquet")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatalf("config: %v", err)
	}
	if *src != "" {
		cfg.Source = *src
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid config: %v", err)
	}

	// Logs go to stderr so stdout stays machine-readable.
	log := logger.New(os.Stderr, "rdescan", cfg.Log.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, err := app.OpenSource(cfg, log)
	if err != nil {
		fatalf("source: %v", err)
	}
	defer source.Close()

	opts, err := cfg.PipelineOptions()
	if err != nil {
		fatalf("%v", err)
	}
	pl, err := pipeline.New(source, opts, log, nil)
	if err != nil {
		fatalf("%v", err)
	}

	targets := pl.Symbols()
	if *symbols != "" {
		targets = splitSymbols(*symbols)
	}

	if *table {
		if len(targets) != 1 {
			fatalf("--table needs exactly one --symbol")
		}
		tl, err := pl.Timeline(ctx, targets[0], *days)
		if err != nil {
			fatalf("%v", err)
		}
		if err := printTimeline(os.Stdout, tl, opts.Session); err != nil {
			fatalf("%v", err)
		}
		return
	}

	out := scan(ctx, pl, targets, log)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encode: %v", err)
	}
}

// scanOutput is keyed by symbol. Symbols without a result are listed
// under errors.
type scanOutput struct {
	Results map[string]pipeline.Result `json:"results"`
	Errors  map[string]string          `json:"errors,omitempty"`
}

func scan(ctx context.Context, pl *pipeline.Pipeline, symbols []string, log *slog.Logger) scanOutput {
	out := scanOutput{Results: make(map[string]pipeline.Result), Errors: make(map[string]string)}
	for _, s := range symbols {
		report, err := pl.Run(ctx, s)
		if err != nil {
			var noData *model.NoDataError
			if !errors.As(err, &noData) {
				log.Error("[rdescan] run failed", slog.String("symbol", s), slog.Any("error", err))
			}
			out.Errors[s] = err.Error()
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out.Results[s] = pipeline.Present(report)
	}
	return out
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[rdescan] "+format+"\n", args...)
	os.Exit(1)
}
