package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"rde-engine/internal/model"
	"rde-engine/internal/pipeline"

	"github.com/gorilla/websocket"
)

const (
	defaultTimelineDays = 5
	maxTimelineDays     = 60
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Runner computes results on demand.
type Runner interface {
	Symbols() []string
	Run(ctx context.Context, symbol string) (*pipeline.Report, error)
	Timeline(ctx context.Context, symbol string, days int) (*pipeline.Timeline, error)
}

// Routes bundles what the HTTP surface serves.
type Routes struct {
	Hub     *Hub
	Runner  Runner
	Health  http.Handler // /api/health
	Metrics http.Handler // /metrics
	Log     *slog.Logger
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	log := rt.Log
	if log == nil {
		log = slog.Default()
	}
	hub := rt.Hub

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", slog.Any("error", err))
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		hub.Register(conn, lastSeq)
	})

	mux.HandleFunc("GET /api/symbols", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"symbols": rt.Runner.Symbols(),
			"seq":     hub.Seq(),
		})
	})

	mux.HandleFunc("GET /api/data", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.LatestAll())
	})

	// Latest result for one symbol. Served from the hub unless refresh is
	// requested or nothing has been computed yet.
	mux.HandleFunc("GET /api/data/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		if !refresh {
			if data, ok := hub.Latest(symbol); ok {
				SetCORS(w)
				w.Header().Set("Content-Type", "application/json")
				w.Write(data)
				return
			}
		}
		report, err := rt.Runner.Run(r.Context(), symbol)
		if err != nil {
			writeRunError(w, log, symbol, err)
			return
		}
		result := pipeline.Present(report)
		hub.Publish(r.Context(), report.Symbol, result)
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /api/timeline/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.PathValue("symbol")
		days := defaultTimelineDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxTimelineDays {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be between 1 and 60"})
				return
			}
			days = n
		}
		tl, err := rt.Runner.Timeline(r.Context(), symbol, days)
		if err != nil {
			writeRunError(w, log, symbol, err)
			return
		}
		writeJSON(w, http.StatusOK, tl)
	})

	// Buffered envelopes in [from, to], optionally for one symbol, for clients
	// that detected a gap.
	mux.HandleFunc("GET /api/replay", func(w http.ResponseWriter, r *http.Request) {
		from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if err1 != nil || err2 != nil || from > to {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from and to are required, from <= to"})
			return
		}
		symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
		entries := hub.replay.Range(from, to, symbol)
		out := make([]json.RawMessage, len(entries))
		for i, e := range entries {
			out[i] = e.Envelope
		}
		writeJSON(w, http.StatusOK, out)
	})

	if rt.Health != nil {
		mux.Handle("GET /api/health", rt.Health)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRunError(w http.ResponseWriter, log *slog.Logger, symbol string, err error) {
	var noData *model.NoDataError
	switch {
	case errors.Is(err, pipeline.ErrUnknownSymbol):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol " + symbol})
	case errors.As(err, &noData):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": noData.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled"})
	default:
		log.Error("on-demand run failed", slog.String("symbol", symbol), slog.Any("error", err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
}
