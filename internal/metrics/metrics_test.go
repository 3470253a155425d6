package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_PrivateRegistries(t *testing.T) {
	// Two registries must not collide.
	reg1, reg2 := prometheus.NewRegistry(), prometheus.NewRegistry()
	m := NewMetrics(reg1)
	NewMetrics(reg2)

	m.RunsTotal.WithLabelValues("ok").Inc()
	m.AlertsTotal.WithLabelValues("RELIANCE").Add(2)

	rec := httptest.NewRecorder()
	Handler(reg1).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`rde_pipeline_runs_total{outcome="ok"} 1`,
		`rde_alerts_total{symbol="RELIANCE"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetSymbols([]string{"INFY", "TCS"})
	h.SetMarketOpen(true)
	h.RecordScan(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), 2, 0)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var got struct {
		Status     string   `json:"status"`
		MarketOpen bool     `json:"market_open"`
		Symbols    []string `json:"symbols"`
		LastScanOK int      `json:"last_scan_ok"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "healthy" || !got.MarketOpen || len(got.Symbols) != 2 || got.LastScanOK != 2 {
		t.Errorf("unexpected health %+v", got)
	}

	h.RecordScan(time.Now(), 1, 1)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("failed symbols should degrade health: %s", rec.Body.String())
	}
}
