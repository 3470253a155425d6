package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "rde-test", "info", "json")
	log.Debug("hidden")
	log.Info("scan finished", slog.Int("symbols", 5))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["service"] != "rde-test" || rec["msg"] != "scan finished" || rec["symbols"] != float64(5) {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "rde-test", "debug", "text").Debug("hello")
	if !strings.Contains(buf.String(), "service=rde-test") || !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("unexpected text output %q", buf.String())
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	tid := GenerateTraceID("scan")
	if !strings.HasPrefix(tid, "scan-") {
		t.Fatalf("expected trace id to start with 'scan-', got %s", tid)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(tid, "scan-")); err != nil {
		t.Errorf("suffix is not a uuid: %v", err)
	}
	if GenerateTraceID("scan") == tid {
		t.Error("trace ids should be unique")
	}
	if _, err := uuid.Parse(GenerateTraceID("")); err != nil {
		t.Errorf("unprefixed id should be a bare uuid: %v", err)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	if attrs := LogWithTrace(ctx); len(attrs) != 1 {
		t.Fatalf("expected one attr with trace id set, got %v", attrs)
	}
}
