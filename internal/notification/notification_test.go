package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRSIAlert_Levels(t *testing.T) {
	ts := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	a := RSIAlert("TCS", "rsi_14", 72.346, 70, 4100.5, ts)
	if a.Level != AlertWarning {
		t.Errorf("level = %s, want WARNING", a.Level)
	}
	if a.Title != "TCS rsi_14 at 72.35" {
		t.Errorf("title = %q", a.Title)
	}
	if RSIAlert("TCS", "rsi_14", 80, 70, 1, ts).Level != AlertCritical {
		t.Error("10 points past the threshold should be critical")
	}
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	alert := RSIAlert("INFY", "rsi_14", 75, 70, 1890, time.Now())
	if err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), alert); err != nil {
		t.Fatal(err)
	}
	if got.Symbol != "INFY" || got.Value != 75 || got.Level != AlertWarning {
		t.Errorf("webhook received %+v", got)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhookNotifier(srv.URL, nil).Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Error("expected error on 502")
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "-100", nil).WithBaseURL(srv.URL)
	if err := n.Send(context.Background(), RSIAlert("HDFCBANK", "rsi_14", 71.5, 70, 1650.25, time.Now())); err != nil {
		t.Fatal(err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Errorf("path = %s", path)
	}
	if body["chat_id"] != "-100" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("body = %v", body)
	}
	if !strings.Contains(body["text"], `rsi\_14 at 71\.50`) {
		t.Errorf("text not escaped: %q", body["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c.d!"); got != `a\_b\*c\.d\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

type failing struct{ err error }

func (f failing) Send(context.Context, Alert) error { return f.err }

type counting struct{ n *int }

func (c counting) Send(context.Context, Alert) error { *c.n++; return nil }

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	n := 0
	boom := errors.New("boom")
	m := Multi{failing{boom}, counting{&n}, NewLogNotifier(nil)}
	err := m.Send(context.Background(), Alert{Title: "x"})
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
	if n != 1 {
		t.Errorf("later notifiers must still be called, n=%d", n)
	}
}
