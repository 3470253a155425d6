// Package upstox fetches historical and intraday candles from the Upstox v3
// REST API.
package upstox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"rde-engine/internal/model"
	"rde-engine/internal/source"
)

const (
	DefaultBaseURL = "https://api.upstox.com/v3"
	dateLayout     = "2006-01-02"
)

// Config configures the Upstox client.
type Config struct {
	BaseURL     string
	AccessToken string // optional; passed through as a bearer token
	Timeout     time.Duration
}

// Client is the Upstox candle API client.
type Client struct {
	cfg   Config
	httpc *http.Client
	log   *slog.Logger
}

// Ensure the Client implements the DataSource interface.
var _ source.DataSource = (*Client)(nil)

// New creates an Upstox client.
func New(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		log:   log.With(slog.String("component", "upstox")),
	}
}

// URL returns the endpoint for a request.
//
//	historical: {base}/historical-candle/{key}/minutes/{res}/{to}/{from}
//	intraday:   {base}/historical-candle/intraday/{key}/minutes/{res}
func (c *Client) URL(req source.Request) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	key := url.PathEscape(req.Instrument)
	if req.Intraday {
		return fmt.Sprintf("%s/historical-candle/intraday/%s/minutes/%d", base, key, req.Resolution)
	}
	return fmt.Sprintf("%s/historical-candle/%s/minutes/%d/%s/%s",
		base, key, req.Resolution, req.To.Format(dateLayout), req.From.Format(dateLayout))
}

// FetchCandles performs one request and returns the rows of data.candles in
// the order the API sent them (newest first).
func (c *Client) FetchCandles(ctx context.Context, req source.Request) ([]model.RawCandle, error) {
	if req.Resolution <= 0 {
		return nil, fmt.Errorf("upstox: invalid resolution %d", req.Resolution)
	}
	u := c.URL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("upstox: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	start := time.Now()
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstox: fetch %s: %w", req, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstox: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "errors.0.message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("upstox: %s: status %d: %s", req, resp.StatusCode, msg)
	}

	rows, err := ParseCandles(body)
	if err != nil {
		return nil, fmt.Errorf("upstox: %s: %w", req, err)
	}
	c.log.Debug("fetched candles",
		slog.String("request", req.String()),
		slog.Int("rows", len(rows)),
		slog.Duration("took", time.Since(start)),
	)
	return rows, nil
}

// ParseCandles extracts data.candles from an API response body. Each row is
// returned as decoded JSON values; validation is left to the caller.
func ParseCandles(body []byte) ([]model.RawCandle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response")
	}
	if status := gjson.GetBytes(body, "status").String(); status != "" && status != "success" {
		return nil, fmt.Errorf("api status %q", status)
	}
	candles := gjson.GetBytes(body, "data.candles")
	if !candles.Exists() {
		return nil, nil
	}
	data := candles.Array()
	rows := make([]model.RawCandle, 0, len(data))
	for _, r := range data {
		if !r.IsArray() {
			// Kept as a one-field row so it is counted as malformed downstream.
			rows = append(rows, model.RawCandle{r.Value()})
			continue
		}
		fields := r.Array()
		row := make(model.RawCandle, len(fields))
		for i, f := range fields {
			row[i] = f.Value()
		}
		rows = append(rows, row)
	}
	return rows, nil
}
