// Package notification delivers indicator alerts to external channels
// (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Symbol    string     `json:"symbol,omitempty"`
	Indicator string     `json:"indicator,omitempty"` // e.g. "rsi_14"
	Value     float64    `json:"value,omitempty"`
	Threshold float64    `json:"threshold,omitempty"`
	Price     float64    `json:"price,omitempty"`
	TS        time.Time  `json:"ts"`
}

// RSIAlert builds the alert raised when an RSI reaches the threshold.
// Readings 10 points or more past the threshold are critical.
func RSIAlert(symbol, indicator string, value, threshold, price float64, ts time.Time) Alert {
	level := AlertWarning
	if value >= threshold+10 {
		level = AlertCritical
	}
	return Alert{
		Level:     level,
		Title:     fmt.Sprintf("%s %s at %.2f", symbol, indicator, value),
		Message:   fmt.Sprintf("%s reached %.2f (threshold %.2f), price %.2f", indicator, value, threshold, price),
		Symbol:    symbol,
		Indicator: indicator,
		Value:     value,
		Threshold: threshold,
		Price:     price,
		TS:        ts,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.LogAttrs(ctx, levelOf(alert.Level), alert.Title,
		slog.String("alert_level", string(alert.Level)),
		slog.String("symbol", alert.Symbol),
		slog.String("indicator", alert.Indicator),
		slog.Float64("value", alert.Value),
		slog.Float64("threshold", alert.Threshold),
		slog.Float64("price", alert.Price),
	)
	return nil
}

func levelOf(l AlertLevel) slog.Level {
	switch l {
	case AlertCritical:
		return slog.LevelError
	case AlertWarning:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Multi sends every alert to all of its notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
