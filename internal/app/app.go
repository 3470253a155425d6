// Package app assembles components from configuration for the commands.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"rde-engine/config"
	"rde-engine/internal/notification"
	"rde-engine/internal/source"
	"rde-engine/internal/source/barfile"
	"rde-engine/internal/source/upstox"
	sqlitestore "rde-engine/internal/store/sqlite"
)

// Source is the configured candle source and what must be closed with it.
type Source struct {
	source.DataSource

	// DB is the SQLite cache database, nil unless the sqlite source is used.
	DB      *sql.DB
	closers []func() error
}

// Close releases the source's resources.
func (s *Source) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenSource builds the source named by cfg.Source.
func OpenSource(cfg *config.Config, log *slog.Logger) (*Source, error) {
	sess, err := cfg.SessionWindow()
	if err != nil {
		return nil, err
	}
	client := func() *upstox.Client {
		return upstox.New(upstox.Config{
			BaseURL:     cfg.Upstox.BaseURL,
			AccessToken: cfg.Upstox.AccessToken,
			Timeout:     cfg.Upstox.Timeout,
		}, log)
	}

	switch cfg.Source {
	case config.SourceUpstox:
		return &Source{DataSource: client()}, nil

	case config.SourceSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLite.Path}, log)
		if err != nil {
			return nil, err
		}
		return &Source{
			DataSource: source.NewCached(client(), store, sess.Loc, log),
			DB:         store.DB(),
			closers:    []func() error{store.Close},
		}, nil

	case config.SourceParquet:
		return &Source{DataSource: barfile.New(cfg.Parquet.Dir, sess.Loc)}, nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

// Notifier fans alerts out to the log and every configured channel.
func Notifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.Notify.WebhookURL, log))
	}
	if cfg.Notify.Telegram.BotToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID, log))
	}
	return n
}
