// Package sqlite is a local candle cache backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"rde-engine/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/candles.db"
}

// Store caches completed historical candle ranges per instrument and
// resolution.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens (or creates) the database with WAL mode and the cache schema.
func New(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite cache opened", slog.String("path", cfg.DBPath))
	return &Store{db: db, log: log.With(slog.String("component", "sqlite"))}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			instrument TEXT    NOT NULL,
			resolution INTEGER NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (instrument, resolution, ts)
		);

		CREATE TABLE IF NOT EXISTS fetched_ranges (
			instrument TEXT    NOT NULL,
			resolution INTEGER NOT NULL,
			from_day   TEXT    NOT NULL,
			to_day     TEXT    NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (instrument, resolution, from_day, to_day)
		);
	`)
	return err
}

// WriteRange stores the candles of one completed historical request and
// records the day range as covered, in a single transaction.
func (s *Store) WriteRange(ctx context.Context, instrument string, resolution int, from, to time.Time, candles model.Series) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (instrument, resolution, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, instrument, resolution, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO fetched_ranges (instrument, resolution, from_day, to_day, fetched_at)
		VALUES (?, ?, ?, ?, ?)
	`, instrument, resolution, dayKey(from), dayKey(to), time.Now().Unix()); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite mark range: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.log.Debug("committed range",
		slog.String("instrument", instrument),
		slog.Int("resolution", resolution),
		slog.Int("candles", len(candles)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }
