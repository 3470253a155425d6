// Package redis publishes presented indicator results to Redis: the latest
// result per symbol under a key with a TTL, and every result on a PubSub
// channel. It is a latest-value cache, not a history store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	latestPrefix   = "rde:latest:"
	defaultChannel = "rde:results"
	defaultTTL     = 24 * time.Hour
)

// LatestKey is the key holding a symbol's latest result.
func LatestKey(symbol string) string { return latestPrefix + symbol }

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Channel  string        // PubSub channel, default "rde:results"
	TTL      time.Duration // latest-key expiry, default 24h
}

// Publisher writes results through a circuit breaker. While the breaker is
// open the newest payload per symbol is held back and flushed on the next
// successful publish.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	breaker *CircuitBreaker
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]string
}

// New connects to Redis and pings the server.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := NewWithClient(client, cfg, log)
	p.log.Info("connected", slog.String("addr", cfg.Addr))
	return p, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, log *slog.Logger) *Publisher {
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		client:  client,
		cfg:     cfg,
		breaker: NewCircuitBreaker(5, 10*time.Second),
		log:     log.With(slog.String("component", "redis")),
		pending: make(map[string]string),
	}
	p.breaker.OnStateChange = func(from, to State) {
		p.log.Warn("circuit breaker transition", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker guarding writes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// Publish stores v as symbol's latest result and announces it on the
// channel, in one pipeline round trip.
func (p *Publisher) Publish(ctx context.Context, symbol string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis publish %s: marshal: %w", symbol, err)
	}
	payload := string(b)

	batch := p.takePending()
	batch[symbol] = payload

	err = p.breaker.Execute(func() error { return p.write(ctx, batch) })
	if err != nil {
		p.hold(batch)
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		return fmt.Errorf("redis publish %s: %w", symbol, err)
	}
	if len(batch) > 1 {
		p.log.Info("flushed held results", slog.Int("count", len(batch)-1))
	}
	return nil
}

func (p *Publisher) write(ctx context.Context, batch map[string]string) error {
	symbols := make([]string, 0, len(batch))
	for s := range batch {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	pipe := p.client.Pipeline()
	for _, s := range symbols {
		pipe.Set(ctx, LatestKey(s), batch[s], p.cfg.TTL)
		pipe.Publish(ctx, p.cfg.Channel, batch[s])
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (p *Publisher) takePending() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = make(map[string]string, len(out)+1)
	return out
}

// hold keeps a failed batch unless a newer payload arrived meanwhile.
func (p *Publisher) hold(batch map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for s, v := range batch {
		if _, ok := p.pending[s]; !ok {
			p.pending[s] = v
		}
	}
}

// Pending returns how many symbols have results held back.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Latest reads a symbol's latest result. A missing key returns nil, nil.
func (p *Publisher) Latest(ctx context.Context, symbol string) ([]byte, error) {
	b, err := p.client.Get(ctx, LatestKey(symbol)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", LatestKey(symbol), err)
	}
	return b, nil
}

// Subscribe listens on the results channel.
func (p *Publisher) Subscribe(ctx context.Context) *goredis.PubSub {
	return p.client.Subscribe(ctx, p.cfg.Channel)
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
