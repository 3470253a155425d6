package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rde-engine/internal/indicator"
	"rde-engine/internal/markethours"
	"rde-engine/internal/model"
	"rde-engine/internal/pipeline"
	"rde-engine/internal/signal"
)

// Source kinds.
const (
	SourceUpstox  = "upstox"
	SourceSQLite  = "sqlite"
	SourceParquet = "parquet"
)

// Config holds all application configuration.
type Config struct {
	// Symbol → data source instrument key, e.g. RELIANCE: "NSE_EQ|INE002A01018".
	Instruments map[string]string `yaml:"instruments"`

	Session struct {
		Timezone   string `yaml:"timezone"`
		Open       string `yaml:"open"`
		Close      string `yaml:"close"`
		PreferFrom string `yaml:"prefer_from"`
	} `yaml:"session"`

	Fetch pipeline.Plan `yaml:"fetch"`

	Indicators struct {
		Specs    string       `yaml:"specs"`     // "RSI:14,DMA:10,EMA:9"
		RSIInput string       `yaml:"rsi_input"` // intraday | daily
		Bands    signal.Bands `yaml:"bands"`
	} `yaml:"indicators"`

	// Source selects where candles come from: upstox, sqlite (upstox behind
	// the SQLite cache) or parquet.
	Source string `yaml:"source"`

	Upstox struct {
		BaseURL     string        `yaml:"base_url"`
		AccessToken string        `yaml:"access_token"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"upstox"`

	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	Parquet struct {
		Dir string `yaml:"dir"`
	} `yaml:"parquet"`

	Redis struct {
		Addr     string        `yaml:"addr"` // empty disables publishing
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Channel  string        `yaml:"channel"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Scan struct {
		Schedule       string  `yaml:"schedule"` // robfig/cron spec, e.g. "@every 30s"
		Workers        int     `yaml:"workers"`
		OutsideHours   bool    `yaml:"outside_hours"`
		AlertThreshold float64 `yaml:"alert_threshold"`
	} `yaml:"scan"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
		Telegram   struct {
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		} `yaml:"telegram"`
	} `yaml:"notify"`
}

// Load reads .env (if present) and the YAML file at path (if present), then
// applies environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	// Variables already in the environment take precedence over .env.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("RDE_INSTRUMENTS"); v != "" {
		m, err := ParseInstruments(v)
		if err != nil {
			return err
		}
		c.Instruments = m
	}
	if v := os.Getenv("RDE_INDICATORS"); v != "" {
		c.Indicators.Specs = v
	}
	if v := os.Getenv("RDE_RSI_INPUT"); v != "" {
		c.Indicators.RSIInput = v
	}
	if v := os.Getenv("RDE_SOURCE"); v != "" {
		c.Source = v
	}
	if v := os.Getenv("UPSTOX_TOKEN"); v != "" {
		c.Upstox.AccessToken = v
	}
	if v := os.Getenv("UPSTOX_BASE_URL"); v != "" {
		c.Upstox.BaseURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("RDE_PARQUET_DIR"); v != "" {
		c.Parquet.Dir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("RDE_SCAN_SCHEDULE"); v != "" {
		c.Scan.Schedule = v
	}
	if v := os.Getenv("RDE_SCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RDE_SCAN_WORKERS: %w", err)
		}
		c.Scan.Workers = n
	}
	if v := os.Getenv("RDE_SCAN_OUTSIDE_HOURS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RDE_SCAN_OUTSIDE_HOURS: %w", err)
		}
		c.Scan.OutsideHours = b
	}
	if v := os.Getenv("RDE_ALERT_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RDE_ALERT_THRESHOLD: %w", err)
		}
		c.Scan.AlertThreshold = f
	}
	if v := os.Getenv("RDE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("RDE_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Notify.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Notify.Telegram.ChatID = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Instruments) == 0 {
		c.Instruments = model.DefaultInstruments()
	} else {
		norm := make(map[string]string, len(c.Instruments))
		for s, k := range c.Instruments {
			norm[strings.ToUpper(strings.TrimSpace(s))] = strings.TrimSpace(k)
		}
		c.Instruments = norm
	}

	if c.Session.Timezone == "" {
		c.Session.Timezone = "Asia/Kolkata"
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:15"
	}
	if c.Session.Close == "" {
		c.Session.Close = "15:30"
	}
	if c.Session.PreferFrom == "" {
		c.Session.PreferFrom = "15:00"
	}

	if len(c.Fetch.Legs) == 0 {
		def := pipeline.DefaultPlan()
		c.Fetch.Legs = def.Legs
		if c.Fetch.PriceResolution == 0 {
			c.Fetch.PriceResolution = def.PriceResolution
		}
		if c.Fetch.RSIResolution == 0 {
			c.Fetch.RSIResolution = def.RSIResolution
		}
		if c.Fetch.DisplayResolution == 0 {
			c.Fetch.DisplayResolution = def.DisplayResolution
		}
	}

	if c.Indicators.Specs == "" {
		c.Indicators.Specs = "RSI:14,DMA:10,DMA:20,DMA:50,EMA:9,EMA:15"
	}
	if c.Indicators.RSIInput == "" {
		c.Indicators.RSIInput = string(model.InputIntraday)
	}
	if c.Indicators.Bands == (signal.Bands{}) {
		c.Indicators.Bands = signal.DefaultBands()
	}

	if c.Source == "" {
		c.Source = SourceUpstox
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/candles.db"
	}
	if c.Parquet.Dir == "" {
		c.Parquet.Dir = "data/bars"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "rde:results"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}

	if c.Scan.Schedule == "" {
		c.Scan.Schedule = "@every 30s"
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 1
	}
	if c.Scan.AlertThreshold == 0 {
		c.Scan.AlertThreshold = 70
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments: at least one symbol is required")
	}
	for s, k := range c.Instruments {
		if s == "" || k == "" {
			return fmt.Errorf("instruments: empty symbol or key (%q: %q)", s, k)
		}
		// Upstox keys carry the exchange segment, e.g. NSE_EQ|INE002A01018.
		if c.Source != SourceParquet && (model.Instrument{Symbol: s, Key: k}).Segment() == "" {
			return fmt.Errorf("instruments: %s key %q has no exchange segment", s, k)
		}
	}
	if _, err := c.SessionWindow(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if _, err := c.IndicatorSpecs(); err != nil {
		return err
	}
	b := c.Indicators.Bands
	if b.Oversold < 0 || b.Overbought > 100 || b.Oversold >= b.Overbought {
		return fmt.Errorf("indicators.bands: need 0 <= oversold < overbought <= 100, got %v/%v", b.Oversold, b.Overbought)
	}
	switch c.Source {
	case SourceUpstox, SourceSQLite, SourceParquet:
	default:
		return fmt.Errorf("source: unknown kind %q", c.Source)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive")
	}
	if c.Scan.AlertThreshold <= 0 || c.Scan.AlertThreshold > 100 {
		return fmt.Errorf("scan.alert_threshold must be in (0, 100]")
	}
	if (c.Notify.Telegram.BotToken == "") != (c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram: bot_token and chat_id must be set together")
	}
	return nil
}

// SessionWindow builds the trading session.
func (c *Config) SessionWindow() (markethours.Session, error) {
	s, err := markethours.NewSession(c.Session.Timezone, c.Session.Open, c.Session.Close, c.Session.PreferFrom)
	if err != nil {
		return markethours.Session{}, fmt.Errorf("session: %w", err)
	}
	return s, nil
}

// IndicatorSpecs parses the configured indicator list.
func (c *Config) IndicatorSpecs() ([]indicator.Spec, error) {
	input := model.Input(strings.ToLower(strings.TrimSpace(c.Indicators.RSIInput)))
	specs, err := indicator.ParseSpecs(c.Indicators.Specs, input)
	if err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}
	return specs, nil
}

// PipelineOptions assembles the immutable pipeline configuration.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	sess, err := c.SessionWindow()
	if err != nil {
		return pipeline.Options{}, err
	}
	specs, err := c.IndicatorSpecs()
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Instruments: model.Instruments(c.Instruments),
		Session:     sess,
		Plan:        c.Fetch,
		Specs:       specs,
		Bands:       c.Indicators.Bands,
	}, nil
}

// ParseInstruments parses "RELIANCE=NSE_EQ|INE002A01018,TCS=NSE_EQ|INE467B01029".
func ParseInstruments(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, key, ok := strings.Cut(part, "=")
		sym, key = strings.ToUpper(strings.TrimSpace(sym)), strings.TrimSpace(key)
		if !ok || sym == "" || key == "" {
			return nil, fmt.Errorf("instrument %q: want SYMBOL=KEY", part)
		}
		out[sym] = key
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no instruments in %q", s)
	}
	return out, nil
}
