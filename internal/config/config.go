// Package config loads tracker settings from an optional YAML file and the
// environment. Environment variables win over the file; engine parameters
// are clamped by ledger.Params.Normalize rather than rejected.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/freelilwilly/polymarket-tracker/internal/ledger"
)

// MinReportInterval is the shortest interval the reporter polls at.
const MinReportInterval = time.Minute

// Config is the complete tracker configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Store    StoreConfig   `yaml:"store"`
	Persist  PersistConfig `yaml:"persist"`
	Engine   ledger.Params `yaml:"engine"`
	Report   ReportConfig  `yaml:"report"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the snapshot store. An empty DatabaseURL means the
// in-memory store.
type StoreConfig struct {
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// PersistConfig controls snapshot write retries.
type PersistConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// ReportConfig contains reporter settings.
type ReportConfig struct {
	Label      string        `yaml:"label"`
	Interval   time.Duration `yaml:"interval"`
	WarnROIPct float64       `yaml:"warn_roi_pct"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			CacheTTL: 30 * time.Second,
		},
		Persist: PersistConfig{
			Attempts: 3,
			Backoff:  200 * time.Millisecond,
		},
		Engine: ledger.DefaultParams(),
		Report: ReportConfig{
			Label:      "default",
			Interval:   time.Hour,
			WarnROIPct: -25,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Engine = cfg.Engine.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("REDIS_URL", &c.Store.RedisURL)
	dur("CACHE_TTL", &c.Store.CacheTTL)
	dur("PERSIST_BACKOFF", &c.Persist.Backoff)

	num("STARTING_BANKROLL", &c.Engine.StartingBankroll)
	num("BASE_RISK_PCT", &c.Engine.BaseRiskPct)
	num("MIN_MULTIPLIER", &c.Engine.MinMultiplier)
	num("MAX_MULTIPLIER", &c.Engine.MaxMultiplier)
	num("MAX_TRADE_NOTIONAL_PCT", &c.Engine.MaxTradeNotionalPct)
	num("MAX_MARKET_NOTIONAL_PCT", &c.Engine.MaxMarketNotionalPct)
	num("MAX_ACCOUNT_NOTIONAL_PCT", &c.Engine.MaxAccountNotionalPct)
	num("CURVE_POWER", &c.Engine.CurvePower)
	num("LOW_SIZE_THRESHOLD_RATIO", &c.Engine.LowSizeThresholdRatio)
	num("LOW_SIZE_HAIRCUT_POWER", &c.Engine.LowSizeHaircutPower)
	num("LOW_SIZE_HAIRCUT_MIN_FACTOR", &c.Engine.LowSizeHaircutMin)

	str("REPORT_LABEL", &c.Report.Label)
	dur("REPORT_INTERVAL", &c.Report.Interval)
	num("REPORT_WARN_ROI_PCT", &c.Report.WarnROIPct)

	if v, ok := lookup("PERSIST_ATTEMPTS"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("PERSIST_ATTEMPTS: %w", err))
		} else {
			c.Persist.Attempts = n
		}
	}
	return errors.Join(errs...)
}

// Validate checks the non-engine settings.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	if c.Store.RedisURL != "" && c.Store.DatabaseURL == "" {
		return fmt.Errorf("store.redis_url requires store.database_url")
	}
	if c.Store.CacheTTL < 0 {
		return fmt.Errorf("store.cache_ttl must not be negative")
	}
	if c.Persist.Attempts < 1 {
		return fmt.Errorf("persist.attempts must be at least 1")
	}
	if c.Persist.Backoff < 0 {
		return fmt.Errorf("persist.backoff must not be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ReportInterval returns the reporter interval, never below MinReportInterval.
func (c *Config) ReportInterval() time.Duration {
	if c.Report.Interval < MinReportInterval {
		return MinReportInterval
	}
	return c.Report.Interval
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
