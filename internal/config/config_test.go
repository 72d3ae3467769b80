package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log_level: debug
server:
  port: "9090"
engine:
  starting_bankroll: 5000
  curve_power: 2
report:
  label: tail-a
  interval: 30m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" || cfg.LogLevel != "debug" {
		t.Errorf("server settings not loaded: %+v", cfg.Server)
	}
	if cfg.Engine.StartingBankroll != 5000 || cfg.Engine.CurvePower != 2 {
		t.Errorf("engine params not loaded: %+v", cfg.Engine)
	}
	// Untouched keys keep their defaults.
	if cfg.Engine.BaseRiskPct != 0.01 || cfg.Persist.Attempts != 3 {
		t.Errorf("defaults lost: %+v %+v", cfg.Engine, cfg.Persist)
	}
	if cfg.Report.Label != "tail-a" || cfg.Report.Interval != 30*time.Minute {
		t.Errorf("report settings not loaded: %+v", cfg.Report)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_NormalizesEngine(t *testing.T) {
	path := writeFile(t, `
engine:
  starting_bankroll: -10
  low_size_haircut_min_factor: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.StartingBankroll != 1 || cfg.Engine.LowSizeHaircutMin != 1 {
		t.Errorf("engine params not clamped: %+v", cfg.Engine)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                "7000",
		"DATABASE_URL":        "postgres://localhost/tracker",
		"REDIS_URL":           "redis://localhost:6379/0",
		"STARTING_BANKROLL":   "2500",
		"BASE_RISK_PCT":       " 0.03 ",
		"PERSIST_ATTEMPTS":    "5",
		"REPORT_INTERVAL":     "2h",
		"REPORT_WARN_ROI_PCT": "-10",
		"LOG_LEVEL":           "",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7000" || cfg.Store.RedisURL == "" || cfg.Store.DatabaseURL == "" {
		t.Errorf("string overrides not applied: %+v", cfg)
	}
	if cfg.Engine.StartingBankroll != 2500 || cfg.Engine.BaseRiskPct != 0.03 {
		t.Errorf("engine overrides not applied: %+v", cfg.Engine)
	}
	if cfg.Persist.Attempts != 5 || cfg.Report.Interval != 2*time.Hour || cfg.Report.WarnROIPct != -10 {
		t.Errorf("numeric overrides not applied: %+v %+v", cfg.Persist, cfg.Report)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("empty env var should not override, got %q", cfg.LogLevel)
	}
}

func TestApplyEnv_ReportsBadValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"STARTING_BANKROLL": "lots",
		"REPORT_INTERVAL":   "hourly",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"STARTING_BANKROLL", "REPORT_INTERVAL"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-numeric port", func(c *Config) { c.Server.Port = "http" }},
		{"redis without postgres", func(c *Config) { c.Store.RedisURL = "redis://x" }},
		{"zero attempts", func(c *Config) { c.Persist.Attempts = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestReportIntervalFloor(t *testing.T) {
	cfg := Default()
	cfg.Report.Interval = 10 * time.Second
	if got := cfg.ReportInterval(); got != MinReportInterval {
		t.Errorf("expected %v, got %v", MinReportInterval, got)
	}
}
