package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("expected template config.toml: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != filepath.Join(dir, "trader.db") {
		t.Errorf("path = %q", cfg.Database.Path)
	}
	if cfg.Realtime.PriceInterval != 5*time.Second || cfg.Realtime.PortfolioInterval != 10*time.Second {
		t.Errorf("unexpected realtime intervals: %+v", cfg.Realtime)
	}
	if cfg.Trading.MinReasonLength != 50 {
		t.Errorf("min reason length = %d", cfg.Trading.MinReasonLength)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[trading]
default_balance = 250000.0

[leveling]
interval = "30m"
workers = 2
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Trading.DefaultBalance != 250000 {
		t.Errorf("default balance = %v", cfg.Trading.DefaultBalance)
	}
	if cfg.Leveling.Interval != 30*time.Minute || cfg.Leveling.Workers != 2 {
		t.Errorf("unexpected leveling config: %+v", cfg.Leveling)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("TRADER_DEFAULT_BALANCE", "5000")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Auth.JWTSecret != "0123456789abcdef0123" {
		t.Errorf("jwt secret not overridden")
	}
	if cfg.Trading.DefaultBalance != 5000 {
		t.Errorf("balance = %v", cfg.Trading.DefaultBalance)
	}
	if err := cfg.RequireSecret(); err != nil {
		t.Errorf("RequireSecret: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"zero balance", func(c *Config) { c.Trading.DefaultBalance = 0 }},
		{"fast tick", func(c *Config) { c.Realtime.PriceInterval = time.Millisecond }},
		{"no workers", func(c *Config) { c.Leveling.Workers = 0 }},
		{"kite without token", func(c *Config) { c.Quotes.Source = "kite" }},
		{"advisor without key", func(c *Config) { c.Advisor.Enabled = true }},
		{"advisor timeout too long", func(c *Config) { c.Advisor.Timeout = time.Minute }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
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
