// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"virtual-trader/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig    `mapstructure:"database"`
	Server   ServerConfig      `mapstructure:"server"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Trading  TradingConfig     `mapstructure:"trading"`
	Realtime RealtimeConfig    `mapstructure:"realtime"`
	Leveling LevelingConfig    `mapstructure:"leveling"`
	Quotes   QuotesConfig      `mapstructure:"quotes"`
	Advisor  AdvisorConfig     `mapstructure:"advisor"`
	Logging  logging.LogConfig `mapstructure:"logging"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigin  string        `mapstructure:"allowed_origin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig holds identity token verification settings.
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	AdminToken string        `mapstructure:"admin_token"` // empty disables /admin
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	DefaultBalance  float64 `mapstructure:"default_balance"`
	MinReasonLength int     `mapstructure:"min_reason_length"`
}

// RealtimeConfig holds distribution hub configuration.
type RealtimeConfig struct {
	PriceInterval        time.Duration `mapstructure:"price_interval"`
	PortfolioInterval    time.Duration `mapstructure:"portfolio_interval"`
	MarketStatusInterval time.Duration `mapstructure:"market_status_interval"`
	MarketHoursOnly      bool          `mapstructure:"market_hours_only"`
	SubscriberBuffer     int           `mapstructure:"subscriber_buffer"`
}

// LevelingConfig holds level evaluation job configuration.
type LevelingConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	WeekdaysOnly bool          `mapstructure:"weekdays_only"`
}

// QuotesConfig selects the quote source.
type QuotesConfig struct {
	Source          string `mapstructure:"source"` // store, kite
	Exchange        string `mapstructure:"exchange"`
	KiteAPIKey      string `mapstructure:"kite_api_key"`
	KiteAccessToken string `mapstructure:"kite_access_token"`
}

// AdvisorConfig holds AI advisory configuration.
type AdvisorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MaxAdvisorTimeout caps the advisory call.
const MaxAdvisorTimeout = 20 * time.Second

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/virtual-trader"
	}
	return filepath.Join(home, ".config", "virtual-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(configDir, "trader.db"))
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origin", "*")
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("auth.issuer", "virtual-trader")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("trading.default_balance", 100000.0)
	v.SetDefault("trading.min_reason_length", 50)

	v.SetDefault("realtime.price_interval", 5*time.Second)
	v.SetDefault("realtime.portfolio_interval", 10*time.Second)
	v.SetDefault("realtime.market_status_interval", time.Minute)
	v.SetDefault("realtime.market_hours_only", false)
	v.SetDefault("realtime.subscriber_buffer", 64)

	v.SetDefault("leveling.interval", time.Hour)
	v.SetDefault("leveling.workers", 4)
	v.SetDefault("leveling.weekdays_only", false)

	v.SetDefault("quotes.source", "store")
	v.SetDefault("quotes.exchange", "NSE")

	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.model", "gpt-4o-mini")
	v.SetDefault("advisor.timeout", 15*time.Second)

	def := logging.DefaultLogConfig()
	def.FilePath = filepath.Join(configDir, "logs", "trader.log")
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.console", def.Console)
	v.SetDefault("logging.file", def.File)
	v.SetDefault("logging.file_path", def.FilePath)
	v.SetDefault("logging.max_size", def.MaxSize)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age", def.MaxAge)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRADER_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRADER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TRADER_ADMIN_TOKEN"); v != "" {
		cfg.Auth.AdminToken = v
	}
	if v := os.Getenv("TRADER_DEFAULT_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.DefaultBalance = f
		}
	}

	// Kite credentials
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Quotes.KiteAPIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Quotes.KiteAccessToken = v
	}

	// OpenAI credentials
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Advisor.APIKey = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be 'sqlite' or 'postgres')", c.Database.Driver)
	}

	if c.Trading.DefaultBalance <= 0 {
		return fmt.Errorf("trading.default_balance must be positive")
	}
	if c.Trading.MinReasonLength < 0 {
		return fmt.Errorf("trading.min_reason_length must be non-negative")
	}

	if c.Realtime.PriceInterval < time.Second || c.Realtime.PortfolioInterval < time.Second {
		return fmt.Errorf("realtime intervals must be at least 1s")
	}
	if c.Realtime.MarketStatusInterval < time.Second {
		return fmt.Errorf("realtime.market_status_interval must be at least 1s")
	}
	if c.Leveling.Interval < time.Second {
		return fmt.Errorf("leveling.interval must be at least 1s")
	}
	if c.Leveling.Workers < 1 {
		return fmt.Errorf("leveling.workers must be at least 1")
	}

	switch c.Quotes.Source {
	case "store":
	case "kite":
		if c.Quotes.KiteAPIKey == "" || c.Quotes.KiteAccessToken == "" {
			return fmt.Errorf("kite quote source requires kite_api_key and kite_access_token")
		}
	default:
		return fmt.Errorf("invalid quote source: %s (must be 'store' or 'kite')", c.Quotes.Source)
	}

	if c.Advisor.Enabled && c.Advisor.APIKey == "" {
		return fmt.Errorf("advisor.api_key is required when the advisor is enabled")
	}
	if c.Advisor.Timeout <= 0 || c.Advisor.Timeout > MaxAdvisorTimeout {
		return fmt.Errorf("advisor.timeout must be between 0 and %s", MaxAdvisorTimeout)
	}

	return nil
}

// RequireSecret reports an error when no JWT secret is configured.
// Only the server and token commands need one.
func (c *Config) RequireSecret() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be at least 16 characters")
	}
	return nil
}
