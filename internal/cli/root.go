// Package cli provides the command-line interface for the virtual trading engine.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"virtual-trader/internal/config"
	"virtual-trader/internal/leveling"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/quotes"
	"virtual-trader/internal/store"
	"virtual-trader/internal/trading"
	"virtual-trader/pkg/utils"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const skipConfig = "skip-config"

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	ConfigDir string
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Virtual Trader - paper trading engine for the Indian stock market",
		Long: `Virtual Trader is a paper trading engine for NSE stocks.

Users trade with virtual money against real or imported quotes, every trade
carries a written thesis, and performance is tracked through trading levels.

Run 'trader serve' to start the HTTP and websocket server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			app.ConfigDir = dir

			debug, _ := cmd.Flags().GetBool("debug")
			if cmd.Annotations[skipConfig] == "" {
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				if debug {
					cfg.Logging.Level = "debug"
				}
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/virtual-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	addAccountCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addQuoteCommands(rootCmd, app)
	rootCmd.AddCommand(newLevelsCmd(app))
	rootCmd.AddCommand(newTokenCmd(app))

	return rootCmd
}

// services are the engine components shared by the commands.
type services struct {
	store     store.Store
	quotes    quotes.Source
	engine    *trading.Engine
	desk      *trading.Desk
	valuation *trading.Valuation
	stats     *trading.Statistics
	accounts  *trading.Accounts
	evaluator *leveling.Evaluator
	levels    *leveling.Job
}

func (a *App) open(ctx context.Context) (*services, error) {
	cfg := a.Config
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Database.Driver, err)
	}

	var src quotes.Source
	switch cfg.Quotes.Source {
	case "kite":
		kite, err := quotes.NewKiteSource(quotes.KiteConfig{
			APIKey:      cfg.Quotes.KiteAPIKey,
			AccessToken: cfg.Quotes.KiteAccessToken,
			Exchange:    cfg.Quotes.Exchange,
		}, st.Quotes(), a.Logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		src = kite
	default:
		src = quotes.NewStoreSource(st.Quotes())
	}

	engine := trading.NewEngine(st, src, a.Logger)
	valuation := trading.NewValuation(st, src, a.Logger)
	evaluator := leveling.NewEvaluator(st.Accounts(), st.Trades(), cfg.Leveling.Workers, a.Logger)
	return &services{
		store:  st,
		quotes: src,
		engine: engine,
		desk: trading.NewDesk(engine, trading.DeskConfig{
			MinReasonLength: cfg.Trading.MinReasonLength,
			AdvisorTimeout:  cfg.Advisor.Timeout,
		}, a.Logger),
		valuation: valuation,
		stats:     trading.NewStatistics(valuation),
		accounts:  trading.NewAccounts(st, decimal.NewFromFloat(cfg.Trading.DefaultBalance), a.Logger),
		evaluator: evaluator,
		levels:    leveling.NewJob(evaluator),
	}, nil
}

func (s *services) Close() {
	s.store.Close()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Virtual Trader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration file path",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				output.JSON(map[string]string{"path": path})
			} else {
				output.Println(path)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load already validated; this adds the server-only checks.
			output := NewOutput(cmd)
			if err := app.Config.RequireSecret(); err != nil {
				output.Warning("Server not ready: %v", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func redacted(cfg *config.Config) config.Config {
	c := *cfg
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	c.Auth.AdminToken = mask(c.Auth.AdminToken)
	c.Quotes.KiteAPIKey = mask(c.Quotes.KiteAPIKey)
	c.Quotes.KiteAccessToken = mask(c.Quotes.KiteAccessToken)
	c.Advisor.APIKey = mask(c.Advisor.APIKey)
	c.Database.DSN = mask(c.Database.DSN)
	return c
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Storage")
	output.Printf("  Driver:           %s\n", cfg.Database.Driver)
	if cfg.Database.Driver == "postgres" {
		output.Printf("  DSN:              %s\n", redacted(cfg).Database.DSN)
	} else {
		output.Printf("  Path:             %s\n", cfg.Database.Path)
	}
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr)
	output.Printf("  Allowed origin:   %s\n", cfg.Server.AllowedOrigin)
	output.Printf("  Request timeout:  %s\n", cfg.Server.RequestTimeout)
	output.Println()

	output.Bold("Trading")
	output.Printf("  Default balance:  %s\n", FormatBalance(cfg.Trading.DefaultBalance))
	output.Printf("  Min thesis chars: %d\n", cfg.Trading.MinReasonLength)
	output.Printf("  Quote source:     %s (%s)\n", cfg.Quotes.Source, cfg.Quotes.Exchange)
	output.Println()

	output.Bold("Realtime")
	output.Printf("  Price tick:       %s\n", cfg.Realtime.PriceInterval)
	output.Printf("  Portfolio tick:   %s\n", cfg.Realtime.PortfolioInterval)
	output.Printf("  Market status:    %s\n", cfg.Realtime.MarketStatusInterval)
	output.Printf("  Market hours only: %v\n", cfg.Realtime.MarketHoursOnly)
	output.Println()

	output.Bold("Levels")
	output.Printf("  Interval:         %s\n", cfg.Leveling.Interval)
	output.Printf("  Workers:          %d\n", cfg.Leveling.Workers)
	output.Println()

	output.Bold("Advisor")
	output.Printf("  Enabled:          %v\n", cfg.Advisor.Enabled)
	output.Printf("  Model:            %s\n", cfg.Advisor.Model)
	output.Printf("  Timeout:          %s\n", cfg.Advisor.Timeout)
}

// FormatBalance formats a configured rupee amount.
func FormatBalance(amount float64) string {
	return utils.FormatINR(decimal.NewFromFloat(amount))
}
