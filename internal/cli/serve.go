package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"virtual-trader/internal/advisor"
	"virtual-trader/internal/api"
	"virtual-trader/internal/auth"
	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/scheduler"
	"virtual-trader/internal/stream"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		Long: `Start the trading server.

Serves the REST API under /api/v1, the realtime websocket on /ws and the
admin endpoints under /admin, and runs the background price, portfolio,
market status and level evaluation tasks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Config.RequireSecret(); err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("addr")
			if addr != "" {
				app.Config.Server.Addr = addr
			}
			return serve(cmd.Context(), app)
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")

	return cmd
}

func serve(parent context.Context, app *App) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.Config
	logger := app.Logger

	svc, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	hub := stream.NewHubWithConfig(stream.HubConfig{
		SubscriberBufferSize: cfg.Realtime.SubscriberBuffer,
	}, logger)
	realtime := stream.NewRealtime(hub, svc.quotes, svc.valuation, logger)
	svc.desk.WithNotifier(realtime)
	if cfg.Advisor.Enabled {
		svc.desk.WithAdvisor(advisor.New(advisor.NewOpenAIClient(cfg.Advisor.APIKey, cfg.Advisor.Model)))
		logger.Info().Str("model", cfg.Advisor.Model).Msg("Trade advisor enabled")
	}

	sched := scheduler.New(logger)
	if err := addTasks(sched, app, svc, realtime); err != nil {
		return err
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	router := api.NewRouter(api.Deps{
		Desk:           svc.desk,
		Accounts:       svc.accounts,
		Valuation:      svc.valuation,
		Stats:          svc.stats,
		Trades:         svc.store.Trades(),
		Quotes:         svc.quotes,
		Evaluator:      svc.evaluator,
		Levels:         svc.levels,
		Hub:            hub,
		Tasks:          sched,
		Verifier:       verifier,
		WS:             stream.NewWSHandler(realtime, verifier, cfg.Server.AllowedOrigin, logger),
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigin:  cfg.Server.AllowedOrigin,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
	server := api.NewServer(cfg.Server.Addr, router, logger)

	sched.Start()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if stopErr := sched.Stop(shutdownCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("Background tasks did not stop in time")
	}
	// Closing the hub ends every websocket writer so Shutdown is not held
	// open by hijacked connections.
	hub.Close()
	if shutErr := server.Shutdown(shutdownCtx); shutErr != nil && err == nil {
		err = shutErr
	}
	logger.Info().Msg("Server stopped")
	return err
}

func addTasks(sched *scheduler.Scheduler, app *App, svc *services, realtime *stream.Realtime) error {
	cfg := app.Config

	var priceGate scheduler.Gate
	if cfg.Realtime.MarketHoursOnly {
		priceGate = scheduler.MarketHours
	}
	var levelGate scheduler.Gate
	if cfg.Leveling.WeekdaysOnly {
		levelGate = scheduler.TradingDays
	}

	tasks := []scheduler.Task{
		{
			Name:     "price_tick",
			Interval: cfg.Realtime.PriceInterval,
			Gate:     priceGate,
			Run: func(ctx context.Context) error {
				_, err := realtime.PriceTick(ctx)
				return err
			},
		},
		{
			Name:     "portfolio_tick",
			Interval: cfg.Realtime.PortfolioInterval,
			Gate:     priceGate,
			Run: func(ctx context.Context) error {
				realtime.PortfolioTick(ctx)
				return nil
			},
		},
		{
			Name:     "market_status",
			Interval: cfg.Realtime.MarketStatusInterval,
			Run: func(ctx context.Context) error {
				realtime.MarketStatusTick(ctx)
				return nil
			},
		},
		{
			Name:     "level_evaluation",
			Interval: cfg.Leveling.Interval,
			Gate:     levelGate,
			Run: func(ctx context.Context) error {
				_, err := svc.levels.Run(ctx)
				if errors.Is(err, apperrors.ErrJobRunning) {
					return nil
				}
				return err
			},
		},
	}
	for _, t := range tasks {
		if err := sched.Add(t); err != nil {
			return err
		}
	}
	return nil
}
