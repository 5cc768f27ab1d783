// Package api exposes the trading engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"virtual-trader/internal/leveling"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/quotes"
	"virtual-trader/internal/scheduler"
	"virtual-trader/internal/store"
	"virtual-trader/internal/stream"
	"virtual-trader/internal/trading"
)

// TaskLister reports background task state.
type TaskLister interface {
	Tasks() []scheduler.TaskInfo
}

// Deps are the services behind the HTTP surface.
type Deps struct {
	Desk      *trading.Desk
	Accounts  *trading.Accounts
	Valuation *trading.Valuation
	Stats     *trading.Statistics
	Trades    store.TradeRepository
	Quotes    quotes.Source
	Evaluator *leveling.Evaluator
	Levels    *leveling.Job
	Hub       *stream.Hub
	Tasks     TaskLister
	Verifier  TokenVerifier
	WS        http.Handler

	AdminToken     string
	AllowedOrigin  string
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// Handler serves the REST API.
type Handler struct {
	deps   Deps
	logger zerolog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(d Deps) http.Handler {
	h := &Handler{deps: d, logger: logging.WithComponent(d.Logger, "api")}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(d.AllowedOrigin))

	r.Get("/healthz", h.health)
	if d.WS != nil {
		r.Get("/ws", d.WS.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(WithAuth(d.Verifier))

			r.Post("/trades", h.placeTrade)
			r.Get("/trades", h.listTrades)
			r.Get("/trades/export", h.exportTrades)
			r.Get("/portfolio", h.portfolio)
			r.Get("/stats", h.stats)
			r.Get("/quotes/{symbol}", h.quote)
			r.Get("/account", h.account)
			r.Post("/account/reset", h.resetAccount)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(d.AdminToken))

			r.Post("/levels/evaluate", h.evaluateLevels)
			r.Get("/levels/status", h.levelStatus)
			r.Get("/tasks", h.tasks)
			r.Get("/hub", h.hubMetrics)
			r.Get("/quotes/feed", h.quoteFeed)
		})
	})

	return r
}

// Server wraps http.Server with graceful shutdown.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates an HTTP server on addr.
func NewServer(addr string, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.WithComponent(logger, "http"),
	}
}

// ListenAndServe blocks until the server stops. It returns nil after
// Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}
