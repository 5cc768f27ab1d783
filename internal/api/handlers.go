package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
	"virtual-trader/internal/resilience"
	"virtual-trader/internal/store"
	"virtual-trader/internal/trading"
	"virtual-trader/pkg/utils"
)

// TradeRequest is the body of POST /api/v1/trades.
type TradeRequest struct {
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Quantity      int64            `json:"quantity"`
	OrderType     string           `json:"orderType"`
	LimitPrice    *decimal.Decimal `json:"limitPrice,omitempty"`
	StopLossPrice *decimal.Decimal `json:"stopLossPrice,omitempty"`
	Reason        string           `json:"reason"`
}

// ResetRequest is the body of POST /api/v1/account/reset.
type ResetRequest struct {
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// EvaluateRequest is the optional body of POST /admin/levels/evaluate.
type EvaluateRequest struct {
	UserID string `json:"userId,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := UserID(r)
	if !ok {
		writeError(w, r, apperrors.NewAuthenticationError("missing identity", nil))
	}
	return userID, ok
}

// ensureAccount opens the user's virtual account on first use.
func (h *Handler) ensureAccount(ctx context.Context, userID string) (*models.Account, error) {
	return h.deps.Accounts.GetOrCreate(ctx, userID)
}

func (h *Handler) placeTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req TradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.ensureAccount(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}

	order := models.Order{
		UserID:        userID,
		Symbol:        req.Symbol,
		Side:          models.OrderSide(strings.ToUpper(strings.TrimSpace(req.Side))),
		Quantity:      req.Quantity,
		Kind:          models.OrderKind(strings.ToUpper(strings.TrimSpace(req.OrderType))),
		LimitPrice:    req.LimitPrice,
		StopLossPrice: req.StopLossPrice,
		Reason:        req.Reason,
	}
	res, err := h.deps.Desk.PlaceOrder(r.Context(), order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func tradeFilter(r *http.Request, userID string) (store.TradeFilter, error) {
	q := r.URL.Query()
	f := store.TradeFilter{
		UserID: userID,
		Symbol: models.NormalizeSymbol(q.Get("symbol")),
		Side:   models.OrderSide(strings.ToUpper(q.Get("side"))),
	}
	if f.Side != "" && !f.Side.Valid() {
		return f, apperrors.NewValidationError("side", q.Get("side"), "side must be BUY or SELL")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, apperrors.NewValidationError("limit", v, "limit must be a positive integer")
		}
		f.Limit = n
	}
	// Dates are IST session days; "to" includes the whole day it names.
	for _, p := range []struct {
		key  string
		dst  *time.Time
		days int
	}{{"from", &f.StartDate, 0}, {"to", &f.EndDate, 1}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", v, utils.IndiaLocation)
		if err != nil {
			return f, apperrors.NewValidationError(p.key, v, "dates must be YYYY-MM-DD")
		}
		*p.dst = t.AddDate(0, 0, p.days)
	}
	return f, nil
}

func (h *Handler) listTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	filter, err := tradeFilter(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	trades, err := h.deps.Trades.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades, "count": len(trades)})
}

func (h *Handler) exportTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	filter, err := tradeFilter(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=trades-%s.csv", time.Now().Format("20060102")))
	if _, err := trading.ExportTradesCSV(r.Context(), h.deps.Trades, filter, w); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Trade export failed")
	}
}

func (h *Handler) portfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if _, err := h.ensureAccount(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.deps.Valuation.GetPortfolio(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if _, err := h.ensureAccount(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.deps.Stats.GetStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	symbol := models.NormalizeSymbol(chi.URLParam(r, "symbol"))
	q, err := h.deps.Quotes.Quote(r.Context(), symbol)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	a, err := h.ensureAccount(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) resetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req ResetRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	balance := decimal.Zero
	if req.Balance != nil {
		balance = *req.Balance
	}
	if _, err := h.ensureAccount(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := h.deps.Accounts.Reset(r.Context(), userID, balance)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) evaluateLevels(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.UserID == "" {
		req.UserID = r.URL.Query().Get("user")
	}

	if req.UserID != "" {
		level, err := h.deps.Evaluator.EvaluateUser(r.Context(), req.UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"userId": req.UserID, "level": level})
		return
	}

	// Runs to completion even if the client disconnects.
	res, err := h.deps.Levels.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) levelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Levels.Status())
}

func (h *Handler) tasks(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tasks == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tasks": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": h.deps.Tasks.Tasks()})
}

func (h *Handler) hubMetrics(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	m := h.deps.Hub.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":       m,
		"activeSymbols": h.deps.Hub.ActiveSymbols(),
		"activeUsers":   len(h.deps.Hub.ActiveUsers()),
	})
}

type breakerReporter interface {
	BreakerStats() resilience.CircuitBreakerStats
}

func (h *Handler) quoteFeed(w http.ResponseWriter, r *http.Request) {
	b, ok := h.deps.Quotes.(breakerReporter)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"source": "store"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":  "kite",
		"breaker": b.BreakerStats(),
	})
}
