package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
	"virtual-trader/internal/quotes"
	"virtual-trader/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Valuation revalues a user's holdings against the latest quotes.
type Valuation struct {
	store  store.Store
	quotes quotes.Source
	logger zerolog.Logger
	now    func() time.Time
}

// NewValuation creates a portfolio valuation service.
func NewValuation(st store.Store, src quotes.Source, logger zerolog.Logger) *Valuation {
	return &Valuation{
		store:  st,
		quotes: src,
		logger: logging.WithComponent(logger, "valuation"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetPortfolio returns the user's balance, revalued holdings and summary.
// A symbol whose quote cannot be fetched is valued at its cached price.
func (v *Valuation) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	account, holdings, err := v.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v.value(ctx, account, holdings), nil
}

// snapshot reads the account and its holdings as of one committed state.
func (v *Valuation) snapshot(ctx context.Context, userID string) (*models.Account, []models.Holding, error) {
	var account *models.Account
	var holdings []models.Holding
	err := v.store.View(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		if account, err = repos.Accounts.Get(ctx, userID); err != nil {
			return err
		}
		holdings, err = repos.Holdings.List(ctx, userID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return account, holdings, nil
}

func (v *Valuation) value(ctx context.Context, account *models.Account, holdings []models.Holding) *models.Portfolio {
	now := v.now()

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}

	latest := map[string]models.Quote{}
	if len(symbols) > 0 {
		got, err := v.quotes.Quotes(ctx, symbols)
		if err != nil {
			v.logger.Warn().Err(err).Str("user_id", account.UserID).Msg("Quote fetch failed, using cached prices")
		} else {
			latest = got
		}
	}

	portfolio := &models.Portfolio{
		UserID:           account.UserID,
		AvailableBalance: account.Balance,
		Holdings:         make([]models.Holding, 0, len(holdings)),
		ValuedAt:         now,
	}
	summary := models.PortfolioSummary{
		TotalInvested: decimal.Zero,
		CurrentValue:  decimal.Zero,
	}

	for i := range holdings {
		h := holdings[i]
		if q, ok := latest[h.Symbol]; ok && q.Price.IsPositive() {
			h.Revalue(q.Price, now)
			if h.StockName == "" {
				h.StockName = q.Name
			}
			if err := v.store.Holdings().SaveValuation(ctx, &h); err != nil {
				v.logger.Debug().Err(err).Str("symbol", h.Symbol).Msg("Failed to cache valuation")
			}
		} else {
			h.Revalue(h.MarkPrice(), h.ValuedAt)
		}

		summary.TotalHoldings++
		summary.TotalInvested = summary.TotalInvested.Add(h.Invested)
		summary.CurrentValue = summary.CurrentValue.Add(h.CurrentValue)
		switch {
		case h.UnrealizedPL.IsPositive():
			summary.ProfitableStocks++
		case h.UnrealizedPL.IsNegative():
			summary.LosingStocks++
		}
		portfolio.Holdings = append(portfolio.Holdings, h)
	}

	summary.TotalPL = summary.CurrentValue.Sub(summary.TotalInvested)
	if summary.TotalInvested.IsPositive() {
		summary.TotalPLPercent = summary.TotalPL.Div(summary.TotalInvested).Mul(hundred).Round(2)
	}
	portfolio.Summary = summary
	portfolio.TotalValue = account.Balance.Add(summary.CurrentValue)
	return portfolio
}
