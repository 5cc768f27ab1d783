package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"virtual-trader/internal/models"
)

// Statistics projects trading statistics from the account counters and
// the current portfolio valuation. It never writes.
type Statistics struct {
	valuation *Valuation
}

// NewStatistics creates a statistics aggregator.
func NewStatistics(valuation *Valuation) *Statistics {
	return &Statistics{valuation: valuation}
}

// GetStats returns the user's trading statistics.
func (s *Statistics) GetStats(ctx context.Context, userID string) (*models.Stats, error) {
	account, holdings, err := s.valuation.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	portfolio := s.valuation.value(ctx, account, holdings)
	return buildStats(account, portfolio), nil
}

func buildStats(account *models.Account, portfolio *models.Portfolio) *models.Stats {
	unrealized := decimal.Zero
	for _, h := range portfolio.Holdings {
		unrealized = unrealized.Add(h.UnrealizedPL)
	}
	total := account.RealizedPL.Add(unrealized)

	stats := &models.Stats{
		UserID:           account.UserID,
		Balance:          account.Balance,
		InitialBalance:   account.InitialBalance,
		TotalTrades:      account.TotalTrades,
		ProfitableTrades: account.ProfitableTrades,
		WinRate:          decimal.Zero,
		RealizedPL:       account.RealizedPL,
		UnrealizedPL:     unrealized,
		TotalProfitLoss:  total,
		ROI:              decimal.Zero,
		Level:            account.Level,
		BestTrade:        account.BestTrade,
		WorstTrade:       account.WorstTrade,
		MaxDrawdown:      account.MaxDrawdown,
	}
	if account.TotalTrades > 0 {
		stats.WinRate = decimal.NewFromInt(account.ProfitableTrades).
			Div(decimal.NewFromInt(account.TotalTrades)).Mul(hundred).Round(2)
	}
	if account.InitialBalance.IsPositive() {
		stats.ROI = total.Div(account.InitialBalance).Mul(hundred).Round(2)
	}
	return stats
}
