package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds a user's virtual cash balance and lifetime counters.
type Account struct {
	UserID           string          `json:"userId"`
	Balance          decimal.Decimal `json:"balance"`
	InitialBalance   decimal.Decimal `json:"initialBalance"`
	TotalTrades      int64           `json:"totalTrades"`
	ClosedTrades     int64           `json:"closedTrades"`
	ProfitableTrades int64           `json:"profitableTrades"`
	RealizedPL       decimal.Decimal `json:"realizedPL"`
	BestTrade        decimal.Decimal `json:"bestTrade"`
	WorstTrade       decimal.Decimal `json:"worstTrade"`
	PeakValue        decimal.Decimal `json:"peakValue"`
	MaxDrawdown      decimal.Decimal `json:"maxDrawdown"`
	Level            Level           `json:"level"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// NewAccount returns a fresh BEGINNER account funded with balance.
func NewAccount(userID string, balance decimal.Decimal) *Account {
	now := time.Now().UTC()
	return &Account{
		UserID:         userID,
		Balance:        balance,
		InitialBalance: balance,
		PeakValue:      balance,
		Level:          LevelBeginner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// RecordClose folds the realized P&L of a SELL into the lifetime counters.
func (a *Account) RecordClose(realized decimal.Decimal) {
	if a.ClosedTrades == 0 || realized.GreaterThan(a.BestTrade) {
		a.BestTrade = realized
	}
	if a.ClosedTrades == 0 || realized.LessThan(a.WorstTrade) {
		a.WorstTrade = realized
	}
	a.ClosedTrades++
	a.RealizedPL = a.RealizedPL.Add(realized)
	if realized.IsPositive() {
		a.ProfitableTrades++
	}
}

// TrackDrawdown updates PeakValue and MaxDrawdown (percent) for the given account value.
func (a *Account) TrackDrawdown(value decimal.Decimal) {
	if value.GreaterThan(a.PeakValue) {
		a.PeakValue = value
		return
	}
	if !a.PeakValue.IsPositive() {
		return
	}
	dd := a.PeakValue.Sub(value).Div(a.PeakValue).Mul(decimal.NewFromInt(100))
	if dd.GreaterThan(a.MaxDrawdown) {
		a.MaxDrawdown = dd.Round(4)
	}
}
