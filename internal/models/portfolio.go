package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is a user's current position in one symbol.
type Holding struct {
	UserID              string          `json:"-"`
	Symbol              string          `json:"symbol"`
	StockName           string          `json:"stockName,omitempty"`
	Quantity            int64           `json:"quantity"`
	AveragePrice        decimal.Decimal `json:"averageBuyPrice"`
	Invested            decimal.Decimal `json:"totalInvested"`
	CurrentPrice        decimal.Decimal `json:"currentPrice"`
	CurrentValue        decimal.Decimal `json:"currentValue"`
	UnrealizedPL        decimal.Decimal `json:"unrealizedPL"`
	UnrealizedPLPercent decimal.Decimal `json:"unrealizedPLPercent"`
	ValuedAt            time.Time       `json:"-"`
	UpdatedAt           time.Time       `json:"-"`
}

// Revalue recomputes the cached valuation fields at price.
func (h *Holding) Revalue(price decimal.Decimal, at time.Time) {
	qty := decimal.NewFromInt(h.Quantity)
	h.CurrentPrice = price
	h.CurrentValue = price.Mul(qty)
	h.UnrealizedPL = price.Sub(h.AveragePrice).Mul(qty)
	h.UnrealizedPLPercent = decimal.Zero
	if h.Invested.IsPositive() {
		h.UnrealizedPLPercent = h.UnrealizedPL.Div(h.Invested).Mul(decimal.NewFromInt(100)).Round(2)
	}
	h.ValuedAt = at
}

// MarkPrice returns the best known price for the holding: the cached
// current price, falling back to the average cost.
func (h *Holding) MarkPrice() decimal.Decimal {
	if h.CurrentPrice.IsPositive() {
		return h.CurrentPrice
	}
	return h.AveragePrice
}

// PortfolioSummary aggregates a user's holdings.
type PortfolioSummary struct {
	TotalHoldings    int             `json:"totalHoldings"`
	TotalInvested    decimal.Decimal `json:"totalInvested"`
	CurrentValue     decimal.Decimal `json:"currentValue"`
	TotalPL          decimal.Decimal `json:"totalPL"`
	TotalPLPercent   decimal.Decimal `json:"totalPLPercent"`
	ProfitableStocks int             `json:"profitableStocks"`
	LosingStocks     int             `json:"losingStocks"`
}

// Portfolio is the valuation read model for one user.
type Portfolio struct {
	UserID           string           `json:"-"`
	AvailableBalance decimal.Decimal  `json:"availableBalance"`
	Holdings         []Holding        `json:"holdings"`
	Summary          PortfolioSummary `json:"summary"`
	TotalValue       decimal.Decimal  `json:"totalValue"`
	ValuedAt         time.Time        `json:"valuedAt"`
}

// Stats is the read-side trading statistics projection.
type Stats struct {
	UserID           string          `json:"userId"`
	Balance          decimal.Decimal `json:"balance"`
	InitialBalance   decimal.Decimal `json:"initialBalance"`
	TotalTrades      int64           `json:"totalTrades"`
	ProfitableTrades int64           `json:"profitableTrades"`
	WinRate          decimal.Decimal `json:"winRate"`
	RealizedPL       decimal.Decimal `json:"realizedPL"`
	UnrealizedPL     decimal.Decimal `json:"unrealizedPL"`
	TotalProfitLoss  decimal.Decimal `json:"totalProfitLoss"`
	ROI              decimal.Decimal `json:"roi"`
	Level            Level           `json:"level"`
	BestTrade        decimal.Decimal `json:"bestTrade"`
	WorstTrade       decimal.Decimal `json:"worstTrade"`
	MaxDrawdown      decimal.Decimal `json:"maxDrawdown"`
}
