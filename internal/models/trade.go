package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an immutable record of an executed order.
type Trade struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Symbol        string           `json:"symbol"`
	Side          OrderSide        `json:"side"`
	Kind          OrderKind        `json:"orderType"`
	Quantity      int64            `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
	Total         decimal.Decimal  `json:"totalAmount"`
	LimitPrice    *decimal.Decimal `json:"limitPrice,omitempty"`
	StopLossPrice *decimal.Decimal `json:"stopLossPrice,omitempty"`
	Status        TradeStatus      `json:"status"`
	RealizedPL    *decimal.Decimal `json:"realizedPL,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	SessionDate   string           `json:"tradingSession"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Order is a request to execute a trade.
type Order struct {
	UserID        string
	Symbol        string
	Side          OrderSide
	Quantity      int64
	Kind          OrderKind
	LimitPrice    *decimal.Decimal
	StopLossPrice *decimal.Decimal
	Reason        string
}

// ExecutionResult is the outcome of a successfully executed order.
type ExecutionResult struct {
	Trade      *Trade          `json:"trade"`
	NewBalance decimal.Decimal `json:"balance"`
	Advice     string          `json:"advice,omitempty"`
}

// TradeAggregate is the per-user result of the level aggregation pass.
type TradeAggregate struct {
	ClosedTrades       int64
	ProfitableClosed   int64
	TotalRealizedPL    decimal.Decimal
	DistinctActiveDays int64
}

// Alert is a one-off notification for a single user.
type Alert struct {
	Kind    string `json:"kind"`
	Symbol  string `json:"symbol,omitempty"`
	TradeID string `json:"tradeId,omitempty"`
	Message string `json:"message"`
}
