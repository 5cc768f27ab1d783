// Package models provides domain models for the virtual trading engine.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Valid reports whether the side is BUY or SELL.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderKind represents the kind of an order.
type OrderKind string

const (
	OrderKindMarket   OrderKind = "MARKET"
	OrderKindLimit    OrderKind = "LIMIT"
	OrderKindStopLoss OrderKind = "STOP_LOSS"
)

// Valid reports whether the kind is one of the supported order kinds.
func (k OrderKind) Valid() bool {
	switch k {
	case OrderKindMarket, OrderKindLimit, OrderKindStopLoss:
		return true
	}
	return false
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusExecuted  TradeStatus = "EXECUTED"
	TradeStatusPending   TradeStatus = "PENDING"
	TradeStatusCancelled TradeStatus = "CANCELLED"
	TradeStatusRejected  TradeStatus = "REJECTED"
)

// Level is a user's trading skill level.
type Level string

const (
	LevelBeginner     Level = "BEGINNER"
	LevelIntermediate Level = "INTERMEDIATE"
	LevelAdvanced     Level = "ADVANCED"
	LevelExpert       Level = "EXPERT"
)

// Rank orders levels from BEGINNER (0) to EXPERT (3). Unknown levels rank as BEGINNER.
func (l Level) Rank() int {
	switch l {
	case LevelIntermediate:
		return 1
	case LevelAdvanced:
		return 2
	case LevelExpert:
		return 3
	}
	return 0
}

// ParseLevel converts a stored level name, defaulting to BEGINNER.
func ParseLevel(s string) Level {
	switch l := Level(strings.ToUpper(strings.TrimSpace(s))); l {
	case LevelIntermediate, LevelAdvanced, LevelExpert:
		return l
	}
	return LevelBeginner
}

// MarketStatus represents the current market status.
type MarketStatus string

const (
	MarketOpen    MarketStatus = "OPEN"
	MarketPreOpen MarketStatus = "PRE_OPEN"
	MarketClosed  MarketStatus = "CLOSED"
)

// Quote represents the latest known market quote for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
