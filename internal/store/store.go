// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"virtual-trader/internal/models"
)

// AccountRepository persists virtual trading accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	// Get returns ErrAccountNotFound when the user has no account. Inside a
	// unit of work the row is locked until commit.
	Get(ctx context.Context, userID string) (*models.Account, error)
	// Update writes balance, counters and drawdown. It never touches level.
	Update(ctx context.Context, account *models.Account) error
	UpdateLevel(ctx context.Context, userID string, level models.Level) error
	Reset(ctx context.Context, userID string, balance decimal.Decimal) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// HoldingRepository persists per-user, per-symbol positions.
type HoldingRepository interface {
	// Get returns ErrHoldingNotFound when no position exists.
	Get(ctx context.Context, userID, symbol string) (*models.Holding, error)
	List(ctx context.Context, userID string) ([]models.Holding, error)
	Upsert(ctx context.Context, holding *models.Holding) error
	Delete(ctx context.Context, userID, symbol string) error
	DeleteAll(ctx context.Context, userID string) error
	// SaveValuation writes only the cached valuation fields.
	SaveValuation(ctx context.Context, holding *models.Holding) error
}

// TradeRepository is the append-only trade log.
type TradeRepository interface {
	Insert(ctx context.Context, trade *models.Trade) error
	List(ctx context.Context, filter TradeFilter) ([]models.Trade, error)
	// Aggregate computes closed-position and activity metrics over EXECUTED
	// trades in a single query.
	Aggregate(ctx context.Context, userID string) (*models.TradeAggregate, error)
	// UsersWithClosedTrades lists users with at least one EXECUTED SELL.
	UsersWithClosedTrades(ctx context.Context) ([]string, error)
}

// QuoteRepository stores the latest quote per symbol.
type QuoteRepository interface {
	// GetQuote returns a SymbolNotFoundError when no quote exists.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
	// GetQuotes returns the quotes that exist; missing symbols are absent from the map.
	GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
	SaveQuote(ctx context.Context, quote *models.Quote) error
}

// Repositories groups the repositories bound to one unit of work.
type Repositories struct {
	Accounts AccountRepository
	Holdings HoldingRepository
	Trades   TradeRepository
}

// UnitOfWork runs fn inside a single transaction. The transaction commits
// when fn returns nil and rolls back otherwise. Errors returned by fn are
// passed through unchanged; failures to begin or commit are returned as
// TransactionAbortError.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Snapshotter runs fn against one consistent committed state without
// taking write locks. Repositories passed to fn must only be read from.
type Snapshotter interface {
	View(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Store is a storage backend.
type Store interface {
	UnitOfWork
	Snapshotter

	Accounts() AccountRepository
	Holdings() HoldingRepository
	Trades() TradeRepository
	Quotes() QuoteRepository

	Close() error
}

// TradeFilter represents filters for querying trades. StartDate is
// inclusive and EndDate is exclusive.
type TradeFilter struct {
	UserID    string
	Symbol    string
	Side      models.OrderSide
	Status    models.TradeStatus
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// defaultListLimit caps trade listings that set no explicit limit.
const defaultListLimit = 500
