// Package quotes resolves current market prices for the trading engine.
package quotes

import (
	"context"

	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
)

// Source resolves the current quote for one or many symbols.
type Source interface {
	// Quote returns a SymbolNotFoundError when the symbol has no price.
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	// Quotes returns the quotes that resolve; unknown symbols are omitted.
	Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error)
}

// StoreSource serves quotes from the persisted quote table.
type StoreSource struct {
	repo store.QuoteRepository
}

// NewStoreSource creates a source backed by repo.
func NewStoreSource(repo store.QuoteRepository) *StoreSource {
	return &StoreSource{repo: repo}
}

// Quote returns the stored quote for symbol.
func (s *StoreSource) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return s.repo.GetQuote(ctx, models.NormalizeSymbol(symbol))
}

// Quotes returns the stored quotes for symbols.
func (s *StoreSource) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	normalized := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		normalized = append(normalized, models.NormalizeSymbol(sym))
	}
	return s.repo.GetQuotes(ctx, normalized)
}
