package quotes

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
)

// quoteRow is one line of a quote CSV file. Columns other than symbol and
// price are optional.
type quoteRow struct {
	Symbol string `csv:"symbol"`
	Name   string `csv:"name"`
	Price  string `csv:"price"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume string `csv:"volume"`
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Imported int
	Skipped  []string
}

// ImportCSV loads quotes from r into repo. Rows that fail to parse are
// skipped and reported; the import itself fails only on unreadable input.
func ImportCSV(ctx context.Context, r io.Reader, repo store.QuoteRepository) (*ImportResult, error) {
	var rows []*quoteRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse quotes csv: %w", err)
	}

	result := &ImportResult{}
	now := time.Now().UTC()
	for i, row := range rows {
		q, err := row.toQuote(now)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Sprintf("line %d: %v", i+2, err))
			continue
		}
		if err := repo.SaveQuote(ctx, q); err != nil {
			return result, fmt.Errorf("failed to save quote %s: %w", q.Symbol, err)
		}
		result.Imported++
	}
	return result, nil
}

func (row *quoteRow) toQuote(at time.Time) (*models.Quote, error) {
	symbol := models.NormalizeSymbol(row.Symbol)
	if symbol == "" {
		return nil, apperrors.NewValidationError("symbol", row.Symbol, "symbol is required")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(row.Price))
	if err != nil || !price.IsPositive() {
		return nil, apperrors.NewValidationError("price", row.Price, "price must be a positive number")
	}

	q := &models.Quote{
		Symbol:    symbol,
		Name:      strings.TrimSpace(row.Name),
		Price:     price,
		UpdatedAt: at,
	}
	fields := []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{row.Open, &q.Open},
		{row.High, &q.High},
		{row.Low, &q.Low},
		{row.Close, &q.Close},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return nil, apperrors.NewValidationError("ohlc", f.raw, "not a number")
		}
		*f.dest = v
	}
	if v := strings.TrimSpace(row.Volume); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apperrors.NewValidationError("volume", v, "not an integer")
		}
		q.Volume = n
	}
	if q.Close.IsPositive() {
		q.Change = price.Sub(q.Close)
		q.ChangePercent = q.Change.Div(q.Close).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return q, nil
}
