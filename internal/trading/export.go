package trading

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"virtual-trader/internal/store"
)

type tradeRow struct {
	ID         string `csv:"id"`
	Session    string `csv:"session"`
	Symbol     string `csv:"symbol"`
	Side       string `csv:"side"`
	OrderType  string `csv:"order_type"`
	Quantity   string `csv:"quantity"`
	Price      string `csv:"price"`
	Total      string `csv:"total"`
	RealizedPL string `csv:"realized_pl"`
	Status     string `csv:"status"`
	Reason     string `csv:"reason"`
	CreatedAt  string `csv:"created_at"`
}

// ExportTradesCSV writes the trades matching filter to w, newest first.
func ExportTradesCSV(ctx context.Context, trades store.TradeRepository, filter store.TradeFilter, w io.Writer) (int, error) {
	list, err := trades.List(ctx, filter)
	if err != nil {
		return 0, err
	}

	rows := make([]*tradeRow, 0, len(list))
	for _, t := range list {
		row := &tradeRow{
			ID:        t.ID,
			Session:   t.SessionDate,
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			OrderType: string(t.Kind),
			Quantity:  strconv.FormatInt(t.Quantity, 10),
			Price:     t.Price.StringFixed(2),
			Total:     t.Total.StringFixed(2),
			Status:    string(t.Status),
			Reason:    t.Reason,
			CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if t.RealizedPL != nil {
			row.RealizedPL = t.RealizedPL.StringFixed(2)
		}
		rows = append(rows, row)
	}

	if err := gocsv.Marshal(&rows, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	return len(rows), nil
}
