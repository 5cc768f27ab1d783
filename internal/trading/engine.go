// Package trading executes virtual orders and derives portfolio and
// statistics read models from the resulting ledger.
package trading

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
	"virtual-trader/internal/quotes"
	"virtual-trader/internal/store"
	"virtual-trader/pkg/utils"
)

// priceScale is the number of decimal places kept for average prices.
const priceScale = 4

// Engine validates orders and applies them to the account, holding and
// trade log in a single unit of work.
type Engine struct {
	uow    store.UnitOfWork
	quotes quotes.Source
	locks  *userLocks
	logger zerolog.Logger

	now   func() time.Time
	newID func() string
}

// NewEngine creates a trade execution engine.
func NewEngine(uow store.UnitOfWork, src quotes.Source, logger zerolog.Logger) *Engine {
	return &Engine{
		uow:    uow,
		quotes: src,
		locks:  newUserLocks(),
		logger: logging.WithComponent(logger, "engine"),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Execute fills order at the limit price (LIMIT orders) or the latest
// quote. Business-rule failures leave no trace in storage. Once the order
// has been validated it runs to commit or rollback regardless of ctx.
func (e *Engine) Execute(ctx context.Context, order models.Order) (*models.ExecutionResult, error) {
	res, err := e.execute(ctx, order)
	if err != nil {
		logging.LogRejection(e.logger, order, err)
		return nil, err
	}
	logging.LogTrade(e.logger, res.Trade)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, order models.Order) (*models.ExecutionResult, error) {
	order, err := normalizeOrder(order)
	if err != nil {
		return nil, err
	}

	quote, err := e.quotes.Quote(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}
	if !quote.Price.IsPositive() {
		return nil, apperrors.NewSymbolNotFoundError(order.Symbol)
	}

	price := quote.Price
	if order.Kind == models.OrderKindLimit && order.LimitPrice != nil {
		price = *order.LimitPrice
	}

	unlock := e.locks.lock(order.UserID)
	defer unlock()

	now := e.now()
	trade := &models.Trade{
		ID:            e.newID(),
		UserID:        order.UserID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Kind:          order.Kind,
		Quantity:      order.Quantity,
		Price:         price,
		Total:         price.Mul(decimal.NewFromInt(order.Quantity)),
		LimitPrice:    order.LimitPrice,
		StopLossPrice: order.StopLossPrice,
		Status:        models.TradeStatusExecuted,
		Reason:        order.Reason,
		SessionDate:   utils.SessionDate(now),
		CreatedAt:     now,
	}

	var balance decimal.Decimal
	err = e.uow.Do(context.WithoutCancel(ctx), func(ctx context.Context, repos store.Repositories) error {
		account, err := repos.Accounts.Get(ctx, order.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrAccountNotFound) {
				return err
			}
			return apperrors.NewTransactionAbortError("load account", err)
		}

		holding, err := repos.Holdings.Get(ctx, order.UserID, order.Symbol)
		if err != nil && !errors.Is(err, apperrors.ErrHoldingNotFound) {
			return apperrors.NewTransactionAbortError("load holding", err)
		}
		if err != nil {
			holding = nil
		}

		switch order.Side {
		case models.OrderSideBuy:
			holding, err = applyBuy(account, holding, trade, quote.Name)
		case models.OrderSideSell:
			holding, err = applySell(account, holding, trade)
		}
		if err != nil {
			return err
		}
		account.TotalTrades++

		if holding == nil {
			if err := repos.Holdings.Delete(ctx, order.UserID, order.Symbol); err != nil {
				return apperrors.NewTransactionAbortError("delete holding", err)
			}
		} else if err := repos.Holdings.Upsert(ctx, holding); err != nil {
			return apperrors.NewTransactionAbortError("save holding", err)
		}

		if err := repos.Trades.Insert(ctx, trade); err != nil {
			return apperrors.NewTransactionAbortError("insert trade", err)
		}

		holdings, err := repos.Holdings.List(ctx, order.UserID)
		if err != nil {
			return apperrors.NewTransactionAbortError("list holdings", err)
		}
		account.TrackDrawdown(accountValue(account.Balance, holdings, order.Symbol, price))

		if err := repos.Accounts.Update(ctx, account); err != nil {
			return apperrors.NewTransactionAbortError("update account", err)
		}
		balance = account.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.ExecutionResult{Trade: trade, NewBalance: balance}, nil
}

// applyBuy debits the account and folds the fill into the weighted average.
func applyBuy(account *models.Account, holding *models.Holding, trade *models.Trade, name string) (*models.Holding, error) {
	cost := trade.Total
	if account.Balance.LessThan(cost) {
		return nil, apperrors.NewInsufficientFundsError(cost, account.Balance)
	}
	account.Balance = account.Balance.Sub(cost)

	if holding == nil {
		return &models.Holding{
			UserID:       trade.UserID,
			Symbol:       trade.Symbol,
			StockName:    name,
			Quantity:     trade.Quantity,
			AveragePrice: trade.Price,
			Invested:     cost,
		}, nil
	}

	oldQty := decimal.NewFromInt(holding.Quantity)
	newQty := holding.Quantity + trade.Quantity
	avg := oldQty.Mul(holding.AveragePrice).Add(cost).Div(decimal.NewFromInt(newQty)).Round(priceScale)

	holding.Quantity = newQty
	holding.AveragePrice = avg
	holding.Invested = avg.Mul(decimal.NewFromInt(newQty))
	if holding.StockName == "" {
		holding.StockName = name
	}
	return holding, nil
}

// applySell credits the account and realizes P&L against the average
// price. A nil holding is returned when the position is fully closed.
func applySell(account *models.Account, holding *models.Holding, trade *models.Trade) (*models.Holding, error) {
	var held int64
	if holding != nil {
		held = holding.Quantity
	}
	if held < trade.Quantity {
		return nil, apperrors.NewInsufficientHoldingsError(trade.Symbol, trade.Quantity, held)
	}

	qty := decimal.NewFromInt(trade.Quantity)
	realized := trade.Price.Sub(holding.AveragePrice).Mul(qty)
	trade.RealizedPL = &realized

	account.Balance = account.Balance.Add(trade.Total)
	account.RecordClose(realized)

	remaining := held - trade.Quantity
	if remaining == 0 {
		return nil, nil
	}
	holding.Quantity = remaining
	holding.Invested = holding.AveragePrice.Mul(decimal.NewFromInt(remaining))
	return holding, nil
}

// accountValue marks every holding at its best known price, using the fill
// price for the symbol just traded.
func accountValue(balance decimal.Decimal, holdings []models.Holding, symbol string, price decimal.Decimal) decimal.Decimal {
	value := balance
	for i := range holdings {
		h := &holdings[i]
		mark := h.MarkPrice()
		if h.Symbol == symbol {
			mark = price
		}
		value = value.Add(mark.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return value
}

func normalizeOrder(order models.Order) (models.Order, error) {
	order.UserID = strings.TrimSpace(order.UserID)
	order.Symbol = models.NormalizeSymbol(order.Symbol)
	order.Side = models.OrderSide(strings.ToUpper(strings.TrimSpace(string(order.Side))))
	order.Kind = models.OrderKind(strings.ToUpper(strings.TrimSpace(string(order.Kind))))
	if order.Kind == "" {
		order.Kind = models.OrderKindMarket
	}

	switch {
	case order.UserID == "":
		return order, apperrors.NewValidationError("userId", order.UserID, "user is required")
	case order.Symbol == "":
		return order, apperrors.NewValidationError("symbol", order.Symbol, "symbol is required")
	case !order.Side.Valid():
		return order, apperrors.NewValidationError("side", order.Side, "side must be BUY or SELL")
	case order.Quantity <= 0:
		return order, apperrors.NewValidationError("quantity", order.Quantity, "quantity must be a positive integer")
	case !order.Kind.Valid():
		return order, apperrors.NewValidationError("orderType", order.Kind, "order type must be MARKET, LIMIT or STOP_LOSS")
	case order.Kind == models.OrderKindLimit && (order.LimitPrice == nil || !order.LimitPrice.IsPositive()):
		return order, apperrors.NewValidationError("limitPrice", order.LimitPrice, "limit orders require a positive limit price")
	case order.Kind == models.OrderKindStopLoss && (order.StopLossPrice == nil || !order.StopLossPrice.IsPositive()):
		return order, apperrors.NewValidationError("stopLossPrice", order.StopLossPrice, "stop-loss orders require a positive stop price")
	}
	return order, nil
}
