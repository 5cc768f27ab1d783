package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
	"virtual-trader/internal/quotes"
	"virtual-trader/pkg/utils"
)

// Server to client event types.
const (
	EventPriceUpdate     = "price:update"
	EventPortfolioUpdate = "portfolio:update"
	EventTradeExecuted   = "trade:executed"
	EventAlert           = "ai:alert"
	EventMarketStatus    = "market:status"
	EventPong            = "pong"
	EventError           = "error"
)

// PriceUpdate is the payload of price:update.
type PriceUpdate struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
}

// PortfolioUpdate is the payload of portfolio:update.
type PortfolioUpdate struct {
	Holdings         []models.Holding        `json:"holdings"`
	AvailableBalance decimal.Decimal         `json:"availableBalance"`
	TotalValue       decimal.Decimal         `json:"totalValue"`
	TotalPL          decimal.Decimal         `json:"totalPL"`
	Summary          models.PortfolioSummary `json:"summary"`
	Timestamp        time.Time               `json:"timestamp"`
}

// TradeUpdate is the payload of trade:executed.
type TradeUpdate struct {
	*models.Trade
	Timestamp time.Time `json:"timestamp"`
}

// AlertUpdate is the payload of ai:alert.
type AlertUpdate struct {
	models.Alert
	Timestamp time.Time `json:"timestamp"`
}

// MarketStatusUpdate is the payload of market:status.
type MarketStatusUpdate struct {
	Status    models.MarketStatus `json:"status"`
	Message   string              `json:"message"`
	Timestamp time.Time           `json:"timestamp"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// PortfolioSource values a user's portfolio.
type PortfolioSource interface {
	GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error)
}

// Realtime turns quotes, portfolio valuations and trade notifications into
// hub events.
type Realtime struct {
	hub        *Hub
	quotes     quotes.Source
	portfolios PortfolioSource
	logger     zerolog.Logger
	now        func() time.Time

	statusMu   sync.Mutex
	lastStatus models.MarketStatus
}

// NewRealtime creates the realtime service.
func NewRealtime(hub *Hub, src quotes.Source, portfolios PortfolioSource, logger zerolog.Logger) *Realtime {
	return &Realtime{
		hub:        hub,
		quotes:     src,
		portfolios: portfolios,
		logger:     logging.WithComponent(logger, "realtime"),
		now:        time.Now,
	}
}

// Hub returns the underlying topic registry.
func (r *Realtime) Hub() *Hub {
	return r.hub
}

// join subscribes sub to topic. The returned undo leaves the topic again
// unless sub was already a member beforehand.
func (r *Realtime) join(sub *Subscriber, topic string) (undo func(), err error) {
	existed := r.hub.Subscribed(sub, topic)
	if !r.hub.Subscribe(sub, topic) {
		return nil, apperrors.ErrSubscriberClosed
	}
	if existed {
		return func() {}, nil
	}
	return func() { r.hub.Unsubscribe(sub, topic) }, nil
}

// SubscribeStock joins the symbol's topic and sends one price snapshot to
// the subscriber straight away. A symbol with no quote is not joined.
func (r *Realtime) SubscribeStock(ctx context.Context, sub *Subscriber, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return apperrors.NewValidationError("symbol", symbol, "symbol is required")
	}
	undo, err := r.join(sub, StockTopic(symbol))
	if err != nil {
		return err
	}

	q, err := r.quotes.Quote(ctx, symbol)
	if err != nil {
		undo()
		return err
	}
	r.hub.Send(sub, r.priceEvent(*q))
	return nil
}

// SubscribeStocks joins several symbol topics and sends one snapshot per
// symbol using a single quote lookup. Symbols the lookup does not return
// are left again.
func (r *Realtime) SubscribeStocks(ctx context.Context, sub *Subscriber, symbols []string) error {
	normalized := make([]string, 0, len(symbols))
	undos := make(map[string]func(), len(symbols))
	undoAll := func() {
		for _, undo := range undos {
			undo()
		}
	}
	for _, s := range symbols {
		s = models.NormalizeSymbol(s)
		if _, dup := undos[s]; s == "" || dup {
			continue
		}
		undo, err := r.join(sub, StockTopic(s))
		if err != nil {
			undoAll()
			return err
		}
		undos[s] = undo
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		return nil
	}

	found, err := r.quotes.Quotes(ctx, normalized)
	if err != nil {
		undoAll()
		return err
	}
	for _, s := range normalized {
		q, ok := found[s]
		if !ok {
			undos[s]()
			continue
		}
		r.hub.Send(sub, r.priceEvent(q))
	}
	return nil
}

// UnsubscribeStock leaves the symbol's topic.
func (r *Realtime) UnsubscribeStock(sub *Subscriber, symbol string) {
	r.hub.Unsubscribe(sub, StockTopic(models.NormalizeSymbol(symbol)))
}

// SubscribePortfolio joins the subscriber's private topic and sends one
// portfolio snapshot straight away. If the snapshot fails the topic is
// not joined.
func (r *Realtime) SubscribePortfolio(ctx context.Context, sub *Subscriber) error {
	undo, err := r.join(sub, UserTopic(sub.UserID))
	if err != nil {
		return err
	}
	p, err := r.portfolios.GetPortfolio(ctx, sub.UserID)
	if err != nil {
		undo()
		return err
	}
	r.hub.Send(sub, r.portfolioEvent(p))
	return nil
}

// PriceTick publishes the latest quote of every watched symbol and returns
// how many symbols were published. With nothing watched it returns without
// querying quotes.
func (r *Realtime) PriceTick(ctx context.Context) (int, error) {
	symbols := r.hub.ActiveSymbols()
	if len(symbols) == 0 {
		return 0, nil
	}

	found, err := r.quotes.Quotes(ctx, symbols)
	if err != nil {
		return 0, fmt.Errorf("price tick: %w", err)
	}
	n := 0
	for _, s := range symbols {
		q, ok := found[s]
		if !ok {
			continue
		}
		r.hub.Publish(StockTopic(s), r.priceEvent(q))
		n++
	}
	return n, nil
}

// PortfolioTick revalues and publishes the portfolio of every user with a
// live private topic. One user's failure does not stop the others.
func (r *Realtime) PortfolioTick(ctx context.Context) int {
	n := 0
	for _, userID := range r.hub.ActiveUsers() {
		if ctx.Err() != nil {
			break
		}
		p, err := r.portfolios.GetPortfolio(ctx, userID)
		if err != nil {
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("Portfolio update skipped")
			continue
		}
		r.hub.Publish(UserTopic(userID), r.portfolioEvent(p))
		n++
	}
	return n
}

// TradeExecuted pushes a committed trade to its owner.
func (r *Realtime) TradeExecuted(trade *models.Trade) {
	r.hub.Publish(UserTopic(trade.UserID), Event{
		Type: EventTradeExecuted,
		Data: TradeUpdate{Trade: trade, Timestamp: r.now()},
	})
}

// Alert pushes a one-off alert to a user.
func (r *Realtime) Alert(userID string, alert models.Alert) {
	r.hub.Publish(UserTopic(userID), Event{
		Type: EventAlert,
		Data: AlertUpdate{Alert: alert, Timestamp: r.now()},
	})
}

// MarketStatus broadcasts status to every connection.
func (r *Realtime) MarketStatus(status models.MarketStatus) {
	r.hub.Broadcast(Event{
		Type: EventMarketStatus,
		Data: MarketStatusUpdate{
			Status:    status,
			Message:   utils.MarketStatusMessage(status),
			Timestamp: r.now(),
		},
	})
}

// MarketStatusTick broadcasts the market status when it has changed since
// the previous tick and reports whether it did.
func (r *Realtime) MarketStatusTick(ctx context.Context) bool {
	status := utils.GetMarketStatusAt(r.now())

	r.statusMu.Lock()
	changed := status != r.lastStatus
	r.lastStatus = status
	r.statusMu.Unlock()

	if !changed {
		return false
	}
	r.logger.Info().Str("status", string(status)).Msg("Market status changed")
	r.MarketStatus(status)
	return true
}

// CurrentMarketStatus returns the status event for a newly connected client.
func (r *Realtime) CurrentMarketStatus() Event {
	status := utils.GetMarketStatusAt(r.now())
	return Event{
		Type: EventMarketStatus,
		Data: MarketStatusUpdate{Status: status, Message: utils.MarketStatusMessage(status), Timestamp: r.now()},
	}
}

func (r *Realtime) priceEvent(q models.Quote) Event {
	return Event{
		Type: EventPriceUpdate,
		Data: PriceUpdate{
			Symbol:        q.Symbol,
			Price:         q.Price,
			Open:          q.Open,
			High:          q.High,
			Low:           q.Low,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			Volume:        q.Volume,
			Timestamp:     r.now(),
		},
	}
}

func (r *Realtime) portfolioEvent(p *models.Portfolio) Event {
	return Event{
		Type: EventPortfolioUpdate,
		Data: PortfolioUpdate{
			Holdings:         p.Holdings,
			AvailableBalance: p.AvailableBalance,
			TotalValue:       p.TotalValue,
			TotalPL:          p.Summary.TotalPL,
			Summary:          p.Summary,
			Timestamp:        r.now(),
		},
	}
}
