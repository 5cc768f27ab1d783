package trading

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
)

// Advisor produces a short advisory note for an executed trade.
type Advisor interface {
	Annotate(ctx context.Context, trade *models.Trade) (string, error)
}

// Notifier receives one-off pushes after a trade commits.
type Notifier interface {
	TradeExecuted(trade *models.Trade)
	Alert(userID string, alert models.Alert)
}

// DeskConfig holds order desk policy.
type DeskConfig struct {
	MinReasonLength int
	AdvisorTimeout  time.Duration
}

// Desk is the caller layer in front of the Engine. It enforces the
// trade-thesis policy and fans the result out to the advisor and notifier.
type Desk struct {
	engine   *Engine
	cfg      DeskConfig
	advisor  Advisor
	notifier Notifier
	logger   zerolog.Logger
}

// NewDesk creates an order desk.
func NewDesk(engine *Engine, cfg DeskConfig, logger zerolog.Logger) *Desk {
	return &Desk{
		engine: engine,
		cfg:    cfg,
		logger: logging.WithComponent(logger, "desk"),
	}
}

// WithAdvisor attaches an AI advisor.
func (d *Desk) WithAdvisor(a Advisor) *Desk {
	d.advisor = a
	return d
}

// WithNotifier attaches a realtime notifier.
func (d *Desk) WithNotifier(n Notifier) *Desk {
	d.notifier = n
	return d
}

// PlaceOrder validates the trade thesis, executes the order and, once it
// has committed, pushes the trade and the optional advisory note.
func (d *Desk) PlaceOrder(ctx context.Context, order models.Order) (*models.ExecutionResult, error) {
	reason := strings.TrimSpace(order.Reason)
	if n := utf8.RuneCountInString(reason); n < d.cfg.MinReasonLength {
		return nil, apperrors.NewValidationError("reason", n,
			fmt.Sprintf("explain your trade in at least %d characters", d.cfg.MinReasonLength))
	}
	order.Reason = reason

	res, err := d.engine.Execute(ctx, order)
	if err != nil {
		return nil, err
	}

	if d.notifier != nil {
		d.notifier.TradeExecuted(res.Trade)
	}
	if d.advisor != nil {
		if advice := d.advise(ctx, res.Trade); advice != "" {
			res.Advice = advice
			if d.notifier != nil {
				d.notifier.Alert(res.Trade.UserID, models.Alert{
					Kind:    "trade_advice",
					Symbol:  res.Trade.Symbol,
					TradeID: res.Trade.ID,
					Message: advice,
				})
			}
		}
	}
	return res, nil
}

func (d *Desk) advise(ctx context.Context, trade *models.Trade) string {
	timeout := d.cfg.AdvisorTimeout
	if timeout <= 0 || timeout > 20*time.Second {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	advice, err := d.advisor.Annotate(ctx, trade)
	if err != nil {
		d.logger.Warn().Err(err).Str("trade_id", trade.ID).Msg("Advisory unavailable")
		return ""
	}
	return strings.TrimSpace(advice)
}
