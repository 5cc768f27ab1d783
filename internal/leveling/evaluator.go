// Package leveling promotes users through trading skill levels based on
// aggregated trade metrics.
package leveling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Threshold is the minimum performance required for a level. All
// conditions must hold at once.
type Threshold struct {
	Level         models.Level
	MinClosed     int64
	MinActiveDays int64
	MinROI        decimal.Decimal
	MaxDrawdown   decimal.Decimal
	MinWinRate    decimal.Decimal
}

// DefaultThresholds are ordered from the highest level down.
var DefaultThresholds = []Threshold{
	{models.LevelExpert, 100, 30, decimal.NewFromInt(25), decimal.NewFromInt(8), decimal.NewFromInt(55)},
	{models.LevelAdvanced, 50, 15, decimal.NewFromInt(10), decimal.NewFromInt(10), decimal.NewFromInt(50)},
	{models.LevelIntermediate, 20, 5, decimal.NewFromInt(3), decimal.NewFromInt(15), decimal.NewFromInt(45)},
}

// Metrics are the inputs to classification.
type Metrics struct {
	ClosedTrades     int64
	ProfitableTrades int64
	ActiveDays       int64
	TotalRealizedPL  decimal.Decimal
	WinRate          decimal.Decimal
	ROI              decimal.Decimal
	MaxDrawdown      decimal.Decimal
}

// ComputeMetrics derives win rate and ROI from a trade aggregate. Drawdown
// comes from the account.
func ComputeMetrics(agg *models.TradeAggregate, account *models.Account) Metrics {
	m := Metrics{
		ClosedTrades:     agg.ClosedTrades,
		ProfitableTrades: agg.ProfitableClosed,
		ActiveDays:       agg.DistinctActiveDays,
		TotalRealizedPL:  agg.TotalRealizedPL,
		WinRate:          decimal.Zero,
		ROI:              decimal.Zero,
		MaxDrawdown:      account.MaxDrawdown,
	}
	if agg.ClosedTrades > 0 {
		m.WinRate = decimal.NewFromInt(agg.ProfitableClosed).Div(decimal.NewFromInt(agg.ClosedTrades)).Mul(hundred)
	}
	if account.InitialBalance.IsPositive() {
		m.ROI = agg.TotalRealizedPL.Div(account.InitialBalance).Mul(hundred)
	}
	return m
}

// Classify returns the first level in thresholds whose conditions m meets,
// or BEGINNER.
func Classify(m Metrics, thresholds []Threshold) models.Level {
	for _, t := range thresholds {
		if m.ClosedTrades >= t.MinClosed &&
			m.ActiveDays >= t.MinActiveDays &&
			m.ROI.GreaterThanOrEqual(t.MinROI) &&
			m.MaxDrawdown.LessThanOrEqual(t.MaxDrawdown) &&
			m.WinRate.GreaterThanOrEqual(t.MinWinRate) {
			return t.Level
		}
	}
	return models.LevelBeginner
}

// BatchResult summarizes one evaluation pass.
type BatchResult struct {
	Processed int           `json:"processed"`
	Upgraded  int           `json:"upgraded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Evaluator computes and stores user levels. Levels only move up.
type Evaluator struct {
	accounts   store.AccountRepository
	trades     store.TradeRepository
	thresholds []Threshold
	workers    int
	logger     zerolog.Logger
}

// NewEvaluator creates a level evaluator running at most workers users
// concurrently in a batch.
func NewEvaluator(accounts store.AccountRepository, trades store.TradeRepository, workers int, logger zerolog.Logger) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		accounts:   accounts,
		trades:     trades,
		thresholds: DefaultThresholds,
		workers:    workers,
		logger:     logging.WithComponent(logger, "leveling"),
	}
}

// EvaluateUser recomputes the user's level and returns the stored result.
func (e *Evaluator) EvaluateUser(ctx context.Context, userID string) (models.Level, error) {
	level, _, err := e.evaluate(ctx, userID)
	return level, err
}

func (e *Evaluator) evaluate(ctx context.Context, userID string) (models.Level, bool, error) {
	account, err := e.accounts.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	agg, err := e.trades.Aggregate(ctx, userID)
	if err != nil {
		return "", false, err
	}

	computed := Classify(ComputeMetrics(agg, account), e.thresholds)
	current := account.Level
	if computed.Rank() <= current.Rank() {
		return current, false, nil
	}

	if err := e.accounts.UpdateLevel(ctx, userID, computed); err != nil {
		return current, false, err
	}
	logging.LogLevelChange(e.logger, userID, current, computed)
	return computed, true, nil
}

// EvaluateAllActiveUsers evaluates every user with at least one closed
// position. A failure for one user is logged and counted; it never stops
// the batch.
func (e *Evaluator) EvaluateAllActiveUsers(ctx context.Context) (BatchResult, error) {
	start := time.Now()

	users, err := e.trades.UsersWithClosedTrades(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	var mu sync.Mutex
	result := BatchResult{}

	p := pool.New().WithMaxGoroutines(e.workers)
	for _, userID := range users {
		userID := userID
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			_, changed, err := e.evaluate(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch {
			case err != nil:
				result.Failed++
				e.logger.Error().Err(err).Str("user_id", userID).Msg("Level evaluation failed")
			case changed:
				result.Upgraded++
			}
		})
	}
	p.Wait()

	result.Duration = time.Since(start)
	logging.LogJobRun(e.logger, "level_evaluation", result.Processed, result.Upgraded, result.Failed, result.Duration)

	if errors.Is(ctx.Err(), context.Canceled) {
		return result, ctx.Err()
	}
	return result, nil
}
