package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
	"virtual-trader/internal/resilience"
	"virtual-trader/internal/store"
	"virtual-trader/pkg/utils"
)

// kiteClient is the subset of the Kite Connect client used for quotes.
type kiteClient interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
}

// KiteConfig configures a Kite Connect quote source.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

// KiteSource fetches live quotes from Kite Connect and writes them through
// to the quote table so that reads keep working when the API is down.
type KiteSource struct {
	client   kiteClient
	exchange string
	cache    store.QuoteRepository
	retry    utils.RetryConfig
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewKiteSource creates a Kite Connect backed source. cache may be nil.
func NewKiteSource(cfg KiteConfig, cache store.QuoteRepository, logger zerolog.Logger) (*KiteSource, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: kite api key and access token are required", apperrors.ErrConfigInvalid)
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return newKiteSource(client, cfg.Exchange, cache, logger), nil
}

func newKiteSource(client kiteClient, exchange string, cache store.QuoteRepository, logger zerolog.Logger) *KiteSource {
	if exchange == "" {
		exchange = "NSE"
	}
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.InitialDelay = 200 * time.Millisecond
	return &KiteSource{
		client:   client,
		exchange: strings.ToUpper(exchange),
		cache:    cache,
		retry:    retry,
		breaker:  resilience.NewCircuitBreaker("kite_quotes", resilience.DefaultCircuitBreakerConfig()),
		logger:   logger.With().Str("component", "kite_quotes").Logger(),
	}
}

func (k *KiteSource) instrument(symbol string) string {
	return k.exchange + ":" + symbol
}

// Quote fetches the live quote for symbol, falling back to the cached copy.
func (k *KiteSource) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	got, err := k.Quotes(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	q, ok := got[symbol]
	if !ok {
		return nil, apperrors.NewSymbolNotFoundError(symbol)
	}
	return &q, nil
}

// Quotes fetches live quotes for symbols in one call.
func (k *KiteSource) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	result := make(map[string]models.Quote, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	instruments := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		instruments = append(instruments, k.instrument(models.NormalizeSymbol(sym)))
	}

	var raw kiteconnect.Quote
	err := k.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		raw, err = utils.RetryWithResult(ctx, k.retry, func() (kiteconnect.Quote, error) {
			return k.client.GetQuote(instruments...)
		})
		return err
	})
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return k.fallback(ctx, symbols, err)
	case err != nil:
		k.logger.Warn().Err(err).Int("symbols", len(symbols)).Msg("Live quote fetch failed")
		return k.fallback(ctx, symbols, err)
	}

	now := time.Now().UTC()
	for _, inst := range instruments {
		data, ok := raw[inst]
		if !ok || data.LastPrice <= 0 {
			continue
		}
		q := fromKite(strings.TrimPrefix(inst, k.exchange+":"), data.LastPrice, data.OHLC.Open, data.OHLC.High,
			data.OHLC.Low, data.OHLC.Close, data.NetChange, int64(data.Volume), now)
		result[q.Symbol] = q

		if k.cache != nil {
			if err := k.cache.SaveQuote(ctx, &q); err != nil {
				k.logger.Debug().Err(err).Str("symbol", q.Symbol).Msg("Failed to cache quote")
			}
		}
	}
	return result, nil
}

// BreakerStats reports the state of the live feed circuit breaker.
func (k *KiteSource) BreakerStats() resilience.CircuitBreakerStats {
	return k.breaker.Stats()
}

func (k *KiteSource) fallback(ctx context.Context, symbols []string, cause error) (map[string]models.Quote, error) {
	if k.cache == nil {
		return nil, fmt.Errorf("failed to get quotes: %w", cause)
	}
	normalized := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		normalized = append(normalized, models.NormalizeSymbol(sym))
	}
	return k.cache.GetQuotes(ctx, normalized)
}

func fromKite(symbol string, last, open, high, low, prevClose, change float64, volume int64, at time.Time) models.Quote {
	q := models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(last),
		Open:      decimal.NewFromFloat(open),
		High:      decimal.NewFromFloat(high),
		Low:       decimal.NewFromFloat(low),
		Close:     decimal.NewFromFloat(prevClose),
		Change:    decimal.NewFromFloat(change),
		Volume:    volume,
		UpdatedAt: at,
	}
	if prevClose > 0 {
		q.ChangePercent = q.Change.Div(q.Close).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return q
}
