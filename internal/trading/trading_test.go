package trading

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
)

const testReason = "Breakout above the 200 day average on strong volume, target ten percent."

type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{prices: map[string]decimal.Decimal{}}
}

func (f *fakeQuotes) set(symbol string, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = decimal.NewFromInt(price)
}

func (f *fakeQuotes) remove(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, symbol)
}

func (f *fakeQuotes) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[symbol]
	if !ok {
		return nil, apperrors.NewSymbolNotFoundError(symbol)
	}
	return &models.Quote{Symbol: symbol, Name: symbol + " Ltd", Price: p}, nil
}

func (f *fakeQuotes) Quotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]models.Quote{}
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = models.Quote{Symbol: s, Price: p}
		}
	}
	return out, nil
}

type fixture struct {
	store     *store.SQLiteStore
	quotes    *fakeQuotes
	engine    *Engine
	valuation *Valuation
	stats     *Statistics
	accounts  *Accounts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "trading.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q := newFakeQuotes()
	valuation := NewValuation(st, q, zerolog.Nop())
	return &fixture{
		store:     st,
		quotes:    q,
		engine:    NewEngine(st, q, zerolog.Nop()),
		valuation: valuation,
		stats:     NewStatistics(valuation),
		accounts:  NewAccounts(st, decimal.NewFromInt(100000), zerolog.Nop()),
	}
}

func (f *fixture) openAccount(t *testing.T, userID string, balance int64) {
	t.Helper()
	if _, err := f.accounts.Create(context.Background(), userID, decimal.NewFromInt(balance)); err != nil {
		t.Fatalf("Create account: %v", err)
	}
}

func (f *fixture) trade(t *testing.T, userID string, side models.OrderSide, symbol string, qty int64) *models.ExecutionResult {
	t.Helper()
	res, err := f.engine.Execute(context.Background(), models.Order{
		UserID: userID, Symbol: symbol, Side: side, Quantity: qty, Reason: testReason,
	})
	if err != nil {
		t.Fatalf("%s %d %s: %v", side, qty, symbol, err)
	}
	return res
}

func (f *fixture) account(t *testing.T, userID string) *models.Account {
	t.Helper()
	a, err := f.store.Accounts().Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get account: %v", err)
	}
	return a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProfitScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("RELIANCE", 2500)

	buy := f.trade(t, "u1", models.OrderSideBuy, "reliance", 10)
	if !buy.NewBalance.Equal(dec("75000")) {
		t.Errorf("balance after buy = %s, want 75000", buy.NewBalance)
	}
	if buy.Trade.Symbol != "RELIANCE" || buy.Trade.RealizedPL != nil {
		t.Errorf("buy trade = %+v", buy.Trade)
	}

	h, err := f.store.Holdings().Get(ctx, "u1", "RELIANCE")
	if err != nil {
		t.Fatal(err)
	}
	if h.Quantity != 10 || !h.AveragePrice.Equal(dec("2500")) {
		t.Errorf("holding = %+v", h)
	}

	f.quotes.set("RELIANCE", 2600)
	p, err := f.valuation.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Holdings[0].UnrealizedPL.Equal(dec("1000")) {
		t.Errorf("unrealized = %s, want 1000", p.Holdings[0].UnrealizedPL)
	}

	sell := f.trade(t, "u1", models.OrderSideSell, "RELIANCE", 10)
	if !sell.NewBalance.Equal(dec("101000")) {
		t.Errorf("balance after sell = %s, want 101000", sell.NewBalance)
	}
	if sell.Trade.RealizedPL == nil || !sell.Trade.RealizedPL.Equal(dec("1000")) {
		t.Errorf("realized = %v, want 1000", sell.Trade.RealizedPL)
	}
	if _, err := f.store.Holdings().Get(ctx, "u1", "RELIANCE"); !errors.Is(err, apperrors.ErrHoldingNotFound) {
		t.Errorf("holding should be removed, got %v", err)
	}

	a := f.account(t, "u1")
	if !a.RealizedPL.Equal(dec("1000")) || a.TotalTrades != 2 || a.ProfitableTrades != 1 {
		t.Errorf("account = %+v", a)
	}
}

func TestWeightedAverage(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)

	f.quotes.set("TCS", 100)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 10)
	f.quotes.set("TCS", 200)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 10)

	h, _ := f.store.Holdings().Get(context.Background(), "u1", "TCS")
	if h.Quantity != 20 || !h.AveragePrice.Equal(dec("150")) || !h.Invested.Equal(dec("3000")) {
		t.Errorf("holding = qty %d avg %s invested %s", h.Quantity, h.AveragePrice, h.Invested)
	}

	// A partial sell keeps the average and scales invested.
	f.trade(t, "u1", models.OrderSideSell, "TCS", 5)
	h, _ = f.store.Holdings().Get(context.Background(), "u1", "TCS")
	if h.Quantity != 15 || !h.AveragePrice.Equal(dec("150")) || !h.Invested.Equal(dec("2250")) {
		t.Errorf("after sell = qty %d avg %s invested %s", h.Quantity, h.AveragePrice, h.Invested)
	}
}

func TestRoundTripNeutrality(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("INFY", 2500)

	f.trade(t, "u1", models.OrderSideBuy, "INFY", 10)
	res := f.trade(t, "u1", models.OrderSideSell, "INFY", 10)

	if !res.NewBalance.Equal(dec("100000")) || !res.Trade.RealizedPL.IsZero() {
		t.Errorf("balance %s realized %s", res.NewBalance, res.Trade.RealizedPL)
	}
	a := f.account(t, "u1")
	if a.ProfitableTrades != 0 || !a.MaxDrawdown.IsZero() {
		t.Errorf("account = %+v", a)
	}
}

func TestRejectionsLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 1000)
	f.quotes.set("TCS", 300)

	f.trade(t, "u1", models.OrderSideBuy, "TCS", 2)

	tests := []struct {
		name  string
		order models.Order
		want  error
	}{
		{"insufficient funds", models.Order{Side: models.OrderSideBuy, Symbol: "TCS", Quantity: 2}, apperrors.ErrInsufficientFunds},
		{"oversell", models.Order{Side: models.OrderSideSell, Symbol: "TCS", Quantity: 3}, apperrors.ErrInsufficientHoldings},
		{"sell unquoted symbol", models.Order{Side: models.OrderSideSell, Symbol: "INFY", Quantity: 1}, apperrors.ErrSymbolNotFound},
		{"unknown symbol", models.Order{Side: models.OrderSideBuy, Symbol: "NOPE", Quantity: 1}, apperrors.ErrSymbolNotFound},
		{"zero quantity", models.Order{Side: models.OrderSideBuy, Symbol: "TCS"}, apperrors.ErrInputValidation},
		{"bad side", models.Order{Side: "HOLD", Symbol: "TCS", Quantity: 1}, apperrors.ErrInputValidation},
		{"empty symbol", models.Order{Side: models.OrderSideBuy, Symbol: "  ", Quantity: 1}, apperrors.ErrInputValidation},
		{"limit without price", models.Order{Side: models.OrderSideBuy, Symbol: "TCS", Quantity: 1, Kind: models.OrderKindLimit}, apperrors.ErrInputValidation},
		{"stop loss without price", models.Order{Side: models.OrderSideBuy, Symbol: "TCS", Quantity: 1, Kind: models.OrderKindStopLoss}, apperrors.ErrInputValidation},
		{"no account", models.Order{UserID: "ghost", Side: models.OrderSideBuy, Symbol: "TCS", Quantity: 1}, apperrors.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := tt.order
			if order.UserID == "" {
				order.UserID = "u1"
			}
			res, err := f.engine.Execute(ctx, order)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if res != nil {
				t.Error("expected no result on failure")
			}
		})
	}

	a := f.account(t, "u1")
	if !a.Balance.Equal(dec("400")) || a.TotalTrades != 1 {
		t.Errorf("account changed: balance %s trades %d", a.Balance, a.TotalTrades)
	}
	h, _ := f.store.Holdings().Get(ctx, "u1", "TCS")
	if h.Quantity != 2 {
		t.Errorf("holding changed: %d", h.Quantity)
	}
	trades, _ := f.store.Trades().List(ctx, store.TradeFilter{UserID: "u1"})
	if len(trades) != 1 {
		t.Errorf("trades = %d, want 1", len(trades))
	}
}

func TestLimitOrderFillsAtLimitPrice(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("SBIN", 600)

	limit := dec("590.50")
	res, err := f.engine.Execute(context.Background(), models.Order{
		UserID: "u1", Symbol: "SBIN", Side: models.OrderSideBuy, Quantity: 2,
		Kind: models.OrderKindLimit, LimitPrice: &limit, Reason: testReason,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Trade.Price.Equal(limit) || !res.Trade.Total.Equal(dec("1181")) {
		t.Errorf("trade = %+v", res.Trade)
	}
	if res.Trade.Kind != models.OrderKindLimit {
		t.Errorf("kind = %s", res.Trade.Kind)
	}
}

func TestConcurrentSellsCannotOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("ITC", 400)
	f.trade(t, "u1", models.OrderSideBuy, "ITC", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Execute(ctx, models.Order{
				UserID: "u1", Symbol: "ITC", Side: models.OrderSideSell, Quantity: 3, Reason: testReason,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperrors.ErrInsufficientHoldings):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 || rejected != 5 {
		t.Errorf("succeeded %d rejected %d, want 3 and 5", succeeded, rejected)
	}
	h, err := f.store.Holdings().Get(ctx, "u1", "ITC")
	if err != nil || h.Quantity != 1 {
		t.Errorf("holding = %+v, %v", h, err)
	}
}

// failingTrades makes every insert fail after the account and holding
// have been staged.
type failingTrades struct {
	store.TradeRepository
}

func (failingTrades) Insert(ctx context.Context, t *models.Trade) error {
	return errors.New("disk I/O error")
}

type failingStore struct {
	store.Store
}

func (s failingStore) Do(ctx context.Context, fn func(ctx context.Context, repos store.Repositories) error) error {
	return s.Store.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		repos.Trades = failingTrades{repos.Trades}
		return fn(ctx, repos)
	})
}

func TestStorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("TCS", 1000)

	engine := NewEngine(failingStore{f.store}, f.quotes, zerolog.Nop())
	_, err := engine.Execute(ctx, models.Order{UserID: "u1", Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 5, Reason: testReason})

	var abort *apperrors.TransactionAbortError
	if !errors.As(err, &abort) {
		t.Fatalf("err = %v, want TransactionAbortError", err)
	}
	if a := f.account(t, "u1"); !a.Balance.Equal(dec("100000")) || a.TotalTrades != 0 {
		t.Errorf("account mutated: %+v", a)
	}
	if _, err := f.store.Holdings().Get(ctx, "u1", "TCS"); !errors.Is(err, apperrors.ErrHoldingNotFound) {
		t.Errorf("holding persisted after rollback")
	}
}

func TestCanceledContextStillCommits(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("TCS", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.engine.Execute(ctx, models.Order{UserID: "u1", Symbol: "TCS", Side: models.OrderSideBuy, Quantity: 1, Reason: testReason})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.NewBalance.Equal(dec("99000")) {
		t.Errorf("balance = %s", res.NewBalance)
	}
}

func TestDrawdownTracking(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 10000)

	f.quotes.set("TCS", 1000)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 10)
	f.quotes.set("TCS", 800)
	f.trade(t, "u1", models.OrderSideSell, "TCS", 10)

	a := f.account(t, "u1")
	if !a.MaxDrawdown.Equal(dec("20")) {
		t.Errorf("max drawdown = %s, want 20", a.MaxDrawdown)
	}
	if !a.WorstTrade.Equal(dec("-2000")) || !a.BestTrade.Equal(dec("-2000")) {
		t.Errorf("best %s worst %s", a.BestTrade, a.WorstTrade)
	}
}

func TestValuationFallsBackToCachedPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)

	f.quotes.set("TCS", 1000)
	f.quotes.set("INFY", 500)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 10)
	f.trade(t, "u1", models.OrderSideBuy, "INFY", 10)

	f.quotes.set("TCS", 1100)
	f.quotes.set("INFY", 450)
	if _, err := f.valuation.GetPortfolio(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	// INFY disappears from the feed: it keeps its last cached price.
	f.quotes.remove("INFY")
	f.quotes.set("TCS", 1200)
	p, err := f.valuation.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	byS := map[string]models.Holding{}
	for _, h := range p.Holdings {
		byS[h.Symbol] = h
	}
	if !byS["TCS"].CurrentPrice.Equal(dec("1200")) {
		t.Errorf("TCS price = %s", byS["TCS"].CurrentPrice)
	}
	if !byS["INFY"].CurrentPrice.Equal(dec("450")) || !byS["INFY"].UnrealizedPL.Equal(dec("-500")) {
		t.Errorf("INFY = %+v", byS["INFY"])
	}

	s := p.Summary
	if s.TotalHoldings != 2 || s.ProfitableStocks != 1 || s.LosingStocks != 1 {
		t.Errorf("summary = %+v", s)
	}
	if !s.TotalInvested.Equal(dec("15000")) || !s.CurrentValue.Equal(dec("16500")) || !s.TotalPL.Equal(dec("1500")) {
		t.Errorf("summary = %+v", s)
	}
	if !s.TotalPLPercent.Equal(dec("10")) {
		t.Errorf("pl percent = %s", s.TotalPLPercent)
	}
	if !p.TotalValue.Equal(dec("101500")) {
		t.Errorf("total value = %s", p.TotalValue)
	}

	// A full feed outage falls back for every holding.
	f.quotes.err = errors.New("feed down")
	p, err = f.valuation.GetPortfolio(ctx, "u1")
	if err != nil {
		t.Fatalf("valuation should degrade, got %v", err)
	}
	if !p.Summary.CurrentValue.Equal(dec("16500")) {
		t.Errorf("current value = %s", p.Summary.CurrentValue)
	}
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)

	f.quotes.set("TCS", 1000)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 20)
	f.quotes.set("TCS", 1100)
	f.trade(t, "u1", models.OrderSideSell, "TCS", 10)
	f.quotes.set("TCS", 1200)

	stats, err := f.stats.GetStats(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalTrades != 2 || stats.ProfitableTrades != 1 || !stats.WinRate.Equal(dec("50")) {
		t.Errorf("counts = %+v", stats)
	}
	if !stats.RealizedPL.Equal(dec("1000")) || !stats.UnrealizedPL.Equal(dec("2000")) {
		t.Errorf("pl = realized %s unrealized %s", stats.RealizedPL, stats.UnrealizedPL)
	}
	if !stats.TotalProfitLoss.Equal(dec("3000")) || !stats.ROI.Equal(dec("3")) {
		t.Errorf("total %s roi %s", stats.TotalProfitLoss, stats.ROI)
	}

	if _, err := f.stats.GetStats(ctx, "nobody"); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("missing user = %v", err)
	}
}

func TestAccountReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("TCS", 1000)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 10)
	if err := f.store.Accounts().UpdateLevel(ctx, "u1", models.LevelIntermediate); err != nil {
		t.Fatal(err)
	}

	a, err := f.accounts.Reset(ctx, "u1", decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(dec("100000")) || a.TotalTrades != 0 || a.Level != models.LevelIntermediate {
		t.Errorf("account = %+v", a)
	}
	holdings, _ := f.store.Holdings().List(ctx, "u1")
	if len(holdings) != 0 {
		t.Errorf("holdings = %d, want 0", len(holdings))
	}
	trades, _ := f.store.Trades().List(ctx, store.TradeFilter{UserID: "u1"})
	if len(trades) != 1 {
		t.Errorf("trade log should survive a reset")
	}

	if _, err := f.accounts.Reset(ctx, "ghost", decimal.Zero); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("reset unknown = %v", err)
	}
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t)
	a, err := f.accounts.GetOrCreate(context.Background(), "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(dec("100000")) {
		t.Errorf("balance = %s", a.Balance)
	}
}

func TestExportTradesCSV(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, "u1", 100000)
	f.quotes.set("TCS", 1000)
	f.trade(t, "u1", models.OrderSideBuy, "TCS", 3)
	f.trade(t, "u1", models.OrderSideSell, "TCS", 1)

	var buf bytes.Buffer
	n, err := ExportTradesCSV(context.Background(), f.store.Trades(), store.TradeFilter{UserID: "u1"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("rows = %d", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "id,session,symbol,side") {
		t.Errorf("csv = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "3000.00") {
		t.Errorf("missing buy total in %q", buf.String())
	}
}
