package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trader.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateAccount(t *testing.T, s Store, userID string, balance int64) {
	t.Helper()
	if err := s.Accounts().Create(context.Background(), models.NewAccount(userID, decimal.NewFromInt(balance))); err != nil {
		t.Fatalf("Create account: %v", err)
	}
}

var tradeSeq atomic.Int64

func sellTrade(userID, session string, realized decimal.Decimal) *models.Trade {
	return &models.Trade{
		ID:          fmt.Sprintf("%s-%d", userID, tradeSeq.Add(1)),
		UserID:      userID,
		Symbol:      "TCS",
		Side:        models.OrderSideSell,
		Kind:        models.OrderKindMarket,
		Quantity:    1,
		Price:       decimal.NewFromInt(100),
		Total:       decimal.NewFromInt(100),
		Status:      models.TradeStatusExecuted,
		RealizedPL:  &realized,
		SessionDate: session,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	if err := s.Accounts().Create(ctx, models.NewAccount("u1", decimal.NewFromInt(1))); !errors.Is(err, apperrors.ErrAccountExists) {
		t.Errorf("duplicate create = %v, want ErrAccountExists", err)
	}

	a, err := s.Accounts().Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !a.Balance.Equal(decimal.NewFromInt(100000)) || a.Level != models.LevelBeginner {
		t.Errorf("unexpected account %+v", a)
	}

	a.Balance = decimal.RequireFromString("98765.4321")
	a.RecordClose(decimal.NewFromInt(250))
	if err := s.Accounts().Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := s.Accounts().UpdateLevel(ctx, "u1", models.LevelAdvanced); err != nil {
		t.Fatalf("UpdateLevel: %v", err)
	}

	got, _ := s.Accounts().Get(ctx, "u1")
	if !got.Balance.Equal(decimal.RequireFromString("98765.4321")) {
		t.Errorf("balance = %s", got.Balance)
	}
	if got.ClosedTrades != 1 || got.ProfitableTrades != 1 || !got.BestTrade.Equal(decimal.NewFromInt(250)) {
		t.Errorf("counters not persisted: %+v", got)
	}
	if got.Level != models.LevelAdvanced {
		t.Errorf("level = %s, want ADVANCED", got.Level)
	}

	if _, err := s.Accounts().Get(ctx, "missing"); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("missing account = %v", err)
	}
}

func TestAccountResetClearsCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	a, _ := s.Accounts().Get(ctx, "u1")
	a.Balance = decimal.NewFromInt(5)
	a.TotalTrades = 9
	a.RecordClose(decimal.NewFromInt(-10))
	if err := s.Accounts().Update(ctx, a); err != nil {
		t.Fatal(err)
	}

	if err := s.Accounts().Reset(ctx, "u1", decimal.NewFromInt(50000)); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	got, _ := s.Accounts().Get(ctx, "u1")
	if !got.Balance.Equal(decimal.NewFromInt(50000)) || !got.InitialBalance.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("balance after reset = %s / %s", got.Balance, got.InitialBalance)
	}
	if got.TotalTrades != 0 || got.ClosedTrades != 0 || !got.RealizedPL.IsZero() {
		t.Errorf("counters after reset: %+v", got)
	}
}

func TestHoldingUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	h := &models.Holding{
		UserID:       "u1",
		Symbol:       "INFY",
		StockName:    "Infosys",
		Quantity:     10,
		AveragePrice: decimal.RequireFromString("1500.25"),
		Invested:     decimal.RequireFromString("15002.5"),
	}
	if err := s.Holdings().Upsert(ctx, h); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	h.Quantity = 15
	h.Invested = decimal.RequireFromString("22502.5")
	if err := s.Holdings().Upsert(ctx, h); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	got, err := s.Holdings().Get(ctx, "u1", "INFY")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Quantity != 15 || !got.Invested.Equal(decimal.RequireFromString("22502.5")) {
		t.Errorf("holding = %+v", got)
	}
	if !got.ValuedAt.IsZero() {
		t.Errorf("fresh holding should have no valuation timestamp")
	}

	got.Revalue(decimal.NewFromInt(1600), time.Now().UTC())
	if err := s.Holdings().SaveValuation(ctx, got); err != nil {
		t.Fatalf("SaveValuation: %v", err)
	}
	valued, _ := s.Holdings().Get(ctx, "u1", "INFY")
	if !valued.CurrentPrice.Equal(decimal.NewFromInt(1600)) || valued.ValuedAt.IsZero() {
		t.Errorf("valuation not saved: %+v", valued)
	}

	if err := s.Holdings().Delete(ctx, "u1", "INFY"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Holdings().Get(ctx, "u1", "INFY"); !errors.Is(err, apperrors.ErrHoldingNotFound) {
		t.Errorf("after delete = %v", err)
	}
}

func TestSaveValuationSkipsStaleQuantity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	h := &models.Holding{UserID: "u1", Symbol: "SBIN", Quantity: 5, AveragePrice: decimal.NewFromInt(600), Invested: decimal.NewFromInt(3000)}
	if err := s.Holdings().Upsert(ctx, h); err != nil {
		t.Fatal(err)
	}

	stale := *h
	stale.Quantity = 3
	stale.Revalue(decimal.NewFromInt(700), time.Now().UTC())
	if err := s.Holdings().SaveValuation(ctx, &stale); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Holdings().Get(ctx, "u1", "SBIN")
	if !got.CurrentPrice.IsZero() {
		t.Errorf("stale valuation was written: %s", got.CurrentPrice)
	}
}

func TestTradesAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	tr := sellTrade("u1", "2024-01-15", decimal.NewFromInt(10))
	if err := s.Trades().Insert(ctx, tr); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE trades SET quantity = 99 WHERE id = ?`, tr.ID); err == nil {
		t.Error("expected update of trade to fail")
	}

	trades, err := s.Trades().List(ctx, TradeFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(trades) != 1 || trades[0].Quantity != 1 {
		t.Fatalf("trades = %+v", trades)
	}
	if trades[0].RealizedPL == nil || !trades[0].RealizedPL.Equal(decimal.NewFromInt(10)) {
		t.Errorf("realized = %v", trades[0].RealizedPL)
	}
	if trades[0].LimitPrice != nil {
		t.Errorf("limit price should be nil")
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	buy := sellTrade("u1", "2024-01-14", decimal.Zero)
	buy.Side = models.OrderSideBuy
	buy.RealizedPL = nil
	trades := []*models.Trade{
		buy,
		sellTrade("u1", "2024-01-15", decimal.NewFromInt(100)),
		sellTrade("u1", "2024-01-15", decimal.NewFromInt(-40)),
		sellTrade("u1", "2024-01-16", decimal.Zero),
	}
	for _, tr := range trades {
		if err := s.Trades().Insert(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	agg, err := s.Trades().Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if agg.ClosedTrades != 3 {
		t.Errorf("closed = %d, want 3", agg.ClosedTrades)
	}
	if agg.ProfitableClosed != 1 {
		t.Errorf("profitable = %d, want 1", agg.ProfitableClosed)
	}
	if !agg.TotalRealizedPL.Equal(decimal.NewFromInt(60)) {
		t.Errorf("realized = %s, want 60", agg.TotalRealizedPL)
	}
	if agg.DistinctActiveDays != 3 {
		t.Errorf("active days = %d, want 3", agg.DistinctActiveDays)
	}

	users, err := s.Trades().UsersWithClosedTrades(ctx)
	if err != nil || len(users) != 1 || users[0] != "u1" {
		t.Errorf("users = %v, %v", users, err)
	}
}

func TestAggregateSumsDecimalsExactly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	dime := decimal.RequireFromString("0.1")
	for i := 0; i < 1000; i++ {
		if err := s.Trades().Insert(ctx, sellTrade("u1", "2024-01-15", dime)); err != nil {
			t.Fatal(err)
		}
	}
	odd := decimal.RequireFromString("0.0003")
	if err := s.Trades().Insert(ctx, sellTrade("u1", "2024-01-15", odd)); err != nil {
		t.Fatal(err)
	}

	agg, err := s.Trades().Aggregate(ctx, "u1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if want := decimal.RequireFromString("100.0003"); !agg.TotalRealizedPL.Equal(want) {
		t.Errorf("realized = %s, want %s", agg.TotalRealizedPL, want)
	}
	if agg.ClosedTrades != 1001 || agg.ProfitableClosed != 1001 {
		t.Errorf("closed = %d profitable = %d, want 1001", agg.ClosedTrades, agg.ProfitableClosed)
	}
}

func TestListEndDateIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	ist := time.FixedZone("IST", 5*3600+1800)
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, ist)
	at := map[string]time.Time{
		"before":   day.Add(-time.Minute),
		"midnight": day,
		// 01:30 IST is still the previous day in UTC.
		"early": day.Add(90 * time.Minute),
		"late":  day.Add(24*time.Hour - time.Second),
		"after": day.Add(24 * time.Hour),
	}
	for id, ts := range at {
		tr := sellTrade("u1", "2024-01-15", decimal.Zero)
		tr.ID = id
		tr.CreatedAt = ts
		if err := s.Trades().Insert(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	trades, err := s.Trades().List(ctx, TradeFilter{UserID: "u1", StartDate: day, EndDate: day.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := map[string]bool{}
	for _, tr := range trades {
		got[tr.ID] = true
	}
	if len(got) != 3 || !got["midnight"] || !got["early"] || !got["late"] {
		t.Errorf("trades in day = %v, want midnight, early and late", got)
	}
}

func TestViewDoesNotWaitForWriter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	locked := make(chan struct{})
	release := make(chan struct{})
	unblock := sync.OnceFunc(func() { close(release) })
	defer unblock()
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- s.Do(ctx, func(ctx context.Context, repos Repositories) error {
			a, err := repos.Accounts.Get(ctx, "u1")
			if err != nil {
				return err
			}
			a.Balance = decimal.NewFromInt(1)
			if err := repos.Accounts.Update(ctx, a); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	viewDone := make(chan error, 1)
	var seen decimal.Decimal
	go func() {
		viewDone <- s.View(ctx, func(ctx context.Context, repos Repositories) error {
			a, err := repos.Accounts.Get(ctx, "u1")
			if err != nil {
				return err
			}
			seen = a.Balance
			_, err = repos.Holdings.List(ctx, "u1")
			return err
		})
	}()

	select {
	case err := <-viewDone:
		if err != nil {
			t.Fatalf("View: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("View blocked behind an open write transaction")
	}
	if !seen.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("View saw balance %s, want the committed 100000", seen)
	}

	unblock()
	if err := <-writerDone; err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreateAccount(t, s, "u1", 100000)

	boom := errors.New("boom")
	err := s.Do(ctx, func(ctx context.Context, repos Repositories) error {
		a, err := repos.Accounts.Get(ctx, "u1")
		if err != nil {
			return err
		}
		a.Balance = decimal.Zero
		if err := repos.Accounts.Update(ctx, a); err != nil {
			return err
		}
		if err := repos.Trades.Insert(ctx, sellTrade("u1", "2024-01-15", decimal.Zero)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do = %v, want boom passed through", err)
	}

	a, _ := s.Accounts().Get(ctx, "u1")
	if !a.Balance.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("balance changed after rollback: %s", a.Balance)
	}
	trades, _ := s.Trades().List(ctx, TradeFilter{UserID: "u1"})
	if len(trades) != 0 {
		t.Errorf("trade persisted after rollback")
	}
}

func TestQuotes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Quotes().GetQuote(ctx, "TCS"); !errors.Is(err, apperrors.ErrSymbolNotFound) {
		t.Errorf("missing quote = %v", err)
	}

	for _, q := range []models.Quote{
		{Symbol: "TCS", Name: "Tata Consultancy", Price: decimal.RequireFromString("3500.50")},
		{Symbol: "INFY", Name: "Infosys", Price: decimal.NewFromInt(1500)},
	} {
		q := q
		if err := s.Quotes().SaveQuote(ctx, &q); err != nil {
			t.Fatal(err)
		}
	}

	// An update without a name keeps the stored one.
	if err := s.Quotes().SaveQuote(ctx, &models.Quote{Symbol: "TCS", Price: decimal.NewFromInt(3600)}); err != nil {
		t.Fatal(err)
	}
	q, err := s.Quotes().GetQuote(ctx, "TCS")
	if err != nil {
		t.Fatal(err)
	}
	if q.Name != "Tata Consultancy" || !q.Price.Equal(decimal.NewFromInt(3600)) {
		t.Errorf("quote = %+v", q)
	}

	got, err := s.Quotes().GetQuotes(ctx, []string{"TCS", "INFY", "WIPRO"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("GetQuotes returned %d quotes, want 2", len(got))
	}
	if _, ok := got["WIPRO"]; ok {
		t.Error("unknown symbol should be absent")
	}
}

// Property: Aggregate over any mix of closed trades matches an in-memory fold.
func TestProperty_AggregateMatchesFold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate equals in-memory fold", prop.ForAll(
		func(pls []int64, days []int) bool {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "agg.db"))
			if err != nil {
				return false
			}
			defer s.Close()
			ctx := context.Background()

			var profitable int64
			total := decimal.Zero
			distinct := map[string]bool{}
			for i, pl := range pls {
				session := fmt.Sprintf("2024-02-%02d", 1+days[i%len(days)])
				distinct[session] = true
				realized := decimal.New(pl, -2)
				if realized.IsPositive() {
					profitable++
				}
				total = total.Add(realized)

				tr := sellTrade("u", session, realized)
				tr.ID = fmt.Sprintf("t-%d", i)
				if err := s.Trades().Insert(ctx, tr); err != nil {
					return false
				}
			}

			agg, err := s.Trades().Aggregate(ctx, "u")
			if err != nil {
				return false
			}
			return agg.ClosedTrades == int64(len(pls)) &&
				agg.ProfitableClosed == profitable &&
				agg.TotalRealizedPL.Equal(total) &&
				agg.DistinctActiveDays == int64(len(distinct))
		},
		gen.SliceOfN(12, gen.Int64Range(-500000, 500000)),
		gen.SliceOfN(4, gen.IntRange(0, 27)),
	))

	properties.TestingRun(t)
}
