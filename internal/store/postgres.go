package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL. Inside a unit of work,
// account and holding reads take row locks with SELECT ... FOR UPDATE.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance NUMERIC(20,4) NOT NULL,
		initial_balance NUMERIC(20,4) NOT NULL,
		total_trades BIGINT NOT NULL DEFAULT 0,
		closed_trades BIGINT NOT NULL DEFAULT 0,
		profitable_trades BIGINT NOT NULL DEFAULT 0,
		realized_pl NUMERIC(20,4) NOT NULL DEFAULT 0,
		best_trade NUMERIC(20,4) NOT NULL DEFAULT 0,
		worst_trade NUMERIC(20,4) NOT NULL DEFAULT 0,
		peak_value NUMERIC(20,4) NOT NULL DEFAULT 0,
		max_drawdown NUMERIC(10,4) NOT NULL DEFAULT 0,
		level TEXT NOT NULL DEFAULT 'BEGINNER',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		user_id TEXT NOT NULL REFERENCES accounts(user_id),
		symbol TEXT NOT NULL,
		stock_name TEXT NOT NULL DEFAULT '',
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		average_price NUMERIC(20,4) NOT NULL,
		invested NUMERIC(20,4) NOT NULL,
		current_price NUMERIC(20,4) NOT NULL DEFAULT 0,
		current_value NUMERIC(20,4) NOT NULL DEFAULT 0,
		unrealized_pl NUMERIC(20,4) NOT NULL DEFAULT 0,
		unrealized_pl_percent NUMERIC(10,2) NOT NULL DEFAULT 0,
		valued_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES accounts(user_id),
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		price NUMERIC(20,4) NOT NULL,
		total_amount NUMERIC(20,4) NOT NULL,
		limit_price NUMERIC(20,4),
		stop_loss_price NUMERIC(20,4),
		status TEXT NOT NULL,
		realized_pl NUMERIC(20,4),
		reason TEXT NOT NULL DEFAULT '',
		session_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user_created ON trades(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_side_status ON trades(side, status, user_id);

	CREATE TABLE IF NOT EXISTS quotes (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		price NUMERIC(20,4) NOT NULL,
		open NUMERIC(20,4) NOT NULL DEFAULT 0,
		high NUMERIC(20,4) NOT NULL DEFAULT 0,
		low NUMERIC(20,4) NOT NULL DEFAULT 0,
		close NUMERIC(20,4) NOT NULL DEFAULT 0,
		change_amount NUMERIC(20,4) NOT NULL DEFAULT 0,
		change_percent NUMERIC(10,4) NOT NULL DEFAULT 0,
		volume BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`)
	return err
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Accounts returns the account repository.
func (s *PostgresStore) Accounts() AccountRepository { return &pgAccounts{q: s.pool} }

// Holdings returns the holding repository.
func (s *PostgresStore) Holdings() HoldingRepository { return &pgHoldings{q: s.pool} }

// Trades returns the trade repository.
func (s *PostgresStore) Trades() TradeRepository { return &pgTrades{q: s.pool} }

// Quotes returns the quote repository.
func (s *PostgresStore) Quotes() QuoteRepository { return &pgQuotes{q: s.pool} }

// Do runs fn in a read-committed transaction with row locks on reads.
func (s *PostgresStore) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperrors.NewTransactionAbortError("begin", err)
	}
	defer tx.Rollback(ctx)

	repos := Repositories{
		Accounts: &pgAccounts{q: tx, lock: true},
		Holdings: &pgHoldings{q: tx, lock: true},
		Trades:   &pgTrades{q: tx},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.NewTransactionAbortError("commit", err)
	}
	return nil
}

// View runs fn in a read-only transaction without row locks. Repeatable
// read gives every query in fn the same snapshot.
func (s *PostgresStore) View(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return apperrors.NewTransactionAbortError("begin", err)
	}
	defer tx.Rollback(ctx)

	return fn(ctx, Repositories{
		Accounts: &pgAccounts{q: tx},
		Holdings: &pgHoldings{q: tx},
		Trades:   &pgTrades{q: tx},
	})
}

func forUpdate(lock bool) string {
	if lock {
		return " FOR UPDATE"
	}
	return ""
}

// Accounts

type pgAccounts struct {
	q    pgQuerier
	lock bool
}

func (r *pgAccounts) Create(ctx context.Context, a *models.Account) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, a.UserID, a.Balance, a.InitialBalance, a.TotalTrades, a.ClosedTrades, a.ProfitableTrades,
		a.RealizedPL, a.BestTrade, a.WorstTrade, a.PeakValue, a.MaxDrawdown, string(a.Level), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *pgAccounts) Get(ctx context.Context, userID string) (*models.Account, error) {
	row := r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`+forUpdate(r.lock), userID)

	var a models.Account
	var level string
	err := row.Scan(&a.UserID, &a.Balance, &a.InitialBalance, &a.TotalTrades, &a.ClosedTrades, &a.ProfitableTrades,
		&a.RealizedPL, &a.BestTrade, &a.WorstTrade, &a.PeakValue, &a.MaxDrawdown, &level, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Level = models.ParseLevel(level)
	return &a, nil
}

func (r *pgAccounts) Update(ctx context.Context, a *models.Account) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET balance = $1, total_trades = $2, closed_trades = $3, profitable_trades = $4,
			realized_pl = $5, best_trade = $6, worst_trade = $7, peak_value = $8, max_drawdown = $9, updated_at = $10
		WHERE user_id = $11
	`, a.Balance, a.TotalTrades, a.ClosedTrades, a.ProfitableTrades,
		a.RealizedPL, a.BestTrade, a.WorstTrade, a.PeakValue, a.MaxDrawdown, a.UpdatedAt, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

func (r *pgAccounts) UpdateLevel(ctx context.Context, userID string, level models.Level) error {
	tag, err := r.q.Exec(ctx, `UPDATE accounts SET level = $1, updated_at = $2 WHERE user_id = $3`,
		string(level), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

func (r *pgAccounts) Reset(ctx context.Context, userID string, balance decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET balance = $1, initial_balance = $1, total_trades = 0, closed_trades = 0,
			profitable_trades = 0, realized_pl = 0, best_trade = 0, worst_trade = 0,
			peak_value = $1, max_drawdown = 0, updated_at = $2
		WHERE user_id = $3
	`, balance, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to reset account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}

func (r *pgAccounts) ListUserIDs(ctx context.Context) ([]string, error) {
	return pgStrings(ctx, r.q, `SELECT user_id FROM accounts ORDER BY user_id`)
}

// Holdings

type pgHoldings struct {
	q    pgQuerier
	lock bool
}

func scanPgHolding(row pgx.Row) (*models.Holding, error) {
	var h models.Holding
	var valuedAt *time.Time
	if err := row.Scan(&h.UserID, &h.Symbol, &h.StockName, &h.Quantity, &h.AveragePrice, &h.Invested,
		&h.CurrentPrice, &h.CurrentValue, &h.UnrealizedPL, &h.UnrealizedPLPercent, &valuedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if valuedAt != nil {
		h.ValuedAt = *valuedAt
	}
	return &h, nil
}

func (r *pgHoldings) Get(ctx context.Context, userID, symbol string) (*models.Holding, error) {
	row := r.q.QueryRow(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 AND symbol = $2`+forUpdate(r.lock), userID, symbol)
	h, err := scanPgHolding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return h, nil
}

func (r *pgHoldings) List(ctx context.Context, userID string) ([]models.Holding, error) {
	rows, err := r.q.Query(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		h, err := scanPgHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (r *pgHoldings) Upsert(ctx context.Context, h *models.Holding) error {
	h.UpdatedAt = time.Now().UTC()
	_, err := r.q.Exec(ctx, `
		INSERT INTO holdings (user_id, symbol, stock_name, quantity, average_price, invested, current_price, current_value, unrealized_pl, unrealized_pl_percent, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (user_id, symbol) DO UPDATE SET
			stock_name = EXCLUDED.stock_name,
			quantity = EXCLUDED.quantity,
			average_price = EXCLUDED.average_price,
			invested = EXCLUDED.invested,
			current_price = EXCLUDED.current_price,
			current_value = EXCLUDED.current_value,
			unrealized_pl = EXCLUDED.unrealized_pl,
			unrealized_pl_percent = EXCLUDED.unrealized_pl_percent,
			updated_at = EXCLUDED.updated_at
	`, h.UserID, h.Symbol, h.StockName, h.Quantity, h.AveragePrice, h.Invested,
		h.CurrentPrice, h.CurrentValue, h.UnrealizedPL, h.UnrealizedPLPercent, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

func (r *pgHoldings) Delete(ctx context.Context, userID, symbol string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, userID, symbol); err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

func (r *pgHoldings) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete holdings: %w", err)
	}
	return nil
}

func (r *pgHoldings) SaveValuation(ctx context.Context, h *models.Holding) error {
	_, err := r.q.Exec(ctx, `
		UPDATE holdings SET current_price = $1, current_value = $2, unrealized_pl = $3, unrealized_pl_percent = $4, valued_at = $5
		WHERE user_id = $6 AND symbol = $7 AND quantity = $8
	`, h.CurrentPrice, h.CurrentValue, h.UnrealizedPL, h.UnrealizedPLPercent, h.ValuedAt, h.UserID, h.Symbol, h.Quantity)
	if err != nil {
		return fmt.Errorf("failed to save valuation: %w", err)
	}
	return nil
}

// Trades

type pgTrades struct {
	q pgQuerier
}

func (r *pgTrades) Insert(ctx context.Context, t *models.Trade) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, t.ID, t.UserID, t.Symbol, string(t.Side), string(t.Kind), t.Quantity, t.Price, t.Total,
		t.LimitPrice, t.StopLossPrice, string(t.Status), t.RealizedPL, t.Reason, t.SessionDate, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (r *pgTrades) List(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := `SELECT id::text, user_id, symbol, side, order_type, quantity, price, total_amount,
		limit_price, stop_loss_price, status, realized_pl, reason, to_char(session_date, 'YYYY-MM-DD'), created_at
		FROM trades WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		query += " AND user_id = " + arg(filter.UserID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = " + arg(filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = " + arg(string(filter.Side))
	}
	if filter.Status != "" {
		query += " AND status = " + arg(string(filter.Status))
	}
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= " + arg(filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at < " + arg(filter.EndDate)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side, kind, status string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &side, &kind, &t.Quantity, &t.Price, &t.Total,
			&t.LimitPrice, &t.StopLossPrice, &status, &t.RealizedPL, &t.Reason, &t.SessionDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.OrderSide(side)
		t.Kind = models.OrderKind(kind)
		t.Status = models.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *pgTrades) Aggregate(ctx context.Context, userID string) (*models.TradeAggregate, error) {
	var agg models.TradeAggregate
	err := r.q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE side = 'SELL'),
			COUNT(*) FILTER (WHERE side = 'SELL' AND realized_pl > 0),
			COALESCE(SUM(realized_pl) FILTER (WHERE side = 'SELL'), 0),
			COUNT(DISTINCT session_date)
		FROM trades
		WHERE user_id = $1 AND status = 'EXECUTED'
	`, userID).Scan(&agg.ClosedTrades, &agg.ProfitableClosed, &agg.TotalRealizedPL, &agg.DistinctActiveDays)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}
	return &agg, nil
}

func (r *pgTrades) UsersWithClosedTrades(ctx context.Context) ([]string, error) {
	return pgStrings(ctx, r.q, `
		SELECT DISTINCT user_id FROM trades
		WHERE side = 'SELL' AND status = 'EXECUTED'
		ORDER BY user_id
	`)
}

// Quotes

type pgQuotes struct {
	q pgQuerier
}

func scanPgQuote(row pgx.Row) (*models.Quote, error) {
	var q models.Quote
	if err := row.Scan(&q.Symbol, &q.Name, &q.Price, &q.Open, &q.High, &q.Low, &q.Close,
		&q.Change, &q.ChangePercent, &q.Volume, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *pgQuotes) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	q, err := scanPgQuote(r.q.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE symbol = $1`, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewSymbolNotFoundError(symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return q, nil
}

func (r *pgQuotes) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	result := make(map[string]models.Quote, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	rows, err := r.q.Query(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE symbol = ANY($1)`, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanPgQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		result[q.Symbol] = *q
	}
	return result, rows.Err()
}

func (r *pgQuotes) SaveQuote(ctx context.Context, q *models.Quote) error {
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (symbol) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name = '' THEN quotes.name ELSE EXCLUDED.name END,
			price = EXCLUDED.price,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			change_amount = EXCLUDED.change_amount,
			change_percent = EXCLUDED.change_percent,
			volume = EXCLUDED.volume,
			updated_at = EXCLUDED.updated_at
	`, q.Symbol, q.Name, q.Price, q.Open, q.High, q.Low, q.Close, q.Change, q.ChangePercent, q.Volume, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

func pgStrings(ctx context.Context, q pgQuerier, query string, args ...any) ([]string, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
