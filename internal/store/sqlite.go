package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore implements Store using SQLite.
//
// Transactions are opened with BEGIN IMMEDIATE so that the write lock is
// taken before the first read of a unit of work; two units of work touching
// the same account can never interleave. View uses a second, query-only pool
// whose transactions are deferred, so snapshots read from WAL without taking
// the write lock.
type SQLiteStore struct {
	db     *sql.DB
	reader *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Opened after the schema exists so the reader never creates the file.
	reader, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_txlock=deferred&_query_only=true")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read pool: %w", err)
	}
	reader.SetMaxOpenConns(10)
	reader.SetMaxIdleConns(5)
	reader.SetConnMaxLifetime(time.Hour)
	store.reader = reader

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		balance TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		total_trades INTEGER NOT NULL DEFAULT 0,
		closed_trades INTEGER NOT NULL DEFAULT 0,
		profitable_trades INTEGER NOT NULL DEFAULT 0,
		realized_pl TEXT NOT NULL DEFAULT '0',
		best_trade TEXT NOT NULL DEFAULT '0',
		worst_trade TEXT NOT NULL DEFAULT '0',
		peak_value TEXT NOT NULL DEFAULT '0',
		max_drawdown TEXT NOT NULL DEFAULT '0',
		level TEXT NOT NULL DEFAULT 'BEGINNER',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		stock_name TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		average_price TEXT NOT NULL,
		invested TEXT NOT NULL,
		current_price TEXT NOT NULL DEFAULT '0',
		current_value TEXT NOT NULL DEFAULT '0',
		unrealized_pl TEXT NOT NULL DEFAULT '0',
		unrealized_pl_percent TEXT NOT NULL DEFAULT '0',
		valued_at DATETIME,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, symbol)
	);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		limit_price TEXT,
		stop_loss_price TEXT,
		status TEXT NOT NULL,
		realized_pl TEXT,
		reason TEXT NOT NULL DEFAULT '',
		session_date TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_user_created ON trades(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_side_status ON trades(side, status, user_id);

	CREATE TRIGGER IF NOT EXISTS trades_no_update BEFORE UPDATE ON trades
	BEGIN
		SELECT RAISE(ABORT, 'trades are append-only');
	END;

	CREATE TABLE IF NOT EXISTS quotes (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		open TEXT NOT NULL DEFAULT '0',
		high TEXT NOT NULL DEFAULT '0',
		low TEXT NOT NULL DEFAULT '0',
		close TEXT NOT NULL DEFAULT '0',
		change_amount TEXT NOT NULL DEFAULT '0',
		change_percent TEXT NOT NULL DEFAULT '0',
		volume INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes both database pools.
func (s *SQLiteStore) Close() error {
	rerr := s.reader.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return rerr
}

// Accounts returns the account repository.
func (s *SQLiteStore) Accounts() AccountRepository { return &sqliteAccounts{q: s.db} }

// Holdings returns the holding repository.
func (s *SQLiteStore) Holdings() HoldingRepository { return &sqliteHoldings{q: s.db} }

// Trades returns the trade repository.
func (s *SQLiteStore) Trades() TradeRepository { return &sqliteTrades{q: s.db} }

// Quotes returns the quote repository.
func (s *SQLiteStore) Quotes() QuoteRepository { return &sqliteQuotes{q: s.db} }

// Do runs fn in a single immediate transaction.
func (s *SQLiteStore) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewTransactionAbortError("begin", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	repos := Repositories{
		Accounts: &sqliteAccounts{q: tx},
		Holdings: &sqliteHoldings{q: tx},
		Trades:   &sqliteTrades{q: tx},
	}
	if err := fn(ctx, repos); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewTransactionAbortError("commit", err)
	}
	committed = true
	return nil
}

// View runs fn in a deferred read transaction on the query-only pool. Both
// reads inside fn see the same committed state, and writers are not blocked.
func (s *SQLiteStore) View(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.reader.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewTransactionAbortError("begin", err)
	}
	defer tx.Rollback()

	return fn(ctx, Repositories{
		Accounts: &sqliteAccounts{q: tx},
		Holdings: &sqliteHoldings{q: tx},
		Trades:   &sqliteTrades{q: tx},
	})
}

// Accounts

type sqliteAccounts struct {
	q querier
}

const accountColumns = `user_id, balance, initial_balance, total_trades, closed_trades, profitable_trades,
	realized_pl, best_trade, worst_trade, peak_value, max_drawdown, level, created_at, updated_at`

func (r *sqliteAccounts) Create(ctx context.Context, a *models.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.UserID, a.Balance, a.InitialBalance, a.TotalTrades, a.ClosedTrades, a.ProfitableTrades,
		a.RealizedPL, a.BestTrade, a.WorstTrade, a.PeakValue, a.MaxDrawdown, string(a.Level), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *sqliteAccounts) Get(ctx context.Context, userID string) (*models.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`, userID)

	var a models.Account
	var level string
	err := row.Scan(&a.UserID, &a.Balance, &a.InitialBalance, &a.TotalTrades, &a.ClosedTrades, &a.ProfitableTrades,
		&a.RealizedPL, &a.BestTrade, &a.WorstTrade, &a.PeakValue, &a.MaxDrawdown, &level, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	a.Level = models.ParseLevel(level)
	return &a, nil
}

func (r *sqliteAccounts) Update(ctx context.Context, a *models.Account) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET balance = ?, total_trades = ?, closed_trades = ?, profitable_trades = ?,
			realized_pl = ?, best_trade = ?, worst_trade = ?, peak_value = ?, max_drawdown = ?, updated_at = ?
		WHERE user_id = ?
	`, a.Balance, a.TotalTrades, a.ClosedTrades, a.ProfitableTrades,
		a.RealizedPL, a.BestTrade, a.WorstTrade, a.PeakValue, a.MaxDrawdown, a.UpdatedAt, a.UserID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOneRow(res, apperrors.ErrAccountNotFound)
}

func (r *sqliteAccounts) UpdateLevel(ctx context.Context, userID string, level models.Level) error {
	res, err := r.q.ExecContext(ctx, `UPDATE accounts SET level = ?, updated_at = ? WHERE user_id = ?`,
		string(level), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update level: %w", err)
	}
	return expectOneRow(res, apperrors.ErrAccountNotFound)
}

func (r *sqliteAccounts) Reset(ctx context.Context, userID string, balance decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET balance = ?, initial_balance = ?, total_trades = 0, closed_trades = 0,
			profitable_trades = 0, realized_pl = '0', best_trade = '0', worst_trade = '0',
			peak_value = ?, max_drawdown = '0', updated_at = ?
		WHERE user_id = ?
	`, balance, balance, balance, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to reset account: %w", err)
	}
	return expectOneRow(res, apperrors.ErrAccountNotFound)
}

func (r *sqliteAccounts) ListUserIDs(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.q, `SELECT user_id FROM accounts ORDER BY user_id`)
}

// Holdings

type sqliteHoldings struct {
	q querier
}

const holdingColumns = `user_id, symbol, stock_name, quantity, average_price, invested,
	current_price, current_value, unrealized_pl, unrealized_pl_percent, valued_at, updated_at`

func scanHolding(scan func(dest ...interface{}) error) (*models.Holding, error) {
	var h models.Holding
	var valuedAt sql.NullTime
	if err := scan(&h.UserID, &h.Symbol, &h.StockName, &h.Quantity, &h.AveragePrice, &h.Invested,
		&h.CurrentPrice, &h.CurrentValue, &h.UnrealizedPL, &h.UnrealizedPLPercent, &valuedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	if valuedAt.Valid {
		h.ValuedAt = valuedAt.Time
	}
	return &h, nil
}

func (r *sqliteHoldings) Get(ctx context.Context, userID, symbol string) (*models.Holding, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol)
	h, err := scanHolding(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return h, nil
}

func (r *sqliteHoldings) List(ctx context.Context, userID string) ([]models.Holding, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE user_id = ? ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		h, err := scanHolding(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (r *sqliteHoldings) Upsert(ctx context.Context, h *models.Holding) error {
	h.UpdatedAt = time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO holdings (user_id, symbol, stock_name, quantity, average_price, invested, current_price, current_value, unrealized_pl, unrealized_pl_percent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, symbol) DO UPDATE SET
			stock_name = excluded.stock_name,
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			invested = excluded.invested,
			current_price = excluded.current_price,
			current_value = excluded.current_value,
			unrealized_pl = excluded.unrealized_pl,
			unrealized_pl_percent = excluded.unrealized_pl_percent,
			updated_at = excluded.updated_at
	`, h.UserID, h.Symbol, h.StockName, h.Quantity, h.AveragePrice, h.Invested,
		h.CurrentPrice, h.CurrentValue, h.UnrealizedPL, h.UnrealizedPLPercent, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}

func (r *sqliteHoldings) Delete(ctx context.Context, userID, symbol string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ? AND symbol = ?`, userID, symbol); err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	return nil
}

func (r *sqliteHoldings) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete holdings: %w", err)
	}
	return nil
}

func (r *sqliteHoldings) SaveValuation(ctx context.Context, h *models.Holding) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE holdings SET current_price = ?, current_value = ?, unrealized_pl = ?, unrealized_pl_percent = ?, valued_at = ?
		WHERE user_id = ? AND symbol = ? AND quantity = ?
	`, h.CurrentPrice, h.CurrentValue, h.UnrealizedPL, h.UnrealizedPLPercent, h.ValuedAt, h.UserID, h.Symbol, h.Quantity)
	if err != nil {
		return fmt.Errorf("failed to save valuation: %w", err)
	}
	return nil
}

// Trades

type sqliteTrades struct {
	q querier
}

const tradeColumns = `id, user_id, symbol, side, order_type, quantity, price, total_amount,
	limit_price, stop_loss_price, status, realized_pl, reason, session_date, created_at`

func (r *sqliteTrades) Insert(ctx context.Context, t *models.Trade) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Symbol, string(t.Side), string(t.Kind), t.Quantity, t.Price, t.Total,
		nullDecimal(t.LimitPrice), nullDecimal(t.StopLossPrice), string(t.Status), nullDecimal(t.RealizedPL),
		t.Reason, t.SessionDate, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

func (r *sqliteTrades) List(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT " + tradeColumns + " FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Side != "" {
		query += " AND side = ?"
		args = append(args, string(filter.Side))
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	// created_at is compared as text, so bounds are bound in UTC like the
	// stored values.
	if !filter.StartDate.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND created_at < ?"
		args = append(args, filter.EndDate.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var side, kind, status string
		var limitPrice, stopLoss, realized decimal.NullDecimal
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &side, &kind, &t.Quantity, &t.Price, &t.Total,
			&limitPrice, &stopLoss, &status, &realized, &t.Reason, &t.SessionDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = models.OrderSide(side)
		t.Kind = models.OrderKind(kind)
		t.Status = models.TradeStatus(status)
		t.LimitPrice = decimalPtr(limitPrice)
		t.StopLossPrice = decimalPtr(stopLoss)
		t.RealizedPL = decimalPtr(realized)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Aggregate reads activity metrics (distinct session dates over every
// trade) in SQL and closed-position metrics by walking the user's SELLs.
func (r *sqliteTrades) Aggregate(ctx context.Context, userID string) (*models.TradeAggregate, error) {
	var agg models.TradeAggregate
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT session_date)
		FROM trades
		WHERE user_id = ? AND status = 'EXECUTED'
	`, userID).Scan(&agg.DistinctActiveDays)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}

	// realized_pl is stored as decimal TEXT; SQLite arithmetic would go
	// through float64, so the SELL values are summed here instead.
	rows, err := r.q.QueryContext(ctx, `
		SELECT realized_pl FROM trades
		WHERE user_id = ? AND status = 'EXECUTED' AND side = 'SELL'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pl decimal.NullDecimal
		if err := rows.Scan(&pl); err != nil {
			return nil, fmt.Errorf("failed to scan realized P&L: %w", err)
		}
		agg.ClosedTrades++
		if pl.Valid {
			if pl.Decimal.IsPositive() {
				agg.ProfitableClosed++
			}
			agg.TotalRealizedPL = agg.TotalRealizedPL.Add(pl.Decimal)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate trades: %w", err)
	}
	return &agg, nil
}

func (r *sqliteTrades) UsersWithClosedTrades(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.q, `
		SELECT DISTINCT user_id FROM trades
		WHERE side = 'SELL' AND status = 'EXECUTED'
		ORDER BY user_id
	`)
}

// Quotes

type sqliteQuotes struct {
	q querier
}

const quoteColumns = `symbol, name, price, open, high, low, close, change_amount, change_percent, volume, updated_at`

func scanQuote(scan func(dest ...interface{}) error) (*models.Quote, error) {
	var q models.Quote
	if err := scan(&q.Symbol, &q.Name, &q.Price, &q.Open, &q.High, &q.Low, &q.Close,
		&q.Change, &q.ChangePercent, &q.Volume, &q.UpdatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *sqliteQuotes) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE symbol = ?`, symbol)
	q, err := scanQuote(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewSymbolNotFoundError(symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return q, nil
}

func (r *sqliteQuotes) GetQuotes(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	result := make(map[string]models.Quote, len(symbols))
	if len(symbols) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}

	rows, err := r.q.QueryContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE symbol IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuote(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		result[q.Symbol] = *q
	}
	return result, rows.Err()
}

func (r *sqliteQuotes) SaveQuote(ctx context.Context, q *models.Quote) error {
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = CASE WHEN excluded.name = '' THEN quotes.name ELSE excluded.name END,
			price = excluded.price,
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			change_amount = excluded.change_amount,
			change_percent = excluded.change_percent,
			volume = excluded.volume,
			updated_at = excluded.updated_at
	`, q.Symbol, q.Name, q.Price, q.Open, q.High, q.Low, q.Close, q.Change, q.ChangePercent, q.Volume, q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save quote: %w", err)
	}
	return nil
}

// helpers

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func queryStrings(ctx context.Context, q querier, query string, args ...interface{}) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
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

func nullDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}
