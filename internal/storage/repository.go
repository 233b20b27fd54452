package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"

	_ "modernc.org/sqlite"
)

// Writers take the database lock when the transaction begins so that the
// read in a read-modify-write cannot be overtaken by another process.
const sqliteParams = "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

type SQLiteRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

type monthlyRow struct {
	UserID    string          `db:"user_id"`
	Year      int             `db:"year"`
	Month     int             `db:"month"`
	Value     decimal.Decimal `db:"value"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r monthlyRow) toCore() core.MonthlyAggregate {
	return core.MonthlyAggregate{
		MonthKey:  core.MonthKey{UserID: r.UserID, Month: r.Month, Year: r.Year},
		Value:     r.Value,
		UpdatedAt: r.UpdatedAt,
	}
}

type fixedCostRow struct {
	UserID    string          `db:"user_id"`
	Value     decimal.Decimal `db:"value"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers inside this process; the immediate
	// transaction lock covers other processes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

// AddMonthly implements aggregate.MonthlyWriter
func (r *SQLiteRepository) AddMonthly(ctx context.Context, key core.MonthKey, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := key.Validate(); err != nil {
		return decimal.Zero, err
	}

	var next decimal.Decimal
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var current decimal.Decimal
		err := tx.GetContext(ctx, &current,
			`SELECT value FROM monthly_aggregates WHERE user_id = ? AND year = ? AND month = ?`,
			key.UserID, key.Year, key.Month)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read monthly aggregate: %w", err)
		}

		next = current.Add(delta)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO monthly_aggregates (user_id, year, month, value, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, year, month) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key.UserID, key.Year, key.Month, next.String(), r.now())
		if err != nil {
			return fmt.Errorf("write monthly aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("add monthly %s: %w: %w", key, core.ErrStoreUnavailable, err)
	}

	slog.DebugContext(ctx, "Monthly aggregate updated",
		"user_id", key.UserID,
		"year", key.Year,
		"month", key.Month,
		"delta", delta.String(),
		"value", next.String())

	return next, nil
}

// AddFixedCost implements aggregate.FixedCostWriter
func (r *SQLiteRepository) AddFixedCost(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, core.ErrEmptyUser
	}

	var next decimal.Decimal
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var current decimal.Decimal
		err := tx.GetContext(ctx, &current, `SELECT value FROM fixed_costs WHERE user_id = ?`, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read fixed cost: %w", err)
		}

		next = current.Add(delta)
		_, err = tx.ExecContext(ctx,
			`INSERT INTO fixed_costs (user_id, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			userID, next.String(), r.now())
		if err != nil {
			return fmt.Errorf("write fixed cost: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("add fixed cost %s: %w: %w", userID, core.ErrStoreUnavailable, err)
	}

	slog.DebugContext(ctx, "Fixed cost updated",
		"user_id", userID,
		"delta", delta.String(),
		"value", next.String())

	return next, nil
}

// GetMonthly implements aggregate.AggregateReader
func (r *SQLiteRepository) GetMonthly(ctx context.Context, key core.MonthKey) (core.MonthlyAggregate, error) {
	var row monthlyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT user_id, year, month, value, updated_at FROM monthly_aggregates
		 WHERE user_id = ? AND year = ? AND month = ?`,
		key.UserID, key.Year, key.Month)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyAggregate{}, fmt.Errorf("monthly aggregate %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("get monthly aggregate: %w: %w", core.ErrStoreUnavailable, err)
	}
	return row.toCore(), nil
}

// ListMonthly implements aggregate.AggregateReader
func (r *SQLiteRepository) ListMonthly(ctx context.Context, userID string, year int) ([]core.MonthlyAggregate, error) {
	var rows []monthlyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, year, month, value, updated_at FROM monthly_aggregates
		 WHERE user_id = ? AND year = ? ORDER BY month`,
		userID, year)
	if err != nil {
		return nil, fmt.Errorf("list monthly aggregates: %w: %w", core.ErrStoreUnavailable, err)
	}

	out := make([]core.MonthlyAggregate, len(rows))
	for i, row := range rows {
		out[i] = row.toCore()
	}
	return out, nil
}

// GetFixedCost implements aggregate.AggregateReader
func (r *SQLiteRepository) GetFixedCost(ctx context.Context, userID string) (core.FixedCostAggregate, error) {
	var row fixedCostRow
	err := r.db.GetContext(ctx, &row, `SELECT user_id, value, updated_at FROM fixed_costs WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.FixedCostAggregate{}, fmt.Errorf("fixed cost for %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.FixedCostAggregate{}, fmt.Errorf("get fixed cost: %w: %w", core.ErrStoreUnavailable, err)
	}
	return core.FixedCostAggregate{UserID: row.UserID, Value: row.Value, UpdatedAt: row.UpdatedAt}, nil
}

// GetCard implements aggregate.CardReader
func (r *SQLiteRepository) GetCard(ctx context.Context, id string) (core.Card, error) {
	var card core.Card
	err := r.db.GetContext(ctx, &card, `SELECT id, user_id, billing_cutoff_day FROM cards WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Card{}, fmt.Errorf("card %s: %w", id, core.ErrInstrumentNotFound)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card: %w: %w", core.ErrStoreUnavailable, err)
	}
	return card, nil
}

// PutCard implements aggregate.CardWriter
func (r *SQLiteRepository) PutCard(ctx context.Context, card core.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cards (id, user_id, billing_cutoff_day, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id,
		     billing_cutoff_day = excluded.billing_cutoff_day, updated_at = excluded.updated_at`,
		card.ID, card.UserID, card.BillingCutoffDay, r.now())
	if err != nil {
		return fmt.Errorf("put card: %w: %w", core.ErrStoreUnavailable, err)
	}

	slog.InfoContext(ctx, "Card saved to SQLite",
		"card_id", card.ID,
		"user_id", card.UserID,
		"billing_cutoff_day", card.BillingCutoffDay)

	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.WarnContext(ctx, "Rollback failed", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
