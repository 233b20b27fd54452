// Package postgres stores aggregates in PostgreSQL. Values are NUMERIC and
// every delta is a single upsert, so concurrent writers to the same key are
// serialized by the row lock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"
)

type Repo struct{ db *pgxpool.Pool }

// Event writes are never cancelled by the caller, so the server bounds each
// statement instead. A statement_timeout in the DSN takes precedence.
const defaultStatementTimeout = "10s"

func parseConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["statement_timeout"]; !ok {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = defaultStatementTimeout
	}
	return cfg, nil
}

// New connects to dsn and applies migrations.
func New(ctx context.Context, dsn string) (*Repo, error) {
	cfg, err := parseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewRepo(pool), nil
}

func NewRepo(db *pgxpool.Pool) *Repo { return &Repo{db: db} }

func (r *Repo) Close() error {
	r.db.Close()
	return nil
}

func (r *Repo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repo) AddMonthly(ctx context.Context, key core.MonthKey, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := key.Validate(); err != nil {
		return decimal.Zero, err
	}
	const q = `
INSERT INTO monthly_aggregates (user_id, year, month, value, updated_at)
VALUES ($1, $2, $3, $4::numeric, NOW())
ON CONFLICT (user_id, year, month)
DO UPDATE SET value = monthly_aggregates.value + EXCLUDED.value,
              updated_at = NOW()
RETURNING value::text`
	var raw string
	if err := r.db.QueryRow(ctx, q, key.UserID, key.Year, key.Month, delta.String()).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("add monthly %s: %w: %w", key, core.ErrStoreUnavailable, err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse monthly value %q: %w", raw, err)
	}
	slog.DebugContext(ctx, "Monthly aggregate updated", "user_id", key.UserID, "year", key.Year, "month", key.Month, "value", raw)
	return v, nil
}

func (r *Repo) AddFixedCost(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	if userID == "" {
		return decimal.Zero, core.ErrEmptyUser
	}
	const q = `
INSERT INTO fixed_costs (user_id, value, updated_at)
VALUES ($1, $2::numeric, NOW())
ON CONFLICT (user_id)
DO UPDATE SET value = fixed_costs.value + EXCLUDED.value,
              updated_at = NOW()
RETURNING value::text`
	var raw string
	if err := r.db.QueryRow(ctx, q, userID, delta.String()).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("add fixed cost %s: %w: %w", userID, core.ErrStoreUnavailable, err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse fixed cost value %q: %w", raw, err)
	}
	return v, nil
}

func (r *Repo) GetMonthly(ctx context.Context, key core.MonthKey) (core.MonthlyAggregate, error) {
	const q = `SELECT user_id, year, month, value::text, updated_at
	           FROM monthly_aggregates
	           WHERE user_id=$1 AND year=$2 AND month=$3`
	agg, err := scanMonthly(r.db.QueryRow(ctx, q, key.UserID, key.Year, key.Month))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.MonthlyAggregate{}, fmt.Errorf("monthly aggregate %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("get monthly aggregate: %w: %w", core.ErrStoreUnavailable, err)
	}
	return agg, nil
}

func (r *Repo) ListMonthly(ctx context.Context, userID string, year int) ([]core.MonthlyAggregate, error) {
	const q = `SELECT user_id, year, month, value::text, updated_at
	           FROM monthly_aggregates
	           WHERE user_id=$1 AND year=$2
	           ORDER BY month`
	rows, err := r.db.Query(ctx, q, userID, year)
	if err != nil {
		return nil, fmt.Errorf("list monthly aggregates: %w: %w", core.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []core.MonthlyAggregate
	for rows.Next() {
		agg, err := scanMonthly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monthly aggregate: %w", err)
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list monthly aggregates: %w: %w", core.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (r *Repo) GetFixedCost(ctx context.Context, userID string) (core.FixedCostAggregate, error) {
	const q = `SELECT user_id, value::text, updated_at FROM fixed_costs WHERE user_id=$1`
	var (
		fc  core.FixedCostAggregate
		raw string
	)
	err := r.db.QueryRow(ctx, q, userID).Scan(&fc.UserID, &raw, &fc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.FixedCostAggregate{}, fmt.Errorf("fixed cost for %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.FixedCostAggregate{}, fmt.Errorf("get fixed cost: %w: %w", core.ErrStoreUnavailable, err)
	}
	if fc.Value, err = decimal.NewFromString(raw); err != nil {
		return core.FixedCostAggregate{}, fmt.Errorf("parse fixed cost value %q: %w", raw, err)
	}
	return fc, nil
}

func (r *Repo) GetCard(ctx context.Context, id string) (core.Card, error) {
	const q = `SELECT id, user_id, billing_cutoff_day FROM cards WHERE id=$1`
	var c core.Card
	err := r.db.QueryRow(ctx, q, id).Scan(&c.ID, &c.UserID, &c.BillingCutoffDay)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Card{}, fmt.Errorf("card %s: %w", id, core.ErrInstrumentNotFound)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card: %w: %w", core.ErrStoreUnavailable, err)
	}
	return c, nil
}

func (r *Repo) PutCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	const q = `
INSERT INTO cards (id, user_id, billing_cutoff_day, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (id)
DO UPDATE SET user_id = EXCLUDED.user_id,
              billing_cutoff_day = EXCLUDED.billing_cutoff_day,
              updated_at = NOW()`
	if _, err := r.db.Exec(ctx, q, c.ID, c.UserID, c.BillingCutoffDay); err != nil {
		return fmt.Errorf("put card: %w: %w", core.ErrStoreUnavailable, err)
	}
	return nil
}

func scanMonthly(row pgx.Row) (core.MonthlyAggregate, error) {
	var (
		agg core.MonthlyAggregate
		raw string
	)
	if err := row.Scan(&agg.UserID, &agg.Year, &agg.Month, &raw, &agg.UpdatedAt); err != nil {
		return core.MonthlyAggregate{}, err
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("parse monthly value %q: %w", raw, err)
	}
	agg.Value = v
	return agg, nil
}
