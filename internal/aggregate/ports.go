// Package aggregate declares the persistence ports used by the aggregation
// engine.
package aggregate

import (
	"context"

	"github.com/shopspring/decimal"

	"monthly-spend/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthlyWriter applies deltas to monthly aggregates. AddMonthly must
	// read, add and persist in one transaction scoped to key, creating the
	// record at zero when it does not exist yet. It returns the new value.
	MonthlyWriter interface {
		AddMonthly(ctx context.Context, key core.MonthKey, delta decimal.Decimal) (decimal.Decimal, error)
	}

	// FixedCostWriter applies deltas to a user's fixed cost with the same
	// single-key transaction guarantee as MonthlyWriter.
	FixedCostWriter interface {
		AddFixedCost(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	}

	// AggregateReader serves the aggregates to query layers. Missing
	// records are reported with core.ErrNotFound.
	AggregateReader interface {
		GetMonthly(ctx context.Context, key core.MonthKey) (core.MonthlyAggregate, error)
		ListMonthly(ctx context.Context, userID string, year int) ([]core.MonthlyAggregate, error)
		GetFixedCost(ctx context.Context, userID string) (core.FixedCostAggregate, error)
	}

	// CardReader resolves payment instruments. Unknown ids are reported
	// with core.ErrInstrumentNotFound.
	CardReader interface {
		GetCard(ctx context.Context, id string) (core.Card, error)
	}

	CardWriter interface {
		PutCard(ctx context.Context, card core.Card) error
	}

	CardStore interface {
		CardReader
		CardWriter
	}

	// Store is everything a backend provides.
	Store interface {
		MonthlyWriter
		FixedCostWriter
		AggregateReader
		CardStore
		Close() error
	}
)
