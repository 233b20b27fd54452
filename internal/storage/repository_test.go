package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monthly-spend/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "aggregates.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepository_MonthlyLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	key := core.MonthKey{UserID: "u1", Month: 3, Year: 2024}

	_, err := repo.GetMonthly(ctx, key)
	require.ErrorIs(t, err, core.ErrNotFound)

	v, err := repo.AddMonthly(ctx, key, decimal.RequireFromString("100.10"))
	require.NoError(t, err)
	assert.Equal(t, "100.1", v.String())

	v, err = repo.AddMonthly(ctx, key, decimal.RequireFromString("33.3333333333333333"))
	require.NoError(t, err)
	assert.Equal(t, "133.4333333333333333", v.String())

	v, err = repo.AddMonthly(ctx, key, decimal.RequireFromString("-133.4333333333333333"))
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	agg, err := repo.GetMonthly(ctx, key)
	require.NoError(t, err)
	assert.True(t, agg.Value.IsZero(), "zero must be persisted, got %s", agg.Value)
	assert.Equal(t, key, agg.MonthKey)
}

func TestSQLiteRepository_ListMonthly(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, m := range []int{6, 0, 11} {
		_, err := repo.AddMonthly(ctx, core.MonthKey{UserID: "u", Month: m, Year: 2024}, decimal.NewFromInt(int64(m+1)))
		require.NoError(t, err)
	}
	_, err := repo.AddMonthly(ctx, core.MonthKey{UserID: "u", Month: 1, Year: 2025}, decimal.NewFromInt(1))
	require.NoError(t, err)

	list, err := repo.ListMonthly(ctx, "u", 2024)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 0, list[0].Month)
	assert.Equal(t, 6, list[1].Month)
	assert.Equal(t, 11, list[2].Month)
	assert.True(t, list[2].Value.Equal(decimal.NewFromInt(12)))
}

func TestSQLiteRepository_FixedCost(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetFixedCost(ctx, "u1")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.AddFixedCost(ctx, "u1", decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = repo.AddFixedCost(ctx, "u1", decimal.NewFromInt(-50))
	require.NoError(t, err)
	v, err := repo.AddFixedCost(ctx, "u1", decimal.NewFromInt(70))
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(70)))

	fc, err := repo.GetFixedCost(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, fc.Value.Equal(decimal.NewFromInt(70)))

	_, err = repo.AddFixedCost(ctx, "", decimal.NewFromInt(1))
	require.ErrorIs(t, err, core.ErrInvalidEvent)
}

func TestSQLiteRepository_Cards(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.GetCard(ctx, "c1")
	require.ErrorIs(t, err, core.ErrInstrumentNotFound)

	require.NoError(t, repo.PutCard(ctx, core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 15}))
	require.NoError(t, repo.PutCard(ctx, core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 20}))

	card, err := repo.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 20}, card)

	require.ErrorIs(t, repo.PutCard(ctx, core.Card{ID: "c2", UserID: "u1", BillingCutoffDay: 0}), core.ErrInvalidCutoffDay)
}

func TestSQLiteRepository_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	key := core.MonthKey{UserID: "u1", Month: 0, Year: 2025}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.AddMonthly(ctx, key, decimal.RequireFromString("2.5")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	agg, err := repo.GetMonthly(ctx, key)
	require.NoError(t, err)
	assert.True(t, agg.Value.Equal(decimal.NewFromInt(100)), "lost updates: got %s", agg.Value)
}

func TestSQLiteRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aggregates.db")

	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	_, err = repo.AddMonthly(ctx, core.MonthKey{UserID: "u", Month: 2, Year: 2024}, decimal.NewFromInt(120))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	agg, err := repo.GetMonthly(ctx, core.MonthKey{UserID: "u", Month: 2, Year: 2024})
	require.NoError(t, err)
	assert.True(t, agg.Value.Equal(decimal.NewFromInt(120)))
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aggregates.db")

	v, err := RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	v, err = RunMigrations(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}
