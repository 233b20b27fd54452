package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"monthly-spend/internal/core"
)

type mockCardStore struct {
	mock.Mock
}

func (m *mockCardStore) GetCard(ctx context.Context, id string) (core.Card, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(core.Card), args.Error(1)
}

func (m *mockCardStore) PutCard(ctx context.Context, card core.Card) error {
	args := m.Called(ctx, card)
	return args.Error(0)
}

func TestCardCache_HitsStoreOnce(t *testing.T) {
	ctx := context.Background()
	card := core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 15}

	store := new(mockCardStore)
	store.On("GetCard", ctx, "c1").Return(card, nil).Once()

	c := NewCardCache(store, 8, time.Minute)
	require.True(t, c.Enabled())

	for range 3 {
		got, err := c.GetCard(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, card, got)
	}
	assert.Equal(t, 1, c.Len())
	store.AssertExpectations(t)
}

func TestCardCache_ZeroTTLDisables(t *testing.T) {
	ctx := context.Background()
	card := core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 15}

	store := new(mockCardStore)
	store.On("GetCard", ctx, "c1").Return(card, nil).Times(2)

	c := NewCardCache(store, 8, 0)
	assert.False(t, c.Enabled())

	_, err := c.GetCard(ctx, "c1")
	require.NoError(t, err)
	_, err = c.GetCard(ctx, "c1")
	require.NoError(t, err)

	assert.Zero(t, c.Len())
	store.AssertExpectations(t)
}

func TestCardCache_MissIsNotCached(t *testing.T) {
	ctx := context.Background()

	store := new(mockCardStore)
	store.On("GetCard", ctx, "c1").Return(core.Card{}, core.ErrInstrumentNotFound).Times(2)

	c := NewCardCache(store, 8, time.Minute)
	for range 2 {
		_, err := c.GetCard(ctx, "c1")
		assert.ErrorIs(t, err, core.ErrInstrumentNotFound)
	}
	store.AssertExpectations(t)
}

func TestCardCache_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	old := core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 15}
	updated := core.Card{ID: "c1", UserID: "u1", BillingCutoffDay: 5}

	store := new(mockCardStore)
	store.On("GetCard", ctx, "c1").Return(old, nil).Once()
	store.On("PutCard", ctx, updated).Return(nil).Once()
	store.On("GetCard", ctx, "c1").Return(updated, nil).Once()

	c := NewCardCache(store, 8, time.Minute)

	got, err := c.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 15, got.BillingCutoffDay)

	require.NoError(t, c.PutCard(ctx, updated))
	assert.Zero(t, c.Len())

	got, err = c.GetCard(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, got.BillingCutoffDay)
	store.AssertExpectations(t)
}
