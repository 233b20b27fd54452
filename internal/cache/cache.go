// Package cache decorates the card store with a bounded, expiring cache.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/core"
)

// CardCache serves GetCard from memory for up to ttl. A zero ttl turns the
// cache off and every lookup reaches the underlying store.
type CardCache struct {
	next  aggregate.CardStore
	cards *expirable.LRU[string, core.Card]
}

var _ aggregate.CardStore = (*CardCache)(nil)

func NewCardCache(next aggregate.CardStore, size int, ttl time.Duration) *CardCache {
	c := &CardCache{next: next}
	if ttl > 0 && size > 0 {
		c.cards = expirable.NewLRU[string, core.Card](size, nil, ttl)
	}
	return c
}

func (c *CardCache) Enabled() bool { return c.cards != nil }

func (c *CardCache) GetCard(ctx context.Context, id string) (core.Card, error) {
	if c.cards != nil {
		if card, ok := c.cards.Get(id); ok {
			return card, nil
		}
	}

	card, err := c.next.GetCard(ctx, id)
	if err != nil {
		// Misses are not cached; a card registered later must be found.
		return core.Card{}, err
	}
	if c.cards != nil {
		c.cards.Add(id, card)
	}
	return card, nil
}

func (c *CardCache) PutCard(ctx context.Context, card core.Card) error {
	if err := c.next.PutCard(ctx, card); err != nil {
		return err
	}
	if c.cards != nil && c.cards.Remove(card.ID) {
		slog.DebugContext(ctx, "Card cache entry invalidated", "card_id", card.ID)
	}
	return nil
}

// Len returns the number of cached cards.
func (c *CardCache) Len() int {
	if c.cards == nil {
		return 0
	}
	return c.cards.Len()
}
