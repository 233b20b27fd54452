// Package services applies purchase and subscription changes to the
// running aggregates.
//
// This file holds the per payment method strategies that decide which
// months a purchase is billed in.
package services

import (
	"context"
	"fmt"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/billing"
	"monthly-spend/internal/core"
)

// Scheduler returns the billing schedule of a purchase.
type Scheduler interface {
	Schedule(ctx context.Context, p core.Purchase) (billing.Installments, error)
}

// ImmediateScheduler bills the whole amount in the purchase month. Used for
// cash and debit.
type ImmediateScheduler struct{}

func (ImmediateScheduler) Schedule(_ context.Context, p core.Purchase) (billing.Installments, error) {
	return billing.Split(p.Value, 1, billing.PeriodOf(p.Date)), nil
}

// CardScheduler reads the card's cutoff day at apply time and spreads the
// amount over the purchase's parts starting at the first open cycle.
type CardScheduler struct {
	Cards aggregate.CardReader
}

func (s CardScheduler) Schedule(ctx context.Context, p core.Purchase) (billing.Installments, error) {
	card, err := s.Cards.GetCard(ctx, p.CardID)
	if err != nil {
		return billing.Installments{}, fmt.Errorf("resolve card %s: %w", p.CardID, err)
	}
	start := billing.ResolveFirstCycle(p.Date, card.BillingCutoffDay)
	return billing.Split(p.Value, p.Parts(), start), nil
}

func defaultSchedulers(cards aggregate.CardReader) map[core.PaymentMethod]Scheduler {
	return map[core.PaymentMethod]Scheduler{
		core.Cash:   ImmediateScheduler{},
		core.Debit:  ImmediateScheduler{},
		core.Credit: CardScheduler{Cards: cards},
	}
}
