package services

import (
	"context"
	"fmt"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
)

// SubscriptionProcessor keeps a user's fixed cost in step with their
// monthly subscriptions. Other recurrences do not count.
type SubscriptionProcessor struct {
	fixed  aggregate.FixedCostWriter
	logger *log.Logger
}

func NewSubscriptionProcessor(fixed aggregate.FixedCostWriter, logger *log.Logger) *SubscriptionProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &SubscriptionProcessor{
		fixed:  fixed,
		logger: logger.WithComponent(log.ComponentSubscription),
	}
}

// Apply adds sign*value of s to the fixed cost. It reports false without
// touching the store when s is not a monthly subscription.
func (p *SubscriptionProcessor) Apply(ctx context.Context, s core.Subscription, sign core.Sign) (bool, error) {
	if !sign.IsValid() {
		return false, fmt.Errorf("%w: invalid sign %d", core.ErrInvalidEvent, sign)
	}
	if err := s.Validate(); err != nil {
		return false, err
	}
	if !s.AffectsFixedCost() {
		p.logger.DebugContext(ctx, "Subscription ignored", log.FieldUserID, s.UserID, "type", string(s.Type))
		return false, nil
	}

	delta := sign.Of(s.Value)
	total, err := p.fixed.AddFixedCost(ctx, s.UserID, delta)
	if err != nil {
		return false, fmt.Errorf("apply fixed cost for %s: %w", s.UserID, err)
	}

	p.logger.InfoContext(ctx, "Fixed cost updated",
		log.FieldUserID, s.UserID,
		log.FieldSign, sign.String(),
		log.FieldDelta, delta.String(),
		log.FieldValue, total.String())
	return true, nil
}
