package services

import (
	"context"
	"fmt"

	"monthly-spend/internal/aggregate"
	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
)

// ExpenseProcessor turns a purchase into signed deltas on the monthly
// aggregates of the months it is billed in.
type ExpenseProcessor struct {
	monthly    aggregate.MonthlyWriter
	schedulers map[core.PaymentMethod]Scheduler
	logger     *log.Logger
}

func NewExpenseProcessor(monthly aggregate.MonthlyWriter, cards aggregate.CardReader, logger *log.Logger) *ExpenseProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &ExpenseProcessor{
		monthly:    monthly,
		schedulers: defaultSchedulers(cards),
		logger:     logger.WithComponent(log.ComponentExpense),
	}
}

// Apply adds sign*value of p to every month p is billed in and returns the
// keys that were written, in billing order. Months are written one at a
// time; a failure after the first write returns *core.PartialApplicationError
// and leaves the earlier months updated.
func (p *ExpenseProcessor) Apply(ctx context.Context, purchase core.Purchase, sign core.Sign) ([]core.MonthKey, error) {
	if !sign.IsValid() {
		return nil, fmt.Errorf("%w: invalid sign %d", core.ErrInvalidEvent, sign)
	}
	if err := purchase.Validate(); err != nil {
		return nil, err
	}

	scheduler, ok := p.schedulers[purchase.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported payment method %q", core.ErrInvalidEvent, purchase.PaymentMethod)
	}
	schedule, err := scheduler.Schedule(ctx, purchase)
	if err != nil {
		return nil, err
	}

	touched := make([]core.MonthKey, 0, schedule.Len())
	for inst := range schedule.All() {
		key := inst.Key(purchase.UserID)
		delta := sign.Of(inst.Value)

		if _, err := p.monthly.AddMonthly(ctx, key, delta); err != nil {
			if len(touched) == 0 {
				return nil, fmt.Errorf("apply %s: %w", key, err)
			}
			perr := &core.PartialApplicationError{Applied: touched, Total: schedule.Len(), Err: err}
			p.logger.WarnContext(ctx, "Purchase partially applied",
				log.NewFields().
					WithMonth(key).
					WithDelta(sign, delta).
					WithError(err).
					ToSlice()...)
			return touched, perr
		}
		touched = append(touched, key)

		p.logger.DebugContext(ctx, "Monthly delta applied",
			log.NewFields().WithMonth(key).WithDelta(sign, delta).ToSlice()...)
	}

	p.logger.InfoContext(ctx, "Purchase applied",
		log.FieldUserID, purchase.UserID,
		log.FieldSign, sign.String(),
		log.FieldValue, purchase.Value.String(),
		log.FieldParts, schedule.Len(),
		log.FieldCardID, purchase.CardID)
	return touched, nil
}
