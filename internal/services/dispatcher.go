package services

import (
	"context"
	"errors"
	"fmt"

	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
)

// Outcome describes what a dispatched event changed.
type Outcome struct {
	Kind    core.EventKind  `json:"kind"`
	Op      core.EventOp    `json:"op"`
	Touched []core.MonthKey `json:"touched"`
	// FixedCost is set when the user's fixed cost was written.
	FixedCost bool `json:"fixedCost"`
}

// Dispatcher routes change events to the processors. Updates are a reversal
// of the previous record followed by the application of the current one,
// never the other way around and never concurrently.
type Dispatcher struct {
	expenses      *ExpenseProcessor
	subscriptions *SubscriptionProcessor
	logger        *log.Logger
}

func NewDispatcher(expenses *ExpenseProcessor, subscriptions *SubscriptionProcessor, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		expenses:      expenses,
		subscriptions: subscriptions,
		logger:        logger.WithComponent(log.ComponentDispatcher),
	}
}

// Dispatch decodes ev and applies it. The operation is taken from the
// records carried by the envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, ev core.ChangeEvent) (Outcome, error) {
	op, err := ev.ResolveOp()
	if err != nil {
		return Outcome{Kind: ev.Kind}, err
	}
	out := Outcome{Kind: ev.Kind, Op: op}

	switch ev.Kind {
	case core.KindPurchase:
		prev, cur, err := ev.Purchases()
		if err != nil {
			return out, err
		}
		switch op {
		case core.OpCreated:
			out.Touched, err = d.PurchaseCreated(ctx, *cur)
		case core.OpDeleted:
			out.Touched, err = d.PurchaseDeleted(ctx, *prev)
		case core.OpUpdated:
			out.Touched, err = d.PurchaseUpdated(ctx, *prev, *cur)
		}
		return out, err

	case core.KindSubscription:
		prev, cur, err := ev.Subscriptions()
		if err != nil {
			return out, err
		}
		switch op {
		case core.OpCreated:
			out.FixedCost, err = d.SubscriptionCreated(ctx, *cur)
		case core.OpDeleted:
			out.FixedCost, err = d.SubscriptionDeleted(ctx, *prev)
		case core.OpUpdated:
			out.FixedCost, err = d.SubscriptionUpdated(ctx, *prev, *cur)
		}
		return out, err

	default:
		return out, fmt.Errorf("%w: unknown event kind %q", core.ErrInvalidEvent, ev.Kind)
	}
}

func (d *Dispatcher) PurchaseCreated(ctx context.Context, cur core.Purchase) ([]core.MonthKey, error) {
	return d.expenses.Apply(ctx, cur, core.Apply)
}

func (d *Dispatcher) PurchaseDeleted(ctx context.Context, prev core.Purchase) ([]core.MonthKey, error) {
	return d.expenses.Apply(ctx, prev, core.Reverse)
}

// PurchaseUpdated reverses prev and then applies cur. When the reversal
// fails cur is not applied. When the reapplication fails after a complete
// reversal the error is a *core.PartialApplicationError covering both steps.
// cur is validated before anything is written.
func (d *Dispatcher) PurchaseUpdated(ctx context.Context, prev, cur core.Purchase) ([]core.MonthKey, error) {
	if err := cur.Validate(); err != nil {
		return nil, err
	}
	reversed, err := d.expenses.Apply(ctx, prev, core.Reverse)
	if err != nil {
		return reversed, fmt.Errorf("reverse previous purchase: %w", err)
	}

	applied, err := d.expenses.Apply(ctx, cur, core.Apply)
	touched := append(reversed, applied...)
	if err != nil {
		total := len(reversed) + cur.Parts()
		var perr *core.PartialApplicationError
		if errors.As(err, &perr) {
			err = perr.Err
		}
		d.logger.WarnContext(ctx, "Purchase update left aggregates reversed",
			log.FieldUserID, cur.UserID, log.FieldTouched, len(touched), log.FieldError, err)
		return touched, &core.PartialApplicationError{Applied: touched, Total: total, Err: err}
	}
	return touched, nil
}

func (d *Dispatcher) SubscriptionCreated(ctx context.Context, cur core.Subscription) (bool, error) {
	return d.subscriptions.Apply(ctx, cur, core.Apply)
}

func (d *Dispatcher) SubscriptionDeleted(ctx context.Context, prev core.Subscription) (bool, error) {
	return d.subscriptions.Apply(ctx, prev, core.Reverse)
}

// SubscriptionUpdated reverses prev and then applies cur. A failed
// reapplication after a written reversal is a *core.PartialApplicationError.
func (d *Dispatcher) SubscriptionUpdated(ctx context.Context, prev, cur core.Subscription) (bool, error) {
	if err := cur.Validate(); err != nil {
		return false, err
	}
	reversed, err := d.subscriptions.Apply(ctx, prev, core.Reverse)
	if err != nil {
		return false, fmt.Errorf("reverse previous subscription: %w", err)
	}
	applied, err := d.subscriptions.Apply(ctx, cur, core.Apply)
	if err != nil {
		if !reversed {
			return false, fmt.Errorf("apply current subscription: %w", err)
		}
		d.logger.WarnContext(ctx, "Subscription update left fixed cost reversed",
			log.FieldUserID, cur.UserID, log.FieldError, err)
		return true, &core.PartialApplicationError{FixedCost: true, Total: 2, Err: err}
	}
	return reversed || applied, nil
}
