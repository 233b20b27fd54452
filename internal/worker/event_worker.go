package worker

import (
	"context"
	"time"

	"monthly-spend/internal/core"
	"monthly-spend/internal/log"
	"monthly-spend/internal/metrics"
	"monthly-spend/internal/services"
)

// Dispatcher applies a change event to the aggregates.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev core.ChangeEvent) (services.Outcome, error)
}

// EventWorker is the single entry point for change events, whichever
// transport delivered them.
type EventWorker struct {
	dispatcher Dispatcher
	metrics    *metrics.Recorder
	logger     *log.Logger
}

func NewEventWorker(dispatcher Dispatcher, recorder *metrics.Recorder, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &EventWorker{
		dispatcher: dispatcher,
		metrics:    recorder,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange dispatches ev and records the outcome. Once started, an
// event runs to completion: cancelling ctx (shutdown, client disconnect,
// request timeout) does not interrupt its writes, which would leave some
// months applied and the rest not.
func (w *EventWorker) HandleChange(ctx context.Context, ev core.ChangeEvent) (services.Outcome, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	w.logger.DebugContext(ctx, "Processing change event",
		log.NewFields().WithEvent(ev.ID, ev.Kind, ev.Op).ToSlice()...)

	out, err := w.dispatcher.Dispatch(ctx, ev)
	op := out.Op
	if op == "" {
		op = ev.Op
	}
	w.metrics.ObserveEvent(ev.Kind, op, time.Since(start), err)
	w.metrics.DeltasApplied("monthly", len(out.Touched))
	if out.FixedCost {
		w.metrics.DeltasApplied("fixed_cost", 1)
	}

	fields := log.NewFields().WithEvent(ev.ID, ev.Kind, op)
	fields[log.FieldTouched] = len(out.Touched)
	fields[log.FieldDuration] = time.Since(start).Milliseconds()

	if err != nil {
		fields["result"] = metrics.Classify(err)
		fields["retryable"] = core.IsRetryable(err)
		w.logger.LogError(ctx, "Change event failed", err, log.OpDispatch, fields)
		return out, err
	}

	w.logger.InfoContext(ctx, "Change event applied", fields.ToSlice()...)
	return out, nil
}
