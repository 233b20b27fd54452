// Package metrics exports event processing telemetry to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"monthly-spend/internal/core"
)

const namespace = "spending"

// Result labels.
const (
	ResultOK        = "ok"
	ResultInvalid   = "invalid"
	ResultNotFound  = "instrument_not_found"
	ResultPartial   = "partial"
	ResultStoreDown = "store_unavailable"
	ResultError     = "error"
)

// Recorder captures what the worker did with each event. A nil *Recorder
// records nothing.
type Recorder struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	deltas   *prometheus.CounterVec
	partial  prometheus.Counter
}

// New registers the collectors on reg, or on the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Change events processed by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent applying a change event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_applied_total",
			Help:      "Deltas written to aggregates.",
		}, []string{"aggregate"}),
		partial: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_applications_total",
			Help:      "Purchases whose deltas reached only some of their months.",
		}),
	}

	for _, c := range []prometheus.Collector{r.events, r.duration, r.deltas, r.partial} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register spending metric: %w", err)
		}
	}
	return r, nil
}

// ObserveEvent records one processed event.
func (r *Recorder) ObserveEvent(kind core.EventKind, op core.EventOp, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := Classify(err)
	r.events.WithLabelValues(string(kind), string(op), result).Inc()
	r.duration.WithLabelValues(string(kind)).Observe(duration.Seconds())
	if result == ResultPartial {
		r.partial.Inc()
	}
}

// DeltasApplied counts n writes to the named aggregate ("monthly" or "fixed_cost").
func (r *Recorder) DeltasApplied(aggregate string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.deltas.WithLabelValues(aggregate).Add(float64(n))
}

// Classify maps an error to its result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, core.ErrPartialApplication):
		return ResultPartial
	case errors.Is(err, core.ErrInvalidEvent):
		return ResultInvalid
	case errors.Is(err, core.ErrInstrumentNotFound):
		return ResultNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return ResultStoreDown
	default:
		return ResultError
	}
}
