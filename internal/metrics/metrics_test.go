package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monthly-spend/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{fmt.Errorf("x: %w", core.ErrInvalidEvent), ResultInvalid},
		{fmt.Errorf("x: %w", core.ErrInstrumentNotFound), ResultNotFound},
		{fmt.Errorf("x: %w", core.ErrStoreUnavailable), ResultStoreDown},
		{&core.PartialApplicationError{Total: 3, Err: core.ErrStoreUnavailable}, ResultPartial},
		{errors.New("boom"), ResultError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.ObserveEvent(core.KindPurchase, core.OpCreated, time.Millisecond, nil)
	r.ObserveEvent(core.KindPurchase, core.OpCreated, time.Millisecond, nil)
	r.ObserveEvent(core.KindPurchase, core.OpUpdated, time.Millisecond, &core.PartialApplicationError{Total: 2})
	r.DeltasApplied("monthly", 3)
	r.DeltasApplied("fixed_cost", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.events.WithLabelValues("purchase", "created", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("purchase", "updated", ResultPartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.partial))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.deltas.WithLabelValues("monthly")))

	_, err = New(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.ObserveEvent(core.KindSubscription, core.OpDeleted, time.Second, nil)
	r.DeltasApplied("monthly", 1)
}
