package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Events.WithLabelValues(EventText).Inc()
	m.ExpensesRegistered.Add(2)
	m.ExtractionFailures.WithLabelValues("no_amount").Inc()
	m.DispatchDuration.Observe(0.2)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Events.WithLabelValues(EventText)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ExpensesRegistered))
}

func TestDiscard_DoesNotPanicOnReuse(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Panics.Inc()
		Discard().Panics.Inc()
	})
}
