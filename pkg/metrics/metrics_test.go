package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Committed("transfer", time.Millisecond)
		m.Reverted("transfer", "insufficient_balance", time.Millisecond)
		m.SetState(1, 2, 3)
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Committed("approve", time.Millisecond)
	m.Committed("approve", time.Millisecond)
	m.Reverted("purchase_tokens", "allowance_too_low", time.Millisecond)
	m.SetState(7, 3, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.calls.WithLabelValues("approve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reverts.WithLabelValues("purchase_tokens", "allowance_too_low")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.height))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.orders))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.openOrders))

	n, err := testutil.GatherAndCount(reg, "swappin_call_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 2, n, "one series per method")
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Committed("transfer", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues("transfer")))
}
