package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Observe("student", "checkin", ResultOK)
	m.Observe("student", "checkin", ResultOK)
	m.Observe("staff", "checkout", ResultRollback)
	m.Since("update", time.Now().Add(-20*time.Millisecond))
	m.SetRoster("student", 3, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("student", "checkin", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("staff", "checkout", ResultRollback)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RosterPeople.WithLabelValues("student", "checked_in")))

	n, err := testutil.GatherAndCount(reg, "checkin_store_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observe("student", "checkin", ResultOK)
		m.Since("fetch", time.Now())
		m.SetRoster("staff", 0, 0)
	})
}
