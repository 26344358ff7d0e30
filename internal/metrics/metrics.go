package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRollback = "rollback"
	ResultInvalid  = "invalid"
)

// Metrics groups the service collectors.
type Metrics struct {
	Operations   *prometheus.CounterVec
	StoreLatency *prometheus.HistogramVec
	RosterPeople *prometheus.GaugeVec
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkin",
			Name:      "operations_total",
			Help:      "Check-in operations by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkin",
			Name:      "store_request_duration_seconds",
			Help:      "Latency of record store calls.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		RosterPeople: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "checkin",
			Name:      "roster_people",
			Help:      "People held in memory by kind and state.",
		}, []string{"kind", "state"}),
	}
	reg.MustRegister(m.Operations, m.StoreLatency, m.RosterPeople)
	return m
}

// Noop returns collectors registered nowhere, for tests and tools.
func Noop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Observe records one operation outcome.
func (m *Metrics) Observe(kind, op, result string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(kind, op, result).Inc()
}

// Since records store latency measured from start.
func (m *Metrics) Since(op string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetRoster publishes the current bucket sizes of kind.
func (m *Metrics) SetRoster(kind string, pending, checkedIn int) {
	if m == nil {
		return
	}
	m.RosterPeople.WithLabelValues(kind, "pending").Set(float64(pending))
	m.RosterPeople.WithLabelValues(kind, "checked_in").Set(float64(checkedIn))
}
