package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stock"

const (
	OpReserve = "reserve"
	OpRelease = "release"
)

type Metrics struct {
	operations *prometheus.CounterVec
	units      *prometheus.CounterVec
	lockWait   *prometheus.HistogramVec
	shortfall  prometheus.Counter
}

// New registers the engine collectors on reg. A nil reg skips registration,
// which keeps tests free of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Reserve and release calls by result.",
		}, []string{"operation", "result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Units reserved or released by committed calls.",
		}, []string{"operation"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the per-item section.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		shortfall: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_shortfall_units_total",
			Help:      "Units requested for release that were not reserved.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.units, m.lockWait, m.shortfall)
	}
	return m
}

func (m *Metrics) Operation(op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Units(op string, n int) {
	m.units.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) LockWait(op string, d time.Duration) {
	m.lockWait.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) Shortfall(n int) {
	m.shortfall.Add(float64(n))
}

func (m *Metrics) OperationCount(op, result string) prometheus.Counter {
	return m.operations.WithLabelValues(op, result)
}

func (m *Metrics) UnitCount(op string) prometheus.Counter {
	return m.units.WithLabelValues(op)
}

func (m *Metrics) ShortfallCount() prometheus.Counter {
	return m.shortfall
}
