package postgres

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueryMetrics is a QueryObserver backed by a Prometheus histogram.
type QueryMetrics struct {
	duration *prometheus.HistogramVec
}

// NewQueryMetrics registers the query duration histogram on reg.
func NewQueryMetrics(reg prometheus.Registerer) *QueryMetrics {
	m := &QueryMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ventwatch_db_query_duration_seconds",
			Help:    "Database query latency by HTTP method, route and outcome.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "outcome"}),
	}
	reg.MustRegister(m.duration)
	return m
}

// ObserveQuery implements QueryObserver.
func (m *QueryMetrics) ObserveQuery(_ context.Context, method, route, outcome string, dur time.Duration) {
	m.duration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
}
