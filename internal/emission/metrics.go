package emission

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the emission subsystem.
type Metrics struct {
	ActionsTotal    *prometheus.CounterVec
	ImportRowsTotal *prometheus.CounterVec
	ScoredTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns emission metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ventwatch_lifecycle_actions_total",
			Help: "Lifecycle actions applied to events by action and outcome.",
		}, []string{"action", "outcome"}),
		ImportRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ventwatch_import_rows_total",
			Help: "Bulk import rows by result.",
		}, []string{"result"}),
		ScoredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ventwatch_detections_scored_total",
			Help: "Imported detections by triage bucket at import time.",
		}, []string{"bucket"}),
	}

	reg.MustRegister(
		m.ActionsTotal,
		m.ImportRowsTotal,
		m.ScoredTotal,
	)

	return m
}

// Hooks returns service Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnAction: func(action, outcome string) {
			m.ActionsTotal.WithLabelValues(action, outcome).Inc()
		},
		OnImportRow: func(result string) {
			m.ImportRowsTotal.WithLabelValues(result).Inc()
		},
		OnScored: func(bucket Bucket) {
			m.ScoredTotal.WithLabelValues(string(bucket)).Inc()
		},
	}
}

// SummaryFunc computes a fresh fleet summary.
type SummaryFunc func(ctx context.Context) (Summary, error)

// FleetCollector exposes fleet totals as gauges. The summary is recomputed on every
// scrape since breach state depends on the scrape instant.
type FleetCollector struct {
	summarize SummaryFunc
	timeout   time.Duration

	total         *prometheus.Desc
	high          *prometheus.Desc
	breached      *prometheus.Desc
	investigating *prometheus.Desc
	nextBreach    *prometheus.Desc
	up            *prometheus.Desc
}

// NewFleetCollector returns a collector backed by fn.
func NewFleetCollector(fn SummaryFunc) *FleetCollector {
	return &FleetCollector{
		summarize:     fn,
		timeout:       5 * time.Second,
		total:         prometheus.NewDesc("ventwatch_fleet_events", "Events currently tracked.", nil, nil),
		high:          prometheus.NewDesc("ventwatch_fleet_high_events", "Events in the HIGH triage bucket.", nil, nil),
		breached:      prometheus.NewDesc("ventwatch_fleet_breached_events", "Events with an investigate or report SLA breach.", nil, nil),
		investigating: prometheus.NewDesc("ventwatch_fleet_investigating_events", "Events under investigation.", nil, nil),
		nextBreach:    prometheus.NewDesc("ventwatch_fleet_next_breach_remaining_hours", "Remaining hours of the most urgent open deadline.", []string{"event_id"}, nil),
		up:            prometheus.NewDesc("ventwatch_fleet_summary_up", "Whether the last fleet summary succeeded.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.high
	ch <- c.breached
	ch <- c.investigating
	ch <- c.nextBreach
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	s, err := c.summarize(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.high, prometheus.GaugeValue, float64(s.HighCount))
	ch <- prometheus.MustNewConstMetric(c.breached, prometheus.GaugeValue, float64(s.BreachedCount))
	ch <- prometheus.MustNewConstMetric(c.investigating, prometheus.GaugeValue, float64(s.InvestigatingCount))
	if s.NextBreach != nil {
		ch <- prometheus.MustNewConstMetric(c.nextBreach, prometheus.GaugeValue, s.NextBreach.RemainingHours, s.NextBreach.EventID)
	}
}
