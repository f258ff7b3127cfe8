package migration

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics collects per-run migration metrics on a private registry so they
// can be pushed to a Pushgateway when the short-lived runner exits.
type Metrics struct {
	registry *prometheus.Registry

	// Units counts unit outcomes by unit name and outcome.
	Units *prometheus.CounterVec
	// RunSeconds observes the wall time of whole orchestrator runs.
	RunSeconds prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aai_migration_units_total",
				Help: "Migration units processed by outcome",
			},
			[]string{"unit", "status"},
		),
		RunSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aai_migration_run_seconds",
				Help:    "Duration of migration runs",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
	m.registry.MustRegister(m.Units, m.RunSeconds)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeUnit(r Result) {
	m.Units.WithLabelValues(r.Name, string(r.Outcome)).Inc()
}

func (m *Metrics) observeRun(d time.Duration) {
	m.RunSeconds.Observe(d.Seconds())
}

// Push sends the collected metrics to a Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
