package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// materialization engine and the provider API.
type Metrics struct {
	MaterializationRuns     *prometheus.CounterVec // labels: outcome={success,failure}
	MaterializationDuration prometheus.Histogram
	RowsWritten             *prometheus.CounterVec // labels: kind={trips,events,snapshots}
	MaterializationRunning  prometheus.Gauge

	// API serving metrics.
	StatusCache    *prometheus.CounterVec // labels: result={hit,miss}
	DroppedRecords *prometheus.CounterVec // labels: kind={trip,event,telemetry,location}
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MaterializationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_mds",
			Name:      "materialization_runs_total",
			Help:      "Materialization runs by outcome.",
		}, []string{"outcome"}),
		MaterializationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_mds",
			Name:      "materialization_duration_seconds",
			Help:      "Duration of a complete hour materialization run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_mds",
			Name:      "rows_written_total",
			Help:      "Materialized rows written by kind.",
		}, []string{"kind"}),
		MaterializationRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fleet_mds",
			Name:      "materialization_running",
			Help:      "Number of materialization runs currently in flight.",
		}),
		StatusCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_mds",
			Name:      "status_cache_total",
			Help:      "Live vehicle-status cache lookups by result.",
		}, []string{"result"}),
		DroppedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_mds",
			Name:      "dropped_records_total",
			Help:      "Per-record anomalies dropped at transformation by kind.",
		}, []string{"kind"}),
	}

	prometheus.MustRegister(
		m.MaterializationRuns,
		m.MaterializationDuration,
		m.RowsWritten,
		m.MaterializationRunning,
		m.StatusCache,
		m.DroppedRecords,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MaterializationRuns:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fleet_mds", Name: "materialization_runs_total"}, []string{"outcome"}),
		MaterializationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "fleet_mds", Name: "materialization_duration_seconds"}),
		RowsWritten:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fleet_mds", Name: "rows_written_total"}, []string{"kind"}),
		MaterializationRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "fleet_mds", Name: "materialization_running"}),
		StatusCache:             prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fleet_mds", Name: "status_cache_total"}, []string{"result"}),
		DroppedRecords:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fleet_mds", Name: "dropped_records_total"}, []string{"kind"}),
	}
}
