package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the reconciliation pipeline.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Records accepted and skipped per source family
	RecordsIngested *prometheus.CounterVec
	RecordsSkipped  *prometheus.CounterVec

	// Raw names that resolved to nothing, by kind
	UnresolvedNames *prometheus.CounterVec

	// Wall time per pipeline stage
	StageDuration *prometheus.HistogramVec

	// Rows per severity in the latest run
	Anomalies *prometheus.GaugeVec

	// Boundary coverage ratio in the latest run, by level
	GeoCoverage *prometheus.GaugeVec
}

// New creates a Metrics instance registered on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "region_insights_records_ingested_total",
			Help: "Raw records merged into canonical rows by source family",
		}, []string{"family"}),

		RecordsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "region_insights_records_skipped_total",
			Help: "Malformed raw records skipped by source family",
		}, []string{"family"}),

		UnresolvedNames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "region_insights_unresolved_names_total",
			Help: "Raw records whose state or district could not be resolved",
		}, []string{"kind"}), // kind: "state", "district"

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "region_insights_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		Anomalies: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "region_insights_anomalies",
			Help: "Rows per severity in the latest run",
		}, []string{"severity"}),

		GeoCoverage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "region_insights_geo_coverage_ratio",
			Help: "Share of rows matched to a boundary in the latest run",
		}, []string{"level"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveStage records how long a pipeline stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// AddIngested counts merged records for a family
func (m *Metrics) AddIngested(family string, n int) {
	if m != nil && n > 0 {
		m.RecordsIngested.WithLabelValues(family).Add(float64(n))
	}
}

// AddSkipped counts malformed records for a family
func (m *Metrics) AddSkipped(family string, n int) {
	if m != nil && n > 0 {
		m.RecordsSkipped.WithLabelValues(family).Add(float64(n))
	}
}

// AddUnresolved counts records with an unresolved name of the given kind
func (m *Metrics) AddUnresolved(kind string, n int) {
	if m != nil && n > 0 {
		m.UnresolvedNames.WithLabelValues(kind).Add(float64(n))
	}
}

// SetAnomalies replaces the per-severity gauge values
func (m *Metrics) SetAnomalies(bySeverity map[string]int) {
	if m == nil {
		return
	}
	m.Anomalies.Reset()
	for sev, n := range bySeverity {
		m.Anomalies.WithLabelValues(sev).Set(float64(n))
	}
}

// SetCoverage records the coverage ratio for a level
func (m *Metrics) SetCoverage(level string, ratio float64) {
	if m != nil {
		m.GeoCoverage.WithLabelValues(level).Set(ratio)
	}
}
