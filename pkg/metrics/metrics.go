// Package metrics provides Prometheus metrics for extraction runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sampling query outcomes.
const (
	SampleOK       = "ok"
	SamplePartial  = "partial"
	SampleError    = "error"
	SampleRejected = "rejected"
)

// Metrics holds all Prometheus metrics for sourcesense. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Facet metrics
	FacetsTotal   *prometheus.CounterVec
	FacetDuration *prometheus.HistogramVec

	// Source query metrics
	SampleQueriesTotal *prometheus.CounterVec

	// Assembly metrics
	ValidationWarningsTotal *prometheus.CounterVec
}

// New creates all metrics and registers them on reg. Tests pass a fresh
// prometheus.NewRegistry(); the server uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcesense_extraction_runs_total",
			Help: "Total number of extraction runs by source kind and final status",
		},
		[]string{"kind", "status"},
	)

	m.RunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcesense_extraction_run_duration_seconds",
			Help:    "Duration of extraction runs in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)

	m.FacetsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcesense_facets_total",
			Help: "Total number of facet executions by facet and state",
		},
		[]string{"facet", "state"},
	)

	m.FacetDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sourcesense_facet_duration_seconds",
			Help:    "Duration of facet executions in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"facet"},
	)

	m.SampleQueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcesense_sample_queries_total",
			Help: "Total number of profiling sample queries by source kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.ValidationWarningsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sourcesense_validation_warnings_total",
			Help: "Entries dropped during assembly because their entity is not in the schema tree",
		},
		[]string{"facet"},
	)

	return m
}

// RecordRun records a finished extraction run. Fatal runs use status "error".
func (m *Metrics) RecordRun(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(kind, status).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordFacet records the final state of one facet.
func (m *Metrics) RecordFacet(facet, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.FacetsTotal.WithLabelValues(facet, state).Inc()
	m.FacetDuration.WithLabelValues(facet).Observe(d.Seconds())
}

// RecordSample records one profiling sample query.
func (m *Metrics) RecordSample(kind, outcome string) {
	if m == nil {
		return
	}
	m.SampleQueriesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordValidationWarning counts one dropped entry.
func (m *Metrics) RecordValidationWarning(facet string) {
	if m == nil {
		return
	}
	m.ValidationWarningsTotal.WithLabelValues(facet).Inc()
}
