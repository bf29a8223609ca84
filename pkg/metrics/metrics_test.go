package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRun("postgres", "ok", 2*time.Second)
	m.RecordFacet("schema", "ok", 100*time.Millisecond)
	m.RecordSample("postgres", SampleOK)
	m.RecordValidationWarning("lineage")

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestNew_TwoRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestRecordRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRun("postgres", "ok", time.Second)
	m.RecordRun("postgres", "ok", time.Second)
	m.RecordRun("postgres", "partial", time.Second)
	m.RecordRun("mysql", "error", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("postgres", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("postgres", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("mysql", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RunDuration))
}

func TestRecordFacetAndSample(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFacet("quality", "partial", time.Second)
	m.RecordSample("sqlite", SamplePartial)
	m.RecordSample("sqlite", SamplePartial)
	m.RecordSample("sqlite", SampleRejected)
	m.RecordValidationWarning("quality")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FacetsTotal.WithLabelValues("quality", "partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SampleQueriesTotal.WithLabelValues("sqlite", SamplePartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SampleQueriesTotal.WithLabelValues("sqlite", SampleRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationWarningsTotal.WithLabelValues("quality")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("postgres", "ok", time.Second)
		m.RecordFacet("schema", "ok", time.Second)
		m.RecordSample("postgres", SampleOK)
		m.RecordValidationWarning("context")
	})
}
