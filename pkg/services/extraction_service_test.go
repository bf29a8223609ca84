package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func shopDescriptor() models.ConnectionDescriptor {
	return models.ConnectionDescriptor{
		Kind:        models.SourceKindPostgres,
		Host:        "db.internal",
		Port:        5432,
		Database:    "shop",
		Credentials: models.Credentials{Username: "reader", Password: "s3cret"},
	}
}

func newTestService(t *testing.T, adapter *fakeAdapter, opts ExtractionOptions) (ExtractionService, *fakeFactory, *metrics.Metrics) {
	t.Helper()
	factory := &fakeFactory{adapter: adapter}
	m := metrics.New(prometheus.NewRegistry())
	return NewExtractionService(factory, opts, m, zaptest.NewLogger(t)), factory, m
}

func TestRunExtraction_OrdersScenario(t *testing.T) {
	adapter := newShopAdapter()
	svc, _, m := newTestService(t, adapter, ExtractionOptions{RunTimeout: 10 * time.Second})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.StateOK, result.Status)
	for _, f := range models.Facets {
		assert.Equal(t, models.StateOK, result.Facets[f].State, f)
	}

	orders := result.Schema.FindTable("shop", "public", "orders")
	require.NotNil(t, orders)
	assert.Len(t, orders.Columns, 4)
	assert.Len(t, orders.PrimaryKey, 1)
	require.Len(t, orders.ForeignKeys, 1)
	assert.False(t, orders.ForeignKeys[0].Unresolved)

	require.Len(t, result.Lineage, 1)
	assert.Equal(t, "shop.public.orders.customer_id", result.Lineage[0].Source)
	assert.Equal(t, "shop.public.customers.id", result.Lineage[0].Target)
	assert.Equal(t, models.RelationForeignKey, result.Lineage[0].Kind)
	assert.Equal(t, 1.0, result.Lineage[0].Confidence)

	roles := annotationsByID(result.Context)
	assert.Equal(t, models.RoleIdentifier, roles["shop.public.orders.id"].InferredRole)
	assert.Equal(t, models.RoleTimestamp, roles["shop.public.orders.created_at"].InferredRole)
	assert.Equal(t, models.RoleMeasure, roles["shop.public.orders.amount"].InferredRole)

	assert.Len(t, result.Quality, 6)
	assert.Equal(t, models.RedactedText, result.Source.Credentials.Password)
	assert.Equal(t, PipelineVersion, result.PipelineVersion)
	assert.Equal(t, models.SamplingInfo{Mode: models.SamplingHead, SampleSize: 100}, result.Sampling)
	assert.True(t, adapter.closeCalled)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("postgres", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FacetsTotal.WithLabelValues("schema", "ok")))
}

func TestRunExtraction_UnsupportedKindBeforeConnecting(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	svc := NewExtractionService(datasource.NewAdapterFactory(nil, zaptest.NewLogger(t)), ExtractionOptions{}, m, zaptest.NewLogger(t))

	result, err := svc.RunExtraction(context.Background(), models.ConnectionDescriptor{
		Kind:     models.SourceKindMongo,
		Host:     "unreachable.invalid",
		Database: "catalog",
	}, models.ProfilingConfig{})

	assert.Nil(t, result)
	var unsupported *apperrors.UnsupportedSourceKind
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "mongo", unsupported.Kind)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedSourceKind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("mongo", "error")))
}

func TestRunExtraction_AuthFailureIsFatalAndNotRetried(t *testing.T) {
	adapter := newShopAdapter()
	adapter.testErr = apperrors.NewConnectionError("postgres", apperrors.ConnectionAuth, errors.New("password authentication failed"))
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())

	assert.Nil(t, result)
	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, apperrors.ConnectionAuth, connErr.Reason)
	assert.Equal(t, 1, adapter.callCount("test"))
	assert.Equal(t, 0, adapter.callCount("databases"), "no introspection after a failed connection")
	assert.True(t, adapter.closeCalled)
}

func TestRunExtraction_TransientConnectionRetriedOnce(t *testing.T) {
	adapter := newShopAdapter()
	adapter.testErr = apperrors.NewConnectionError("postgres", apperrors.ConnectionNetwork, errors.New("connection refused"))
	adapter.testFailTimes = 1
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)
	assert.Equal(t, models.StateOK, result.Status)
	assert.Equal(t, 2, adapter.callCount("test"))
}

func TestRunExtraction_ProfilingTimeoutGivesPartial(t *testing.T) {
	adapter := newShopAdapter()
	adapter.sampleErr["orders.amount"] = &apperrors.PartialDataError{Table: "public.orders", Err: context.DeadlineExceeded}
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	assert.NotContains(t, result.Quality, "shop.public.orders.amount")
	assert.Equal(t, models.StatePartial, result.Facets[models.FacetQuality].State)
	assert.Equal(t, models.StateOK, result.Facets[models.FacetSchema].State)
	assert.Equal(t, models.StatePartial, result.Status)
	require.Len(t, result.QualityIssues, 1)
	assert.Equal(t, models.IssueTimeout, result.QualityIssues[0].Kind)
}

func TestRunExtraction_IntrospectionFailsAtTables(t *testing.T) {
	adapter := newShopAdapter()
	adapter.levelErrs["tables"] = errors.New("permission denied for schema public")
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	assert.Equal(t, models.StatePartial, result.Facets[models.FacetSchema].State)
	assert.Contains(t, result.Facets[models.FacetSchema].Reason, "permission denied")
	assert.Equal(t, models.StatePartial, result.Status)
	require.NotNil(t, result.Schema)
	assert.Equal(t, models.DepthSchemas, result.Schema.Depth)
	assert.Len(t, result.Schema.Databases, 1)
	assert.Equal(t, 1, adapter.callCount("tables"), "permanent errors are not retried")
}

func TestRunExtraction_TransientSchemaErrorRetried(t *testing.T) {
	adapter := newShopAdapter()
	adapter.levelErrs["columns"] = errors.New("read: connection reset by peer")
	adapter.failTimes["columns"] = 1
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	schema := result.Facets[models.FacetSchema]
	assert.Equal(t, models.StateOK, schema.State)
	assert.Equal(t, 2, schema.Attempts)
	assert.Equal(t, models.StateOK, result.Status)
}

func TestRunExtraction_NoSchemaFailsRun(t *testing.T) {
	adapter := newShopAdapter()
	adapter.levelErrs["databases"] = errors.New("permission denied for database shop")
	svc, _, m := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err, "a missing schema is reported in the result, not as an error")

	assert.Equal(t, models.StateFailed, result.Status)
	assert.Nil(t, result.Schema)
	for _, f := range models.Facets {
		assert.Equal(t, models.StateFailed, result.Facets[f].State, f)
	}
	assert.Equal(t, 0, adapter.callCount("sample"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("postgres", "failed")))
}

func TestRunExtraction_AllSamplesTransientRetriesQuality(t *testing.T) {
	adapter := newShopAdapter()
	adapter.sample = func(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error) {
		return nil, errors.New("write: broken pipe")
	}
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	quality := result.Facets[models.FacetQuality]
	assert.Equal(t, models.StateFailed, quality.State)
	assert.Equal(t, 2, quality.Attempts)
	assert.Equal(t, 12, adapter.callCount("sample"))

	ctxStatus := result.Facets[models.FacetContext]
	assert.Equal(t, models.StatePartial, ctxStatus.State, "context falls back to schema-only rules")
	assert.NotEmpty(t, result.Context)
	assert.Equal(t, models.StatePartial, result.Status)
}

func TestRunExtraction_RunBudgetBoundsDuration(t *testing.T) {
	adapter := newShopAdapter()
	adapter.sample = func(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{RunTimeout: 200 * time.Millisecond})

	cfg := testProfilingConfig()
	cfg.PerColumnTimeout = time.Minute

	start := time.Now()
	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), cfg)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, models.StatePartial, result.Status)
	assert.Equal(t, models.StatePartial, result.Facets[models.FacetQuality].State)
	assert.Equal(t, models.StateOK, result.Facets[models.FacetLineage].State)
	assert.Len(t, result.Lineage, 1, "completed facets are kept")
}

func TestRunExtraction_SampleCapApplied(t *testing.T) {
	adapter := newShopAdapter()
	svc, _, _ := newTestService(t, adapter, ExtractionOptions{MaxSampleSize: 5})

	result, err := svc.RunExtraction(context.Background(), shopDescriptor(), models.ProfilingConfig{SampleSize: 500})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Sampling.SampleSize)
	for id, q := range result.Quality {
		assert.LessOrEqual(t, q.SampleSize, 5, id)
	}
}

func TestRunExtraction_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t, newShopAdapter(), ExtractionOptions{})
	first, err := svc.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	svc2, _, _ := newTestService(t, newShopAdapter(), ExtractionOptions{})
	second, err := svc2.RunExtraction(context.Background(), shopDescriptor(), testProfilingConfig())
	require.NoError(t, err)

	if diff := cmp.Diff(first.Schema, second.Schema); diff != "" {
		t.Errorf("schema differs between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Lineage, second.Lineage); diff != "" {
		t.Errorf("lineage differs between runs (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestExtractionService_TestConnection(t *testing.T) {
	adapter := newShopAdapter()
	svc, factory, _ := newTestService(t, adapter, ExtractionOptions{})

	require.NoError(t, svc.TestConnection(context.Background(), shopDescriptor()))
	assert.Equal(t, 1, factory.calls)
	assert.True(t, adapter.closeCalled)

	factory.err = &apperrors.UnsupportedSourceKind{Kind: "mongo"}
	assert.ErrorIs(t, svc.TestConnection(context.Background(), shopDescriptor()), apperrors.ErrUnsupportedSourceKind)
}

func TestExtractionService_ListKinds(t *testing.T) {
	svc, _, _ := newTestService(t, newShopAdapter(), ExtractionOptions{})
	kinds := svc.ListKinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, models.SourceKindPostgres, kinds[0].Kind)
}
