package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/services"
)

func testConfig() *config.Config {
	return &config.Config{
		Version: "test",
		Extraction: config.ExtractionConfig{
			SampleSize:    1000,
			MaxSampleSize: 2000,
			QueryTimeout:  30 * time.Second,
			SamplingMode:  "head",
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Sources: []config.SourceConfig{
			{Name: "warehouse", Kind: "postgresql", Host: "db.internal", Port: 5432, Database: "dw", User: "etl", Password: "s3cret"},
			{Name: "local", Kind: "sqlite", Database: "/tmp/local.db"},
		},
	}
}

func TestResolveDescriptor_NamedSource(t *testing.T) {
	desc, err := resolveDescriptor(testConfig(), "warehouse", extractFlags{})
	require.NoError(t, err)

	assert.Equal(t, models.SourceKindPostgres, desc.Kind)
	assert.Equal(t, "dw", desc.Database)
	assert.Equal(t, 5432, desc.Port)
	assert.Equal(t, "s3cret", desc.Credentials.Password)
	assert.Equal(t, 30*time.Second, desc.QueryTimeout)
}

func TestResolveDescriptor_UnknownSourceListsAvailable(t *testing.T) {
	_, err := resolveDescriptor(testConfig(), "nope", extractFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "warehouse, local")
}

func TestResolveDescriptor_NoSourcesConfigured(t *testing.T) {
	_, err := resolveDescriptor(&config.Config{}, "nope", extractFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources configured")
}

func TestResolveDescriptor_NameAndKindConflict(t *testing.T) {
	_, err := resolveDescriptor(testConfig(), "warehouse", extractFlags{kind: "mysql"})
	require.Error(t, err)
}

func TestResolveDescriptor_RequiresNameOrKind(t *testing.T) {
	_, err := resolveDescriptor(testConfig(), "", extractFlags{})
	require.Error(t, err)
}

func TestResolveDescriptor_FromFlags(t *testing.T) {
	t.Setenv("SOURCESENSE_TEST_PW", "hunter2")

	desc, err := resolveDescriptor(testConfig(), "", extractFlags{
		kind:        "MariaDB",
		host:        "10.0.0.5",
		port:        3307,
		database:    "app",
		user:        "reader",
		passwordEnv: "SOURCESENSE_TEST_PW",
		options:     map[string]string{"TLS": "true"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceKindMySQL, desc.Kind)
	assert.Equal(t, "10.0.0.5", desc.Host)
	assert.Equal(t, 3307, desc.Port)
	assert.Equal(t, "reader", desc.Credentials.Username)
	assert.Equal(t, "hunter2", desc.Credentials.Password)
	assert.Equal(t, "true", desc.Options["tls"])
}

func TestResolveDescriptor_MissingPasswordEnv(t *testing.T) {
	_, err := resolveDescriptor(testConfig(), "", extractFlags{kind: "postgres", passwordEnv: "SOURCESENSE_UNSET_VARIABLE"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCESENSE_UNSET_VARIABLE")
}

func TestProfilingFromFlags_DefaultsFromConfig(t *testing.T) {
	cmd := newExtractCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	p, err := profilingFromFlags(cmd, testConfig().Extraction, extractFlags{})
	require.NoError(t, err)

	assert.Equal(t, 1000, p.SampleSize)
	assert.Equal(t, models.SamplingHead, p.SamplingMode)
}

func TestProfilingFromFlags_OverridesAndClamp(t *testing.T) {
	cmd := newExtractCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--sample-size=5000", "--sampling-mode=Random", "--seed=42"}))

	p, err := profilingFromFlags(cmd, testConfig().Extraction, extractFlags{sampleSize: 5000, samplingMode: "Random", seed: 42})
	require.NoError(t, err)

	assert.Equal(t, 2000, p.SampleSize, "clamped to max_sample_size")
	assert.Equal(t, models.SamplingRandom, p.SamplingMode)
	assert.Equal(t, int64(42), p.Seed)
}

func TestProfilingFromFlags_RejectsBadValues(t *testing.T) {
	cmd := newExtractCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--sampling-mode=reservoir"}))
	_, err := profilingFromFlags(cmd, testConfig().Extraction, extractFlags{samplingMode: "reservoir"})
	require.Error(t, err)

	cmd = newExtractCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--sample-size=0"}))
	_, err = profilingFromFlags(cmd, testConfig().Extraction, extractFlags{sampleSize: 0})
	require.Error(t, err)
}

func TestWriteSources_OmitsCredentials(t *testing.T) {
	var buf bytes.Buffer
	writeSources(&buf, testConfig().Sources)

	out := buf.String()
	assert.Contains(t, out, "warehouse")
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "/tmp/local.db")
	assert.NotContains(t, out, "s3cret")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("local")), bytes.Index(buf.Bytes(), []byte("warehouse")))
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	logger := zaptest.NewLogger(t)
	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{TTLMinutes: 1}, logger)
	t.Cleanup(func() { _ = connMgr.Close() })

	registry := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		connMgr:  connMgr,
		registry: registry,
		service: services.NewExtractionService(
			datasource.NewAdapterFactory(connMgr, logger),
			services.ExtractionOptions{MaxSampleSize: cfg.Extraction.MaxSampleSize},
			metrics.New(registry),
			logger,
		),
	}
}

func TestNewMux_Routes(t *testing.T) {
	mux := newTestApp(t, testConfig()).newMux()

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/health", http.StatusOK},
		{"ping", http.MethodGet, "/ping", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"mcp rejects GET", http.MethodGet, "/mcp", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestNewMux_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = false
	mux := newTestApp(t, cfg).newMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
