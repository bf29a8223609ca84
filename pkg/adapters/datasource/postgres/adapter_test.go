package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func descriptor() models.ConnectionDescriptor {
	return models.ConnectionDescriptor{
		Kind:        models.SourceKindPostgres,
		Host:        "db.internal",
		Database:    "shop",
		Credentials: models.Credentials{Username: "reader", Password: "p@ss/w#rd?"},
	}
}

func TestFromDescriptor_Defaults(t *testing.T) {
	cfg, err := FromDescriptor(descriptor())
	require.NoError(t, err)

	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "prefer", cfg.SSLMode)
	assert.Equal(t, "sourcesense", cfg.ApplicationName)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestFromDescriptor_Options(t *testing.T) {
	desc := descriptor()
	desc.Port = 6543
	desc.Options = map[string]string{"sslmode": "disable", "connect_timeout": "3", "application_name": "audit"}

	cfg, err := FromDescriptor(desc)
	require.NoError(t, err)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "audit", cfg.ApplicationName)
}

func TestFromDescriptor_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ConnectionDescriptor)
	}{
		{"missing host", func(d *models.ConnectionDescriptor) { d.Host = "" }},
		{"missing database", func(d *models.ConnectionDescriptor) { d.Database = "" }},
		{"bad sslmode", func(d *models.ConnectionDescriptor) { d.Options = map[string]string{"sslmode": "sometimes"} }},
		{"bad timeout", func(d *models.ConnectionDescriptor) { d.Options = map[string]string{"connect_timeout": "soon"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := descriptor()
			tt.mutate(&desc)
			_, err := FromDescriptor(desc)
			assert.Error(t, err)
		})
	}
}

func TestNewAdapter_InvalidDescriptorIsConfigError(t *testing.T) {
	desc := descriptor()
	desc.Options = map[string]string{"sslmode": "sometimes"}

	_, err := NewAdapter(desc, nil, nil)
	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, apperrors.ConnectionConfig, connErr.Reason)
}

func TestBuildConnectionString_EscapesCredentials(t *testing.T) {
	cfg, err := FromDescriptor(descriptor())
	require.NoError(t, err)

	connStr := buildConnectionString(cfg)
	assert.Contains(t, connStr, "reader:p%40ss%2Fw%23rd%3F@")
	assert.Contains(t, connStr, "/shop?sslmode=prefer")
	assert.Contains(t, connStr, "connect_timeout=10")
}

func TestClassifyConnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.ConnectionReason
	}{
		{"invalid password", &pgconn.PgError{Code: "28P01"}, apperrors.ConnectionAuth},
		{"invalid authorization", fmt.Errorf("connect: %w", &pgconn.PgError{Code: "28000"}), apperrors.ConnectionAuth},
		{"unknown database", &pgconn.PgError{Code: "3D000"}, apperrors.ConnectionConfig},
		{"refused", errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), apperrors.ConnectionNetwork},
		{"hba", errors.New("no pg_hba.conf entry for host"), apperrors.ConnectionAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyConnError(tt.err))
		})
	}
}

func TestBuildSampleQuery(t *testing.T) {
	table := datasource.TableIdent{Schema: "public", Name: "orders"}

	t.Run("head in key order", func(t *testing.T) {
		q, err := buildSampleQuery(table, []string{"status"}, datasource.SampleOptions{
			Limit: 100, Mode: models.SamplingHead, OrderBy: []string{"id"},
		})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "status" FROM "public"."orders" ORDER BY "id" LIMIT 100`, q)
	})

	t.Run("random is repeatable", func(t *testing.T) {
		q, err := buildSampleQuery(table, []string{"status"}, datasource.SampleOptions{
			Limit: 100, Mode: models.SamplingRandom, Seed: 42, RowEstimate: 100000,
		})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "status" FROM "public"."orders" TABLESAMPLE BERNOULLI (0.2000) REPEATABLE (42) LIMIT 100`, q)
	})

	t.Run("random on a small table reads everything", func(t *testing.T) {
		q, err := buildSampleQuery(table, []string{"status"}, datasource.SampleOptions{
			Limit: 100, Mode: models.SamplingRandom, Seed: 42, RowEstimate: 120,
		})
		require.NoError(t, err)
		assert.NotContains(t, q, "TABLESAMPLE")
	})

	t.Run("quotes awkward identifiers", func(t *testing.T) {
		q, err := buildSampleQuery(datasource.TableIdent{Schema: "Sales", Name: `odd"name`}, []string{"Total Amount"},
			datasource.SampleOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "Total Amount" FROM "Sales"."odd""name" LIMIT 5`, q)
	})

	t.Run("empty schema uses search path", func(t *testing.T) {
		q, err := buildSampleQuery(datasource.TableIdent{Name: "orders"}, []string{"status"},
			datasource.SampleOptions{Limit: 5})
		require.NoError(t, err)
		assert.Equal(t, `SELECT "status" FROM "orders" LIMIT 5`, q)
	})

	t.Run("rejects injection in identifiers", func(t *testing.T) {
		_, err := buildSampleQuery(table, []string{"' OR '1'='1"}, datasource.SampleOptions{Limit: 5})
		assert.ErrorIs(t, err, apperrors.ErrUnsafeQuery)
	})

	t.Run("requires columns and limit", func(t *testing.T) {
		_, err := buildSampleQuery(table, nil, datasource.SampleOptions{Limit: 5})
		assert.Error(t, err)
		_, err = buildSampleQuery(table, []string{"id"}, datasource.SampleOptions{})
		assert.Error(t, err)
	})
}

func TestRegistered(t *testing.T) {
	reg, ok := datasource.GetRegistration(models.SourceKindPostgres)
	require.True(t, ok)
	assert.Equal(t, datasource.StatusAvailable, reg.Info.Status)
	assert.Equal(t, 5432, reg.Info.DefaultPort)
}
