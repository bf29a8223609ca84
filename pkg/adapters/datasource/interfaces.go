package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// CatalogReader lists a source's catalog one level at a time so that each
// level can fail independently.
type CatalogReader interface {
	// ListDatabases returns the databases reachable through the connection.
	ListDatabases(ctx context.Context) ([]DatabaseRow, error)

	// ListSchemas returns user schemas (system schemas excluded).
	ListSchemas(ctx context.Context) ([]SchemaRow, error)

	// ListTables returns base tables and views, with view definitions where available.
	ListTables(ctx context.Context) ([]TableRow, error)

	// ListColumns returns columns of every listed table.
	ListColumns(ctx context.Context) ([]ColumnRow, error)

	// ListConstraints returns primary and foreign key constraints.
	ListConstraints(ctx context.Context) ([]ConstraintRow, error)
}

// RowSampler reads bounded samples from a table.
type RowSampler interface {
	// SampleRows reads at most opts.Limit rows of the given columns inside a
	// read-only context. When opts.Timeout elapses it returns the rows read so
	// far with Partial set and an error matching apperrors.ErrPartialData.
	SampleRows(ctx context.Context, table TableIdent, columns []string, opts SampleOptions) (*SampleResult, error)
}

// SourceAdapter is the capability set every source kind implements.
// Adapters are safe for concurrent use and open their pool lazily.
type SourceAdapter interface {
	CatalogReader
	RowSampler

	// Kind returns the source kind served by the adapter.
	Kind() models.SourceKind

	// TestConnection verifies the source is reachable with valid credentials.
	// Failures are *apperrors.ConnectionError.
	TestConnection(ctx context.Context) error

	// Close releases the adapter's connection. Pools shared through a
	// ConnectionManager stay open until idle expiry.
	Close() error
}

// TableIdent names a table to sample.
type TableIdent struct {
	Database string
	Schema   string
	Name     string
}

// Identifiers returns the names a query would embed. An empty schema means
// the connection default and is left out.
func (t TableIdent) Identifiers() []string {
	if t.Schema == "" {
		return []string{t.Name}
	}
	return []string{t.Schema, t.Name}
}

func (t TableIdent) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// SampleOptions bounds a sampling query.
type SampleOptions struct {
	Limit       int
	Timeout     time.Duration
	Mode        models.SamplingMode
	Seed        int64
	OrderBy     []string // columns for deterministic head sampling, usually the primary key
	RowEstimate int64    // used to size random samples
}

// SampleResult holds sampled rows. Values are normalized with NormalizeValue.
type SampleResult struct {
	Columns []string
	Rows    [][]any
	Partial bool
}

// SamplePercent returns the percentage of rows a random sample should scan to
// yield about limit rows, over-sampling by 2x and capped at 100.
func SamplePercent(limit int, rowEstimate int64) float64 {
	if rowEstimate <= 0 || limit <= 0 {
		return 100
	}
	pct := float64(limit) * 200 / float64(rowEstimate)
	if pct > 100 {
		return 100
	}
	if pct < 0.0001 {
		return 0.0001
	}
	return pct
}
