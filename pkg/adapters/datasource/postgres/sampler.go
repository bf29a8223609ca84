package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

// qualifiedTableName returns a properly quoted table reference.
// If schemaName is empty, returns just the quoted table name.
// Otherwise returns "schema"."table".
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	quotedSchema := pgx.Identifier{schemaName}.Sanitize()
	return quotedSchema + "." + quotedTable
}

func quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// buildSampleQuery returns the sampling statement for table. Head mode reads
// the first rows in key order; random mode uses a repeatable Bernoulli sample
// so a fixed seed reproduces the same rows while the data is unchanged.
func buildSampleQuery(table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns to sample")
	}
	if opts.Limit <= 0 {
		return "", fmt.Errorf("sample limit must be positive")
	}
	idents := append(table.Identifiers(), columns...)
	idents = append(idents, opts.OrderBy...)
	if err := sqlguard.CheckIdentifiers(idents...); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteColumns(columns))
	b.WriteString(" FROM ")
	b.WriteString(qualifiedTableName(table.Schema, table.Name))

	if opts.Mode == models.SamplingRandom {
		pct := datasource.SamplePercent(opts.Limit, opts.RowEstimate)
		if pct < 100 {
			b.WriteString(" TABLESAMPLE BERNOULLI (")
			b.WriteString(strconv.FormatFloat(pct, 'f', 4, 64))
			b.WriteString(") REPEATABLE (")
			b.WriteString(strconv.FormatInt(opts.Seed, 10))
			b.WriteString(")")
		}
	}
	if len(opts.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteColumns(opts.OrderBy))
	}
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(opts.Limit))
	return b.String(), nil
}

// isStatementTimeout reports SQLSTATE 57014 (query_canceled).
func isStatementTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "57014"
}

// SampleRows reads a bounded sample inside a READ ONLY transaction with a
// transaction-local statement_timeout.
func (a *Adapter) SampleRows(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error) {
	query, err := buildSampleQuery(table, columns, opts)
	if err != nil {
		return nil, err
	}
	guarded, err := sqlguard.EnsureReadOnly(query)
	if err != nil {
		return nil, err
	}
	pool, err := a.pool(ctx)
	if err != nil {
		return nil, err
	}

	sampleCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		sampleCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	result := &datasource.SampleResult{Columns: columns}
	partial := func(cause error) (*datasource.SampleResult, error) {
		result.Partial = true
		return result, &apperrors.PartialDataError{Table: table.String(), Err: cause}
	}
	cutShort := func(err error) error {
		if ctxErr := sampleCtx.Err(); ctxErr != nil {
			return ctxErr
		}
		if isStatementTimeout(err) {
			return err
		}
		return nil
	}

	tx, err := pool.BeginTx(sampleCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		if cause := cutShort(err); cause != nil {
			return partial(cause)
		}
		return nil, a.connectionError(err)
	}
	// Sampling never writes; rollback ends the snapshot.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if opts.Timeout > 0 {
		ms := strconv.FormatInt(opts.Timeout.Milliseconds(), 10)
		if _, err := tx.Exec(sampleCtx, "SELECT set_config('statement_timeout', $1, true)", ms); err != nil {
			if cause := cutShort(err); cause != nil {
				return partial(cause)
			}
			return nil, fmt.Errorf("set statement timeout: %w", err)
		}
	}

	rows, err := tx.Query(sampleCtx, guarded)
	if err != nil {
		if cause := cutShort(err); cause != nil {
			return partial(cause)
		}
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		if len(result.Rows) >= opts.Limit {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("sample %s: decode row: %w", table, err)
		}
		for i := range values {
			values[i] = datasource.NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		if cause := cutShort(err); cause != nil {
			return partial(cause)
		}
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	return result, nil
}
