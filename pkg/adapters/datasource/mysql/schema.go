package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

// ListDatabases returns the configured database.
func (a *Adapter) ListDatabases(ctx context.Context) ([]datasource.DatabaseRow, error) {
	var dbs []datasource.DatabaseRow
	err := a.QueryEach(ctx, `SELECT DATABASE()`, nil, func(rows *sql.Rows) error {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name.Valid {
			dbs = append(dbs, datasource.DatabaseRow{Name: name.String})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return dbs, nil
}

// ListSchemas returns the database itself: MySQL schemas and databases are
// the same object.
func (a *Adapter) ListSchemas(ctx context.Context) ([]datasource.SchemaRow, error) {
	var schemas []datasource.SchemaRow
	err := a.QueryEach(ctx, `SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?`,
		[]any{a.config.Database}, func(rows *sql.Rows) error {
			s := datasource.SchemaRow{Database: a.config.Database}
			if err := rows.Scan(&s.Name); err != nil {
				return err
			}
			schemas = append(schemas, s)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return schemas, nil
}

// ListTables returns base tables and views. TABLE_ROWS is an InnoDB estimate.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableRow, error) {
	const query = `
		SELECT
			t.TABLE_NAME,
			t.TABLE_TYPE = 'VIEW' AS is_view,
			COALESCE(t.TABLE_ROWS, 0) AS row_estimate,
			COALESCE(v.VIEW_DEFINITION, '') AS view_definition
		FROM information_schema.TABLES t
		LEFT JOIN information_schema.VIEWS v
			ON v.TABLE_SCHEMA = t.TABLE_SCHEMA AND v.TABLE_NAME = t.TABLE_NAME
		WHERE t.TABLE_SCHEMA = ?
		  AND t.TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY t.TABLE_NAME`

	var tables []datasource.TableRow
	err := a.QueryEach(ctx, query, []any{a.config.Database}, func(rows *sql.Rows) error {
		t := datasource.TableRow{Database: a.config.Database, Schema: a.config.Database}
		if err := rows.Scan(&t.Name, &t.IsView, &t.RowEstimate, &t.ViewDefinition); err != nil {
			return err
		}
		tables = append(tables, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// ListColumns returns columns with their full COLUMN_TYPE ("int unsigned", "varchar(255)").
func (a *Adapter) ListColumns(ctx context.Context) ([]datasource.ColumnRow, error) {
	const query = `
		SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE = 'YES' AS is_nullable, ORDINAL_POSITION
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	var columns []datasource.ColumnRow
	err := a.QueryEach(ctx, query, []any{a.config.Database}, func(rows *sql.Rows) error {
		col := datasource.ColumnRow{Database: a.config.Database, Schema: a.config.Database}
		if err := rows.Scan(&col.Table, &col.Name, &col.DataType, &col.IsNullable, &col.OrdinalPosition); err != nil {
			return err
		}
		columns = append(columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return columns, nil
}

// ListConstraints returns primary and foreign keys from KEY_COLUMN_USAGE.
func (a *Adapter) ListConstraints(ctx context.Context) ([]datasource.ConstraintRow, error) {
	const query = `
		SELECT
			k.TABLE_NAME,
			k.CONSTRAINT_NAME,
			tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AS is_primary,
			k.COLUMN_NAME,
			COALESCE(k.REFERENCED_TABLE_SCHEMA, '') AS ref_schema,
			COALESCE(k.REFERENCED_TABLE_NAME, '') AS ref_table,
			COALESCE(k.REFERENCED_COLUMN_NAME, '') AS ref_column
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.TABLE_CONSTRAINTS tc
			ON tc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND tc.TABLE_NAME = k.TABLE_NAME
			AND tc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = ?
		  AND tc.CONSTRAINT_TYPE IN ('PRIMARY KEY', 'FOREIGN KEY')
		ORDER BY k.TABLE_NAME, k.CONSTRAINT_NAME, k.ORDINAL_POSITION`

	var constraints []datasource.ConstraintRow
	err := a.QueryEach(ctx, query, []any{a.config.Database}, func(rows *sql.Rows) error {
		con := datasource.ConstraintRow{Database: a.config.Database, Schema: a.config.Database}
		var isPrimary bool
		var column, refColumn string
		if err := rows.Scan(&con.Table, &con.Name, &isPrimary, &column, &con.RefSchema, &con.RefTable, &refColumn); err != nil {
			return err
		}
		con.Kind = datasource.ConstraintForeignKey
		if isPrimary {
			con.Kind = datasource.ConstraintPrimaryKey
		}
		constraints = datasource.MergeConstraintColumn(constraints, con, column, refColumn)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	return constraints, nil
}

// quoteIdentifier wraps a name in backticks, doubling embedded backticks.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func quoteIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// buildSampleQuery returns a bounded SELECT with a MAX_EXECUTION_TIME hint.
// Random mode filters with RAND(seed), which yields a repeatable sequence for
// a fixed seed and scan order.
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
	if opts.Timeout > 0 {
		b.WriteString("/*+ MAX_EXECUTION_TIME(")
		b.WriteString(strconv.FormatInt(opts.Timeout.Milliseconds(), 10))
		b.WriteString(") */ ")
	}
	b.WriteString(quoteIdentifiers(columns))
	b.WriteString(" FROM ")
	if table.Schema != "" {
		b.WriteString(quoteIdentifier(table.Schema))
		b.WriteString(".")
	}
	b.WriteString(quoteIdentifier(table.Name))

	if opts.Mode == models.SamplingRandom {
		if pct := datasource.SamplePercent(opts.Limit, opts.RowEstimate); pct < 100 {
			b.WriteString(" WHERE RAND(")
			b.WriteString(strconv.FormatInt(opts.Seed, 10))
			b.WriteString(") < ")
			b.WriteString(strconv.FormatFloat(pct/100, 'f', 6, 64))
		}
	}
	if len(opts.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteIdentifiers(opts.OrderBy))
	}
	b.WriteString(" LIMIT ")
	b.WriteString(strconv.Itoa(opts.Limit))
	return b.String(), nil
}

// SampleRows reads a bounded sample of the given columns.
func (a *Adapter) SampleRows(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error) {
	query, err := buildSampleQuery(table, columns, opts)
	if err != nil {
		return nil, err
	}
	return a.Sample(ctx, table, query, nil, opts)
}
