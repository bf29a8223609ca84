package mssql

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

// userObjects restricts sys.objects to user tables and views.
const userObjects = `o.type IN ('U', 'V') AND o.is_ms_shipped = 0`

// ListDatabases returns the database the connection is bound to.
func (a *Adapter) ListDatabases(ctx context.Context) ([]datasource.DatabaseRow, error) {
	var dbs []datasource.DatabaseRow
	err := a.QueryEach(ctx, `SELECT DB_NAME()`, nil, func(rows *sql.Rows) error {
		var d datasource.DatabaseRow
		if err := rows.Scan(&d.Name); err != nil {
			return err
		}
		dbs = append(dbs, d)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return dbs, nil
}

// ListSchemas returns schemas that own at least one user table or view, plus dbo.
func (a *Adapter) ListSchemas(ctx context.Context) ([]datasource.SchemaRow, error) {
	query := `
		SELECT s.name
		FROM sys.schemas s
		WHERE s.name = 'dbo'
		   OR s.schema_id IN (SELECT o.schema_id FROM sys.objects o WHERE ` + userObjects + `)
		ORDER BY s.name`

	var schemas []datasource.SchemaRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
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

// ListTables returns user tables and views. Row estimates come from
// sys.partitions (heap or clustered index only).
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableRow, error) {
	query := `
		SELECT
			s.name,
			o.name,
			CAST(CASE WHEN o.type = 'V' THEN 1 ELSE 0 END AS bit) AS is_view,
			COALESCE((
				SELECT SUM(p.rows) FROM sys.partitions p
				WHERE p.object_id = o.object_id AND p.index_id IN (0, 1)
			), 0) AS row_estimate,
			CASE WHEN o.type = 'V' THEN COALESCE(OBJECT_DEFINITION(o.object_id), '') ELSE '' END AS view_definition
		FROM sys.objects o
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		WHERE ` + userObjects + `
		ORDER BY s.name, o.name`

	var tables []datasource.TableRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
		t := datasource.TableRow{Database: a.config.Database}
		if err := rows.Scan(&t.Schema, &t.Name, &t.IsView, &t.RowEstimate, &t.ViewDefinition); err != nil {
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

// ListColumns returns columns of user tables and views in column_id order.
func (a *Adapter) ListColumns(ctx context.Context) ([]datasource.ColumnRow, error) {
	query := `
		SELECT
			s.name,
			o.name,
			c.name,
			t.name,
			c.is_nullable,
			CAST(ROW_NUMBER() OVER (PARTITION BY c.object_id ORDER BY c.column_id) AS int) AS ordinal_position
		FROM sys.columns c
		JOIN sys.objects o ON o.object_id = c.object_id
		JOIN sys.schemas s ON s.schema_id = o.schema_id
		JOIN sys.types t ON t.user_type_id = c.user_type_id
		WHERE ` + userObjects + `
		ORDER BY s.name, o.name, c.column_id`

	var columns []datasource.ColumnRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
		col := datasource.ColumnRow{Database: a.config.Database}
		if err := rows.Scan(&col.Schema, &col.Table, &col.Name, &col.DataType, &col.IsNullable, &col.OrdinalPosition); err != nil {
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

// ListConstraints returns primary keys (via their unique index) and foreign
// keys, one row per key column merged into constraints.
func (a *Adapter) ListConstraints(ctx context.Context) ([]datasource.ConstraintRow, error) {
	const query = `
		SELECT s.name, t.name, kc.name, CAST(1 AS bit) AS is_primary,
			c.name, '' AS ref_schema, '' AS ref_table, '' AS ref_column, CAST(ic.key_ordinal AS int) AS position
		FROM sys.key_constraints kc
		JOIN sys.tables t ON t.object_id = kc.parent_object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE kc.type = 'PK' AND t.is_ms_shipped = 0
		UNION ALL
		SELECT s.name, t.name, fk.name, CAST(0 AS bit) AS is_primary,
			pc.name, rs.name, rt.name, rc.name, CAST(fkc.constraint_column_id AS int) AS position
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables t ON t.object_id = fk.parent_object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN sys.schemas rs ON rs.schema_id = rt.schema_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE t.is_ms_shipped = 0
		ORDER BY 1, 2, 3, 9`

	var constraints []datasource.ConstraintRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
		con := datasource.ConstraintRow{Database: a.config.Database}
		var isPrimary bool
		var column, refColumn string
		var position int
		if err := rows.Scan(&con.Schema, &con.Table, &con.Name, &isPrimary,
			&column, &con.RefSchema, &con.RefTable, &refColumn, &position); err != nil {
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

// buildSampleQuery returns a TOP (n) query. Random mode adds a repeatable
// TABLESAMPLE, which samples pages rather than rows.
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
	b.WriteString("SELECT TOP (")
	b.WriteString(strconv.Itoa(opts.Limit))
	b.WriteString(") ")
	b.WriteString(quoteNames(columns))
	b.WriteString(" FROM ")
	b.WriteString(buildFullyQualifiedName(table.Schema, table.Name))

	if opts.Mode == models.SamplingRandom {
		pct := datasource.SamplePercent(opts.Limit, opts.RowEstimate)
		if pct < 100 {
			b.WriteString(" TABLESAMPLE (")
			b.WriteString(strconv.FormatFloat(pct, 'f', 4, 64))
			b.WriteString(" PERCENT) REPEATABLE (")
			b.WriteString(strconv.FormatInt(opts.Seed, 10))
			b.WriteString(")")
		}
	}
	if len(opts.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteNames(opts.OrderBy))
	}
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
