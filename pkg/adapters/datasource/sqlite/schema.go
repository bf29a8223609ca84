package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

// userObjects restricts sqlite_master to user tables and views.
const userObjects = `m.type IN ('table', 'view') AND m.name NOT LIKE 'sqlite_%'`

// ListDatabases returns the file's logical name.
func (a *Adapter) ListDatabases(ctx context.Context) ([]datasource.DatabaseRow, error) {
	// Touch the file so a missing or corrupt database fails at this level.
	var count int
	err := a.QueryEach(ctx, `SELECT COUNT(*) FROM sqlite_master`, nil, func(rows *sql.Rows) error {
		return rows.Scan(&count)
	})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return []datasource.DatabaseRow{{Name: a.config.Name}}, nil
}

// ListSchemas returns the main schema; attached databases are not read.
func (a *Adapter) ListSchemas(ctx context.Context) ([]datasource.SchemaRow, error) {
	return []datasource.SchemaRow{{Database: a.config.Name, Name: schemaName}}, nil
}

// ListTables returns tables and views with their CREATE statements as view
// definitions. SQLite keeps no row statistics, so estimates are zero.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableRow, error) {
	query := `
		SELECT m.name, m.type = 'view' AS is_view, CASE WHEN m.type = 'view' THEN COALESCE(m.sql, '') ELSE '' END
		FROM sqlite_master m
		WHERE ` + userObjects + `
		ORDER BY m.name`

	var tables []datasource.TableRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
		t := datasource.TableRow{Database: a.config.Name, Schema: schemaName}
		if err := rows.Scan(&t.Name, &t.IsView, &t.ViewDefinition); err != nil {
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

// ListColumns reads pragma_table_xinfo for every table, skipping hidden
// virtual-table columns but keeping generated ones.
func (a *Adapter) ListColumns(ctx context.Context) ([]datasource.ColumnRow, error) {
	query := `
		SELECT m.name, p.name, p.type, p."notnull", p.cid
		FROM sqlite_master m
		JOIN pragma_table_xinfo(m.name) p
		WHERE ` + userObjects + `
		  AND p.hidden <> 1
		ORDER BY m.name, p.cid`

	var columns []datasource.ColumnRow
	err := a.QueryEach(ctx, query, nil, func(rows *sql.Rows) error {
		col := datasource.ColumnRow{Database: a.config.Name, Schema: schemaName}
		var notNull, cid int
		if err := rows.Scan(&col.Table, &col.Name, &col.DataType, &notNull, &cid); err != nil {
			return err
		}
		col.IsNullable = notNull == 0
		col.OrdinalPosition = cid + 1
		columns = append(columns, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	return columns, nil
}

// ListConstraints returns primary keys from pragma_table_info and foreign
// keys from pragma_foreign_key_list. SQLite does not name constraints, so
// names are derived from the table. A foreign key without target columns
// references the parent's primary key.
func (a *Adapter) ListConstraints(ctx context.Context) ([]datasource.ConstraintRow, error) {
	const pkQuery = `
		SELECT m.name, p.name
		FROM sqlite_master m
		JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND p.pk > 0
		ORDER BY m.name, p.pk`

	var constraints []datasource.ConstraintRow
	primaryKeys := map[string][]string{}
	err := a.QueryEach(ctx, pkQuery, nil, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		primaryKeys[table] = append(primaryKeys[table], column)
		constraints = datasource.MergeConstraintColumn(constraints, datasource.ConstraintRow{
			Database: a.config.Name,
			Schema:   schemaName,
			Table:    table,
			Name:     "pk_" + table,
			Kind:     datasource.ConstraintPrimaryKey,
		}, column, "")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list primary keys: %w", err)
	}

	const fkQuery = `
		SELECT m.name, f.id, f.seq, f."table", f."from", COALESCE(f."to", '')
		FROM sqlite_master m
		JOIN pragma_foreign_key_list(m.name) f
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, f.id, f.seq`

	err = a.QueryEach(ctx, fkQuery, nil, func(rows *sql.Rows) error {
		var table, refTable, column, refColumn string
		var id, seq int
		if err := rows.Scan(&table, &id, &seq, &refTable, &column, &refColumn); err != nil {
			return err
		}
		if refColumn == "" {
			if pk := primaryKeys[refTable]; seq < len(pk) {
				refColumn = pk[seq]
			}
		}
		constraints = datasource.MergeConstraintColumn(constraints, datasource.ConstraintRow{
			Database:  a.config.Name,
			Schema:    schemaName,
			Table:     table,
			Name:      "fk_" + table + "_" + strconv.Itoa(id),
			Kind:      datasource.ConstraintForeignKey,
			RefSchema: schemaName,
			RefTable:  refTable,
		}, column, refColumn)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	return constraints, nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentifiers(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// buildSampleQuery returns a head sample. SQLite has no seeded sampling, so
// random mode reads the same rows as head mode.
func buildSampleQuery(table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns to sample")
	}
	if opts.Limit <= 0 {
		return "", fmt.Errorf("sample limit must be positive")
	}
	idents := append([]string{table.Name}, columns...)
	idents = append(idents, opts.OrderBy...)
	if err := sqlguard.CheckIdentifiers(idents...); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteIdentifiers(columns))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdentifier(table.Name))
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
	if opts.Mode == models.SamplingRandom {
		a.logger.Debug("random sampling unsupported, reading head rows", zap.String("table", table.String()))
	}
	query, err := buildSampleQuery(table, columns, opts)
	if err != nil {
		return nil, err
	}
	return a.Sample(ctx, table, query, nil, opts)
}
