package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
)

// userNamespaces filters out catalog, toast and temp schemas.
const userNamespaces = `n.nspname <> 'information_schema' AND n.nspname NOT LIKE 'pg\_%'`

// ListDatabases returns the connected database; PostgreSQL sessions cannot
// read another database's catalog.
func (a *Adapter) ListDatabases(ctx context.Context) ([]datasource.DatabaseRow, error) {
	var dbs []datasource.DatabaseRow
	err := a.queryEach(ctx, `SELECT current_database()`, nil, func(rows pgx.Rows) error {
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

// ListSchemas returns user schemas.
func (a *Adapter) ListSchemas(ctx context.Context) ([]datasource.SchemaRow, error) {
	query := `
		SELECT n.nspname
		FROM pg_catalog.pg_namespace n
		WHERE ` + userNamespaces + `
		ORDER BY n.nspname`

	var schemas []datasource.SchemaRow
	err := a.queryEach(ctx, query, nil, func(rows pgx.Rows) error {
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

// ListTables returns tables, partitioned parents, views and materialized
// views. Row estimates come from pg_class.reltuples, which is -1 until the
// table has been analyzed.
func (a *Adapter) ListTables(ctx context.Context) ([]datasource.TableRow, error) {
	query := `
		SELECT
			n.nspname,
			c.relname,
			c.relkind IN ('v', 'm') AS is_view,
			GREATEST(c.reltuples, 0)::bigint AS row_estimate,
			CASE WHEN c.relkind IN ('v', 'm') THEN COALESCE(pg_get_viewdef(c.oid, true), '') ELSE '' END AS view_definition
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm')
		  AND NOT c.relispartition
		  AND ` + userNamespaces + `
		ORDER BY n.nspname, c.relname`

	var tables []datasource.TableRow
	err := a.queryEach(ctx, query, nil, func(rows pgx.Rows) error {
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

// ListColumns returns columns with their formatted types. Ordinal positions
// are renumbered so dropped columns leave no gaps.
func (a *Adapter) ListColumns(ctx context.Context) ([]datasource.ColumnRow, error) {
	query := `
		SELECT
			n.nspname,
			c.relname,
			a.attname,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			NOT a.attnotnull AS is_nullable,
			row_number() OVER (PARTITION BY a.attrelid ORDER BY a.attnum)::int AS ordinal_position
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm')
		  AND NOT c.relispartition
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		  AND ` + userNamespaces + `
		ORDER BY n.nspname, c.relname, a.attnum`

	var columns []datasource.ColumnRow
	err := a.queryEach(ctx, query, nil, func(rows pgx.Rows) error {
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

// ListConstraints returns primary and foreign keys. Key columns are unnested
// WITH ORDINALITY so composite keys keep their declared order.
func (a *Adapter) ListConstraints(ctx context.Context) ([]datasource.ConstraintRow, error) {
	query := `
		SELECT
			n.nspname,
			c.relname,
			con.conname,
			con.contype = 'p' AS is_primary,
			ARRAY(
				SELECT att.attname::text
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_catalog.pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = k.attnum
				ORDER BY k.ord
			) AS columns,
			COALESCE(rn.nspname, '') AS ref_schema,
			COALESCE(rc.relname, '') AS ref_table,
			ARRAY(
				SELECT att.attname::text
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_catalog.pg_attribute att ON att.attrelid = con.confrelid AND att.attnum = k.attnum
				ORDER BY k.ord
			) AS ref_columns
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_class rc ON rc.oid = con.confrelid
		LEFT JOIN pg_catalog.pg_namespace rn ON rn.oid = rc.relnamespace
		WHERE con.contype IN ('p', 'f')
		  AND ` + userNamespaces + `
		ORDER BY n.nspname, c.relname, con.conname`

	var constraints []datasource.ConstraintRow
	err := a.queryEach(ctx, query, nil, func(rows pgx.Rows) error {
		con := datasource.ConstraintRow{Database: a.config.Database}
		var isPrimary bool
		if err := rows.Scan(&con.Schema, &con.Table, &con.Name, &isPrimary,
			&con.Columns, &con.RefSchema, &con.RefTable, &con.RefColumns); err != nil {
			return err
		}
		con.Kind = datasource.ConstraintForeignKey
		if isPrimary {
			con.Kind = datasource.ConstraintPrimaryKey
			con.RefSchema, con.RefTable, con.RefColumns = "", "", nil
		}
		constraints = append(constraints, con)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	return constraints, nil
}
