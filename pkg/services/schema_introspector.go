package services

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// SchemaIntrospector builds a SchemaTree from a source catalog.
type SchemaIntrospector interface {
	// Introspect reads databases, schemas, tables, columns and constraints in
	// that order. When a level fails, descent stops and the tree built so far
	// is returned with an *apperrors.IntrospectionError. The tree is nil only
	// when no database could be listed.
	Introspect(ctx context.Context, reader datasource.CatalogReader) (*models.SchemaTree, error)
}

type schemaIntrospector struct {
	logger *zap.Logger
}

// NewSchemaIntrospector creates a schema introspector.
func NewSchemaIntrospector(logger *zap.Logger) SchemaIntrospector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaIntrospector{logger: logger.Named("introspector")}
}

// treeBuilder indexes the tree under construction by lower-cased path so
// later levels can attach rows to their parents.
type treeBuilder struct {
	tree    *models.SchemaTree
	dbs     map[string]*models.Database
	schemas map[string]*models.Schema
	tables  map[string]*models.Table
	logger  *zap.Logger
}

func catalogKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, "\x00"))
}

func (s *schemaIntrospector) Introspect(ctx context.Context, reader datasource.CatalogReader) (*models.SchemaTree, error) {
	b := &treeBuilder{
		tree:    &models.SchemaTree{Depth: models.DepthNone},
		dbs:     make(map[string]*models.Database),
		schemas: make(map[string]*models.Schema),
		tables:  make(map[string]*models.Table),
		logger:  s.logger,
	}

	dbs, err := reader.ListDatabases(ctx)
	if err != nil {
		return nil, s.levelError(models.DepthDatabases, models.DepthNone, err)
	}
	b.addDatabases(dbs)
	if len(b.tree.Databases) == 0 {
		return nil, s.levelError(models.DepthDatabases, models.DepthNone, apperrors.ErrNotFound)
	}
	b.tree.Depth = models.DepthDatabases

	schemas, err := reader.ListSchemas(ctx)
	if err != nil {
		return b.tree, s.levelError(models.DepthSchemas, b.tree.Depth, err)
	}
	b.addSchemas(schemas)
	b.tree.Depth = models.DepthSchemas

	tables, err := reader.ListTables(ctx)
	if err != nil {
		return b.tree, s.levelError(models.DepthTables, b.tree.Depth, err)
	}
	b.addTables(tables)
	b.tree.Depth = models.DepthTables

	columns, err := reader.ListColumns(ctx)
	if err != nil {
		return b.tree, s.levelError(models.DepthColumns, b.tree.Depth, err)
	}
	b.addColumns(columns)
	b.tree.Depth = models.DepthColumns

	constraints, err := reader.ListConstraints(ctx)
	if err != nil {
		return b.tree, s.levelError(models.DepthConstraints, b.tree.Depth, err)
	}
	b.addConstraints(constraints)
	b.resolveForeignKeys()
	b.tree.Depth = models.DepthConstraints

	s.logger.Debug("Introspection complete",
		zap.Int("databases", len(b.tree.Databases)),
		zap.Int("tables", b.tree.TableCount()),
		zap.Int("columns", b.tree.ColumnCount()))

	return b.tree, nil
}

func (s *schemaIntrospector) levelError(level, reached models.IntrospectionDepth, err error) error {
	s.logger.Warn("Introspection stopped",
		zap.String("level", level.String()),
		zap.String("reached", reached.String()),
		zap.String("error", logging.SanitizeError(err)))
	return &apperrors.IntrospectionError{Level: level.String(), Depth: reached.String(), Err: err}
}

func (b *treeBuilder) duplicate(level, name string) {
	b.logger.Warn("Dropping duplicate catalog entry", zap.String("level", level), zap.String("name", name))
}

func (b *treeBuilder) orphan(level, name string) {
	b.logger.Warn("Dropping catalog entry with unknown parent", zap.String("level", level), zap.String("name", name))
}

func (b *treeBuilder) addDatabases(rows []datasource.DatabaseRow) {
	for _, r := range rows {
		k := catalogKey(r.Name)
		if _, ok := b.dbs[k]; ok {
			b.duplicate("database", r.Name)
			continue
		}
		db := &models.Database{Name: r.Name, Schemas: []*models.Schema{}}
		b.dbs[k] = db
		b.tree.Databases = append(b.tree.Databases, db)
	}
}

func (b *treeBuilder) addSchemas(rows []datasource.SchemaRow) {
	for _, r := range rows {
		db, ok := b.dbs[catalogKey(r.Database)]
		if !ok {
			b.orphan("schema", r.Database+"."+r.Name)
			continue
		}
		k := catalogKey(r.Database, r.Name)
		if _, ok := b.schemas[k]; ok {
			b.duplicate("schema", r.Database+"."+r.Name)
			continue
		}
		sch := &models.Schema{Name: r.Name, Tables: []*models.Table{}}
		b.schemas[k] = sch
		db.Schemas = append(db.Schemas, sch)
	}
}

func (b *treeBuilder) addTables(rows []datasource.TableRow) {
	for _, r := range rows {
		id := models.TableID(r.Database, r.Schema, r.Name)
		sch, ok := b.schemas[catalogKey(r.Database, r.Schema)]
		if !ok {
			b.orphan("table", id)
			continue
		}
		k := catalogKey(r.Database, r.Schema, r.Name)
		if _, ok := b.tables[k]; ok {
			b.duplicate("table", id)
			continue
		}
		kind := models.TableKindTable
		if r.IsView {
			kind = models.TableKindView
		}
		t := &models.Table{
			Database:       r.Database,
			Schema:         r.Schema,
			Name:           r.Name,
			Kind:           kind,
			Columns:        []*models.Column{},
			RowEstimate:    r.RowEstimate,
			ViewDefinition: r.ViewDefinition,
		}
		b.tables[k] = t
		sch.Tables = append(sch.Tables, t)
	}
}

func (b *treeBuilder) addColumns(rows []datasource.ColumnRow) {
	touched := make(map[*models.Table]bool)
	for _, r := range rows {
		t, ok := b.tables[catalogKey(r.Database, r.Schema, r.Table)]
		if !ok {
			b.orphan("column", models.ColumnID(r.Database, r.Schema, r.Table, r.Name))
			continue
		}
		if t.Column(r.Name) != nil {
			b.duplicate("column", t.ColumnID(r.Name))
			continue
		}
		t.Columns = append(t.Columns, &models.Column{
			Name:            r.Name,
			DataType:        r.DataType,
			IsNullable:      r.IsNullable,
			OrdinalPosition: r.OrdinalPosition,
		})
		touched[t] = true
	}
	for t := range touched {
		sort.SliceStable(t.Columns, func(i, j int) bool {
			return t.Columns[i].OrdinalPosition < t.Columns[j].OrdinalPosition
		})
	}
}

func (b *treeBuilder) addConstraints(rows []datasource.ConstraintRow) {
	for _, r := range rows {
		t, ok := b.tables[catalogKey(r.Database, r.Schema, r.Table)]
		if !ok {
			b.orphan("constraint", models.TableID(r.Database, r.Schema, r.Table)+"."+r.Name)
			continue
		}
		switch r.Kind {
		case datasource.ConstraintPrimaryKey:
			if len(t.PrimaryKey) > 0 {
				b.duplicate("primary key", t.ID()+"."+r.Name)
				continue
			}
			t.PrimaryKey = append([]string(nil), r.Columns...)
		case datasource.ConstraintForeignKey:
			if len(r.Columns) != len(r.RefColumns) {
				b.logger.Warn("Skipping foreign key with mismatched column lists",
					zap.String("table", t.ID()), zap.String("constraint", r.Name))
				continue
			}
			refSchema := r.RefSchema
			if refSchema == "" {
				refSchema = t.Schema
			}
			for i, col := range r.Columns {
				if t.Column(col) == nil {
					b.orphan("foreign key column", t.ColumnID(col))
					continue
				}
				t.ForeignKeys = append(t.ForeignKeys, models.ForeignKey{
					ConstraintName:   r.Name,
					Column:           col,
					ReferencedSchema: refSchema,
					ReferencedTable:  r.RefTable,
					ReferencedColumn: r.RefColumns[i],
				})
			}
		}
	}
}

// resolveForeignKeys flags references whose target table or column is not in
// the tree, typically because the connection cannot see it.
func (b *treeBuilder) resolveForeignKeys() {
	for _, t := range b.tree.Tables() {
		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			target, ok := b.tables[catalogKey(t.Database, fk.ReferencedSchema, fk.ReferencedTable)]
			if ok && target.Column(fk.ReferencedColumn) != nil {
				continue
			}
			fk.Unresolved = true
			b.logger.Debug("Unresolved foreign key",
				zap.String("column", t.ColumnID(fk.Column)),
				zap.String("references", fk.ReferencedSchema+"."+fk.ReferencedTable+"."+fk.ReferencedColumn))
		}
	}
}

// Ensure schemaIntrospector implements SchemaIntrospector at compile time.
var _ SchemaIntrospector = (*schemaIntrospector)(nil)
