package models

import (
	"fmt"
	"strings"
)

// IntrospectionDepth records how far schema introspection descended.
type IntrospectionDepth int

const (
	DepthNone IntrospectionDepth = iota
	DepthDatabases
	DepthSchemas
	DepthTables
	DepthColumns
	DepthConstraints
)

var depthNames = []string{"none", "databases", "schemas", "tables", "columns", "constraints"}

func (d IntrospectionDepth) String() string {
	if d < 0 || int(d) >= len(depthNames) {
		return "unknown"
	}
	return depthNames[d]
}

// MarshalText renders the depth by name in JSON and YAML output.
func (d IntrospectionDepth) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *IntrospectionDepth) UnmarshalText(text []byte) error {
	for i, name := range depthNames {
		if name == string(text) {
			*d = IntrospectionDepth(i)
			return nil
		}
	}
	return fmt.Errorf("unknown introspection depth %q", text)
}

// TableKind distinguishes base tables from views.
type TableKind string

const (
	TableKindTable TableKind = "table"
	TableKindView  TableKind = "view"
)

// SchemaTree is the hierarchical catalog of a source. Once built it is shared
// read-only between facets.
type SchemaTree struct {
	Databases []*Database        `json:"databases"`
	Depth     IntrospectionDepth `json:"depth"`
}

type Database struct {
	Name    string    `json:"name"`
	Schemas []*Schema `json:"schemas"`
}

type Schema struct {
	Name   string   `json:"name"`
	Tables []*Table `json:"tables"`
}

// Table is a base table or view. Columns are ordered by ordinal position and
// unique by name.
type Table struct {
	Database       string       `json:"database"`
	Schema         string       `json:"schema"`
	Name           string       `json:"name"`
	Kind           TableKind    `json:"kind"`
	Columns        []*Column    `json:"columns"`
	PrimaryKey     []string     `json:"primary_key,omitempty"`
	ForeignKeys    []ForeignKey `json:"foreign_keys,omitempty"`
	RowEstimate    int64        `json:"row_estimate"`
	ViewDefinition string       `json:"view_definition,omitempty"`
}

type Column struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	IsNullable      bool   `json:"is_nullable"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// ForeignKey is a single column reference. Composite constraints are split
// into one entry per column pair. Unresolved marks references whose target is
// not present in the tree.
type ForeignKey struct {
	ConstraintName   string `json:"constraint_name,omitempty"`
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	Unresolved       bool   `json:"unresolved,omitempty"`
}

// TableID returns the fully qualified database.schema.table identifier.
func TableID(database, schema, table string) string {
	return database + "." + schema + "." + table
}

// ColumnID returns the fully qualified database.schema.table.column identifier.
func ColumnID(database, schema, table, column string) string {
	return TableID(database, schema, table) + "." + column
}

func (t *Table) ID() string { return TableID(t.Database, t.Schema, t.Name) }

func (t *Table) ColumnID(column string) string {
	return ColumnID(t.Database, t.Schema, t.Name, column)
}

// Column looks up a column by exact name.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (t *Table) IsView() bool { return t.Kind == TableKindView }

// IsPrimaryKey reports whether column is part of the declared primary key.
func (t *Table) IsPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

// ForeignKeyFor returns the declared foreign key on column, if any.
func (t *Table) ForeignKeyFor(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Tables returns every table and view in catalog order.
func (s *SchemaTree) Tables() []*Table {
	if s == nil {
		return nil
	}
	var out []*Table
	for _, db := range s.Databases {
		for _, sch := range db.Schemas {
			out = append(out, sch.Tables...)
		}
	}
	return out
}

// FindTable locates a table by database, schema and name. An empty database
// matches any database.
func (s *SchemaTree) FindTable(database, schema, name string) *Table {
	for _, t := range s.Tables() {
		if (database == "" || t.Database == database) && t.Schema == schema && t.Name == name {
			return t
		}
	}
	return nil
}

// HasEntity reports whether id names a table or a column in the tree.
func (s *SchemaTree) HasEntity(id string) bool {
	for _, t := range s.Tables() {
		tid := t.ID()
		if id == tid {
			return true
		}
		if strings.HasPrefix(id, tid+".") && t.Column(strings.TrimPrefix(id, tid+".")) != nil {
			return true
		}
	}
	return false
}

func (s *SchemaTree) TableCount() int { return len(s.Tables()) }

func (s *SchemaTree) ColumnCount() int {
	n := 0
	for _, t := range s.Tables() {
		n += len(t.Columns)
	}
	return n
}

// EntityIndex returns the set of all table and column identifiers.
func (s *SchemaTree) EntityIndex() map[string]struct{} {
	idx := make(map[string]struct{})
	for _, t := range s.Tables() {
		idx[t.ID()] = struct{}{}
		for _, c := range t.Columns {
			idx[t.ColumnID(c.Name)] = struct{}{}
		}
	}
	return idx
}
