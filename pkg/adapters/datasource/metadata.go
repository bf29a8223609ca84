package datasource

// DatabaseRow is one database visible to the connection.
type DatabaseRow struct {
	Name string
}

// SchemaRow is one user schema.
type SchemaRow struct {
	Database string
	Name     string
}

// TableRow is one base table or view.
type TableRow struct {
	Database       string
	Schema         string
	Name           string
	IsView         bool
	RowEstimate    int64
	ViewDefinition string
}

// ColumnRow is one column of a table or view.
type ColumnRow struct {
	Database        string
	Schema          string
	Table           string
	Name            string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}

// ConstraintKind distinguishes the constraints sourcesense reads.
type ConstraintKind string

const (
	ConstraintPrimaryKey ConstraintKind = "primary_key"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ConstraintRow is a primary or foreign key. Columns and RefColumns are
// position aligned for composite keys.
type ConstraintRow struct {
	Database   string
	Schema     string
	Table      string
	Name       string
	Kind       ConstraintKind
	Columns    []string
	RefSchema  string
	RefTable   string
	RefColumns []string
}

// MergeConstraintColumn appends one key column to constraints. Catalogs that
// return one row per key column must be ordered by constraint and key
// position; a row starts a new constraint whenever schema, table or name
// changes from the previous one.
func MergeConstraintColumn(constraints []ConstraintRow, c ConstraintRow, column, refColumn string) []ConstraintRow {
	if n := len(constraints); n > 0 {
		last := &constraints[n-1]
		if last.Database == c.Database && last.Schema == c.Schema && last.Table == c.Table && last.Name == c.Name {
			last.Columns = append(last.Columns, column)
			if last.Kind == ConstraintForeignKey {
				last.RefColumns = append(last.RefColumns, refColumn)
			}
			return constraints
		}
	}
	c.Columns = []string{column}
	c.RefColumns = nil
	if c.Kind == ConstraintForeignKey {
		c.RefColumns = []string{refColumn}
	} else {
		c.RefSchema, c.RefTable = "", ""
	}
	return append(constraints, c)
}
