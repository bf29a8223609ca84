package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// fakeAdapter is a configurable in-memory SourceAdapter.
type fakeAdapter struct {
	kind models.SourceKind

	databases   []datasource.DatabaseRow
	schemas     []datasource.SchemaRow
	tables      []datasource.TableRow
	columns     []datasource.ColumnRow
	constraints []datasource.ConstraintRow

	// levelErrs fails a catalog level; failTimes limits how many calls fail
	// (0 means every call).
	levelErrs map[string]error
	failTimes map[string]int

	testErr       error
	testFailTimes int

	// values holds sampled column values keyed by "table.column".
	values map[string][]any
	// sampleErr overrides sampling for "table.column" keys.
	sampleErr map[string]error
	sample    func(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error)

	mu          sync.Mutex
	calls       map[string]int
	sampleOpts  []datasource.SampleOptions
	closeCalled bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		kind:      models.SourceKindPostgres,
		levelErrs: map[string]error{},
		failTimes: map[string]int{},
		values:    map[string][]any{},
		sampleErr: map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeAdapter) call(level string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[level]++
	err, ok := f.levelErrs[level]
	if !ok {
		return nil
	}
	if n := f.failTimes[level]; n > 0 && f.calls[level] > n {
		return nil
	}
	return err
}

func (f *fakeAdapter) callCount(level string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[level]
}

func (f *fakeAdapter) ListDatabases(ctx context.Context) ([]datasource.DatabaseRow, error) {
	if err := f.call("databases"); err != nil {
		return nil, err
	}
	return f.databases, nil
}

func (f *fakeAdapter) ListSchemas(ctx context.Context) ([]datasource.SchemaRow, error) {
	if err := f.call("schemas"); err != nil {
		return nil, err
	}
	return f.schemas, nil
}

func (f *fakeAdapter) ListTables(ctx context.Context) ([]datasource.TableRow, error) {
	if err := f.call("tables"); err != nil {
		return nil, err
	}
	return f.tables, nil
}

func (f *fakeAdapter) ListColumns(ctx context.Context) ([]datasource.ColumnRow, error) {
	if err := f.call("columns"); err != nil {
		return nil, err
	}
	return f.columns, nil
}

func (f *fakeAdapter) ListConstraints(ctx context.Context) ([]datasource.ConstraintRow, error) {
	if err := f.call("constraints"); err != nil {
		return nil, err
	}
	return f.constraints, nil
}

func (f *fakeAdapter) SampleRows(ctx context.Context, table datasource.TableIdent, columns []string, opts datasource.SampleOptions) (*datasource.SampleResult, error) {
	f.mu.Lock()
	f.calls["sample"]++
	f.sampleOpts = append(f.sampleOpts, opts)
	f.mu.Unlock()

	if f.sample != nil {
		return f.sample(ctx, table, columns, opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := table.Name + "." + columns[0]
	if err, ok := f.sampleErr[k]; ok {
		return nil, err
	}
	vals := f.values[k]
	if opts.Limit > 0 && len(vals) > opts.Limit {
		vals = vals[:opts.Limit]
	}
	rows := make([][]any, len(vals))
	for i, v := range vals {
		rows[i] = []any{v}
	}
	return &datasource.SampleResult{Columns: columns, Rows: rows}, nil
}

func (f *fakeAdapter) Kind() models.SourceKind { return f.kind }

func (f *fakeAdapter) TestConnection(ctx context.Context) error {
	f.mu.Lock()
	f.calls["test"]++
	n := f.calls["test"]
	f.mu.Unlock()
	if f.testErr != nil && (f.testFailTimes == 0 || n <= f.testFailTimes) {
		return f.testErr
	}
	return nil
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalled = true
	return nil
}

var _ datasource.SourceAdapter = (*fakeAdapter)(nil)

// fakeFactory hands out one adapter and counts requests.
type fakeFactory struct {
	adapter *fakeAdapter
	err     error

	mu    sync.Mutex
	calls int
}

func (f *fakeFactory) NewAdapter(ctx context.Context, desc models.ConnectionDescriptor) (datasource.SourceAdapter, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.adapter, nil
}

func (f *fakeFactory) ListKinds() []datasource.AdapterInfo {
	return []datasource.AdapterInfo{{Kind: models.SourceKindPostgres, DisplayName: "PostgreSQL", Status: datasource.StatusAvailable}}
}

var _ datasource.AdapterFactory = (*fakeFactory)(nil)

// ============================================================================
// Fixtures
// ============================================================================

func column(table, name, dataType string, nullable bool, pos int) datasource.ColumnRow {
	return datasource.ColumnRow{
		Database: "shop", Schema: "public", Table: table,
		Name: name, DataType: dataType, IsNullable: nullable, OrdinalPosition: pos,
	}
}

// newShopAdapter returns a catalog with customers and orders, where
// orders.customer_id references customers.id.
func newShopAdapter() *fakeAdapter {
	f := newFakeAdapter()
	f.databases = []datasource.DatabaseRow{{Name: "shop"}}
	f.schemas = []datasource.SchemaRow{{Database: "shop", Name: "public"}}
	f.tables = []datasource.TableRow{
		{Database: "shop", Schema: "public", Name: "customers", RowEstimate: 50},
		{Database: "shop", Schema: "public", Name: "orders", RowEstimate: 200},
	}
	f.columns = []datasource.ColumnRow{
		column("customers", "id", "integer", false, 1),
		column("customers", "email", "text", false, 2),
		column("orders", "id", "integer", false, 1),
		column("orders", "customer_id", "integer", false, 2),
		column("orders", "created_at", "timestamp with time zone", false, 3),
		column("orders", "amount", "numeric(10,2)", true, 4),
	}
	f.constraints = []datasource.ConstraintRow{
		{Database: "shop", Schema: "public", Table: "customers", Name: "customers_pkey", Kind: datasource.ConstraintPrimaryKey, Columns: []string{"id"}},
		{Database: "shop", Schema: "public", Table: "orders", Name: "orders_pkey", Kind: datasource.ConstraintPrimaryKey, Columns: []string{"id"}},
		{
			Database: "shop", Schema: "public", Table: "orders", Name: "orders_customer_id_fkey",
			Kind: datasource.ConstraintForeignKey, Columns: []string{"customer_id"},
			RefSchema: "public", RefTable: "customers", RefColumns: []string{"id"},
		},
	}

	ids := make([]any, 20)
	custIDs := make([]any, 20)
	amounts := make([]any, 20)
	created := make([]any, 20)
	emails := make([]any, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
		custIDs[i] = int64(i%5 + 1)
		amounts[i] = float64(10 * (i + 1))
		created[i] = "2024-01-" + twoDigits(i+1) + "T10:00:00Z"
		emails[i] = "user" + twoDigits(i) + "@example.com"
	}
	amounts[3] = nil
	f.values["customers.id"] = ids
	f.values["customers.email"] = emails
	f.values["orders.id"] = ids
	f.values["orders.customer_id"] = custIDs
	f.values["orders.created_at"] = created
	f.values["orders.amount"] = amounts
	return f
}

func twoDigits(n int) string {
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// shopTree introspects newShopAdapter.
func shopTree() *models.SchemaTree {
	tree, err := NewSchemaIntrospector(zap.NewNop()).Introspect(context.Background(), newShopAdapter())
	if err != nil {
		panic(err)
	}
	return tree
}
