package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func annotationsByID(annotations []models.ContextAnnotation) map[string]models.ContextAnnotation {
	out := make(map[string]models.ContextAnnotation, len(annotations))
	for _, a := range annotations {
		out[a.EntityID] = a
	}
	return out
}

func TestContextInferrer_OrdersScenario(t *testing.T) {
	inferrer := NewContextInferrer(zaptest.NewLogger(t))

	got := annotationsByID(inferrer.Infer(shopTree(), nil))

	id := got["shop.public.orders.id"]
	assert.Equal(t, models.RoleIdentifier, id.InferredRole)
	assert.Equal(t, 1.0, id.Confidence)
	assert.Equal(t, "primary_key", id.Rule)
	assert.Equal(t, "Primary key identifying each order row.", id.Description)

	custID := got["shop.public.orders.customer_id"]
	assert.Equal(t, models.RoleIdentifier, custID.InferredRole)
	assert.Equal(t, "foreign_key", custID.Rule)
	assert.Equal(t, "References customers.id.", custID.Description)

	created := got["shop.public.orders.created_at"]
	assert.Equal(t, models.RoleTimestamp, created.InferredRole)
	assert.Equal(t, "temporal_type", created.Rule)

	amount := got["shop.public.orders.amount"]
	assert.Equal(t, models.RoleMeasure, amount.InferredRole)
	assert.Equal(t, "measure_name", amount.Rule)
	assert.Less(t, amount.Confidence, 1.0)

	table := got["shop.public.orders"]
	assert.Equal(t, models.EntityTable, table.EntityKind)
	assert.Equal(t, models.RoleIdentifier, table.InferredRole)
	assert.Equal(t, 0.5, table.Confidence)
	assert.Equal(t, "Table orders (4 columns): 2 identifier, 1 measure, 1 timestamp.", table.Description)
}

func TestContextInferrer_Deterministic(t *testing.T) {
	inferrer := NewContextInferrer(zaptest.NewLogger(t))
	tree := shopTree()
	samples := NewQualityProfiler(nil, zaptest.NewLogger(t)).
		Profile(t.Context(), newShopAdapter(), tree, testProfilingConfig()).Metrics

	first := inferrer.Infer(tree, samples)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, inferrer.Infer(tree, samples)); diff != "" {
			t.Fatalf("Infer() not deterministic (-first +again):\n%s", diff)
		}
	}

	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].EntityID, first[i].EntityID, "output sorted by entity ID")
	}
}

func TestContextInferrer_Rules(t *testing.T) {
	ratio := func(v float64) *float64 { return &v }
	length := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		column   models.Column
		quality  *models.ColumnQuality
		wantRole models.InferredRole
		wantRule string
	}{
		{"id suffix", models.Column{Name: "account_id", DataType: "bigint"}, nil, models.RoleIdentifier, "identifier_name"},
		{"uuid suffix", models.Column{Name: "session_uuid", DataType: "uuid"}, nil, models.RoleIdentifier, "identifier_name"},
		{"camel case id", models.Column{Name: "accountId", DataType: "int"}, nil, models.RoleIdentifier, "identifier_name"},
		{"paid is not an id", models.Column{Name: "paid", DataType: "boolean"}, nil, models.RoleDimension, "boolean_type"},
		{"date type", models.Column{Name: "birthday", DataType: "date"}, nil, models.RoleTimestamp, "temporal_type"},
		{"time name on text", models.Column{Name: "shipped_at", DataType: "varchar(32)"}, nil, models.RoleTimestamp, "temporal_name"},
		{"boolean", models.Column{Name: "is_active", DataType: "bool"}, nil, models.RoleDimension, "boolean_type"},
		{"measure name", models.Column{Name: "unit_price", DataType: "decimal(10,2)"}, nil, models.RoleMeasure, "measure_name"},
		{
			"low cardinality numeric",
			models.Column{Name: "priority", DataType: "smallint"},
			&models.ColumnQuality{SampleSize: 100, DistinctRatio: ratio(0.03)},
			models.RoleDimension, "numeric_low_cardinality",
		},
		{
			"low cardinality needs enough samples",
			models.Column{Name: "priority", DataType: "smallint"},
			&models.ColumnQuality{SampleSize: 3, DistinctRatio: ratio(0.03)},
			models.RoleMeasure, "numeric",
		},
		{"plain numeric", models.Column{Name: "priority", DataType: "integer"}, nil, models.RoleMeasure, "numeric"},
		{"long text name", models.Column{Name: "description", DataType: "text"}, nil, models.RoleFreeText, "free_text"},
		{
			"long average length",
			models.Column{Name: "payload", DataType: "text"},
			&models.ColumnQuality{SampleSize: 20, AvgLength: length(250)},
			models.RoleFreeText, "free_text",
		},
		{"category name", models.Column{Name: "order_status", DataType: "varchar(20)"}, nil, models.RoleDimension, "categorical_text"},
		{
			"low distinct text",
			models.Column{Name: "city", DataType: "text"},
			&models.ColumnQuality{SampleSize: 50, DistinctRatio: ratio(0.05)},
			models.RoleDimension, "categorical_text",
		},
		{"unmatched text", models.Column{Name: "city", DataType: "text"}, nil, models.RoleUnknown, ""},
		{"unmatched binary", models.Column{Name: "avatar", DataType: "bytea"}, nil, models.RoleUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := tt.column
			table := &models.Table{Database: "db", Schema: "s", Name: "things", Columns: []*models.Column{&col}}
			samples := models.QualityMetrics{}
			if tt.quality != nil {
				samples[table.ColumnID(col.Name)] = *tt.quality
			}

			got := inferColumn(table, &col, samples)
			assert.Equal(t, tt.wantRole, got.InferredRole)
			assert.Equal(t, tt.wantRule, got.Rule)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
			if tt.wantRole == models.RoleUnknown {
				assert.Equal(t, 0.0, got.Confidence)
			}
			assert.NotEmpty(t, got.Description)
		})
	}
}

func TestAnnotateTable(t *testing.T) {
	t.Run("zero columns", func(t *testing.T) {
		a := annotateTable(&models.Table{Database: "db", Schema: "s", Name: "empty"}, nil)
		assert.Equal(t, models.RoleUnknown, a.InferredRole)
		assert.Equal(t, 0.0, a.Confidence)
		assert.Equal(t, "Table empty has no columns.", a.Description)
	})

	t.Run("tie goes to earlier role", func(t *testing.T) {
		table := &models.Table{Name: "v", Kind: models.TableKindView, Columns: make([]*models.Column, 4)}
		a := annotateTable(table, map[models.InferredRole]int{
			models.RoleTimestamp: 2,
			models.RoleMeasure:   2,
		})
		assert.Equal(t, models.RoleMeasure, a.InferredRole)
		assert.Equal(t, 0.5, a.Confidence)
		assert.Equal(t, "View v (4 columns): 2 measure, 2 timestamp.", a.Description)
	})

	t.Run("single column", func(t *testing.T) {
		table := &models.Table{Name: "t", Columns: make([]*models.Column, 1)}
		a := annotateTable(table, map[models.InferredRole]int{models.RoleUnknown: 1})
		assert.Equal(t, models.RoleUnknown, a.InferredRole)
		assert.Equal(t, 1.0, a.Confidence)
		assert.Equal(t, "Table t (1 column): 1 unknown.", a.Description)
	})
}

func TestContextInferrer_EmptyTree(t *testing.T) {
	got := NewContextInferrer(zaptest.NewLogger(t)).Infer(&models.SchemaTree{}, nil)
	require.Empty(t, got)
}
