package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// ContextInferrer derives business context from the schema and sample statistics.
type ContextInferrer interface {
	// Infer annotates every table and column of tree. samples may be nil or
	// incomplete; rules that need statistics are skipped for missing columns.
	// Output is sorted by entity ID and depends only on its inputs.
	Infer(tree *models.SchemaTree, samples models.QualityMetrics) []models.ContextAnnotation
}

type contextInferrer struct {
	logger *zap.Logger
}

// NewContextInferrer creates a rule-based context inferrer.
func NewContextInferrer(logger *zap.Logger) ContextInferrer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &contextInferrer{logger: logger.Named("context")}
}

const (
	// lowDistinctRatio marks a column as categorical when the sample holds at
	// least minSampleForStats values.
	lowDistinctRatio   = 0.1
	minSampleForStats  = 10
	longTextAvgLength  = 64
	unknownDescription = "No rule matched; role unknown."
)

var (
	idNamePattern       = regexp.MustCompile(`^(?i:id|.+_id|.+_uuid|.+_key)$|^[a-z0-9]+Id$`)
	timeNamePattern     = regexp.MustCompile(`(?i)(_at|_date|_on|_time|_ts)$|^(date|time|timestamp)$`)
	measureNamePattern  = regexp.MustCompile(`(?i)(amount|price|total|cost|qty|quantity|sum|balance|revenue|weight|score|rate|fee|tax|discount|salary|count)`)
	longTextNamePattern = regexp.MustCompile(`(?i)(description|comment|notes?|body|message|bio|summary|content|details|remarks)`)
	categoryNamePattern = regexp.MustCompile(`(?i)(status|type|category|kind|state|country|code|level|gender|currency|region|tier|segment|channel)$`)
)

// columnFacts is everything a rule may look at.
type columnFacts struct {
	table   *models.Table
	column  *models.Column
	family  models.TypeFamily
	quality *models.ColumnQuality
	fk      *models.ForeignKey
}

func (f columnFacts) lowDistinct() bool {
	q := f.quality
	return q != nil && q.DistinctRatio != nil && q.SampleSize >= minSampleForStats && *q.DistinctRatio <= lowDistinctRatio
}

func (f columnFacts) longText() bool {
	return f.quality != nil && f.quality.AvgLength != nil && *f.quality.AvgLength >= longTextAvgLength
}

func (f columnFacts) numeric() bool { return f.family == models.TypeFamilyNumeric }

func (f columnFacts) text() bool { return f.family == models.TypeFamilyText }

// contextRule assigns role with a fixed confidence when match holds.
type contextRule struct {
	name       string
	role       models.InferredRole
	confidence float64
	match      func(columnFacts) bool
	describe   func(columnFacts) string
}

// columnRules is evaluated in order; the first match wins.
var columnRules = []contextRule{
	{
		name: "primary_key", role: models.RoleIdentifier, confidence: 1.0,
		match: func(f columnFacts) bool { return f.table.IsPrimaryKey(f.column.Name) },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Primary key identifying each %s row.", singular(f.table.Name))
		},
	},
	{
		name: "foreign_key", role: models.RoleIdentifier, confidence: 0.95,
		match: func(f columnFacts) bool { return f.fk != nil },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("References %s.%s.", f.fk.ReferencedTable, f.fk.ReferencedColumn)
		},
	},
	{
		name: "identifier_name", role: models.RoleIdentifier, confidence: 0.8,
		match: func(f columnFacts) bool { return idNamePattern.MatchString(f.column.Name) },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Identifier %s, likely referencing another entity.", humanize(f.column.Name))
		},
	},
	{
		name: "temporal_type", role: models.RoleTimestamp, confidence: 0.9,
		match: func(f columnFacts) bool { return f.family == models.TypeFamilyTemporal },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Point in time recording %s.", humanize(f.column.Name))
		},
	},
	{
		name: "temporal_name", role: models.RoleTimestamp, confidence: 0.6,
		match: func(f columnFacts) bool { return timeNamePattern.MatchString(f.column.Name) },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Likely a point in time (%s) stored as %s.", humanize(f.column.Name), f.column.DataType)
		},
	},
	{
		name: "boolean_type", role: models.RoleDimension, confidence: 0.8,
		match: func(f columnFacts) bool { return f.family == models.TypeFamilyBoolean },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Flag indicating %s.", humanize(f.column.Name))
		},
	},
	{
		name: "measure_name", role: models.RoleMeasure, confidence: 0.85,
		match: func(f columnFacts) bool { return f.numeric() && measureNamePattern.MatchString(f.column.Name) },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Quantity measuring %s per %s.", humanize(f.column.Name), singular(f.table.Name))
		},
	},
	{
		name: "numeric_low_cardinality", role: models.RoleDimension, confidence: 0.6,
		match: func(f columnFacts) bool { return f.numeric() && f.lowDistinct() },
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Numeric code %s with few distinct values.", humanize(f.column.Name))
		},
	},
	{
		name: "numeric", role: models.RoleMeasure, confidence: 0.5,
		match: columnFacts.numeric,
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Numeric value %s.", humanize(f.column.Name))
		},
	},
	{
		name: "free_text", role: models.RoleFreeText, confidence: 0.7,
		match: func(f columnFacts) bool {
			return f.text() && (longTextNamePattern.MatchString(f.column.Name) || f.longText())
		},
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Free text %s.", humanize(f.column.Name))
		},
	},
	{
		name: "categorical_text", role: models.RoleDimension, confidence: 0.65,
		match: func(f columnFacts) bool {
			return f.text() && (categoryNamePattern.MatchString(f.column.Name) || f.lowDistinct())
		},
		describe: func(f columnFacts) string {
			return fmt.Sprintf("Category %s used to group %s.", humanize(f.column.Name), inflection.Plural(singular(f.table.Name)))
		},
	},
}

// roleOrder breaks ties when picking a table's dominant role.
var roleOrder = []models.InferredRole{
	models.RoleIdentifier,
	models.RoleMeasure,
	models.RoleDimension,
	models.RoleTimestamp,
	models.RoleFreeText,
	models.RoleUnknown,
}

func (c *contextInferrer) Infer(tree *models.SchemaTree, samples models.QualityMetrics) []models.ContextAnnotation {
	var out []models.ContextAnnotation

	for _, t := range tree.Tables() {
		roles := make(map[models.InferredRole]int)
		for _, col := range t.Columns {
			a := inferColumn(t, col, samples)
			roles[a.InferredRole]++
			out = append(out, a)
		}
		out = append(out, annotateTable(t, roles))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	c.logger.Debug("Context inferred", zap.Int("annotations", len(out)))
	return out
}

func inferColumn(t *models.Table, col *models.Column, samples models.QualityMetrics) models.ContextAnnotation {
	facts := columnFacts{
		table:  t,
		column: col,
		family: models.ClassifyType(col.DataType),
	}
	if q, ok := samples[t.ColumnID(col.Name)]; ok {
		facts.quality = &q
	}
	if fk, ok := t.ForeignKeyFor(col.Name); ok {
		facts.fk = &fk
	}

	for _, rule := range columnRules {
		if rule.match(facts) {
			return models.ContextAnnotation{
				EntityID:     t.ColumnID(col.Name),
				EntityKind:   models.EntityColumn,
				InferredRole: rule.role,
				Confidence:   rule.confidence,
				Description:  rule.describe(facts),
				Rule:         rule.name,
			}
		}
	}
	return models.ContextAnnotation{
		EntityID:     t.ColumnID(col.Name),
		EntityKind:   models.EntityColumn,
		InferredRole: models.RoleUnknown,
		Confidence:   0,
		Description:  unknownDescription,
	}
}

// annotateTable summarizes a table from its column roles. The table's role is
// the most common column role and its confidence is that role's share.
func annotateTable(t *models.Table, roles map[models.InferredRole]int) models.ContextAnnotation {
	a := models.ContextAnnotation{
		EntityID:     t.ID(),
		EntityKind:   models.EntityTable,
		InferredRole: models.RoleUnknown,
		Rule:         "dominant_role",
	}

	noun := "Table"
	if t.IsView() {
		noun = "View"
	}
	n := len(t.Columns)
	if n == 0 {
		a.Description = fmt.Sprintf("%s %s has no columns.", noun, t.Name)
		return a
	}

	var parts []string
	best, bestCount := models.RoleUnknown, 0
	for _, role := range roleOrder {
		count := roles[role]
		if count == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", count, role))
		if count > bestCount {
			best, bestCount = role, count
		}
	}

	a.InferredRole = best
	a.Confidence = float64(bestCount) / float64(n)
	a.Description = fmt.Sprintf("%s %s (%d %s): %s.", noun, t.Name, n, pluralize("column", n), strings.Join(parts, ", "))
	return a
}

func singular(name string) string {
	return inflection.Singular(strings.ToLower(name))
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return inflection.Plural(word)
}

func humanize(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", " ")
}

// Ensure contextInferrer implements ContextInferrer at compile time.
var _ ContextInferrer = (*contextInferrer)(nil)
