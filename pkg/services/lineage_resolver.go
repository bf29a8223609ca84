package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

// Confidence of heuristic lineage edges. Naming matches are divided by the
// number of candidate targets.
const (
	namingMatchConfidence     = 0.8
	qualifiedViewConfidence   = 0.9
	unqualifiedViewConfidence = 0.7
)

// LineageResolver derives directed relationships between schema entities.
type LineageResolver interface {
	// Resolve returns foreign key, naming match and view dependency edges.
	// Edges point from the dependent entity to the entity it depends on.
	// Cycles are kept; self-loops and duplicates are not. Output is sorted.
	Resolve(tree *models.SchemaTree) []models.LineageEdge
}

type lineageResolver struct {
	logger *zap.Logger
}

// NewLineageResolver creates a lineage resolver.
func NewLineageResolver(logger *zap.Logger) LineageResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lineageResolver{logger: logger.Named("lineage")}
}

// edgeSet collects edges, dropping self-loops and repeats of the same
// source, target and kind.
type edgeSet struct {
	seen  map[string]bool
	edges []models.LineageEdge
}

func (s *edgeSet) add(e models.LineageEdge) {
	if e.Source == e.Target {
		return
	}
	k := e.Source + "\x00" + e.Target + "\x00" + string(e.Kind)
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.edges = append(s.edges, e)
}

func (r *lineageResolver) Resolve(tree *models.SchemaTree) []models.LineageEdge {
	set := &edgeSet{seen: make(map[string]bool)}
	tables := tree.Tables()

	for _, t := range tables {
		r.foreignKeyEdges(tree, t, set)
	}
	for _, t := range tables {
		r.namingMatchEdges(tables, t, set)
	}
	for _, t := range tables {
		if t.IsView() {
			r.viewEdges(tables, t, set)
		}
	}

	sort.Slice(set.edges, func(i, j int) bool {
		a, b := set.edges[i], set.edges[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})

	r.logger.Debug("Lineage resolved", zap.Int("edges", len(set.edges)))
	return set.edges
}

func (r *lineageResolver) foreignKeyEdges(tree *models.SchemaTree, t *models.Table, set *edgeSet) {
	for _, fk := range t.ForeignKeys {
		if fk.Unresolved {
			continue
		}
		target := tree.FindTable(t.Database, fk.ReferencedSchema, fk.ReferencedTable)
		if target == nil {
			continue
		}
		set.add(models.LineageEdge{
			Source:     t.ColumnID(fk.Column),
			Target:     target.ColumnID(fk.ReferencedColumn),
			Kind:       models.RelationForeignKey,
			Confidence: 1.0,
			Reason:     fk.ConstraintName,
		})
	}
}

// idStem returns "customer" for "customer_id" and "CustomerID".
func idStem(column string) (string, bool) {
	lower := strings.ToLower(column)
	if len(lower) != len(column) {
		return "", false
	}
	for _, suffix := range []string{"_id", "id"} {
		if stem, ok := strings.CutSuffix(lower, suffix); ok && stem != "" {
			if suffix == "id" && column[len(stem):] != "Id" && column[len(stem):] != "ID" {
				// Only camel case may omit the underscore: "paid" is not p+id.
				return "", false
			}
			return strings.TrimSuffix(stem, "_"), true
		}
	}
	return "", false
}

// singlePK returns the only primary key column of t.
func singlePK(t *models.Table) (string, bool) {
	if len(t.PrimaryKey) != 1 {
		return "", false
	}
	return t.PrimaryKey[0], true
}

// namingMatchEdges links undeclared <stem>_id columns to the primary key of
// tables named after the stem, or failing that to tables whose primary key
// has the same column name. Columns with neither target are linked to the
// columns sharing their stem in other tables.
func (r *lineageResolver) namingMatchEdges(tables []*models.Table, t *models.Table, set *edgeSet) {
	for _, col := range t.Columns {
		if _, declared := t.ForeignKeyFor(col.Name); declared {
			continue
		}
		stem, ok := idStem(col.Name)
		if !ok {
			continue
		}
		want := inflection.Singular(stem)

		var candidates []*models.Table
		for _, other := range tables {
			if other == t || other.IsView() {
				continue
			}
			if _, ok := singlePK(other); !ok {
				continue
			}
			if inflection.Singular(strings.ToLower(other.Name)) == want {
				candidates = append(candidates, other)
			}
		}
		if len(candidates) == 0 {
			for _, other := range tables {
				if other == t || other.IsView() {
					continue
				}
				if pk, ok := singlePK(other); ok && strings.EqualFold(pk, col.Name) {
					candidates = append(candidates, other)
				}
			}
		}

		if len(candidates) == 0 {
			if t.IsView() || t.IsPrimaryKey(col.Name) {
				continue
			}
			r.sharedStemEdges(tables, t, col.Name, want, set)
			continue
		}

		for _, target := range candidates {
			pk, _ := singlePK(target)
			set.add(models.LineageEdge{
				Source:     t.ColumnID(col.Name),
				Target:     target.ColumnID(pk),
				Kind:       models.RelationNamingMatch,
				Confidence: namingMatchConfidence / float64(len(candidates)),
				Reason:     fmt.Sprintf("%s matches %s with no declared foreign key", col.Name, target.Name),
			})
		}
	}
}

// sharedStemEdges links column to undeclared columns with the same singular
// stem in other tables. Each pair is emitted once, from the lower table ID to
// the higher, so the edge direction does not depend on catalog order.
func (r *lineageResolver) sharedStemEdges(tables []*models.Table, t *models.Table, column, stem string, set *edgeSet) {
	type peer struct {
		table  *models.Table
		column string
	}
	var peers []peer
	for _, other := range tables {
		if other == t || other.IsView() {
			continue
		}
		for _, c := range other.Columns {
			if _, declared := other.ForeignKeyFor(c.Name); declared || other.IsPrimaryKey(c.Name) {
				continue
			}
			if s, ok := idStem(c.Name); ok && inflection.Singular(s) == stem {
				peers = append(peers, peer{table: other, column: c.Name})
			}
		}
	}

	for _, p := range peers {
		if t.ID() >= p.table.ID() {
			continue
		}
		set.add(models.LineageEdge{
			Source:     t.ColumnID(column),
			Target:     p.table.ColumnID(p.column),
			Kind:       models.RelationNamingMatch,
			Confidence: namingMatchConfidence / float64(len(peers)),
			Reason:     fmt.Sprintf("%s shared with %s with no declared foreign key", column, p.table.Name),
		})
	}
}

// viewEdges links a view to the tables its definition reads. Qualified
// references resolve within the view's database; bare names prefer the
// view's own schema and otherwise split confidence across every match.
func (r *lineageResolver) viewEdges(tables []*models.Table, view *models.Table, set *edgeSet) {
	if strings.TrimSpace(view.ViewDefinition) == "" {
		return
	}
	refs, err := sqlguard.TableReferences(view.ViewDefinition)
	if err != nil {
		r.logger.Debug("Skipping unparseable view definition",
			zap.String("view", view.ID()),
			zap.String("error", logging.SanitizeError(err)))
		return
	}

	for _, ref := range refs {
		var matches []*models.Table
		confidence := unqualifiedViewConfidence
		if ref.Qualified() {
			confidence = qualifiedViewConfidence
			for _, t := range tables {
				if t.Database == view.Database && strings.EqualFold(t.Schema, ref.Schema()) && strings.EqualFold(t.Name, ref.Name()) {
					matches = append(matches, t)
				}
			}
		} else {
			var sameSchema, anySchema []*models.Table
			for _, t := range tables {
				if t.Database != view.Database || !strings.EqualFold(t.Name, ref.Name()) {
					continue
				}
				anySchema = append(anySchema, t)
				if t.Schema == view.Schema {
					sameSchema = append(sameSchema, t)
				}
			}
			matches = anySchema
			if len(sameSchema) > 0 {
				matches = sameSchema
			}
		}

		for _, target := range matches {
			set.add(models.LineageEdge{
				Source:     view.ID(),
				Target:     target.ID(),
				Kind:       models.RelationViewDependency,
				Confidence: confidence / float64(len(matches)),
				Reason:     "view reads " + ref.String(),
			})
		}
	}
}

// Ensure lineageResolver implements LineageResolver at compile time.
var _ LineageResolver = (*lineageResolver)(nil)
