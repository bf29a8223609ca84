package models

// RelationKind is how a lineage edge was derived.
type RelationKind string

const (
	RelationForeignKey     RelationKind = "foreign_key"
	RelationNamingMatch    RelationKind = "naming_match"
	RelationViewDependency RelationKind = "view_dependency"
)

// LineageEdge links two entities. Foreign key edges carry confidence 1.0;
// heuristic edges are always below 1.
type LineageEdge struct {
	Source     string       `json:"source_entity"`
	Target     string       `json:"target_entity"`
	Kind       RelationKind `json:"relation_kind"`
	Confidence float64      `json:"confidence"`
	Reason     string       `json:"reason,omitempty"`
}
