package models

// InferredRole is the semantic role assigned to a table or column.
type InferredRole string

const (
	RoleIdentifier InferredRole = "identifier"
	RoleMeasure    InferredRole = "measure"
	RoleDimension  InferredRole = "dimension"
	RoleTimestamp  InferredRole = "timestamp"
	RoleFreeText   InferredRole = "free_text"
	RoleUnknown    InferredRole = "unknown"
)

// EntityKind says whether an annotation targets a table or a column.
type EntityKind string

const (
	EntityTable  EntityKind = "table"
	EntityColumn EntityKind = "column"
)

// ContextAnnotation is the business context inferred for one entity.
type ContextAnnotation struct {
	EntityID     string       `json:"entity_id"`
	EntityKind   EntityKind   `json:"entity_kind"`
	InferredRole InferredRole `json:"inferred_role"`
	Confidence   float64      `json:"confidence"`
	Description  string       `json:"description"`
	Rule         string       `json:"rule,omitempty"`
}
