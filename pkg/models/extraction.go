package models

import (
	"time"

	"github.com/google/uuid"
)

// Facet names a stage of the extraction pipeline.
type Facet string

const (
	FacetSchema  Facet = "schema"
	FacetQuality Facet = "quality"
	FacetContext Facet = "context"
	FacetLineage Facet = "lineage"
)

// Facets lists every facet in pipeline order.
var Facets = []Facet{FacetSchema, FacetQuality, FacetContext, FacetLineage}

// FacetState is the outcome tag of a facet or a whole run.
type FacetState string

const (
	StateOK      FacetState = "ok"
	StatePartial FacetState = "partial"
	StateFailed  FacetState = "failed"
)

// FacetStatus describes how a single facet finished.
type FacetStatus struct {
	State    FacetState    `json:"state"`
	Reason   string        `json:"reason,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
}

// SamplingInfo records the sampling parameters a run actually used.
type SamplingInfo struct {
	Mode       SamplingMode `json:"mode"`
	Seed       int64        `json:"seed"`
	SampleSize int          `json:"sample_size"`
}

// ExtractionResult is the assembled output of one extraction run. The caller
// owns it; the pipeline keeps no reference after returning.
type ExtractionResult struct {
	RunID           uuid.UUID             `json:"run_id"`
	Source          ConnectionDescriptor  `json:"source"`
	Schema          *SchemaTree           `json:"schema,omitempty"`
	Quality         QualityMetrics        `json:"quality"`
	QualityIssues   []ProfilingIssue      `json:"quality_issues,omitempty"`
	Context         []ContextAnnotation   `json:"context"`
	Lineage         []LineageEdge         `json:"lineage"`
	Facets          map[Facet]FacetStatus `json:"facets"`
	Status          FacetState            `json:"status"`
	Warnings        []string              `json:"warnings,omitempty"`
	Sampling        SamplingInfo          `json:"sampling"`
	ExtractedAt     time.Time             `json:"extracted_at"`
	PipelineVersion string                `json:"pipeline_version"`
}
