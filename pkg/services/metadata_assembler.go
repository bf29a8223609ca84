package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/retry"
)

// PipelineVersion is stamped on every ExtractionResult.
const PipelineVersion = "1.0.0"

// FacetOutcome is what a facet step reports when it finishes without a hard
// failure. A zero value means ok.
type FacetOutcome struct {
	State  models.FacetState
	Reason string
}

// FacetStep computes one facet. Returning an error marks the facet failed,
// unless the outcome carries a degraded state (a partial schema tree is
// still usable).
type FacetStep func(ctx context.Context) (FacetOutcome, error)

// AssembleInput carries every facet output of one run.
type AssembleInput struct {
	RunID      uuid.UUID
	Descriptor models.ConnectionDescriptor
	Schema     *models.SchemaTree
	Quality    *QualityReport
	Context    []models.ContextAnnotation
	Lineage    []models.LineageEdge
	Facets     map[models.Facet]models.FacetStatus
	Sampling   models.SamplingInfo
}

// MetadataAssembler merges facet outputs into one ExtractionResult and owns
// the retry policy for facet steps.
type MetadataAssembler interface {
	// RunFacet runs step, retrying once when it fails with a transient
	// source error. Authentication, configuration and unsupported-kind
	// errors are never retried.
	RunFacet(ctx context.Context, facet models.Facet, step FacetStep) models.FacetStatus

	// Assemble validates cross-facet references against the schema tree and
	// builds the result. Entries naming unknown entities are dropped and
	// reported as warnings; they never fail the run.
	Assemble(in AssembleInput) *models.ExtractionResult
}

type metadataAssembler struct {
	retryCfg *retry.Config
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewMetadataAssembler creates an assembler that retries facets once. m may be nil.
func NewMetadataAssembler(m *metrics.Metrics, logger *zap.Logger) MetadataAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &metadataAssembler{
		retryCfg: retry.OnceConfig(),
		metrics:  m,
		now:      time.Now,
		logger:   logger.Named("assembler"),
	}
}

func (a *metadataAssembler) RunFacet(ctx context.Context, facet models.Facet, step FacetStep) models.FacetStatus {
	start := a.now()
	attempts, err := retry.DoWithResultIfTransient(ctx, a.retryCfg, func() (FacetOutcome, error) {
		return step(ctx)
	})

	outcome := attempts.Value
	status := models.FacetStatus{
		State:    outcome.State,
		Reason:   outcome.Reason,
		Attempts: attempts.Count,
		Duration: a.now().Sub(start),
	}

	switch {
	case err != nil:
		if status.State != models.StatePartial {
			status.State = models.StateFailed
		}
		status.Reason = logging.SanitizeError(err)
	case status.State == "":
		status.State = models.StateOK
	}

	fields := []zap.Field{
		zap.String("facet", string(facet)),
		zap.String("state", string(status.State)),
		zap.Int("attempts", status.Attempts),
		zap.Duration("duration", status.Duration),
	}
	if status.State == models.StateOK {
		a.logger.Debug("Facet finished", fields...)
	} else {
		a.logger.Warn("Facet degraded", append(fields, zap.String("reason", status.Reason))...)
	}
	return status
}

func (a *metadataAssembler) Assemble(in AssembleInput) *models.ExtractionResult {
	result := &models.ExtractionResult{
		RunID:           in.RunID,
		Source:          in.Descriptor.Redacted(),
		Schema:          in.Schema,
		Quality:         make(models.QualityMetrics),
		Context:         []models.ContextAnnotation{},
		Lineage:         []models.LineageEdge{},
		Facets:          make(map[models.Facet]models.FacetStatus, len(models.Facets)),
		Sampling:        in.Sampling,
		ExtractedAt:     a.now().UTC(),
		PipelineVersion: PipelineVersion,
	}
	if result.RunID == uuid.Nil {
		result.RunID = uuid.New()
	}

	for _, f := range models.Facets {
		st, ok := in.Facets[f]
		if !ok {
			st = models.FacetStatus{State: models.StateFailed, Reason: "not run"}
		}
		result.Facets[f] = st
	}

	index := in.Schema.EntityIndex()
	known := func(id string) bool {
		_, ok := index[id]
		return ok
	}
	warn := func(facet models.Facet, id, msg string) {
		w := &apperrors.ValidationWarning{Facet: string(facet), EntityID: id, Message: msg}
		result.Warnings = append(result.Warnings, w.Error())
		a.metrics.RecordValidationWarning(string(facet))
		a.logger.Warn("Dropping entry not in schema tree",
			zap.String("facet", w.Facet),
			zap.String("entity", w.EntityID),
			zap.String("reason", w.Message))
	}

	if in.Quality != nil {
		ids := make([]string, 0, len(in.Quality.Metrics))
		for id := range in.Quality.Metrics {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if !known(id) {
				warn(models.FacetQuality, id, "column not in schema tree")
				continue
			}
			result.Quality[id] = in.Quality.Metrics[id]
		}
		for _, issue := range in.Quality.Issues {
			if known(issue.ColumnID) {
				result.QualityIssues = append(result.QualityIssues, issue)
			}
		}
	}

	for _, ann := range in.Context {
		if !known(ann.EntityID) {
			warn(models.FacetContext, ann.EntityID, "entity not in schema tree")
			continue
		}
		result.Context = append(result.Context, ann)
	}

	for _, edge := range in.Lineage {
		switch {
		case !known(edge.Source):
			warn(models.FacetLineage, edge.Source, "edge source not in schema tree")
		case !known(edge.Target):
			warn(models.FacetLineage, edge.Target, "edge target not in schema tree")
		default:
			result.Lineage = append(result.Lineage, edge)
		}
	}

	result.Status = overallStatus(result.Schema, result.Facets)
	return result
}

// overallStatus is ok only when every facet is ok, partial when a schema
// tree exists, and failed otherwise.
func overallStatus(tree *models.SchemaTree, facets map[models.Facet]models.FacetStatus) models.FacetState {
	if tree == nil || facets[models.FacetSchema].State == models.StateFailed {
		return models.StateFailed
	}
	for _, f := range models.Facets {
		if facets[f].State != models.StateOK {
			return models.StatePartial
		}
	}
	return models.StateOK
}

// Ensure metadataAssembler implements MetadataAssembler at compile time.
var _ MetadataAssembler = (*metadataAssembler)(nil)
