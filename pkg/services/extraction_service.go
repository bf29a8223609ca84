package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/retry"
)

// ExtractionService runs the metadata pipeline against one source.
type ExtractionService interface {
	// RunExtraction connects, introspects, profiles, infers context and
	// resolves lineage, then assembles one result. Only fatal conditions
	// (unsupported kind, connection failure) return an error; degraded
	// facets are reported in the result's status.
	RunExtraction(ctx context.Context, desc models.ConnectionDescriptor, cfg models.ProfilingConfig) (*models.ExtractionResult, error)

	// TestConnection checks that desc is reachable with valid credentials.
	TestConnection(ctx context.Context, desc models.ConnectionDescriptor) error

	// ListKinds returns the registered source kinds and their status.
	ListKinds() []datasource.AdapterInfo
}

// ExtractionOptions bounds every run.
type ExtractionOptions struct {
	// RunTimeout is the per-invocation budget. Zero means no budget beyond ctx.
	RunTimeout    time.Duration
	MaxSampleSize int
}

type extractionService struct {
	factory      datasource.AdapterFactory
	opts         ExtractionOptions
	introspector SchemaIntrospector
	profiler     QualityProfiler
	inferrer     ContextInferrer
	resolver     LineageResolver
	assembler    MetadataAssembler
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewExtractionService wires the pipeline components. m may be nil.
func NewExtractionService(
	factory datasource.AdapterFactory,
	opts ExtractionOptions,
	m *metrics.Metrics,
	logger *zap.Logger,
) ExtractionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &extractionService{
		factory:      factory,
		opts:         opts,
		introspector: NewSchemaIntrospector(logger),
		profiler:     NewQualityProfiler(m, logger),
		inferrer:     NewContextInferrer(logger),
		resolver:     NewLineageResolver(logger),
		assembler:    NewMetadataAssembler(m, logger),
		metrics:      m,
		logger:       logger.Named("extraction"),
	}
}

func (s *extractionService) ListKinds() []datasource.AdapterInfo {
	return s.factory.ListKinds()
}

func (s *extractionService) TestConnection(ctx context.Context, desc models.ConnectionDescriptor) error {
	adapter, err := s.factory.NewAdapter(ctx, desc)
	if err != nil {
		return err
	}
	defer adapter.Close()
	return s.testConnection(ctx, adapter)
}

// testConnection retries once on a transient network failure.
func (s *extractionService) testConnection(ctx context.Context, adapter datasource.SourceAdapter) error {
	if err := retry.DoIfTransient(ctx, retry.OnceConfig(), func() error {
		return adapter.TestConnection(ctx)
	}); err != nil {
		return fmt.Errorf("test connection: %w", err)
	}
	return nil
}

func (s *extractionService) RunExtraction(ctx context.Context, desc models.ConnectionDescriptor, cfg models.ProfilingConfig) (*models.ExtractionResult, error) {
	start := time.Now()
	runID := uuid.New()
	kind := string(desc.Kind)
	logger := s.logger.With(zap.String("run_id", runID.String()), zap.String("kind", kind))

	cfg = cfg.Normalize(s.opts.MaxSampleSize)

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	fail := func(err error) (*models.ExtractionResult, error) {
		s.metrics.RecordRun(kind, "error", time.Since(start))
		logger.Error("Extraction failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	adapter, err := s.factory.NewAdapter(ctx, desc)
	if err != nil {
		return fail(err)
	}
	defer adapter.Close()

	if err := s.testConnection(ctx, adapter); err != nil {
		return fail(err)
	}

	logger.Info("Extraction started",
		zap.String("database", desc.Database),
		zap.Int("sample_size", cfg.SampleSize),
		zap.String("sampling_mode", string(cfg.SamplingMode)))

	facets := make(map[models.Facet]models.FacetStatus, len(models.Facets))

	var tree *models.SchemaTree
	facets[models.FacetSchema] = s.assembler.RunFacet(ctx, models.FacetSchema, func(ctx context.Context) (FacetOutcome, error) {
		t, err := s.introspector.Introspect(ctx, adapter)
		tree = t
		if err != nil {
			if t != nil {
				return FacetOutcome{State: models.StatePartial}, err
			}
			return FacetOutcome{}, err
		}
		return FacetOutcome{}, nil
	})

	var (
		report      *QualityReport
		annotations []models.ContextAnnotation
		edges       []models.LineageEdge
	)

	if tree == nil {
		for _, f := range []models.Facet{models.FacetQuality, models.FacetContext, models.FacetLineage} {
			facets[f] = models.FacetStatus{State: models.StateFailed, Reason: "schema unavailable"}
		}
	} else {
		// The tree is shared read-only from here on. Context inference
		// needs quality samples, lineage needs only the tree.
		var qualityStatus, contextStatus, lineageStatus models.FacetStatus
		g := new(errgroup.Group)
		g.Go(func() error {
			qualityStatus = s.assembler.RunFacet(ctx, models.FacetQuality, func(ctx context.Context) (FacetOutcome, error) {
				report = s.profiler.Profile(ctx, adapter, tree, cfg)
				if err := report.TransientFailure(); err != nil {
					return FacetOutcome{State: models.StateFailed}, err
				}
				return qualityOutcome(report), nil
			})

			var samples models.QualityMetrics
			if report != nil && qualityStatus.State != models.StateFailed {
				samples = report.Metrics
			}
			contextStatus = s.assembler.RunFacet(ctx, models.FacetContext, func(ctx context.Context) (FacetOutcome, error) {
				annotations = s.inferrer.Infer(tree, samples)
				if samples == nil {
					return FacetOutcome{State: models.StatePartial, Reason: "no quality samples, inferred from schema only"}, nil
				}
				return FacetOutcome{}, nil
			})
			return nil
		})
		g.Go(func() error {
			lineageStatus = s.assembler.RunFacet(ctx, models.FacetLineage, func(ctx context.Context) (FacetOutcome, error) {
				edges = s.resolver.Resolve(tree)
				if tree.Depth < models.DepthConstraints {
					return FacetOutcome{State: models.StatePartial, Reason: "constraints unavailable, foreign key edges missing"}, nil
				}
				return FacetOutcome{}, nil
			})
			return nil
		})
		_ = g.Wait()

		facets[models.FacetQuality] = qualityStatus
		facets[models.FacetContext] = contextStatus
		facets[models.FacetLineage] = lineageStatus
	}

	result := s.assembler.Assemble(AssembleInput{
		RunID:      runID,
		Descriptor: desc,
		Schema:     tree,
		Quality:    report,
		Context:    annotations,
		Lineage:    edges,
		Facets:     facets,
		Sampling: models.SamplingInfo{
			Mode:       cfg.SamplingMode,
			Seed:       cfg.Seed,
			SampleSize: cfg.SampleSize,
		},
	})

	for f, st := range result.Facets {
		s.metrics.RecordFacet(string(f), string(st.State), st.Duration)
	}
	s.metrics.RecordRun(kind, string(result.Status), time.Since(start))

	logger.Info("Extraction finished",
		zap.String("status", string(result.Status)),
		zap.Int("tables", result.Schema.TableCount()),
		zap.Int("profiled_columns", len(result.Quality)),
		zap.Int("lineage_edges", len(result.Lineage)),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// qualityOutcome summarizes profiling issues as a facet state.
func qualityOutcome(report *QualityReport) FacetOutcome {
	switch {
	case report.Cancelled:
		return FacetOutcome{State: models.StatePartial, Reason: "run budget exhausted during profiling"}
	case len(report.Issues) > 0:
		return FacetOutcome{
			State:  models.StatePartial,
			Reason: fmt.Sprintf("%d profiling issue(s) across %d column(s)", len(report.Issues), report.Columns),
		}
	}
	return FacetOutcome{}
}

// Ensure extractionService implements ExtractionService at compile time.
var _ ExtractionService = (*extractionService)(nil)
