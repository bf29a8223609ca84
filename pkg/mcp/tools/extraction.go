package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/services"
)

// SourceCatalog resolves configured sources by name. *config.Config
// satisfies it.
type SourceCatalog interface {
	Source(name string) (config.SourceConfig, bool)
	SourceNames() []string
}

// ExtractionToolDeps contains dependencies for the extraction tools.
type ExtractionToolDeps struct {
	Extraction    services.ExtractionService
	Sources       SourceCatalog
	Defaults      models.ProfilingConfig
	MaxSampleSize int
	QueryTimeout  time.Duration
	Logger        *zap.Logger
}

// RegisterExtractionTools registers the extraction and catalogue tools.
func RegisterExtractionTools(s *server.MCPServer, deps *ExtractionToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerExtractMetadataTool(s, deps)
	registerTestConnectionTool(s, deps)
	registerListSourcesTool(s, deps)
	registerListSourceKindsTool(s, deps)
}

func registerExtractMetadataTool(s *server.MCPServer, deps *ExtractionToolDeps) {
	tool := mcp.NewTool(
		"extract_metadata",
		mcp.WithDescription(
			"Extract structured metadata from a configured relational source: schema tree, "+
				"per-column quality metrics from bounded samples, inferred semantic roles, and lineage edges. "+
				"Facets that degrade are reported as partial with a reason; the run still returns a result. "+
				"Example: extract_metadata(source='warehouse', sample_size=500, sampling_mode='random', seed=7)",
		),
		mcp.WithString(
			"source",
			mcp.Required(),
			mcp.Description("Name of a configured source (see list_sources)"),
		),
		mcp.WithNumber(
			"sample_size",
			mcp.Description("Optional - Rows sampled per column (capped by the server maximum)"),
		),
		mcp.WithString(
			"sampling_mode",
			mcp.Description("Optional - 'head' (first rows in key order) or 'random' (seeded)"),
			mcp.Enum(string(models.SamplingHead), string(models.SamplingRandom)),
		),
		mcp.WithNumber(
			"seed",
			mcp.Description("Optional - Seed for random sampling; the same seed gives the same sample where the source supports it"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		desc, errResult := resolveSource(req, deps)
		if errResult != nil {
			return errResult, nil
		}

		cfg, err := profilingFromRequest(req, deps.Defaults)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		cfg = cfg.Normalize(deps.MaxSampleSize)

		result, err := deps.Extraction.RunExtraction(ctx, desc, cfg)
		if err != nil {
			deps.Logger.Warn("extract_metadata failed",
				zap.String("kind", string(desc.Kind)),
				zap.String("error", logging.SanitizeError(err)))
			return ErrorResultFor(err), nil
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extraction result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerTestConnectionTool(s *server.MCPServer, deps *ExtractionToolDeps) {
	tool := mcp.NewTool(
		"test_connection",
		mcp.WithDescription("Check that a configured source is reachable with valid credentials, without extracting anything."),
		mcp.WithString(
			"source",
			mcp.Required(),
			mcp.Description("Name of a configured source (see list_sources)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		desc, errResult := resolveSource(req, deps)
		if errResult != nil {
			return errResult, nil
		}

		start := time.Now()
		if err := deps.Extraction.TestConnection(ctx, desc); err != nil {
			return ErrorResultFor(err), nil
		}

		jsonResult, err := json.Marshal(map[string]any{
			"source":     getOptionalString(req, "source"),
			"kind":       desc.Kind,
			"ok":         true,
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal connection result: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

type sourceSummary struct {
	Name     string            `json:"name"`
	Kind     models.SourceKind `json:"kind"`
	Host     string            `json:"host,omitempty"`
	Port     int               `json:"port,omitempty"`
	Database string            `json:"database"`
}

func registerListSourcesTool(s *server.MCPServer, deps *ExtractionToolDeps) {
	tool := mcp.NewTool(
		"list_sources",
		mcp.WithDescription("List the configured sources that extract_metadata accepts. Credentials are never included."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		names := deps.Sources.SourceNames()
		out := make([]sourceSummary, 0, len(names))
		for _, name := range names {
			src, ok := deps.Sources.Source(name)
			if !ok {
				continue
			}
			out = append(out, sourceSummary{
				Name:     src.Name,
				Kind:     models.ParseSourceKind(src.Kind),
				Host:     src.Host,
				Port:     src.Port,
				Database: src.Database,
			})
		}

		jsonResult, err := json.Marshal(map[string]any{"sources": out})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sources: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

func registerListSourceKindsTool(s *server.MCPServer, deps *ExtractionToolDeps) {
	tool := mcp.NewTool(
		"list_source_kinds",
		mcp.WithDescription("List supported source kinds with their availability (available or coming_soon) and default ports."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kinds := deps.Extraction.ListKinds()
		sort.Slice(kinds, func(i, j int) bool { return kinds[i].Kind < kinds[j].Kind })

		jsonResult, err := json.Marshal(map[string]any{"kinds": kinds})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal source kinds: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	})
}

// resolveSource maps the required 'source' argument to a descriptor.
func resolveSource(req mcp.CallToolRequest, deps *ExtractionToolDeps) (models.ConnectionDescriptor, *mcp.CallToolResult) {
	name := getOptionalString(req, "source")
	if name == "" {
		return models.ConnectionDescriptor{}, NewErrorResult("invalid_parameters", "parameter 'source' is required and cannot be empty")
	}
	src, ok := deps.Sources.Source(name)
	if !ok {
		return models.ConnectionDescriptor{}, NewErrorResultWithDetails(
			"source_not_found",
			fmt.Sprintf("no source named %q is configured", name),
			map[string]any{"available": deps.Sources.SourceNames()},
		)
	}
	return src.Descriptor(deps.QueryTimeout), nil
}

// profilingFromRequest overlays request parameters on the configured defaults.
func profilingFromRequest(req mcp.CallToolRequest, defaults models.ProfilingConfig) (models.ProfilingConfig, error) {
	cfg := defaults
	cfg.EnabledMetrics = append([]string(nil), defaults.EnabledMetrics...)

	size, ok, err := getOptionalInt(req, "sample_size")
	if err != nil {
		return cfg, err
	}
	if ok {
		if size <= 0 {
			return cfg, fmt.Errorf("parameter 'sample_size' must be positive, got %d", size)
		}
		cfg.SampleSize = int(size)
	}

	if mode := strings.ToLower(getOptionalString(req, "sampling_mode")); mode != "" {
		switch models.SamplingMode(mode) {
		case models.SamplingHead, models.SamplingRandom:
			cfg.SamplingMode = models.SamplingMode(mode)
		default:
			return cfg, fmt.Errorf("parameter 'sampling_mode' must be 'head' or 'random', got %q", mode)
		}
	}

	seed, ok, err := getOptionalInt(req, "seed")
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.Seed = seed
	}
	return cfg, nil
}
