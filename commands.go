package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/handlers"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/mcp"
	"github.com/ekaya-inc/sourcesense/pkg/mcp/tools"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/report"
)

// extractFlags are the connection and sampling flags of `extract`.
type extractFlags struct {
	kind        string
	host        string
	port        int
	database    string
	user        string
	passwordEnv string
	options     map[string]string

	sampleSize   int
	samplingMode string
	seed         int64
	format       string
	testOnly     bool
}

func newExtractCmd() *cobra.Command {
	var f extractFlags

	cmd := &cobra.Command{
		Use:   "extract [source]",
		Short: "Extract metadata from a source",
		Long: `Extract schema, column quality, semantic context and lineage from one source.

The source is either a name from the config file or described with --kind and
the connection flags. Passwords are read from the variable named by --password-env.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(f.format)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			desc, err := resolveDescriptor(a.cfg, name, f)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if f.testOnly {
				start := time.Now()
				if err := a.service.TestConnection(ctx, desc); err != nil {
					return fmt.Errorf("connection test failed: %s", logging.SanitizeError(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connection to %s OK (%s)\n", desc.Kind, time.Since(start).Round(time.Millisecond))
				return nil
			}

			profiling, err := profilingFromFlags(cmd, a.cfg.Extraction, f)
			if err != nil {
				return err
			}

			result, err := a.service.RunExtraction(ctx, desc, profiling)
			if err != nil {
				return err
			}
			if err := report.Write(cmd.OutOrStdout(), result, format); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
			if result.Status == models.StateFailed {
				return fmt.Errorf("extraction %s failed", result.RunID)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.kind, "kind", "", "source kind (postgres, mysql, sqlite, mssql)")
	flags.StringVar(&f.host, "host", "", "source host")
	flags.IntVar(&f.port, "port", 0, "source port (kind default when 0)")
	flags.StringVar(&f.database, "database", "", "database name, or file path for sqlite")
	flags.StringVar(&f.user, "user", "", "user name")
	flags.StringVar(&f.passwordEnv, "password-env", "", "environment variable holding the password")
	flags.StringToStringVar(&f.options, "option", nil, "adapter option as key=value (repeatable)")
	flags.IntVar(&f.sampleSize, "sample-size", 0, "rows sampled per column (config default when 0)")
	flags.StringVar(&f.samplingMode, "sampling-mode", "", "sampling mode: head or random")
	flags.Int64Var(&f.seed, "seed", 0, "seed for random sampling")
	flags.StringVar(&f.format, "format", string(report.FormatSummary), "output format: summary, json or yaml")
	flags.BoolVar(&f.testOnly, "test-only", false, "only test the connection")

	return cmd
}

// resolveDescriptor picks the named config source, or builds one from flags.
func resolveDescriptor(cfg *config.Config, name string, f extractFlags) (models.ConnectionDescriptor, error) {
	if name != "" {
		if f.kind != "" {
			return models.ConnectionDescriptor{}, errors.New("--kind cannot be combined with a named source")
		}
		src, ok := cfg.Source(name)
		if !ok {
			available := cfg.SourceNames()
			if len(available) == 0 {
				return models.ConnectionDescriptor{}, fmt.Errorf("source %q not found: no sources configured", name)
			}
			return models.ConnectionDescriptor{}, fmt.Errorf("source %q not found (available: %s)", name, strings.Join(available, ", "))
		}
		return src.Descriptor(cfg.Extraction.QueryTimeout), nil
	}

	if f.kind == "" {
		return models.ConnectionDescriptor{}, errors.New("either a source name or --kind is required")
	}

	src := config.SourceConfig{
		Name:        "cli",
		Kind:        f.kind,
		Host:        f.host,
		Port:        f.port,
		Database:    f.database,
		User:        f.user,
		PasswordEnv: f.passwordEnv,
		Options:     f.options,
	}
	if f.passwordEnv != "" {
		pw, ok := os.LookupEnv(f.passwordEnv)
		if !ok {
			return models.ConnectionDescriptor{}, fmt.Errorf("environment variable %s is not set", f.passwordEnv)
		}
		src.Password = pw
	}
	return src.Descriptor(cfg.Extraction.QueryTimeout), nil
}

// profilingFromFlags overlays explicitly set flags on the configured defaults.
func profilingFromFlags(cmd *cobra.Command, ext config.ExtractionConfig, f extractFlags) (models.ProfilingConfig, error) {
	p := ext.Profiling()
	flags := cmd.Flags()

	if flags.Changed("sample-size") {
		if f.sampleSize <= 0 {
			return p, errors.New("--sample-size must be positive")
		}
		p.SampleSize = f.sampleSize
	}
	if flags.Changed("sampling-mode") {
		mode := models.SamplingMode(strings.ToLower(strings.TrimSpace(f.samplingMode)))
		if mode != models.SamplingHead && mode != models.SamplingRandom {
			return p, fmt.Errorf("unknown sampling mode %q (want head or random)", f.samplingMode)
		}
		p.SamplingMode = mode
	}
	if flags.Changed("seed") {
		p.Seed = f.seed
	}
	return p.Normalize(ext.MaxSampleSize), nil
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and supported source kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(a.cfg.Sources) > 0 {
				writeSources(out, a.cfg.Sources)
				fmt.Fprintln(out)
			}
			report.WriteKinds(out, a.service.ListKinds())
			return nil
		},
	}
}

// writeSources prints configured sources without credentials.
func writeSources(w io.Writer, sources []config.SourceConfig) {
	sorted := append([]config.SourceConfig(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Kind", "Host", "Port", "Database"})
	for _, s := range sorted {
		port := ""
		if s.Port > 0 {
			port = fmt.Sprint(s.Port)
		}
		t.AppendRow(table.Row{s.Name, models.ParseSourceKind(s.Kind), s.Host, port, s.Database})
	}
	t.Render()
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the extraction tools over MCP (streamable HTTP)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx)
		},
	}
}

// newMux mounts health, MCP and (optionally) metrics routes.
func (a *app) newMux() *http.ServeMux {
	mcpServer := mcp.NewServer("sourcesense", a.cfg.Version, a.logger)
	tools.RegisterExtractionTools(mcpServer.MCP(), &tools.ExtractionToolDeps{
		Extraction:    a.service,
		Sources:       a.cfg,
		Defaults:      a.cfg.Extraction.Profiling(),
		MaxSampleSize: a.cfg.Extraction.MaxSampleSize,
		QueryTimeout:  a.cfg.Extraction.QueryTimeout,
		Logger:        a.logger,
	})
	tools.RegisterHealthTool(mcpServer.MCP(), a.cfg.Version, a.cfg)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.cfg, a.connMgr, a.logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, a.logger).RegisterRoutes(mux)
	if a.cfg.Metrics.Enabled {
		handlers.RegisterMetricsRoute(mux, a.cfg.Metrics.Path, a.registry)
	}
	return mux
}

func (a *app) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.newMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting MCP server",
			zap.String("addr", srv.Addr),
			zap.String("version", a.cfg.Version),
			zap.Strings("sources", a.cfg.SourceNames()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
