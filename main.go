package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/sourcesense/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/sourcesense/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/sourcesense/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/sourcesense/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/metrics"
	"github.com/ekaya-inc/sourcesense/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "sourcesense",
	Short:         "Metadata extraction for relational sources",
	Long:          "sourcesense connects to a relational source and extracts its schema, column quality, semantic context and lineage.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.Version = Version

	rootCmd.AddCommand(newExtractCmd(), newSourcesCmd(), newServeCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the process-wide components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	connMgr  *datasource.ConnectionManager
	registry *prometheus.Registry
	service  services.ExtractionService
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Int("sources", len(cfg.Sources)),
		zap.Duration("run_timeout", cfg.Extraction.RunTimeout),
		zap.Int("sample_size", cfg.Extraction.SampleSize),
		zap.Int("max_sample_size", cfg.Extraction.MaxSampleSize))

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Datasource.ConnectionTTLMinutes,
		PoolMaxConns: cfg.Datasource.PoolMaxConns,
		PoolMinConns: cfg.Datasource.PoolMinConns,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := services.NewExtractionService(
		datasource.NewAdapterFactory(connMgr, logger),
		services.ExtractionOptions{
			RunTimeout:    cfg.Extraction.RunTimeout,
			MaxSampleSize: cfg.Extraction.MaxSampleSize,
		},
		metrics.New(registry),
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		connMgr:  connMgr,
		registry: registry,
		service:  service,
	}, nil
}

func (a *app) Close() {
	if err := a.connMgr.Close(); err != nil {
		a.logger.Warn("Failed to close connection manager", zap.String("error", logging.SanitizeError(err)))
	}
	_ = a.logger.Sync()
}

// shutdownTimeout bounds graceful HTTP shutdown in `serve`.
const shutdownTimeout = 10 * time.Second
