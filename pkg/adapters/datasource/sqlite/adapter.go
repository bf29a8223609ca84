// Package sqlite reads catalogs and samples from SQLite database files.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// schemaName is the schema every SQLite table lives in.
const schemaName = "main"

// Adapter provides SQLite connectivity over a single read-only connection.
type Adapter struct {
	*datasource.BaseSQLAdapter
	config *Config
	logger *zap.Logger
}

// NewAdapter creates a SQLite adapter. The file is opened on first use.
func NewAdapter(desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*Adapter, error) {
	cfg, err := FromDescriptor(desc)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindSQLite), apperrors.ConnectionConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		config: cfg,
		logger: logger.Named("sqlite"),
	}
	pools := datasource.NewPoolSource(desc, connMgr, a.openPool)
	a.BaseSQLAdapter = datasource.NewBaseSQLAdapter(desc, pools, datasource.SQLDialect{
		Kind:              models.SourceKindSQLite,
		IsTimeout:         isInterrupted,
		ClassifyConnError: classifyConnError,
	}, a.logger)
	return a, nil
}

func (a *Adapter) openPool(ctx context.Context) (datasource.PoolConnector, error) {
	info, err := os.Stat(a.config.Path)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindSQLite), apperrors.ConnectionConfig,
			fmt.Errorf("open sqlite database: %w", err))
	}
	if info.IsDir() {
		return nil, apperrors.NewConnectionError(string(models.SourceKindSQLite), apperrors.ConnectionConfig,
			fmt.Errorf("open sqlite database: %s is a directory", a.config.Path))
	}

	db, err := sql.Open("sqlite", a.config.readOnlyURI())
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindSQLite), apperrors.ConnectionConfig,
			fmt.Errorf("open sqlite: %w", err))
	}
	db.SetMaxOpenConns(1)
	return datasource.NewSQLPoolWrapper(db, string(models.SourceKindSQLite)), nil
}

// classifyConnError treats every SQLite open failure as configuration:
// there is no network and no credentials.
func classifyConnError(err error) apperrors.ConnectionReason {
	return apperrors.ConnectionConfig
}

// isInterrupted recognizes SQLITE_INTERRUPT, raised when a query's context ends.
func isInterrupted(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "interrupted")
}

// Ensure Adapter implements SourceAdapter at compile time.
var _ datasource.SourceAdapter = (*Adapter)(nil)
