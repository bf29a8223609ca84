// Package mysql reads catalogs and samples from MySQL and MariaDB.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

const defaultPoolMaxConns = 4

// Adapter provides MySQL connectivity. Sampling runs in READ ONLY
// transactions and carries a MAX_EXECUTION_TIME hint.
type Adapter struct {
	*datasource.BaseSQLAdapter
	config  *Config
	connMgr *datasource.ConnectionManager
	logger  *zap.Logger
}

// NewAdapter creates a MySQL adapter. The connection is opened on first use.
func NewAdapter(desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*Adapter, error) {
	cfg, err := FromDescriptor(desc)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindMySQL), apperrors.ConnectionConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		config:  cfg,
		connMgr: connMgr,
		logger:  logger.Named("mysql"),
	}
	pools := datasource.NewPoolSource(desc, connMgr, a.openPool)
	a.BaseSQLAdapter = datasource.NewBaseSQLAdapter(desc, pools, datasource.SQLDialect{
		Kind:              models.SourceKindMySQL,
		ReadOnlyTx:        true,
		IsTimeout:         isQueryTimeout,
		ClassifyConnError: classifyConnError,
	}, a.logger)
	return a, nil
}

func (a *Adapter) openPool(ctx context.Context) (datasource.PoolConnector, error) {
	connector, err := mysqldriver.NewConnector(a.config.driverConfig())
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindMySQL), apperrors.ConnectionConfig,
			fmt.Errorf("build mysql connector: %w", err))
	}
	db := sql.OpenDB(connector)

	maxConns := int32(defaultPoolMaxConns)
	if a.connMgr != nil {
		maxConns = a.connMgr.PoolMaxConns()
		db.SetConnMaxIdleTime(a.connMgr.TTL())
	}
	db.SetMaxOpenConns(int(maxConns))
	db.SetMaxIdleConns(int(maxConns))

	return datasource.NewSQLPoolWrapper(db, string(models.SourceKindMySQL)), nil
}

// MySQL server error numbers used for classification.
const (
	errDBAccessDenied   = 1044
	errAccessDenied     = 1045
	errBadDB            = 1049
	errQueryInterrupted = 1317
	errQueryTimeout     = 3024
)

func classifyConnError(err error) apperrors.ConnectionReason {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errAccessDenied, errDBAccessDenied:
			return apperrors.ConnectionAuth
		case errBadDB:
			return apperrors.ConnectionConfig
		}
	}
	return apperrors.ConnectionNetwork
}

// isQueryTimeout recognizes MAX_EXECUTION_TIME expiry and server-side kills.
func isQueryTimeout(err error) bool {
	var myErr *mysqldriver.MySQLError
	return errors.As(err, &myErr) && (myErr.Number == errQueryTimeout || myErr.Number == errQueryInterrupted)
}

// Ensure Adapter implements SourceAdapter at compile time.
var _ datasource.SourceAdapter = (*Adapter)(nil)
