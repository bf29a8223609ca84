// Package mssql reads catalogs and samples from Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

const defaultPoolMaxConns = 4

// Adapter provides SQL Server connectivity with SQL or Azure AD service
// principal authentication. Sessions declare ApplicationIntent=ReadOnly.
type Adapter struct {
	*datasource.BaseSQLAdapter
	config  *Config
	connMgr *datasource.ConnectionManager
	logger  *zap.Logger
}

// NewAdapter creates a SQL Server adapter. The connection is opened on first use.
func NewAdapter(desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*Adapter, error) {
	cfg, err := FromDescriptor(desc)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindMSSQL), apperrors.ConnectionConfig, fmt.Errorf("invalid config: %w", err))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		config:  cfg,
		connMgr: connMgr,
		logger:  logger.Named("mssql"),
	}
	pools := datasource.NewPoolSource(desc, connMgr, a.openPool)
	a.BaseSQLAdapter = datasource.NewBaseSQLAdapter(desc, pools, datasource.SQLDialect{
		Kind:              models.SourceKindMSSQL,
		IsTimeout:         isQueryTimeout,
		ClassifyConnError: classifyConnError,
	}, a.logger)
	return a, nil
}

// buildConnectionString returns the driver name and URL for the configured auth method.
func buildConnectionString(cfg *Config) (string, string) {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("app name", "sourcesense")
	query.Add("ApplicationIntent", "ReadOnly")

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	host := config.ResolveHostForDocker(cfg.Host)

	if cfg.AuthMethod == AuthServicePrincipal {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", cfg.ClientID+"@"+cfg.TenantID)
		query.Add("password", cfg.ClientSecret)
		return "azuresql", fmt.Sprintf("sqlserver://%s:%d?%s", host, cfg.Port, query.Encode())
	}

	return "sqlserver", fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		query.Encode(),
	)
}

func (a *Adapter) openPool(ctx context.Context) (datasource.PoolConnector, error) {
	driverName, connStr := buildConnectionString(a.config)
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindMSSQL), apperrors.ConnectionConfig,
			fmt.Errorf("open %s connection: %w", a.config.AuthMethod, err))
	}

	maxConns := int32(defaultPoolMaxConns)
	if a.connMgr != nil {
		maxConns = a.connMgr.PoolMaxConns()
		db.SetConnMaxIdleTime(a.connMgr.TTL())
	}
	db.SetMaxOpenConns(int(maxConns))
	db.SetMaxIdleConns(int(maxConns))

	return datasource.NewSQLPoolWrapper(db, string(models.SourceKindMSSQL)), nil
}

// classifyConnError maps login failures (18456) to auth and an unknown
// database (4060) to configuration.
func classifyConnError(err error) apperrors.ConnectionReason {
	var msErr mssqldb.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case 18456, 18452:
			return apperrors.ConnectionAuth
		case 4060:
			return apperrors.ConnectionConfig
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "login failed") {
		return apperrors.ConnectionAuth
	}
	return apperrors.ConnectionNetwork
}

// isQueryTimeout recognizes lock request timeouts (1222), the only
// server-side statement limit a read-only session can hit.
func isQueryTimeout(err error) bool {
	var msErr mssqldb.Error
	return errors.As(err, &msErr) && msErr.Number == 1222
}

// Ensure Adapter implements SourceAdapter at compile time.
var _ datasource.SourceAdapter = (*Adapter)(nil)
