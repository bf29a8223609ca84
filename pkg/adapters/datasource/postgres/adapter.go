// Package postgres reads catalogs and samples from PostgreSQL sources.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/config"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

const defaultPoolMaxConns = 4

// Adapter provides PostgreSQL connectivity. The pool is opened on first use.
type Adapter struct {
	config  *Config
	desc    models.ConnectionDescriptor
	pools   *datasource.PoolSource
	connMgr *datasource.ConnectionManager
	logger  *zap.Logger
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// IMPORTANT: All user-provided fields must be URL-escaped to handle special characters
// in passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
// When running in Docker, localhost is resolved to host.docker.internal.
func buildConnectionString(cfg *Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	host := config.ResolveHostForDocker(cfg.Host)

	connStr := fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
	if cfg.ConnectTimeout > 0 {
		connStr += "&connect_timeout=" + strconv.Itoa(int(cfg.ConnectTimeout.Seconds()))
	}
	return connStr
}

// NewAdapter creates a PostgreSQL adapter. With a connection manager the pool
// is shared between runs; without one the adapter owns its pool.
func NewAdapter(desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (*Adapter, error) {
	cfg, err := FromDescriptor(desc)
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindPostgres), apperrors.ConnectionConfig, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		config:  cfg,
		desc:    desc,
		connMgr: connMgr,
		logger:  logger.Named("postgres"),
	}
	a.pools = datasource.NewPoolSource(desc, connMgr, a.openPool)
	return a, nil
}

// openPool parses the DSN and forces every session read-only.
func (a *Adapter) openPool(ctx context.Context) (datasource.PoolConnector, error) {
	poolCfg, err := pgxpool.ParseConfig(buildConnectionString(a.config))
	if err != nil {
		return nil, apperrors.NewConnectionError(string(models.SourceKindPostgres), apperrors.ConnectionConfig,
			errors.New(logging.SanitizeError(err)))
	}

	poolCfg.MaxConns = defaultPoolMaxConns
	if a.connMgr != nil {
		poolCfg.MaxConns = a.connMgr.PoolMaxConns()
		poolCfg.MinConns = a.connMgr.PoolMinConns()
	}
	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	poolCfg.ConnConfig.RuntimeParams["application_name"] = a.config.ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, a.connectionError(err)
	}
	return datasource.NewPostgresPoolWrapper(pool), nil
}

func (a *Adapter) pool(ctx context.Context) (*pgxpool.Pool, error) {
	connector, err := a.pools.Get(ctx)
	if err != nil {
		return nil, a.connectionError(err)
	}
	return datasource.GetPostgresPool(connector)
}

func (a *Adapter) Kind() models.SourceKind { return models.SourceKindPostgres }

// classifyConnError maps SQLSTATE class 28 to auth failures and a missing
// database to a configuration error. Everything else is treated as network.
func classifyConnError(err error) apperrors.ConnectionReason {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return apperrors.ConnectionAuth
		case pgErr.Code == "3D000":
			return apperrors.ConnectionConfig
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "no pg_hba.conf entry"):
		return apperrors.ConnectionAuth
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "cannot parse"):
		return apperrors.ConnectionConfig
	}
	return apperrors.ConnectionNetwork
}

func (a *Adapter) connectionError(err error) error {
	var connErr *apperrors.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	return apperrors.NewConnectionError(string(models.SourceKindPostgres), classifyConnError(err),
		errors.New(logging.SanitizeError(err)))
}

// TestConnection verifies the database is reachable with valid credentials.
// It checks:
// 1. Server connectivity (ping)
// 2. Database access (simple query)
// 3. Correct database name (to prevent connecting to wrong/default database)
func (a *Adapter) TestConnection(ctx context.Context) error {
	pool, err := a.pool(ctx)
	if err != nil {
		return err
	}
	if err := pool.Ping(ctx); err != nil {
		return a.connectionError(fmt.Errorf("ping failed: %w", err))
	}

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return a.connectionError(fmt.Errorf("test query failed: %w", err))
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return a.connectionError(fmt.Errorf("failed to get current database name: %w", err))
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return apperrors.NewConnectionError(string(models.SourceKindPostgres), apperrors.ConnectionConfig,
			fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB))
	}

	return nil
}

// queryEach runs a guarded catalog query bounded by the descriptor's query timeout.
func (a *Adapter) queryEach(ctx context.Context, query string, args []any, scan func(pgx.Rows) error) error {
	guarded, err := sqlguard.EnsureReadOnly(query)
	if err != nil {
		return err
	}
	pool, err := a.pool(ctx)
	if err != nil {
		return err
	}

	if a.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.QueryTimeout)
		defer cancel()
	}

	rows, err := pool.Query(ctx, guarded, args...)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration failed: %w", err)
	}
	return nil
}

// Close releases the adapter (but NOT the pool if managed).
func (a *Adapter) Close() error {
	return a.pools.Close()
}

// Ensure Adapter implements SourceAdapter at compile time.
var _ datasource.SourceAdapter = (*Adapter)(nil)
