package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string {
	return "postgres"
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLPoolWrapper wraps a database/sql handle (MySQL, SQLite, SQL Server).
type SQLPoolWrapper struct {
	db   *sql.DB
	kind string
}

func NewSQLPoolWrapper(db *sql.DB, kind string) *SQLPoolWrapper {
	return &SQLPoolWrapper{db: db, kind: kind}
}

func (w *SQLPoolWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *SQLPoolWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLPoolWrapper) GetType() string {
	return w.kind
}

// GetDB returns the underlying *sql.DB
func (w *SQLPoolWrapper) GetDB() *sql.DB {
	return w.db
}

// GetPostgresPool extracts the *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper (got %s)", connector.GetType())
	}
	return wrapper.GetPool(), nil
}

// GetSQLDB extracts the *sql.DB from a PoolConnector.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*SQLPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql pool wrapper (got %s)", connector.GetType())
	}
	return wrapper.GetDB(), nil
}
