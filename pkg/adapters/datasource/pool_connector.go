package datasource

import "context"

// PoolConnector abstracts connection pool operations across drivers
// (pgxpool for PostgreSQL, database/sql for the others).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the source kind for logging/stats
	GetType() string
}

// PoolOpener creates a new pool for a descriptor. It is only called when the
// ConnectionManager has no healthy pool for the descriptor.
type PoolOpener func(ctx context.Context) (PoolConnector, error)
