package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	sqlguard "github.com/ekaya-inc/sourcesense/pkg/sql"
)

// SQLDialect captures what differs between database/sql drivers.
type SQLDialect struct {
	Kind models.SourceKind
	// ReadOnlyTx wraps sampling in a READ ONLY transaction (drivers that support it).
	ReadOnlyTx bool
	// IsTimeout recognizes driver errors raised by a server-side statement timeout.
	IsTimeout func(error) bool
	// ClassifyConnError maps a connection failure to auth/network/config.
	ClassifyConnError func(error) apperrors.ConnectionReason
}

// BaseSQLAdapter implements the database/sql plumbing shared by the MySQL,
// SQLite and SQL Server adapters. Every statement passes the read-only guard.
type BaseSQLAdapter struct {
	desc    models.ConnectionDescriptor
	pools   *PoolSource
	dialect SQLDialect
	logger  *zap.Logger
}

func NewBaseSQLAdapter(desc models.ConnectionDescriptor, pools *PoolSource, dialect SQLDialect, logger *zap.Logger) *BaseSQLAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaseSQLAdapter{desc: desc, pools: pools, dialect: dialect, logger: logger}
}

func (b *BaseSQLAdapter) Kind() models.SourceKind { return b.dialect.Kind }

// Descriptor returns the descriptor the adapter was built from.
func (b *BaseSQLAdapter) Descriptor() models.ConnectionDescriptor { return b.desc }

// DB returns the pooled *sql.DB.
func (b *BaseSQLAdapter) DB(ctx context.Context) (*sql.DB, error) {
	pool, err := b.pools.Get(ctx)
	if err != nil {
		return nil, b.connectionError(err)
	}
	return GetSQLDB(pool)
}

func (b *BaseSQLAdapter) connectionError(err error) error {
	var connErr *apperrors.ConnectionError
	if errors.As(err, &connErr) {
		return err
	}
	reason := apperrors.ConnectionNetwork
	if b.dialect.ClassifyConnError != nil {
		reason = b.dialect.ClassifyConnError(err)
	}
	return apperrors.NewConnectionError(string(b.dialect.Kind), reason, errors.New(logging.SanitizeError(err)))
}

// TestConnection pings the source and runs SELECT 1.
func (b *BaseSQLAdapter) TestConnection(ctx context.Context) error {
	db, err := b.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return b.connectionError(err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return b.connectionError(err)
	}
	if one != 1 {
		return apperrors.NewConnectionError(string(b.dialect.Kind), apperrors.ConnectionConfig, fmt.Errorf("unexpected result from SELECT 1: %d", one))
	}
	return nil
}

// QueryEach runs a guarded catalog query and calls scan once per row.
func (b *BaseSQLAdapter) QueryEach(ctx context.Context, query string, args []any, scan func(*sql.Rows) error) error {
	guarded, err := sqlguard.EnsureReadOnly(query)
	if err != nil {
		return err
	}
	db, err := b.DB(ctx)
	if err != nil {
		return err
	}

	if b.desc.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.desc.QueryTimeout)
		defer cancel()
	}

	rows, err := db.QueryContext(ctx, guarded, args...)
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

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Sample runs a guarded sampling query bounded by opts.Limit and opts.Timeout.
// When the timeout or the caller's context cuts the query short, the rows read
// so far are returned with Partial set and a *apperrors.PartialDataError.
func (b *BaseSQLAdapter) Sample(ctx context.Context, table TableIdent, query string, args []any, opts SampleOptions) (*SampleResult, error) {
	guarded, err := sqlguard.EnsureReadOnly(query)
	if err != nil {
		return nil, err
	}
	db, err := b.DB(ctx)
	if err != nil {
		return nil, err
	}

	sampleCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		sampleCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var q sqlQuerier = db
	if b.dialect.ReadOnlyTx {
		tx, err := db.BeginTx(sampleCtx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			if cut := b.cutShort(sampleCtx, err); cut != nil {
				return &SampleResult{Partial: true}, &apperrors.PartialDataError{Table: table.String(), Err: cut}
			}
			return nil, fmt.Errorf("begin read-only transaction: %w", err)
		}
		// Sampling never writes; rollback ends the snapshot.
		defer func() { _ = tx.Rollback() }()
		q = tx
	}

	result := &SampleResult{}
	rows, err := q.QueryContext(sampleCtx, guarded, args...)
	if err != nil {
		if cut := b.cutShort(sampleCtx, err); cut != nil {
			result.Partial = true
			return result, &apperrors.PartialDataError{Table: table.String(), Err: cut}
		}
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample %s: read columns: %w", table, err)
	}
	result.Columns = cols

	for rows.Next() {
		if opts.Limit > 0 && len(result.Rows) >= opts.Limit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sample %s: scan: %w", table, err)
		}
		for i := range values {
			values[i] = NormalizeValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		if cut := b.cutShort(sampleCtx, err); cut != nil {
			result.Partial = true
			return result, &apperrors.PartialDataError{Table: table.String(), Err: cut}
		}
		return nil, fmt.Errorf("sample %s: %w", table, err)
	}
	return result, nil
}

// cutShort returns the cause when err came from a deadline, a cancellation or
// a server-side statement timeout, and nil for ordinary failures.
func (b *BaseSQLAdapter) cutShort(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if b.dialect.IsTimeout != nil && b.dialect.IsTimeout(err) {
		return err
	}
	return nil
}

// Close releases the adapter's pool.
func (b *BaseSQLAdapter) Close() error {
	return b.pools.Close()
}
