package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction applied to each delay
	MaxSameErrorType int     // consecutive same-class failures before giving up early
}

// DefaultConfig returns defaults for pool creation and health checks:
// 3 retries starting at 100ms, doubling up to 5s, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

// OnceConfig allows a single retry after a short pause. Extraction facets use
// it so a dropped connection costs one extra attempt, not a backoff ladder.
func OnceConfig() *Config {
	return &Config{
		MaxRetries:   1,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   1.0,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// wait sleeps for the current delay and returns the next one, or the context
// error if ctx ends first.
func wait(ctx context.Context, cfg *Config, delay time.Duration) (time.Duration, error) {
	timer := time.NewTimer(applyJitter(delay, cfg.JitterFactor))
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return delay, ctx.Err()
	}

	next := time.Duration(float64(delay) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next, nil
}

// Do executes fn with exponential backoff, retrying every error.
// Returns nil on success, the last error once retries are exhausted, or the
// context error if ctx ends while waiting.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult is Do for functions that return a value, such as pool constructors.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt < cfg.MaxRetries {
			if delay, err = wait(ctx, cfg, delay); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}

// DoIfTransient retries only while IsTransient reports true. Permanent errors
// return immediately, and after MaxSameErrorType consecutive failures of the
// same class the error is escalated as permanent.
func DoIfTransient(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := DoWithResultIfTransient(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResultIfTransient is DoIfTransient for functions that return a value.
// The attempt count is reported through the returned Attempts.
func DoWithResultIfTransient[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (Attempts[T], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var out Attempts[T]
	var lastErr error
	delay := cfg.InitialDelay
	sameErrorCount := 0
	lastErrorType := ""

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out.Count++
		r, err := fn()
		out.Value = r
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return out, err
		}

		errorType := classifyErrorType(err)
		if errorType == lastErrorType {
			sameErrorCount++
			if cfg.MaxSameErrorType > 0 && sameErrorCount >= cfg.MaxSameErrorType {
				return out, fmt.Errorf("repeated error (%d times, type=%s): %w", sameErrorCount, errorType, err)
			}
		} else {
			sameErrorCount = 1
			lastErrorType = errorType
		}

		if attempt < cfg.MaxRetries {
			if delay, err = wait(ctx, cfg, delay); err != nil {
				return out, err
			}
		}
	}

	return out, lastErr
}

// Attempts carries a result together with how many calls produced it.
type Attempts[T any] struct {
	Value T
	Count int
}

// RetryableError is implemented by errors that know whether they are transient.
type RetryableError interface {
	error
	IsRetryable() bool
}

// transientSQLStates are PostgreSQL codes worth one more try: connection
// exceptions (class 08) are handled separately.
var transientSQLStates = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"deadlock",
	"network is unreachable",
	"invalid connection",
	"bad connection",
	"server closed the connection",
	"unexpected eof",
}

// IsTransient reports whether err is a temporary source failure that may
// succeed when retried. Authentication failures, SQL errors and exhausted
// context budgets are permanent.
//
// Checks run in this order:
//  1. context cancellation and deadline are never transient
//  2. errors implementing RetryableError decide for themselves
//  3. PostgreSQL SQLSTATE codes, network and driver errors
//  4. message patterns for drivers that only expose strings
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || transientSQLStates[pgErr.Code]
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// classifyErrorType buckets errors so repeated failures of one kind can be detected.
func classifyErrorType(err error) string {
	if err == nil {
		return "nil"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "sqlstate_" + pgErr.Code
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "broken pipe"):
		return "broken_pipe"
	case strings.Contains(msg, "too many connections"):
		return "capacity"
	case strings.Contains(msg, "deadlock"):
		return "deadlock"
	}
	return "unknown"
}
