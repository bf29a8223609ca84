package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrConnection            = errors.New("connection error")
	ErrIntrospection         = errors.New("introspection error")
	ErrProfilingTimeout      = errors.New("profiling timeout")
	ErrValidation            = errors.New("validation warning")
	ErrUnsupportedSourceKind = errors.New("unsupported source kind")
	ErrPartialData           = errors.New("partial data")
	ErrUnsafeQuery           = errors.New("unsafe query")
)

// ConnectionReason classifies why a source could not be reached.
type ConnectionReason string

const (
	ConnectionAuth    ConnectionReason = "auth"
	ConnectionNetwork ConnectionReason = "network"
	ConnectionConfig  ConnectionReason = "config"
)

// ConnectionError is fatal for a run: nothing can be extracted without a connection.
type ConnectionError struct {
	Kind   string
	Reason ConnectionReason
	Err    error
}

func NewConnectionError(kind string, reason ConnectionReason, err error) *ConnectionError {
	return &ConnectionError{Kind: kind, Reason: reason, Err: err}
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s source (%s): %v", e.Kind, e.Reason, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// IsRetryable lets the retry package skip credential and configuration failures.
func (e *ConnectionError) IsRetryable() bool { return e.Reason == ConnectionNetwork }

// IntrospectionError reports the deepest level introspection reached before failing.
type IntrospectionError struct {
	Level string
	Depth string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspect %s (reached %s): %v", e.Level, e.Depth, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

func (e *IntrospectionError) Is(target error) bool { return target == ErrIntrospection }

// ProfilingTimeout is recorded when sampling one column exceeds its time limit.
type ProfilingTimeout struct {
	ColumnID string
	Err      error
}

func (e *ProfilingTimeout) Error() string {
	return fmt.Sprintf("profiling %s timed out", e.ColumnID)
}

func (e *ProfilingTimeout) Unwrap() error { return e.Err }

func (e *ProfilingTimeout) Is(target error) bool { return target == ErrProfilingTimeout }

func (e *ProfilingTimeout) IsRetryable() bool { return false }

// ValidationWarning describes an entry dropped while assembling results.
type ValidationWarning struct {
	Facet    string
	EntityID string
	Message  string
}

func (e *ValidationWarning) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Facet, e.EntityID, e.Message)
}

func (e *ValidationWarning) Is(target error) bool { return target == ErrValidation }

// UnsupportedSourceKind is raised before any connection is attempted.
type UnsupportedSourceKind struct {
	Kind   string
	Detail string
}

func (e *UnsupportedSourceKind) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unsupported source kind %q: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("unsupported source kind %q", e.Kind)
}

func (e *UnsupportedSourceKind) Is(target error) bool { return target == ErrUnsupportedSourceKind }

func (e *UnsupportedSourceKind) IsRetryable() bool { return false }

// PartialDataError signals a sampling query that was cut short. Rows read
// before the cutoff are still returned alongside it.
type PartialDataError struct {
	Table string
	Err   error
}

func (e *PartialDataError) Error() string {
	return fmt.Sprintf("partial data from %s: %v", e.Table, e.Err)
}

func (e *PartialDataError) Unwrap() error { return e.Err }

func (e *PartialDataError) Is(target error) bool { return target == ErrPartialData }

func (e *PartialDataError) IsRetryable() bool { return false }
