package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionError(t *testing.T) {
	cause := errors.New("password authentication failed")
	err := fmt.Errorf("test connection: %w", NewConnectionError("postgres", ConnectionAuth, cause))

	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, cause)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, ConnectionAuth, connErr.Reason)
	assert.False(t, connErr.IsRetryable())
	assert.True(t, NewConnectionError("postgres", ConnectionNetwork, cause).IsRetryable())
	assert.Contains(t, err.Error(), "postgres")
}

func TestUnsupportedSourceKind(t *testing.T) {
	err := &UnsupportedSourceKind{Kind: "mongo", Detail: "coming soon"}
	assert.ErrorIs(t, err, ErrUnsupportedSourceKind)
	assert.Equal(t, `unsupported source kind "mongo": coming soon`, err.Error())
	assert.Equal(t, `unsupported source kind "oracle"`, (&UnsupportedSourceKind{Kind: "oracle"}).Error())
}

func TestPartialDataError(t *testing.T) {
	err := &PartialDataError{Table: "public.orders", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, ErrPartialData)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrConnection)
}

func TestProfilingTimeoutAndIntrospection(t *testing.T) {
	pt := &ProfilingTimeout{ColumnID: "shop.public.orders.amount", Err: context.DeadlineExceeded}
	assert.ErrorIs(t, pt, ErrProfilingTimeout)
	assert.ErrorIs(t, pt, context.DeadlineExceeded)

	ie := &IntrospectionError{Level: "tables", Depth: "schemas", Err: errors.New("permission denied")}
	assert.ErrorIs(t, ie, ErrIntrospection)
	assert.Contains(t, ie.Error(), "reached schemas")

	vw := &ValidationWarning{Facet: "quality", EntityID: "a.b.c.d", Message: "unknown column"}
	assert.ErrorIs(t, vw, ErrValidation)
}
