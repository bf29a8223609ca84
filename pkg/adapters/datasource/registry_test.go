package datasource

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// stubAdapter records that it was built; it never connects.
type stubAdapter struct {
	SourceAdapter
	desc models.ConnectionDescriptor
}

func (s *stubAdapter) Kind() models.SourceKind { return s.desc.Kind }
func (s *stubAdapter) Close() error            { return nil }

const stubKind models.SourceKind = "stub"

func registerStub(t *testing.T, built *atomic.Int32) {
	t.Helper()
	Register(Registration{
		Info: AdapterInfo{Kind: stubKind, DisplayName: "Stub", Status: StatusAvailable},
		Factory: func(ctx context.Context, desc models.ConnectionDescriptor, connMgr *ConnectionManager, logger *zap.Logger) (SourceAdapter, error) {
			built.Add(1)
			return &stubAdapter{desc: desc}, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, stubKind)
		registryMu.Unlock()
	})
}

func TestFactory_NewAdapter(t *testing.T) {
	var built atomic.Int32
	registerStub(t, &built)

	factory := NewAdapterFactory(nil, zaptest.NewLogger(t))
	adapter, err := factory.NewAdapter(context.Background(), models.ConnectionDescriptor{
		Kind: stubKind, Host: "localhost", Database: "db",
	})
	require.NoError(t, err)
	assert.Equal(t, stubKind, adapter.Kind())
	assert.Equal(t, int32(1), built.Load())
}

func TestFactory_MongoIsComingSoon(t *testing.T) {
	factory := NewAdapterFactory(nil, nil)

	_, err := factory.NewAdapter(context.Background(), models.ConnectionDescriptor{
		Kind: models.SourceKindMongo, Host: "localhost", Database: "app",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedSourceKind)

	var unsupported *apperrors.UnsupportedSourceKind
	require.True(t, errors.As(err, &unsupported))
	assert.Contains(t, unsupported.Detail, "coming soon")
	assert.False(t, IsAvailable(models.SourceKindMongo))
}

func TestFactory_UnknownKind(t *testing.T) {
	factory := NewAdapterFactory(nil, nil)
	_, err := factory.NewAdapter(context.Background(), models.ConnectionDescriptor{Kind: "oracle", Host: "h", Database: "d"})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedSourceKind)
}

func TestFactory_InvalidDescriptorIsConfigError(t *testing.T) {
	var built atomic.Int32
	registerStub(t, &built)

	factory := NewAdapterFactory(nil, nil)
	_, err := factory.NewAdapter(context.Background(), models.ConnectionDescriptor{Kind: stubKind, Database: "db"})

	var connErr *apperrors.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, apperrors.ConnectionConfig, connErr.Reason)
	assert.Zero(t, built.Load(), "factory must not run for an invalid descriptor")
}

func TestRegisteredAdapters_Sorted(t *testing.T) {
	var built atomic.Int32
	registerStub(t, &built)

	infos := NewAdapterFactory(nil, nil).ListKinds()
	require.NotEmpty(t, infos)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, string(infos[i-1].Kind), string(infos[i].Kind))
	}

	reg, ok := GetRegistration(models.SourceKindMongo)
	require.True(t, ok)
	assert.Equal(t, StatusComingSoon, reg.Info.Status)
	assert.True(t, IsAvailable(stubKind))
}
