package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/apperrors"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// AdapterFactory creates adapters from the registry.
type AdapterFactory interface {
	// NewAdapter returns the adapter for desc.Kind. Unknown and coming-soon
	// kinds fail with *apperrors.UnsupportedSourceKind before any connection
	// is attempted.
	NewAdapter(ctx context.Context, desc models.ConnectionDescriptor) (SourceAdapter, error)

	// ListKinds returns info for all registered kinds.
	ListKinds() []AdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
	logger  *zap.Logger
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(connMgr *ConnectionManager, logger *zap.Logger) AdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{
		connMgr: connMgr,
		logger:  logger.Named("datasource"),
	}
}

func (f *registryFactory) NewAdapter(ctx context.Context, desc models.ConnectionDescriptor) (SourceAdapter, error) {
	reg, ok := GetRegistration(desc.Kind)
	if !ok {
		return nil, &apperrors.UnsupportedSourceKind{Kind: string(desc.Kind), Detail: "not compiled in"}
	}
	if reg.Info.Status == StatusComingSoon || reg.Factory == nil {
		return nil, &apperrors.UnsupportedSourceKind{Kind: string(desc.Kind), Detail: reg.Info.DisplayName + " support is coming soon"}
	}
	if err := desc.Validate(); err != nil {
		return nil, apperrors.NewConnectionError(string(desc.Kind), apperrors.ConnectionConfig, err)
	}

	adapter, err := reg.Factory(ctx, desc, f.connMgr, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s adapter: %w", desc.Kind, err)
	}
	return adapter, nil
}

func (f *registryFactory) ListKinds() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
