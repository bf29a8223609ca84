package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// AdapterStatus tells callers whether a kind can be extracted today.
type AdapterStatus string

const (
	StatusAvailable  AdapterStatus = "available"
	StatusComingSoon AdapterStatus = "coming_soon"
)

// AdapterInfo describes a registered source kind.
type AdapterInfo struct {
	Kind        models.SourceKind `json:"kind"`
	DisplayName string            `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string            `json:"description"`
	Status      AdapterStatus     `json:"status"`
	DefaultPort int               `json:"default_port,omitempty"`
}

// AdapterFactoryFunc builds an adapter without touching the network.
type AdapterFactoryFunc func(ctx context.Context, desc models.ConnectionDescriptor, connMgr *ConnectionManager, logger *zap.Logger) (SourceAdapter, error)

// Registration pairs adapter info with its factory. Coming-soon kinds have
// no factory.
type Registration struct {
	Info    AdapterInfo
	Factory AdapterFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.SourceKind]Registration)
)

// Register is called by each adapter's init() function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Kind] = reg
}

// RegisteredAdapters returns info for all registered kinds sorted by kind.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// GetRegistration returns the registration for kind.
func GetRegistration(kind models.SourceKind) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[kind]
	return reg, ok
}

// IsAvailable reports whether kind is registered with a working factory.
func IsAvailable(kind models.SourceKind) bool {
	reg, ok := GetRegistration(kind)
	return ok && reg.Info.Status == StatusAvailable && reg.Factory != nil
}

func init() {
	Register(Registration{
		Info: AdapterInfo{
			Kind:        models.SourceKindMongo,
			DisplayName: "MongoDB",
			Description: "Document stores are not supported yet",
			Status:      StatusComingSoon,
			DefaultPort: 27017,
		},
	})
}
