package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/ekaya-inc/sourcesense/pkg/models"
)

// PoolSource hands an adapter its pool. With a ConnectionManager the pool is
// shared and outlives the adapter; without one the adapter owns a single
// pool, opened on first use and closed by Close.
type PoolSource struct {
	desc    models.ConnectionDescriptor
	connMgr *ConnectionManager
	open    PoolOpener

	mu     sync.Mutex
	owned  PoolConnector
	closed bool
}

func NewPoolSource(desc models.ConnectionDescriptor, connMgr *ConnectionManager, open PoolOpener) *PoolSource {
	return &PoolSource{desc: desc, connMgr: connMgr, open: open}
}

// Get returns the pool, opening it if needed.
func (p *PoolSource) Get(ctx context.Context) (PoolConnector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("adapter for %s is closed", p.desc.PoolKey())
	}
	if p.connMgr != nil {
		return p.connMgr.GetOrCreate(ctx, p.desc, p.open)
	}
	if p.owned == nil {
		pool, err := p.open(ctx)
		if err != nil {
			return nil, err
		}
		p.owned = pool
	}
	return p.owned, nil
}

// Close closes an owned pool. Shared pools are left to the ConnectionManager.
func (p *PoolSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.owned != nil {
		err := p.owned.Close()
		p.owned = nil
		return err
	}
	return nil
}
