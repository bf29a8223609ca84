package datasource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/logging"
	"github.com/ekaya-inc/sourcesense/pkg/models"
	"github.com/ekaya-inc/sourcesense/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultMaxPools             = 32
	DefaultPoolMaxConns         = 5
	DefaultHealthCheckAfter     = 30 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	MaxPools     int
	PoolMaxConns int32
	PoolMinConns int32
	// HealthCheckAfter is how long a pool may sit idle before it is pinged on reuse.
	HealthCheckAfter time.Duration
	// CleanupInterval overrides DefaultCleanupInterval (tests).
	CleanupInterval time.Duration
}

// ConnectionManager caches one pool per source and user. Pools are opened
// lazily on first use and closed after TTL of inactivity or on Close.
type ConnectionManager struct {
	mu               sync.RWMutex
	connections      map[string]*ManagedConnection // key: descriptor fingerprint
	ttl              time.Duration
	maxPools         int
	poolMaxConns     int32
	poolMinConns     int32
	healthCheckAfter time.Duration
	stopped          bool
	stopChan         chan struct{}
	logger           *zap.Logger
}

// ManagedConnection is a pooled connection and its last use time.
type ManagedConnection struct {
	pool     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = DefaultMaxPools
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns < 0 {
		cfg.PoolMinConns = 0
	}
	if cfg.HealthCheckAfter <= 0 {
		cfg.HealthCheckAfter = DefaultHealthCheckAfter
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &ConnectionManager{
		connections:      make(map[string]*ManagedConnection),
		ttl:              time.Duration(cfg.TTLMinutes) * time.Minute,
		maxPools:         cfg.MaxPools,
		poolMaxConns:     cfg.PoolMaxConns,
		poolMinConns:     cfg.PoolMinConns,
		healthCheckAfter: cfg.HealthCheckAfter,
		stopChan:         make(chan struct{}),
		logger:           logger.Named("connections"),
	}

	go manager.cleanupExpiredConnections(cfg.CleanupInterval)
	return manager
}

// PoolMaxConns is the per-pool connection ceiling adapters should apply.
func (m *ConnectionManager) PoolMaxConns() int32 { return m.poolMaxConns }

// PoolMinConns is the per-pool idle floor adapters should apply.
func (m *ConnectionManager) PoolMinConns() int32 { return m.poolMinConns }

// TTL is the idle lifetime of a pool.
func (m *ConnectionManager) TTL() time.Duration { return m.ttl }

// PoolKey fingerprints a descriptor. The password is hashed into the key so a
// credential change never reuses a pool opened with the old secret.
func PoolKey(desc models.ConnectionDescriptor) string {
	sum := sha256.Sum256([]byte(desc.Credentials.Password))
	return desc.PoolKey() + "#" + hex.EncodeToString(sum[:4])
}

// GetOrCreate returns the pool for desc, calling open when none exists or the
// cached pool fails its health check.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, desc models.ConnectionDescriptor, open PoolOpener) (PoolConnector, error) {
	key := PoolKey(desc)

	m.mu.RLock()
	if m.stopped {
		m.mu.RUnlock()
		return nil, fmt.Errorf("connection manager is closed")
	}
	managed, exists := m.connections[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()
		idle := time.Since(managed.lastUsed)
		if idle < m.healthCheckAfter {
			managed.lastUsed = time.Now()
			pool := managed.pool
			managed.mu.Unlock()
			return pool, nil
		}

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.pool.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("key", desc.PoolKey()),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(key)
			return m.createNewPool(ctx, key, desc, open)
		}

		managed.lastUsed = time.Now()
		pool := managed.pool
		managed.mu.Unlock()
		return pool, nil
	}

	return m.createNewPool(ctx, key, desc, open)
}

// createNewPool opens a pool with retry on transient failures.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createNewPool(ctx context.Context, key string, desc models.ConnectionDescriptor, open PoolOpener) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	if len(m.connections) >= m.maxPools {
		m.logger.Warn("max pools reached",
			zap.Int("current", len(m.connections)),
			zap.Int("max", m.maxPools),
		)
		return nil, fmt.Errorf("connection manager has reached its pool limit (%d)", m.maxPools)
	}

	opened, err := retry.DoWithResultIfTransient(ctx, &retry.Config{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}, func() (PoolConnector, error) {
		return open(ctx)
	})
	pool := opened.Value
	if err != nil {
		m.logger.Error("failed to open pool",
			zap.String("key", desc.PoolKey()),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	m.connections[key] = &ManagedConnection{
		pool:     pool,
		lastUsed: time.Now(),
	}

	m.logger.Info("opened connection pool",
		zap.String("key", desc.PoolKey()),
		zap.String("type", pool.GetType()),
		zap.Int("pools", len(m.connections)),
	)

	return pool, nil
}

// removeConnection removes a pool from the cache and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[key]; exists && managed != nil {
		if managed.pool != nil {
			_ = managed.pool.Close()
		}
		delete(m.connections, key)
		m.logger.Debug("removed connection", zap.String("key", key))
	}
}

func (m *ConnectionManager) cleanupExpiredConnections(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes pools that have not been used within TTL.
// Lock ordering: manager lock, then connection lock.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	var expiredKeys []string

	for key, managed := range m.connections {
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleTime := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idleTime > m.ttl {
			expiredKeys = append(expiredKeys, key)
			m.logger.Debug("marking connection for cleanup",
				zap.String("key", key),
				zap.Duration("idleTime", idleTime),
				zap.Duration("ttl", m.ttl),
			)
		}
	}

	for _, key := range expiredKeys {
		if managed := m.connections[key]; managed != nil && managed.pool != nil {
			_ = managed.pool.Close()
		}
		delete(m.connections, key)
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all pools and stops the cleanup goroutine. Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.pool != nil {
			_ = managed.pool.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		MaxPools:          m.maxPools,
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
	}

	for key, managed := range m.connections {
		stats.Keys = append(stats.Keys, key)
		if managed == nil {
			continue
		}
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		stats.ConnectionsByType[managed.pool.GetType()]++
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}
	sort.Strings(stats.Keys)

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	MaxPools          int            `json:"max_pools"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
	Keys              []string       `json:"-"`
}
