// Package dbconn implements the ConnectionManager (spec.md §4.2): a single
// main-database pool plus lazily-created, cached pools for per-platform
// databases named "omni_p_<platform name>".
package dbconn

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var platformNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

const mainDatabaseName = "omni"

// Manager owns the main database pool and caches one pool per platform
// database, created on first access.
type Manager struct {
	baseURL string
	logger  *slog.Logger

	mainPool *pgxpool.Pool

	mu    sync.RWMutex
	pools map[int64]*pgxpool.Pool
}

// New connects to the database server at baseURL (no database name
// suffix), ensures the main "omni" database exists, and opens its pool.
func New(ctx context.Context, baseURL string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := EnsureDatabaseExists(ctx, baseURL, mainDatabaseName); err != nil {
		return nil, err
	}

	mainPool, err := pgxpool.New(ctx, baseURL+"/"+mainDatabaseName)
	if err != nil {
		return nil, fmt.Errorf("connecting to main database: %w", err)
	}

	logger.Info("connected to main database", "database", mainDatabaseName)

	return &Manager{
		baseURL:  baseURL,
		logger:   logger,
		mainPool: mainPool,
		pools:    make(map[int64]*pgxpool.Pool),
	}, nil
}

// MainPool returns the pool for the process-wide "omni" database.
func (m *Manager) MainPool() *pgxpool.Pool {
	return m.mainPool
}

// DatabaseName returns the per-platform database name for platformName.
func DatabaseName(platformName string) string {
	return "omni_p_" + platformName
}

// PlatformPool returns the cached pool for platformID, creating the
// underlying database and opening a new pool on first access.
func (m *Manager) PlatformPool(ctx context.Context, platformID int64, platformName string) (*pgxpool.Pool, error) {
	if !platformNameRegex.MatchString(platformName) {
		return nil, fmt.Errorf("invalid platform name %q", platformName)
	}

	m.mu.RLock()
	if pool, ok := m.pools[platformID]; ok {
		m.mu.RUnlock()
		return pool, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check: another goroutine may have created it while we waited for
	// the write lock.
	if pool, ok := m.pools[platformID]; ok {
		return pool, nil
	}

	dbName := DatabaseName(platformName)
	if err := EnsureDatabaseExists(ctx, m.baseURL, dbName); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, m.baseURL+"/"+dbName)
	if err != nil {
		return nil, fmt.Errorf("connecting to platform database %s: %w", dbName, err)
	}

	m.logger.Info("opened platform database pool", "platform_id", platformID, "database", dbName)
	m.pools[platformID] = pool
	return pool, nil
}

// ClosePlatformPool closes and forgets the cached pool for platformID, if
// any. Used when a platform is deleted so the process does not keep an
// idle pool open indefinitely (spec.md §4.2 does not drop the database
// itself — see DESIGN.md).
func (m *Manager) ClosePlatformPool(platformID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool, ok := m.pools[platformID]
	if !ok {
		return
	}
	pool.Close()
	delete(m.pools, platformID)
}

// Close shuts down the main pool and every cached platform pool.
func (m *Manager) Close() {
	m.mainPool.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, pool := range m.pools {
		pool.Close()
		delete(m.pools, id)
	}
}

// EnsureDatabaseExists connects to the server (not a specific database)
// and issues CREATE DATABASE if it does not already exist. Postgres has
// no "IF NOT EXISTS" clause for CREATE DATABASE, so existence is checked
// against pg_database first.
func EnsureDatabaseExists(ctx context.Context, baseURL, dbName string) error {
	serverPool, err := pgxpool.New(ctx, baseURL+"/postgres")
	if err != nil {
		return fmt.Errorf("connecting to server to ensure database %s exists: %w", dbName, err)
	}
	defer serverPool.Close()

	var exists bool
	err = serverPool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking existence of database %s: %w", dbName, err)
	}
	if exists {
		return nil
	}

	// CREATE DATABASE cannot be parameterized; dbName is constrained by
	// platformNameRegex or is the fixed "omni" constant.
	if _, err := serverPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %q", dbName)); err != nil {
		return fmt.Errorf("creating database %s: %w", dbName, err)
	}

	return nil
}
