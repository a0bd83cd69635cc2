// Package platformdb implements the DatabaseManager facade (spec.md
// §4.4): platform CRUD against the main database, plus on-demand
// provisioning and migration of each platform's own database.
package platformdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/dbconn"
	"github.com/omnicloudorg/omniorchestrator/internal/dbschema"
	"github.com/omnicloudorg/omniorchestrator/internal/migration"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// Manager is the single entry point for platform lifecycle operations. It
// composes a dbconn.Manager (connection pooling) with a migration.Runner
// (schema application).
type Manager struct {
	conn      *dbconn.Manager
	runner    *migration.Runner
	logger    *slog.Logger
	schemaVer int

	migratedMu sync.RWMutex
	migrated   map[int64]bool
}

// New wires a Manager from its already-constructed dependencies and
// migrates the main database to schemaVersion.
func New(ctx context.Context, conn *dbconn.Manager, runner *migration.Runner, schemaVersion int, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{conn: conn, runner: runner, logger: logger, schemaVer: schemaVersion, migrated: make(map[int64]bool)}

	if err := runner.Migrate(ctx, conn.MainPool(), "main", dbschema.Main, schemaVersion); err != nil {
		return nil, fmt.Errorf("initializing main schema: %w", err)
	}

	return m, nil
}

// ListPlatforms returns every platform registered in the main database.
func (m *Manager) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	rows, err := m.conn.MainPool().Query(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM platforms
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing platforms: %w", err)
	}
	defer rows.Close()

	var platforms []models.Platform
	for rows.Next() {
		var p models.Platform
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning platform row: %w", err)
		}
		platforms = append(platforms, p)
	}
	return platforms, rows.Err()
}

// GetPlatform fetches a single platform by ID.
func (m *Manager) GetPlatform(ctx context.Context, id int64) (*models.Platform, error) {
	var p models.Platform
	err := m.conn.MainPool().QueryRow(ctx, `
		SELECT id, name, description, created_at, updated_at
		FROM platforms WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("retrieving platform %d: %w", id, err)
	}
	return &p, nil
}

// CreatePlatform inserts the platform row in the main database, then
// provisions and migrates its dedicated database. If provisioning fails,
// the main-database row is rolled back so the two stay consistent.
func (m *Manager) CreatePlatform(ctx context.Context, p models.Platform) (*models.Platform, error) {
	var created models.Platform
	err := m.conn.MainPool().QueryRow(ctx, `
		INSERT INTO platforms (name, description)
		VALUES ($1, $2)
		RETURNING id, name, description, created_at, updated_at
	`, p.Name, p.Description).Scan(&created.ID, &created.Name, &created.Description, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating platform entry: %w", err)
	}

	if _, err := m.GetPlatformPool(ctx, created.ID, created.Name); err != nil {
		// Best-effort cleanup of the half-created platform.
		_, _ = m.conn.MainPool().Exec(ctx, "DELETE FROM platforms WHERE id = $1", created.ID)
		return nil, fmt.Errorf("initializing platform database: %w", err)
	}

	m.logger.Info("platform created", "platform_id", created.ID, "name", created.Name)
	return &created, nil
}

// GetPlatformPool returns the pool for an existing platform, provisioning
// and migrating the underlying database on first access. It is the
// request-path hot path (tenant.Middleware calls it on every platform-scoped
// request), so on a cache hit it must not take the migration lock or round
// trip to the database: migration only runs the first time a platform's
// pool is created in this process, tracked by platformID in m.migrated.
func (m *Manager) GetPlatformPool(ctx context.Context, platformID int64, platformName string) (*pgxpool.Pool, error) {
	pool, err := m.conn.PlatformPool(ctx, platformID, platformName)
	if err != nil {
		return nil, fmt.Errorf("retrieving platform pool for %s: %w", platformName, err)
	}

	m.migratedMu.RLock()
	done := m.migrated[platformID]
	m.migratedMu.RUnlock()
	if done {
		return pool, nil
	}

	m.migratedMu.Lock()
	defer m.migratedMu.Unlock()

	// Re-check: another goroutine may have migrated this platform while we
	// waited for the write lock.
	if m.migrated[platformID] {
		return pool, nil
	}

	label := fmt.Sprintf("platform:%s", platformName)
	if err := m.runner.Migrate(ctx, pool, label, dbschema.Platform, m.schemaVer); err != nil {
		return nil, fmt.Errorf("migrating platform database %s: %w", platformName, err)
	}

	m.migrated[platformID] = true
	return pool, nil
}

// DeletePlatform removes the platform's entry from the main database.
// Per spec.md §6 (Open Questions), the per-platform database itself is
// not dropped: operators may want to inspect or archive it after the
// fact, and automatic DROP DATABASE against a possibly-live connection
// is unsafe to do unconditionally. The cached pool is closed so the
// process does not keep it open indefinitely.
func (m *Manager) DeletePlatform(ctx context.Context, platformID int64) error {
	p, err := m.GetPlatform(ctx, platformID)
	if err != nil {
		return err
	}

	if _, err := m.conn.MainPool().Exec(ctx, "DELETE FROM platforms WHERE id = $1", platformID); err != nil {
		return fmt.Errorf("deleting platform entry %d: %w", platformID, err)
	}

	m.conn.ClosePlatformPool(platformID)

	m.migratedMu.Lock()
	delete(m.migrated, platformID)
	m.migratedMu.Unlock()

	m.logger.Info("platform deleted", "platform_id", platformID, "name", p.Name)
	return nil
}
