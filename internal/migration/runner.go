// Package migration implements the MigrationRunner (spec.md §4.3): it
// brings a single database up to a target schema version using statement
// lists produced by a dbschema.Registry, tracking the applied version in
// a "metadata" key/value table.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/dbschema"
	"github.com/omnicloudorg/omniorchestrator/internal/telemetry"
)

const schemaVersionKey = "omni_schema_version"

// BypassConfirmValue is the OMNI_ORCH_BYPASS_CONFIRM setting that silences
// Migrate's "proceeding with schema migration" warning. Migrate has no
// interactive confirmation prompt: it applies the migration whether or not
// this value is set.
const BypassConfirmValue = "confirm"

// Runner applies schema migrations for one or more databases. Each
// database gets its own mutex so concurrent callers never race to apply
// the same migration twice, while migrations against different databases
// proceed independently.
type Runner struct {
	Registry      *dbschema.Registry
	Logger        *slog.Logger
	BypassConfirm string

	mu      sync.Mutex
	dbLocks map[string]*sync.Mutex
}

// New creates a Runner backed by registry.
func New(registry *dbschema.Registry, logger *slog.Logger, bypassConfirm string) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Registry:      registry,
		Logger:        logger,
		BypassConfirm: bypassConfirm,
		dbLocks:       make(map[string]*sync.Mutex),
	}
}

func (r *Runner) lockFor(dbLabel string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.dbLocks[dbLabel]
	if !ok {
		l = &sync.Mutex{}
		r.dbLocks[dbLabel] = l
	}
	return l
}

// Migrate brings dbLabel (a human-readable identifier used only for
// locking and logging, e.g. "main" or "platform:acme") up to
// targetVersion using artifact's statement lists. No-op if the database
// is already at targetVersion.
func (r *Runner) Migrate(ctx context.Context, pool *pgxpool.Pool, dbLabel string, artifact dbschema.Artifact, targetVersion int) error {
	lock := r.lockFor(dbLabel)
	lock.Lock()
	defer lock.Unlock()

	if err := r.ensureMetadataTable(ctx, pool); err != nil {
		return fmt.Errorf("initializing metadata system: %w", err)
	}

	current, err := r.currentVersion(ctx, pool)
	if err != nil {
		return fmt.Errorf("reading current schema version: %w", err)
	}

	if current == targetVersion {
		r.Logger.Info("schema version check: ok", "database", dbLabel, "version", current)
		return nil
	}

	r.Logger.Warn("schema version mismatch", "database", dbLabel, "current", current, "target", targetVersion)

	if r.BypassConfirm != BypassConfirmValue {
		r.Logger.Warn("proceeding with schema migration", "database", dbLabel, "bypass_confirm", r.BypassConfirm)
	}

	stmts, err := r.Registry.Load(artifact, targetVersion)
	if err != nil {
		return fmt.Errorf("loading %s schema statements: %w", artifact, err)
	}
	if err := r.exec(ctx, pool, stmts); err != nil {
		return fmt.Errorf("applying %s schema: %w", artifact, err)
	}

	sample, err := r.Registry.Sample(artifact, targetVersion)
	if err != nil {
		return fmt.Errorf("loading %s sample data: %w", artifact, err)
	}
	if err := r.exec(ctx, pool, sample); err != nil {
		return fmt.Errorf("applying %s sample data: %w", artifact, err)
	}

	if err := r.setVersion(ctx, pool, targetVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	telemetry.MigrationsAppliedTotal.WithLabelValues(string(artifact)).Inc()
	r.Logger.Info("schema migrated", "database", dbLabel, "from", current, "to", targetVersion)
	return nil
}

func (r *Runner) exec(ctx context.Context, pool *pgxpool.Pool, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing statement: %w", err)
		}
	}
	return nil
}

func (r *Runner) ensureMetadataTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS metadata (
			key   text PRIMARY KEY,
			value text NOT NULL
		)
	`)
	return err
}

func (r *Runner) currentVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var value string
	err := pool.QueryRow(ctx, "SELECT value FROM metadata WHERE key = $1", schemaVersionKey).Scan(&value)
	if err != nil {
		// No row yet means the database predates any migration.
		return 0, nil
	}

	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, nil
	}
	return version, nil
}

func (r *Runner) setVersion(ctx context.Context, pool *pgxpool.Pool, version int) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO metadata (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, schemaVersionKey, fmt.Sprintf("%d", version))
	return err
}
