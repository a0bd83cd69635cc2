package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/omnicloudorg/omniorchestrator/internal/config"
	"github.com/omnicloudorg/omniorchestrator/internal/dbconn"
	"github.com/omnicloudorg/omniorchestrator/internal/dbschema"
	"github.com/omnicloudorg/omniorchestrator/internal/migration"
	"github.com/omnicloudorg/omniorchestrator/internal/platformdb"
)

// Migrate brings the main database and every already-registered platform
// database up to cfg.SchemaVersion, then returns. It is the `migrate`
// subcommand's implementation (spec.md §6: OMNI_ORCH_SCHEMA_VERSION,
// OMNI_ORCH_BYPASS_CONFIRM), kept out of Run since it does not start a
// server or the autoscaler.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := dbconn.New(ctx, cfg.DatabaseBaseURL, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.MainPool().Close()

	registry := dbschema.New(cfg.SQLDir)
	runner := migration.New(registry, logger, cfg.BypassConfirm)

	dbMgr, err := platformdb.New(ctx, conn, runner, cfg.SchemaVersion, logger)
	if err != nil {
		return fmt.Errorf("migrating main database: %w", err)
	}
	logger.Info("main database migrated", "version", cfg.SchemaVersion)

	platforms, err := dbMgr.ListPlatforms(ctx)
	if err != nil {
		return fmt.Errorf("listing platforms: %w", err)
	}

	for _, p := range platforms {
		if _, err := dbMgr.GetPlatformPool(ctx, p.ID, p.Name); err != nil {
			return fmt.Errorf("migrating platform %q: %w", p.Name, err)
		}
		logger.Info("platform database migrated", "platform", p.Name, "version", cfg.SchemaVersion)
	}

	return nil
}
