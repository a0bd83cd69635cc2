package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omnicloudorg/omniorchestrator/internal/app"
	"github.com/omnicloudorg/omniorchestrator/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "omniorchestrator",
	Short: "OmniOrchestrator control plane",
	Long: `OmniOrchestrator is the control plane for a multi-platform cloud:
app/build lifecycle, per-platform databases, autoscaling and backups,
served from a single binary running in "api" or "worker" mode.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

var serveModeFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane (api or worker mode)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if serveModeFlag != "" {
			cfg.Mode = serveModeFlag
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return app.Run(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveModeFlag, "mode", "", "run mode: api or worker (overrides OMNI_ORCH_MODE)")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the main database and every platform database",
	Long: `migrate brings the main "omni" database, and every already-registered
platform database, up to OMNI_ORCH_SCHEMA_VERSION. It exits once every
database is current; it does not start the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger := slog.Default()
		return app.Migrate(cmd.Context(), cfg, logger)
	},
}

var bootstrapCloudConfigPath string

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Bootstrap a cloud's hosts from a CloudConfig file",
	Long: `bootstrap reads a CloudConfig YAML file describing a cloud's SSH hosts
and drives them through host setup, network configuration, monitoring and
backup setup, printing progress until every host reaches a terminal state
or the command is interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapCloudConfigPath == "" {
			return fmt.Errorf("--config is required")
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return app.Bootstrap(ctx, bootstrapCloudConfigPath, os.Stdout)
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapCloudConfigPath, "config", "", "path to a CloudConfig YAML file")
}
