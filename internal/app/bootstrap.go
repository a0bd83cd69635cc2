package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omnicloudorg/omniorchestrator/internal/bootstrap"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// pollInterval is how often Bootstrap re-checks host status while waiting
// for a deployment to finish.
const pollInterval = 2 * time.Second

// Bootstrap reads a CloudConfig from configPath, drives it through the
// bootstrap state machine, and writes progress to out until every host
// reaches a terminal state or ctx is cancelled. It is the `bootstrap`
// subcommand's implementation — a CLI-side trigger for the same state
// machine the HTTP bootstrap handler exposes, useful for standing up a
// cloud before OmniOrchestrator's API is the one driving it.
func Bootstrap(ctx context.Context, configPath string, out io.Writer) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading cloud config: %w", err)
	}

	var cfg models.CloudConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parsing cloud config: %w", err)
	}
	if cfg.CloudName == "" {
		return fmt.Errorf("cloud config missing cloud_name")
	}

	sm := bootstrap.NewStateMachine(nil)
	sm.Start(ctx, cfg)
	fmt.Fprintf(out, "bootstrapping cloud %q (%d hosts)\n", cfg.CloudName, len(cfg.SshHosts))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			hosts := sm.Hosts(cfg.CloudName)
			allDone := true
			for _, h := range hosts {
				fmt.Fprintf(out, "  %-20s %-12s %3d%%  %s\n", h.Name, h.Status, h.Progress, h.CurrentStep)
				if !h.Completed {
					allDone = false
				}
			}
			if allDone {
				fmt.Fprintln(out, "bootstrap complete")
				return nil
			}
		}
	}
}
