package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/notify"
	"github.com/omnicloudorg/omniorchestrator/internal/telemetry"
)

// Coordinator produces one consistent backup set spanning the
// heterogeneous node types discovered in an environment (spec.md §4.7).
type Coordinator struct {
	Client   NetworkClient
	Iso      *IsoManager
	Notifier *notify.Notifier // optional
	Logger   *slog.Logger
}

// NewCoordinator builds a Coordinator. iso may be nil only in tests that
// don't exercise finalization.
func NewCoordinator(client NetworkClient, iso *IsoManager, notifier *notify.Notifier, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{Client: client, Iso: iso, Notifier: notifier, Logger: logger}
}

// StartBackup runs the full dispatch described in spec.md §4.7: discover
// nodes, fan out phase-ordered jobs, wait for quiescence, and finalize the
// manifest on success.
func (c *Coordinator) StartBackup(ctx context.Context, b *models.Backup) error {
	start := time.Now()
	c.Logger.Info("backup starting", "backup", b.Name, "environment", b.SourceEnvironment)
	b.Status = models.BackupInProgress

	backupDir, err := c.initializeBackupEnvironment(b)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "initializing backup environment", err)
	}

	nodes, err := c.Client.DiscoverEnvironment(ctx, b.SourceEnvironment)
	if err != nil {
		return apierr.Wrap(apierr.JobFailed, "discovering environment nodes", err)
	}

	registry := newJobRegistry()
	updates := make(chan models.BackupJobStatus, 100)

	var aggWG sync.WaitGroup
	aggWG.Add(1)
	go func() {
		defer aggWG.Done()
		for status := range updates {
			registry.upsert(status)
			c.logStatus(status)
		}
	}()

	c.dispatchPhases(ctx, b, nodes, backupDir, updates)

	close(updates)
	aggWG.Wait()

	jobs := registry.snapshot()
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].NodeID != jobs[j].NodeID {
			return jobs[i].NodeID < jobs[j].NodeID
		}
		return jobs[i].ComponentType < jobs[j].ComponentType
	})

	telemetry.BackupDuration.WithLabelValues(b.BackupType).Observe(time.Since(start).Seconds())

	var failed []models.BackupJobStatus
	for _, j := range jobs {
		if j.Status == models.JobFailed {
			failed = append(failed, j)
		}
	}

	if len(failed) > 0 {
		errMsg := fmt.Sprintf("%d backup jobs failed. First error: %s", len(failed), failed[0].Error)
		b.Status = models.BackupFailed
		b.Metadata = map[string]any{"error": errMsg}
		c.Logger.Error("backup failed", "backup", b.Name, "error", errMsg)
		if c.Notifier != nil {
			_ = c.Notifier.PostBackupEvent(ctx, notify.BackupEvent{BackupID: 0, Type: b.BackupType, Status: b.Status, Message: errMsg})
		}
		return apierr.New(apierr.JobFailed, errMsg)
	}

	c.finalize(b, backupDir, jobs)

	if err := c.Iso.CreateBackupManifest(b, backupDir); err != nil {
		return apierr.Wrap(apierr.Internal, "writing backup manifest", err)
	}
	_ = os.RemoveAll(filepath.Join(backupDir, "temp"))

	b.Status = models.BackupSuccess
	c.Logger.Info("backup completed", "backup", b.Name, "size_bytes", b.SizeBytes)
	if c.Notifier != nil {
		_ = c.Notifier.PostBackupEvent(ctx, notify.BackupEvent{Type: b.BackupType, Status: b.Status})
	}
	return nil
}

// initializeBackupEnvironment creates the backup directory skeleton
// (isos/, metadata/, temp/) under b.StorageLocation.
func (c *Coordinator) initializeBackupEnvironment(b *models.Backup) (string, error) {
	backupDir := filepath.Join(b.StorageLocation, fmt.Sprintf("backup-%s", b.CreatedAt.Format("20060102-150405")))
	for _, sub := range []string{"isos", "metadata", "temp"} {
		if err := os.MkdirAll(filepath.Join(backupDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	return backupDir, nil
}

// dispatchPhases runs the six phases of spec.md §4.7 in order; within a
// phase, jobs for different nodes/apps run concurrently, and the
// coordinator waits for the phase's WaitGroup before moving on.
func (c *Coordinator) dispatchPhases(ctx context.Context, b *models.Backup, nodes []Node, backupDir string, updates chan<- models.BackupJobStatus) {
	byType := make(map[NodeType][]Node)
	for _, n := range nodes {
		byType[n.Type] = append(byType[n.Type], n)
	}

	// 1. System core from the first Master.
	c.runPhase(func(wg *sync.WaitGroup) {
		if masters := byType[NodeMaster]; len(masters) > 0 {
			wg.Add(1)
			go c.runJob(ctx, wg, b, masters[0], ComponentSystemCore, nil, backupDir, updates)
		}
	})

	// 2. One director backup per Director.
	c.runPhase(func(wg *sync.WaitGroup) {
		for _, n := range byType[NodeDirector] {
			wg.Add(1)
			go c.runJob(ctx, wg, b, n, ComponentDirector, nil, backupDir, updates)
		}
	})

	// 3. One orchestrator backup per Orchestrator.
	c.runPhase(func(wg *sync.WaitGroup) {
		for _, n := range byType[NodeOrchestrator] {
			wg.Add(1)
			go c.runJob(ctx, wg, b, n, ComponentOrchestrator, nil, backupDir, updates)
		}
	})

	// 4. Network config from the first NetworkController.
	c.runPhase(func(wg *sync.WaitGroup) {
		if controllers := byType[NodeNetworkController]; len(controllers) > 0 {
			wg.Add(1)
			go c.runJob(ctx, wg, b, controllers[0], ComponentNetworkConfig, nil, backupDir, updates)
		}
	})

	// 5. App definitions from the first ApplicationCatalog, filtered by
	// included_apps if present.
	c.runPhase(func(wg *sync.WaitGroup) {
		if catalogs := byType[NodeApplicationCatalog]; len(catalogs) > 0 {
			config := map[string]any{}
			if len(b.IncludedApps) > 0 {
				config["included_apps"] = b.IncludedApps
			}
			wg.Add(1)
			go c.runJob(ctx, wg, b, catalogs[0], ComponentAppDefinitions, config, backupDir, updates)
		}
	})

	// 6. Volume data from each Storage node: one job per (node, app).
	c.runPhase(func(wg *sync.WaitGroup) {
		for _, n := range byType[NodeStorage] {
			wg.Add(1)
			go c.runVolumeJobs(ctx, wg, b, n, backupDir, updates)
		}
	})
}

func (c *Coordinator) runPhase(launch func(wg *sync.WaitGroup)) {
	var wg sync.WaitGroup
	launch(&wg)
	wg.Wait()
}

// runJob executes the per-job procedure in spec.md §4.7: register
// starting, request the component backup, copy the resulting ISO into
// place, and publish the terminal status.
func (c *Coordinator) runJob(ctx context.Context, wg *sync.WaitGroup, b *models.Backup, node Node, componentType string, config map[string]any, backupDir string, updates chan<- models.BackupJobStatus) {
	defer wg.Done()

	now := time.Now()
	updates <- models.BackupJobStatus{NodeID: node.ID, ComponentType: componentType, Status: models.JobStarting, Progress: 0, StartedAt: now}

	result, err := c.Client.RequestComponentBackup(ctx, node.ID, componentType, config)
	if err != nil {
		c.fail(updates, node.ID, componentType, now, fmt.Errorf("requesting component backup: %w", err))
		telemetry.BackupJobsTotal.WithLabelValues(componentType, "failed").Inc()
		return
	}

	dest := filepath.Join(backupDir, "isos", fmt.Sprintf("%s-%s-%s.iso", componentType, node.ID, b.ID))
	if err := c.Client.CopyFileFromNode(ctx, node.ID, result.IsoPath, dest); err != nil {
		c.fail(updates, node.ID, componentType, now, fmt.Errorf("copying iso from node: %w", err))
		telemetry.BackupJobsTotal.WithLabelValues(componentType, "failed").Inc()
		return
	}

	completed := time.Now()
	updates <- models.BackupJobStatus{
		NodeID: node.ID, ComponentType: componentType, Status: models.JobCompleted, Progress: 100,
		IsoPath: dest, SizeBytes: result.SizeBytes, StartedAt: now, CompletedAt: &completed,
	}
	telemetry.BackupJobsTotal.WithLabelValues(componentType, "completed").Inc()
}

// runVolumeJobs fetches one Storage node's volume inventory, groups it by
// application, filters by b.IncludedApps if set, and emits one job per
// (node, application).
func (c *Coordinator) runVolumeJobs(ctx context.Context, parentWG *sync.WaitGroup, b *models.Backup, node Node, backupDir string, updates chan<- models.BackupJobStatus) {
	defer parentWG.Done()

	volumes, err := c.Client.GetNodeVolumes(ctx, node.ID)
	if err != nil {
		now := time.Now()
		c.fail(updates, node.ID, ComponentVolumeData, now, fmt.Errorf("listing node volumes: %w", err))
		telemetry.BackupJobsTotal.WithLabelValues(ComponentVolumeData, "failed").Inc()
		return
	}

	included := make(map[string]bool, len(b.IncludedApps))
	for _, app := range b.IncludedApps {
		included[app] = true
	}

	apps := make(map[string]bool)
	for _, v := range volumes {
		if len(included) > 0 && !included[v.Application] {
			continue
		}
		apps[v.Application] = true
	}

	var wg sync.WaitGroup
	for app := range apps {
		wg.Add(1)
		go c.runJob(ctx, &wg, b, node, ComponentVolumeData, map[string]any{"application": app}, backupDir, updates)
	}
	wg.Wait()
}

func (c *Coordinator) fail(updates chan<- models.BackupJobStatus, nodeID, componentType string, started time.Time, err error) {
	completed := time.Now()
	updates <- models.BackupJobStatus{
		NodeID: nodeID, ComponentType: componentType, Status: models.JobFailed,
		Error: err.Error(), StartedAt: started, CompletedAt: &completed,
	}
}

func (c *Coordinator) logStatus(status models.BackupJobStatus) {
	switch status.Status {
	case models.JobCompleted:
		c.Logger.Info("backup job completed", "node", status.NodeID, "component", status.ComponentType)
	case models.JobFailed:
		c.Logger.Error("backup job failed", "node", status.NodeID, "component", status.ComponentType, "error", status.Error)
	}
}

// finalize folds the terminal job set into the Backup record: the six
// has_* flags, the total size, and the per-job ISO descriptors in
// metadata.iso_files (spec.md §4.7).
func (c *Coordinator) finalize(b *models.Backup, backupDir string, jobs []models.BackupJobStatus) {
	var totalSize int64
	var isoFiles []map[string]any

	for _, j := range jobs {
		if j.Status != models.JobCompleted {
			continue
		}
		switch j.ComponentType {
		case ComponentSystemCore:
			b.HasSystemCore = true
		case ComponentDirector:
			b.HasDirectors = true
		case ComponentOrchestrator:
			b.HasOrchestrators = true
		case ComponentNetworkConfig:
			b.HasNetworkConfig = true
		case ComponentAppDefinitions:
			b.HasAppDefinitions = true
		case ComponentVolumeData:
			b.HasVolumeData = true
		}
		totalSize += j.SizeBytes
		if j.IsoPath != "" {
			isoFiles = append(isoFiles, map[string]any{
				"node_id":        j.NodeID,
				"component_type": j.ComponentType,
				"iso_path":       j.IsoPath,
				"size_bytes":     j.SizeBytes,
			})
		}
	}

	now := time.Now()
	b.SizeBytes = totalSize
	b.CompletedAt = &now
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	b.Metadata["iso_files"] = isoFiles
	b.Metadata["total_size_bytes"] = totalSize
	b.Metadata["completed_at"] = now.Format(time.RFC3339)
}
