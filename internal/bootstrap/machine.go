package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/telemetry"
)

// StateMachine drives CloudConfig deployments. One StateMachine can track
// many clouds at once; each cloud's host map is guarded by the same mutex,
// held only for the duration of a single status update (spec.md §5).
type StateMachine struct {
	Logger *slog.Logger

	// StepUnit scales every ladder step's pause; production code leaves it
	// at its default of one second, matching the per-step pauses recorded
	// in the deployment ladder. Tests set it to zero so a full run
	// completes instantly.
	StepUnit time.Duration

	mu      sync.Mutex
	configs map[string]models.CloudConfig
	hosts   map[string]map[string]*models.Host
}

// NewStateMachine constructs an empty StateMachine.
func NewStateMachine(logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateMachine{
		Logger:   logger,
		StepUnit: time.Second,
		configs:  make(map[string]models.CloudConfig),
		hosts:    make(map[string]map[string]*models.Host),
	}
}

// Start records the initial pending status for every host in config and
// launches the deployment sequence in the background, returning immediately.
func (sm *StateMachine) Start(ctx context.Context, config models.CloudConfig) {
	sm.mu.Lock()
	sm.configs[config.CloudName] = config
	byHost := make(map[string]*models.Host, len(config.SshHosts))
	for _, h := range config.SshHosts {
		byHost[h.Name] = &models.Host{
			Name: h.Name, IP: h.IP, IsBastion: h.IsBastion,
			Status: models.HostPending, CurrentStep: "Waiting to start", Progress: 0,
		}
	}
	sm.hosts[config.CloudName] = byHost
	sm.mu.Unlock()

	go sm.deployPlatform(ctx, config)
}

// Hosts returns a stable-ordered snapshot of every host tracked for cloudName.
func (sm *StateMachine) Hosts(cloudName string) []models.Host {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	byHost := sm.hosts[cloudName]
	out := make([]models.Host, 0, len(byHost))
	for _, h := range byHost {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// deployPlatform bootstraps bastion hosts, then worker hosts, then runs the
// per-cloud network, monitoring, and backup phases (spec.md §4.10). It is
// meant to be called exactly once per cloud, at initial deployment.
func (sm *StateMachine) deployPlatform(ctx context.Context, config models.CloudConfig) {
	var bastions, workers []models.SshHost
	for _, h := range config.SshHosts {
		if h.IsBastion {
			bastions = append(bastions, h)
		} else {
			workers = append(workers, h)
		}
	}

	for _, h := range bastions {
		if sm.simulateHostBootstrap(ctx, config.CloudName, h) != nil {
			return
		}
	}
	for _, h := range workers {
		if sm.simulateHostBootstrap(ctx, config.CloudName, h) != nil {
			return
		}
	}

	if sm.simulateNetworkConfiguration(ctx, config.CloudName) != nil {
		return
	}

	if config.EnableMonitoring {
		if sm.simulateMonitoringSetup(ctx, config.CloudName) != nil {
			return
		}
	}

	if config.EnableBackups {
		sm.simulateBackupSetup(ctx, config.CloudName, config.BackupRetentionDays)
	}
}

// simulateHostBootstrap advances one host through the full ladder,
// finishing with the role-specific service inventory. It returns ctx.Err()
// if the context is cancelled mid-ladder, leaving the host at its last
// reported step rather than marking it failed or completed.
func (sm *StateMachine) simulateHostBootstrap(ctx context.Context, cloudName string, host models.SshHost) error {
	for _, st := range hostSteps {
		sm.updateStatus(cloudName, host.Name, models.HostInProgress, st.name, st.progress, false)
		if err := sm.pause(ctx, st.afterSecond); err != nil {
			return err
		}
	}

	if host.IsBastion {
		sm.updateStatus(cloudName, host.Name, models.HostInProgress, "Configuring bastion-specific security", 90, false)
		if err := sm.pause(ctx, roleStepAfterSeconds); err != nil {
			return err
		}
		sm.setServices(cloudName, host.Name, cloneServices(bastionServices))
	} else {
		sm.updateStatus(cloudName, host.Name, models.HostInProgress, "Configuring worker-specific services", 90, false)
		if err := sm.pause(ctx, roleStepAfterSeconds); err != nil {
			return err
		}
		sm.setServices(cloudName, host.Name, cloneServices(workerServices))
	}

	sm.updateStatus(cloudName, host.Name, models.HostCompleted, "Bootstrap completed", 100, true)
	telemetry.BootstrapHostsTotal.WithLabelValues("completed").Inc()
	return nil
}

// simulateNetworkConfiguration runs the shared network ladder against every
// host in the cloud in lock-step, one status update per step across all
// hosts before the phase's pause elapses.
func (sm *StateMachine) simulateNetworkConfiguration(ctx context.Context, cloudName string) error {
	hosts := sm.cloudHostNames(cloudName)

	for _, st := range networkSteps {
		for _, name := range hosts {
			sm.updateStatus(cloudName, name, models.HostInProgress, st.name, st.progress, false)
		}
		if err := sm.pause(ctx, st.afterSecond); err != nil {
			return err
		}
	}

	for _, name := range hosts {
		sm.updateStatus(cloudName, name, models.HostCompleted, "Network configuration complete", 100, true)
	}
	return nil
}

// simulateMonitoringSetup installs metrics-collector on every host, then
// walks the monitoring ladder, then flips the service to Running.
func (sm *StateMachine) simulateMonitoringSetup(ctx context.Context, cloudName string) error {
	hosts := sm.cloudHostNames(cloudName)

	for _, name := range hosts {
		sm.updateStatus(cloudName, name, models.HostInProgress, "Deploying monitoring stack", 0, false)
		sm.addService(cloudName, name, models.ServiceStatus{Name: "metrics-collector", Status: "Starting"})
	}
	if err := sm.pause(ctx, 3); err != nil {
		return err
	}

	for _, st := range monitoringSteps {
		for _, name := range hosts {
			sm.updateStatus(cloudName, name, models.HostInProgress, st.name, st.progress, false)
		}
		if err := sm.pause(ctx, st.afterSecond); err != nil {
			return err
		}
	}

	for _, name := range hosts {
		sm.updateStatus(cloudName, name, models.HostCompleted, "Monitoring services deployed", 100, true)
		sm.updateService(cloudName, name, "metrics-collector", models.ServiceStatus{
			Name: "metrics-collector", Status: "Running", Uptime: "0m", CPU: "8%", Memory: "192MB",
		})
	}
	return nil
}

// simulateBackupSetup installs backup-manager on bastion hosts only, walks
// the backup ladder (recording the retention policy in the ladder's second
// step name), then flips the service to Running.
func (sm *StateMachine) simulateBackupSetup(ctx context.Context, cloudName string, retentionDays int) error {
	bastions := sm.cloudBastionNames(cloudName)

	for _, name := range bastions {
		sm.updateStatus(cloudName, name, models.HostInProgress, "Setting up backup system", 0, false)
		sm.addService(cloudName, name, models.ServiceStatus{Name: "backup-manager", Status: "Starting"})
	}
	if err := sm.pause(ctx, 3); err != nil {
		return err
	}

	for _, st := range backupSteps {
		for _, name := range bastions {
			sm.updateStatus(cloudName, name, models.HostInProgress, st.name, st.progress, false)
		}
		if err := sm.pause(ctx, st.afterSecond); err != nil {
			return err
		}
	}

	retentionStep := fmt.Sprintf("Setting %d day retention policy", retentionDays)
	for _, name := range bastions {
		sm.updateStatus(cloudName, name, models.HostInProgress, retentionStep, 66, false)
	}
	if err := sm.pause(ctx, 3); err != nil {
		return err
	}

	for _, name := range bastions {
		sm.updateStatus(cloudName, name, models.HostCompleted, "Backup services configured", 100, true)
		sm.updateService(cloudName, name, "backup-manager", models.ServiceStatus{
			Name: "backup-manager", Status: "Running", Uptime: "0m", CPU: "6%", Memory: "256MB",
		})
	}
	return nil
}

func (sm *StateMachine) pause(ctx context.Context, seconds int) error {
	d := time.Duration(seconds) * sm.StepUnit
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sm *StateMachine) updateStatus(cloudName, hostName, status, currentStep string, progress int, completed bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	h, ok := sm.hosts[cloudName][hostName]
	if !ok {
		return
	}
	h.Status = status
	h.CurrentStep = currentStep
	h.Progress = progress
	h.Completed = completed
}

func (sm *StateMachine) setServices(cloudName, hostName string, services []models.ServiceStatus) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if h, ok := sm.hosts[cloudName][hostName]; ok {
		h.Services = append(h.Services, services...)
	}
}

func (sm *StateMachine) addService(cloudName, hostName string, service models.ServiceStatus) {
	sm.setServices(cloudName, hostName, []models.ServiceStatus{service})
}

func (sm *StateMachine) updateService(cloudName, hostName, name string, updated models.ServiceStatus) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	h, ok := sm.hosts[cloudName][hostName]
	if !ok {
		return
	}
	for i := range h.Services {
		if h.Services[i].Name == name {
			h.Services[i] = updated
			return
		}
	}
}

func (sm *StateMachine) cloudHostNames(cloudName string) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	names := make([]string, 0, len(sm.hosts[cloudName]))
	for name := range sm.hosts[cloudName] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sm *StateMachine) cloudBastionNames(cloudName string) []string {
	sm.mu.Lock()
	config := sm.configs[cloudName]
	sm.mu.Unlock()

	names := make([]string, 0, len(config.SshHosts))
	for _, h := range config.SshHosts {
		if h.IsBastion {
			names = append(names, h.Name)
		}
	}
	sort.Strings(names)
	return names
}
