package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

func testConfig() models.CloudConfig {
	return models.CloudConfig{
		CloudName: "acme",
		SshHosts: []models.SshHost{
			{Name: "bastion-1", IP: "10.0.0.1", IsBastion: true},
			{Name: "worker-1", IP: "10.0.0.2", IsBastion: false},
		},
		EnableMonitoring:    true,
		EnableBackups:       true,
		BackupRetentionDays: 14,
	}
}

// newTestMachine runs the full ladder instantly: StepUnit 0 makes every
// pause a no-op while still observing cancellation.
func newTestMachine() *StateMachine {
	sm := NewStateMachine(nil)
	sm.StepUnit = 0
	return sm
}

func hostByName(hosts []models.Host, name string) *models.Host {
	for i := range hosts {
		if hosts[i].Name == name {
			return &hosts[i]
		}
	}
	return nil
}

func TestDeployPlatformBootstrapsAllHosts(t *testing.T) {
	sm := newTestMachine()
	config := testConfig()

	sm.mu.Lock()
	sm.configs[config.CloudName] = config
	byHost := make(map[string]*models.Host, len(config.SshHosts))
	for _, h := range config.SshHosts {
		byHost[h.Name] = &models.Host{Name: h.Name, IP: h.IP, IsBastion: h.IsBastion, Status: models.HostPending}
	}
	sm.hosts[config.CloudName] = byHost
	sm.mu.Unlock()

	sm.deployPlatform(context.Background(), config)

	hosts := sm.Hosts(config.CloudName)
	bastion := hostByName(hosts, "bastion-1")
	worker := hostByName(hosts, "worker-1")
	if bastion == nil || worker == nil {
		t.Fatalf("expected both hosts tracked, got %+v", hosts)
	}

	// Both hosts finish every phase at completed/100; the monitoring and
	// backup phases run last and overwrite current_step/progress again.
	if bastion.Status != models.HostCompleted || bastion.Progress != 100 {
		t.Errorf("bastion = %+v, want completed/100", bastion)
	}
	if worker.Status != models.HostCompleted || worker.Progress != 100 {
		t.Errorf("worker = %+v, want completed/100", worker)
	}
}

func TestDeployPlatformInstallsRoleSpecificServices(t *testing.T) {
	sm := newTestMachine()
	config := testConfig()

	sm.mu.Lock()
	sm.configs[config.CloudName] = config
	byHost := make(map[string]*models.Host, len(config.SshHosts))
	for _, h := range config.SshHosts {
		byHost[h.Name] = &models.Host{Name: h.Name, IP: h.IP, IsBastion: h.IsBastion}
	}
	sm.hosts[config.CloudName] = byHost
	sm.mu.Unlock()

	sm.deployPlatform(context.Background(), config)

	hosts := sm.Hosts(config.CloudName)
	bastion := hostByName(hosts, "bastion-1")
	worker := hostByName(hosts, "worker-1")

	wantBastion := []string{"orchestrator-core", "network-agent", "api-gateway", "auth-service", "metrics-collector", "backup-manager"}
	wantWorker := []string{"orchestrator-core", "network-agent", "container-runtime", "metrics-collector"}

	assertServiceNames(t, "bastion", bastion.Services, wantBastion)
	assertServiceNames(t, "worker", worker.Services, wantWorker)
}

func assertServiceNames(t *testing.T, label string, got []models.ServiceStatus, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s services = %v, want %v", label, got, want)
	}
	for i, w := range want {
		if got[i].Name != w {
			t.Errorf("%s service[%d] = %s, want %s", label, i, got[i].Name, w)
		}
	}
}

func TestMonitoringAndBackupServicesReachRunning(t *testing.T) {
	sm := newTestMachine()
	config := testConfig()

	sm.mu.Lock()
	sm.configs[config.CloudName] = config
	byHost := make(map[string]*models.Host, len(config.SshHosts))
	for _, h := range config.SshHosts {
		byHost[h.Name] = &models.Host{Name: h.Name, IP: h.IP, IsBastion: h.IsBastion}
	}
	sm.hosts[config.CloudName] = byHost
	sm.mu.Unlock()

	sm.deployPlatform(context.Background(), config)

	hosts := sm.Hosts(config.CloudName)
	bastion := hostByName(hosts, "bastion-1")
	worker := hostByName(hosts, "worker-1")

	for _, svc := range worker.Services {
		if svc.Name == "metrics-collector" && svc.Status != "Running" {
			t.Errorf("worker metrics-collector status = %s, want Running", svc.Status)
		}
	}
	foundBackup := false
	for _, svc := range bastion.Services {
		if svc.Name == "backup-manager" {
			foundBackup = true
			if svc.Status != "Running" {
				t.Errorf("bastion backup-manager status = %s, want Running", svc.Status)
			}
		}
	}
	if !foundBackup {
		t.Error("expected backup-manager installed on bastion")
	}
	for _, svc := range worker.Services {
		if svc.Name == "backup-manager" {
			t.Error("backup-manager must not be installed on worker hosts")
		}
	}
}

func TestDeployPlatformSkipsDisabledPhases(t *testing.T) {
	sm := newTestMachine()
	config := testConfig()
	config.EnableMonitoring = false
	config.EnableBackups = false

	sm.mu.Lock()
	sm.configs[config.CloudName] = config
	byHost := make(map[string]*models.Host, len(config.SshHosts))
	for _, h := range config.SshHosts {
		byHost[h.Name] = &models.Host{Name: h.Name, IP: h.IP, IsBastion: h.IsBastion}
	}
	sm.hosts[config.CloudName] = byHost
	sm.mu.Unlock()

	sm.deployPlatform(context.Background(), config)

	hosts := sm.Hosts(config.CloudName)
	for _, h := range hosts {
		for _, svc := range h.Services {
			if svc.Name == "metrics-collector" || svc.Name == "backup-manager" {
				t.Errorf("host %s has %s service though its phase was disabled", h.Name, svc.Name)
			}
		}
		if h.CurrentStep != "Network configuration complete" {
			t.Errorf("host %s current_step = %q, want network phase to be the last one applied", h.Name, h.CurrentStep)
		}
	}
}

func TestStartTracksHostsAndCompletesInBackground(t *testing.T) {
	sm := newTestMachine()
	config := testConfig()

	before := sm.Hosts(config.CloudName)
	if len(before) != 0 {
		t.Fatalf("expected no hosts before Start, got %v", before)
	}

	sm.Start(context.Background(), config)

	// Start's goroutine runs with a zero StepUnit, so it finishes almost
	// immediately; poll briefly rather than assuming a single scheduling
	// quantum is enough.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hosts := sm.Hosts(config.CloudName)
		if len(hosts) == len(config.SshHosts) {
			allDone := true
			for _, h := range hosts {
				if h.Status != models.HostCompleted {
					allDone = false
				}
			}
			if allDone {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("hosts never reached completed status")
}

func TestPauseHonorsCancellation(t *testing.T) {
	sm := NewStateMachine(nil)
	sm.StepUnit = 0 // a zero pause still returns ctx.Err() without blocking

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sm.pause(ctx, 2); err == nil {
		t.Fatal("expected pause to surface a cancelled context")
	}
}
