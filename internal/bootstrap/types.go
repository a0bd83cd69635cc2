// Package bootstrap drives the sequential deployment of a platform's hosts:
// per-host SSH-to-service-inventory progression, then per-cloud network,
// monitoring, and backup phases (spec.md §4.10).
package bootstrap

import "github.com/omnicloudorg/omniorchestrator/internal/models"

// Bastion and worker service inventories installed at the role-specific
// configuration step (progress 90).
var (
	bastionServices = []models.ServiceStatus{
		{Name: "orchestrator-core", Status: "Running", Uptime: "0m", CPU: "12%", Memory: "256MB"},
		{Name: "network-agent", Status: "Running", Uptime: "0m", CPU: "5%", Memory: "128MB"},
		{Name: "api-gateway", Status: "Running", Uptime: "0m", CPU: "18%", Memory: "512MB"},
		{Name: "auth-service", Status: "Running", Uptime: "0m", CPU: "10%", Memory: "384MB"},
	}

	workerServices = []models.ServiceStatus{
		{Name: "orchestrator-core", Status: "Running", Uptime: "0m", CPU: "12%", Memory: "256MB"},
		{Name: "network-agent", Status: "Running", Uptime: "0m", CPU: "5%", Memory: "128MB"},
		{Name: "container-runtime", Status: "Running", Uptime: "0m", CPU: "22%", Memory: "768MB"},
	}
)

func cloneServices(services []models.ServiceStatus) []models.ServiceStatus {
	out := make([]models.ServiceStatus, len(services))
	copy(out, services)
	return out
}

// step is one entry in a progress ladder: a status update followed by a
// pause of afterSecond*StateMachine.StepUnit before the next step fires.
type step struct {
	name        string
	progress    int
	afterSecond int
}

// hostSteps is the fixed ladder every host advances through regardless of
// role, up to and including security hardening; role-specific configuration
// (90) and completion (100) are handled separately once the role is known.
var hostSteps = []step{
	{name: "Establishing SSH connection", progress: 0, afterSecond: 2},
	{name: "Verifying system requirements", progress: 20, afterSecond: 3},
	{name: "Installing OmniOrchestrator binaries", progress: 40, afterSecond: 5},
	{name: "Configuring system services", progress: 60, afterSecond: 4},
	{name: "Applying security hardening", progress: 80, afterSecond: 3},
}

const roleStepAfterSeconds = 2

// networkSteps is the ladder applied to every host in parallel during the
// network configuration phase, which runs once per cloud rather than once
// per host.
var networkSteps = []step{
	{name: "Establishing secure tunnels", progress: 0, afterSecond: 3},
	{name: "Configuring service discovery", progress: 25, afterSecond: 3},
	{name: "Setting up load balancing", progress: 50, afterSecond: 3},
	{name: "Finalizing network configuration", progress: 75, afterSecond: 3},
}

// monitoringSteps is the ladder applied to every host during the monitoring
// phase, after metrics-collector has been added in a Starting state.
var monitoringSteps = []step{
	{name: "Configuring metrics collection", progress: 33, afterSecond: 3},
	{name: "Setting up dashboards", progress: 66, afterSecond: 3},
}

// backupSteps is the ladder applied to bastion hosts only during the backup
// phase, after backup-manager has been added in a Starting state. The second
// step's name carries the retention period and is built at call time.
var backupSteps = []step{
	{name: "Configuring backup schedules", progress: 33, afterSecond: 3},
}
