// Package models holds the canonical record shapes shared across
// OmniOrchestrator's components: the main database (platforms, users,
// sessions, audit) and the per-platform databases (apps, builds,
// deployments, instances, alerts, backups).
package models

import "time"

// Platform is an isolated tenant with its own database and schema lifecycle.
type Platform struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// DatabaseName returns the per-platform database name, omni_p_<name>.
func (p Platform) DatabaseName() string {
	return "omni_p_" + p.Name
}

// User is a main-database account. A user is only considered authenticated
// when Active is true.
type User struct {
	ID            int64      `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Salt          string     `json:"-" db:"salt"`
	Active        bool       `json:"active" db:"active"`
	Status        string     `json:"status" db:"status"`
	LoginAttempts int        `json:"login_attempts" db:"login_attempts"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// Session is a server-side record backing the session_id cookie.
type Session struct {
	SessionToken string    `json:"-" db:"session_token"`
	UserID       int64     `json:"user_id" db:"user_id"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
}

// Valid reports whether the session can still authenticate a request.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// Org is a cross-app ownership grouping, referenced by App.
type Org struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Region is a deployment locality, referenced by App.
type Region struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Provider is a cloud/infrastructure provider registry entry.
type Provider struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Kind string `json:"kind" db:"kind"`
}

// App is a versioned, deployable workload owned by an Org in a Region.
type App struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OrgID     int64     `json:"org_id" db:"org_id"`
	RegionID  int64     `json:"region_id" db:"region_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Build statuses.
const (
	BuildPending  = "pending"
	BuildBuilding = "building"
	BuildSuccess  = "success"
	BuildFailed   = "failed"
)

// Build progresses pending -> building -> (success|failed).
type Build struct {
	ID          int64      `json:"id" db:"id"`
	AppID       int64      `json:"app_id" db:"app_id"`
	Version     string     `json:"version" db:"version"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Deployment statuses.
const (
	DeploymentPending    = "pending"
	DeploymentInProgress = "in_progress"
	DeploymentDeployed   = "deployed"
	DeploymentFailed     = "failed"
	DeploymentCanceled   = "canceled"
)

// Deployment references one App and one Build and moves through
// pending -> in_progress -> (deployed|failed|canceled).
type Deployment struct {
	ID                 int64      `json:"id" db:"id"`
	AppID              int64      `json:"app_id" db:"app_id"`
	BuildID            int64      `json:"build_id" db:"build_id"`
	Status             string     `json:"status" db:"status"`
	StartedAt          *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DeploymentDuration *float64   `json:"deployment_duration_seconds,omitempty" db:"deployment_duration"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
}

// Enter transitions the deployment into status, computing StartedAt and
// CompletedAt/DeploymentDuration as spec.md §3 requires.
func (d *Deployment) Enter(status string, now time.Time) {
	switch status {
	case DeploymentInProgress:
		d.StartedAt = &now
	case DeploymentDeployed, DeploymentFailed, DeploymentCanceled:
		d.CompletedAt = &now
		if d.StartedAt != nil {
			dur := now.Sub(*d.StartedAt).Seconds()
			d.DeploymentDuration = &dur
		}
	}
	d.Status = status
}

// Instance lifecycle statuses.
const (
	InstanceProvisioning = "provisioning"
	InstanceRunning      = "running"
	InstanceFailed       = "failed"
	InstanceTerminated   = "terminated"
)

// Instance runtime statuses (independent of the lifecycle Status field).
const (
	InstanceStatusRunning    = "running"
	InstanceStatusStopped    = "stopped"
	InstanceStatusTerminated = "terminated"
)

// Instance belongs to an App and runs on a worker node.
type Instance struct {
	ID              int64     `json:"id" db:"id"`
	AppID           int64     `json:"app_id" db:"app_id"`
	Status          string    `json:"status" db:"status"`
	InstanceStatus  string    `json:"instance_status" db:"instance_status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Backup type and status enums.
const (
	BackupFull   = "full"
	BackupSystem = "system"
	BackupApp    = "app"

	BackupPending       = "pending"
	BackupInitializing  = "initializing"
	BackupInProgress    = "in_progress"
	BackupSuccess       = "success"
	BackupFailed        = "failed"
)

// Backup is one complete backup set, spanning heterogeneous nodes.
type Backup struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Status              string         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	SourceEnvironment   string         `json:"source_environment"`
	BackupType          string         `json:"backup_type"`
	FormatVersion        int           `json:"format_version"`
	EncryptionMethod    string         `json:"encryption_method"`
	SizeBytes           int64          `json:"size_bytes"`
	HasSystemCore       bool           `json:"has_system_core"`
	HasDirectors        bool           `json:"has_directors"`
	HasOrchestrators    bool           `json:"has_orchestrators"`
	HasNetworkConfig    bool           `json:"has_network_config"`
	HasAppDefinitions   bool           `json:"has_app_definitions"`
	HasVolumeData       bool           `json:"has_volume_data"`
	IncludedApps        []string       `json:"included_apps,omitempty"`
	IncludedServices    []string       `json:"included_services,omitempty"`
	StorageLocation     string         `json:"storage_location"`
	ManifestPath        string         `json:"manifest_path,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	LastValidatedAt     *time.Time     `json:"last_validated_at,omitempty"`
}

// RequiredFlagsSatisfied checks the invariant in spec.md §3: a full backup
// needs all six component flags, system needs the four system flags, app
// needs app_definitions and volume_data.
func (b Backup) RequiredFlagsSatisfied() bool {
	switch b.BackupType {
	case BackupFull:
		return b.HasSystemCore && b.HasDirectors && b.HasOrchestrators &&
			b.HasNetworkConfig && b.HasAppDefinitions && b.HasVolumeData
	case BackupSystem:
		return b.HasSystemCore && b.HasDirectors && b.HasOrchestrators && b.HasNetworkConfig
	case BackupApp:
		return b.HasAppDefinitions && b.HasVolumeData
	default:
		return false
	}
}

// Backup job statuses.
const (
	JobStarting    = "starting"
	JobInProgress  = "in_progress"
	JobCompleted   = "completed"
	JobFailed      = "failed"
)

// BackupJobStatus is one unit of work produced by the backup coordinator,
// identified by (NodeID, ComponentType).
type BackupJobStatus struct {
	NodeID        string     `json:"node_id"`
	ComponentType string     `json:"component_type"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	IsoPath       string     `json:"iso_path,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	SizeBytes     int64      `json:"size_bytes"`
}

// Key identifies a job in the registry by (node, component).
func (s BackupJobStatus) Key() JobKey {
	return JobKey{NodeID: s.NodeID, ComponentType: s.ComponentType}
}

// Terminal reports whether the job has reached a terminal state.
func (s BackupJobStatus) Terminal() bool {
	return s.Status == JobCompleted || s.Status == JobFailed
}

// JobKey uniquely identifies a backup job.
type JobKey struct {
	NodeID        string
	ComponentType string
}

// ServiceStatus describes one running service on a bootstrap host.
type ServiceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
	CPU    string `json:"cpu,omitempty"`
	Memory string `json:"memory,omitempty"`
}

// Host bootstrap statuses.
const (
	HostPending    = "pending"
	HostInProgress = "in_progress"
	HostCompleted  = "completed"
	HostFailed     = "failed"
)

// Host tracks one machine's progress through the bootstrap state machine.
type Host struct {
	Name        string          `json:"name"`
	IP          string          `json:"ip"`
	IsBastion   bool            `json:"is_bastion"`
	Services    []ServiceStatus `json:"services"`
	CurrentStep string          `json:"current_step"`
	Progress    int             `json:"progress"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Completed   bool            `json:"completed"`
}

// SshHost is one host entry in a CloudConfig.
type SshHost struct {
	Name      string `json:"name" yaml:"name"`
	IP        string `json:"ip" yaml:"ip"`
	IsBastion bool   `json:"is_bastion" yaml:"is_bastion"`
}

// CloudConfig drives the bootstrap of one cloud's hosts. It is both a
// request body (POST /platform/<pid>/bootstrap/init) and a CLI input
// file for `omniorchestrator bootstrap --config`.
type CloudConfig struct {
	CloudName           string    `json:"cloud_name" yaml:"cloud_name"`
	SshHosts            []SshHost `json:"ssh_hosts" yaml:"ssh_hosts"`
	EnableMonitoring    bool      `json:"enable_monitoring" yaml:"enable_monitoring"`
	EnableBackups       bool      `json:"enable_backups" yaml:"enable_backups"`
	BackupRetentionDays int       `json:"backup_retention_days" yaml:"backup_retention_days"`
}

// Alert statuses.
const (
	AlertActive       = "active"
	AlertAcknowledged = "acknowledged"
	AlertResolved     = "resolved"
	AlertAutoResolved = "auto_resolved"
)

// Alert is a platform-scoped incident signal.
type Alert struct {
	ID          int64      `json:"id" db:"id"`
	AlertType   string     `json:"alert_type" db:"alert_type"`
	Severity    string     `json:"severity" db:"severity"`
	Service     string     `json:"service" db:"service"`
	Message     string     `json:"message" db:"message"`
	Timestamp   time.Time  `json:"timestamp" db:"timestamp"`
	Status      string     `json:"status" db:"status"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy  *int64     `json:"resolved_by,omitempty" db:"resolved_by"`
	AckBy       *int64     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	OrgID       *int64     `json:"org_id,omitempty" db:"org_id"`
	AppID       *int64     `json:"app_id,omitempty" db:"app_id"`
	InstanceID  *int64     `json:"instance_id,omitempty" db:"instance_id"`
}

// AlertHistory is an append-only log of status transitions for an Alert.
type AlertHistory struct {
	ID        int64     `json:"id" db:"id"`
	AlertID   int64     `json:"alert_id" db:"alert_id"`
	Status    string    `json:"status" db:"status"`
	ChangedBy int64     `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time `json:"changed_at" db:"changed_at"`
}

// Metric is a time-stamped measurement consumed by the autoscaler.
type Metric struct {
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	MetricName   string    `json:"metric_name"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

// AuditLogEntry records one action against a platform-scoped resource. It
// lives in the platform's own database, alongside the resource it
// describes, rather than in the main database.
type AuditLogEntry struct {
	ID           int64     `json:"id" db:"id"`
	UserID       *int64    `json:"user_id,omitempty" db:"user_id"`
	Action       string    `json:"action" db:"action"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty" db:"resource_id"`
	IPAddress    string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent    string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
