package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Backup coordinator metrics.
var (
	BackupJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniorch",
			Subsystem: "backup",
			Name:      "jobs_total",
			Help:      "Total number of backup jobs dispatched, by component type and outcome.",
		},
		[]string{"component_type", "outcome"},
	)

	BackupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omniorch",
			Subsystem: "backup",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a full backup run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"backup_type"},
	)
)

// Autoscaler metrics.
var (
	ScaleActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniorch",
			Subsystem: "autoscaler",
			Name:      "actions_total",
			Help:      "Total number of scale decisions emitted, by resource type and direction.",
		},
		[]string{"resource_type", "direction"},
	)

	PolicyEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "omniorch",
			Subsystem: "autoscaler",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of one autoscaler tick across all resources.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Bootstrap metrics.
var (
	BootstrapHostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniorch",
			Subsystem: "bootstrap",
			Name:      "hosts_total",
			Help:      "Total number of hosts that completed or failed bootstrap.",
		},
		[]string{"status"},
	)
)

// Migration metrics.
var (
	MigrationsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniorch",
			Subsystem: "migration",
			Name:      "applied_total",
			Help:      "Total number of schema migrations applied, by artifact.",
		},
		[]string{"artifact"},
	)
)

// HTTP server metrics.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omniorch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, by route pattern, method and status class.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omniorch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests, by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// All returns every OmniOrchestrator-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		BackupJobsTotal,
		BackupDuration,
		ScaleActionsTotal,
		PolicyEvaluationDuration,
		BootstrapHostsTotal,
		MigrationsAppliedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	}
}
