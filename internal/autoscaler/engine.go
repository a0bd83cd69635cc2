package autoscaler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omnicloudorg/omniorchestrator/internal/notify"
	"github.com/omnicloudorg/omniorchestrator/internal/telemetry"
)

type cooldownKey struct {
	resourceID string
	policy     string
}

type resourceState struct {
	resourceType string
	values       map[string]float64
}

// Engine is the single evaluation loop described in spec.md §4.9: one
// configured interval drives policy evaluation; incoming metric pushes are
// merged into a current-value map between ticks, and per-(resource,policy)
// decisions are serialized through the engine's own lock (spec.md §5).
type Engine struct {
	Configs  map[string]ResourceConfig // by resource_type
	Provider MetricsProvider
	Executor ScalingExecutor
	Notifier *notify.Notifier // optional
	Logger   *slog.Logger

	mu        sync.Mutex
	resources map[string]resourceState
	cooldowns map[cooldownKey]time.Time
}

// NewEngine builds an Engine over configs, keyed by ResourceConfig.ResourceType.
func NewEngine(configs []ResourceConfig, provider MetricsProvider, executor ScalingExecutor, notifier *notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	byType := make(map[string]ResourceConfig, len(configs))
	for _, c := range configs {
		byType[c.ResourceType] = c
	}
	return &Engine{
		Configs:   byType,
		Provider:  provider,
		Executor:  executor,
		Notifier:  notifier,
		Logger:    logger,
		resources: make(map[string]resourceState),
		cooldowns: make(map[cooldownKey]time.Time),
	}
}

// UpdateMetrics merges a pushed metric sample for resourceID into the
// current-value map; the next tick's provider poll is merged on top.
func (e *Engine) UpdateMetrics(resourceID, resourceType string, values map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.resources[resourceID]
	if !ok {
		state = resourceState{resourceType: resourceType, values: make(map[string]float64)}
	}
	for k, v := range values {
		state.values[k] = v
	}
	e.resources[resourceID] = state
}

func (e *Engine) snapshotResources() map[string]resourceState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]resourceState, len(e.resources))
	for id, state := range e.resources {
		values := make(map[string]float64, len(state.values))
		for k, v := range state.values {
			values[k] = v
		}
		out[id] = resourceState{resourceType: state.resourceType, values: values}
	}
	return out
}

// Start runs the tick loop on a robfig/cron schedule until ctx is
// cancelled; it returns the running *cron.Cron so the caller can Stop it.
func (e *Engine) Start(ctx context.Context, interval time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() { e.Tick(ctx) })
	if err != nil {
		return nil, fmt.Errorf("scheduling autoscaler tick: %w", err)
	}
	c.Start()
	return c, nil
}

// Tick polls the metrics provider for every resource with known state,
// merges the result over pushed values, and evaluates each resource's
// policies. A provider error for one resource does not stop evaluation of
// the others (spec.md §4.9).
func (e *Engine) Tick(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.PolicyEvaluationDuration.Observe(time.Since(start).Seconds()) }()

	for resourceID, state := range e.snapshotResources() {
		polled, err := e.Provider.GetMetrics(ctx, resourceID, state.resourceType)
		if err != nil {
			e.Logger.Error("metrics provider error", "resource_id", resourceID, "error", err)
			continue
		}

		merged := make(map[string]float64, len(state.values)+len(polled))
		for k, v := range state.values {
			merged[k] = v
		}
		for k, v := range polled {
			merged[k] = v
		}

		e.evaluateResource(ctx, resourceID, state.resourceType, merged)
	}
}

// evaluateResource runs every enabled policy configured for resourceType
// against metrics, enforcing cooldown, capacity bounds and safety before
// calling the executor (spec.md §4.9 steps 2-6).
func (e *Engine) evaluateResource(ctx context.Context, resourceID, resourceType string, metrics map[string]float64) {
	cfg, ok := e.Configs[resourceType]
	if !ok {
		return
	}

	for _, policy := range cfg.Policies {
		if !policy.Enabled {
			continue
		}
		e.evaluatePolicyAndAct(ctx, resourceID, resourceType, policy, metrics)
	}
}

func (e *Engine) evaluatePolicyAndAct(ctx context.Context, resourceID, resourceType string, policy Policy, metrics map[string]float64) {
	c := evaluatePolicy(policy, metrics)
	if c.direction == Maintain {
		return
	}

	if e.inCooldown(resourceID, policy.Name, c.cooldownSeconds) {
		return
	}

	current, err := e.Executor.GetCurrentCapacity(ctx, resourceID)
	if err != nil {
		e.Logger.Error("reading current capacity failed", "resource_id", resourceID, "policy", policy.Name, "error", err)
		return
	}

	target := clampCapacity(current, c, policy)
	if target == current {
		return
	}

	action := ScaleAction{
		ResourceID: resourceID, ResourceType: resourceType, PolicyName: policy.Name,
		Direction: c.direction, ScaleFactor: c.scaleFactor,
		FromCapacity: current, ToCapacity: target, Reason: c.reason,
	}

	safe, err := e.Executor.IsSafeToScale(ctx, action)
	if err != nil {
		e.Logger.Error("safety check failed", "resource_id", resourceID, "policy", policy.Name, "error", err)
		return
	}
	if !safe {
		e.Logger.Info("scale action vetoed as unsafe", "resource_id", resourceID, "policy", policy.Name)
		return
	}

	if err := e.Executor.ExecuteScaleAction(ctx, action); err != nil {
		// An executor error does not advance the cooldown anchor, so a
		// retry is possible on the next tick (spec.md §4.9, §5).
		e.Logger.Error("scale action failed", "resource_id", resourceID, "policy", policy.Name, "error", err)
		return
	}

	e.recordCooldown(resourceID, policy.Name)
	telemetry.ScaleActionsTotal.WithLabelValues(resourceType, string(c.direction)).Inc()
	e.Logger.Info("scale action executed", "resource_id", resourceID, "policy", policy.Name,
		"direction", c.direction, "from", current, "to", target, "reason", c.reason)

	if e.Notifier != nil {
		_ = e.Notifier.PostScaleEvent(ctx, notify.ScaleEvent{
			ResourceID: resourceID, ResourceType: resourceType, Direction: string(c.direction),
			FromCapacity: current, ToCapacity: target, Reason: c.reason,
		})
	}
}

func (e *Engine) inCooldown(resourceID, policyName string, cooldownSeconds int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := cooldownKey{resourceID: resourceID, policy: policyName}
	last, ok := e.cooldowns[key]
	if !ok {
		return false
	}
	return time.Since(last) < time.Duration(cooldownSeconds)*time.Second
}

func (e *Engine) recordCooldown(resourceID, policyName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldowns[cooldownKey{resourceID: resourceID, policy: policyName}] = time.Now()
}
