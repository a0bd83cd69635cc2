package autoscaler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
)

type fakeProvider struct {
	metrics map[string]map[string]float64
	err     error
	failFor string // resource id whose poll fails; "" for none
}

func (p *fakeProvider) GetMetrics(_ context.Context, resourceID, _ string) (map[string]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.failFor != "" && resourceID == p.failFor {
		return nil, errors.New("metrics backend unavailable")
	}
	return p.metrics[resourceID], nil
}

type fakeExecutor struct {
	mu        sync.Mutex
	capacity  map[string]int
	executed  []ScaleAction
	unsafe    bool
	execError error
}

func (e *fakeExecutor) ExecuteScaleAction(_ context.Context, action ScaleAction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.execError != nil {
		return e.execError
	}
	e.capacity[action.ResourceID] = action.ToCapacity
	e.executed = append(e.executed, action)
	return nil
}

func (e *fakeExecutor) IsSafeToScale(_ context.Context, _ ScaleAction) (bool, error) {
	return !e.unsafe, nil
}

func (e *fakeExecutor) GetCurrentCapacity(_ context.Context, resourceID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capacity[resourceID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func cpuPolicyConfig() []ResourceConfig {
	return []ResourceConfig{
		{
			ResourceType: "omni_application",
			Policies: []Policy{
				{
					Name:    "cpu-scaling",
					Enabled: true,
					Thresholds: []Threshold{
						{MetricName: "cpu_usage", ScaleUpThreshold: 80, ScaleDownThreshold: 30, ScaleFactor: 1.5, CooldownSeconds: 300},
					},
					MinCapacity: intPtr(1),
					MaxCapacity: intPtr(10),
				},
			},
		},
	}
}

func TestTickScalesUpOnHighMetric(t *testing.T) {
	provider := &fakeProvider{metrics: map[string]map[string]float64{"app-1": {"cpu_usage": 95}}}
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4}}
	e := NewEngine(cpuPolicyConfig(), provider, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", map[string]float64{})

	e.Tick(context.Background())

	if got := executor.capacity["app-1"]; got != 6 { // ceil(4*1.5) = 6
		t.Errorf("capacity = %d, want 6", got)
	}
	if len(executor.executed) != 1 {
		t.Fatalf("executed = %d actions, want 1", len(executor.executed))
	}
	if executor.executed[0].Direction != Up {
		t.Errorf("direction = %s, want up", executor.executed[0].Direction)
	}
}

func TestTickRespectsCooldown(t *testing.T) {
	provider := &fakeProvider{metrics: map[string]map[string]float64{"app-1": {"cpu_usage": 95}}}
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4}}
	e := NewEngine(cpuPolicyConfig(), provider, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", map[string]float64{})

	e.Tick(context.Background())
	e.Tick(context.Background())

	if len(executor.executed) != 1 {
		t.Fatalf("executed = %d actions, want 1 (second tick should be in cooldown)", len(executor.executed))
	}
}

func TestTickSkipsUnsafeAction(t *testing.T) {
	provider := &fakeProvider{metrics: map[string]map[string]float64{"app-1": {"cpu_usage": 95}}}
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4}, unsafe: true}
	e := NewEngine(cpuPolicyConfig(), provider, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", map[string]float64{})

	e.Tick(context.Background())

	if len(executor.executed) != 0 {
		t.Fatalf("executed = %d actions, want 0 when unsafe", len(executor.executed))
	}
	if got := executor.capacity["app-1"]; got != 4 {
		t.Errorf("capacity = %d, want unchanged 4", got)
	}
}

func TestTickExecutorErrorDoesNotAdvanceCooldown(t *testing.T) {
	provider := &fakeProvider{metrics: map[string]map[string]float64{"app-1": {"cpu_usage": 95}}}
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4}, execError: errors.New("rpc timeout")}
	e := NewEngine(cpuPolicyConfig(), provider, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", map[string]float64{})

	e.Tick(context.Background())
	if e.inCooldown("app-1", "cpu-scaling", 300) {
		t.Fatal("a failed executor call must not advance the cooldown anchor")
	}
}

func TestTickProviderErrorForOneResourceDoesNotBlockOthers(t *testing.T) {
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4, "app-2": 4}}
	e := NewEngine(cpuPolicyConfig(), &fakeProvider{failFor: "app-1", metrics: map[string]map[string]float64{
		"app-1": {"cpu_usage": 95},
		"app-2": {"cpu_usage": 95},
	}}, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", nil)
	e.UpdateMetrics("app-2", "omni_application", nil)

	// app-1's metrics poll fails, so it is skipped this tick and stays at
	// its current capacity; app-2 is still evaluated and scales up.
	e.Tick(context.Background())

	if got := executor.capacity["app-2"]; got != 6 {
		t.Errorf("app-2 capacity = %d, want 6", got)
	}
	if got := executor.capacity["app-1"]; got != 4 {
		t.Errorf("app-1 capacity = %d, want unchanged 4", got)
	}
}

func TestTickDisabledPolicyIsSkipped(t *testing.T) {
	configs := cpuPolicyConfig()
	configs[0].Policies[0].Enabled = false

	provider := &fakeProvider{metrics: map[string]map[string]float64{"app-1": {"cpu_usage": 95}}}
	executor := &fakeExecutor{capacity: map[string]int{"app-1": 4}}
	e := NewEngine(configs, provider, executor, nil, testLogger())
	e.UpdateMetrics("app-1", "omni_application", nil)

	e.Tick(context.Background())

	if len(executor.executed) != 0 {
		t.Fatalf("executed = %d actions, want 0 for a disabled policy", len(executor.executed))
	}
}
