package autoscaler

import "testing"

func TestGetCurrentCapacityNonNumericResourceIDReturnsFixedUnit(t *testing.T) {
	e := NewPgExecutor(nil)
	got, err := e.GetCurrentCapacity(nil, "worker-pool-a")
	if err != nil {
		t.Fatalf("GetCurrentCapacity: %v", err)
	}
	if got != 1 {
		t.Errorf("capacity = %d, want 1", got)
	}
}

func TestExecuteScaleActionNonNumericResourceIDIsNoop(t *testing.T) {
	e := NewPgExecutor(nil)
	action := ScaleAction{ResourceID: "worker-pool-a", ResourceType: ResourceWorkerNode, FromCapacity: 2, ToCapacity: 5}
	if err := e.ExecuteScaleAction(nil, action); err != nil {
		t.Errorf("ExecuteScaleAction = %v, want nil", err)
	}
}

func TestIsSafeToScaleVetoesApplicationScaleToZero(t *testing.T) {
	e := NewPgExecutor(nil)
	action := ScaleAction{ResourceID: "42", ResourceType: ResourceApplication, FromCapacity: 1, ToCapacity: 0}
	safe, err := e.IsSafeToScale(nil, action)
	if err != nil {
		t.Fatalf("IsSafeToScale: %v", err)
	}
	if safe {
		t.Error("expected scaling an application to zero instances to be unsafe")
	}
}

func TestIsSafeToScaleAllowsApplicationScaleUp(t *testing.T) {
	e := NewPgExecutor(nil)
	action := ScaleAction{ResourceID: "42", ResourceType: ResourceApplication, FromCapacity: 1, ToCapacity: 3}
	safe, err := e.IsSafeToScale(nil, action)
	if err != nil {
		t.Fatalf("IsSafeToScale: %v", err)
	}
	if !safe {
		t.Error("expected scaling an application up to be safe")
	}
}

func TestIsSafeToScaleAllowsWorkerNodeScaleToZero(t *testing.T) {
	e := NewPgExecutor(nil)
	action := ScaleAction{ResourceID: "pool-b", ResourceType: ResourceWorkerNode, FromCapacity: 1, ToCapacity: 0}
	safe, err := e.IsSafeToScale(nil, action)
	if err != nil {
		t.Fatalf("IsSafeToScale: %v", err)
	}
	if !safe {
		t.Error("expected worker-node resources to have no zero-capacity veto")
	}
}
