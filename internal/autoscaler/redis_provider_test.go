package autoscaler

import "testing"

func TestMetricsKeyIsDeterministicPerResource(t *testing.T) {
	k1 := "metrics:" + "app-1"
	k2 := "metrics:" + "app-1"
	if k1 != k2 {
		t.Error("metrics key should be deterministic")
	}

	k3 := "metrics:" + "app-2"
	if k1 == k3 {
		t.Error("different resources should produce different metrics keys")
	}
}

func TestNewRedisProviderWrapsClient(t *testing.T) {
	p := NewRedisProvider(nil)
	if p == nil {
		t.Fatal("NewRedisProvider returned nil")
	}
	if p.rdb != nil {
		t.Error("expected wrapped client to be the nil value passed in")
	}
}
