package backup

import (
	"testing"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

func TestJobRegistryQuiescence(t *testing.T) {
	r := newJobRegistry()

	if r.quiescent() {
		t.Fatal("empty registry should not be quiescent")
	}

	r.upsert(models.BackupJobStatus{NodeID: "n1", ComponentType: ComponentSystemCore, Status: models.JobStarting})
	if r.quiescent() {
		t.Fatal("registry with an in-flight job should not be quiescent")
	}

	r.upsert(models.BackupJobStatus{NodeID: "n1", ComponentType: ComponentSystemCore, Status: models.JobCompleted})
	if !r.quiescent() {
		t.Fatal("registry with only terminal jobs should be quiescent")
	}

	if got := len(r.snapshot()); got != 1 {
		t.Errorf("snapshot len = %d, want 1 (upsert should replace by key)", got)
	}
}
