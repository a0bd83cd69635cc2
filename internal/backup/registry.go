package backup

import (
	"sync"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// jobRegistry is the shared source of truth for one backup run (spec.md
// §5): a single aggregator goroutine is the only writer, downstream
// readers (the coordinator's final snapshot, tests) only ever see a consistent
// snapshot.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[models.JobKey]models.BackupJobStatus
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[models.JobKey]models.BackupJobStatus)}
}

func (r *jobRegistry) upsert(status models.BackupJobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[status.Key()] = status
}

func (r *jobRegistry) snapshot() []models.BackupJobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.BackupJobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out
}

// quiescent reports whether every registered job has reached a terminal
// state, per the completion predicate in spec.md §4.7: total > 0 and
// completed + failed == total.
func (r *jobRegistry) quiescent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return false
	}
	for _, j := range r.jobs {
		if !j.Terminal() {
			return false
		}
	}
	return true
}
