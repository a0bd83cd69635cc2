package autoscaler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResourceApplication and ResourceWorkerNode are the two ResourceType
// values the engine evaluates, unifying the original's separate
// app_autoscaler and worker_autoscaler under one engine per the REDESIGN
// FLAGS guidance against duplicate engines.
const (
	ResourceApplication = "omni_application"
	ResourceWorkerNode  = "omni_worker_node"
)

// PgExecutor is a ScalingExecutor backed by one platform's database. For
// ResourceApplication, capacity is the count of non-terminated rows in
// that app's instances table; scaling up inserts running rows and scaling
// down marks the newest rows terminated.
// ResourceWorkerNode has no concrete backing store — provisioning real
// worker nodes is out of scope (spec.md §1 Non-goals) — so its capacity
// is reported fixed and every scale action returns without doing anything.
type PgExecutor struct {
	Pool *pgxpool.Pool
}

// NewPgExecutor creates a PgExecutor against pool.
func NewPgExecutor(pool *pgxpool.Pool) *PgExecutor {
	return &PgExecutor{Pool: pool}
}

// GetCurrentCapacity returns the number of non-terminated instances for
// resourceID (an app id, for ResourceApplication).
func (e *PgExecutor) GetCurrentCapacity(ctx context.Context, resourceID string) (int, error) {
	appID, err := strconv.ParseInt(resourceID, 10, 64)
	if err != nil {
		// Not an app id: treat as a worker-node resource with no backing
		// store, reporting a single fixed unit so the engine never drifts
		// it away from "maintain".
		return 1, nil
	}

	var count int
	err = e.Pool.QueryRow(ctx, `
		SELECT count(*) FROM instances
		WHERE app_id = $1 AND instance_status <> 'terminated'
	`, appID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting instances for app %d: %w", appID, err)
	}
	return count, nil
}

// IsSafeToScale vetoes scaling an application to zero instances; every
// other action is allowed.
func (e *PgExecutor) IsSafeToScale(ctx context.Context, action ScaleAction) (bool, error) {
	if action.ResourceType == ResourceApplication && action.ToCapacity < 1 {
		return false, nil
	}
	return true, nil
}

// ExecuteScaleAction moves an application's instance count from
// action.FromCapacity to action.ToCapacity by inserting or terminating
// instance rows. Worker-node resources are left untouched.
func (e *PgExecutor) ExecuteScaleAction(ctx context.Context, action ScaleAction) error {
	appID, err := strconv.ParseInt(action.ResourceID, 10, 64)
	if err != nil {
		return nil
	}

	delta := action.ToCapacity - action.FromCapacity
	if delta > 0 {
		for i := 0; i < delta; i++ {
			if _, err := e.Pool.Exec(ctx, `
				INSERT INTO instances (app_id, status, instance_status)
				VALUES ($1, 'running', 'running')
			`, appID); err != nil {
				return fmt.Errorf("provisioning instance for app %d: %w", appID, err)
			}
		}
		return nil
	}

	if _, err := e.Pool.Exec(ctx, `
		UPDATE instances SET instance_status = 'terminated', updated_at = now()
		WHERE id IN (
			SELECT id FROM instances
			WHERE app_id = $1 AND instance_status <> 'terminated'
			ORDER BY created_at DESC
			LIMIT $2
		)
	`, appID, -delta); err != nil {
		return fmt.Errorf("terminating instances for app %d: %w", appID, err)
	}
	return nil
}
