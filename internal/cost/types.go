// Package cost implements the per-platform cost tracking surface
// supplemented from original_source/src/schemas/v1/api/cost (spec.md §5):
// budgets and dimension/time cost analysis. AllocationTag is a record type
// only; no handler or route serves allocation tags. It is CRUD-only
// plumbing, not part of the core autoscaler/backup/bootstrap algorithms.
package cost

import "time"

// Metric is one usage/cost record against a resource type, mirroring
// original_source's CostMetric minus the pricing/projection fields §5
// scopes out of this package.
type Metric struct {
	ID                 int64     `json:"id" db:"id"`
	ResourceTypeID      int32     `json:"resource_type_id" db:"resource_type_id"`
	ProviderID          *int64    `json:"provider_id,omitempty" db:"provider_id"`
	RegionID            *int64    `json:"region_id,omitempty" db:"region_id"`
	AppID               *int64    `json:"app_id,omitempty" db:"app_id"`
	WorkerID            *int64    `json:"worker_id,omitempty" db:"worker_id"`
	OrgID               *int64    `json:"org_id,omitempty" db:"org_id"`
	StartTime           time.Time `json:"start_time" db:"start_time"`
	EndTime             time.Time `json:"end_time" db:"end_time"`
	UsageQuantity       float64   `json:"usage_quantity" db:"usage_quantity"`
	UnitCost            float64   `json:"unit_cost" db:"unit_cost"`
	Currency            string    `json:"currency" db:"currency"`
	TotalCost           float64   `json:"total_cost" db:"total_cost"`
	DiscountPercentage  *float64  `json:"discount_percentage,omitempty" db:"discount_percentage"`
	DiscountReason      *string   `json:"discount_reason,omitempty" db:"discount_reason"`
	BillingPeriod       *string   `json:"billing_period,omitempty" db:"billing_period"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Budget is a spend ceiling scoped to an org, optionally narrowed to one
// app, mirroring original_source's CostBudget.
type Budget struct {
	ID                       int64     `json:"id" db:"id"`
	OrgID                    int64     `json:"org_id" db:"org_id" validate:"required"`
	AppID                    *int64    `json:"app_id,omitempty" db:"app_id"`
	BudgetName               string    `json:"budget_name" db:"budget_name" validate:"required"`
	BudgetAmount             float64   `json:"budget_amount" db:"budget_amount" validate:"required,gt=0"`
	Currency                 string    `json:"currency" db:"currency"`
	BudgetPeriod             string    `json:"budget_period" db:"budget_period" validate:"required,oneof=monthly quarterly annual"`
	PeriodStart              time.Time `json:"period_start" db:"period_start" validate:"required"`
	PeriodEnd                time.Time `json:"period_end" db:"period_end" validate:"required"`
	AlertThresholdPercentage float64   `json:"alert_threshold_percentage" db:"alert_threshold_percentage"`
	AlertContacts            []string  `json:"alert_contacts" db:"alert_contacts"`
	IsActive                 bool      `json:"is_active" db:"is_active"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time `json:"updated_at" db:"updated_at"`
	CreatedBy                int64     `json:"created_by" db:"created_by"`
}

// AllocationTag attaches a key/value label to an arbitrary platform
// resource for cost reporting, mirroring original_source's
// CostAllocationTag.
type AllocationTag struct {
	ID           int64     `json:"id" db:"id"`
	TagKey       string    `json:"tag_key" db:"tag_key" validate:"required"`
	TagValue     string    `json:"tag_value" db:"tag_value" validate:"required"`
	ResourceID   int64     `json:"resource_id" db:"resource_id" validate:"required"`
	ResourceType string    `json:"resource_type" db:"resource_type" validate:"required"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// ResourceType is the fixed catalog cost_metrics.resource_type_id refers
// to (compute, storage, network, ...), one row per billable unit kind.
type ResourceType struct {
	ID                int32  `json:"id" db:"id"`
	Name              string `json:"name" db:"name"`
	Category          string `json:"category" db:"category"`
	UnitOfMeasurement string `json:"unit_of_measurement" db:"unit_of_measurement"`
}

// DimensionPoint is one row of a by-dimension cost breakdown: the
// dimension's label (an app name, a provider name, ...) and its summed cost.
type DimensionPoint struct {
	Label string  `json:"label"`
	Cost  float64 `json:"cost"`
}

// validDimensions enumerates the group-by columns analysis accepts,
// mirroring the dimension argument original_source's
// get_cost_metrics_by_dimension takes as a raw column name.
var validDimensions = map[string]string{
	"app":           "app_id",
	"provider":      "provider_id",
	"region":        "region_id",
	"resource_type": "resource_type_id",
	"billing_period": "billing_period",
}
