package cost

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// Handler serves the cost analysis and budget CRUD API for one platform,
// grounded on original_source/src/schemas/v1/api/cost/{analysis,budgets}.rs.
type Handler struct{}

// NewHandler creates a cost Handler. It carries no state of its own: every
// request resolves its platform pool from the tenant middleware.
func NewHandler() *Handler {
	return &Handler{}
}

// Routes returns a chi.Router with cost routes mounted under a
// platform-scoped prefix (the tenant.Middleware is applied by the caller).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/analysis", h.handleAnalysis)
	r.Route("/budgets", func(r chi.Router) {
		r.Get("/", h.handleListBudgets)
		r.Post("/", h.handleCreateBudget)
		r.Get("/{id}", h.handleGetBudget)
		r.Patch("/{id}", h.handleUpdateBudget)
		r.Delete("/{id}", h.handleDeleteBudget)
	})
	return r
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	dimension := r.URL.Query().Get("dimension")
	if dimension == "" {
		dimension = "app"
	}
	column, ok := validDimensions[dimension]
	if !ok {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "unsupported dimension: "+dimension))
		return
	}

	args := []any{}
	where := ""
	if start := r.URL.Query().Get("start"); start != "" {
		ts, err := time.Parse(time.RFC3339, start)
		if err != nil {
			httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid start: "+err.Error()))
			return
		}
		args = append(args, ts)
		where += " AND start_time >= $" + strconv.Itoa(len(args))
	}
	if end := r.URL.Query().Get("end"); end != "" {
		ts, err := time.Parse(time.RFC3339, end)
		if err != nil {
			httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid end: "+err.Error()))
			return
		}
		args = append(args, ts)
		where += " AND end_time <= $" + strconv.Itoa(len(args))
	}

	query := "SELECT COALESCE(" + column + "::text, 'unknown'), SUM(total_cost) FROM cost_metrics WHERE 1=1" + where + " GROUP BY " + column + " ORDER BY 2 DESC"

	ctx := r.Context()
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "analyzing costs by dimension", err))
		return
	}
	defer rows.Close()

	points := make([]DimensionPoint, 0)
	for rows.Next() {
		var p DimensionPoint
		if err := rows.Scan(&p.Label, &p.Cost); err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "scanning cost analysis row", err))
			return
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "reading cost analysis rows", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"dimension": dimension, "results": points})
}

func (h *Handler) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	rows, err := pool.Query(r.Context(), `
		SELECT id, org_id, app_id, budget_name, budget_amount, currency, budget_period,
		       period_start, period_end, alert_threshold_percentage, alert_contacts,
		       is_active, created_at, updated_at, created_by
		FROM cost_budgets ORDER BY id
	`)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "listing budgets", err))
		return
	}
	defer rows.Close()

	budgets := make([]Budget, 0)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "scanning budget row", err))
			return
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "reading budget rows", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, budgets)
}

func (h *Handler) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid budget id"))
		return
	}

	row := pool.QueryRow(r.Context(), `
		SELECT id, org_id, app_id, budget_name, budget_amount, currency, budget_period,
		       period_start, period_end, alert_threshold_percentage, alert_contacts,
		       is_active, created_at, updated_at, created_by
		FROM cost_budgets WHERE id = $1
	`, id)
	b, err := scanBudget(row)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.NotFound, "budget not found", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, b)
}

func (h *Handler) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	var req Budget
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if req.AlertThresholdPercentage == 0 {
		req.AlertThresholdPercentage = 80
	}

	contacts, err := json.Marshal(req.AlertContacts)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "encoding alert contacts", err))
		return
	}

	row := pool.QueryRow(r.Context(), `
		INSERT INTO cost_budgets (org_id, app_id, budget_name, budget_amount, currency, budget_period,
		                          period_start, period_end, alert_threshold_percentage, alert_contacts,
		                          is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, $11)
		RETURNING id, org_id, app_id, budget_name, budget_amount, currency, budget_period,
		          period_start, period_end, alert_threshold_percentage, alert_contacts,
		          is_active, created_at, updated_at, created_by
	`, req.OrgID, req.AppID, req.BudgetName, req.BudgetAmount, req.Currency, req.BudgetPeriod,
		req.PeriodStart, req.PeriodEnd, req.AlertThresholdPercentage, contacts, req.CreatedBy)

	created, err := scanBudget(row)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "creating budget", err))
		return
	}

	httpserver.Respond(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid budget id"))
		return
	}

	var req struct {
		BudgetAmount             *float64 `json:"budget_amount"`
		AlertThresholdPercentage *float64 `json:"alert_threshold_percentage"`
		IsActive                 *bool    `json:"is_active"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	row := pool.QueryRow(r.Context(), `
		UPDATE cost_budgets SET
			budget_amount = COALESCE($2, budget_amount),
			alert_threshold_percentage = COALESCE($3, alert_threshold_percentage),
			is_active = COALESCE($4, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING id, org_id, app_id, budget_name, budget_amount, currency, budget_period,
		          period_start, period_end, alert_threshold_percentage, alert_contacts,
		          is_active, created_at, updated_at, created_by
	`, id, req.BudgetAmount, req.AlertThresholdPercentage, req.IsActive)

	updated, err := scanBudget(row)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.NotFound, "budget not found", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid budget id"))
		return
	}

	tag, err := pool.Exec(r.Context(), "DELETE FROM cost_budgets WHERE id = $1", id)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "deleting budget", err))
		return
	}
	if tag.RowsAffected() == 0 {
		httpserver.RespondError(w, apierr.New(apierr.NotFound, "budget not found"))
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

// rowScanner abstracts pgx.Row/pgx.Rows so scanBudget works for both a
// single QueryRow result and a Rows iteration.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (Budget, error) {
	var b Budget
	var contacts []byte
	err := row.Scan(
		&b.ID, &b.OrgID, &b.AppID, &b.BudgetName, &b.BudgetAmount, &b.Currency, &b.BudgetPeriod,
		&b.PeriodStart, &b.PeriodEnd, &b.AlertThresholdPercentage, &contacts,
		&b.IsActive, &b.CreatedAt, &b.UpdatedAt, &b.CreatedBy,
	)
	if err != nil {
		return Budget{}, err
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &b.AlertContacts); err != nil {
			return Budget{}, err
		}
	}
	return b, nil
}
