// Package alerts serves the platform-scoped alert lifecycle API of
// spec.md §6 and §8.3: listing, status transitions, acknowledgement and
// resolution, each appending an AlertHistory row.
package alerts

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/auth"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/notify"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// Handler serves the alert API for one platform. Notifier is optional;
// when set, every status transition is also posted to Slack.
type Handler struct {
	Notifier *notify.Notifier
}

// NewHandler creates an alerts Handler. notifier may be nil.
func NewHandler(notifier *notify.Notifier) *Handler {
	return &Handler{Notifier: notifier}
}

// Routes returns a chi.Router with alert routes mounted under a
// platform-scoped prefix (the tenant.Middleware is applied by the caller).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Put("/{id}/status", h.handleUpdateStatus)
	r.Post("/{id}/acknowledge", h.handleAcknowledge)
	r.Post("/{id}/resolve", h.handleResolve)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, err.Error()))
		return
	}

	args := []any{params.PageSize, params.Offset}
	where := ""
	if status := r.URL.Query().Get("status"); status != "" {
		args = append(args, status)
		where = " WHERE status = $3"
	}

	ctx := r.Context()
	rows, err := pool.Query(ctx, `
		SELECT id, alert_type, severity, service, message, timestamp, status,
		       resolved_at, resolved_by, acknowledged_by, org_id, app_id, instance_id
		FROM alerts`+where+`
		ORDER BY timestamp DESC LIMIT $1 OFFSET $2
	`, args...)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "listing alerts", err))
		return
	}
	defer rows.Close()

	list := make([]models.Alert, 0, params.PageSize)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "scanning alert row", err))
			return
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "reading alert rows", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"alerts": list})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active acknowledged resolved auto_resolved"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	h.transition(w, r, req.Status, nil)
}

// handleAcknowledge sets status=acknowledged and records the acting user
// as acknowledged_by (spec.md §8.3).
func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var actor *int64
	if user != nil {
		actor = &user.ID
	}
	h.transition(w, r, models.AlertAcknowledged, actor)
}

// handleResolve sets status=resolved and resolved_at.
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var actor *int64
	if user != nil {
		actor = &user.ID
	}
	h.transition(w, r, models.AlertResolved, actor)
}

// transition moves the alert at {id} to status, recording actor as the
// acknowledged_by/resolved_by column as appropriate, and appends an
// AlertHistory row in the same transaction.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, status string, actor *int64) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid alert id"))
		return
	}

	var changedBy int64
	if actor != nil {
		changedBy = *actor
	}

	ctx := r.Context()
	tx, err := pool.Begin(ctx)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "starting transaction", err))
		return
	}
	defer tx.Rollback(ctx)

	var row pgx.Row
	switch status {
	case models.AlertAcknowledged:
		row = tx.QueryRow(ctx, `
			UPDATE alerts SET status = $2, acknowledged_by = $3
			WHERE id = $1
			RETURNING id, alert_type, severity, service, message, timestamp, status,
			          resolved_at, resolved_by, acknowledged_by, org_id, app_id, instance_id
		`, id, status, actor)
	case models.AlertResolved, models.AlertAutoResolved:
		row = tx.QueryRow(ctx, `
			UPDATE alerts SET status = $2, resolved_at = now(), resolved_by = $3
			WHERE id = $1
			RETURNING id, alert_type, severity, service, message, timestamp, status,
			          resolved_at, resolved_by, acknowledged_by, org_id, app_id, instance_id
		`, id, status, actor)
	default:
		row = tx.QueryRow(ctx, `
			UPDATE alerts SET status = $2
			WHERE id = $1
			RETURNING id, alert_type, severity, service, message, timestamp, status,
			          resolved_at, resolved_by, acknowledged_by, org_id, app_id, instance_id
		`, id, status)
	}

	updated, err := scanAlert(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, apierr.New(apierr.NotFound, "alert not found"))
			return
		}
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "updating alert", err))
		return
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO alert_history (alert_id, status, changed_by) VALUES ($1, $2, $3)
	`, id, status, changedBy); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "recording alert history", err))
		return
	}

	if err := tx.Commit(ctx); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "committing alert transition", err))
		return
	}

	if h.Notifier != nil {
		_ = h.Notifier.PostAlert(ctx, notify.AlertEvent{
			AlertID:     updated.ID,
			Title:       updated.AlertType,
			Severity:    updated.Severity,
			Description: updated.Message,
			Status:      updated.Status,
		})
	}

	httpserver.Respond(w, http.StatusOK, updated)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var a models.Alert
	err := row.Scan(
		&a.ID, &a.AlertType, &a.Severity, &a.Service, &a.Message, &a.Timestamp, &a.Status,
		&a.ResolvedAt, &a.ResolvedBy, &a.AckBy, &a.OrgID, &a.AppID, &a.InstanceID,
	)
	return a, err
}
