package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// Handler serves the audit log read API for one platform
// (GET /platform/<pid>/audit-log, per original_source's audit_log.rs).
type Handler struct {
	writer *Writer
}

// NewHandler creates an audit log Handler backed by writer.
func NewHandler(writer *Writer) *Handler {
	return &Handler{writer: writer}
}

// Routes returns a chi.Router with audit log routes mounted under a
// platform-scoped prefix (the tenant.Middleware is applied by the caller).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

// LogFromRequest enqueues an audit entry using the platform and pool
// already resolved onto the request context, the client IP and user agent
// read from the request headers, and the
// user id passed explicitly by the calling handler (the acting user may
// differ from the session's nominal owner, e.g. service accounts).
func (h *Handler) LogFromRequest(r *http.Request, userID *int64, action, resourceType, resourceID string) {
	platform := tenant.FromContext(r.Context())
	if platform == nil {
		return
	}

	h.writer.Log(Entry{
		PlatformID: platform.ID,
		Pool:       tenant.PoolFromContext(r.Context()),
		UserID:     userID,
		Action:     action,
		Resource:   resourceType,
		ResourceID: resourceID,
		IPAddress:  ClientIP(r.RemoteAddr, r.Header.Get("X-Forwarded-For"), r.Header.Get("X-Real-IP")),
		UserAgent:  r.Header.Get("User-Agent"),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, err.Error()))
		return
	}

	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	ctx := r.Context()

	rows, err := pool.Query(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, ip_address, user_agent, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "listing audit log", err))
		return
	}
	defer rows.Close()

	entries := make([]models.AuditLogEntry, 0, params.PageSize)
	for rows.Next() {
		var e models.AuditLogEntry
		var ip, ua *string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &ip, &ua, &e.CreatedAt); err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "scanning audit log row", err))
			return
		}
		if ip != nil {
			e.IPAddress = *ip
		}
		if ua != nil {
			e.UserAgent = *ua
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "reading audit log rows", err))
		return
	}

	var total int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM audit_log").Scan(&total); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "counting audit log", err))
		return
	}

	page := httpserver.NewOffsetPage(entries, params, total)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"audit_logs": page.Items,
		"pagination": map[string]any{
			"page":        page.Page,
			"per_page":    page.PageSize,
			"total_count": page.TotalItems,
			"total_pages": page.TotalPages,
		},
	})
}
