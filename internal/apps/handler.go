// Package apps serves the App/Build CRUD surface of spec.md §6: listing,
// creation, deletion (which terminates every running instance), and
// version-release uploads that record a new Build.
package apps

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// maxReleaseUploadBytes bounds the multipart body accepted by the release
// upload endpoint; OmniOrchestrator only records metadata about a release,
// not the artifact bytes themselves (spec.md §1 Non-goals exclude running
// workloads), so an oversized multipart body is always a client mistake.
const maxReleaseUploadBytes = 64 << 20

// Handler serves the app API for one platform.
type Handler struct{}

// NewHandler creates an apps Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// Routes returns a chi.Router with app routes mounted under a
// platform-scoped prefix (the tenant.Middleware is applied by the caller).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/releases/{version}/upload", h.handleUploadRelease)
	return r
}

type createAppRequest struct {
	Name     string `json:"name" validate:"required"`
	OrgID    int64  `json:"org_id" validate:"required"`
	RegionID int64  `json:"region_id" validate:"required"`
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

	ctx := r.Context()
	rows, err := pool.Query(ctx, `
		SELECT id, name, org_id, region_id, created_at, updated_at
		FROM apps ORDER BY id LIMIT $1 OFFSET $2
	`, params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "listing apps", err))
		return
	}
	defer rows.Close()

	list := make([]models.App, 0, params.PageSize)
	for rows.Next() {
		var a models.App
		if err := rows.Scan(&a.ID, &a.Name, &a.OrgID, &a.RegionID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "scanning app row", err))
			return
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "reading app rows", err))
		return
	}

	var total int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM apps").Scan(&total); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "counting apps", err))
		return
	}

	page := httpserver.NewOffsetPage(list, params, total)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"apps": page.Items,
		"pagination": map[string]any{
			"page":        page.Page,
			"per_page":    page.PageSize,
			"total_count": page.TotalItems,
			"total_pages": page.TotalPages,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid app id"))
		return
	}

	var a models.App
	err = pool.QueryRow(r.Context(), `
		SELECT id, name, org_id, region_id, created_at, updated_at
		FROM apps WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.OrgID, &a.RegionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, apierr.New(apierr.NotFound, "app not found"))
			return
		}
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "retrieving app", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, a)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	var req createAppRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var a models.App
	err := pool.QueryRow(r.Context(), `
		INSERT INTO apps (name, org_id, region_id)
		VALUES ($1, $2, $3)
		RETURNING id, name, org_id, region_id, created_at, updated_at
	`, req.Name, req.OrgID, req.RegionID).Scan(&a.ID, &a.Name, &a.OrgID, &a.RegionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "creating app", err))
		return
	}

	httpserver.Respond(w, http.StatusCreated, a)
}

// handleDelete removes the app and, per spec.md §3, marks every one of
// its running instances terminated, in the same transaction, before the
// app row itself is removed. The ON DELETE CASCADE on instances.app_id
// then drops those instance rows along with the app, so no instance rows
// of the app remain after the commit.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid app id"))
		return
	}

	ctx := r.Context()
	tx, err := pool.Begin(ctx)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "starting transaction", err))
		return
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE instances SET status = 'terminated', instance_status = 'terminated', updated_at = now()
		WHERE app_id = $1 AND instance_status <> 'terminated'
	`, id); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "terminating instances", err))
		return
	}

	tag, err := tx.Exec(ctx, "DELETE FROM apps WHERE id = $1", id)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "deleting app", err))
		return
	}
	if tag.RowsAffected() == 0 {
		httpserver.RespondError(w, apierr.New(apierr.NotFound, "app not found"))
		return
	}

	if err := tx.Commit(ctx); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "committing app deletion", err))
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleUploadRelease accepts a multipart/form-data upload for app <id>,
// version <version>, and records it as a completed Build. The uploaded
// artifact itself is not persisted (spec.md §1 Non-goals): only a build
// row with the app id, version and success status is; the artifact's size
// is not recorded.
func (h *Handler) handleUploadRelease(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	appID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid app id"))
		return
	}
	version := chi.URLParam(r, "version")
	if version == "" {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "missing version"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReleaseUploadBytes)
	if err := r.ParseMultipartForm(maxReleaseUploadBytes); err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid multipart upload: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("artifact")
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "missing artifact file"))
		return
	}
	defer file.Close()

	var b models.Build
	err = pool.QueryRow(r.Context(), `
		INSERT INTO builds (app_id, version, status, completed_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, app_id, version, status, created_at, completed_at
	`, appID, version, models.BuildSuccess).Scan(&b.ID, &b.AppID, &b.Version, &b.Status, &b.CreatedAt, &b.CompletedAt)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "recording build", err))
		return
	}

	httpserver.Respond(w, http.StatusCreated, b)
}
