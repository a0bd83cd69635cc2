package platformdb

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// Handler serves the main-database-scoped platform CRUD API (spec.md §6:
// POST/GET /platforms, DELETE /platforms/<id>).
type Handler struct {
	mgr *Manager
}

// NewHandler creates a platform Handler backed by mgr.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Routes returns a chi.Router with platform routes mounted at the root
// ("/platforms", with "/platforms/{id}" for deletion).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.mgr.ListPlatforms(r.Context())
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "listing platforms", err))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"platforms": platforms})
}

type createPlatformRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPlatformRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	created, err := h.mgr.CreatePlatform(r.Context(), models.Platform{Name: req.Name, Description: req.Description})
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "creating platform", err))
		return
	}
	httpserver.Respond(w, http.StatusCreated, created)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid platform id"))
		return
	}

	if err := h.mgr.DeletePlatform(r.Context(), id); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.NotFound, "platform not found", err))
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}
