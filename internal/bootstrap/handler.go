package bootstrap

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// Handler serves the cloud bootstrap API (spec.md §6), mounted under
// /platform/<pid>/bootstrap: POST /init, GET /<cloud>/status, and the
// per-phase trigger endpoints.
// The state machine runs hosts, network, monitoring, and backup setup as
// one automatic sequence once started (spec.md §4.10), so the per-phase
// trigger endpoints report the current snapshot rather than re-driving an
// already-running phase.
type Handler struct {
	Machine *StateMachine
}

// NewHandler creates a bootstrap Handler driven by machine.
func NewHandler(machine *StateMachine) *Handler {
	return &Handler{Machine: machine}
}

// Routes returns a chi.Router with bootstrap routes mounted at the root.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/init", h.handleInit)
	r.Get("/{cloud}/status", h.handleStatus)
	r.Post("/{cloud}/hosts/{name}/bootstrap", h.handleStatus)
	r.Post("/{cloud}/network/configure", h.handleStatus)
	r.Post("/{cloud}/monitoring/setup", h.handleStatus)
	r.Post("/{cloud}/backups/setup", h.handleStatus)
	return r
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request) {
	var cfg models.CloudConfig
	if !httpserver.DecodeAndValidate(w, r, &cfg) {
		return
	}
	if cfg.CloudName == "" {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "cloud_name is required"))
		return
	}

	h.Machine.Start(context.WithoutCancel(r.Context()), cfg)

	httpserver.Respond(w, http.StatusAccepted, map[string]any{
		"cloud_name": cfg.CloudName,
		"status":     "started",
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	cloud := chi.URLParam(r, "cloud")
	if cloud == "" {
		httpserver.RespondError(w, apierr.New(apierr.BadRequest, "missing cloud name"))
		return
	}

	hosts := h.Machine.Hosts(cloud)
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"cloud_name": cloud,
		"hosts":      hosts,
	})
}
