package backup

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
	"github.com/omnicloudorg/omniorchestrator/internal/tenant"
)

// Handler serves the backup API for one platform (spec.md §6: POST/GET
// /platform/<pid>/backups). StartBackup runs to completion in the
// background; the backups table row tracks progress so GET reflects it.
type Handler struct {
	Coordinator *Coordinator
}

// NewHandler creates a backup Handler driven by coordinator.
func NewHandler(coordinator *Coordinator) *Handler {
	return &Handler{Coordinator: coordinator}
}

// Routes returns a chi.Router with backup routes mounted under a
// platform-scoped prefix (the tenant.Middleware is applied by the caller).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleGet)
	r.Post("/", h.handleCreate)
	return r
}

type createBackupRequest struct {
	Name              string   `json:"name" validate:"required"`
	SourceEnvironment string   `json:"source_environment" validate:"required"`
	BackupType        string   `json:"backup_type" validate:"required,oneof=full system app"`
	StorageLocation   string   `json:"storage_location" validate:"required"`
	EncryptionMethod  string   `json:"encryption_method"`
	IncludedApps      []string `json:"included_apps"`
	IncludedServices  []string `json:"included_services"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	var req createBackupRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	b := &models.Backup{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Status:            models.BackupPending,
		CreatedAt:         time.Now(),
		SourceEnvironment: req.SourceEnvironment,
		BackupType:        req.BackupType,
		EncryptionMethod:  req.EncryptionMethod,
		StorageLocation:   req.StorageLocation,
		IncludedApps:      req.IncludedApps,
		IncludedServices:  req.IncludedServices,
	}

	if err := insertBackup(r.Context(), pool, b); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "recording backup", err))
		return
	}

	go h.runInBackground(pool, b)

	httpserver.Respond(w, http.StatusAccepted, b)
}

// runInBackground drives the coordinator outside the request's lifetime:
// a full backup run spans every node in the environment and routinely
// outlives an HTTP timeout.
func (h *Handler) runInBackground(pool *pgxpool.Pool, b *models.Backup) {
	ctx := context.Background()
	if err := h.Coordinator.StartBackup(ctx, b); err != nil {
		h.Coordinator.Logger.Error("backup run failed", "backup_id", b.ID, "error", err)
	}
	if err := updateBackup(ctx, pool, b); err != nil {
		h.Coordinator.Logger.Error("persisting backup result failed", "backup_id", b.ID, "error", err)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	pool := tenant.PoolFromContext(r.Context())
	if pool == nil {
		httpserver.RespondError(w, apierr.New(apierr.Internal, "no platform database resolved"))
		return
	}

	id := chi.URLParam(r, "id")
	b, err := getBackup(r.Context(), pool, id)
	if err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, apierr.New(apierr.NotFound, "backup not found"))
			return
		}
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "retrieving backup", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, b)
}

func insertBackup(ctx context.Context, pool *pgxpool.Pool, b *models.Backup) error {
	includedApps, err := json.Marshal(b.IncludedApps)
	if err != nil {
		return err
	}
	includedServices, err := json.Marshal(b.IncludedServices)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(b.Metadata)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO backups (id, name, status, created_at, source_environment, backup_type,
		                      encryption_method, storage_location, included_apps, included_services, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, b.ID, b.Name, b.Status, b.CreatedAt, b.SourceEnvironment, b.BackupType,
		b.EncryptionMethod, b.StorageLocation, includedApps, includedServices, metadata)
	return err
}

func updateBackup(ctx context.Context, pool *pgxpool.Pool, b *models.Backup) error {
	metadata, err := json.Marshal(b.Metadata)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		UPDATE backups SET
			status = $2, completed_at = $3, format_version = $4, size_bytes = $5,
			has_system_core = $6, has_directors = $7, has_orchestrators = $8,
			has_network_config = $9, has_app_definitions = $10, has_volume_data = $11,
			manifest_path = $12, metadata = $13
		WHERE id = $1
	`, b.ID, b.Status, b.CompletedAt, b.FormatVersion, b.SizeBytes,
		b.HasSystemCore, b.HasDirectors, b.HasOrchestrators,
		b.HasNetworkConfig, b.HasAppDefinitions, b.HasVolumeData,
		b.ManifestPath, metadata)
	return err
}

func getBackup(ctx context.Context, pool *pgxpool.Pool, id string) (models.Backup, error) {
	var b models.Backup
	var includedApps, includedServices, metadata []byte

	err := pool.QueryRow(ctx, `
		SELECT id, name, status, created_at, completed_at, source_environment, backup_type,
		       format_version, encryption_method, size_bytes, has_system_core, has_directors,
		       has_orchestrators, has_network_config, has_app_definitions, has_volume_data,
		       included_apps, included_services, storage_location, manifest_path, metadata
		FROM backups WHERE id = $1
	`, id).Scan(
		&b.ID, &b.Name, &b.Status, &b.CreatedAt, &b.CompletedAt, &b.SourceEnvironment, &b.BackupType,
		&b.FormatVersion, &b.EncryptionMethod, &b.SizeBytes, &b.HasSystemCore, &b.HasDirectors,
		&b.HasOrchestrators, &b.HasNetworkConfig, &b.HasAppDefinitions, &b.HasVolumeData,
		&includedApps, &includedServices, &b.StorageLocation, &b.ManifestPath, &metadata,
	)
	if err != nil {
		return models.Backup{}, err
	}

	if len(includedApps) > 0 {
		_ = json.Unmarshal(includedApps, &b.IncludedApps)
	}
	if len(includedServices) > 0 {
		_ = json.Unmarshal(includedServices, &b.IncludedServices)
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &b.Metadata)
	}

	return b, nil
}
