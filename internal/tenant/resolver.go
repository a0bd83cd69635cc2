// Package tenant implements the TenantResolver (spec.md §4.6): it maps
// the platform_id path parameter of a request onto that platform's
// dedicated database pool and stores it in the request context.
package tenant

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// PoolResolver abstracts platformdb.Manager so tenant can be tested
// without a real database.
type PoolResolver interface {
	GetPlatform(ctx context.Context, id int64) (*models.Platform, error)
	GetPlatformPool(ctx context.Context, platformID int64, platformName string) (*pgxpool.Pool, error)
}

type contextKey string

const (
	platformKey contextKey = "omniorch.platform"
	poolKey     contextKey = "omniorch.platform_pool"
)

// FromContext returns the platform resolved for the current request.
func FromContext(ctx context.Context) *models.Platform {
	p, _ := ctx.Value(platformKey).(*models.Platform)
	return p
}

// PoolFromContext returns the platform-scoped database pool resolved for
// the current request.
func PoolFromContext(ctx context.Context) *pgxpool.Pool {
	p, _ := ctx.Value(poolKey).(*pgxpool.Pool)
	return p
}

// Middleware resolves the "platform_id" chi URL parameter to a platform
// and its database pool, provisioning the pool on first access. Routes
// mounted under this middleware must declare a {platform_id} segment.
func Middleware(resolver PoolResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := chi.URLParam(r, "platform_id")
			platformID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httpserver.RespondError(w, apierr.New(apierr.BadRequest, "invalid platform_id"))
				return
			}

			platform, err := resolver.GetPlatform(r.Context(), platformID)
			if err != nil {
				httpserver.RespondError(w, apierr.Wrap(apierr.NotFound, "platform not found", err))
				return
			}

			pool, err := resolver.GetPlatformPool(r.Context(), platform.ID, platform.Name)
			if err != nil {
				logger.Error("resolving platform pool failed", "platform_id", platform.ID, "error", err)
				httpserver.RespondError(w, apierr.Wrap(apierr.ConnectionError, "platform database unavailable", err))
				return
			}

			ctx := context.WithValue(r.Context(), platformKey, platform)
			ctx = context.WithValue(ctx, poolKey, pool)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
