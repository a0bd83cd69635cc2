package tenant

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

type fakeResolver struct {
	platform *models.Platform
	getErr   error
	poolErr  error
}

func (f *fakeResolver) GetPlatform(ctx context.Context, id int64) (*models.Platform, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.platform, nil
}

func (f *fakeResolver) GetPlatformPool(ctx context.Context, platformID int64, platformName string) (*pgxpool.Pool, error) {
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	return nil, nil
}

func TestMiddlewareRejectsNonNumericPlatformID(t *testing.T) {
	resolver := &fakeResolver{}
	handler := Middleware(resolver, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := chi.NewRouter()
	r.With(func(next http.Handler) http.Handler { return handler }).Get("/platforms/{platform_id}/ping", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/platforms/not-a-number/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMiddlewareSetsPlatformInContext(t *testing.T) {
	platform := &models.Platform{ID: 7, Name: "acme"}
	resolver := &fakeResolver{platform: platform}

	var gotPlatform *models.Platform
	handler := Middleware(resolver, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPlatform = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	r := chi.NewRouter()
	r.Get("/platforms/{platform_id}/ping", handler.ServeHTTP)

	req := httptest.NewRequest(http.MethodGet, "/platforms/7/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotPlatform == nil || gotPlatform.ID != 7 {
		t.Fatalf("platform not set in context correctly: %+v", gotPlatform)
	}
}

func TestMiddlewareReturns404WhenPlatformMissing(t *testing.T) {
	resolver := &fakeResolver{getErr: context.DeadlineExceeded}
	handler := Middleware(resolver, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	r := chi.NewRouter()
	r.Get("/platforms/{platform_id}/ping", handler.ServeHTTP)

	req := httptest.NewRequest(http.MethodGet, "/platforms/7/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
