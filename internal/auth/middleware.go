package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

type contextKey string

const userContextKey contextKey = "omniorch.user"

// UserFromContext returns the authenticated user populated by Gate.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userContextKey).(*models.User)
	return u, ok
}

// Gate implements the AuthGate (spec.md §4.5): it validates a bearer JWT
// or a session cookie, re-fetches the user to honour the current active
// flag, and stores the user in the request context.
type Gate struct {
	Issuer *TokenIssuer
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// Middleware authenticates every request per spec.md §4.5-§7: absence of
// credentials on a protected route is 401, an inactive user is 403.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.authenticate(r)
		if err != nil {
			httpserver.RespondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *Gate) authenticate(r *http.Request) (*models.User, error) {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") || strings.HasPrefix(authHeader, "bearer ") {
		raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(authHeader, "Bearer "), "bearer "))

		subject, err := g.Issuer.Validate(raw)
		if err != nil {
			return nil, apierr.Wrap(apierr.Unauthorized, "invalid token", err)
		}

		userID, err := strconv.ParseInt(subject, 10, 64)
		if err != nil {
			return nil, apierr.New(apierr.Unauthorized, "invalid token subject")
		}

		return g.fetchActiveUser(r.Context(), userID)
	}

	if cookie, err := r.Cookie("session_id"); err == nil && cookie.Value != "" {
		return g.authenticateSession(r, cookie.Value)
	}

	return nil, apierr.New(apierr.Unauthorized, "no valid authentication provided")
}

func (g *Gate) authenticateSession(r *http.Request, token string) (*models.User, error) {
	var userID int64
	var isActive bool
	var expiresAt time.Time

	err := g.Pool.QueryRow(r.Context(), `
		SELECT user_id, is_active, expires_at
		FROM user_sessions WHERE session_token = $1
	`, token).Scan(&userID, &isActive, &expiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierr.New(apierr.Unauthorized, "session not found")
		}
		return nil, apierr.Wrap(apierr.Internal, "looking up session", err)
	}

	if !isActive || !expiresAt.After(time.Now()) {
		return nil, apierr.New(apierr.Unauthorized, "session expired")
	}

	user, err := g.fetchActiveUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}

	if _, err := g.Pool.Exec(r.Context(),
		"UPDATE user_sessions SET last_activity = now() WHERE session_token = $1", token,
	); err != nil {
		g.Logger.Warn("failed to update session last_activity", "error", err)
	}

	return user, nil
}

func (g *Gate) fetchActiveUser(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := g.Pool.QueryRow(ctx, `
		SELECT id, email, password_hash, salt, active, status, login_attempts,
		       created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, userID).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Salt, &u.Active, &u.Status, &u.LoginAttempts,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apierr.New(apierr.Unauthorized, "user not found")
		}
		return nil, apierr.Wrap(apierr.Internal, "looking up user", err)
	}

	if !u.Active {
		return nil, apierr.New(apierr.Forbidden, "user is not active")
	}

	return &u, nil
}
