package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// LoginHandler handles POST /users/login and POST /users/create
// (spec.md §7). GET /me is served by a separate function, not by a
// LoginHandler method.
type LoginHandler struct {
	Issuer      *TokenIssuer
	Pool        *pgxpool.Pool
	RateLimiter *RateLimiter // optional; nil disables rate limiting
}

// HandleLogin authenticates a user by email/password and issues a JWT
// whose sub is the user's id.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ip := clientIP(r)
	if h.RateLimiter != nil {
		result, err := h.RateLimiter.Check(r.Context(), ip)
		if err != nil {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "checking rate limit", err))
			return
		}
		if !result.Allowed {
			httpserver.RespondError(w, apierr.New(apierr.Conflict, "too many login attempts, try again later"))
			return
		}
	}

	var u models.User
	err := h.Pool.QueryRow(r.Context(), `
		SELECT id, email, password_hash, salt, active, status, login_attempts,
		       created_at, updated_at, last_login_at
		FROM users WHERE email = $1
	`, req.Email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Salt, &u.Active, &u.Status, &u.LoginAttempts,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		if err != pgx.ErrNoRows {
			httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "looking up user", err))
			return
		}
		httpserver.RespondError(w, apierr.New(apierr.Unauthorized, "invalid email or password"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password+u.Salt)); err != nil {
		h.recordFailedLogin(r.Context(), u.ID)
		if h.RateLimiter != nil {
			_ = h.RateLimiter.Record(r.Context(), ip)
		}
		httpserver.RespondError(w, apierr.New(apierr.Unauthorized, "invalid email or password"))
		return
	}

	if !u.Active {
		httpserver.RespondError(w, apierr.New(apierr.Forbidden, "user is not active"))
		return
	}

	if err := h.recordSuccessfulLogin(r.Context(), u.ID); err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "updating login record", err))
		return
	}
	if h.RateLimiter != nil {
		_ = h.RateLimiter.Reset(r.Context(), ip)
	}

	token, err := h.Issuer.Issue(u)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "issuing token", err))
		return
	}

	u.PasswordHash = ""
	httpserver.Respond(w, http.StatusOK, LoginResponse{Token: token, User: u})
}

func (h *LoginHandler) recordFailedLogin(ctx context.Context, userID int64) {
	if _, err := h.Pool.Exec(ctx,
		"UPDATE users SET login_attempts = login_attempts + 1, updated_at = now() WHERE id = $1", userID,
	); err != nil {
		// Logging this failure is not worth rejecting the request over;
		// the caller already gets an unauthorized response.
		_ = err
	}
}

func (h *LoginHandler) recordSuccessfulLogin(ctx context.Context, userID int64) error {
	_, err := h.Pool.Exec(ctx,
		"UPDATE users SET login_attempts = 0, last_login_at = now(), updated_at = now() WHERE id = $1", userID,
	)
	if err != nil {
		return fmt.Errorf("recording successful login: %w", err)
	}
	return nil
}

// clientIP extracts the caller's address for rate limiting, preferring
// X-Forwarded-For (set by a trusted reverse proxy) over RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HandleMe returns the authenticated user resolved by Gate.Middleware.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, apierr.New(apierr.Unauthorized, "no authenticated user"))
		return
	}
	httpserver.Respond(w, http.StatusOK, user)
}
