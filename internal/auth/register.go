package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/omnicloudorg/omniorchestrator/internal/apierr"
	"github.com/omnicloudorg/omniorchestrator/internal/httpserver"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint violation.
const uniqueViolation = "23505"

// CreateUserRequest is the JSON body for POST /users/create.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// HandleCreate registers a new user with a bcrypt-hashed, per-user-salted
// password, mirroring the salt+hash shape HandleLogin verifies against.
func (h *LoginHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	salt, err := newSalt()
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "generating salt", err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password+salt), bcrypt.DefaultCost)
	if err != nil {
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "hashing password", err))
		return
	}

	var userID int64
	err = h.Pool.QueryRow(r.Context(), `
		INSERT INTO users (email, password_hash, salt)
		VALUES ($1, $2, $3)
		RETURNING id
	`, req.Email, string(hash), salt).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			httpserver.RespondError(w, apierr.New(apierr.Conflict, "email already registered"))
			return
		}
		httpserver.RespondError(w, apierr.Wrap(apierr.Internal, "creating user", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"id": userID, "email": req.Email})
}

// newSalt returns a random 16-byte hex-encoded salt.
func newSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
