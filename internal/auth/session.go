package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

// TokenClaims mirrors spec.md §4.5: {sub, iat, exp, user_data}. The gate
// trusts the JWT signature, not the embedded user_data — it re-fetches the
// user by sub to honour active/inactive changes made after the token was
// issued.
type TokenClaims struct {
	UserData models.User `json:"user_data"`
}

// TokenIssuer issues and validates self-signed HS256 JWTs.
type TokenIssuer struct {
	signingKey []byte
	maxAge     time.Duration
}

// NewTokenIssuer creates a token issuer. The secret must be at least 32
// bytes, matching HS256's minimum recommended key size.
func NewTokenIssuer(secret string, maxAge time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenIssuer{signingKey: []byte(secret), maxAge: maxAge}, nil
}

// GenerateDevSecret generates a random 32-byte hex-encoded secret, for
// startup when OMNI_ORCH_JWT_SECRET is unset.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// Issue creates a signed JWT with sub = user.ID and the projected user
// embedded as user_data.
func (ti *TokenIssuer) Issue(user models.User) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: ti.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:  fmt.Sprintf("%d", user.ID),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ti.maxAge)),
	}

	token, err := jwt.Signed(signer).
		Claims(registered).
		Claims(TokenClaims{UserData: user}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Validate verifies the JWT signature and expiry, returning the subject
// (user id, as a string) encoded in the token. Callers must re-fetch the
// user rather than trust the embedded user_data.
func (ti *TokenIssuer) Validate(raw string) (subject string, err error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	if err := tok.Claims(ti.signingKey, &registered); err != nil {
		return "", fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return "", fmt.Errorf("validating claims: %w", err)
	}

	return registered.Subject, nil
}
