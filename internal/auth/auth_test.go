package auth

import (
	"context"
	"testing"
	"time"

	"github.com/omnicloudorg/omniorchestrator/internal/models"
)

func TestUserContext(t *testing.T) {
	ctx := context.Background()

	if u, ok := UserFromContext(ctx); ok || u != nil {
		t.Fatalf("expected no user in empty context, got %+v", u)
	}

	user := &models.User{ID: 42, Email: "jane@example.com", Active: true}
	ctx = context.WithValue(ctx, userContextKey, user)

	got, ok := UserFromContext(ctx)
	if !ok {
		t.Fatal("expected user present in context")
	}
	if got.ID != 42 {
		t.Errorf("ID = %d, want 42", got.ID)
	}
}

func TestTokenIssuerRequiresMinimumSecretLength(t *testing.T) {
	if _, err := NewTokenIssuer("too-short", time.Hour); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestTokenIssueAndValidateRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	user := models.User{ID: 7, Email: "jane@example.com", Active: true}
	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	subject, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if subject != "7" {
		t.Errorf("subject = %q, want %q", subject, "7")
	}
}

func TestTokenValidateRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef0123456789abcdef", -time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, err := issuer.Issue(models.User{ID: 1})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := issuer.Validate(token); err == nil {
		t.Fatal("expected validation error for expired token")
	}
}

func TestTokenValidateRejectsTamperedSignature(t *testing.T) {
	issuerA, err := NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	issuerB, err := NewTokenIssuer("fedcba9876543210fedcba9876543210", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, err := issuerA.Issue(models.User{ID: 1})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := issuerB.Validate(token); err == nil {
		t.Fatal("expected validation error for token signed with a different key")
	}
}
