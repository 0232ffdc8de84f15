package auth

import (
	"testing"
	"time"

	"crm-softphone/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, "user-1", "ws-1", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.WorkspaceID != "ws-1" || claims.Role != "agent" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, "u", "w", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Past TTL plus the 30s clock-skew leeway.
	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(5*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuer, _ := NewManager(config.AuthConfig{
		JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "console", AccessTokenTTL: time.Minute,
	})
	other, _ := NewManager(config.AuthConfig{
		JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "reporting", AccessTokenTTL: time.Minute,
	})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := issuer.IssueAccess(now, "u", "w", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected audience error")
	}
	if _, err := issuer.Verify(tok, TokenTypeAccess, now); err != nil {
		t.Fatalf("verify with matching audience: %v", err)
	}
}

func TestVerifyRejectsTamperedSecret(t *testing.T) {
	m1, _ := NewManager(config.AuthConfig{JWTSecret: "secret-a", AccessTokenTTL: time.Minute})
	m2, _ := NewManager(config.AuthConfig{JWTSecret: "secret-b", AccessTokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m1.IssueAccess(now, "u", "w", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m2.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected signature error")
	}
}
