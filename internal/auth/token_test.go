package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testUser() *User {
	return &User{
		ID:           "user-1",
		Email:        "ada@example.com",
		Role:         "manager",
		TokenVersion: 3,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	signer, err := NewTokenSigner("test-secret")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}

	token, claims, err := signer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}

	parsed, err := signer.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if parsed.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", parsed.Subject)
	}
	if parsed.Email != "ada@example.com" || parsed.Role != "manager" {
		t.Fatalf("identity claims not preserved: %+v", parsed)
	}
	if parsed.TokenVersion != 3 {
		t.Fatalf("token version not preserved: %d", parsed.TokenVersion)
	}
	if parsed.ID != claims.ID {
		t.Fatalf("jti changed across parse: %s vs %s", parsed.ID, claims.ID)
	}
}

func TestTokenJTIUniquePerIssue(t *testing.T) {
	signer, err := NewTokenSigner("test-secret")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	_, c1, err := signer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, c2, err := signer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if c1.ID == c2.ID {
		t.Fatalf("expected distinct jtis, both were %s", c1.ID)
	}
}

func TestTokenVerificationFailures(t *testing.T) {
	signer, err := NewTokenSigner("test-secret")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	token, _, err := signer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered payload", tamper(token)},
		{"truncated", token[:len(token)-10]},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := signer.ParseAndValidate(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}

	other, err := NewTokenSigner("different-secret")
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	if _, err := other.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }

	signer, err := NewTokenSigner("test-secret", WithTokenTTL(time.Hour), WithSignerClock(clock))
	if err != nil {
		t.Fatalf("NewTokenSigner: %v", err)
	}
	token, _, err := signer.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := signer.ParseAndValidate(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := signer.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

// tamper flips a character inside the payload segment, keeping the
// header.payload.signature structure intact.
func tamper(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || len(parts[1]) == 0 {
		return token + "x"
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	parts[1] = string(payload)
	return strings.Join(parts, ".")
}
