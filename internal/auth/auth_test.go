package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifierRoundTrip(t *testing.T) {
	v, err := NewTokenVerifier("test-secret", WithIssuer("test-issuer"))
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	token, err := v.GenerateToken(" user-42 ", "ops@example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.ID != "user-42" {
		t.Fatalf("unexpected subject: %s", id.ID)
	}
	if id.Email != "ops@example.com" {
		t.Fatalf("unexpected email: %s", id.Email)
	}
	if id.SessionID == "" {
		t.Fatal("expected session id from jti")
	}

	other, err := v.GenerateToken("user-42", "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	second, err := v.Verify(other)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if second.SessionID == id.SessionID {
		t.Fatal("expected distinct session ids per token")
	}
}

func TestTokenVerifierRejects(t *testing.T) {
	v, err := NewTokenVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	expired, err := (&TokenVerifier{secret: []byte("test-secret"), issuer: DefaultIssuer, now: func() time.Time { return past }}).
		GenerateToken("user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	wrongSecret, _ := NewTokenVerifier("other-secret")
	foreign, err := wrongSecret.GenerateToken("user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	wrongIssuer, _ := NewTokenVerifier("test-secret", WithIssuer("someone-else"))
	otherIssuer, err := wrongIssuer.GenerateToken("user-1", "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	noJTI, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    DefaultIssuer,
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": foreign,
		"wrong issuer": otherIssuer,
		"missing jti":  noJTI,
	} {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTokenVerifier("  "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestGenerateTokenValidatesInput(t *testing.T) {
	v, _ := NewTokenVerifier("test-secret")
	if _, err := v.GenerateToken("", "", time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := v.GenerateToken("user-1", "", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
