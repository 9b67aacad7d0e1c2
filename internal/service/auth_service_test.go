package service

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testAuthConfig(t *testing.T, password string) AuthConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return AuthConfig{
		Username:     "admin",
		PasswordHash: string(hash),
		SigningKey:   "test-signing-key",
		TokenTTL:     time.Minute,
	}
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	s := NewAuthService(testAuthConfig(t, "bridgepass"))

	token, err := s.GenerateToken("admin", "bridgepass")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	username, err := s.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if username != "admin" {
		t.Fatalf("username = %q, want admin", username)
	}
}

func TestAuthService_RejectsBadCredentials(t *testing.T) {
	s := NewAuthService(testAuthConfig(t, "bridgepass"))

	if _, err := s.GenerateToken("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := s.GenerateToken("someone", "bridgepass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthService_RejectsForeignToken(t *testing.T) {
	s := NewAuthService(testAuthConfig(t, "bridgepass"))
	other := NewAuthService(AuthConfig{
		Username:     "admin",
		PasswordHash: s.cfg.PasswordHash,
		SigningKey:   "different-key",
		TokenTTL:     time.Minute,
	})

	token, err := other.GenerateToken("admin", "bridgepass")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("token signed with a different key must be rejected")
	}
}

func TestAuthService_RejectsExpiredToken(t *testing.T) {
	s := NewAuthService(testAuthConfig(t, "bridgepass"))
	// NewAuthService replaces non-positive TTLs with the default, so
	// force expiry directly.
	s.cfg.TokenTTL = -time.Minute

	token, err := s.GenerateToken("admin", "bridgepass")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := s.ParseToken(token); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestAuthService_GarbageToken(t *testing.T) {
	s := NewAuthService(testAuthConfig(t, "bridgepass"))
	if _, err := s.ParseToken("not-a-jwt"); err == nil {
		t.Fatal("garbage token must be rejected")
	}
}
