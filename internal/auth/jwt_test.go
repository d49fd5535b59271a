package auth

import (
	"testing"
	"time"

	"github.com/erazemk/buddybuy/internal/model"
)

var testUser = model.Identity{ID: "user-1", Email: "alice@example.com"}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testUser)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.Identity() != testUser {
		t.Errorf("expected identity %+v, got %+v", testUser, claims.Identity())
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testUser)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, testUser)
	claims, _ := ValidateToken(secret, token)

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := time.Now().Add(TokenExpiry)

	// Should be within a few seconds.
	diff := expectedExpiry.Sub(expiresAt)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}

	if claims.Expired(time.Now()) {
		t.Error("fresh token reported as expired")
	}
	if !claims.Expired(time.Now().Add(TokenExpiry + time.Minute)) {
		t.Error("expected token to be expired after its lifetime")
	}
}

func TestDecodeTokenWithoutSecret(t *testing.T) {
	token, _ := GenerateToken("server-only", testUser)

	claims, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if claims.Identity() != testUser {
		t.Errorf("expected identity %+v, got %+v", testUser, claims.Identity())
	}

	if _, err := DecodeToken("garbage"); err == nil {
		t.Error("expected error for malformed token")
	}
}
