package auth

import (
	"testing"
	"time"
)

func TestJWTManagerGenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", 10*time.Minute, 24*time.Hour)

	pair, tokenHash, err := manager.GenerateTokenPair(1, "admin", true)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected tokens to be generated")
	}
	if tokenHash == "" {
		t.Fatalf("expected refresh token hash to be generated")
	}

	claims, err := manager.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("failed to validate access token: %v", err)
	}
	if claims.UserID != 1 || claims.Username != "admin" || !claims.IsAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if manager.HashRefreshToken(pair.RefreshToken) != tokenHash {
		t.Fatalf("refresh token hash mismatch")
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", -time.Minute, 24*time.Hour)

	pair, _, err := manager.GenerateTokenPair(1, "admin", true)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	if _, err := manager.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestJWTManagerRejectsWrongSecret(t *testing.T) {
	manager := NewJWTManager("test-secret", 10*time.Minute, 24*time.Hour)
	other := NewJWTManager("other-secret", 10*time.Minute, 24*time.Hour)

	pair, _, err := manager.GenerateTokenPair(1, "admin", true)
	if err != nil {
		t.Fatalf("failed to generate token pair: %v", err)
	}

	if _, err := other.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}
