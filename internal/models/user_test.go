package models

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewUserCreatesHash(t *testing.T) {
	user, err := NewUser("admin", "secret-password", bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	if user.PasswordHash == "" {
		t.Fatalf("expected password hash to be set")
	}
	if !user.IsAdmin || !user.IsActive {
		t.Fatalf("expected new user to be an active admin")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret-password")); err != nil {
		t.Fatalf("password hash did not match: %v", err)
	}
}
