package auth

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery", 4)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal the plaintext")
	}

	if err := VerifyPassword("correct horse battery", hash); err != nil {
		t.Fatalf("correct password should verify: %v", err)
	}
	if err := VerifyPassword("incorrect horse", hash); err == nil {
		t.Fatal("wrong password must fail verification")
	}
}

func TestHashPasswordClampsBadCost(t *testing.T) {
	// An out-of-range bcrypt_cost falls back to the default instead of
	// erroring, so a bad config value cannot lock out admin setup.
	hash, err := HashPassword("pw", 99)
	if err != nil {
		t.Fatalf("out-of-range cost should be clamped: %v", err)
	}
	if err := VerifyPassword("pw", hash); err != nil {
		t.Fatalf("hash from clamped cost should verify: %v", err)
	}
}
