package api

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	if got := parseDuration("30m"); got != 30*time.Minute {
		t.Fatalf("parseDuration(30m) = %v", got)
	}
	// Unparseable values fall back to 15 minutes rather than breaking auth.
	if got := parseDuration("not-a-duration"); got != 15*time.Minute {
		t.Fatalf("expected 15 minute fallback, got %v", got)
	}
	if got := parseDuration(""); got != 15*time.Minute {
		t.Fatalf("expected 15 minute fallback for empty value, got %v", got)
	}
}
