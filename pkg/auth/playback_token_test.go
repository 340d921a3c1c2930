package auth_test

import (
	"testing"
	"time"

	"github.com/rework/video-access/pkg/auth"
)

func TestPlaybackToken_RoundTrip(t *testing.T) {
	token, expiresAt, err := auth.NewPlaybackToken("session-1", "secret", 5*time.Minute)
	if err != nil {
		t.Fatalf("NewPlaybackToken failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("Token already expired: %v", expiresAt)
	}

	claims, err := auth.ParsePlaybackToken(token, "secret")
	if err != nil {
		t.Fatalf("ParsePlaybackToken failed: %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Fatalf("Expected session-1, got %s", claims.SessionID)
	}
	if claims.Nonce == "" {
		t.Fatal("Expected a nonce")
	}
}

func TestPlaybackToken_DistinctNonces(t *testing.T) {
	a, _, _ := auth.NewPlaybackToken("session-1", "secret", time.Minute)
	b, _, _ := auth.NewPlaybackToken("session-1", "secret", time.Minute)
	if a == b {
		t.Fatal("Two issued tokens for the same session must differ")
	}
}

func TestPlaybackToken_WrongSecret_Rejected(t *testing.T) {
	token, _, err := auth.NewPlaybackToken("session-1", "secret", time.Minute)
	if err != nil {
		t.Fatalf("NewPlaybackToken failed: %v", err)
	}
	if _, err := auth.ParsePlaybackToken(token, "other-secret"); err == nil {
		t.Fatal("Expected signature verification to fail")
	}
}

func TestPlaybackToken_Expired_Rejected(t *testing.T) {
	token, _, err := auth.NewPlaybackToken("session-1", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("NewPlaybackToken failed: %v", err)
	}
	if _, err := auth.ParsePlaybackToken(token, "secret"); err == nil {
		t.Fatal("Expected expired token to be rejected")
	}
}
