package auth

import (
	"context"
	"testing"
	"time"
)

func TestWithSessionAndFromContext(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	ctx := WithSession(context.Background(), Session{Token: "tok", UserID: "7", ExpiresAt: exp})

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected Session in context")
	}
	if got.Token != "tok" {
		t.Errorf("Token = %q, want %q", got.Token, "tok")
	}
	if UserID(ctx) != "7" {
		t.Errorf("UserID = %q, want %q", UserID(ctx), "7")
	}
	if Token(ctx) != "tok" {
		t.Errorf("Token() = %q", Token(ctx))
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing Session")
	}
	if UserID(context.Background()) != "" {
		t.Error("expected empty user id")
	}
}

func TestSessionValid(t *testing.T) {
	now := time.Now()
	if (Session{}).Valid(now) {
		t.Error("empty session should be invalid")
	}
	if !(Session{Token: "x"}).Valid(now) {
		t.Error("session without expiry should be valid")
	}
	if (Session{Token: "x", ExpiresAt: now.Add(-time.Minute)}).Valid(now) {
		t.Error("expired session should be invalid")
	}
}
