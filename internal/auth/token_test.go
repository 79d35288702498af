package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestParseTokenClaims(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"sub": "42", "exp": exp.Unix()})

	s := ParseToken(tok)
	if s.Token != tok {
		t.Error("token not preserved")
	}
	if s.UserID != "42" {
		t.Errorf("UserID = %q, want 42", s.UserID)
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, exp)
	}
}

func TestParseTokenNumericUserID(t *testing.T) {
	s := ParseToken(signed(t, jwt.MapClaims{"userId": 17}))
	if s.UserID != "17" {
		t.Errorf("UserID = %q, want 17", s.UserID)
	}
	if !s.ExpiresAt.IsZero() {
		t.Error("expected no expiry")
	}
}

func TestParseTokenOpaque(t *testing.T) {
	s := ParseToken("not-a-jwt")
	if s.Token != "not-a-jwt" || s.UserID != "" {
		t.Errorf("session = %+v", s)
	}
	if !s.Valid(time.Now()) {
		t.Error("opaque token should be treated as valid")
	}
}
