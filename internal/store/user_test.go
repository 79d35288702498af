package store

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/vault"
)

func signedToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestUserTokenSealedAtRest(t *testing.T) {
	local := setupLocal(t)
	_, client := newBackend(t)

	s := NewUserStore(local, client, vault.New("correct horse"), discard)
	s.SetProfile(model.UserProfile{ID: "7", Email: "ana@example.com", Token: "secret-token"})

	raw, ok, err := local.Get(ProfileKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, "secret-token")
	assert.Contains(t, raw, "sealed:v1:")

	reopened := NewUserStore(local, client, vault.New("correct horse"), discard)
	reopened.Load()
	assert.Equal(t, "secret-token", reopened.Token())
	assert.Equal(t, "7", reopened.UserID())

	locked := NewUserStore(local, client, nil, discard)
	locked.Load()
	assert.Empty(t, locked.Token(), "sealed token without passphrase is dropped")
	p, ok := locked.Profile()
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", p.Email)
}

func TestUserIDFallsBackToTokenSubject(t *testing.T) {
	local := setupLocal(t)
	_, client := newBackend(t)
	s := NewUserStore(local, client, nil, discard)

	assert.Empty(t, s.UserID())
	s.SetProfile(model.UserProfile{Token: signedToken(t, "42")})
	assert.Equal(t, "42", s.UserID())
	assert.True(t, s.Session().Valid(time.Now()))
}

func TestUserLoginStoresProfile(t *testing.T) {
	local := setupLocal(t)
	b, client := newBackend(t)
	b.reply("POST /api/users/login", http.StatusOK, `{"token":"abc","user":{"id":7,"email":"ana@example.com","name":"Ana"}}`)
	b.reply("GET /api/users/profile", http.StatusOK, `{"data":{"id":7,"email":"ana@example.com","name":"Ana María"}}`)

	s := NewUserStore(local, client, nil, discard)
	client.SetTokenSource(s)

	p, err := s.Login(context.Background(), api.Credentials{Email: "ana@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, model.ID("7"), p.ID)
	assert.Equal(t, "abc", s.Token())
	assert.True(t, s.IsLoggedIn())

	refreshed, err := s.FetchProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ana María", refreshed.Name)
	assert.Equal(t, "abc", s.Token(), "refresh keeps the session token")
}

func TestUserLoginRejectsInvalidCredentials(t *testing.T) {
	local := setupLocal(t)
	b, client := newBackend(t)
	s := NewUserStore(local, client, nil, discard)

	_, err := s.Login(context.Background(), api.Credentials{Email: "nope", Password: "pw"})
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.Empty(t, b.Calls())
	assert.False(t, s.IsLoggedIn())
}

func TestUserFetchProfileUnauthorized(t *testing.T) {
	local := setupLocal(t)
	b, client := newBackend(t)
	b.reply("GET /api/users/profile", http.StatusUnauthorized, `{"message":"expired"}`)

	s := NewUserStore(local, client, nil, discard)
	s.SetProfile(model.UserProfile{ID: "7", Token: "old"})

	_, err := s.FetchProfile(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, "old", s.Token(), "callers decide whether to clear the session")
}

func TestUserLogoutClearsEvenWhenServerFails(t *testing.T) {
	local := setupLocal(t)
	b, client := newBackend(t)
	b.reply("POST /api/users/logout", http.StatusInternalServerError, `{"message":"boom"}`)

	s := NewUserStore(local, client, nil, discard)
	client.SetTokenSource(s)
	s.SetProfile(model.UserProfile{ID: "7", Token: "abc"})
	s.SetSetting("theme", "dark")

	s.Logout(context.Background())
	assert.False(t, s.IsLoggedIn())
	assert.Equal(t, 1, b.count("POST /api/users/logout"))

	reopened := NewUserStore(local, client, nil, discard)
	reopened.Load()
	assert.False(t, reopened.IsLoggedIn())
	theme, ok := reopened.Setting("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", theme)
}

func TestUserAccountEndpoints(t *testing.T) {
	local := setupLocal(t)
	b, client := newBackend(t)
	for _, route := range []string{
		"POST /api/users/send-verification",
		"POST /api/users/forgot-password",
		"POST /api/users/reset-password",
		"POST /api/users/change-password",
		"POST /api/users/verify-account",
	} {
		b.reply(route, http.StatusNoContent, "")
	}
	s := NewUserStore(local, client, nil, discard)
	ctx := context.Background()

	require.NoError(t, s.SendVerification(ctx, "ana@example.com"))
	require.NoError(t, s.ForgotPassword(ctx, "ana@example.com"))
	require.NoError(t, s.ResetPassword(ctx, api.PasswordReset{Token: "t", NewPassword: "secret1"}))
	require.NoError(t, s.ChangePassword(ctx, api.PasswordChange{CurrentPassword: "a", NewPassword: "secret2"}))
	require.NoError(t, s.VerifyAccount(ctx, api.Verification{Email: "ana@example.com", Code: "123"}))
	assert.Len(t, b.Calls(), 5)

	err := s.ForgotPassword(ctx, "  ")
	assert.ErrorIs(t, err, api.ErrValidation)
	assert.True(t, strings.Contains(err.Error(), "email"))
}
