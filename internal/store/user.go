package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/auth"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/vault"
)

var ProfileKey = localstore.Key("user")

type userRecord struct {
	Profile  *model.UserProfile `json:"profile"`
	Settings map[string]any     `json:"settings"`
}

// UserStore holds the signed-in profile, its session token and local
// settings. Tokens are sealed at rest when the vault has a passphrase.
type UserStore struct {
	local   localstore.Store
	gateway api.Users
	vault   *vault.Vault
	logger  *slog.Logger

	mu       sync.RWMutex
	profile  *model.UserProfile
	settings map[string]any
}

func NewUserStore(local localstore.Store, client *api.Client, v *vault.Vault, logger *slog.Logger) *UserStore {
	if v == nil {
		v = vault.New("")
	}
	return &UserStore{
		local:    local,
		gateway:  client.Users(),
		vault:    v,
		logger:   logger.With("component", "user"),
		settings: map[string]any{},
	}
}

// Load reads the stored profile and settings. A token that cannot be
// unsealed is dropped so the user signs in again.
func (s *UserStore) Load() {
	var rec userRecord
	if _, err := localstore.ReadJSON(s.local, ProfileKey, &rec); err != nil {
		s.logger.Warn("load user", "error", err)
		rec = userRecord{}
	}
	if rec.Profile != nil {
		p := *rec.Profile
		var err error
		if p.Token, err = s.vault.OpenString(p.Token); err != nil {
			s.logger.Warn("unseal session token", "error", err)
			p.Token = ""
		}
		if p.AccessToken, err = s.vault.OpenString(p.AccessToken); err != nil {
			s.logger.Warn("unseal access token", "error", err)
			p.AccessToken = ""
		}
		rec.Profile = &p
	}
	if rec.Settings == nil {
		rec.Settings = map[string]any{}
	}

	s.mu.Lock()
	s.profile = rec.Profile
	s.settings = rec.Settings
	s.mu.Unlock()
}

func (s *UserStore) Save() {
	s.mu.RLock()
	rec := userRecord{Settings: s.settings}
	if s.profile != nil {
		p := *s.profile
		rec.Profile = &p
	}
	s.mu.RUnlock()

	if rec.Profile != nil {
		var err error
		if rec.Profile.Token, err = s.vault.SealString(rec.Profile.Token); err != nil {
			s.logger.Error("seal session token", "error", err)
			return
		}
		if rec.Profile.AccessToken, err = s.vault.SealString(rec.Profile.AccessToken); err != nil {
			s.logger.Error("seal access token", "error", err)
			return
		}
	}
	if err := localstore.WriteJSON(s.local, ProfileKey, rec); err != nil {
		s.logger.Error("save user", "error", err)
	}
}

func (s *UserStore) Profile() (model.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return model.UserProfile{}, false
	}
	return *s.profile, true
}

func (s *UserStore) IsLoggedIn() bool {
	_, ok := s.Profile()
	return ok
}

func (s *UserStore) SetProfile(p model.UserProfile) {
	s.mu.Lock()
	s.profile = &p
	s.mu.Unlock()
	s.Save()
}

func (s *UserStore) ClearProfile() {
	s.mu.Lock()
	s.profile = nil
	s.mu.Unlock()
	s.Save()
}

func (s *UserStore) Setting(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok
}

func (s *UserStore) SetSetting(key string, value any) {
	s.mu.Lock()
	s.settings[key] = value
	s.mu.Unlock()
	s.Save()
}

// Token returns the session token, or "".
func (s *UserStore) Token() string {
	p, ok := s.Profile()
	if !ok {
		return ""
	}
	return p.SessionToken()
}

// Session describes the stored token.
func (s *UserStore) Session() auth.Session {
	sess := auth.ParseToken(s.Token())
	if p, ok := s.Profile(); ok && !p.ID.IsZero() {
		sess.UserID = p.ID.String()
	}
	return sess
}

// UserID returns the profile id, falling back to the token's subject.
func (s *UserStore) UserID() string {
	return s.Session().UserID
}

func (s *UserStore) Login(ctx context.Context, creds api.Credentials) (model.UserProfile, error) {
	p, err := s.gateway.Login(ctx, creds)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("login: %w", err)
	}
	if p.SessionToken() == "" {
		return model.UserProfile{}, fmt.Errorf("login: response carried no session token")
	}
	s.SetProfile(p)
	return p, nil
}

// Register creates an account. When the backend signs the user in right away
// the returned profile is stored.
func (s *UserStore) Register(ctx context.Context, r api.Registration) (model.UserProfile, error) {
	p, err := s.gateway.Register(ctx, r)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("register: %w", err)
	}
	if p.SessionToken() != "" {
		s.SetProfile(p)
	}
	return p, nil
}

// FetchProfile refreshes the stored profile from the server, keeping the
// current token when the response does not carry one.
func (s *UserStore) FetchProfile(ctx context.Context) (model.UserProfile, error) {
	p, err := s.gateway.Profile(ctx)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	s.SetProfile(s.keepToken(p))
	return p, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, patch model.Patch) (model.UserProfile, error) {
	p, err := s.gateway.UpdateProfile(ctx, patch)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	if p.ID.IsZero() && p.Email == "" {
		current, _ := s.Profile()
		if p, err = model.Merge(current, patch); err != nil {
			return model.UserProfile{}, fmt.Errorf("update profile: %w", err)
		}
	}
	p = s.keepToken(p)
	s.SetProfile(p)
	return p, nil
}

func (s *UserStore) keepToken(p model.UserProfile) model.UserProfile {
	if p.SessionToken() == "" {
		current, _ := s.Profile()
		p.Token = current.Token
		p.AccessToken = current.AccessToken
	}
	return p
}

// Logout tells the server and clears the local session. The server call is
// best effort.
func (s *UserStore) Logout(ctx context.Context) {
	if s.Token() != "" {
		if err := s.gateway.Logout(ctx); err != nil {
			s.logger.Warn("logout", "error", err)
		}
	}
	s.ClearProfile()
}

func (s *UserStore) VerifyAccount(ctx context.Context, v api.Verification) error {
	if err := s.gateway.VerifyAccount(ctx, v); err != nil {
		return fmt.Errorf("verify account: %w", err)
	}
	return nil
}

func (s *UserStore) SendVerification(ctx context.Context, email string) error {
	if err := s.gateway.SendVerification(ctx, email); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

func (s *UserStore) ForgotPassword(ctx context.Context, email string) error {
	if err := s.gateway.ForgotPassword(ctx, email); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}
	return nil
}

func (s *UserStore) ResetPassword(ctx context.Context, r api.PasswordReset) error {
	if err := s.gateway.ResetPassword(ctx, r); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

func (s *UserStore) ChangePassword(ctx context.Context, p api.PasswordChange) error {
	if err := s.gateway.ChangePassword(ctx, p); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}
