package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dukerupert/listio/internal/model"
)

const usersBase = "/api/users"

type Users struct {
	c *Client
}

func (c *Client) Users() Users {
	return Users{c: c}
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Registration struct {
	Name     string `json:"name" validate:"required"`
	Surname  string `json:"surname,omitempty"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type PasswordReset struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

type Verification struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// authResponse covers both login shapes the backend has used: the profile
// itself carrying the token, or the token beside a nested user.
type authResponse struct {
	model.UserProfile
	User *model.UserProfile `json:"user,omitempty"`
}

func (r authResponse) profile() model.UserProfile {
	if r.User == nil {
		return r.UserProfile
	}
	p := *r.User
	if p.Token == "" {
		p.Token = r.Token
	}
	if p.AccessToken == "" {
		p.AccessToken = r.AccessToken
	}
	return p
}

func (a Users) post(ctx context.Context, path string, payload any) (model.UserProfile, error) {
	if payload != nil {
		if err := a.c.Validate(payload); err != nil {
			return model.UserProfile{}, err
		}
	}
	raw, err := a.c.Post(ctx, usersBase+path, payload)
	if err != nil {
		return model.UserProfile{}, err
	}
	resp, ok, err := decodeOptional[authResponse](raw)
	if err != nil || !ok {
		return model.UserProfile{}, err
	}
	return resp.profile(), nil
}

func (a Users) Register(ctx context.Context, r Registration) (model.UserProfile, error) {
	return a.post(ctx, "/register", r)
}

// Login returns the authenticated profile including its session token.
func (a Users) Login(ctx context.Context, creds Credentials) (model.UserProfile, error) {
	return a.post(ctx, "/login", creds)
}

func (a Users) Profile(ctx context.Context) (model.UserProfile, error) {
	raw, err := a.c.Get(ctx, usersBase+"/profile")
	if err != nil {
		return model.UserProfile{}, err
	}
	resp, err := DecodeOne[authResponse](raw)
	if err != nil {
		return model.UserProfile{}, err
	}
	return resp.profile(), nil
}

func (a Users) UpdateProfile(ctx context.Context, payload any) (model.UserProfile, error) {
	raw, err := a.c.Put(ctx, usersBase+"/profile", payload)
	if err != nil {
		return model.UserProfile{}, err
	}
	resp, _, err := decodeOptional[authResponse](raw)
	if err != nil {
		return model.UserProfile{}, err
	}
	return resp.profile(), nil
}

func (a Users) VerifyAccount(ctx context.Context, v Verification) error {
	_, err := a.post(ctx, "/verify-account", v)
	return err
}

func (a Users) SendVerification(ctx context.Context, email string) error {
	return a.emailAction(ctx, "/send-verification", email)
}

func (a Users) ForgotPassword(ctx context.Context, email string) error {
	return a.emailAction(ctx, "/forgot-password", email)
}

func (a Users) ResetPassword(ctx context.Context, r PasswordReset) error {
	_, err := a.post(ctx, "/reset-password", r)
	return err
}

func (a Users) ChangePassword(ctx context.Context, p PasswordChange) error {
	_, err := a.post(ctx, "/change-password", p)
	return err
}

func (a Users) Logout(ctx context.Context) error {
	_, err := a.c.Post(ctx, usersBase+"/logout", nil)
	return err
}

// emailAction posts to an endpoint that takes the address as a query parameter.
func (a Users) emailAction(ctx context.Context, path, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	_, err := a.c.Post(ctx, query(usersBase+path, url.Values{"email": {email}}), nil)
	return err
}
