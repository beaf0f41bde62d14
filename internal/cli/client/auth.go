package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/hpa-platform/hpactl/internal/models"
)

// Auth endpoint paths, relative to the API base URL
const (
	PathLogin              = "/v1/auth/login"
	PathRegister           = "/v1/auth/register"
	PathLogout             = "/v1/auth/logout"
	PathCurrentUser        = "/v1/auth/me"
	PathRefresh            = "/v1/auth/refresh"
	PathForgotPassword     = "/v1/auth/forgot-password"
	PathResetPassword      = "/v1/auth/reset-password"
	PathVerifyEmail        = "/auth/verify-email"
	PathResendVerification = "/auth/resend-verification"
)

// LoginRequest represents the login request body. The remember-me choice is
// a client-side preference and is never sent.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest holds the registration fields as the caller knows them
type RegisterRequest struct {
	Email      string
	Password   string
	FirstName  string
	LastName   string
	TenantName string
}

// registerBody is what the backend expects: a single name field
type registerBody struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	TenantName string `json:"tenant_name,omitempty"`
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	User     *models.AuthUser `json:"user"`
	Message  string           `json:"message,omitempty"`
	TenantID string           `json:"tenant_id,omitempty"`
	Role     models.Role      `json:"role,omitempty"`
}

// MergedUser returns a copy of the user with the response's tenant and role
// filled in where the user itself lacks them
func (r *AuthResponse) MergedUser() *models.AuthUser {
	if r == nil || r.User == nil {
		return nil
	}
	user := *r.User
	if user.TenantID == "" {
		user.TenantID = r.TenantID
	}
	if user.Role == "" {
		user.Role = r.Role
	}
	return &user
}

// RefreshResponse is returned by the session refresh endpoint
type RefreshResponse struct {
	Message string `json:"message"`
}

// Login authenticates the user; the session cookie lands in the jar
func (c *Client) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.postEnvelope(ctx, PathLogin, req, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, decodeError(http.StatusOK, errors.New("login response has no user"))
	}
	return &resp, nil
}

// Register creates an account and signs it in
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	body := registerBody{
		Email:      req.Email,
		Password:   req.Password,
		Name:       strings.TrimSpace(req.FirstName + " " + req.LastName),
		TenantName: req.TenantName,
	}

	var resp AuthResponse
	if err := c.postEnvelope(ctx, PathRegister, body, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, decodeError(http.StatusOK, errors.New("register response has no user"))
	}
	return &resp, nil
}

// Logout ends the server-side session
func (c *Client) Logout(ctx context.Context) error {
	return c.Post(ctx, PathLogout, nil, nil)
}

// CurrentUser returns the user owning the session cookie. A 401 means there
// is no valid session.
func (c *Client) CurrentUser(ctx context.Context) (*models.AuthUser, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, PathCurrentUser, nil, &raw); err != nil {
		return nil, err
	}

	var user models.AuthUser
	if err := unwrap(raw, &user); err != nil {
		return nil, decodeError(http.StatusOK, err)
	}
	if user.ID == "" && user.Email == "" {
		return nil, decodeError(http.StatusOK, errors.New("current user response is empty"))
	}
	return &user, nil
}

// RefreshSession asks the backend to extend the session cookie
func (c *Client) RefreshSession(ctx context.Context) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.postEnvelope(ctx, PathRefresh, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword requests a password reset email
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.Post(ctx, PathForgotPassword, map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password using a reset token
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.Post(ctx, PathResetPassword, map[string]string{
		"token":    token,
		"password": password,
	}, nil)
}

// VerifyEmail confirms an email address with the token from the email
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	return c.Post(ctx, PathVerifyEmail, map[string]string{"token": token}, nil)
}

// ResendVerification sends a new verification email
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.Post(ctx, PathResendVerification, map[string]string{"email": email}, nil)
}

func (c *Client) postEnvelope(ctx context.Context, path string, body, out any) error {
	var raw json.RawMessage
	if err := c.Post(ctx, path, body, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	if err := unwrap(raw, out); err != nil {
		return decodeError(http.StatusOK, err)
	}
	return nil
}

// unwrap decodes raw into out, looking inside a {"data": ...} envelope when
// the payload is wrapped in one
func unwrap(raw json.RawMessage, out any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if data, ok := envelope["data"]; ok {
			return json.Unmarshal(data, out)
		}
	}
	return json.Unmarshal(raw, out)
}
