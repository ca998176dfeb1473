package rest

import (
	"context"
	"net/http"

	"github.com/vichat/client-go/model"
)

// TokenResponse is the body of /auth/login and /auth/refresh.
type TokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         model.User `json:"user"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest is the body of /users/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// Login authenticates with username/password. It does not touch stored
// credentials; the session layer decides what to persist.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.doOnce(ctx, http.MethodPost, "/auth/login",
		nil, &loginRequest{Username: username, Password: password}, &resp, "")
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout invalidates the given refresh token server-side.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout",
		nil, &refreshRequest{RefreshToken: refreshToken}, nil)
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	var resp struct {
		User model.User `json:"user"`
	}
	if err := c.doOnce(ctx, http.MethodPost, "/users/register", nil, req, &resp, ""); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Profile returns the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/users/profile", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
