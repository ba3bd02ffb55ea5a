package apiclient

import (
	"context"
	"fmt"
	"net/http"
)

// TokenPair is the response of the credential exchange endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Profile is the authenticated user record returned by the API.
type Profile struct {
	ID              int64  `json:"id,omitempty"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	IsStaff         bool   `json:"is_staff"`
	IsPropertyOwner bool   `json:"is_property_owner"`
}

// Register creates a new account. It does not establish a session.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	in := map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}
	return c.do(ctx, http.MethodPost, "auth/register/", nil, in, nil)
}

// ObtainToken exchanges a username and password for a token pair.
func (c *Client) ObtainToken(ctx context.Context, username, password string) (*TokenPair, error) {
	in := map[string]string{
		"username": username,
		"password": password,
	}
	var pair TokenPair
	if err := c.do(ctx, http.MethodPost, "auth/token/", nil, in, &pair); err != nil {
		return nil, err
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &pair, nil
}

// Profile fetches the current user's profile. Requires an attached token.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "auth/profile/", nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListUsers returns every account. Admin only on the server side.
func (c *Client) ListUsers(ctx context.Context) ([]Profile, error) {
	var users []Profile
	if err := c.do(ctx, http.MethodGet, "auth/users/", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser removes an account by ID. Admin only on the server side.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("auth/users/%d/", id), nil, nil, nil)
}
