// Package apiclient is the HTTP client for the property-locator REST API.
// It attaches bearer credentials to non-auth requests and transparently
// retries a request once after exchanging the refresh token on a 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/proploc14/proploc/internal/credstore"
)

// ErrSessionExpired signals that the session could not be kept alive: the
// stored credentials were cleared and the caller must direct the user back
// to login.
var ErrSessionExpired = errors.New("session expired, sign in again")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
	Fields     map[string][]string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for field, msgs := range e.Fields {
			parts = append(parts, field+": "+strings.Join(msgs, "; "))
		}
		return fmt.Sprintf("api error %d: %s", e.StatusCode, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Client talks to the property-locator API. The zero value is not usable;
// construct with New.
type Client struct {
	baseURL string
	httpc   *http.Client
	store   credstore.Store
	logger  *slog.Logger

	mu    sync.RWMutex
	token string

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the API rooted at baseURL. Tokens obtained via
// the refresh flow are persisted into store.
func New(baseURL string, store credstore.Store, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token attached to outgoing non-auth requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearToken detaches the authorization header from outgoing requests.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// Token returns the currently attached bearer token, or "" when detached.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// isAuthPath reports whether path is an authentication endpoint. Auth
// endpoints never receive a bearer header and never trigger a refresh.
func isAuthPath(path string) bool {
	return strings.Contains(path, "token") ||
		strings.Contains(path, "register") ||
		strings.Contains(path, "login")
}

// do sends one API request, decoding a JSON response into out when non-nil.
// A 401 on a non-auth endpoint triggers a single silent refresh-and-retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	authPath := isAuthPath(path)

	status, body, err := c.send(ctx, method, path, query, payload, authPath)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !authPath {
		if _, err := c.refreshAccessToken(ctx); err != nil {
			return err
		}
		status, body, err = c.send(ctx, method, path, query, payload, authPath)
		if err != nil {
			return err
		}
	}

	if status >= 400 {
		return decodeAPIError(status, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}

// send performs a single HTTP round trip and reads the full response body.
// The bearer header is read at send time so a retry picks up a refreshed
// token.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte, authPath bool) (int, []byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	if !authPath {
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}

	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode)
	return resp.StatusCode, body, nil
}

// refreshAccessToken exchanges the stored refresh token for a new access
// token, persists it, and updates the outbound header. Concurrent callers
// share a single exchange. Any failure clears the stored credentials and
// yields ErrSessionExpired.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	token, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		creds, err := c.store.Load()
		if err != nil {
			c.expireSession()
			return "", fmt.Errorf("%w: loading credentials: %s", ErrSessionExpired, err)
		}
		if creds.RefreshToken == "" {
			c.expireSession()
			return "", ErrSessionExpired
		}

		payload, err := json.Marshal(map[string]string{"refresh": creds.RefreshToken})
		if err != nil {
			return "", fmt.Errorf("encoding refresh request: %w", err)
		}

		status, body, err := c.send(ctx, http.MethodPost, "token/refresh/", nil, payload, true)
		if err != nil {
			c.expireSession()
			return "", fmt.Errorf("%w: %s", ErrSessionExpired, err)
		}
		if status >= 400 {
			c.expireSession()
			return "", fmt.Errorf("%w: %s", ErrSessionExpired, decodeAPIError(status, body))
		}

		var refreshed struct {
			Access string `json:"access"`
		}
		if err := json.Unmarshal(body, &refreshed); err != nil || refreshed.Access == "" {
			c.expireSession()
			return "", fmt.Errorf("%w: malformed refresh response", ErrSessionExpired)
		}

		// Persist and attach before the original request is retried.
		creds.AccessToken = refreshed.Access
		if err := c.store.Save(creds); err != nil {
			c.expireSession()
			return "", fmt.Errorf("%w: persisting refreshed token: %s", ErrSessionExpired, err)
		}
		c.SetToken(refreshed.Access)

		c.logger.Info("access token refreshed")
		return refreshed.Access, nil
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// expireSession clears stored credentials and detaches the outbound header.
func (c *Client) expireSession() {
	if err := c.store.Clear(); err != nil {
		c.logger.Error("failed to clear credentials", "error", err)
	}
	c.ClearToken()
}

// decodeAPIError maps a Django REST error body to an APIError. Bodies are
// either {"detail": "..."} or a field-to-messages map.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if len(body) == 0 {
		return apiErr
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		apiErr.Detail = detail.Detail
		return apiErr
	}

	var fields map[string][]string
	if err := json.Unmarshal(body, &fields); err == nil && len(fields) > 0 {
		apiErr.Fields = fields
		return apiErr
	}

	apiErr.Detail = strings.TrimSpace(string(body))
	if len(apiErr.Detail) > 200 {
		apiErr.Detail = apiErr.Detail[:200]
	}
	return apiErr
}
