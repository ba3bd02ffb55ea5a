// Package session owns the client-side authentication lifecycle: reconciling
// stored credentials at startup, login/register/logout, and the in-memory
// session state consumed by the route guard.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/proploc14/proploc/internal/apiclient"
	"github.com/proploc14/proploc/internal/credstore"
)

// ErrInvalidCredentials is returned by Login when the server rejects the
// username/password pair. It is the only login failure surfaced to the user
// as such; everything else is a network or server fault.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Reserved operator identity granted an administrator session without server
// validation. See DESIGN.md for the security assessment. Disable with the
// AllowAdminBypass option.
const (
	bypassUsername = "admin"
	bypassPassword = "admin1234"

	// BypassToken is the fixed bearer literal attached while in bypass mode.
	BypassToken = "admin-token"
)

// Snapshot is an immutable view of session state handed to consumers.
type Snapshot struct {
	Profile       *apiclient.Profile
	Authenticated bool
	Loading       bool
}

// IsAdmin reports whether the session belongs to a staff user.
func (s Snapshot) IsAdmin() bool {
	return s.Profile != nil && s.Profile.IsStaff
}

// IsPropertyOwner reports whether the session belongs to a property owner.
func (s Snapshot) IsPropertyOwner() bool {
	return s.Profile != nil && s.Profile.IsPropertyOwner
}

// Manager reconciles in-memory session state with the credential store and
// exposes the login, register and logout operations.
type Manager struct {
	client           *apiclient.Client
	store            credstore.Store
	logger           *slog.Logger
	allowAdminBypass bool
	now              func() time.Time

	mu            sync.Mutex
	profile       *apiclient.Profile
	authenticated bool
	loading       bool
}

// Options configures a Manager.
type Options struct {
	// AllowAdminBypass enables the reserved operator login path.
	AllowAdminBypass bool

	Logger *slog.Logger

	// Now overrides the clock used for token expiry checks. Nil means
	// time.Now.
	Now func() time.Time
}

// NewManager creates a Manager. The session starts in the loading state
// until Initialize runs.
func NewManager(client *apiclient.Client, store credstore.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		client:           client,
		store:            store,
		logger:           logger,
		allowAdminBypass: opts.AllowAdminBypass,
		now:              now,
		loading:          true,
	}
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Profile:       m.profile,
		Authenticated: m.authenticated,
		Loading:       m.loading,
	}
}

// Initialize reconciles in-memory state with the credential store. It runs
// once at startup; the loading flag clears at the end of every branch.
// Initialization never fails the caller: any problem degrades to an
// unauthenticated session.
func (m *Manager) Initialize(ctx context.Context) {
	defer m.finishLoading()

	creds, err := m.store.Load()
	if err != nil {
		m.logger.Error("failed to load stored credentials", "error", err)
		m.clearSession()
		return
	}

	// Bypass sessions skip expiry checks and the profile fetch entirely.
	if creds.AdminBypass && len(creds.AdminProfile) > 0 {
		var profile apiclient.Profile
		if err := json.Unmarshal(creds.AdminProfile, &profile); err != nil {
			m.logger.Error("stored admin profile is corrupt", "error", err)
			m.clearSession()
			return
		}
		m.client.SetToken(BypassToken)
		m.setAuthenticated(&profile)
		return
	}

	if creds.AccessToken == "" {
		m.setUnauthenticated()
		return
	}

	if m.tokenExpired(creds.AccessToken) {
		m.logger.Info("stored access token expired, clearing session")
		m.clearSession()
		return
	}

	m.client.SetToken(creds.AccessToken)
	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.Error("profile fetch during startup failed", "error", err)
		m.clearSession()
		return
	}
	m.setAuthenticated(profile)
}

// Login establishes a session for the given identity. The reserved operator
// pair short-circuits to an administrator session without any network call.
// On failure the stored credentials are cleared and a typed error is
// returned: ErrInvalidCredentials for a server rejection, a wrapped
// transport or server error otherwise.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if m.allowAdminBypass && username == bypassUsername && password == bypassPassword {
		return m.loginBypass()
	}

	pair, err := m.client.ObtainToken(ctx, username, password)
	if err != nil {
		m.clearSession()
		if apiclient.IsStatus(err, http.StatusBadRequest) || apiclient.IsStatus(err, http.StatusUnauthorized) {
			m.logger.Info("login rejected", "username", username)
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, err)
		}
		m.logger.Error("token exchange failed", "error", err)
		return fmt.Errorf("exchanging credentials: %w", err)
	}

	if err := m.store.Save(&credstore.Credentials{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
	}); err != nil {
		m.clearSession()
		return fmt.Errorf("persisting tokens: %w", err)
	}
	m.client.SetToken(pair.Access)

	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.Error("profile fetch after login failed", "error", err)
		m.clearSession()
		return fmt.Errorf("fetching profile: %w", err)
	}

	m.setAuthenticated(profile)
	m.logger.Info("logged in", "username", profile.Username, "staff", profile.IsStaff)
	return nil
}

// loginBypass synthesizes an administrator session and persists the bypass
// flag plus the profile snapshot so it survives restarts.
func (m *Manager) loginBypass() error {
	profile := &apiclient.Profile{Username: bypassUsername, IsStaff: true}

	snapshot, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding admin profile: %w", err)
	}
	if err := m.store.Save(&credstore.Credentials{
		AdminBypass:  true,
		AdminProfile: snapshot,
	}); err != nil {
		m.clearSession()
		return fmt.Errorf("persisting admin session: %w", err)
	}

	m.client.SetToken(BypassToken)
	m.setAuthenticated(profile)
	m.logger.Warn("administrator session established via reserved identity, no server validation")
	return nil
}

// Register creates a new account. It does not establish a session; the
// caller logs in afterwards.
func (m *Manager) Register(ctx context.Context, username, email, password string) error {
	if err := m.client.Register(ctx, username, email, password); err != nil {
		m.logger.Info("registration failed", "username", username, "error", err)
		return err
	}
	m.logger.Info("account registered", "username", username)
	return nil
}

// Logout destroys the session: stored credentials, the outbound header and
// in-memory state are all cleared.
func (m *Manager) Logout() {
	m.clearSession()
	m.logger.Info("logged out")
}

func (m *Manager) clearSession() {
	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear credentials", "error", err)
	}
	m.client.ClearToken()
	m.setUnauthenticated()
}

func (m *Manager) setAuthenticated(profile *apiclient.Profile) {
	m.mu.Lock()
	m.profile = profile
	m.authenticated = true
	m.mu.Unlock()
}

func (m *Manager) setUnauthenticated() {
	m.mu.Lock()
	m.profile = nil
	m.authenticated = false
	m.mu.Unlock()
}

func (m *Manager) finishLoading() {
	m.mu.Lock()
	m.loading = false
	m.mu.Unlock()
}

// tokenExpired decodes the access token's expiry claim locally. The client
// holds no signing key, so the token is parsed unverified; the server
// remains the authority on validity. A token that cannot be decoded or
// carries no expiry is treated as expired.
func (m *Manager) tokenExpired(raw string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		m.logger.Debug("failed to decode access token", "error", err)
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(m.now())
}
