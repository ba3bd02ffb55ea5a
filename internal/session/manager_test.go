package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proploc14/proploc/internal/apiclient"
	"github.com/proploc14/proploc/internal/apitest"
	"github.com/proploc14/proploc/internal/credstore"
	"github.com/proploc14/proploc/internal/session"
)

type fixture struct {
	srv     *apitest.Server
	store   credstore.Store
	client  *apiclient.Client
	manager *session.Manager
}

func setup(t *testing.T) *fixture {
	t.Helper()

	srv := apitest.New()
	t.Cleanup(srv.Close)

	store := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	client := apiclient.New(srv.BaseURL(), store)
	manager := session.NewManager(client, store, session.Options{AllowAdminBypass: true})

	return &fixture{srv: srv, store: store, client: client, manager: manager}
}

func TestSnapshot_LoadingUntilInitialize(t *testing.T) {
	f := setup(t)

	snap := f.manager.Snapshot()
	assert.True(t, snap.Loading)
	assert.False(t, snap.Authenticated)

	f.manager.Initialize(context.Background())
	snap = f.manager.Snapshot()
	assert.False(t, snap.Loading, "loading clears at the end of initialize")
}

func TestInitialize_NoStoredCredentials(t *testing.T) {
	f := setup(t)

	f.manager.Initialize(context.Background())

	snap := f.manager.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.Profile)
	assert.Equal(t, 0, f.srv.Calls("GET /api/auth/profile/"))
}

func TestInitialize_ValidTokenFetchesProfile(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, true)
	require.NoError(t, f.store.Save(&credstore.Credentials{
		AccessToken:  f.srv.IssueAccessToken("alice", time.Hour),
		RefreshToken: f.srv.IssueRefreshToken("alice"),
	}))

	f.manager.Initialize(context.Background())

	snap := f.manager.Snapshot()
	require.True(t, snap.Authenticated)
	assert.Equal(t, "alice", snap.Profile.Username)
	assert.False(t, snap.IsAdmin())
	assert.True(t, snap.IsPropertyOwner())
}

func TestInitialize_ExpiredTokenFailsClosed(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	require.NoError(t, f.store.Save(&credstore.Credentials{
		AccessToken:  f.srv.IssueAccessToken("alice", -time.Minute),
		RefreshToken: f.srv.IssueRefreshToken("alice"),
	}))

	f.manager.Initialize(context.Background())

	snap := f.manager.Snapshot()
	assert.False(t, snap.Authenticated)

	// Fail-closed: no network traffic at all, storage fully cleared.
	assert.Equal(t, 0, f.srv.Calls("GET /api/auth/profile/"))
	assert.Equal(t, 0, f.srv.Calls("POST /api/token/refresh/"))
	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestInitialize_GarbageTokenFailsClosed(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.store.Save(&credstore.Credentials{AccessToken: "not-a-jwt"}))

	f.manager.Initialize(context.Background())

	assert.False(t, f.manager.Snapshot().Authenticated)
	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestInitialize_ProfileFailureClearsCredentials(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	f.srv.FailNextProfile(1)
	require.NoError(t, f.store.Save(&credstore.Credentials{
		AccessToken:  f.srv.IssueAccessToken("alice", time.Hour),
		RefreshToken: f.srv.IssueRefreshToken("alice"),
	}))

	f.manager.Initialize(context.Background())

	assert.False(t, f.manager.Snapshot().Authenticated)
	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty(), "token may still be valid but policy is fail-closed")
}

func TestInitialize_AdminBypassSkipsNetwork(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.store.Save(&credstore.Credentials{
		AdminBypass:  true,
		AdminProfile: json.RawMessage(`{"username":"admin","is_staff":true}`),
	}))

	f.manager.Initialize(context.Background())

	snap := f.manager.Snapshot()
	require.True(t, snap.Authenticated)
	assert.True(t, snap.IsAdmin())
	assert.Equal(t, session.BypassToken, f.client.Token())
	assert.Equal(t, 0, f.srv.Calls("GET /api/auth/profile/"), "bypass session never touches the server")
}

func TestLogin_Success(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	f.manager.Initialize(context.Background())

	err := f.manager.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)

	snap := f.manager.Snapshot()
	require.True(t, snap.Authenticated)
	assert.Equal(t, "alice", snap.Profile.Username)

	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshToken)
	assert.Equal(t, creds.AccessToken, f.client.Token())
}

func TestLogin_BadCredentials(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	f.manager.Initialize(context.Background())

	err := f.manager.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	snap := f.manager.Snapshot()
	assert.False(t, snap.Authenticated)
	creds, lerr := f.store.Load()
	require.NoError(t, lerr)
	assert.True(t, creds.Empty(), "storage stays empty after a rejected login")
}

func TestLogin_BadCredentialsAgainst400Server(t *testing.T) {
	// Some deployments report rejected logins as 400 rather than 401.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid"})
	}))
	defer srv.Close()

	store := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	client := apiclient.New(srv.URL, store)
	manager := session.NewManager(client, store, session.Options{AllowAdminBypass: true})
	manager.Initialize(context.Background())

	err := manager.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	creds, lerr := store.Load()
	require.NoError(t, lerr)
	assert.True(t, creds.Empty())
}

func TestLogin_NetworkFailureIsNotBadCredentials(t *testing.T) {
	store := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	client := apiclient.New("http://127.0.0.1:1/api/", store)
	manager := session.NewManager(client, store, session.Options{AllowAdminBypass: true})
	manager.Initialize(context.Background())

	err := manager.Login(context.Background(), "alice", "hunter22")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestLogin_AdminBypass(t *testing.T) {
	f := setup(t)
	f.manager.Initialize(context.Background())

	err := f.manager.Login(context.Background(), "admin", "admin1234")
	require.NoError(t, err)

	snap := f.manager.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.True(t, snap.IsAdmin())
	assert.Equal(t, session.BypassToken, f.client.Token())
	assert.Equal(t, 0, f.srv.Calls("POST /api/auth/token/"), "bypass must not issue a token exchange")

	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.AdminBypass)
	assert.NotEmpty(t, creds.AdminProfile)
	assert.Empty(t, creds.AccessToken)
}

func TestLogin_AdminBypassDisabled(t *testing.T) {
	srv := apitest.New()
	t.Cleanup(srv.Close)

	store := credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	client := apiclient.New(srv.BaseURL(), store)
	manager := session.NewManager(client, store, session.Options{AllowAdminBypass: false})
	manager.Initialize(context.Background())

	// With the bypass off, the reserved pair goes to the server like any
	// other identity and is rejected.
	err := manager.Login(context.Background(), "admin", "admin1234")
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)
	assert.Equal(t, 1, srv.Calls("POST /api/auth/token/"))
}

func TestLogout_Completeness(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	f.manager.Initialize(context.Background())
	require.NoError(t, f.manager.Login(context.Background(), "alice", "hunter22"))

	f.manager.Logout()

	snap := f.manager.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.Profile)
	assert.Empty(t, f.client.Token(), "no stale header after logout")

	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestRegister_DoesNotEstablishSession(t *testing.T) {
	f := setup(t)
	f.manager.Initialize(context.Background())

	err := f.manager.Register(context.Background(), "bob", "bob@example.com", "secret99")
	require.NoError(t, err)

	assert.False(t, f.manager.Snapshot().Authenticated)
	creds, err := f.store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())

	// The new account can log in afterwards.
	require.NoError(t, f.manager.Login(context.Background(), "bob", "secret99"))
	assert.True(t, f.manager.Snapshot().Authenticated)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := setup(t)
	f.srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	f.manager.Initialize(context.Background())

	err := f.manager.Register(context.Background(), "alice", "other@example.com", "secret99")
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}
