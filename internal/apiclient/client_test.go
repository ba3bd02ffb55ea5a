package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proploc14/proploc/internal/apiclient"
	"github.com/proploc14/proploc/internal/apitest"
	"github.com/proploc14/proploc/internal/credstore"
)

func newFileStore(t *testing.T) credstore.Store {
	t.Helper()
	return credstore.NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
}

// fakeAPI is a scriptable server for exercising the retry logic with exact
// control over response sequences.
type fakeAPI struct {
	mu            sync.Mutex
	profileCodes  []int    // status per successive profile request; last repeats
	profileAuth   []string // captured Authorization headers
	refreshCalls  int
	refreshStatus int
	newAccess     string
	tokenStatus   int
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/auth/profile/":
			f.profileAuth = append(f.profileAuth, r.Header.Get("Authorization"))
			code := f.profileCodes[0]
			if len(f.profileCodes) > 1 {
				f.profileCodes = f.profileCodes[1:]
			}
			w.WriteHeader(code)
			if code == http.StatusOK {
				json.NewEncoder(w).Encode(map[string]any{"username": "alice"})
			} else {
				json.NewEncoder(w).Encode(map[string]string{"detail": "Given token not valid for any token type"})
			}
		case "/token/refresh/":
			f.refreshCalls++
			if r.Header.Get("Authorization") != "" {
				w.WriteHeader(http.StatusTeapot) // auth endpoints must not receive a bearer header
				return
			}
			w.WriteHeader(f.refreshStatus)
			if f.refreshStatus == http.StatusOK {
				json.NewEncoder(w).Encode(map[string]string{"access": f.newAccess})
			} else {
				json.NewEncoder(w).Encode(map[string]string{"detail": "Token is invalid or expired"})
			}
		case "/auth/token/":
			if r.Header.Get("Authorization") != "" {
				w.WriteHeader(http.StatusTeapot)
				return
			}
			w.WriteHeader(f.tokenStatus)
			json.NewEncoder(w).Encode(map[string]string{"detail": "No active account found with the given credentials"})
		default:
			http.NotFound(w, r)
		}
	})
}

func newScriptedClient(t *testing.T, fake *fakeAPI, store credstore.Store) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL+"/", store)
}

func TestBearerHeader_AttachedOnceToNonAuthEndpoints(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Values("Authorization")
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		json.NewEncoder(w).Encode(map[string]string{"username": "alice"})
	}))
	defer srv.Close()

	client := apiclient.New(srv.URL, newFileStore(t))
	client.SetToken("tok-123")

	_, err := client.Profile(context.Background())
	require.NoError(t, err)
	require.Len(t, gotAuth, 1, "exactly one authorization header")
	assert.Equal(t, "Bearer tok-123", gotAuth[0])
}

func TestBearerHeader_NotAttachedToAuthEndpoints(t *testing.T) {
	fake := &fakeAPI{tokenStatus: http.StatusUnauthorized, refreshStatus: http.StatusOK}
	store := newFileStore(t)
	client := newScriptedClient(t, fake, store)
	client.SetToken("tok-123")

	// The teapot status in the fake turns a leaked header into a failure
	// distinct from the expected 401.
	_, err := client.ObtainToken(context.Background(), "alice", "wrong")
	assert.True(t, apiclient.IsStatus(err, http.StatusUnauthorized), "got %v", err)
	assert.Equal(t, 0, fake.refreshCalls, "auth endpoints must never trigger a refresh")
}

func TestRefreshOn401_RetriesOnceWithNewToken(t *testing.T) {
	fake := &fakeAPI{
		profileCodes:  []int{http.StatusUnauthorized, http.StatusOK},
		refreshStatus: http.StatusOK,
		newAccess:     "fresh-token",
	}
	store := newFileStore(t)
	require.NoError(t, store.Save(&credstore.Credentials{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-token",
	}))

	client := newScriptedClient(t, fake, store)
	client.SetToken("stale-token")

	profile, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	require.Len(t, fake.profileAuth, 2)
	assert.Equal(t, "Bearer stale-token", fake.profileAuth[0])
	assert.Equal(t, "Bearer fresh-token", fake.profileAuth[1], "retry must carry the refreshed token")
	assert.Equal(t, 1, fake.refreshCalls)

	// Both the store and the default header reflect the new value.
	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", creds.AccessToken)
	assert.Equal(t, "refresh-token", creds.RefreshToken, "refresh token is kept")
	assert.Equal(t, "fresh-token", client.Token())
}

func TestRepeated401_AtMostOneRetry(t *testing.T) {
	fake := &fakeAPI{
		profileCodes:  []int{http.StatusUnauthorized},
		refreshStatus: http.StatusOK,
		newAccess:     "fresh-token",
	}
	store := newFileStore(t)
	require.NoError(t, store.Save(&credstore.Credentials{
		AccessToken:  "stale-token",
		RefreshToken: "refresh-token",
	}))

	client := newScriptedClient(t, fake, store)
	client.SetToken("stale-token")

	_, err := client.Profile(context.Background())
	assert.True(t, apiclient.IsStatus(err, http.StatusUnauthorized), "second 401 propagates, got %v", err)
	assert.Len(t, fake.profileAuth, 2, "original plus exactly one retry")
	assert.Equal(t, 1, fake.refreshCalls)
}

func TestMissingRefreshToken_ExpiresSession(t *testing.T) {
	fake := &fakeAPI{profileCodes: []int{http.StatusUnauthorized}}
	store := newFileStore(t)
	client := newScriptedClient(t, fake, store)
	client.SetToken("stale-token")

	_, err := client.Profile(context.Background())
	assert.ErrorIs(t, err, apiclient.ErrSessionExpired)
	assert.Equal(t, 0, fake.refreshCalls)
	assert.Empty(t, client.Token(), "header must be detached")

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestRejectedRefresh_ExpiresSession(t *testing.T) {
	fake := &fakeAPI{
		profileCodes:  []int{http.StatusUnauthorized},
		refreshStatus: http.StatusUnauthorized,
	}
	store := newFileStore(t)
	require.NoError(t, store.Save(&credstore.Credentials{
		AccessToken:  "stale-token",
		RefreshToken: "dead-refresh",
	}))

	client := newScriptedClient(t, fake, store)
	client.SetToken("stale-token")

	_, err := client.Profile(context.Background())
	assert.ErrorIs(t, err, apiclient.ErrSessionExpired)
	assert.Len(t, fake.profileAuth, 1, "no retry after a failed refresh")
	assert.Empty(t, client.Token())

	creds, err := store.Load()
	require.NoError(t, err)
	assert.True(t, creds.Empty())
}

func TestAPIError_FieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string][]string{"username": {"A user with that username already exists."}})
	}))
	defer srv.Close()

	client := apiclient.New(srv.URL, newFileStore(t))
	err := client.Register(context.Background(), "alice", "alice@example.com", "pw")

	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "already exists")
}

func TestFullFlow_AgainstFakeAPI(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.Seed("alice", "alice@example.com", "hunter22", false, true)

	store := newFileStore(t)
	client := apiclient.New(srv.BaseURL(), store)

	ctx := context.Background()
	pair, err := client.ObtainToken(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.NoError(t, store.Save(&credstore.Credentials{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
	}))
	client.SetToken(pair.Access)

	profile, err := client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.True(t, profile.IsPropertyOwner)

	// An expired access token is silently refreshed on the next request.
	expired := srv.IssueAccessToken("alice", -time.Minute)
	require.NoError(t, store.Save(&credstore.Credentials{
		AccessToken:  expired,
		RefreshToken: pair.Refresh,
	}))
	client.SetToken(expired)

	profile, err = client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, 1, srv.Calls("POST /api/token/refresh/"))

	creds, err := store.Load()
	require.NoError(t, err)
	assert.NotEqual(t, expired, creds.AccessToken, "refreshed token persisted")
	assert.Equal(t, creds.AccessToken, client.Token())
}

func TestListProperties_Filter(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.Seed("alice", "alice@example.com", "hunter22", false, false)
	srv.SeedProperty("Sunny flat", "12 Hill Rd", "250000.00", "APARTMENT")
	srv.SeedProperty("Green acres", "Rural route 9", "90000.00", "LAND")

	store := newFileStore(t)
	client := apiclient.New(srv.BaseURL(), store)
	client.SetToken(srv.IssueAccessToken("alice", time.Hour))

	props, err := client.ListProperties(context.Background(), apiclient.PropertyFilter{Type: "LAND"})
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "Green acres", props[0].Title)
}
