package sessionsdk

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeService issues numbered tokens and accepts each refresh token once.
type fakeService struct {
	mu       sync.Mutex
	current  string
	next     atomic.Int64
	expires  int64
	rotated  atomic.Int64
	lastAuth string
}

func (f *fakeService) pair(w http.ResponseWriter) {
	n := f.next.Add(1)
	f.current = "r" + strconv.FormatInt(n, 10)
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken:  "a" + strconv.FormatInt(n, 10),
		RefreshToken: f.current,
		TokenType:    "Bearer",
		ExpiresIn:    f.expires,
		UserID:       "u1",
		Role:         "red",
	})
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_credentials","error_description":"invalid credentials"}`))
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pair(w)
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		defer f.mu.Unlock()
		if req.RefreshToken != f.current {
			f.current = ""
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"invalid or reused refresh token"}`))
			return
		}
		f.rotated.Add(1)
		f.pair(w)
	})
	mux.HandleFunc("GET /v1/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(User{ID: "u1", Username: "alice", Role: "red"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "degraded"})
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Header().Set("Retry-After", "7")
	})
	return mux
}

func newFake(t *testing.T, expiresIn int64) (*fakeService, *SDKClient) {
	t.Helper()
	f := &fakeService{expires: expiresIn}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, NewSDKClient(srv.URL + "/")
}

func TestLoginErrors(t *testing.T) {
	t.Parallel()
	_, client := newFake(t, 3600)

	_, err := client.Login(t.Context(), "alice", "wrong", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, ErrorCodeInvalidCredentials, apiErr.Code)
	require.False(t, IsInvalidGrant(err))
}

func TestSessionUsesAccessToken(t *testing.T) {
	t.Parallel()
	f, client := newFake(t, 3600)

	session, err := client.AuthenticateWithPassword(t.Context(), "alice", "pw", "")
	require.NoError(t, err)
	require.Equal(t, "u1", session.UserID())
	require.Equal(t, "red", session.Role())

	me, err := session.Me(t.Context())
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, "Bearer "+session.AccessToken(), f.lastAuth)
	require.Zero(t, f.rotated.Load())
}

func TestSessionRotatesExpiredToken(t *testing.T) {
	t.Parallel()
	// Inside the refresh buffer, so every call rotates first.
	f, client := newFake(t, 10)

	session, err := client.AuthenticateWithPassword(t.Context(), "alice", "pw", "")
	require.NoError(t, err)
	first := session.RefreshToken()

	_, err = session.Me(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), f.rotated.Load())
	require.NotEqual(t, first, session.RefreshToken())
}

func TestReplayedRefreshToken(t *testing.T) {
	t.Parallel()
	_, client := newFake(t, 3600)

	tokens, err := client.Login(t.Context(), "alice", "pw", "")
	require.NoError(t, err)

	_, err = client.Refresh(t.Context(), tokens.UserID, tokens.RefreshToken)
	require.NoError(t, err)

	_, err = client.Refresh(t.Context(), tokens.UserID, tokens.RefreshToken)
	require.True(t, IsInvalidGrant(err))
}

func TestSessionForgetsSpentRefreshToken(t *testing.T) {
	t.Parallel()
	_, client := newFake(t, 3600)

	tokens, err := client.Login(t.Context(), "alice", "pw", "")
	require.NoError(t, err)
	session := client.NewSessionFromTokens(*tokens)

	// Someone else spends the token first.
	_, err = client.Refresh(t.Context(), tokens.UserID, tokens.RefreshToken)
	require.NoError(t, err)

	err = session.Refresh(t.Context())
	require.True(t, IsInvalidGrant(err))
	require.Empty(t, session.RefreshToken())
	require.ErrorIs(t, session.Refresh(t.Context()), ErrNoRefreshToken)
}

func TestErrorFallbacks(t *testing.T) {
	t.Parallel()
	_, client := newFake(t, 3600)

	_, err := client.GetReadiness(t.Context())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	require.Equal(t, ErrorCodeUnavailable, apiErr.Code)

	err = client.Logout(t.Context(), "a1")
	require.True(t, IsRateLimited(err))
}
