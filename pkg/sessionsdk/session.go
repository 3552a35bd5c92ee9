package sessionsdk

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a Session rotates its tokens.
const refreshBuffer = 30 * time.Second

// ErrNoRefreshToken is returned when the access token expired and the
// session holds no refresh token to replace it.
var ErrNoRefreshToken = errors.New("sessionsdk: access token expired and no refresh token available")

// Session holds one user's token pair and rotates it before the access token
// expires. It is safe for concurrent use.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	userID       string
	role         string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.store(tokens)
	return s
}

// store must run with mu held for writing, or before the session is shared.
func (s *Session) store(tokens *TokenResponse) {
	s.userID = tokens.UserID
	s.role = tokens.Role
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshBuffer)
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Role() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Refresh rotates the token pair now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotateLocked(ctx)
}

func (s *Session) rotateLocked(ctx context.Context) error {
	if s.refreshToken == "" {
		return ErrNoRefreshToken
	}

	tokens, err := s.client.Refresh(ctx, s.userID, s.refreshToken)
	if err != nil {
		// The old token is spent whatever the outcome.
		s.refreshToken = ""
		return err
	}
	s.store(tokens)
	return nil
}

// getValidToken returns a valid access token, rotating first if it expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have rotated while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.rotateLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

func (s *Session) call(ctx context.Context, method, path string, body, target any) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.doRequest(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}

// Me returns the session's user.
func (s *Session) Me(ctx context.Context) (*User, error) {
	var u User
	if err := s.call(ctx, http.MethodGet, "/v1/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChangePassword replaces the password. The server revokes every refresh
// token of the user, including this session's.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	err := s.call(ctx, http.MethodPost, "/v1/auth/change-password", changePasswordRequest{
		CurrentPassword: current,
		NewPassword:     next,
	}, &okResponse{})
	if err == nil {
		s.forgetRefresh()
	}
	return err
}

// VerifyAudit walks the audit hash chain. Requires the admin role.
func (s *Session) VerifyAudit(ctx context.Context) (*ChainReport, error) {
	var report ChainReport
	if err := s.call(ctx, http.MethodGet, "/v1/audit/verify", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Logout revokes the current access token only.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx, s.AccessToken())
}

// LogoutAll revokes every refresh token of the user and this access token.
func (s *Session) LogoutAll(ctx context.Context) error {
	err := s.call(ctx, http.MethodPost, "/v1/auth/logout-all", nil, &okResponse{})
	if err == nil {
		s.forgetRefresh()
	}
	return err
}

func (s *Session) forgetRefresh() {
	s.mu.Lock()
	s.refreshToken = ""
	s.mu.Unlock()
}
