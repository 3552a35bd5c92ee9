package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// SessionService strings the core together into the login, refresh and
// logout flows. Every flow is audited.
type SessionService struct {
	Users  *UserService
	Tokens *TokenService
	Ledger *RefreshLedger
	Audit  *AuditLog
}

// Register creates a user and records it.
func (s *SessionService) Register(ctx context.Context, username, email, password, role string) (Registration, error) {
	reg, err := s.Users.Register(ctx, username, email, password, role)
	if err != nil {
		return Registration{}, err
	}

	s.Audit.Record(ctx, reg.User.ID, ActionRegister, "user", map[string]any{
		"username": reg.User.Username,
		"email":    reg.User.Email,
		"role":     reg.User.Role.String(),
	})
	if reg.MFAProvisioningURI != "" {
		s.Audit.Record(ctx, reg.User.ID, ActionMFAEnrolled, "user", nil)
	}
	return reg, nil
}

// Login authenticates and hands out a fresh access/refresh pair.
func (s *SessionService) Login(ctx context.Context, username, password, code string) (domain.TokenPair, error) {
	u, err := s.Users.Authenticate(ctx, username, password, code)
	if err != nil {
		s.Audit.Record(ctx, "", ActionLoginFailed, "user", map[string]any{
			"username": username,
			"reason":   err.Error(),
		})
		return domain.TokenPair{}, err
	}

	access, err := s.Tokens.Issue(ctx, u.ID, u.Role)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Ledger.Issue(ctx, u.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Audit.Record(ctx, u.ID, ActionLogin, "user", map[string]any{
		"jti": access.JTI,
		"kid": access.KID,
	})
	return s.pair(u, access, refresh), nil
}

// Refresh rotates the presented refresh token and signs a new access token
// with the user's current role.
func (s *SessionService) Refresh(ctx context.Context, subjectID, refreshToken string) (domain.TokenPair, error) {
	next, err := s.Ledger.Rotate(ctx, subjectID, refreshToken)
	if err != nil {
		s.Audit.Record(ctx, subjectID, ActionRefreshFailed, "session", map[string]any{
			"reason": Reason(err),
		})
		return domain.TokenPair{}, err
	}

	u, err := s.Users.GetUserByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.Ledger.RevokeAll(ctx, subjectID)
			return domain.TokenPair{}, ErrRefreshMissing
		}
		return domain.TokenPair{}, err
	}

	access, err := s.Tokens.Issue(ctx, u.ID, u.Role)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Audit.Record(ctx, u.ID, ActionRefresh, "session", map[string]any{
		"jti":      access.JTI,
		"token_id": next.TokenID,
	})
	return s.pair(u, access, next), nil
}

// Logout blacklists the access token for the rest of its lifetime. The
// token is decoded, not verified: an expired or foreign token is simply
// ignored. The error is for logging; clients always see success.
func (s *SessionService) Logout(ctx context.Context, accessToken string) error {
	info, err := s.Tokens.RevokeToken(ctx, accessToken)
	if err != nil {
		slogx.FromContext(ctx).Error("logout revocation failed", slog.String("jti", info.JTI), slog.Any("error", err))
		return err
	}
	if info.JTI != "" {
		s.Audit.Record(ctx, info.UserID, ActionLogout, "session", map[string]any{"jti": info.JTI})
	}
	return nil
}

// LogoutAll deletes every refresh family of the principal and revokes the
// access token used for the call.
func (s *SessionService) LogoutAll(ctx context.Context, p jwtx.Principal, accessToken string) error {
	if err := s.Ledger.RevokeAll(ctx, p.ID); err != nil {
		return err
	}
	info, err := s.Tokens.RevokeToken(ctx, accessToken)
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, p.ID, ActionLogoutAll, "session", map[string]any{"jti": info.JTI})
	return nil
}

// ChangePassword swaps the password and ends every other session of the
// principal. The calling access token stays valid until it expires.
func (s *SessionService) ChangePassword(ctx context.Context, p jwtx.Principal, current, next string) error {
	if err := s.Users.ChangePassword(ctx, p.ID, current, next); err != nil {
		return err
	}
	if err := s.Ledger.RevokeAll(ctx, p.ID); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke refresh tokens after password change",
			slog.String("user_id", p.ID), slog.Any("error", err))
	}

	s.Audit.Record(ctx, p.ID, ActionChangePassword, "user", nil)
	return nil
}

func (s *SessionService) pair(u domain.User, access domain.AccessToken, refresh domain.RefreshToken) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Tokens.AccessTTL().Seconds()),
		UserID:       u.ID,
		Role:         u.Role,
	}
}
