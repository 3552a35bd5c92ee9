package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// DefaultClockSkew is the leeway applied to exp, nbf and iat.
const DefaultClockSkew = 90 * time.Second

type TokenConfig struct {
	Issuer    string
	Audience  string
	AccessTTL time.Duration
	ClockSkew time.Duration

	// Now overrides the clock for signing and verification.
	Now func() time.Time
}

// TokenService signs and verifies access tokens. Verification also consults
// the revocation store and fails closed when it cannot.
type TokenService struct {
	Revocations *RevocationStore
	Metrics     *metrics.Metrics

	signer    jwtx.Signer
	verifier  *jwtx.HS256Verifier
	issuer    string
	audience  string
	accessTTL time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// NewTokenService signs with the ring's active kid and verifies with every
// kid it holds.
func NewTokenService(ring *jwtx.KeyRing, revocations *RevocationStore, cfg TokenConfig) (*TokenService, error) {
	signer, err := jwtx.NewSignerHS256(ring)
	if err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	switch {
	case cfg.ClockSkew == 0:
		cfg.ClockSkew = DefaultClockSkew
	case cfg.ClockSkew < 0:
		cfg.ClockSkew = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	verifier := jwtx.NewVerifierHS256(ring, jwtx.VerifyOptions{
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		Leeway:   cfg.ClockSkew,
	}).WithClock(cfg.Now)

	return &TokenService{
		Revocations: revocations,
		signer:      signer,
		verifier:    verifier,
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTTL,
		clockSkew:   cfg.ClockSkew,
		now:         cfg.Now,
	}, nil
}

// AccessTTL is the lifetime stamped into new tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// Issue signs a new access token for subjectID with a fresh jti.
func (s *TokenService) Issue(_ context.Context, subjectID string, role domain.Role) (domain.AccessToken, error) {
	if subjectID == "" {
		return domain.AccessToken{}, errors.New("token: empty subject")
	}
	if role == "" {
		role = domain.DefaultRole
	}

	var aud []string
	if s.audience != "" {
		aud = []string{s.audience}
	}
	claims := jwtx.NewAccessClaims(subjectID, role.String(), s.accessTTL, s.issuer, aud, s.now())

	signed, err := s.signer.Sign(claims)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("token: sign: %w", err)
	}
	s.Metrics.TokenIssued()

	return domain.AccessToken{
		Token:     signed,
		JTI:       claims.ID,
		KID:       s.signer.KID(),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify authenticates a bearer token. Failures are ErrInvalidToken,
// ErrTokenRevoked or ErrStoreUnavailable, the cause wrapped for logging only.
func (s *TokenService) Verify(ctx context.Context, token string) (jwtx.Principal, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		s.Metrics.TokenVerified(verifyOutcome(err))
		return jwtx.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ID != "" {
		revoked, err := s.Revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.Metrics.TokenVerified("store_unavailable")
			slogx.FromContext(ctx).Error("revocation check failed, rejecting token",
				slog.String("jti", claims.ID), slog.Any("error", err))
			return jwtx.Principal{}, err
		}
		if revoked {
			s.Metrics.TokenVerified("revoked")
			return jwtx.Principal{}, ErrTokenRevoked
		}
	}

	s.Metrics.TokenVerified("ok")
	return claims.Principal(domain.DefaultRole.String()), nil
}

// Decode reads jti and exp without checking the signature. It backs logout,
// where the token is only ever invalidated.
func (s *TokenService) Decode(token string) (domain.TokenInfo, error) {
	claims, err := jwtx.Decode(token)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	info := domain.TokenInfo{UserID: claims.Principal("").ID, JTI: claims.ID}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Revoke blacklists jti for ttl; see RevocationStore.Revoke.
func (s *TokenService) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.Revocations.Revoke(ctx, jti, ttl)
}

// RevokeToken blacklists token for the rest of its lifetime. An unparsable
// token or one without a jti is ignored. The entry covers the skew window
// past exp. The token is not verified, so the entry never outlives the
// longest lifetime a genuine token can have.
func (s *TokenService) RevokeToken(ctx context.Context, token string) (domain.TokenInfo, error) {
	info, err := s.Decode(token)
	if err != nil || info.JTI == "" {
		return info, nil
	}

	return info, s.Revocations.Revoke(ctx, info.JTI, s.revocationTTL(info.ExpiresAt))
}

func (s *TokenService) revocationTTL(exp time.Time) time.Duration {
	ceiling := s.accessTTL + s.clockSkew
	if exp.IsZero() {
		return ceiling
	}
	return min(exp.Sub(s.now())+s.clockSkew, ceiling)
}

func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, jwtx.ErrAlgMismatch):
		return "alg_mismatch"
	case errors.Is(err, jwtx.ErrUnknownKID):
		return "unknown_kid"
	case errors.Is(err, jwtx.ErrInvalidSig):
		return "bad_signature"
	case errors.Is(err, jwtx.ErrExpired):
		return "expired"
	case errors.Is(err, jwtx.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, jwtx.ErrIssuer), errors.Is(err, jwtx.ErrAudience):
		return "wrong_party"
	case errors.Is(err, jwtx.ErrMalformed):
		return "malformed"
	default:
		return "invalid_claims"
	}
}
