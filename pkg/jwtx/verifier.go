package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// VerifyOptions captures the claim expectations enforced on every token.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience the token must contain (claims.aud). Empty means "don't care".
	Audience string

	// Leeway allows small clock skew when validating exp/nbf/iat.
	Leeway time.Duration
}

var (
	ErrMalformed       = errors.New("jwtx: malformed token")
	ErrMalformedHeader = errors.New("jwtx: malformed authorization header")
	ErrAlgMismatch     = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID      = errors.New("jwtx: unknown kid")
	ErrInvalidSig      = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// HS256Verifier validates tokens against a KeyRing. Only HS256 is honoured;
// the algorithm named in the header is checked, never followed.
type HS256Verifier struct {
	keys *KeyRing
	opts VerifyOptions
	now  func() time.Time
}

// NewVerifierHS256 creates a verifier over ring.
func NewVerifierHS256(ring *KeyRing, opts VerifyOptions) *HS256Verifier {
	return &HS256Verifier{keys: ring, opts: opts, now: time.Now}
}

// WithClock swaps the time source, mainly for tests.
func (v *HS256Verifier) WithClock(now func() time.Time) *HS256Verifier {
	v.now = now
	return v
}

// Verify checks structure, algorithm, kid, signature and registered claims.
// Errors wrap one of the package sentinels.
func (v *HS256Verifier) Verify(tokenStr string) (*Claims, error) {
	// The method is checked in the keyfunc rather than with WithValidMethods
	// so every foreign algorithm reports ErrAlgMismatch.
	opts := []jwt.ParserOption{
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.opts.Audience))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}
	return claims, nil
}

// keyFunc resolves the secret from the kid header, falling back to
// DefaultKID for tokens minted before kids were stamped.
func (v *HS256Verifier) keyFunc(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: %q", ErrAlgMismatch, t.Method.Alg())
	}

	kid := DefaultKID
	if raw, present := t.Header["kid"]; present {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: kid is not a string", ErrUnknownKID)
		}
		if s != "" {
			kid = s
		}
	}
	return v.keys.Secret(kid)
}

// Decode parses claims without verifying anything. Only use it where the
// token is about to be invalidated, never to grant access.
func Decode(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// classify maps jwt/v5 validation errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg names no registered signing method.
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
