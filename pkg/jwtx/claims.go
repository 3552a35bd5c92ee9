package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL is the lifetime of an access token unless overridden.
const DefaultAccessTokenTTL = time.Hour

// Claims are the access-token claims. The user id is carried in both "sub"
// and "id"; older tokens only set "id".
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Principal is the normalized identity extracted from a verified token.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// NewAccessClaims builds claims for subject with a fresh jti.
func NewAccessClaims(subject, role string, ttl time.Duration, issuer string, audience []string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: subject,
		Role:   role,
	}
}

// Principal returns {id, role} with id falling back to sub. An empty role is
// replaced by defaultRole.
func (c *Claims) Principal(defaultRole string) Principal {
	p := Principal{ID: c.UserID, Role: c.Role}
	if p.ID == "" {
		p.ID = c.Subject
	}
	if p.Role == "" {
		p.Role = defaultRole
	}
	return p
}

// Remaining reports how long until exp, or zero when exp is unset or past.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
