package domain

import "time"

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
	UserID       string `json:"user_id"`
	Role         Role   `json:"role"`
}

// AccessToken is a freshly signed JWT and the identifiers bound into it.
type AccessToken struct {
	Token     string
	JTI       string
	KID       string
	ExpiresAt time.Time
}

// TokenInfo is what can be read from a token without verifying it.
type TokenInfo struct {
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

// RefreshToken is a newly issued opaque refresh credential. Token is the
// only copy of the plaintext.
type RefreshToken struct {
	Token    string
	TokenID  string
	FamilyID string
	TTL      time.Duration
}

// RefreshFamily is the stored state of one refresh token family.
type RefreshFamily struct {
	TokenID  string    `json:"token_id"`
	Hash     string    `json:"hash"`
	IssuedAt time.Time `json:"issued_at"`
}
