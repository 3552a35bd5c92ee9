package jwtx

import (
	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmHS256 is the only algorithm this package signs or accepts.
const AlgorithmHS256 = "HS256"

// Signer is anything that can sign access-token claims.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
}

// HS256Signer signs with the key ring's active secret.
type HS256Signer struct {
	kid    string
	secret []byte
}

// NewSignerHS256 returns a signer bound to the ring's active kid.
func NewSignerHS256(ring *KeyRing) (*HS256Signer, error) {
	kid := ring.ActiveKID()
	secret, err := ring.Secret(kid)
	if err != nil {
		return nil, err
	}
	return &HS256Signer{kid: kid, secret: secret}, nil
}

func (s *HS256Signer) Alg() string { return AlgorithmHS256 }
func (s *HS256Signer) KID() string { return s.kid }

// Sign stamps the kid into the JOSE header and signs the claims.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.secret)
}
