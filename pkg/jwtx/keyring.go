package jwtx

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// DefaultKID is the kid of the fallback secret and the one assumed for
// tokens that carry no kid header.
const DefaultKID = "default"

// MinSecretLength is the shortest HMAC secret accepted, in bytes.
const MinSecretLength = 32

var (
	ErrNoKeys      = errors.New("jwtx: no signing keys configured")
	ErrWeakSecret  = errors.New("jwtx: secret shorter than minimum length")
	ErrNoActiveKey = errors.New("jwtx: active kid not in key ring")
)

// KeyRing resolves a kid to its HMAC secret. It is built once at startup and
// never mutated, so lookups need no locking.
type KeyRing struct {
	keys   map[string][]byte
	active string
}

// NewKeyRing copies keys and validates that active resolves. An empty active
// selects DefaultKID.
func NewKeyRing(keys map[string][]byte, active string) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	if active == "" {
		active = DefaultKID
	}

	owned := make(map[string][]byte, len(keys))
	for kid, secret := range keys {
		if kid == "" {
			return nil, errors.New("jwtx: empty kid")
		}
		if len(secret) < MinSecretLength {
			return nil, fmt.Errorf("%w: kid %q", ErrWeakSecret, kid)
		}
		owned[kid] = slices.Clone(secret)
	}

	if _, ok := owned[active]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoActiveKey, active)
	}

	return &KeyRing{keys: owned, active: active}, nil
}

// ActiveKID is the kid used for new signatures.
func (k *KeyRing) ActiveKID() string { return k.active }

// Secret returns the secret for kid or ErrUnknownKID.
func (k *KeyRing) Secret(kid string) ([]byte, error) {
	s, ok := k.keys[kid]
	if !ok {
		return nil, ErrUnknownKID
	}
	return s, nil
}

// KIDs lists every loaded kid in sorted order.
func (k *KeyRing) KIDs() []string {
	out := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		out = append(out, kid)
	}
	sort.Strings(out)
	return out
}

// ParseKeysJSON decodes a {"kid":"secret", ...} document.
func ParseKeysJSON(raw string) (map[string][]byte, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("jwtx: parse keys json: %w", err)
	}

	out := make(map[string][]byte, len(m))
	for kid, secret := range m {
		out[kid] = []byte(secret)
	}
	return out, nil
}
