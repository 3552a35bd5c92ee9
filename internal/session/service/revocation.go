package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
)

// minRevocationTTL keeps entries from being written already expired.
const minRevocationTTL = time.Second

var revokedMarker = []byte("1")

// RevocationStore is the jti blacklist. Entries live exactly as long as the
// token they shadow.
type RevocationStore struct {
	KV      store.KV
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// Revoke blacklists jti for ttl. Revoking twice only refreshes the TTL.
func (r *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return ErrInvalidToken
	}
	if ttl < minRevocationTTL {
		ttl = minRevocationTTL
	}

	ctx, cancel := storeContext(ctx, r.Timeout)
	defer cancel()
	if err := r.KV.Set(ctx, store.RevocationKey(jti), revokedMarker, ttl); err != nil {
		return unavailable("revoke", err)
	}
	r.Metrics.TokenRevoked()
	return nil
}

// IsRevoked reports whether jti is blacklisted. Any backend failure is an
// error; callers must treat it as a rejection.
func (r *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := storeContext(ctx, r.Timeout)
	defer cancel()

	_, err := r.KV.Get(ctx, store.RevocationKey(jti))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, unavailable("revocation lookup", err)
	}
}
