package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
)

var (
	ErrInvalidToken    = errors.New("invalid_token")
	ErrTokenRevoked    = errors.New("token_revoked")
	ErrMalformedHeader = jwtx.ErrMalformedHeader

	ErrRefreshReuseDetected = errors.New("refresh_reuse_detected")
	ErrRefreshMissing       = errors.New("refresh_missing")
	ErrRefreshContended     = errors.New("refresh_contended")

	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrAuditWriteFailed = errors.New("audit_write_failed")

	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrMFARequired        = errors.New("mfa_required")
	ErrMFANotProvisioned  = errors.New("mfa_not_provisioned")
	ErrInvalidTOTP        = errors.New("invalid_totp")
	ErrUserExists         = errors.New("user_exists")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrRoleNotAllowed     = errors.New("role_not_allowed")
	ErrInvalidInput       = errors.New("invalid_input")
)

// DefaultStoreTimeout bounds every KV and document store call.
const DefaultStoreTimeout = 2 * time.Second

// storeContext derives the bounded context a single store call runs under.
func storeContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

// unavailable wraps a backend failure, timeouts included.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	return jwtx.BearerToken(header)
}
