package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

var (
	errInvalidCredentials = httpx.NewAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	errMFARequired        = httpx.NewAPIError(http.StatusUnauthorized, "mfa_required", "TOTP required")
	errInvalidTOTP        = httpx.NewAPIError(http.StatusUnauthorized, "invalid_totp", "invalid TOTP")
	errMFANotProvisioned  = httpx.NewAPIError(http.StatusForbidden, "mfa_not_provisioned", "MFA not provisioned; contact administrator")
	errInvalidGrant       = httpx.NewAPIError(http.StatusUnauthorized, "invalid_grant", "invalid or reused refresh token")
	errUserExists         = httpx.NewAPIError(http.StatusConflict, "user_exists", "username or email already registered")
	errWeakPassword       = httpx.NewAPIError(http.StatusBadRequest, "weak_password", "password too weak")
	errInvalidRole        = httpx.NewAPIError(http.StatusBadRequest, "invalid_role", "unknown role")
	errRoleNotAllowed     = httpx.NewAPIError(http.StatusForbidden, "role_not_allowed", "role cannot be self-assigned")
)

// writeServiceError maps service errors onto API errors. Token and refresh
// failures collapse into single generic bodies; the cause is only logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var apiErr *httpx.APIError
	switch {
	case errors.Is(err, service.ErrStoreUnavailable):
		apiErr = httpx.ErrUnavailable
	case errors.Is(err, service.ErrInvalidCredentials):
		apiErr = errInvalidCredentials
	case errors.Is(err, service.ErrMFARequired):
		apiErr = errMFARequired
	case errors.Is(err, service.ErrInvalidTOTP):
		apiErr = errInvalidTOTP
	case errors.Is(err, service.ErrMFANotProvisioned):
		apiErr = errMFANotProvisioned
	case errors.Is(err, service.ErrRefreshMissing),
		errors.Is(err, service.ErrRefreshReuseDetected),
		errors.Is(err, service.ErrRefreshContended):
		apiErr = errInvalidGrant
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrTokenRevoked):
		apiErr = httpx.ErrUnauthorized
	case errors.Is(err, service.ErrUserExists):
		apiErr = errUserExists
	case errors.Is(err, service.ErrWeakPassword):
		apiErr = httpx.NewAPIError(http.StatusBadRequest, errWeakPassword.Code, err.Error())
	case errors.Is(err, service.ErrInvalidRole):
		apiErr = errInvalidRole
	case errors.Is(err, service.ErrRoleNotAllowed):
		apiErr = errRoleNotAllowed
	case errors.Is(err, service.ErrInvalidInput):
		apiErr = httpx.NewAPIError(http.StatusBadRequest, httpx.ErrBadRequest.Code, err.Error())
	default:
		apiErr = httpx.ErrInternal
	}

	if apiErr.Status >= http.StatusInternalServerError {
		log.Error("request failed", "code", apiErr.Code, "error", err)
	} else {
		log.Info("request rejected", "code", apiErr.Code, "error", err)
	}
	httpx.WriteError(w, apiErr)
}
