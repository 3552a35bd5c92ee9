package sessionsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the service.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeInvalidGrant       = "invalid_grant"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeMFARequired        = "mfa_required"
	ErrorCodeInvalidTOTP        = "invalid_totp"
	ErrorCodeMFANotProvisioned  = "mfa_not_provisioned"
	ErrorCodeUserExists         = "user_exists"
	ErrorCodeWeakPassword       = "weak_password"
	ErrorCodeInvalidRole        = "invalid_role"
	ErrorCodeForbidden          = "forbidden"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeUnavailable        = "unavailable"
	ErrorCodeServerError        = "server_error"
)

// APIError is an error response from the service.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// RetryAfter is the Retry-After header of a 429, verbatim.
	RetryAfter string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// parseErrorResponse builds an *APIError from a non-success response. Bodies
// that are not the usual JSON shape still yield an error carrying the status.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = codeForStatus(resp.StatusCode)
		apiErr.Description = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = resp.Header.Get("Retry-After")
	}
	return apiErr
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return ErrorCodeInvalidToken
	case http.StatusForbidden:
		return ErrorCodeForbidden
	case http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case http.StatusServiceUnavailable:
		return ErrorCodeUnavailable
	case http.StatusBadRequest:
		return ErrorCodeInvalidRequest
	default:
		return ErrorCodeServerError
	}
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsInvalidGrant reports a refresh token that is unknown, reused or revoked.
func IsInvalidGrant(err error) bool { return hasCode(err, ErrorCodeInvalidGrant) }

// IsInvalidToken reports a rejected access token.
func IsInvalidToken(err error) bool { return hasCode(err, ErrorCodeInvalidToken) }

// IsMFARequired reports a login that needs a TOTP code.
func IsMFARequired(err error) bool { return hasCode(err, ErrorCodeMFARequired) }

// IsRateLimited reports a 429.
func IsRateLimited(err error) bool { return hasCode(err, ErrorCodeRateLimited) }
