package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 512 << 10

// APIError is the JSON error body returned by every handler.
type APIError struct {
	Status      int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Description }

// Common API errors.
var (
	ErrBadRequest   = &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Description: "malformed request body"}
	ErrUnauthorized = &APIError{Status: http.StatusUnauthorized, Code: "invalid_token", Description: "invalid or expired token"}
	ErrForbidden    = &APIError{Status: http.StatusForbidden, Code: "forbidden", Description: "insufficient role"}
	ErrConflict     = &APIError{Status: http.StatusConflict, Code: "conflict", Description: "resource already exists"}
	ErrRateLimited  = &APIError{Status: http.StatusTooManyRequests, Code: "rate_limit_exceeded", Description: "too many requests, try again later"}
	ErrUnavailable  = &APIError{Status: http.StatusServiceUnavailable, Code: "unavailable", Description: "dependency unavailable"}
	ErrInternal     = &APIError{Status: http.StatusInternalServerError, Code: "server_error", Description: "internal error"}
)

// NewAPIError builds an ad-hoc error body.
func NewAPIError(status int, code, desc string) *APIError {
	return &APIError{Status: status, Code: code, Description: desc}
}

// WriteJSON writes a JSON response with the given status code.
// It automatically sets the Content-Type header and Cache-Control headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes e as JSON with its status.
func WriteError(w http.ResponseWriter, e *APIError) {
	WriteJSON(w, e.Status, e)
}

// NoCache sets the Cache-Control and Pragma headers to prevent caching.
// This is commonly required for sensitive responses like tokens.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// DecodeJSON reads a bounded JSON body into dst, rejecting unknown fields
// and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("httpx: decode body: %w", err)
	}
	if dec.More() {
		return errors.New("httpx: trailing data after body")
	}
	return nil
}
