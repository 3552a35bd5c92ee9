package http

import (
	"crypto/subtle"
	"net/http"
)

// MetricsTokenHeader carries the scrape token.
const MetricsTokenHeader = "X-Metrics-Token"

// MetricsGuard only lets scrapers holding token through. With no token
// configured the endpoint is closed.
func MetricsGuard(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(MetricsTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
