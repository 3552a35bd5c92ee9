package httpx

import (
	"context"
	"net/http"
	"slices"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// Verifier resolves a bearer token to its principal. Implementations check
// revocation as well as the signature.
type Verifier interface {
	Verify(ctx context.Context, token string) (jwtx.Principal, error)
}

// AuthnMiddleware requires a valid bearer token. Every failure answers the
// same 401 so clients cannot tell which check failed; the reason is logged.
func AuthnMiddleware(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, err := jwtx.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeBearerError(w)
				log.Debug("bearer header rejected", "error", err)
				return
			}

			p, err := v.Verify(ctx, raw)
			if err != nil {
				writeBearerError(w)
				log.Warn("token verification failed", "error", err)
				return
			}

			ctx = WithPrincipal(ctx, p, raw)
			ctx = slogx.WithContext(ctx, log.With("user_id", p.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits principals holding one of roles. It must run after
// AuthnMiddleware.
func RequireRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeBearerError(w)
				return
			}
			if !slices.Contains(roles, p.Role) {
				WriteError(w, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="invalid or expired token"`)
	WriteError(w, ErrUnauthorized)
}
