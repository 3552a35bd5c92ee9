package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/sessionguard/pkg/httpx"
	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]jwtx.Principal

func (s stubVerifier) Verify(_ context.Context, token string) (jwtx.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return jwtx.Principal{}, errors.New("nope")
}

func TestAuthnMiddleware(t *testing.T) {
	v := stubVerifier{
		"admin-token":    {ID: "u1", Role: "admin"},
		"observer-token": {ID: "u2", Role: "observer"},
	}

	var got jwtx.Principal
	var gotToken string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.PrincipalFromContext(r.Context())
		gotToken = httpx.TokenFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	authn := httpx.Chain(inner, httpx.AuthnMiddleware(v))
	admin := httpx.Chain(inner, httpx.AuthnMiddleware(v), httpx.RequireRole("admin"))

	do := func(h http.Handler, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token", func(t *testing.T) {
		rec := do(authn, "Bearer admin-token")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, jwtx.Principal{ID: "u1", Role: "admin"}, got)
		require.Equal(t, "admin-token", gotToken)
	})

	t.Run("every failure looks the same", func(t *testing.T) {
		for _, header := range []string{"", "Basic abc", "Bearer", "Bearer unknown"} {
			rec := do(authn, header)
			require.Equal(t, http.StatusUnauthorized, rec.Code, header)
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)
			require.JSONEq(t, `{"error":"invalid_token","error_description":"invalid or expired token"}`, rec.Body.String())
		}
	})

	t.Run("role gate", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, do(admin, "Bearer admin-token").Code)
		require.Equal(t, http.StatusForbidden, do(admin, "Bearer observer-token").Code)
	})

	t.Run("role gate without authn", func(t *testing.T) {
		rec := do(httpx.RequireRole("admin")(inner), "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, mw("a"), mw("b"), mw("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c"}, order)
}
