package httpx

import (
	"context"

	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyPrincipal ctxKey = "principal"
	ctxKeyToken     ctxKey = "token"
)

// WithPrincipal attaches the verified caller and its raw bearer token.
func WithPrincipal(ctx context.Context, p jwtx.Principal, token string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyPrincipal, p)
	return context.WithValue(ctx, ctxKeyToken, token)
}

// PrincipalFromContext returns the caller set by AuthnMiddleware.
func PrincipalFromContext(ctx context.Context) (jwtx.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(jwtx.Principal)
	return p, ok
}

// TokenFromContext returns the bearer token the caller authenticated with.
func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyToken).(string)
	return s
}
