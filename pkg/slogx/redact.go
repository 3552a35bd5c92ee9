package slogx

import (
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/sessionguard/pkg/redactx"
)

const masked = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"password":      {},
	"new_password":  {},
	"authorization": {},
	"secret":        {},
	"totp":          {},
}

// Redact is a slog ReplaceAttr hook. Credential-named keys are replaced
// outright; other string values go through redactx.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, masked)
	}
	if a.Value.Kind() == slog.KindString {
		if s := a.Value.String(); s != "" {
			if r := redactx.String(s); r != s {
				return slog.String(a.Key, r)
			}
		}
	}
	return a
}
