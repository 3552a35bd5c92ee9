// Package redactx masks credentials and personal data before they are
// persisted or logged. Audit details and log attributes both pass through it.
package redactx

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultMaxBytes caps the serialized size of redacted details.
const DefaultMaxBytes = 4000

// TokenMask replaces anything that looks like a credential.
const TokenMask = "[REDACTED_TOKEN]"

// TruncatedKey holds the cut-down document when details exceed the cap.
const TruncatedKey = "_truncated"

var (
	bearerRe = regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`)
	jwtRe    = regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`)
	emailRe  = regexp.MustCompile(`[^@\s"'<>(),;:]+@[^@\s"'<>(),;:]+\.[^@\s"'<>(),;:]+`)
)

// String masks bearer credentials and compact JWTs, and reduces email
// addresses to their first letter plus domain ("a***@example.com").
func String(s string) string {
	s = bearerRe.ReplaceAllString(s, TokenMask)
	s = jwtRe.ReplaceAllString(s, TokenMask)
	return emailRe.ReplaceAllStringFunc(s, maskEmail)
}

func maskEmail(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		return addr
	}
	r, _ := utf8.DecodeRuneInString(local)
	return string(r) + "***@" + domain
}

// Value walks a JSON-shaped value and redacts every string in it. Map keys
// are left untouched.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	default:
		return v
	}
}

// Details normalizes details through a JSON round trip, redacts it and
// serializes it with sorted keys. Output longer than maxBytes is replaced by
// {"_truncated": "<prefix>..."} so the stored document stays valid JSON.
// A nil map serializes as {}.
func Details(details map[string]any, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if details == nil {
		return []byte("{}"), nil
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	out, err := json.Marshal(Value(generic))
	if err != nil {
		return nil, err
	}
	if len(out) <= maxBytes {
		return out, nil
	}

	return truncated(string(out), maxBytes), nil
}

// truncated builds the largest envelope whose own serialization, escapes
// included, fits in maxBytes. When not even an empty prefix fits the result
// is {}.
func truncated(doc string, maxBytes int) []byte {
	build := func(n int) []byte {
		b, _ := json.Marshal(map[string]string{TruncatedKey: cut(doc, n) + "..."})
		return b
	}

	// Envelope length never shrinks as n grows.
	n := sort.Search(len(doc)+1, func(n int) bool { return len(build(n)) > maxBytes })
	if n == 0 {
		return []byte("{}")
	}
	return build(n - 1)
}

// cut shortens s to at most n bytes without splitting a rune.
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
