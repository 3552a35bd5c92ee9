package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/pkg/cryptox"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
	"github.com/google/uuid"
)

// DefaultRefreshTTL is how long a family lives after its last issuance.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// RefreshScope decides how many refresh families a subject may hold.
type RefreshScope string

const (
	// ScopeSubject keeps one family per subject; a new login replaces the
	// previous session's refresh token.
	ScopeSubject RefreshScope = "subject"
	// ScopeSession keeps one family per login. Tokens are "<family>.<secret>".
	ScopeSession RefreshScope = "session"
)

// ParseRefreshScope maps "" to ScopeSubject.
func ParseRefreshScope(s string) (RefreshScope, error) {
	switch RefreshScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSubject:
		return ScopeSubject, nil
	case ScopeSession:
		return ScopeSession, nil
	default:
		return "", fmt.Errorf("unknown refresh scope %q", s)
	}
}

// RefreshLedger issues single-use refresh tokens and rotates them with a
// compare-and-swap, so at most one live token exists per family.
type RefreshLedger struct {
	KV      store.KV
	TTL     time.Duration
	Timeout time.Duration
	Scope   RefreshScope
	Audit   *AuditLog
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Issue starts a family for subjectID, overwriting the current one under
// ScopeSubject.
func (l *RefreshLedger) Issue(ctx context.Context, subjectID string) (domain.RefreshToken, error) {
	if !store.ValidSubjectID(subjectID) {
		return domain.RefreshToken{}, fmt.Errorf("%w: refresh subject %q", ErrInvalidInput, subjectID)
	}

	var familyID string
	if l.scope() == ScopeSession {
		familyID = uuid.NewString()
	}
	tok, fam, err := l.mint(familyID)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	raw, err := json.Marshal(fam)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	ctx, cancel := storeContext(ctx, l.Timeout)
	defer cancel()
	if err := l.KV.Set(ctx, store.RefreshKey(subjectID, familyID), raw, l.ttl()); err != nil {
		return domain.RefreshToken{}, unavailable("refresh issue", err)
	}
	return tok, nil
}

// Rotate exchanges presented for a new token. A presented token that does
// not match the family's current digest is treated as replay: the subject's
// families are deleted and ErrRefreshReuseDetected is returned.
func (l *RefreshLedger) Rotate(ctx context.Context, subjectID, presented string) (tok domain.RefreshToken, err error) {
	defer func() { l.Metrics.RefreshRotated(Reason(err)) }()

	familyID, ok := l.familyOf(presented)
	if !ok || !store.ValidSubjectID(subjectID) {
		return domain.RefreshToken{}, ErrRefreshMissing
	}
	key := store.RefreshKey(subjectID, familyID)

	current, err := l.load(ctx, key)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	var fam domain.RefreshFamily
	if err := json.Unmarshal(current, &fam); err != nil || fam.Hash == "" {
		slogx.FromContext(ctx).Error("corrupt refresh family, deleting",
			slog.String("subject_id", subjectID), slog.Any("error", err))
		_ = l.delete(ctx, key)
		return domain.RefreshToken{}, ErrRefreshMissing
	}

	if !cryptox.EqualDigest(cryptox.DigestHex(presented), fam.Hash) {
		if err := l.RevokeAll(ctx, subjectID); err != nil {
			slogx.FromContext(ctx).Error("failed to revoke refresh families after reuse",
				slog.String("subject_id", subjectID), slog.Any("error", err))
		}
		l.Audit.Record(ctx, subjectID, ActionRefreshReuse, subjectID, map[string]any{
			"alert":    "potential_credential_theft",
			"token_id": fam.TokenID,
			"scope":    string(l.scope()),
		})
		return domain.RefreshToken{}, ErrRefreshReuseDetected
	}

	tok, next, err := l.mint(familyID)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	nextRaw, err := json.Marshal(next)
	if err != nil {
		return domain.RefreshToken{}, err
	}

	cctx, cancel := storeContext(ctx, l.Timeout)
	defer cancel()
	swapped, err := l.KV.CompareAndSwap(cctx, key, current, nextRaw, l.ttl())
	if err != nil {
		return domain.RefreshToken{}, unavailable("refresh rotate", err)
	}
	if !swapped {
		return domain.RefreshToken{}, ErrRefreshContended
	}
	return tok, nil
}

// RevokeAll deletes every family of subjectID. Deleting nothing is not an
// error. An id Issue would refuse owns no families.
func (l *RefreshLedger) RevokeAll(ctx context.Context, subjectID string) error {
	if !store.ValidSubjectID(subjectID) {
		return nil
	}
	ctx, cancel := storeContext(ctx, l.Timeout)
	defer cancel()

	if err := l.KV.Delete(ctx, store.RefreshKey(subjectID, "")); err != nil {
		return unavailable("refresh revoke", err)
	}
	if l.scope() == ScopeSession {
		if err := l.KV.DeletePrefix(ctx, store.RefreshSubjectPrefix(subjectID)); err != nil {
			return unavailable("refresh revoke", err)
		}
	}
	return nil
}

// Reason maps a ledger error to the short reason used in logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRefreshMissing):
		return "missing"
	case errors.Is(err, ErrRefreshReuseDetected):
		return "reuse_detected"
	case errors.Is(err, ErrRefreshContended):
		return "contended"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

func (l *RefreshLedger) mint(familyID string) (domain.RefreshToken, domain.RefreshFamily, error) {
	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.RefreshToken{}, domain.RefreshFamily{}, err
	}
	token := secret
	if familyID != "" {
		token = familyID + "." + secret
	}

	tok := domain.RefreshToken{
		Token:    token,
		TokenID:  uuid.NewString(),
		FamilyID: familyID,
		TTL:      l.ttl(),
	}
	fam := domain.RefreshFamily{
		TokenID:  tok.TokenID,
		Hash:     cryptox.DigestHex(token),
		IssuedAt: l.now().UTC().Truncate(time.Second),
	}
	return tok, fam, nil
}

// familyOf extracts the family id from a presented token.
func (l *RefreshLedger) familyOf(presented string) (string, bool) {
	if presented == "" {
		return "", false
	}
	if l.scope() != ScopeSession {
		return "", true
	}
	familyID, secret, ok := strings.Cut(presented, ".")
	if !ok || secret == "" {
		return "", false
	}
	if _, err := uuid.Parse(familyID); err != nil {
		return "", false
	}
	return familyID, true
}

func (l *RefreshLedger) load(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := storeContext(ctx, l.Timeout)
	defer cancel()

	raw, err := l.KV.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRefreshMissing
	}
	if err != nil {
		return nil, unavailable("refresh load", err)
	}
	return raw, nil
}

func (l *RefreshLedger) delete(ctx context.Context, key string) error {
	ctx, cancel := storeContext(ctx, l.Timeout)
	defer cancel()
	return l.KV.Delete(ctx, key)
}

func (l *RefreshLedger) scope() RefreshScope {
	if l.Scope == "" {
		return ScopeSubject
	}
	return l.Scope
}

func (l *RefreshLedger) ttl() time.Duration {
	if l.TTL <= 0 {
		return DefaultRefreshTTL
	}
	return l.TTL
}

func (l *RefreshLedger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}
