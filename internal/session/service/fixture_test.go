package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/memory"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionguard/pkg/cryptox"
	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "purple-team-app"
	testAudience = "purple-team-clients"
)

var testSecret = []byte(strings.Repeat("s", 32))

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock    *clock
	kv       *memory.KV
	db       *sql.DB
	store    *sqlite.Store
	ring     *jwtx.KeyRing
	registry *prometheus.Registry

	revocations *RevocationStore
	tokens      *TokenService
	ledger      *RefreshLedger
	audit       *AuditLog
	users       *UserService
	sessions    *SessionService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	scope      RefreshScope
	enforceMFA bool
	kv         store.KV
	audit      AuditOptions
}

func withScope(s RefreshScope) fixtureOption {
	return func(c *fixtureConfig) { c.scope = s }
}

func withAdminMFA() fixtureOption {
	return func(c *fixtureConfig) { c.enforceMFA = true }
}

func withKV(kv store.KV) fixtureOption {
	return func(c *fixtureConfig) { c.kv = kv }
}

// openStore returns a migrated in-memory database plus the raw handle, so
// tests can tamper with rows behind the store's back.
func openStore(t *testing.T) (*sqlite.Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	st := sqlite.NewStoreFromDB(db)
	require.NoError(t, st.ApplyMigrations())
	return st, db
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{scope: ScopeSubject}
	for _, o := range opts {
		o(&cfg)
	}

	f := &fixture{clock: newClock(), registry: prometheus.NewRegistry()}
	m := metrics.New(f.registry)

	f.kv = memory.NewKV(1000, memory.WithClock(f.clock.Now), memory.WithoutGC())
	t.Cleanup(func() { _ = f.kv.Close() })
	kv := store.KV(f.kv)
	if cfg.kv != nil {
		kv = cfg.kv
	}

	f.store, f.db = openStore(t)

	var err error
	f.ring, err = jwtx.NewKeyRing(map[string][]byte{jwtx.DefaultKID: testSecret}, "")
	require.NoError(t, err)

	cfg.audit.Now = f.clock.Now
	f.audit = NewAuditLog(f.store, m, cfg.audit)
	t.Cleanup(f.audit.Close)

	f.revocations = &RevocationStore{KV: kv, Metrics: m}
	f.tokens, err = NewTokenService(f.ring, f.revocations, TokenConfig{
		Issuer:   testIssuer,
		Audience: testAudience,
		Now:      f.clock.Now,
	})
	require.NoError(t, err)
	f.tokens.Metrics = m

	f.ledger = &RefreshLedger{
		KV:      kv,
		Scope:   cfg.scope,
		Audit:   f.audit,
		Metrics: m,
		Now:     f.clock.Now,
	}
	f.users = &UserService{
		Store:            f.store,
		Hasher:           cryptox.PasswordHasher{Pepper: "test-pepper"},
		EnforceAdminMFA:  cfg.enforceMFA,
		AllowAdminSignup: true,
		Now:              f.clock.Now,
	}
	f.sessions = &SessionService{
		Users:  f.users,
		Tokens: f.tokens,
		Ledger: f.ledger,
		Audit:  f.audit,
	}
	return f
}

// entries returns every stored audit entry in chain order.
func (f *fixture) entries(t *testing.T) []domain.AuditEntry {
	t.Helper()
	out, err := f.store.AuditEntries().ListAfter(context.Background(), 0, 10_000)
	require.NoError(t, err)
	return out
}

func (f *fixture) actions(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, e := range f.entries(t) {
		out = append(out, e.Action)
	}
	return out
}

var errBackendDown = errors.New("connection refused")

// downKV fails every call, standing in for an unreachable Redis.
type downKV struct{}

func (downKV) Get(context.Context, string) ([]byte, error)                   { return nil, errBackendDown }
func (downKV) Set(context.Context, string, []byte, time.Duration) error      { return errBackendDown }
func (downKV) Delete(context.Context, ...string) error                       { return errBackendDown }
func (downKV) DeletePrefix(context.Context, string) error                    { return errBackendDown }
func (downKV) Ping(context.Context) error                                    { return errBackendDown }
func (downKV) Close() error                                                  { return nil }
func (downKV) CompareAndSwap(context.Context, string, []byte, []byte, time.Duration) (bool, error) {
	return false, errBackendDown
}

// slowKV blocks until the call's context expires.
type slowKV struct{ downKV }

func (slowKV) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
