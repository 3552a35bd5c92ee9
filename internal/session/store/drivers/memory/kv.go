// Package memory is the in-process KV fallback used when no Redis is
// configured. It is bounded and holds state for one process only, so it
// suits single-instance deployments and tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/store"
)

// DefaultMaxEntries bounds the store when no limit is given.
const DefaultMaxEntries = 100_000

// cleanupInterval controls how often expired entries are reaped.
const cleanupInterval = time.Minute

// ErrFull is returned when a new key would exceed the entry limit even after
// expired entries are reaped. Live entries are never evicted early, since
// dropping a revocation entry would revive a revoked token.
var ErrFull = errors.New("memory: kv full")

var errClosed = errors.New("memory: kv closed")

type entry struct {
	value     []byte
	expiresAt time.Time
}

// KV is a mutex-guarded map with per-key expiry.
type KV struct {
	mu         sync.Mutex
	data       map[string]entry
	maxEntries int
	now        func() time.Time
	closed     bool

	stopGC chan struct{}
	gcDone chan struct{}
}

type Option func(*KV)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(kv *KV) { kv.now = now }
}

// WithoutGC disables the background reaper; expired keys are still invisible
// to reads and are reaped when the store fills up.
func WithoutGC() Option {
	return func(kv *KV) { kv.stopGC = nil }
}

// NewKV creates an empty store holding at most maxEntries keys and starts the
// background reaper. Call Close to stop it.
func NewKV(maxEntries int, opts ...Option) *KV {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	kv := &KV{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stopGC:     make(chan struct{}),
		gcDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(kv)
	}

	if kv.stopGC != nil {
		go kv.gcLoop()
	} else {
		close(kv.gcDone)
	}
	return kv
}

func (kv *KV) gcLoop() {
	defer close(kv.gcDone)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			kv.Sweep()
		case <-kv.stopGC:
			return
		}
	}
}

// Sweep removes expired entries and reports how many were dropped.
func (kv *KV) Sweep() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.sweepLocked()
}

func (kv *KV) sweepLocked() int {
	now := kv.now()
	n := 0
	for k, e := range kv.data {
		if !now.Before(e.expiresAt) {
			delete(kv.data, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired or not.
func (kv *KV) Len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.data)
}

// live returns the unexpired entry for key. Caller holds mu.
func (kv *KV) live(key string) (entry, bool) {
	e, ok := kv.data[key]
	if !ok {
		return entry{}, false
	}
	if !kv.now().Before(e.expiresAt) {
		delete(kv.data, key)
		return entry{}, false
	}
	return e, true
}

// put stores value, enforcing the size bound for new keys. Caller holds mu.
func (kv *KV) put(key string, value []byte, ttl time.Duration) error {
	if _, exists := kv.data[key]; !exists && len(kv.data) >= kv.maxEntries {
		if kv.sweepLocked() == 0 {
			return ErrFull
		}
	}
	kv.data[key] = entry{value: slices.Clone(value), expiresAt: kv.now().Add(ttl)}
	return nil
}

func (kv *KV) check(ctx context.Context) error {
	if kv.closed {
		return errClosed
	}
	return ctx.Err()
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.check(ctx); err != nil {
		return nil, err
	}

	e, ok := kv.live(key)
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.check(ctx); err != nil {
		return err
	}
	return kv.put(key, value, ttl)
}

func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.check(ctx); err != nil {
		return err
	}
	for _, k := range keys {
		delete(kv.data, k)
	}
	return nil
}

func (kv *KV) DeletePrefix(ctx context.Context, prefix string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.check(ctx); err != nil {
		return err
	}
	for k := range kv.data {
		if strings.HasPrefix(k, prefix) {
			delete(kv.data, k)
		}
	}
	return nil
}

func (kv *KV) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if err := kv.check(ctx); err != nil {
		return false, err
	}

	e, ok := kv.live(key)
	if !ok || !bytes.Equal(e.value, old) {
		return false, nil
	}
	if err := kv.put(key, next, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (kv *KV) Ping(ctx context.Context) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.check(ctx)
}

// Close stops the reaper. Further calls fail.
func (kv *KV) Close() error {
	kv.mu.Lock()
	if kv.closed {
		kv.mu.Unlock()
		return nil
	}
	kv.closed = true
	kv.mu.Unlock()

	if kv.stopGC != nil {
		close(kv.stopGC)
	}
	<-kv.gcDone
	return nil
}

var _ store.KV = (*KV)(nil)
