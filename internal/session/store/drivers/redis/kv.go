// Package redis is the durable, shared KV driver. Every service instance
// pointed at the same Redis sees the same revocation and refresh state.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	goredis "github.com/redis/go-redis/v9"
)

// casScript swaps KEYS[1] from ARGV[1] to ARGV[2] with a PX TTL of ARGV[3].
// A missing key reads as false and never matches.
var casScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

const scanCount = 200

// KV adapts a go-redis client to store.KV.
type KV struct {
	c goredis.UniversalClient
}

// Options configures Connect.
type Options struct {
	// URL is a redis:// or rediss:// connection string.
	URL string

	// MaxRetries per command. Zero keeps the client default.
	MaxRetries int

	// DialTimeout bounds connection setup.
	DialTimeout time.Duration
}

// Connect parses opts.URL, dials and pings the server.
func Connect(ctx context.Context, opts Options) (*KV, error) {
	o, err := goredis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if opts.MaxRetries != 0 {
		o.MaxRetries = opts.MaxRetries
	}
	if opts.DialTimeout > 0 {
		o.DialTimeout = opts.DialTimeout
	}

	kv := New(goredis.NewClient(o))
	if err := kv.Ping(ctx); err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return kv, nil
}

// New wraps an existing client. The KV owns it and closes it on Close.
func New(c goredis.UniversalClient) *KV {
	return &KV{c: c}
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := kv.c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	return b, err
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return kv.c.Set(ctx, key, value, ttl).Err()
}

func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return kv.c.Del(ctx, keys...).Err()
}

// DeletePrefix collects every prefix* key with a full SCAN, then deletes
// them in batches. Deleting mid-scan makes the cursor skip keys. Keys
// written concurrently with the scan may survive.
func (kv *KV) DeletePrefix(ctx context.Context, prefix string) error {
	var keys []string
	iter := kv.c.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	// SCAN may return a key more than once.
	slices.Sort(keys)
	keys = slices.Compact(keys)

	for batch := range slices.Chunk(keys, scanCount) {
		if err := kv.c.Del(ctx, batch...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (kv *KV) CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error) {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	n, err := casScript.Run(ctx, kv.c, []string{key}, old, next, ms).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (kv *KV) Ping(ctx context.Context) error {
	return kv.c.Ping(ctx).Err()
}

func (kv *KV) Close() error {
	return kv.c.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ store.KV = (*KV)(nil)
