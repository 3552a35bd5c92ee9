package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// KV is the shared key-value store holding revocation entries and refresh
// families. Two drivers exist (redis and a bounded in-memory fallback); one
// is picked at startup and passed to every component that needs it.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value with a TTL. A non-positive TTL is a caller bug.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// CompareAndSwap replaces the value of key with next, and resets its TTL,
	// only if the current value equals old. It reports whether the swap
	// happened. A missing key never swaps.
	CompareAndSwap(ctx context.Context, key string, old, next []byte, ttl time.Duration) (bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Store is the durable document store for audit entries and users. Drivers
// expose sub-repositories so transactions cannot nest by accident.
type Store interface {
	Users() Users
	AuditEntries() AuditEntries

	ApplyMigrations() error

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the repositories.
type Tx interface {
	Users() Users
	AuditEntries() AuditEntries
}

type Users interface {
	// CreateUser inserts u; a taken username or email is ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateMFASecret sets or clears (nil) the TOTP secret.
	UpdateMFASecret(ctx context.Context, userID string, secret *string) error
}

type AuditEntries interface {
	// Last returns the most recently appended entry or ErrNotFound.
	Last(ctx context.Context) (domain.AuditEntry, error)

	// Append inserts e; Seq is assigned by the store.
	Append(ctx context.Context, e domain.AuditEntry) error

	// ListAfter returns up to limit entries with Seq > afterSeq in Seq order.
	ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.AuditEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
}
