package sqlite_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionguard/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := domain.User{
		ID:           idx.New().String(),
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$argon2id$fake",
		Role:         domain.RoleRed,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	t.Run("lookup", func(t *testing.T) {
		got, err := s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, domain.RoleRed, got.Role)
		require.Nil(t, got.MFASecret)
		require.False(t, got.CreatedAt.IsZero())

		byID, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, got, byID)
	})

	t.Run("duplicates", func(t *testing.T) {
		dup := u
		dup.ID = idx.New().String()
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

		dup.Username = "alice2"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists, "email is unique too")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Users().GetUserByUsername(ctx, "nobody")
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Users().UpdatePasswordHash(ctx, "nobody", "x"), store.ErrNotFound)
	})

	t.Run("updates", func(t *testing.T) {
		require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "$argon2id$new"))
		secret := "JBSWY3DPEHPK3PXP"
		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, &secret))

		got, err := s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$new", got.PasswordHash)
		require.Equal(t, secret, *got.MFASecret)

		require.NoError(t, s.Users().UpdateMFASecret(ctx, u.ID, nil))
		got, err = s.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Nil(t, got.MFASecret)
	})

	t.Run("role check constraint", func(t *testing.T) {
		bad := domain.User{ID: idx.New().String(), Username: "eve", Email: "eve@example.com", PasswordHash: "x", Role: "root"}
		require.Error(t, s.Users().CreateUser(ctx, bad))
	})
}

func TestAuditEntries(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.AuditEntries().Last(ctx)
	require.ErrorIs(t, err, store.ErrNotFound)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	var prev *string
	for i := range 5 {
		hash := string(rune('a' + i))
		e := domain.AuditEntry{
			ID:        idx.New().String(),
			Timestamp: ts.Add(time.Duration(i) * time.Second),
			Action:    "login",
			Target:    "user",
			Details:   json.RawMessage(`{"i":` + string(rune('0'+i)) + `}`),
			PrevHash:  prev,
			Hash:      hash,
		}
		if i%2 == 0 {
			e.UserID = "u1"
		}
		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			return tx.AuditEntries().Append(ctx, e)
		}))
		prev = &hash
	}

	last, err := s.AuditEntries().Last(ctx)
	require.NoError(t, err)
	require.Equal(t, "e", last.Hash)
	require.Equal(t, "d", *last.PrevHash)
	require.Equal(t, "u1", last.UserID)
	require.True(t, ts.Add(4*time.Second).Equal(last.Timestamp))

	n, err := s.AuditEntries().Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	page, err := s.AuditEntries().ListAfter(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Nil(t, page[0].PrevHash)
	require.Empty(t, page[1].UserID)
	require.JSONEq(t, `{"i":0}`, string(page[0].Details))

	rest, err := s.AuditEntries().ListAfter(ctx, page[2].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, "e", rest[1].Hash)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.AuditEntries().Append(ctx, domain.AuditEntry{
			ID: idx.New().String(), Timestamp: time.Now(), Action: "x", Details: json.RawMessage(`{}`), Hash: "h",
		}))
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	n, err := s.AuditEntries().Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
