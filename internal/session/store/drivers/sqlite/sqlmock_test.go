package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewStoreFromDB(db), mock
}

func TestMock_LastEmptyIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM audit_entries ORDER BY seq DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "ts", "user_id", "action", "target", "details", "prev_hash", "hash"}))

	_, err := s.AuditEntries().Last(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_AppendFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("disk I/O error")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO audit_entries`).WillReturnError(boom)
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.AuditEntries().Append(context.Background(), domain.AuditEntry{
			ID: "01J0000000000000000000000", Timestamp: time.Now(), Action: "login",
			Details: json.RawMessage(`{}`), Hash: "h",
		})
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_UniqueViolationMapsToAlreadyExists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"))

	err := s.Users().CreateUser(context.Background(), domain.User{ID: "x", Username: "a", Email: "a@b.c", Role: domain.RoleBlue})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_CorruptTimestampSurfaces(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM audit_entries WHERE seq > \?`).
		WithArgs(int64(0), 10).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "ts", "user_id", "action", "target", "details", "prev_hash", "hash"}).
			AddRow(1, "id1", "not-a-time", nil, "login", "", "{}", nil, "h"))

	_, err := s.AuditEntries().ListAfter(context.Background(), 0, 10)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ts")
	require.NoError(t, mock.ExpectationsWereMet())
}
