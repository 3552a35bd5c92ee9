package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
)

const auditColumns = `seq, id, ts, user_id, action, target, details, prev_hash, hash`

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Last(ctx context.Context) (domain.AuditEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	return scanAudit(row)
}

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, ts, user_id, action, target, details, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), nullIfEmpty(e.UserID), e.Action, e.Target,
		string(e.Details), mapOptionalString(e.PrevHash), e.Hash,
	)
	return mapConstraint(err)
}

func (r *auditRepo) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_entries WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudit(s scanner) (domain.AuditEntry, error) {
	var (
		e        domain.AuditEntry
		ts       string
		userID   sql.NullString
		details  string
		prevHash sql.NullString
	)
	if err := s.Scan(&e.Seq, &e.ID, &ts, &userID, &e.Action, &e.Target, &details, &prevHash, &e.Hash); err != nil {
		return domain.AuditEntry{}, mapNotFound(err)
	}

	t, err := parseTime(ts)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("sqlite: audit %s ts: %w", e.ID, err)
	}
	e.Timestamp = t
	e.UserID = userID.String
	e.Details = json.RawMessage(details)
	e.PrevHash = mapNullStringPtr(prevHash)
	return e, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
