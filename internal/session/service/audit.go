package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sessionguard/internal/session/domain"
	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/pkg/idx"
	"github.com/aussiebroadwan/sessionguard/pkg/redactx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
)

// Audited actions.
const (
	ActionRegister       = "register"
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionRefresh        = "refresh"
	ActionRefreshFailed  = "refresh_failed"
	ActionRefreshReuse   = "refresh_reuse_detected"
	ActionLogout         = "logout"
	ActionLogoutAll      = "logout_all"
	ActionChangePassword = "change_password"
	ActionMFAEnrolled    = "mfa_enrolled"
)

// AuditFailurePolicy decides what happens when an append fails.
type AuditFailurePolicy string

const (
	// AuditLogOnly logs the failure and moves on, accepting a gap.
	AuditLogOnly AuditFailurePolicy = "log"
	// AuditRetry retries with linear backoff before giving up and logging.
	AuditRetry AuditFailurePolicy = "retry"
)

// ParseAuditFailurePolicy maps "" to AuditLogOnly.
func ParseAuditFailurePolicy(s string) (AuditFailurePolicy, error) {
	switch AuditFailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuditLogOnly:
		return AuditLogOnly, nil
	case AuditRetry:
		return AuditRetry, nil
	default:
		return "", fmt.Errorf("unknown audit failure policy %q", s)
	}
}

const (
	defaultAuditQueueSize = 256
	defaultAuditRetries   = 3
	defaultRetryBackoff   = 100 * time.Millisecond
	verifyPageSize        = 500
)

type AuditOptions struct {
	QueueSize int

	// Async makes Record return once the entry is queued instead of once it
	// is persisted. A full queue then drops the entry.
	Async bool

	FailurePolicy  AuditFailurePolicy
	Retries        int
	RetryBackoff   time.Duration
	StoreTimeout   time.Duration
	MaxDetailBytes int

	Now func() time.Time
}

type auditJob struct {
	ctx    context.Context
	entry  domain.AuditEntry
	result chan error
}

// AuditLog appends hash-chained entries through a single writer goroutine,
// so reading the previous hash and inserting the next entry never
// interleave between callers.
type AuditLog struct {
	store   store.Store
	metrics *metrics.Metrics
	opts    AuditOptions

	mu     sync.RWMutex
	closed bool
	queue  chan auditJob
	done   chan struct{}
}

// NewAuditLog starts the writer. Call Close to drain it.
func NewAuditLog(st store.Store, m *metrics.Metrics, opts AuditOptions) *AuditLog {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultAuditQueueSize
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = AuditLogOnly
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultAuditRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.MaxDetailBytes <= 0 {
		opts.MaxDetailBytes = redactx.DefaultMaxBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &AuditLog{
		store:   st,
		metrics: m,
		opts:    opts,
		queue:   make(chan auditJob, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Record appends an entry. It never fails the caller: problems are logged
// and counted. userID may be empty for anonymous actions.
func (l *AuditLog) Record(ctx context.Context, userID, action, target string, details map[string]any) {
	if l == nil {
		return
	}
	log := slogx.FromContext(ctx)

	redacted, err := redactx.Details(details, l.opts.MaxDetailBytes)
	if err != nil {
		l.fail(log, "encode", action, err)
		return
	}

	job := auditJob{
		ctx: context.WithoutCancel(ctx),
		entry: domain.AuditEntry{
			UserID:  userID,
			Action:  action,
			Target:  target,
			Details: redacted,
		},
	}
	if !l.opts.Async {
		job.result = make(chan error, 1)
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		l.fail(log, "closed", action, errors.New("audit log closed"))
		return
	}
	if l.opts.Async {
		select {
		case l.queue <- job:
		default:
			l.mu.RUnlock()
			l.fail(log, "queue_full", action, errors.New("audit queue full"))
			return
		}
	} else {
		l.queue <- job
	}
	l.mu.RUnlock()

	if job.result != nil {
		<-job.result
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (l *AuditLog) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()
	<-l.done
}

func (l *AuditLog) run() {
	defer close(l.done)
	for job := range l.queue {
		err := l.persist(job)
		if job.result != nil {
			job.result <- err
		}
	}
}

func (l *AuditLog) persist(job auditJob) error {
	attempts := 1
	if l.opts.FailurePolicy == AuditRetry {
		attempts += l.opts.Retries
	}

	var err error
	for i := range attempts {
		if i > 0 {
			time.Sleep(l.opts.RetryBackoff * time.Duration(i))
		}
		if err = l.appendOnce(job.ctx, job.entry); err == nil {
			l.metrics.AuditAppended()
			return nil
		}
	}

	l.fail(slogx.FromContext(job.ctx), "write", job.entry.Action, err)
	return fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
}

// appendOnce links e to the current head and inserts it in one transaction.
func (l *AuditLog) appendOnce(ctx context.Context, e domain.AuditEntry) error {
	ctx, cancel := storeContext(ctx, l.opts.StoreTimeout)
	defer cancel()

	return l.store.WithTx(ctx, func(tx store.Tx) error {
		e.PrevHash = nil
		last, err := tx.AuditEntries().Last(ctx)
		switch {
		case err == nil:
			prev := last.Hash
			e.PrevHash = &prev
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		e.Timestamp = l.opts.Now().UTC()
		if !last.Timestamp.IsZero() && e.Timestamp.Before(last.Timestamp) {
			e.Timestamp = last.Timestamp
		}
		e.ID = idx.NewAt(e.Timestamp).String()
		e.Hash = ChainHash(e)
		return tx.AuditEntries().Append(ctx, e)
	})
}

func (l *AuditLog) fail(log *slog.Logger, cause, action string, err error) {
	l.metrics.AuditFailed(cause)
	log.Error("audit write failed",
		slog.String("action", action),
		slog.String("cause", cause),
		slog.Any("error", fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)))
}

// Verify walks the chain in append order, recomputing every hash and
// checking every prev_hash link. The first failing index is reported.
func (l *AuditLog) Verify(ctx context.Context) (domain.ChainReport, error) {
	report := domain.ChainReport{Valid: true, Divergence: -1}

	var (
		prev     *string
		afterSeq int64
		index    int
	)
	for {
		page, err := l.page(ctx, afterSeq)
		if err != nil {
			return domain.ChainReport{}, err
		}

		for _, e := range page {
			reason := ""
			switch {
			case ChainHash(e) != e.Hash:
				reason = "hash_mismatch"
			case !samePrev(e.PrevHash, prev):
				reason = "prev_hash_mismatch"
			}
			if reason != "" {
				report.Checked = index + 1
				report.Valid = false
				report.Divergence = index
				report.EntryID = e.ID
				report.Reason = reason
				l.metrics.AuditDivergence(index)
				return report, nil
			}

			h := e.Hash
			prev = &h
			afterSeq = e.Seq
			index++
		}

		if len(page) < verifyPageSize {
			break
		}
	}

	report.Checked = index
	l.metrics.AuditDivergence(-1)
	return report, nil
}

func (l *AuditLog) page(ctx context.Context, afterSeq int64) ([]domain.AuditEntry, error) {
	ctx, cancel := storeContext(ctx, l.opts.StoreTimeout)
	defer cancel()

	page, err := l.store.AuditEntries().ListAfter(ctx, afterSeq, verifyPageSize)
	if err != nil {
		return nil, unavailable("audit list", err)
	}
	return page, nil
}

func samePrev(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// chainInput is the canonical form hashed for each entry. Field order is
// part of the format.
type chainInput struct {
	TS       string          `json:"ts"`
	UserID   *string         `json:"userId"`
	Action   string          `json:"action"`
	Target   string          `json:"target"`
	Details  json.RawMessage `json:"details"`
	PrevHash *string         `json:"prevHash"`
}

// ChainHash is the hex SHA-256 over the canonical JSON of e's hashed fields.
func ChainHash(e domain.AuditEntry) string {
	in := chainInput{
		TS:       e.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:   e.Action,
		Target:   e.Target,
		Details:  e.Details,
		PrevHash: e.PrevHash,
	}
	if e.UserID != "" {
		in.UserID = &e.UserID
	}
	if len(in.Details) == 0 {
		in.Details = json.RawMessage("{}")
	}

	raw, err := json.Marshal(in)
	if err != nil {
		// Details is not valid JSON; hash the raw bytes as a string.
		in.Details = nil
		raw, _ = json.Marshal(struct {
			chainInput
			Raw string `json:"raw"`
		}{in, string(e.Details)})
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
