package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHousekeepingReportsDivergence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for range 3 {
		f.audit.Record(ctx, "u1", ActionLogin, "user", nil)
	}
	entries := f.entries(t)
	_, err := f.db.Exec(`UPDATE audit_entries SET action = 'logout' WHERE id = ?`, entries[1].ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hk := NewHousekeepingService(f.audit, logger, time.Hour)
	hk.Start()
	hk.Stop()

	out := buf.String()
	require.Contains(t, out, "audit chain divergence detected")
	require.Contains(t, out, "index=1")
	require.Contains(t, out, "housekeeping service stopped")
}

func TestHousekeepingDefaultInterval(t *testing.T) {
	hk := NewHousekeepingService(nil, slog.Default(), 0)
	require.Equal(t, time.Hour, hk.Interval)
}
