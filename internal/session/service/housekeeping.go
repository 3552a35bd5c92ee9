package service

import (
	"context"
	"log/slog"
	"time"
)

// HousekeepingService periodically re-verifies the audit chain so tampering
// surfaces in logs and metrics without anyone calling the verify endpoint.
type HousekeepingService struct {
	Audit    *AuditLog
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the worker. A non-positive interval
// defaults to one hour.
func NewHousekeepingService(audit *AuditLog, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}

	return &HousekeepingService{
		Audit:    audit,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress check has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.checkChain()

	for {
		select {
		case <-ticker.C:
			s.checkChain()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) checkChain() {
	report, err := s.Audit.Verify(context.Background())
	if err != nil {
		s.Logger.Error("audit chain check failed", "error", err)
		return
	}
	if !report.Valid {
		s.Logger.Error("audit chain divergence detected",
			"index", report.Divergence,
			"entry_id", report.EntryID,
			"reason", report.Reason)
		return
	}
	s.Logger.Debug("audit chain intact", "entries", report.Checked)
}
