package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthplan/hearthplan/internal/database"
)

// RetentionScheduler prunes terminal events past the retention age.
// A zero retention age disables pruning entirely; event history is
// kept forever by default.
type RetentionScheduler struct {
	events        *database.EventRepository
	registrations *database.RegistrationRepository
	retentionAge  time.Duration
	logger        *slog.Logger
	stopChan      chan struct{}
}

// NewRetentionScheduler creates a retention scheduler.
func NewRetentionScheduler(
	events *database.EventRepository,
	registrations *database.RegistrationRepository,
	retentionAge time.Duration,
	logger *slog.Logger,
) *RetentionScheduler {
	return &RetentionScheduler{
		events:        events,
		registrations: registrations,
		retentionAge:  retentionAge,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the daily cleanup loop. No-op when retention is
// disabled.
func (s *RetentionScheduler) Start(ctx context.Context) {
	if s.retentionAge <= 0 {
		s.logger.Info("retention cleanup disabled")
		return
	}

	s.logger.Info("starting retention scheduler", "retention_age", s.retentionAge)
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(ctx)
		case <-s.stopChan:
			s.logger.Info("retention scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("retention scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *RetentionScheduler) Stop() {
	close(s.stopChan)
}

func (s *RetentionScheduler) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-s.retentionAge)

	removed, err := s.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("event retention cleanup failed", "error", err)
	} else if removed > 0 {
		s.logger.Info("pruned old events", "count", removed)
	}

	pruned, err := s.registrations.DeleteAttemptsOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("attempt retention cleanup failed", "error", err)
	} else if pruned > 0 {
		s.logger.Info("pruned old registration attempts", "count", pruned)
	}
}
