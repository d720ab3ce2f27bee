package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthplan/hearthplan/internal/notify"
)

// TimeoutScheduler sweeps open notifications past their response
// window, cancelling them and their events.
type TimeoutScheduler struct {
	notifier      *notify.Service
	checkInterval time.Duration
	logger        *slog.Logger
	stopChan      chan struct{}
}

// NewTimeoutScheduler creates a notification timeout scheduler.
func NewTimeoutScheduler(notifier *notify.Service, checkInterval time.Duration, logger *slog.Logger) *TimeoutScheduler {
	if checkInterval <= 0 {
		checkInterval = 15 * time.Minute
	}
	return &TimeoutScheduler{
		notifier:      notifier,
		checkInterval: checkInterval,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *TimeoutScheduler) Start(ctx context.Context) {
	s.logger.Info("starting notification timeout scheduler", "check_interval", s.checkInterval)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("notification timeout scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("notification timeout scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *TimeoutScheduler) Stop() {
	close(s.stopChan)
}

func (s *TimeoutScheduler) sweep(ctx context.Context) {
	expired, err := s.notifier.ExpireStale(ctx)
	if err != nil {
		s.logger.Error("notification timeout sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.logger.Info("expired stale notifications", "count", expired)
	}
}
