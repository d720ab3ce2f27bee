// Package scheduler runs the periodic background loops: discovery
// runs, notification timeouts, and retention cleanup.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthplan/hearthplan/internal/pipeline"
)

// DiscoveryScheduler triggers a full discovery run on a fixed interval.
type DiscoveryScheduler struct {
	runner   *pipeline.Runner
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewDiscoveryScheduler creates a discovery scheduler.
func NewDiscoveryScheduler(runner *pipeline.Runner, interval time.Duration, logger *slog.Logger) *DiscoveryScheduler {
	return &DiscoveryScheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler loop. Runs once immediately, then on the
// configured interval.
func (s *DiscoveryScheduler) Start(ctx context.Context) {
	s.logger.Info("starting discovery scheduler", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("discovery scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("discovery scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler.
func (s *DiscoveryScheduler) Stop() {
	close(s.stopChan)
}

func (s *DiscoveryScheduler) runOnce(ctx context.Context) {
	result, err := s.runner.Run(ctx)
	if err == pipeline.ErrRunInProgress {
		s.logger.Warn("skipping scheduled run, previous run still in progress")
		return
	}
	if err != nil {
		s.logger.Error("scheduled discovery run failed", "error", err)
		return
	}

	s.logger.Info("scheduled discovery run finished",
		"candidates", result.CandidatesFetched,
		"proposed", result.EventsProposed,
		"duration", result.Duration,
	)
}
