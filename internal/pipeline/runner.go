package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthplan/hearthplan/internal/classify"
	"github.com/hearthplan/hearthplan/internal/filter"
	"github.com/hearthplan/hearthplan/internal/merge"
	"github.com/hearthplan/hearthplan/internal/metrics"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/retry"
	"github.com/hearthplan/hearthplan/internal/scoring"
)

// ErrRunInProgress is returned when a run is requested while another
// run is still executing. Runs are strictly serialized so two passes
// never race on the canonical event set.
var ErrRunInProgress = errors.New("discovery run already in progress")

// EventStore is the persistence surface the runner needs.
type EventStore interface {
	// ListActive returns all upcoming, non-terminal canonical events.
	// The merge step folds new candidates into this set.
	ListActive(ctx context.Context) ([]models.CanonicalEvent, error)

	// Upsert writes a canonical event keyed by fingerprint.
	Upsert(ctx context.Context, event *models.CanonicalEvent) error

	// SaveFilterResult persists the filter verdict for an event.
	SaveFilterResult(ctx context.Context, fingerprint string, result filter.Result) error

	// SaveScore persists the preference score and its breakdown.
	SaveScore(ctx context.Context, fingerprint string, score float64, breakdown models.ScoreBreakdown) error

	// TransitionStatus conditionally moves an event between statuses.
	TransitionStatus(ctx context.Context, fingerprint string, from, to models.EventStatus) (bool, error)
}

// MergeStore persists the merge audit trail.
type MergeStore interface {
	InsertRecords(ctx context.Context, records []models.MergeRecord) error
}

// Notifier proposes events to the household.
type Notifier interface {
	Send(ctx context.Context, event *models.CanonicalEvent, recipient string, channel models.NotificationChannel) (*models.Notification, error)
}

// Config tunes one discovery run.
type Config struct {
	FetchConcurrency  int
	FilterConcurrency int
	ProposeLimit      int
	FetchWindow       time.Duration
	Recipient         string
	Channel           models.NotificationChannel
	OrderMode         scoring.OrderMode
	Retry             retry.Policy
}

// RunResult summarizes one discovery run.
type RunResult struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	CandidatesFetched int           `json:"candidates_fetched"`
	CandidatesDropped int           `json:"candidates_dropped"`
	MergesPerformed   int           `json:"merges_performed"`
	EventsFiltered    int           `json:"events_filtered"`
	EventsPassed      int           `json:"events_passed"`
	EventsProposed    int           `json:"events_proposed"`
	NotificationsSent int           `json:"notifications_sent"`
	SourceErrors      []string      `json:"source_errors,omitempty"`
}

// Runner executes the discovery pipeline end to end: fetch candidates
// from every connector, merge into the canonical set, filter, score,
// and propose the top events for approval.
type Runner struct {
	connectors []Connector
	events     EventStore
	merges     MergeStore
	merger     *merge.Engine
	filters    *filter.Engine
	configs    *filter.ConfigCache
	scorer     *scoring.Scorer
	notifier   Notifier
	metrics    *metrics.Collector
	cfg        Config
	logger     *slog.Logger

	mu      sync.Mutex
	lastRun *RunResult
}

// NewRunner assembles a pipeline runner.
func NewRunner(
	connectors []Connector,
	events EventStore,
	merges MergeStore,
	merger *merge.Engine,
	filters *filter.Engine,
	configs *filter.ConfigCache,
	scorer *scoring.Scorer,
	notifier Notifier,
	collector *metrics.Collector,
	cfg Config,
	logger *slog.Logger,
) *Runner {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.FilterConcurrency <= 0 {
		cfg.FilterConcurrency = 8
	}
	if cfg.ProposeLimit <= 0 {
		cfg.ProposeLimit = 5
	}
	if cfg.FetchWindow <= 0 {
		cfg.FetchWindow = 24 * time.Hour
	}
	return &Runner{
		connectors: connectors,
		events:     events,
		merges:     merges,
		merger:     merger,
		filters:    filters,
		configs:    configs,
		scorer:     scorer,
		notifier:   notifier,
		metrics:    collector,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one full discovery pass. Only one run may execute at a
// time; concurrent callers get ErrRunInProgress rather than queueing.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	started := time.Now()
	result := &RunResult{StartedAt: started}

	household, err := r.configs.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load household config: %w", err)
	}
	fctx := filter.Context{Config: household, Now: started}

	candidates, sourceErrors := r.fetchAll(ctx, started.Add(-r.cfg.FetchWindow))
	result.CandidatesFetched = len(candidates)
	result.SourceErrors = sourceErrors

	existing, err := r.events.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical events: %w", err)
	}

	merged := r.merger.Merge(candidates, existing)
	result.CandidatesDropped = merged.Dropped
	result.MergesPerformed = len(merged.Merges)
	r.metrics.CandidatesDropped(merged.Dropped)
	for _, record := range merged.Merges {
		r.metrics.MergePerformed(string(record.MergeType))
	}

	for i := range merged.Canonical {
		if err := r.events.Upsert(ctx, &merged.Canonical[i]); err != nil {
			r.logger.Error("failed to persist canonical event",
				"fingerprint", merged.Canonical[i].Fingerprint, "error", err)
		}
	}
	if len(merged.Merges) > 0 {
		if err := r.merges.InsertRecords(ctx, merged.Merges); err != nil {
			r.logger.Error("failed to persist merge records", "error", err)
		}
	}

	passed := r.filterStage(ctx, merged.Canonical, fctx, result)

	ranked := r.scorer.Score(ctx, passed, r.cfg.OrderMode)
	for _, event := range ranked {
		if err := r.events.SaveScore(ctx, event.Fingerprint, event.PreferenceScore, event.ScoreBreakdown); err != nil {
			r.logger.Error("failed to persist score",
				"fingerprint", event.Fingerprint, "error", err)
		}
	}

	r.proposeStage(ctx, ranked, result)

	result.Duration = time.Since(started)
	r.metrics.RunCompleted(result.Duration)
	r.lastRun = result

	r.logger.Info("discovery run complete",
		"candidates", result.CandidatesFetched,
		"dropped", result.CandidatesDropped,
		"merges", result.MergesPerformed,
		"filtered", result.EventsFiltered,
		"passed", result.EventsPassed,
		"proposed", result.EventsProposed,
		"duration", result.Duration)

	return result, nil
}

// LastRun returns the most recently completed run summary, or nil.
func (r *Runner) LastRun() *RunResult {
	if !r.mu.TryLock() {
		return nil
	}
	defer r.mu.Unlock()
	return r.lastRun
}

// fetchAll pulls every connector concurrently with a bounded worker
// limit. A failing source contributes an error note, never aborts the
// run; the other sources' candidates still flow through.
func (r *Runner) fetchAll(ctx context.Context, since time.Time) ([]models.CandidateEvent, []string) {
	var (
		mu         sync.Mutex
		candidates []models.CandidateEvent
		sourceErrs []string
	)

	sem := make(chan struct{}, r.cfg.FetchConcurrency)
	var wg sync.WaitGroup

	for _, connector := range r.connectors {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var fetched []models.CandidateEvent
			err := retry.Do(ctx, r.cfg.Retry, func() error {
				var fetchErr error
				fetched, fetchErr = c.Fetch(ctx, since)
				return fetchErr
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Error("source fetch failed", "source", c.Name(), "error", err)
				sourceErrs = append(sourceErrs, fmt.Sprintf("%s: %v", c.Name(), err))
				return
			}

			valid := fetched[:0]
			for _, candidate := range fetched {
				if candidate.Valid() {
					valid = append(valid, candidate)
				}
			}
			r.metrics.CandidatesFetched(c.Name(), len(valid))
			r.metrics.CandidatesDropped(len(fetched) - len(valid))
			r.logger.Info("source fetched",
				"source", c.Name(), "candidates", len(valid), "invalid", len(fetched)-len(valid))
			candidates = append(candidates, valid...)
		}(connector)
	}

	wg.Wait()
	return candidates, sourceErrs
}

// filterStage runs the filter engine over newly discovered events with
// bounded parallelism and persists every verdict. The whole discovered
// set is classified in one batch up front; the per-event checks then
// reuse those assessments instead of calling the classifier again.
func (r *Runner) filterStage(ctx context.Context, canonical []models.CanonicalEvent, fctx filter.Context, result *RunResult) []*models.CanonicalEvent {
	var discovered []*models.CanonicalEvent
	for i := range canonical {
		if canonical[i].Status == models.EventStatusDiscovered {
			discovered = append(discovered, &canonical[i])
		}
	}

	assessments := r.filters.AssessAll(ctx, discovered, fctx.Config)

	sem := make(chan struct{}, r.cfg.FilterConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var passed []*models.CanonicalEvent

	for _, event := range discovered {
		var pre *classify.Assessment
		if assessment, ok := assessments[event.Fingerprint]; ok {
			pre = &assessment
		}

		wg.Add(1)
		go func(event *models.CanonicalEvent, pre *classify.Assessment) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			verdict := r.filters.FilterAssessed(ctx, event, fctx, pre)

			mu.Lock()
			result.EventsFiltered++
			mu.Unlock()

			event.FilterPassed = verdict.Passed
			event.FilterReasons = verdict.Reasons
			event.IsDuringNapTime = verdict.IsDuringNapTime

			for _, check := range verdict.Checks {
				if !check.Passed {
					r.metrics.FilterRejection(check.Name)
				}
			}

			if err := r.events.SaveFilterResult(ctx, event.Fingerprint, verdict); err != nil {
				r.logger.Error("failed to persist filter result",
					"fingerprint", event.Fingerprint, "error", err)
			}

			if verdict.Passed {
				mu.Lock()
				result.EventsPassed++
				passed = append(passed, event)
				mu.Unlock()
			}
		}(event, pre)
	}

	wg.Wait()
	return passed
}

// proposeStage promotes the top ranked events and notifies the
// household about each one.
func (r *Runner) proposeStage(ctx context.Context, ranked []*models.CanonicalEvent, result *RunResult) {
	for _, event := range ranked {
		if result.EventsProposed >= r.cfg.ProposeLimit {
			break
		}

		moved, err := r.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusDiscovered, models.EventStatusProposed)
		if err != nil {
			r.logger.Error("failed to propose event",
				"fingerprint", event.Fingerprint, "error", err)
			continue
		}
		if !moved {
			continue
		}
		event.Status = models.EventStatusProposed
		result.EventsProposed++
		r.metrics.EventProposed()

		if _, err := r.notifier.Send(ctx, event, r.cfg.Recipient, r.cfg.Channel); err != nil {
			r.logger.Error("failed to notify household",
				"fingerprint", event.Fingerprint, "error", err)
			continue
		}
		result.NotificationsSent++
	}
}
