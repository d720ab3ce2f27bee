package filter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthplan/hearthplan/internal/calendar"
	"github.com/hearthplan/hearthplan/internal/classify"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/weather"
)

// PassedSentinel is the single reason recorded when every check passes.
const PassedSentinel = "passed all filters"

// Check names, in the order reasons are reported.
const (
	CheckAge      = "age"
	CheckTime     = "time_range"
	CheckSchedule = "schedule"
	CheckBudget   = "budget"
	CheckCapacity = "capacity"
	CheckNovelty  = "novelty"
	CheckWeather  = "weather"
	CheckCalendar = "calendar"
)

// CheckResult is the outcome of one independent eligibility check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
}

// Result is the full outcome of filtering one event. Every check's
// result is retained even when the event passes, so "why wasn't this
// event proposed" always has a deterministic, itemized answer.
type Result struct {
	Passed          bool          `json:"passed"`
	Reasons         []string      `json:"reasons"`
	Warnings        []string      `json:"warnings,omitempty"`
	Checks          []CheckResult `json:"checks"`
	IsDuringNapTime bool          `json:"is_during_nap_time"`
	ExtractedTime   string        `json:"extracted_time,omitempty"`
}

// AttendanceChecker answers whether the household already attended an
// event identity.
type AttendanceChecker interface {
	HasAttended(ctx context.Context, fingerprint string) (bool, error)
}

// Engine applies all eligibility checks to a canonical event. Checks
// are independent and evaluated concurrently; a failure in one never
// blocks the others, since every reason is collected.
type Engine struct {
	classifier classify.Classifier
	forecaster weather.Provider
	calendars  calendar.Checker // optional; nil skips the calendar stage
	attendance AttendanceChecker
	logger     *slog.Logger
}

// NewEngine creates a filter engine. The calendar checker may be nil.
func NewEngine(
	classifier classify.Classifier,
	forecaster weather.Provider,
	calendars calendar.Checker,
	attendance AttendanceChecker,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		classifier: classifier,
		forecaster: forecaster,
		calendars:  calendars,
		attendance: attendance,
		logger:     logger,
	}
}

// AssessAll classifies the events in a single round trip and returns
// the assessments keyed by fingerprint. On batch failure it returns
// nil; callers then fall back to per-event classification inside
// FilterAssessed.
func (e *Engine) AssessAll(ctx context.Context, events []*models.CanonicalEvent, cfg models.HouseholdConfig) map[string]classify.Assessment {
	if len(events) == 0 {
		return nil
	}

	batch, err := e.classifier.AssessBatch(ctx, events, cfg.ChildAges)
	if err != nil || len(batch) != len(events) {
		e.logger.Warn("batch classification failed, classifying per event",
			"events", len(events),
			"error", err,
		)
		return nil
	}

	assessments := make(map[string]classify.Assessment, len(batch))
	for i, event := range events {
		assessments[event.Fingerprint] = batch[i]
	}
	return assessments
}

// Filter evaluates every check against the event, classifying it
// individually first.
func (e *Engine) Filter(ctx context.Context, event *models.CanonicalEvent, fctx Context) Result {
	return e.FilterAssessed(ctx, event, fctx, nil)
}

// FilterAssessed evaluates every check against the event. The
// classifier verdict comes first because its extracted time-of-day
// feeds the time and schedule checks; a pre-computed assessment (from
// AssessAll) short-circuits that call. The remaining checks run
// concurrently.
func (e *Engine) FilterAssessed(ctx context.Context, event *models.CanonicalEvent, fctx Context, pre *classify.Assessment) Result {
	ageResult, extractedTime := e.checkAge(ctx, event, fctx, pre)
	start := e.effectiveStart(event, extractedTime, fctx.Config)

	type namedCheck struct {
		name string
		run  func() CheckResult
	}

	var napFlag bool
	var napMu sync.Mutex

	checks := []namedCheck{
		{CheckTime, func() CheckResult { return e.checkTimeRange(start, event, fctx) }},
		{CheckSchedule, func() CheckResult {
			result, nap := e.checkSchedule(start, fctx.Config)
			napMu.Lock()
			napFlag = napFlag || nap
			napMu.Unlock()
			return result
		}},
		{CheckBudget, func() CheckResult { return e.checkBudget(event, fctx.Config) }},
		{CheckCapacity, func() CheckResult { return e.checkCapacity(event) }},
		{CheckNovelty, func() CheckResult { return e.checkNovelty(ctx, event) }},
		{CheckWeather, func() CheckResult { return e.checkWeather(ctx, event, start) }},
	}

	results := make([]CheckResult, len(checks)+1)
	results[0] = ageResult

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, c namedCheck) {
			defer wg.Done()
			results[idx+1] = c.run()
		}(i, check)
	}
	wg.Wait()

	result := Result{
		Checks:          results,
		IsDuringNapTime: napFlag,
		ExtractedTime:   extractedTime,
	}

	// Optional calendar stage: hard conflict excludes, soft conflict
	// warns but keeps.
	if e.calendars != nil {
		calResult := e.checkCalendar(ctx, start)
		result.Checks = append(result.Checks, calResult.check)
		if calResult.warning != "" {
			result.Warnings = append(result.Warnings, calResult.warning)
		}
	}

	result.Passed = true
	for _, check := range result.Checks {
		if !check.Passed {
			result.Passed = false
			result.Reasons = append(result.Reasons, check.Reason)
		}
	}
	if result.Passed {
		result.Reasons = []string{PassedSentinel}
	}

	return result
}

// effectiveStart resolves the timestamp the time-based checks evaluate.
// All-day events get the classifier's extracted time when available,
// otherwise a synthetic default (weekday evening / weekend morning).
func (e *Engine) effectiveStart(event *models.CanonicalEvent, extractedTime string, cfg models.HouseholdConfig) time.Time {
	if !event.AllDay || event.StartTime.IsZero() {
		return event.StartTime
	}

	day := event.StartTime
	if extractedTime != "" {
		if t, err := time.Parse("15:04", extractedTime); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location())
		}
	}

	if models.IsWeekend(day) {
		return time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 17, 30, 0, 0, day.Location())
}
