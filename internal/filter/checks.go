package filter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/classify"
	"github.com/hearthplan/hearthplan/internal/models"
)

// boundaryBuffer pads the lead-time and past-event boundaries so events
// near a cutoff do not flap between passes.
const boundaryBuffer = time.Hour

// checkAge applies the pre-computed batch assessment when one exists,
// otherwise runs the classifier collaborator; on failure it falls back
// to the declared range check with no time extraction.
func (e *Engine) checkAge(ctx context.Context, event *models.CanonicalEvent, fctx Context, pre *classify.Assessment) (CheckResult, string) {
	var assessment classify.Assessment
	if pre != nil {
		assessment = *pre
	} else {
		var err error
		assessment, err = e.classifier.Assess(ctx, event, fctx.Config.ChildAges)
		if err != nil {
			e.logger.Warn("classifier failed, applying declared age range",
				"fingerprint", event.Fingerprint,
				"error", err,
			)
			assessment, _ = classify.NewRuleBased().Assess(ctx, event, fctx.Config.ChildAges)
		}
	}

	if !assessment.Suitable {
		reason := assessment.Reason
		if reason == "" {
			reason = "not age appropriate"
		}
		return CheckResult{Name: CheckAge, Passed: false, Reason: reason}, ""
	}

	return CheckResult{Name: CheckAge, Passed: true, Reason: assessment.Reason}, assessment.ExtractedTime
}

// checkTimeRange rejects invalid, implausible, past, too-soon, and
// too-distant dates.
func (e *Engine) checkTimeRange(start time.Time, event *models.CanonicalEvent, fctx Context) CheckResult {
	now := fctx.Now

	if start.IsZero() {
		return CheckResult{Name: CheckTime, Passed: false, Reason: "invalid or missing date"}
	}

	if start.Year() < now.Year() || start.Year() > now.Year()+2 {
		return CheckResult{Name: CheckTime, Passed: false, Reason: fmt.Sprintf("implausible event year %d", start.Year())}
	}

	if start.Before(now.Add(-boundaryBuffer)) {
		return CheckResult{Name: CheckTime, Passed: false, Reason: "event already past"}
	}

	if fctx.Config.MinLeadTime > 0 && start.Before(now.Add(fctx.Config.MinLeadTime-boundaryBuffer)) {
		return CheckResult{Name: CheckTime, Passed: false, Reason: "too soon: inside minimum lead time"}
	}

	if fctx.Config.MaxLeadTime > 0 && start.After(now.Add(fctx.Config.MaxLeadTime+boundaryBuffer)) {
		return CheckResult{Name: CheckTime, Passed: false, Reason: "too far out: beyond maximum lead time"}
	}

	return CheckResult{Name: CheckTime, Passed: true, Reason: "within booking window"}
}

// checkSchedule enforces the weekday/weekend earliest-start floors and
// flags (never rejects) events overlapping the quiet/nap window.
func (e *Engine) checkSchedule(start time.Time, cfg models.HouseholdConfig) (CheckResult, bool) {
	nap := cfg.InNapWindow(start)

	floor := cfg.WeekdayEarliestStart
	label := "weekday"
	if models.IsWeekend(start) {
		floor = cfg.WeekendEarliestStart
		label = "weekend"
	}

	if models.MinuteOfDay(start) < floor {
		return CheckResult{
			Name:   CheckSchedule,
			Passed: false,
			Reason: fmt.Sprintf("starts too early for a %s (%02d:%02d)", label, start.Hour(), start.Minute()),
		}, nap
	}

	reason := "fits household schedule"
	if nap {
		reason = "fits household schedule (overlaps nap window)"
	}
	return CheckResult{Name: CheckSchedule, Passed: true, Reason: reason}, nap
}

// checkBudget rejects events above the configured ceiling. Free events
// always pass.
func (e *Engine) checkBudget(event *models.CanonicalEvent, cfg models.HouseholdConfig) CheckResult {
	if event.Cost == 0 {
		return CheckResult{Name: CheckBudget, Passed: true, Reason: "free event"}
	}
	if event.Cost > cfg.BudgetCeiling {
		return CheckResult{
			Name:   CheckBudget,
			Passed: false,
			Reason: fmt.Sprintf("too expensive: $%.2f exceeds budget ceiling $%.2f", event.Cost, cfg.BudgetCeiling),
		}
	}
	return CheckResult{Name: CheckBudget, Passed: true, Reason: "within budget"}
}

// checkCapacity rejects only when capacity is known and explicitly
// zero; unknown capacity passes.
func (e *Engine) checkCapacity(event *models.CanonicalEvent) CheckResult {
	if event.Capacity == nil {
		return CheckResult{Name: CheckCapacity, Passed: true, Reason: "capacity unknown"}
	}
	if event.Capacity.Available == 0 {
		return CheckResult{Name: CheckCapacity, Passed: false, Reason: "sold out"}
	}
	return CheckResult{Name: CheckCapacity, Passed: true, Reason: "spots available"}
}

// checkNovelty rejects events the household already attended, by
// identity rather than venue. Lookup failures pass rather than blocking
// the pipeline.
func (e *Engine) checkNovelty(ctx context.Context, event *models.CanonicalEvent) CheckResult {
	attended, err := e.attendance.HasAttended(ctx, event.Fingerprint)
	if err != nil {
		e.logger.Warn("attendance lookup failed, passing novelty check",
			"fingerprint", event.Fingerprint,
			"error", err,
		)
		return CheckResult{Name: CheckNovelty, Passed: true, Reason: "attendance unknown"}
	}
	if attended {
		return CheckResult{Name: CheckNovelty, Passed: false, Reason: "already attended this event"}
	}
	return CheckResult{Name: CheckNovelty, Passed: true, Reason: "not yet attended"}
}

// outdoorKeywords mark an event as weather-sensitive.
var outdoorKeywords = []string{
	"outdoor", "park", "trail", "beach", "garden", "farm", "zoo",
	"playground", "picnic", "nature", "hike", "splash pad",
}

// IsOutdoorEvent classifies an event as outdoor from its text.
func IsOutdoorEvent(event *models.CanonicalEvent) bool {
	text := strings.ToLower(event.Title + " " + event.Description + " " + event.Location.Address)
	for _, kw := range outdoorKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// checkWeather only applies to outdoor events. A forecast-fetch failure
// defaults to pass: weather is advisory, not safety-critical.
func (e *Engine) checkWeather(ctx context.Context, event *models.CanonicalEvent, start time.Time) CheckResult {
	if !IsOutdoorEvent(event) {
		return CheckResult{Name: CheckWeather, Passed: true, Reason: "indoor event"}
	}

	forecast, err := e.forecaster.Forecast(ctx, start, event.Location)
	if err != nil {
		e.logger.Warn("forecast unavailable, passing weather check",
			"fingerprint", event.Fingerprint,
			"error", err,
		)
		return CheckResult{Name: CheckWeather, Passed: true, Reason: "forecast unavailable"}
	}

	if !forecast.Suitable() {
		return CheckResult{
			Name:   CheckWeather,
			Passed: false,
			Reason: fmt.Sprintf("poor weather forecast: %s, %.0f%% precipitation", forecast.Condition, forecast.PrecipitationChance),
		}
	}

	return CheckResult{Name: CheckWeather, Passed: true, Reason: "outdoor friendly forecast"}
}

type calendarOutcome struct {
	check   CheckResult
	warning string
}

// checkCalendar distinguishes a hard conflict (exclude) from a soft
// conflict (warn but keep). Collaborator failure passes.
func (e *Engine) checkCalendar(ctx context.Context, start time.Time) calendarOutcome {
	result, err := e.calendars.CheckConflicts(ctx, start)
	if err != nil {
		e.logger.Warn("calendar check failed, passing", "error", err)
		return calendarOutcome{check: CheckResult{Name: CheckCalendar, Passed: true, Reason: "calendar unavailable"}}
	}

	if result.HasConflict {
		return calendarOutcome{check: CheckResult{Name: CheckCalendar, Passed: false, Reason: "calendar conflict"}}
	}

	outcome := calendarOutcome{check: CheckResult{Name: CheckCalendar, Passed: true, Reason: "no calendar conflict"}}
	if result.HasWarning {
		outcome.warning = "soft calendar conflict on secondary calendar"
	}
	return outcome
}
