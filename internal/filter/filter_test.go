package filter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hearthplan/hearthplan/internal/calendar"
	"github.com/hearthplan/hearthplan/internal/classify"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/weather"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClassifier struct {
	assessment  classify.Assessment
	err         error
	assessCalls int
}

func (f *fakeClassifier) Assess(context.Context, *models.CanonicalEvent, []int) (classify.Assessment, error) {
	f.assessCalls++
	return f.assessment, f.err
}

func (f *fakeClassifier) AssessBatch(_ context.Context, events []*models.CanonicalEvent, _ []int) ([]classify.Assessment, error) {
	out := make([]classify.Assessment, len(events))
	for i := range out {
		out[i] = f.assessment
	}
	return out, f.err
}

type fakeForecaster struct {
	forecast *weather.Forecast
	err      error
}

func (f *fakeForecaster) Forecast(context.Context, time.Time, models.Location) (*weather.Forecast, error) {
	return f.forecast, f.err
}

type fakeCalendar struct {
	result calendar.ConflictResult
	err    error
}

func (f *fakeCalendar) CheckConflicts(context.Context, time.Time) (calendar.ConflictResult, error) {
	return f.result, f.err
}

type fakeAttendance struct {
	attended bool
	err      error
}

func (f *fakeAttendance) HasAttended(context.Context, string) (bool, error) {
	return f.attended, f.err
}

func suitable() *fakeClassifier {
	return &fakeClassifier{assessment: classify.Assessment{Suitable: true, Reason: "child age within declared range"}}
}

func boolPtr(b bool) *bool { return &b }

func newTestEngine(c classify.Classifier, w weather.Provider, cal calendar.Checker, a AttendanceChecker) *Engine {
	if c == nil {
		c = suitable()
	}
	if w == nil {
		w = &fakeForecaster{forecast: &weather.Forecast{IsOutdoorFriendly: boolPtr(true)}}
	}
	if a == nil {
		a = &fakeAttendance{}
	}
	return NewEngine(c, w, cal, a, testLogger())
}

// testNow is a Wednesday.
var testNow = time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)

func testContext() Context {
	return Context{
		Config: models.HouseholdConfig{
			ChildAges:            []int{4},
			BudgetCeiling:        25,
			WeekdayEarliestStart: 16 * 60,
			WeekendEarliestStart: 9 * 60,
			NapStart:             12 * 60,
			NapEnd:               14 * 60,
			MinLeadTime:          24 * time.Hour,
			MaxLeadTime:          30 * 24 * time.Hour,
		},
		Now: testNow,
	}
}

// passingEvent starts Saturday morning, indoors, free, well inside the
// booking window.
func passingEvent() *models.CanonicalEvent {
	return &models.CanonicalEvent{
		Fingerprint: "abc123",
		Title:       "Storytime for Preschoolers",
		StartTime:   time.Date(2026, time.September, 5, 10, 0, 0, 0, time.UTC),
		Location:    models.Location{Address: "Main Street Library"},
		Cost:        0,
	}
}

func TestFilter_PassingEventRecordsSentinel(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)

	result := engine.Filter(context.Background(), passingEvent(), testContext())

	if !result.Passed {
		t.Fatalf("expected pass, got reasons %v", result.Reasons)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != PassedSentinel {
		t.Errorf("reasons = %v, want [%q]", result.Reasons, PassedSentinel)
	}
	if len(result.Checks) != 7 {
		t.Errorf("checks = %d, want 7 without a calendar stage", len(result.Checks))
	}
	for _, check := range result.Checks {
		if !check.Passed {
			t.Errorf("check %s failed: %s", check.Name, check.Reason)
		}
	}
}

func TestFilter_CollectsEveryFailureReason(t *testing.T) {
	engine := newTestEngine(
		&fakeClassifier{assessment: classify.Assessment{Suitable: false, Reason: "no child in declared age range"}},
		nil, nil,
		&fakeAttendance{attended: true},
	)

	event := passingEvent()
	event.Cost = 80
	event.Capacity = &models.Capacity{Available: 0, Total: 30}

	result := engine.Filter(context.Background(), event, testContext())

	if result.Passed {
		t.Fatal("expected rejection")
	}
	want := []string{
		"no child in declared age range",
		"too expensive: $80.00 exceeds budget ceiling $25.00",
		"sold out",
		"already attended this event",
	}
	for _, reason := range want {
		if !containsReason(result.Reasons, reason) {
			t.Errorf("missing reason %q in %v", reason, result.Reasons)
		}
	}
	if len(result.Reasons) != len(want) {
		t.Errorf("reasons = %v, want exactly %d", result.Reasons, len(want))
	}
}

func containsReason(reasons []string, want string) bool {
	for _, r := range reasons {
		if r == want {
			return true
		}
	}
	return false
}

func TestFilter_ClassifierFailureFallsBackToDeclaredRange(t *testing.T) {
	engine := newTestEngine(
		&fakeClassifier{err: errors.New("llm timeout")},
		nil, nil, nil,
	)

	event := passingEvent()
	event.AgeRange = &models.AgeRange{MinYears: 3, MaxYears: 5}

	result := engine.Filter(context.Background(), event, testContext())
	if !result.Passed {
		t.Errorf("declared range covers the child, want pass, got %v", result.Reasons)
	}

	event.AgeRange = &models.AgeRange{MinYears: 10, MaxYears: 14}
	result = engine.Filter(context.Background(), event, testContext())
	if result.Passed {
		t.Error("declared range excludes the child, want rejection")
	}
}

func TestFilter_TimeRange(t *testing.T) {
	fctx := testContext()
	engine := newTestEngine(nil, nil, nil, nil)

	cases := []struct {
		name      string
		start     time.Time
		passed    bool
		reasonHas string
	}{
		{"missing date", time.Time{}, false, "invalid or missing date"},
		{"implausible year", time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC), false, "implausible event year"},
		{"already past", testNow.Add(-3 * time.Hour), false, "event already past"},
		{"inside min lead time", testNow.Add(4 * time.Hour), false, "too soon"},
		{"just inside buffer at min lead", testNow.Add(23*time.Hour + 30*time.Minute), true, ""},
		{"beyond max lead time", testNow.Add(45 * 24 * time.Hour), false, "too far out"},
		{"well inside window", testNow.Add(72 * time.Hour).Add(9 * time.Hour), true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := passingEvent()
			event.StartTime = tc.start
			result := engine.Filter(context.Background(), event, fctx)

			check := findCheck(t, result, CheckTime)
			if check.Passed != tc.passed {
				t.Fatalf("time check passed = %v, want %v (reason %q)", check.Passed, tc.passed, check.Reason)
			}
			if tc.reasonHas != "" && !strings.Contains(check.Reason, tc.reasonHas) {
				t.Errorf("reason = %q, want substring %q", check.Reason, tc.reasonHas)
			}
		})
	}
}

func findCheck(t *testing.T, result Result, name string) CheckResult {
	t.Helper()
	for _, check := range result.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("no %s check in %v", name, result.Checks)
	return CheckResult{}
}

func TestFilter_ScheduleFloors(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)
	fctx := testContext()

	// Friday 15:00, an hour before the 16:00 weekday floor.
	event := passingEvent()
	event.StartTime = time.Date(2026, time.September, 4, 15, 0, 0, 0, time.UTC)
	result := engine.Filter(context.Background(), event, fctx)
	check := findCheck(t, result, CheckSchedule)
	if check.Passed {
		t.Error("weekday 15:00 should fail the 16:00 floor")
	}
	if !strings.Contains(check.Reason, "weekday") {
		t.Errorf("reason = %q, want weekday label", check.Reason)
	}

	// Saturday 10:00 clears the 09:00 weekend floor.
	event.StartTime = time.Date(2026, time.September, 5, 10, 0, 0, 0, time.UTC)
	result = engine.Filter(context.Background(), event, fctx)
	if check := findCheck(t, result, CheckSchedule); !check.Passed {
		t.Errorf("weekend 10:00 should pass: %s", check.Reason)
	}
}

func TestFilter_NapOverlapFlagsWithoutRejecting(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)

	// Saturday 12:30, inside the 12:00-14:00 nap window.
	event := passingEvent()
	event.StartTime = time.Date(2026, time.September, 5, 12, 30, 0, 0, time.UTC)

	result := engine.Filter(context.Background(), event, testContext())
	if !result.Passed {
		t.Fatalf("nap overlap must not reject: %v", result.Reasons)
	}
	if !result.IsDuringNapTime {
		t.Error("expected IsDuringNapTime flag")
	}
}

func TestFilter_BudgetFreeAlwaysPasses(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)
	fctx := testContext()
	fctx.Config.BudgetCeiling = 0

	event := passingEvent()
	event.Cost = 0

	result := engine.Filter(context.Background(), event, fctx)
	if check := findCheck(t, result, CheckBudget); !check.Passed {
		t.Errorf("free event must pass a zero ceiling: %s", check.Reason)
	}

	event.Cost = 5
	result = engine.Filter(context.Background(), event, fctx)
	if check := findCheck(t, result, CheckBudget); check.Passed {
		t.Error("paid event must fail a zero ceiling")
	}
}

func TestFilter_CapacityUnknownPasses(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)

	event := passingEvent()
	event.Capacity = nil

	result := engine.Filter(context.Background(), event, testContext())
	if check := findCheck(t, result, CheckCapacity); !check.Passed {
		t.Errorf("unknown capacity must pass: %s", check.Reason)
	}
}

func TestFilter_NoveltyLookupFailurePassesOpen(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, &fakeAttendance{err: errors.New("db down")})

	result := engine.Filter(context.Background(), passingEvent(), testContext())
	if check := findCheck(t, result, CheckNovelty); !check.Passed {
		t.Errorf("attendance lookup failure must pass open: %s", check.Reason)
	}
}

func TestFilter_WeatherOnlyAppliesOutdoors(t *testing.T) {
	badWeather := &fakeForecaster{forecast: &weather.Forecast{
		Condition:           "thunderstorms",
		PrecipitationChance: 90,
		IsOutdoorFriendly:   boolPtr(false),
	}}
	engine := newTestEngine(nil, badWeather, nil, nil)

	// Indoor event ignores the forecast entirely.
	result := engine.Filter(context.Background(), passingEvent(), testContext())
	if check := findCheck(t, result, CheckWeather); !check.Passed {
		t.Errorf("indoor event must skip weather: %s", check.Reason)
	}

	outdoor := passingEvent()
	outdoor.Title = "Nature Walk in the Park"
	result = engine.Filter(context.Background(), outdoor, testContext())
	check := findCheck(t, result, CheckWeather)
	if check.Passed {
		t.Error("outdoor event in a storm must fail")
	}
	if !strings.Contains(check.Reason, "thunderstorms") {
		t.Errorf("reason = %q, want forecast condition", check.Reason)
	}
}

func TestFilter_WeatherProviderVerdictIsAuthoritative(t *testing.T) {
	cases := []struct {
		name     string
		forecast weather.Forecast
		wantPass bool
	}{
		{
			// The provider's no overrides locally acceptable numbers.
			name: "provider says no despite mild numbers",
			forecast: weather.Forecast{
				Condition:           "air quality alert",
				Temperature:         22,
				PrecipitationChance: 5,
				IsOutdoorFriendly:   boolPtr(false),
			},
			wantPass: false,
		},
		{
			// The provider's yes overrides locally bad numbers.
			name: "provider says yes despite cold snap",
			forecast: weather.Forecast{
				Condition:         "clear and cold",
				Temperature:       -2,
				IsOutdoorFriendly: boolPtr(true),
			},
			wantPass: true,
		},
		{
			name: "no verdict falls back to thresholds",
			forecast: weather.Forecast{
				Condition:           "heavy rain",
				Temperature:         18,
				PrecipitationChance: 85,
			},
			wantPass: false,
		},
		{
			name: "no verdict with mild numbers passes",
			forecast: weather.Forecast{
				Condition:           "partly cloudy",
				Temperature:         20,
				PrecipitationChance: 10,
			},
			wantPass: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			forecast := tc.forecast
			engine := newTestEngine(nil, &fakeForecaster{forecast: &forecast}, nil, nil)

			outdoor := passingEvent()
			outdoor.Title = "Nature Walk in the Park"

			result := engine.Filter(context.Background(), outdoor, testContext())
			if check := findCheck(t, result, CheckWeather); check.Passed != tc.wantPass {
				t.Errorf("passed = %v, want %v (%s)", check.Passed, tc.wantPass, check.Reason)
			}
		})
	}
}

func TestFilterAssessed_UsesPrecomputedAssessment(t *testing.T) {
	classifier := &fakeClassifier{assessment: classify.Assessment{Suitable: false, Reason: "no child in declared age range"}}
	engine := newTestEngine(classifier, nil, nil, nil)

	pre := &classify.Assessment{Suitable: true, Reason: "child age within declared range"}
	result := engine.FilterAssessed(context.Background(), passingEvent(), testContext(), pre)

	if check := findCheck(t, result, CheckAge); !check.Passed {
		t.Errorf("pre-computed assessment must decide the age check: %s", check.Reason)
	}
	if classifier.assessCalls != 0 {
		t.Errorf("classifier called %d times, want 0 with a pre-computed assessment", classifier.assessCalls)
	}
}

func TestAssessAll_KeysByFingerprintAndFallsBack(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)
	events := []*models.CanonicalEvent{passingEvent()}

	assessments := engine.AssessAll(context.Background(), events, testContext().Config)
	if len(assessments) != 1 {
		t.Fatalf("assessments = %v, want one entry", assessments)
	}
	if a, ok := assessments["abc123"]; !ok || !a.Suitable {
		t.Errorf("assessment for abc123 = %+v, want suitable", a)
	}

	broken := newTestEngine(&fakeClassifier{err: errors.New("model unavailable")}, nil, nil, nil)
	if got := broken.AssessAll(context.Background(), events, testContext().Config); got != nil {
		t.Errorf("batch failure must return nil for per-event fallback, got %v", got)
	}

	if got := engine.AssessAll(context.Background(), nil, testContext().Config); got != nil {
		t.Errorf("empty set must return nil, got %v", got)
	}
}

func TestFilter_ForecastFailurePassesOpen(t *testing.T) {
	engine := newTestEngine(nil, &fakeForecaster{err: errors.New("api unreachable")}, nil, nil)

	outdoor := passingEvent()
	outdoor.Title = "Playground Meetup"

	result := engine.Filter(context.Background(), outdoor, testContext())
	if check := findCheck(t, result, CheckWeather); !check.Passed {
		t.Errorf("forecast failure must pass open: %s", check.Reason)
	}
}

func TestFilter_CalendarHardConflictExcludes(t *testing.T) {
	engine := newTestEngine(nil, nil, &fakeCalendar{result: calendar.ConflictResult{HasConflict: true}}, nil)

	result := engine.Filter(context.Background(), passingEvent(), testContext())
	if result.Passed {
		t.Fatal("hard calendar conflict must exclude")
	}
	if !containsReason(result.Reasons, "calendar conflict") {
		t.Errorf("reasons = %v, want calendar conflict", result.Reasons)
	}
}

func TestFilter_CalendarSoftConflictWarnsAndKeeps(t *testing.T) {
	engine := newTestEngine(nil, nil, &fakeCalendar{result: calendar.ConflictResult{HasWarning: true}}, nil)

	result := engine.Filter(context.Background(), passingEvent(), testContext())
	if !result.Passed {
		t.Fatalf("soft conflict must not exclude: %v", result.Reasons)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "soft calendar conflict") {
		t.Errorf("warnings = %v, want a soft conflict note", result.Warnings)
	}
}

func TestFilter_CalendarFailurePassesOpen(t *testing.T) {
	engine := newTestEngine(nil, nil, &fakeCalendar{err: errors.New("calendar api down")}, nil)

	result := engine.Filter(context.Background(), passingEvent(), testContext())
	if !result.Passed {
		t.Errorf("calendar failure must pass open: %v", result.Reasons)
	}
}

func TestEffectiveStart_AllDayDefaults(t *testing.T) {
	engine := newTestEngine(nil, nil, nil, nil)
	cfg := testContext().Config

	saturday := time.Date(2026, time.September, 5, 0, 0, 0, 0, time.UTC)
	wednesday := time.Date(2026, time.September, 9, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		day       time.Time
		allDay    bool
		extracted string
		wantHour  int
		wantMin   int
	}{
		{"timed event keeps its start", saturday.Add(13 * time.Hour), false, "", 13, 0},
		{"all-day weekend defaults to 10:00", saturday, true, "", 10, 0},
		{"all-day weekday defaults to 17:30", wednesday, true, "", 17, 30},
		{"extracted time wins", saturday, true, "14:15", 14, 15},
		{"malformed extraction falls back", saturday, true, "2pm", 10, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := &models.CanonicalEvent{StartTime: tc.day, AllDay: tc.allDay}
			got := engine.effectiveStart(event, tc.extracted, cfg)
			if got.Hour() != tc.wantHour || got.Minute() != tc.wantMin {
				t.Errorf("effectiveStart = %02d:%02d, want %02d:%02d",
					got.Hour(), got.Minute(), tc.wantHour, tc.wantMin)
			}
		})
	}
}

func TestIsOutdoorEvent(t *testing.T) {
	cases := []struct {
		title   string
		address string
		want    bool
	}{
		{"Toddler Hike", "", true},
		{"Splash Pad Party", "", true},
		{"Chess Club", "Riverside Park Pavilion", true},
		{"Storytime", "Main Street Library", false},
	}
	for _, tc := range cases {
		event := &models.CanonicalEvent{Title: tc.title, Location: models.Location{Address: tc.address}}
		if got := IsOutdoorEvent(event); got != tc.want {
			t.Errorf("IsOutdoorEvent(%q, %q) = %v, want %v", tc.title, tc.address, got, tc.want)
		}
	}
}
