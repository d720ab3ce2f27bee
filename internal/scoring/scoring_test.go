package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedHistory struct {
	score float64
	err   error
}

func (f *fixedHistory) PreferenceScore(context.Context, *models.CanonicalEvent) (float64, error) {
	return f.score, f.err
}

var scoreNow = time.Date(2026, time.September, 2, 9, 0, 0, 0, time.UTC)

func newTestScorer(history HistoryProvider) *Scorer {
	s := NewScorer(history, testLogger())
	s.now = func() time.Time { return scoreNow }
	return s
}

func event(fp string, start time.Time) *models.CanonicalEvent {
	return &models.CanonicalEvent{Fingerprint: fp, StartTime: start}
}

func TestScore_NeutralWithoutHistory(t *testing.T) {
	scorer := newTestScorer(nil)
	e := event("a", scoreNow.Add(48*time.Hour))

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.PreferenceScore != NeutralScore {
		t.Errorf("score = %v, want neutral %v", e.PreferenceScore, NeutralScore)
	}
	if e.ScoreBreakdown.ModelUsed {
		t.Error("no model was consulted")
	}
}

func TestScore_HistoryFailureDegradesToNeutral(t *testing.T) {
	scorer := newTestScorer(&fixedHistory{err: errors.New("db down")})
	e := event("a", scoreNow.Add(48*time.Hour))

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.PreferenceScore != NeutralScore {
		t.Errorf("score = %v, want neutral %v", e.PreferenceScore, NeutralScore)
	}
}

func TestScore_NapPenaltyProducesDistinctNeutral(t *testing.T) {
	scorer := newTestScorer(&fixedHistory{score: 70})

	e := event("a", scoreNow.Add(48*time.Hour))
	e.IsDuringNapTime = true

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.PreferenceScore != 50 {
		t.Errorf("score = %v, want 70 - %v nap penalty = 50", e.PreferenceScore, NapPenalty)
	}
	if e.ScoreBreakdown.NapPenalty != NapPenalty {
		t.Errorf("breakdown nap penalty = %v, want %v", e.ScoreBreakdown.NapPenalty, NapPenalty)
	}
}

func TestScore_NapPenaltyFloorsAtZero(t *testing.T) {
	scorer := newTestScorer(&fixedHistory{score: 5})

	e := event("a", scoreNow.Add(48*time.Hour))
	e.IsDuringNapTime = true

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.PreferenceScore != 0 {
		t.Errorf("score = %v, want floor at 0", e.PreferenceScore)
	}
}

func TestScore_BonusesClampAtMax(t *testing.T) {
	scorer := newTestScorer(&fixedHistory{score: 98})

	opens := scoreNow.Add(6 * time.Hour)
	e := event("a", scoreNow.Add(48*time.Hour))
	e.RegistrationOpensAt = &opens
	e.Sources = []string{"library", "rec-center", "community-board"}

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.PreferenceScore != MaxScore {
		t.Errorf("score = %v, want clamped %v", e.PreferenceScore, MaxScore)
	}
	if e.ScoreBreakdown.Urgency != urgencyBonus {
		t.Errorf("urgency = %v, want %v", e.ScoreBreakdown.Urgency, urgencyBonus)
	}
	if e.ScoreBreakdown.SocialProof != socialProofBonus {
		t.Errorf("social proof = %v, want %v", e.ScoreBreakdown.SocialProof, socialProofBonus)
	}
}

func TestScore_TwoSourcesEarnNoSocialProof(t *testing.T) {
	scorer := newTestScorer(nil)

	e := event("a", scoreNow.Add(48*time.Hour))
	e.Sources = []string{"library", "rec-center"}

	scorer.Score(context.Background(), []*models.CanonicalEvent{e}, OrderDefault)

	if e.ScoreBreakdown.SocialProof != 0 {
		t.Errorf("social proof = %v, want 0 below three sources", e.ScoreBreakdown.SocialProof)
	}
}

func TestIsUrgent(t *testing.T) {
	scorer := newTestScorer(nil)
	soon := scoreNow.Add(12 * time.Hour)
	later := scoreNow.Add(72 * time.Hour)
	past := scoreNow.Add(-time.Hour)

	cases := []struct {
		name  string
		event *models.CanonicalEvent
		want  bool
	}{
		{"opens within 24h", &models.CanonicalEvent{RegistrationOpensAt: &soon}, true},
		{"opens in three days", &models.CanonicalEvent{RegistrationOpensAt: &later}, false},
		{"already open", &models.CanonicalEvent{RegistrationOpensAt: &past}, false},
		{"capacity at 20%", &models.CanonicalEvent{Capacity: &models.Capacity{Available: 4, Total: 20}}, true},
		{"capacity above 20%", &models.CanonicalEvent{Capacity: &models.Capacity{Available: 10, Total: 20}}, false},
		{"no signals", &models.CanonicalEvent{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scorer.IsUrgent(tc.event); got != tc.want {
				t.Errorf("IsUrgent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRank_DefaultOrdering(t *testing.T) {
	scorer := newTestScorer(nil)
	early := scoreNow.Add(24 * time.Hour)
	late := scoreNow.Add(96 * time.Hour)

	a := event("aaa", late)
	a.PreferenceScore = 80
	b := event("bbb", early)
	b.PreferenceScore = 60
	c := event("ccc", late)
	c.PreferenceScore = 60
	d := event("ddd", early)
	d.PreferenceScore = 60

	events := []*models.CanonicalEvent{c, d, a, b}
	scorer.Rank(events, OrderDefault)

	want := []string{"aaa", "bbb", "ddd", "ccc"}
	for i, fp := range want {
		if events[i].Fingerprint != fp {
			t.Fatalf("position %d = %s, want %s", i, events[i].Fingerprint, fp)
		}
	}
}

func TestRank_UrgentPriorityOverridesScore(t *testing.T) {
	scorer := newTestScorer(nil)
	opens := scoreNow.Add(6 * time.Hour)

	urgent := event("urgent", scoreNow.Add(96*time.Hour))
	urgent.RegistrationOpensAt = &opens
	urgent.PreferenceScore = 30

	strong := event("strong", scoreNow.Add(24*time.Hour))
	strong.PreferenceScore = 95

	events := []*models.CanonicalEvent{strong, urgent}
	scorer.Rank(events, OrderUrgentPriority)

	if events[0].Fingerprint != "urgent" {
		t.Errorf("urgent event must rank first, got %s", events[0].Fingerprint)
	}
}

func TestRank_Deterministic(t *testing.T) {
	scorer := newTestScorer(nil)
	start := scoreNow.Add(48 * time.Hour)

	build := func() []*models.CanonicalEvent {
		a := event("aaa", start)
		b := event("bbb", start)
		c := event("ccc", start)
		a.PreferenceScore, b.PreferenceScore, c.PreferenceScore = 50, 50, 50
		return []*models.CanonicalEvent{b, c, a}
	}

	first := build()
	scorer.Rank(first, OrderDefault)
	second := build()
	scorer.Rank(second, OrderDefault)

	for i := range first {
		if first[i].Fingerprint != second[i].Fingerprint {
			t.Fatalf("orders diverge at %d: %s vs %s", i, first[i].Fingerprint, second[i].Fingerprint)
		}
	}
	if first[0].Fingerprint != "aaa" {
		t.Errorf("equal scores and dates break by fingerprint, got %s first", first[0].Fingerprint)
	}
}

type fixedFeedback struct {
	stats FeedbackStats
	err   error
}

func (f *fixedFeedback) StatsForVenue(context.Context, string) (FeedbackStats, error) {
	return f.stats, f.err
}

func venueKeyer(*models.CanonicalEvent) string { return "library" }

func TestFeedbackScorer_NoHistoryScoresNeutral(t *testing.T) {
	scorer := NewFeedbackScorer(&fixedFeedback{}, venueKeyer)

	got, err := scorer.PreferenceScore(context.Background(), &models.CanonicalEvent{})
	if err != nil {
		t.Fatal(err)
	}
	if got != NeutralScore {
		t.Errorf("score = %v, want %v", got, NeutralScore)
	}
}

func TestFeedbackScorer_SmallSamplesShrinkTowardNeutral(t *testing.T) {
	// One rejection: raw 0, weight 1/4, so 50 + 0.25*(0-50) = 37.5.
	one := NewFeedbackScorer(&fixedFeedback{stats: FeedbackStats{Rejected: 1}}, venueKeyer)
	got, err := one.PreferenceScore(context.Background(), &models.CanonicalEvent{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-37.5) > 1e-9 {
		t.Errorf("one rejection = %v, want 37.5", got)
	}

	// Nine rejections: weight 9/12, so 50 + 0.75*(0-50) = 12.5.
	many := NewFeedbackScorer(&fixedFeedback{stats: FeedbackStats{Rejected: 9}}, venueKeyer)
	got, err = many.PreferenceScore(context.Background(), &models.CanonicalEvent{})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-12.5) > 1e-9 {
		t.Errorf("nine rejections = %v, want 12.5", got)
	}
}

func TestFeedbackScorer_AttendedOutweighsApproved(t *testing.T) {
	attended := NewFeedbackScorer(&fixedFeedback{stats: FeedbackStats{Attended: 5}}, venueKeyer)
	approved := NewFeedbackScorer(&fixedFeedback{stats: FeedbackStats{Approved: 5}}, venueKeyer)

	a, err := attended.PreferenceScore(context.Background(), &models.CanonicalEvent{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := approved.PreferenceScore(context.Background(), &models.CanonicalEvent{})
	if err != nil {
		t.Fatal(err)
	}
	if a <= b {
		t.Errorf("attended score %v should exceed approved score %v", a, b)
	}
}

func TestFeedbackScorer_SourceFailurePropagates(t *testing.T) {
	scorer := NewFeedbackScorer(&fixedFeedback{err: errors.New("db down")}, venueKeyer)

	if _, err := scorer.PreferenceScore(context.Background(), &models.CanonicalEvent{}); err == nil {
		t.Error("want the source error surfaced")
	}
}
