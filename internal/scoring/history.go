package scoring

import (
	"context"

	"github.com/hearthplan/hearthplan/internal/models"
)

// FeedbackStats aggregates historical household reactions to events at
// one venue.
type FeedbackStats struct {
	Approved int
	Rejected int
	Attended int
}

// FeedbackSource loads interaction history for an event's venue.
type FeedbackSource interface {
	StatsForVenue(ctx context.Context, venueToken string) (FeedbackStats, error)
}

// VenueKeyer resolves an event to its history key. Injected so the
// scorer does not depend on the merge package's fingerprint internals.
type VenueKeyer func(event *models.CanonicalEvent) string

// FeedbackScorer derives a base preference score from past
// approve/reject/attend feedback. Small samples are pulled toward the
// neutral score so one bad afternoon does not blacklist a venue.
type FeedbackScorer struct {
	source FeedbackSource
	keyer  VenueKeyer
}

// NewFeedbackScorer creates a history-backed preference model.
func NewFeedbackScorer(source FeedbackSource, keyer VenueKeyer) *FeedbackScorer {
	return &FeedbackScorer{source: source, keyer: keyer}
}

// PreferenceScore returns a 0-100 base score for the event's venue.
func (f *FeedbackScorer) PreferenceScore(ctx context.Context, event *models.CanonicalEvent) (float64, error) {
	stats, err := f.source.StatsForVenue(ctx, f.keyer(event))
	if err != nil {
		return 0, err
	}

	total := stats.Approved + stats.Rejected + stats.Attended
	if total == 0 {
		return NeutralScore, nil
	}

	// Attended counts stronger than approved; rejected counts zero.
	raw := MaxScore * (float64(stats.Attended) + 0.7*float64(stats.Approved)) / float64(total)

	// Shrink toward neutral for small samples.
	weight := float64(total) / float64(total+3)
	return NeutralScore + weight*(raw-NeutralScore), nil
}
