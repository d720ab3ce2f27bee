// Package scoring assigns a composite desirability score and total
// ordering to events that passed filtering.
package scoring

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

const (
	// MaxScore bounds the composite preference score.
	MaxScore = 100.0

	// NapPenalty demotes (never removes) events overlapping the
	// quiet/nap window. Floored at zero.
	NapPenalty = 20.0

	// NeutralScore substitutes for the preference model when it is
	// unavailable; the nap penalty still applies, so nap-window events
	// degrade to a distinct lower neutral value.
	NeutralScore = 50.0

	urgencyBonus     = 10.0
	socialProofBonus = 5.0

	// urgentCapacityRatio marks an event urgent when this fraction of
	// spots or fewer remains.
	urgentCapacityRatio = 0.20

	// urgentOpensWindow marks an event urgent when its registration
	// window opens this soon.
	urgentOpensWindow = 24 * time.Hour
)

// OrderMode selects the ranking strategy.
type OrderMode string

const (
	// OrderDefault sorts by score descending, ties broken by date.
	OrderDefault OrderMode = "default"

	// OrderUrgentPriority sorts urgent events before all others
	// regardless of score; urgent ties break by date.
	OrderUrgentPriority OrderMode = "urgent_priority"
)

// HistoryProvider is the learned preference model over historical
// approve/reject/attend feedback.
type HistoryProvider interface {
	PreferenceScore(ctx context.Context, event *models.CanonicalEvent) (float64, error)
}

// Scorer annotates events with a preference score and orders them.
type Scorer struct {
	history HistoryProvider
	logger  *slog.Logger
	now     func() time.Time
}

// NewScorer creates a scorer backed by the given preference model. A
// nil provider always scores neutral.
func NewScorer(history HistoryProvider, logger *slog.Logger) *Scorer {
	return &Scorer{
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Score annotates each event with its composite preference score and
// returns the slice ordered by the given mode. Identical inputs always
// produce identical ordering.
func (s *Scorer) Score(ctx context.Context, events []*models.CanonicalEvent, mode OrderMode) []*models.CanonicalEvent {
	for _, event := range events {
		s.scoreOne(ctx, event)
	}
	s.Rank(events, mode)
	return events
}

func (s *Scorer) scoreOne(ctx context.Context, event *models.CanonicalEvent) {
	breakdown := models.ScoreBreakdown{Base: NeutralScore}

	if s.history != nil {
		base, err := s.history.PreferenceScore(ctx, event)
		if err != nil {
			s.logger.Warn("preference model unavailable, scoring neutral",
				"fingerprint", event.Fingerprint,
				"error", err,
			)
		} else {
			breakdown.Base = clamp(base, 0, MaxScore)
			breakdown.ModelUsed = true
		}
	}

	if s.IsUrgent(event) {
		breakdown.Urgency = urgencyBonus
	}
	if len(event.Sources) >= 3 {
		// Corroboration across several independent scrapers.
		breakdown.SocialProof = socialProofBonus
	}

	score := clamp(breakdown.Base+breakdown.Urgency+breakdown.SocialProof, 0, MaxScore)

	if event.IsDuringNapTime {
		breakdown.NapPenalty = NapPenalty
		score = clamp(score-NapPenalty, 0, MaxScore)
	}

	event.PreferenceScore = score
	event.ScoreBreakdown = breakdown
}

// IsUrgent reports whether an event's registration window opens within
// 24 hours or its remaining capacity ratio is at or below 20%.
func (s *Scorer) IsUrgent(event *models.CanonicalEvent) bool {
	now := s.now()

	if event.RegistrationOpensAt != nil {
		opensIn := event.RegistrationOpensAt.Sub(now)
		if opensIn >= 0 && opensIn <= urgentOpensWindow {
			return true
		}
	}

	if event.Capacity != nil && event.Capacity.Total > 0 && event.Capacity.Ratio() <= urgentCapacityRatio {
		return true
	}

	return false
}

// Rank orders events in place according to the mode.
func (s *Scorer) Rank(events []*models.CanonicalEvent, mode OrderMode) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]

		if mode == OrderUrgentPriority {
			au, bu := s.IsUrgent(a), s.IsUrgent(b)
			if au != bu {
				return au
			}
			if au && bu {
				if !a.StartTime.Equal(b.StartTime) {
					return a.StartTime.Before(b.StartTime)
				}
				return a.Fingerprint < b.Fingerprint
			}
		}

		if a.PreferenceScore != b.PreferenceScore {
			return a.PreferenceScore > b.PreferenceScore
		}
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.Fingerprint < b.Fingerprint
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
