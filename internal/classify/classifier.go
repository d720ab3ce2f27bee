// Package classify wraps the LLM collaborator that judges age
// appropriateness and extracts a more precise time-of-day from an
// event's free text. Absence or failure falls back to rule-based
// age-range matching with no time extraction.
package classify

import (
	"context"

	"github.com/hearthplan/hearthplan/internal/models"
)

// Assessment is the classifier's verdict for one event.
type Assessment struct {
	Suitable      bool   `json:"suitable"`
	Reason        string `json:"reason"`
	ExtractedTime string `json:"extracted_time,omitempty"` // "15:04" or empty
}

// Classifier assesses events against the household children's ages.
type Classifier interface {
	// Assess judges a single event.
	Assess(ctx context.Context, event *models.CanonicalEvent, childAges []int) (Assessment, error)

	// AssessBatch judges several events in one round trip.
	AssessBatch(ctx context.Context, events []*models.CanonicalEvent, childAges []int) ([]Assessment, error)
}

// RuleBased is the fallback classifier: it applies the declared age
// range directly and never extracts a time.
type RuleBased struct{}

// NewRuleBased creates the fallback classifier.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// Assess passes when the event declares no age range, or when at least
// one child's current age falls inside it.
func (r *RuleBased) Assess(_ context.Context, event *models.CanonicalEvent, childAges []int) (Assessment, error) {
	if event.AgeRange == nil {
		return Assessment{Suitable: true, Reason: "no age range declared"}, nil
	}
	for _, age := range childAges {
		if event.AgeRange.Contains(age) {
			return Assessment{Suitable: true, Reason: "child age within declared range"}, nil
		}
	}
	return Assessment{Suitable: false, Reason: "no child in declared age range"}, nil
}

// AssessBatch applies Assess to each event.
func (r *RuleBased) AssessBatch(ctx context.Context, events []*models.CanonicalEvent, childAges []int) ([]Assessment, error) {
	assessments := make([]Assessment, len(events))
	for i, event := range events {
		assessment, err := r.Assess(ctx, event, childAges)
		if err != nil {
			return nil, err
		}
		assessments[i] = assessment
	}
	return assessments, nil
}
