package merge

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hearthplan/hearthplan/internal/models"
)

// DefaultFuzzyThreshold is the similarity above which two non-identical
// fingerprints are treated as the same real-world event. Misses below
// the threshold are not errors; the events simply remain separate.
const DefaultFuzzyThreshold = 0.75

// Engine collapses raw candidate records referring to the same
// real-world event into one canonical record.
type Engine struct {
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a merge engine with the given fuzzy threshold.
func NewEngine(threshold float64, logger *slog.Logger) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Engine{
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Result holds the outcome of one merge pass.
type Result struct {
	Canonical []models.CanonicalEvent
	Merges    []models.MergeRecord
	Dropped   int
}

// Merge folds candidates into the existing canonical set. Merges are
// additive: the surviving record keeps the earliest-seen identity, the
// sources set only grows, and field values are enriched, never replaced
// with worse data. Candidates that cannot be fingerprinted are dropped.
func (e *Engine) Merge(candidates []models.CandidateEvent, existing []models.CanonicalEvent) Result {
	result := Result{
		Canonical: make([]models.CanonicalEvent, len(existing)),
	}
	copy(result.Canonical, existing)

	byFingerprint := make(map[string]int, len(result.Canonical))
	for i, ev := range result.Canonical {
		byFingerprint[ev.Fingerprint] = i
	}

	for _, candidate := range candidates {
		fp, err := Fingerprint(candidate)
		if err != nil {
			result.Dropped++
			e.logger.Warn("dropping unfingerprintable candidate",
				"source", candidate.SourceName,
				"title", candidate.Title,
				"error", err,
			)
			continue
		}

		// Exact merge: identical fingerprint.
		if idx, ok := byFingerprint[fp]; ok {
			primary := &result.Canonical[idx]
			e.absorb(primary, candidate)
			result.Merges = append(result.Merges, e.record(primary.Fingerprint, fp, candidate, 1.0, models.MergeTypeExact))
			continue
		}

		incoming := e.fromCandidate(candidate, fp)

		// Fuzzy merge: best similarity above threshold.
		bestIdx, bestScore := -1, 0.0
		for i := range result.Canonical {
			score := Similarity(&result.Canonical[i], &incoming)
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}

		if bestIdx >= 0 && bestScore >= e.threshold {
			primary := &result.Canonical[bestIdx]
			e.absorb(primary, candidate)
			result.Merges = append(result.Merges, e.record(primary.Fingerprint, fp, candidate, bestScore, models.MergeTypeFuzzy))
			e.logger.Debug("fuzzy merge",
				"primary", primary.Fingerprint,
				"merged", fp,
				"similarity", bestScore,
			)
			continue
		}

		result.Canonical = append(result.Canonical, incoming)
		byFingerprint[fp] = len(result.Canonical) - 1
	}

	return result
}

// fromCandidate creates a fresh canonical event on first sighting of a
// fingerprint.
func (e *Engine) fromCandidate(c models.CandidateEvent, fingerprint string) models.CanonicalEvent {
	now := e.now()
	return models.CanonicalEvent{
		Fingerprint:         fingerprint,
		Title:               c.Title,
		StartTime:           c.StartTime,
		AllDay:              c.AllDay,
		Location:            c.Location,
		AgeRange:            c.AgeRange,
		Cost:                c.Cost,
		RegistrationURL:     c.RegistrationURL,
		RegistrationOpensAt: c.RegistrationOpensAt,
		Capacity:            c.Capacity,
		Description:         c.Description,
		RawContent:          c.RawContent,
		Status:              models.EventStatusDiscovered,
		Sources:             []string{c.SourceName},
		MergeCount:          1,
		LastMergedAt:        now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// absorb enriches the primary event with a merged candidate's data.
func (e *Engine) absorb(primary *models.CanonicalEvent, c models.CandidateEvent) {
	if !primary.HasSource(c.SourceName) {
		primary.Sources = append(primary.Sources, c.SourceName)
	}
	primary.MergeCount++
	primary.LastMergedAt = e.now()
	primary.UpdatedAt = primary.LastMergedAt

	// Prefer an explicit time-of-day over an all-day placeholder.
	if primary.AllDay && !c.AllDay {
		primary.StartTime = c.StartTime
		primary.AllDay = false
	}

	if len(c.Description) > len(primary.Description) {
		primary.Description = c.Description
	}
	if len(c.RawContent) > len(primary.RawContent) {
		primary.RawContent = c.RawContent
	}

	if primary.AgeRange == nil {
		primary.AgeRange = c.AgeRange
	}
	if primary.RegistrationOpensAt == nil {
		primary.RegistrationOpensAt = c.RegistrationOpensAt
	}
	if c.Capacity != nil {
		primary.Capacity = c.Capacity
	}
	if !primary.Location.HasCoordinates() && c.Location.HasCoordinates() {
		primary.Location.Latitude = c.Location.Latitude
		primary.Location.Longitude = c.Location.Longitude
	}
	if primary.Location.Address == "" {
		primary.Location.Address = c.Location.Address
	}

	// The higher declared cost wins: the payment guard must see the
	// worst case when sources disagree.
	if c.Cost > primary.Cost {
		primary.Cost = c.Cost
	}

	if c.RegistrationURL != "" {
		if primary.RegistrationURL == "" {
			primary.RegistrationURL = c.RegistrationURL
		} else if !primary.HasAlternateURL(c.RegistrationURL) {
			primary.AlternateURLs = append(primary.AlternateURLs, c.RegistrationURL)
		}
	}
}

func (e *Engine) record(primaryFP, mergedFP string, c models.CandidateEvent, similarity float64, mergeType models.MergeType) models.MergeRecord {
	return models.MergeRecord{
		ID:                 uuid.NewString(),
		PrimaryFingerprint: primaryFP,
		MergedFingerprint:  mergedFP,
		MergedSnapshot:     c,
		Similarity:         similarity,
		MergeType:          mergeType,
		CreatedAt:          e.now(),
	}
}
