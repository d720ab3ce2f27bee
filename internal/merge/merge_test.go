package merge

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saturdayMorning() time.Time {
	return time.Date(2026, 9, 5, 10, 0, 0, 0, time.UTC)
}

func candidate(source, title string, start time.Time, address string) models.CandidateEvent {
	return models.CandidateEvent{
		SourceName:  source,
		Title:       title,
		StartTime:   start,
		Location:    models.Location{Address: address},
		RetrievedAt: time.Now(),
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	c := candidate("library", "Storytime at the Library", saturdayMorning(), "Main Street Library")

	fp1, err := Fingerprint(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp2, err := Fingerprint(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprint not deterministic: %s vs %s", fp1, fp2)
	}
}

func TestFingerprint_NormalizesTitleCaseAndPunctuation(t *testing.T) {
	a := candidate("a", "Storytime at the Library!", saturdayMorning(), "Main Street Library")
	b := candidate("b", "storytime   at the library", saturdayMorning(), "Main St Library")

	fpA, _ := Fingerprint(a)
	fpB, _ := Fingerprint(b)

	if fpA != fpB {
		t.Errorf("expected equal fingerprints for normalized-equal candidates")
	}
}

func TestFingerprint_RejectsMissingFields(t *testing.T) {
	tests := []struct {
		name      string
		candidate models.CandidateEvent
	}{
		{"missing title", candidate("a", "", saturdayMorning(), "Library")},
		{"whitespace title", candidate("a", "   ", saturdayMorning(), "Library")},
		{"zero date", candidate("a", "Storytime", time.Time{}, "Library")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Fingerprint(tt.candidate); err != ErrUnfingerprintable {
				t.Errorf("expected ErrUnfingerprintable, got %v", err)
			}
		})
	}
}

func TestVenueToken(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"Main Street Library", "main"},
		{"The Community Center", "community"},
		{"123 Oak Ave", "oak"},
		{"", "unknown"},
		{"42 1st", "unknown"},
	}

	for _, tt := range tests {
		got := VenueToken(models.Location{Address: tt.address})
		if got != tt.want {
			t.Errorf("VenueToken(%q) = %q, want %q", tt.address, got, tt.want)
		}
	}
}

func TestMerge_ExactFingerprintAlwaysMerges(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	a := candidate("library", "Storytime at the Library", saturdayMorning(), "Main Street Library")
	b := candidate("community", "Storytime at the Library", saturdayMorning(), "Main St Library")

	result := engine.Merge([]models.CandidateEvent{a, b}, nil)

	if len(result.Canonical) != 1 {
		t.Fatalf("expected 1 canonical event, got %d", len(result.Canonical))
	}
	if len(result.Merges) != 1 {
		t.Fatalf("expected 1 merge record, got %d", len(result.Merges))
	}
	if result.Merges[0].MergeType != models.MergeTypeExact {
		t.Errorf("expected exact merge, got %s", result.Merges[0].MergeType)
	}
	if result.Merges[0].Similarity != 1.0 {
		t.Errorf("expected similarity 1.0 for exact merge, got %f", result.Merges[0].Similarity)
	}
}

// Two sources list the same storytime with slightly different titles
// and registration URLs. The result must be one canonical event with
// both sources and the second URL kept as an alternate.
func TestMerge_FuzzyMergeAcrossSources(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	a := candidate("library", "Storytime at the Library", saturdayMorning(), "Main Street Library")
	a.RegistrationURL = "https://library.example/register/123"

	b := candidate("community", "Storytime at Library", saturdayMorning(), "Main Street Library")
	b.RegistrationURL = "https://community.example/events/987"

	result := engine.Merge([]models.CandidateEvent{a, b}, nil)

	if len(result.Canonical) != 1 {
		t.Fatalf("expected 1 canonical event, got %d", len(result.Canonical))
	}

	event := result.Canonical[0]
	if len(event.Sources) != 2 {
		t.Errorf("expected 2 sources, got %v", event.Sources)
	}
	if event.RegistrationURL != "https://library.example/register/123" {
		t.Errorf("primary URL replaced: %s", event.RegistrationURL)
	}
	if len(event.AlternateURLs) != 1 || event.AlternateURLs[0] != "https://community.example/events/987" {
		t.Errorf("expected alternate URL preserved, got %v", event.AlternateURLs)
	}
	if len(result.Merges) != 1 || result.Merges[0].MergeType != models.MergeTypeFuzzy {
		t.Fatalf("expected one fuzzy merge record, got %+v", result.Merges)
	}
	if result.Merges[0].Similarity < DefaultFuzzyThreshold {
		t.Errorf("recorded similarity %f below threshold", result.Merges[0].Similarity)
	}
}

func TestMerge_DistinctEventsStaySeparate(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	a := candidate("library", "Toddler Music Class", saturdayMorning(), "Main Street Library")
	b := candidate("parks", "Nature Scavenger Hunt", saturdayMorning().Add(48*time.Hour), "Riverside Park")

	result := engine.Merge([]models.CandidateEvent{a, b}, nil)

	if len(result.Canonical) != 2 {
		t.Fatalf("expected 2 canonical events, got %d", len(result.Canonical))
	}
	if len(result.Merges) != 0 {
		t.Errorf("expected no merges, got %d", len(result.Merges))
	}
}

func TestMerge_AdditiveEnrichment(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	base := candidate("library", "Storytime at the Library", saturdayMorning(), "Main Street Library")
	base.AllDay = true
	base.Description = "short"

	enriching := candidate("community", "Storytime at the Library", saturdayMorning().Add(30*time.Minute), "Main Street Library")
	enriching.Description = "a much longer description of the event"
	enriching.AgeRange = &models.AgeRange{MinYears: 2, MaxYears: 5}
	enriching.Capacity = &models.Capacity{Available: 4, Total: 20}
	enriching.Cost = 5.00

	result := engine.Merge([]models.CandidateEvent{enriching}, engine.Merge([]models.CandidateEvent{base}, nil).Canonical)

	if len(result.Canonical) != 1 {
		t.Fatalf("expected 1 canonical event, got %d", len(result.Canonical))
	}
	event := result.Canonical[0]

	if event.AllDay {
		t.Errorf("expected explicit time to replace all-day placeholder")
	}
	if event.Description != enriching.Description {
		t.Errorf("expected longer description to win")
	}
	if event.AgeRange == nil || event.AgeRange.MinYears != 2 {
		t.Errorf("expected age range filled from merge")
	}
	if event.Capacity == nil || event.Capacity.Available != 4 {
		t.Errorf("expected fresher capacity to replace")
	}
	// The guard must see the worst-case declared cost.
	if event.Cost != 5.00 {
		t.Errorf("expected higher cost to win, got %f", event.Cost)
	}
	if event.MergeCount != 2 {
		t.Errorf("expected merge count 2, got %d", event.MergeCount)
	}
}

func TestMerge_DropsInvalidCandidates(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	valid := candidate("library", "Storytime", saturdayMorning(), "Library")
	invalid := candidate("library", "", saturdayMorning(), "Library")

	result := engine.Merge([]models.CandidateEvent{valid, invalid}, nil)

	if len(result.Canonical) != 1 {
		t.Errorf("expected 1 canonical event, got %d", len(result.Canonical))
	}
	if result.Dropped != 1 {
		t.Errorf("expected 1 dropped candidate, got %d", result.Dropped)
	}
}

func TestMerge_RepeatRunIsIdempotentOnIdentity(t *testing.T) {
	engine := NewEngine(DefaultFuzzyThreshold, testLogger())

	c := candidate("library", "Storytime at the Library", saturdayMorning(), "Main Street Library")

	first := engine.Merge([]models.CandidateEvent{c}, nil)
	second := engine.Merge([]models.CandidateEvent{c}, first.Canonical)

	if len(second.Canonical) != 1 {
		t.Fatalf("expected re-sighting to merge, got %d events", len(second.Canonical))
	}
	if second.Canonical[0].Fingerprint != first.Canonical[0].Fingerprint {
		t.Errorf("surviving identity changed across runs")
	}
	if len(second.Canonical[0].Sources) != 1 {
		t.Errorf("same source re-sighted should not duplicate sources: %v", second.Canonical[0].Sources)
	}
}

func TestSimilarity_TitleDateLocationWeights(t *testing.T) {
	near := saturdayMorning()

	a := models.CanonicalEvent{
		Title:     "Storytime at the Library",
		StartTime: near,
		Location:  models.Location{Address: "Main Street Library"},
	}
	b := models.CanonicalEvent{
		Title:     "Storytime at Library",
		StartTime: near,
		Location:  models.Location{Address: "Main Street Library"},
	}

	score := Similarity(&a, &b)
	if score < DefaultFuzzyThreshold {
		t.Errorf("expected near-duplicate above threshold, got %f", score)
	}

	b.StartTime = near.Add(96 * time.Hour)
	if far := Similarity(&a, &b); far >= score {
		t.Errorf("expected date skew to lower similarity: %f vs %f", far, score)
	}
}
