package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// Connector is the boundary to one scraper collaborator. Any payload
// shape is acceptable as long as it maps to a CandidateEvent; malformed
// candidates are dropped before the merge step.
type Connector interface {
	// Name identifies the source in canonical events' sources set.
	Name() string

	// Fetch returns candidates discovered since the given time.
	Fetch(ctx context.Context, since time.Time) ([]models.CandidateEvent, error)

	// HealthCheck verifies the collaborator is reachable.
	HealthCheck(ctx context.Context) error
}

// HTTPConnector pulls candidates from a scraper's JSON feed endpoint.
type HTTPConnector struct {
	name    string
	feedURL string
	client  *http.Client
}

// NewHTTPConnector creates a connector for a scraper feed.
func NewHTTPConnector(name, feedURL string) *HTTPConnector {
	return &HTTPConnector{
		name:    name,
		feedURL: feedURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the source name.
func (c *HTTPConnector) Name() string { return c.name }

// scraperPayload is the loosely-typed intermediate shape scrapers
// produce. Optional fields are pointers; cost arrives as a number or a
// string depending on the scraper. Validation and coercion happen here,
// at the ingestion boundary, never downstream.
type scraperPayload struct {
	Title               string          `json:"title"`
	Date                string          `json:"date"`
	AllDay              bool            `json:"all_day"`
	Address             string          `json:"address"`
	Latitude            *float64        `json:"latitude"`
	Longitude           *float64        `json:"longitude"`
	AgeMin              *int            `json:"age_min"`
	AgeMax              *int            `json:"age_max"`
	Cost                json.RawMessage `json:"cost"`
	RegistrationURL     string          `json:"registration_url"`
	RegistrationOpensAt string          `json:"registration_opens_at"`
	SpotsAvailable      *int            `json:"spots_available"`
	SpotsTotal          *int            `json:"spots_total"`
	Description         string          `json:"description"`
	RawContent          string          `json:"raw_content"`
}

// Fetch pulls and coerces the scraper feed.
func (c *HTTPConnector) Fetch(ctx context.Context, since time.Time) ([]models.CandidateEvent, error) {
	url := fmt.Sprintf("%s?since=%s", c.feedURL, since.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("feed request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("feed returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var payloads []scraperPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	now := time.Now()
	candidates := make([]models.CandidateEvent, 0, len(payloads))
	for _, p := range payloads {
		candidates = append(candidates, c.coerce(p, now))
	}

	return candidates, nil
}

// HealthCheck issues a HEAD request against the feed.
func (c *HTTPConnector) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.feedURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("feed health check returned status %d", resp.StatusCode)
	}
	return nil
}

// dateFormats scrapers are known to emit.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func (c *HTTPConnector) coerce(p scraperPayload, retrievedAt time.Time) models.CandidateEvent {
	candidate := models.CandidateEvent{
		SourceName:      c.name,
		Title:           strings.TrimSpace(p.Title),
		AllDay:          p.AllDay,
		RegistrationURL: p.RegistrationURL,
		Description:     p.Description,
		RawContent:      p.RawContent,
		RetrievedAt:     retrievedAt,
		Location: models.Location{
			Address:   strings.TrimSpace(p.Address),
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		},
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, p.Date); err == nil {
			candidate.StartTime = t
			if format == "2006-01-02" {
				candidate.AllDay = true
			}
			break
		}
	}

	if p.RegistrationOpensAt != "" {
		if t, err := time.Parse(time.RFC3339, p.RegistrationOpensAt); err == nil {
			candidate.RegistrationOpensAt = &t
		}
	}

	if p.AgeMin != nil && p.AgeMax != nil {
		candidate.AgeRange = &models.AgeRange{MinYears: *p.AgeMin, MaxYears: *p.AgeMax}
	}

	if p.SpotsAvailable != nil {
		capacity := models.Capacity{Available: *p.SpotsAvailable}
		if p.SpotsTotal != nil {
			capacity.Total = *p.SpotsTotal
		}
		candidate.Capacity = &capacity
	}

	candidate.Cost = coerceCost(p.Cost)

	return candidate
}

// coerceCost accepts a JSON number or a string like "$12.50" or "free".
func coerceCost(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return 0
	}

	cleaned := strings.TrimSpace(strings.ToLower(asString))
	if cleaned == "" || cleaned == "free" || cleaned == "none" {
		return 0
	}
	cleaned = strings.TrimPrefix(cleaned, "$")
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return v
	}
	return 0
}
