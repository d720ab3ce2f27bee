package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hearthplan/hearthplan/internal/filter"
	"github.com/hearthplan/hearthplan/internal/merge"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/scoring"
	"github.com/lib/pq"
)

// EventRepository persists canonical events keyed by fingerprint.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a canonical event repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `
	fingerprint, title, start_time, all_day,
	address, latitude, longitude, venue_token,
	age_range, cost, registration_url, alternate_urls, registration_opens_at,
	capacity, description, raw_content, status, sources,
	merge_count, last_merged_at,
	filter_passed, filter_reasons, is_during_nap_time,
	preference_score, score_breakdown,
	created_at, updated_at
`

// Upsert writes a canonical event. Merges re-upsert the surviving
// record, so conflicts on fingerprint replace every enrichable field.
func (r *EventRepository) Upsert(ctx context.Context, event *models.CanonicalEvent) error {
	ageJSON, err := nullableJSON(event.AgeRange)
	if err != nil {
		return fmt.Errorf("failed to marshal age range: %w", err)
	}
	capacityJSON, err := nullableJSON(event.Capacity)
	if err != nil {
		return fmt.Errorf("failed to marshal capacity: %w", err)
	}
	breakdownJSON, err := json.Marshal(event.ScoreBreakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW())
		ON CONFLICT (fingerprint) DO UPDATE SET
			title = EXCLUDED.title,
			start_time = EXCLUDED.start_time,
			all_day = EXCLUDED.all_day,
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			venue_token = EXCLUDED.venue_token,
			age_range = EXCLUDED.age_range,
			cost = EXCLUDED.cost,
			registration_url = EXCLUDED.registration_url,
			alternate_urls = EXCLUDED.alternate_urls,
			registration_opens_at = EXCLUDED.registration_opens_at,
			capacity = EXCLUDED.capacity,
			description = EXCLUDED.description,
			raw_content = EXCLUDED.raw_content,
			sources = EXCLUDED.sources,
			merge_count = EXCLUDED.merge_count,
			last_merged_at = EXCLUDED.last_merged_at,
			updated_at = NOW()
	`

	_, err = r.db.ExecContext(ctx, query,
		event.Fingerprint,
		event.Title,
		event.StartTime,
		event.AllDay,
		event.Location.Address,
		event.Location.Latitude,
		event.Location.Longitude,
		merge.VenueToken(event.Location),
		ageJSON,
		event.Cost,
		event.RegistrationURL,
		pq.Array(event.AlternateURLs),
		event.RegistrationOpensAt,
		capacityJSON,
		event.Description,
		event.RawContent,
		event.Status,
		pq.Array(event.Sources),
		event.MergeCount,
		event.LastMergedAt,
		event.FilterPassed,
		pq.Array(event.FilterReasons),
		event.IsDuringNapTime,
		event.PreferenceScore,
		breakdownJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

// GetByFingerprint retrieves one canonical event.
func (r *EventRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.CanonicalEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE fingerprint = $1`

	event, err := r.scanEvent(r.db.QueryRowContext(ctx, query, fingerprint))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// ListActive returns upcoming events that are not in a terminal state.
// This is the working set the merge step folds new candidates into.
func (r *EventRepository) ListActive(ctx context.Context) ([]models.CanonicalEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE start_time >= NOW() - INTERVAL '1 day'
		  AND status NOT IN ('rejected', 'cancelled', 'registered', 'registration_failed', 'manual_registration_sent')
		ORDER BY start_time ASC
	`
	return r.queryEvents(ctx, query)
}

// ListByStatus returns events in the given status, soonest first.
func (r *EventRepository) ListByStatus(ctx context.Context, status models.EventStatus, limit int) ([]models.CanonicalEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE status = $1
		ORDER BY start_time ASC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, status, limit)
}

// TransitionStatus conditionally moves an event from one status to
// another. Returns false without error when the event was not in the
// expected source status, so concurrent transitions cannot clobber
// each other.
func (r *EventRepository) TransitionStatus(ctx context.Context, fingerprint string, from, to models.EventStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal status transition %s -> %s", from, to)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE events SET status = $1, updated_at = NOW()
		WHERE fingerprint = $2 AND status = $3
	`, to, fingerprint, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition event status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// SaveFilterResult persists the filter verdict, including the full
// per-check audit so rejections stay explainable.
func (r *EventRepository) SaveFilterResult(ctx context.Context, fingerprint string, result filter.Result) error {
	checksJSON, err := json.Marshal(result.Checks)
	if err != nil {
		return fmt.Errorf("failed to marshal filter checks: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE events SET
			filter_passed = $1,
			filter_reasons = $2,
			is_during_nap_time = $3,
			filter_checks = $4,
			updated_at = NOW()
		WHERE fingerprint = $5
	`, result.Passed, pq.Array(result.Reasons), result.IsDuringNapTime, checksJSON, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to save filter result: %w", err)
	}
	return nil
}

// SaveScore persists the preference score and its breakdown.
func (r *EventRepository) SaveScore(ctx context.Context, fingerprint string, score float64, breakdown models.ScoreBreakdown) error {
	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE events SET preference_score = $1, score_breakdown = $2, updated_at = NOW()
		WHERE fingerprint = $3
	`, score, breakdownJSON, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// MarkAttended records that the household attended the event. The
// novelty filter consults this table on later runs.
func (r *EventRepository) MarkAttended(ctx context.Context, fingerprint string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (event_fingerprint, attended_at)
		VALUES ($1, NOW())
		ON CONFLICT (event_fingerprint) DO NOTHING
	`, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	return nil
}

// HasAttended reports whether the household already attended this
// event identity.
func (r *EventRepository) HasAttended(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM attendance WHERE event_fingerprint = $1)
	`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}
	return exists, nil
}

// StatsForVenue aggregates past approval and attendance outcomes for
// one venue token. Feeds the heuristic preference scorer.
func (r *EventRepository) StatsForVenue(ctx context.Context, venueToken string) (scoring.FeedbackStats, error) {
	var stats scoring.FeedbackStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE e.status IN ('approved', 'registering', 'registered', 'manual_registration_sent')),
			COUNT(*) FILTER (WHERE e.status = 'rejected'),
			COUNT(a.event_fingerprint)
		FROM events e
		LEFT JOIN attendance a ON a.event_fingerprint = e.fingerprint
		WHERE e.venue_token = $1
	`, venueToken).Scan(&stats.Approved, &stats.Rejected, &stats.Attended)
	if err != nil {
		return scoring.FeedbackStats{}, fmt.Errorf("failed to aggregate venue feedback: %w", err)
	}
	return stats, nil
}

// DeleteOlderThan removes events whose start time is before the cutoff
// and that are in a terminal state. Returns the number removed.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM events
		WHERE start_time < $1
		  AND status IN ('rejected', 'cancelled', 'registered', 'registration_failed', 'manual_registration_sent')
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]models.CanonicalEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.CanonicalEvent
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

func (r *EventRepository) scanEvent(row rowScanner) (*models.CanonicalEvent, error) {
	var (
		event         models.CanonicalEvent
		latitude      sql.NullFloat64
		longitude     sql.NullFloat64
		venueToken    string
		ageJSON       []byte
		capacityJSON  []byte
		breakdownJSON []byte
		opensAt       sql.NullTime
		alternateURLs pq.StringArray
		sources       pq.StringArray
		filterReasons pq.StringArray
	)

	err := row.Scan(
		&event.Fingerprint,
		&event.Title,
		&event.StartTime,
		&event.AllDay,
		&event.Location.Address,
		&latitude,
		&longitude,
		&venueToken,
		&ageJSON,
		&event.Cost,
		&event.RegistrationURL,
		&alternateURLs,
		&opensAt,
		&capacityJSON,
		&event.Description,
		&event.RawContent,
		&event.Status,
		&sources,
		&event.MergeCount,
		&event.LastMergedAt,
		&event.FilterPassed,
		&filterReasons,
		&event.IsDuringNapTime,
		&event.PreferenceScore,
		&breakdownJSON,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if latitude.Valid {
		event.Location.Latitude = &latitude.Float64
	}
	if longitude.Valid {
		event.Location.Longitude = &longitude.Float64
	}
	if opensAt.Valid {
		t := opensAt.Time
		event.RegistrationOpensAt = &t
	}
	event.AlternateURLs = alternateURLs
	event.Sources = sources
	event.FilterReasons = filterReasons

	if len(ageJSON) > 0 {
		var ageRange models.AgeRange
		if err := json.Unmarshal(ageJSON, &ageRange); err != nil {
			return nil, fmt.Errorf("failed to unmarshal age range: %w", err)
		}
		event.AgeRange = &ageRange
	}
	if len(capacityJSON) > 0 {
		var capacity models.Capacity
		if err := json.Unmarshal(capacityJSON, &capacity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capacity: %w", err)
		}
		event.Capacity = &capacity
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &event.ScoreBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal score breakdown: %w", err)
		}
	}

	return &event, nil
}

// nullableJSON marshals v, returning nil for a nil pointer so the
// column stores SQL NULL rather than the string "null".
func nullableJSON(v any) ([]byte, error) {
	switch value := v.(type) {
	case *models.AgeRange:
		if value == nil {
			return nil, nil
		}
	case *models.Capacity:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
