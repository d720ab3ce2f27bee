package models

import (
	"time"
)

// CanonicalEvent is the deduplicated, system-of-record representation of
// one real-world event. Exactly one canonical event exists per
// fingerprint; merges enrich fields but never shrink the sources set.
type CanonicalEvent struct {
	Fingerprint         string         `json:"fingerprint"`
	Title               string         `json:"title"`
	StartTime           time.Time      `json:"start_time"`
	AllDay              bool           `json:"all_day"`
	Location            Location       `json:"location"`
	AgeRange            *AgeRange      `json:"age_range,omitempty"`
	Cost                float64        `json:"cost"`
	RegistrationURL     string         `json:"registration_url,omitempty"`
	AlternateURLs       []string       `json:"alternate_urls,omitempty"`
	RegistrationOpensAt *time.Time     `json:"registration_opens_at,omitempty"`
	Capacity            *Capacity      `json:"capacity,omitempty"`
	Description         string         `json:"description,omitempty"`
	RawContent          string         `json:"raw_content,omitempty"`
	Status              EventStatus    `json:"status"`
	Sources             []string       `json:"sources"`
	MergeCount          int            `json:"merge_count"`
	LastMergedAt        time.Time      `json:"last_merged_at"`
	FilterPassed        bool           `json:"filter_passed"`
	FilterReasons       []string       `json:"filter_reasons,omitempty"`
	IsDuringNapTime     bool           `json:"is_during_nap_time"`
	PreferenceScore     float64        `json:"preference_score"`
	ScoreBreakdown      ScoreBreakdown `json:"score_breakdown"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// EventStatus represents the lifecycle state of a canonical event.
type EventStatus string

const (
	EventStatusDiscovered         EventStatus = "discovered"
	EventStatusProposed           EventStatus = "proposed"
	EventStatusApproved           EventStatus = "approved"
	EventStatusRejected           EventStatus = "rejected"
	EventStatusRegistering        EventStatus = "registering"
	EventStatusRegistered         EventStatus = "registered"
	EventStatusRegistrationFailed EventStatus = "registration_failed"
	EventStatusManualSent         EventStatus = "manual_registration_sent"
	EventStatusCancelled          EventStatus = "cancelled"
)

// legalTransitions encodes the allowed status graph. Events are retained
// indefinitely; there is no transition out of terminal states.
var legalTransitions = map[EventStatus][]EventStatus{
	EventStatusDiscovered:  {EventStatusProposed, EventStatusCancelled},
	EventStatusProposed:    {EventStatusApproved, EventStatusRejected, EventStatusCancelled},
	EventStatusApproved:    {EventStatusRegistering, EventStatusRegistrationFailed, EventStatusManualSent, EventStatusCancelled},
	EventStatusRegistering: {EventStatusRegistered, EventStatusRegistrationFailed},
}

// CanTransition reports whether moving from the current status to the
// target status is legal.
func (s EventStatus) CanTransition(to EventStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s EventStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// ScoreBreakdown records the composite score inputs for observability.
type ScoreBreakdown struct {
	Base        float64 `json:"base"`
	Urgency     float64 `json:"urgency"`
	SocialProof float64 `json:"social_proof"`
	NapPenalty  float64 `json:"nap_penalty"`
	ModelUsed   bool    `json:"model_used"`
}

// HasSource reports whether the named scraper already contributed to
// this event.
func (e *CanonicalEvent) HasSource(name string) bool {
	for _, s := range e.Sources {
		if s == name {
			return true
		}
	}
	return false
}

// HasAlternateURL reports whether the URL is already recorded on the
// event, either as the primary registration URL or an alternate.
func (e *CanonicalEvent) HasAlternateURL(url string) bool {
	if url == e.RegistrationURL {
		return true
	}
	for _, u := range e.AlternateURLs {
		if u == url {
			return true
		}
	}
	return false
}

// IsFree reports whether the event has zero cost and is therefore
// eligible for automated registration.
func (e *CanonicalEvent) IsFree() bool {
	return e.Cost == 0
}
