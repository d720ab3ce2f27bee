package models

import (
	"strings"
	"time"
)

// CandidateEvent is a single scraper's unvalidated sighting of an event.
// Candidates are immutable once produced by a connector; the merge engine
// collapses them into canonical events.
type CandidateEvent struct {
	SourceName          string     `json:"source_name"`
	Title               string     `json:"title"`
	StartTime           time.Time  `json:"start_time"`
	AllDay              bool       `json:"all_day"` // No explicit time-of-day published
	Location            Location   `json:"location"`
	AgeRange            *AgeRange  `json:"age_range,omitempty"`
	Cost                float64    `json:"cost"`
	RegistrationURL     string     `json:"registration_url,omitempty"`
	RegistrationOpensAt *time.Time `json:"registration_opens_at,omitempty"`
	Capacity            *Capacity  `json:"capacity,omitempty"`
	Description         string     `json:"description,omitempty"`
	RawContent          string     `json:"raw_content,omitempty"`
	RetrievedAt         time.Time  `json:"retrieved_at"`
}

// Valid reports whether the candidate carries enough data to be
// fingerprinted. Invalid candidates are dropped before the merge step.
func (c *CandidateEvent) Valid() bool {
	return strings.TrimSpace(c.Title) != "" && !c.StartTime.IsZero()
}

// Location represents a venue address with optional coordinates.
type Location struct {
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// AgeRange is the declared age band for an event, in whole years.
type AgeRange struct {
	MinYears int `json:"min_years"`
	MaxYears int `json:"max_years"`
}

// Contains reports whether the given age falls inside the range.
func (r AgeRange) Contains(age int) bool {
	return age >= r.MinYears && age <= r.MaxYears
}

// Capacity is a point-in-time snapshot of registration availability.
type Capacity struct {
	Available int `json:"available"`
	Total     int `json:"total"`
}

// Ratio returns the fraction of spots still available, or 1.0 when the
// total is unknown.
func (c Capacity) Ratio() float64 {
	if c.Total <= 0 {
		return 1.0
	}
	return float64(c.Available) / float64(c.Total)
}
