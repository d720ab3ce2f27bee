package models

import (
	"time"
)

// HouseholdConfig bundles the mutable household settings consumed by the
// eligibility filters. It is fetched through a time-bounded cache so
// edits take effect without a restart; filters receive an explicit
// snapshot rather than reading a shared singleton.
type HouseholdConfig struct {
	ChildAges     []int   `json:"child_ages"`
	BudgetCeiling float64 `json:"budget_ceiling"`

	// Earliest acceptable start times, minutes since local midnight.
	WeekdayEarliestStart int `json:"weekday_earliest_start"`
	WeekendEarliestStart int `json:"weekend_earliest_start"`

	// Quiet/nap window, minutes since local midnight. Overlapping events
	// are demoted by the scorer, not excluded.
	NapStart int `json:"nap_start"`
	NapEnd   int `json:"nap_end"`

	MinLeadTime time.Duration `json:"min_lead_time"`
	MaxLeadTime time.Duration `json:"max_lead_time"`

	// Contact details used to fill registration forms.
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultHouseholdConfig returns the settings used before a household
// has saved its own.
func DefaultHouseholdConfig() HouseholdConfig {
	return HouseholdConfig{
		BudgetCeiling:        0, // Free events only until configured
		WeekdayEarliestStart: 16 * 60,
		WeekendEarliestStart: 9 * 60,
		NapStart:             12 * 60,
		NapEnd:               14 * 60,
		MinLeadTime:          24 * time.Hour,
		MaxLeadTime:          30 * 24 * time.Hour,
	}
}

// MinuteOfDay returns t's offset from local midnight in minutes.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InNapWindow reports whether t falls inside the configured quiet/nap
// window.
func (h HouseholdConfig) InNapWindow(t time.Time) bool {
	if h.NapStart >= h.NapEnd {
		return false
	}
	m := MinuteOfDay(t)
	return m >= h.NapStart && m < h.NapEnd
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
