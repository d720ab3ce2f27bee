// Package calendar defines the boundary to the household calendar
// collaborator. A hard conflict on one household member's calendar
// excludes an event; a soft conflict on another's only warns.
package calendar

import (
	"context"
	"time"
)

// ConflictResult distinguishes a blocking conflict from an advisory one
// across the two household calendars.
type ConflictResult struct {
	HasConflict bool `json:"has_conflict"`
	HasWarning  bool `json:"has_warning"`
}

// Checker answers whether a timestamp collides with existing calendar
// entries.
type Checker interface {
	CheckConflicts(ctx context.Context, start time.Time) (ConflictResult, error)
}
