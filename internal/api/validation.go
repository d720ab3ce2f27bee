package api

import (
	"fmt"

	"github.com/hearthplan/hearthplan/internal/models"
)

const minutesPerDay = 24 * 60

// validateHousehold rejects configs that would make every event fail
// or pass filtering for structural reasons.
func validateHousehold(cfg models.HouseholdConfig) error {
	if len(cfg.ChildAges) == 0 {
		return fmt.Errorf("at least one child age is required")
	}
	for _, age := range cfg.ChildAges {
		if age < 0 || age > 18 {
			return fmt.Errorf("child age %d out of range", age)
		}
	}
	if cfg.BudgetCeiling < 0 {
		return fmt.Errorf("budget ceiling must be non-negative")
	}
	for _, m := range []int{cfg.WeekdayEarliestStart, cfg.WeekendEarliestStart, cfg.NapStart, cfg.NapEnd} {
		if m < 0 || m >= minutesPerDay {
			return fmt.Errorf("minute-of-day value %d out of range", m)
		}
	}
	if cfg.NapEnd < cfg.NapStart {
		return fmt.Errorf("nap window must not wrap midnight")
	}
	if cfg.MinLeadTime < 0 || cfg.MaxLeadTime < 0 {
		return fmt.Errorf("lead times must be non-negative")
	}
	if cfg.MaxLeadTime > 0 && cfg.MaxLeadTime < cfg.MinLeadTime {
		return fmt.Errorf("max lead time must be at least min lead time")
	}
	return nil
}
