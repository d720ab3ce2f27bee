package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/lib/pq"
)

// HouseholdRepository persists the single household configuration row.
// The table is constrained to one row; Get falls back to defaults when
// nothing has been saved yet.
type HouseholdRepository struct {
	db *sql.DB
}

// NewHouseholdRepository creates a household config repository.
func NewHouseholdRepository(db *sql.DB) *HouseholdRepository {
	return &HouseholdRepository{db: db}
}

// Get returns the stored household config, or the defaults when the
// row does not exist yet.
func (r *HouseholdRepository) Get(ctx context.Context) (models.HouseholdConfig, error) {
	var (
		cfg       models.HouseholdConfig
		childAges pq.Int64Array
		minLeadNs int64
		maxLeadNs int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT child_ages, budget_ceiling,
		       weekday_earliest_start, weekend_earliest_start,
		       nap_start, nap_end,
		       min_lead_time_ns, max_lead_time_ns,
		       contact_name, contact_email, contact_phone,
		       updated_at
		FROM household_config
		WHERE id = 1
	`).Scan(
		&childAges,
		&cfg.BudgetCeiling,
		&cfg.WeekdayEarliestStart,
		&cfg.WeekendEarliestStart,
		&cfg.NapStart,
		&cfg.NapEnd,
		&minLeadNs,
		&maxLeadNs,
		&cfg.ContactName,
		&cfg.ContactEmail,
		&cfg.ContactPhone,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.DefaultHouseholdConfig(), nil
	}
	if err != nil {
		return models.HouseholdConfig{}, fmt.Errorf("failed to get household config: %w", err)
	}

	cfg.ChildAges = make([]int, len(childAges))
	for i, age := range childAges {
		cfg.ChildAges[i] = int(age)
	}
	cfg.MinLeadTime = time.Duration(minLeadNs)
	cfg.MaxLeadTime = time.Duration(maxLeadNs)

	return cfg, nil
}

// Save upserts the household config row.
func (r *HouseholdRepository) Save(ctx context.Context, cfg models.HouseholdConfig) error {
	ages := make(pq.Int64Array, len(cfg.ChildAges))
	for i, age := range cfg.ChildAges {
		ages[i] = int64(age)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO household_config (
			id, child_ages, budget_ceiling,
			weekday_earliest_start, weekend_earliest_start,
			nap_start, nap_end,
			min_lead_time_ns, max_lead_time_ns,
			contact_name, contact_email, contact_phone, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			child_ages = EXCLUDED.child_ages,
			budget_ceiling = EXCLUDED.budget_ceiling,
			weekday_earliest_start = EXCLUDED.weekday_earliest_start,
			weekend_earliest_start = EXCLUDED.weekend_earliest_start,
			nap_start = EXCLUDED.nap_start,
			nap_end = EXCLUDED.nap_end,
			min_lead_time_ns = EXCLUDED.min_lead_time_ns,
			max_lead_time_ns = EXCLUDED.max_lead_time_ns,
			contact_name = EXCLUDED.contact_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			updated_at = NOW()
	`,
		ages,
		cfg.BudgetCeiling,
		cfg.WeekdayEarliestStart,
		cfg.WeekendEarliestStart,
		cfg.NapStart,
		cfg.NapEnd,
		int64(cfg.MinLeadTime),
		int64(cfg.MaxLeadTime),
		cfg.ContactName,
		cfg.ContactEmail,
		cfg.ContactPhone,
	)
	if err != nil {
		return fmt.Errorf("failed to save household config: %w", err)
	}
	return nil
}
