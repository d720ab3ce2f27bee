package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// RegistrationRepository persists registration attempts and payment
// violations.
type RegistrationRepository struct {
	db *sql.DB
}

// NewRegistrationRepository creates a registration repository.
func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// InsertAttempt records one registration attempt. The payment_completed
// column is hard-coded false in the statement; no value from the
// attempt struct reaches it.
func (r *RegistrationRepository) InsertAttempt(ctx context.Context, attempt *models.RegistrationAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registration_attempts (
			id, event_fingerprint, success, confirmation_number, error_message,
			payment_required, payment_amount, payment_completed, triggered_by, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9)
	`,
		attempt.ID,
		attempt.EventFingerprint,
		attempt.Success,
		attempt.ConfirmationNumber,
		attempt.ErrorMessage,
		attempt.PaymentRequired,
		attempt.PaymentAmount,
		attempt.TriggeredBy,
		attempt.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert registration attempt: %w", err)
	}
	return nil
}

// InsertViolation records a payment safety violation.
func (r *RegistrationRepository) InsertViolation(ctx context.Context, violation *models.PaymentViolation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_violations (id, type, event_fingerprint, detail, detected_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		violation.ID,
		violation.Type,
		violation.EventFingerprint,
		violation.Detail,
		violation.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment violation: %w", err)
	}
	return nil
}

// ViolationCount returns the total number of recorded payment
// violations. Seeds the emergency stop counter on startup so the stop
// survives restarts.
func (r *RegistrationRepository) ViolationCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_violations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count violations: %w", err)
	}
	return count, nil
}

// ListAttempts returns attempts for one event, newest first.
func (r *RegistrationRepository) ListAttempts(ctx context.Context, fingerprint string) ([]models.RegistrationAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_fingerprint, success, confirmation_number, error_message,
		       payment_required, payment_amount, payment_completed, triggered_by, attempted_at
		FROM registration_attempts
		WHERE event_fingerprint = $1
		ORDER BY attempted_at DESC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.RegistrationAttempt
	for rows.Next() {
		var a models.RegistrationAttempt
		err := rows.Scan(
			&a.ID,
			&a.EventFingerprint,
			&a.Success,
			&a.ConfirmationNumber,
			&a.ErrorMessage,
			&a.PaymentRequired,
			&a.PaymentAmount,
			&a.PaymentCompleted,
			&a.TriggeredBy,
			&a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// DeleteAttemptsOlderThan prunes old attempt rows. Violations are kept
// forever.
func (r *RegistrationRepository) DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM registration_attempts WHERE attempted_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old attempts: %w", err)
	}
	return result.RowsAffected()
}
