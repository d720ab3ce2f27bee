package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// openStatuses are notification states still awaiting a decision.
const openStatuses = `('sent', 'pending', 'delivered')`

// NotificationRepository persists notifications and their response
// audit trail.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository creates a notification repository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `
	id, event_fingerprint, recipient, channel, subject, body, status,
	response_text, responded_at, provider_message_id, retry_count,
	sent_at, created_at
`

// Insert writes a new notification.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`,
		n.ID,
		n.EventFingerprint,
		n.Recipient,
		n.Channel,
		n.Subject,
		n.Body,
		n.Status,
		n.ResponseText,
		n.RespondedAt,
		n.ProviderMessageID,
		n.RetryCount,
		n.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves one notification.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := r.scanNotification(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// ApplyResponse moves an open notification to a terminal status. The
// status guard in the WHERE clause makes the first response win; a
// second response affects zero rows and returns false.
func (r *NotificationRepository) ApplyResponse(ctx context.Context, id string, status models.NotificationStatus, responseText string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $1, response_text = $2, responded_at = $3
		WHERE id = $4 AND status IN `+openStatuses+`
	`, status, responseText, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to apply response: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// RecordResponseAudit appends an inbound reply to the audit log. Every
// reply lands here, including late ones and losers of the
// first-response race.
func (r *NotificationRepository) RecordResponseAudit(ctx context.Context, id, responseText string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_responses (notification_id, response_text, received_at)
		VALUES ($1, $2, $3)
	`, id, responseText, at)
	if err != nil {
		return fmt.Errorf("failed to record response audit: %w", err)
	}
	return nil
}

// LatestOpenByRecipient returns the most recent open notification for
// the recipient sent after the cutoff, or nil. Inbound webhooks carry
// no notification ID, so replies match on recipient and recency.
func (r *NotificationRepository) LatestOpenByRecipient(ctx context.Context, recipient string, sentAfter time.Time) (*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient = $1 AND status IN ` + openStatuses + ` AND sent_at > $2
		ORDER BY sent_at DESC
		LIMIT 1
	`

	n, err := r.scanNotification(r.db.QueryRowContext(ctx, query, recipient, sentAfter))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match open notification: %w", err)
	}
	return n, nil
}

// ExpireOlderThan cancels open notifications sent before the cutoff
// and returns the cancelled rows.
func (r *NotificationRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) ([]models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE notifications
		SET status = 'cancelled'
		WHERE status IN `+openStatuses+` AND sent_at < $1
		RETURNING `+notificationColumns+`
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to expire notifications: %w", err)
	}
	defer rows.Close()

	var expired []models.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired notification: %w", err)
		}
		expired = append(expired, *n)
	}
	return expired, rows.Err()
}

func (r *NotificationRepository) scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n           models.Notification
		respondedAt sql.NullTime
	)

	err := row.Scan(
		&n.ID,
		&n.EventFingerprint,
		&n.Recipient,
		&n.Channel,
		&n.Subject,
		&n.Body,
		&n.Status,
		&n.ResponseText,
		&respondedAt,
		&n.ProviderMessageID,
		&n.RetryCount,
		&n.SentAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if respondedAt.Valid {
		t := respondedAt.Time
		n.RespondedAt = &t
	}
	return &n, nil
}
