// Package notify implements the approval state machine: a candidate
// event is sent to a household member over SMS or email, and the first
// inbound response decides its fate.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hearthplan/hearthplan/internal/metrics"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/retry"
)

// DefaultResponseWindow is how long a notification stays eligible for
// an inbound reply before timing out to cancelled.
const DefaultResponseWindow = 24 * time.Hour

// Store persists notifications and their response audit trail.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)

	// ApplyResponse conditionally moves an open notification to a
	// terminal status; returns false when another response already won.
	ApplyResponse(ctx context.Context, id string, status models.NotificationStatus, responseText string, at time.Time) (bool, error)

	// RecordResponseAudit appends an inbound reply to the audit log
	// regardless of whether it changed status.
	RecordResponseAudit(ctx context.Context, id, responseText string, at time.Time) error

	// LatestOpenByRecipient returns the most recent still-open
	// notification for the recipient sent after the cutoff, or nil.
	LatestOpenByRecipient(ctx context.Context, recipient string, sentAfter time.Time) (*models.Notification, error)

	// ExpireOlderThan cancels open notifications sent before the cutoff
	// and returns them.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) ([]models.Notification, error)
}

// EventTransitioner applies conditional status updates keyed by
// fingerprint, so overlapping runs cannot lose updates.
type EventTransitioner interface {
	TransitionStatus(ctx context.Context, fingerprint string, from, to models.EventStatus) (bool, error)
}

// Service drives the notification lifecycle across both channels.
type Service struct {
	store   Store
	events  EventTransitioner
	senders map[models.NotificationChannel]Sender
	window  time.Duration
	retry   retry.Policy
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates the notification service.
func NewService(store Store, events EventTransitioner, senders map[models.NotificationChannel]Sender, window time.Duration, collector *metrics.Collector, logger *slog.Logger) *Service {
	if window <= 0 {
		window = DefaultResponseWindow
	}
	return &Service{
		store:   store,
		events:  events,
		senders: senders,
		window:  window,
		retry:   retry.DefaultPolicy(),
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

// Send dispatches an approval request for the event to the recipient
// over the given channel.
func (s *Service) Send(ctx context.Context, event *models.CanonicalEvent, recipient string, channel models.NotificationChannel) (*models.Notification, error) {
	sender, ok := s.senders[channel]
	if !ok {
		return nil, fmt.Errorf("no sender configured for channel %q", channel)
	}

	now := s.now()
	n := &models.Notification{
		ID:               uuid.NewString(),
		EventFingerprint: event.Fingerprint,
		Recipient:        recipient,
		Channel:          channel,
		Body:             composeBody(event),
		Status:           models.NotificationStatusSent,
		SentAt:           now,
		CreatedAt:        now,
	}
	if channel == models.ChannelEmail {
		n.Subject = fmt.Sprintf("Approve event: %s", event.Title)
	}

	var providerID string
	attempts := 0
	err := retry.Do(ctx, s.retry, func() error {
		attempts++
		id, sendErr := sender.Send(ctx, n)
		if sendErr != nil {
			return sendErr
		}
		providerID = id
		return nil
	})
	n.RetryCount = attempts - 1

	if err != nil {
		n.Status = models.NotificationStatusFailed
		if storeErr := s.store.Insert(ctx, n); storeErr != nil {
			s.logger.Error("failed to persist failed notification", "notification_id", n.ID, "error", storeErr)
		}
		// A request that never went out has no reply to wait for, so the
		// timeout sweep would never reach this event. Cancel it now
		// instead of leaving it stranded in proposed.
		if _, terr := s.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusProposed, models.EventStatusCancelled); terr != nil {
			s.logger.Error("failed to cancel event after notification failure",
				"notification_id", n.ID,
				"event", event.Fingerprint,
				"error", terr,
			)
		}
		s.metrics.NotificationSent(string(channel), string(models.NotificationStatusFailed))
		return n, fmt.Errorf("failed to send %s notification: %w", channel, err)
	}

	n.ProviderMessageID = providerID
	// SMS waits for a reply; email is considered delivered once the
	// provider accepts it.
	if channel == models.ChannelEmail {
		n.Status = models.NotificationStatusDelivered
	} else {
		n.Status = models.NotificationStatusPending
	}

	if err := s.store.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	s.metrics.NotificationSent(string(channel), string(n.Status))
	s.logger.Info("notification sent",
		"notification_id", n.ID,
		"event", event.Fingerprint,
		"channel", channel,
		"recipient", recipient,
	)

	return n, nil
}

// RecordResponse classifies an inbound reply and applies it to the
// notification. The first response wins; later replies are recorded for
// audit but never change status. Replies arriving after the response
// window are likewise recorded but not applied.
func (s *Service) RecordResponse(ctx context.Context, notificationID, rawText string) (*models.Notification, error) {
	n, err := s.store.GetByID(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n == nil {
		return nil, fmt.Errorf("notification %s not found", notificationID)
	}

	now := s.now()
	if err := s.store.RecordResponseAudit(ctx, n.ID, rawText, now); err != nil {
		s.logger.Error("failed to record response audit", "notification_id", n.ID, "error", err)
	}

	if now.Sub(n.SentAt) > s.window {
		s.logger.Info("late response recorded but not applied",
			"notification_id", n.ID,
			"age", now.Sub(n.SentAt),
		)
		return n, nil
	}

	classification := ClassifyResponse(rawText)
	status := statusFor(classification)

	applied, err := s.store.ApplyResponse(ctx, n.ID, status, rawText, now)
	if err != nil {
		return nil, fmt.Errorf("failed to apply response: %w", err)
	}
	if !applied {
		s.logger.Info("response recorded after first response already won",
			"notification_id", n.ID,
			"classification", classification,
		)
		return s.store.GetByID(ctx, notificationID)
	}

	s.applyEventSideEffect(ctx, n.EventFingerprint, classification)

	return s.store.GetByID(ctx, notificationID)
}

// MatchInbound attributes a reply to the most recent still-open
// notification for the recipient within the lookback window. Unmatched
// replies are logged but not applied.
func (s *Service) MatchInbound(ctx context.Context, recipient, rawText string) (*models.Notification, error) {
	cutoff := s.now().Add(-s.window)
	n, err := s.store.LatestOpenByRecipient(ctx, recipient, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to match inbound reply: %w", err)
	}
	if n == nil {
		s.logger.Info("unmatched inbound reply", "recipient", recipient)
		return nil, nil
	}
	return s.RecordResponse(ctx, n.ID, rawText)
}

// ExpireStale cancels notifications past the response window and drives
// their events to cancelled.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.window)
	expired, err := s.store.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale notifications: %w", err)
	}

	for _, n := range expired {
		if _, err := s.events.TransitionStatus(ctx, n.EventFingerprint, models.EventStatusProposed, models.EventStatusCancelled); err != nil {
			s.logger.Error("failed to cancel event for timed-out notification",
				"notification_id", n.ID,
				"event", n.EventFingerprint,
				"error", err,
			)
		}
	}

	if len(expired) > 0 {
		s.logger.Info("expired stale notifications", "count", len(expired))
	}

	return len(expired), nil
}

func (s *Service) applyEventSideEffect(ctx context.Context, fingerprint string, classification models.ResponseClassification) {
	var target models.EventStatus
	switch classification {
	case models.ResponseApproved:
		target = models.EventStatusApproved
	case models.ResponseRejected:
		target = models.EventStatusRejected
	default:
		// Unclear leaves event status unchanged pending human follow-up.
		return
	}

	changed, err := s.events.TransitionStatus(ctx, fingerprint, models.EventStatusProposed, target)
	if err != nil {
		s.logger.Error("failed to transition event status",
			"event", fingerprint,
			"target", target,
			"error", err,
		)
		return
	}
	if !changed {
		s.logger.Warn("event status transition skipped, unexpected current status",
			"event", fingerprint,
			"target", target,
		)
	}
}

func statusFor(c models.ResponseClassification) models.NotificationStatus {
	switch c {
	case models.ResponseApproved:
		return models.NotificationStatusApproved
	case models.ResponseRejected:
		return models.NotificationStatusRejected
	default:
		return models.NotificationStatusUnclear
	}
}

// composeBody renders the approval request message.
func composeBody(event *models.CanonicalEvent) string {
	cost := "free"
	if event.Cost > 0 {
		cost = fmt.Sprintf("$%.2f", event.Cost)
	}

	venue := event.Location.Address
	if venue == "" {
		venue = "venue TBD"
	}

	return fmt.Sprintf("New event: %s on %s at %s (%s). Reply YES to approve or NO to skip.",
		event.Title,
		event.StartTime.Format("Mon Jan 2 3:04 PM"),
		venue,
		cost,
	)
}
