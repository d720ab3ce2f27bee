package models

import (
	"time"
)

// NotificationChannel identifies the delivery mechanism for an approval
// request. Both channels share one schema; email additionally carries a
// subject and a provider message id used to thread replies.
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// NotificationStatus represents the lifecycle state of an outbound
// approval request.
type NotificationStatus string

const (
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusApproved  NotificationStatus = "approved"
	NotificationStatusRejected  NotificationStatus = "rejected"
	NotificationStatusUnclear   NotificationStatus = "unclear"
	NotificationStatusCancelled NotificationStatus = "cancelled"
	NotificationStatusFailed    NotificationStatus = "failed"
)

// Open reports whether the notification can still accept an inbound
// response. The first response received wins; later responses are
// recorded for audit but do not change status.
func (s NotificationStatus) Open() bool {
	switch s {
	case NotificationStatusSent, NotificationStatusPending, NotificationStatusDelivered:
		return true
	}
	return false
}

// Notification is one outbound message for one event to one recipient
// over one channel.
type Notification struct {
	ID                string              `json:"id"`
	EventFingerprint  string              `json:"event_fingerprint"`
	Recipient         string              `json:"recipient"`
	Channel           NotificationChannel `json:"channel"`
	Subject           string              `json:"subject,omitempty"` // Email only
	Body              string              `json:"body"`
	Status            NotificationStatus  `json:"status"`
	ResponseText      string              `json:"response_text,omitempty"`
	RespondedAt       *time.Time          `json:"responded_at,omitempty"`
	ProviderMessageID string              `json:"provider_message_id,omitempty"`
	RetryCount        int                 `json:"retry_count"`
	SentAt            time.Time           `json:"sent_at"`
	CreatedAt         time.Time           `json:"created_at"`
}

// ResponseClassification is the outcome of parsing an inbound reply
// against the fixed response vocabulary.
type ResponseClassification string

const (
	ResponseApproved ResponseClassification = "approved"
	ResponseRejected ResponseClassification = "rejected"
	ResponseUnclear  ResponseClassification = "unclear"
)
