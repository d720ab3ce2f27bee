package models

import (
	"time"
)

// RegistrationAttempt records one attempt to register for one event.
// Attempts are never mutated after creation; retries produce new rows.
// PaymentCompleted is false by construction: the automation layer has no
// code path that sets it, and the persistence layer hard-codes it.
type RegistrationAttempt struct {
	ID                 string    `json:"id"`
	EventFingerprint   string    `json:"event_fingerprint"`
	Success            bool      `json:"success"`
	ConfirmationNumber string    `json:"confirmation_number,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	PaymentRequired    bool      `json:"payment_required"`
	PaymentAmount      float64   `json:"payment_amount"`
	PaymentCompleted   bool      `json:"payment_completed"` // Always false
	TriggeredBy        string    `json:"triggered_by"`
	AttemptedAt        time.Time `json:"attempted_at"`
}

// ViolationType categorizes a payment safety violation.
type ViolationType string

const (
	// ViolationPaidEventBlocked: automation was requested for an event
	// with a declared cost above zero. Raised before any network call.
	ViolationPaidEventBlocked ViolationType = "paid_event_blocked"

	// ViolationPaymentKeyword: rendered page content matched a payment
	// keyword (card, billing, cvv, ...).
	ViolationPaymentKeyword ViolationType = "payment_keyword"

	// ViolationPaymentField: rendered page content matched a known
	// payment form field selector.
	ViolationPaymentField ViolationType = "payment_field"

	// ViolationVisiblePrice: rendered page content contained visible
	// non-zero price text even though the declared cost was zero.
	ViolationVisiblePrice ViolationType = "visible_price"
)

// PaymentViolation is an immutable audit record raised by the safety
// guard. Accumulating violations past a threshold triggers a
// process-wide emergency stop.
type PaymentViolation struct {
	ID               string        `json:"id"`
	Type             ViolationType `json:"type"`
	EventFingerprint string        `json:"event_fingerprint"`
	Detail           string        `json:"detail"`
	DetectedAt       time.Time     `json:"detected_at"`
}
