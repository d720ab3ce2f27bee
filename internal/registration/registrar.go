// Package registration attempts unattended registration for zero-cost
// events under an automation-proof payment detector. The invariant is
// absolute: automation never submits payment information.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hearthplan/hearthplan/internal/automation"
	"github.com/hearthplan/hearthplan/internal/metrics"
	"github.com/hearthplan/hearthplan/internal/models"
)

// DefaultEmergencyThreshold is how many accumulated payment violations
// trip the process-wide emergency stop.
const DefaultEmergencyThreshold = 3

// ErrEmergencyStopped is returned once accumulated violations exceed
// the threshold; the registrar fails closed rather than continuing to
// attempt automation.
var ErrEmergencyStopped = errors.New("registration automation emergency-stopped after repeated payment violations")

// Store persists attempts and violations.
type Store interface {
	InsertAttempt(ctx context.Context, attempt *models.RegistrationAttempt) error
	InsertViolation(ctx context.Context, violation *models.PaymentViolation) error
}

// EventTransitioner applies conditional event status updates.
type EventTransitioner interface {
	TransitionStatus(ctx context.Context, fingerprint string, from, to models.EventStatus) (bool, error)
}

// ContactSource supplies the household contact details used to fill
// registration forms.
type ContactSource interface {
	Get(ctx context.Context) (models.HouseholdConfig, error)
}

// Registrar drives the browser-automation collaborator for approved
// free events.
type Registrar struct {
	driver    automation.Driver
	store     Store
	events    EventTransitioner
	contacts  ContactSource
	threshold int64
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time

	violations atomic.Int64
	stopped    atomic.Bool
}

// NewRegistrar creates a registrar with the given emergency threshold.
func NewRegistrar(driver automation.Driver, store Store, events EventTransitioner, contacts ContactSource, threshold int, collector *metrics.Collector, logger *slog.Logger) *Registrar {
	if threshold <= 0 {
		threshold = DefaultEmergencyThreshold
	}
	return &Registrar{
		driver:    driver,
		store:     store,
		events:    events,
		contacts:  contacts,
		threshold: int64(threshold),
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Stopped reports whether the emergency stop has tripped.
func (r *Registrar) Stopped() bool {
	return r.stopped.Load()
}

// SeedViolations initializes the violation counter from persisted
// history so the emergency stop survives restarts.
func (r *Registrar) SeedViolations(count int64) {
	r.violations.Store(count)
	if count >= r.threshold {
		r.stopped.Store(true)
		r.metrics.SetEmergencyStop(true)
		r.logger.Warn("emergency stop active from persisted violations", "count", count)
	}
}

// Register attempts unattended registration for the event. The
// pre-flight cost guard runs synchronously before any automation call;
// a paid event never reaches the collaborator. Every attempt, success
// or failure, produces a RegistrationAttempt with payment_completed
// false by construction.
func (r *Registrar) Register(ctx context.Context, event *models.CanonicalEvent, actor string) (*models.RegistrationAttempt, error) {
	if r.stopped.Load() {
		return nil, ErrEmergencyStopped
	}

	// Pre-flight guard: declared cost above zero is a violation, raised
	// before any network call.
	if event.Cost > 0 {
		violation := &ViolationError{
			Type:   models.ViolationPaidEventBlocked,
			Detail: fmt.Sprintf("automation requested for paid event (declared cost $%.2f)", event.Cost),
		}
		r.recordViolation(ctx, event, violation)
		attempt := r.recordAttempt(ctx, event, actor, func(a *models.RegistrationAttempt) {
			a.ErrorMessage = violation.Error()
			a.PaymentRequired = true
			a.PaymentAmount = event.Cost
		})
		return attempt, violation
	}

	changed, err := r.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusApproved, models.EventStatusRegistering)
	if err != nil {
		return nil, fmt.Errorf("failed to mark event registering: %w", err)
	}
	if !changed {
		return nil, fmt.Errorf("event %s is not in approved status", event.Fingerprint)
	}

	attempt, err := r.runAutomation(ctx, event, actor)
	if err != nil {
		var violation *ViolationError
		if errors.As(err, &violation) {
			r.recordViolation(ctx, event, violation)
		}
		if _, terr := r.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusRegistering, models.EventStatusRegistrationFailed); terr != nil {
			r.logger.Error("failed to mark event registration_failed", "event", event.Fingerprint, "error", terr)
		}
		return attempt, err
	}

	if _, terr := r.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusRegistering, models.EventStatusRegistered); terr != nil {
		r.logger.Error("failed to mark event registered", "event", event.Fingerprint, "error", terr)
	}

	return attempt, nil
}

// MarkManual records the intentional bypass of automation (e.g. a paid
// event routed to a human) and moves the event to
// manual_registration_sent.
func (r *Registrar) MarkManual(ctx context.Context, event *models.CanonicalEvent) error {
	changed, err := r.events.TransitionStatus(ctx, event.Fingerprint, models.EventStatusApproved, models.EventStatusManualSent)
	if err != nil {
		return fmt.Errorf("failed to mark event for manual registration: %w", err)
	}
	if !changed {
		return fmt.Errorf("event %s is not in approved status", event.Fingerprint)
	}
	r.logger.Info("event routed to manual registration", "event", event.Fingerprint, "cost", event.Cost)
	return nil
}

var confirmationRe = regexp.MustCompile(`(?i)confirmation(?:\s+(?:number|code))?[:#]?\s+([A-Za-z0-9-]{4,})`)

func (r *Registrar) runAutomation(ctx context.Context, event *models.CanonicalEvent, actor string) (*models.RegistrationAttempt, error) {
	fail := func(err error) (*models.RegistrationAttempt, error) {
		attempt := r.recordAttempt(ctx, event, actor, func(a *models.RegistrationAttempt) {
			a.ErrorMessage = err.Error()
		})
		return attempt, err
	}

	if event.RegistrationURL == "" {
		return fail(fmt.Errorf("event has no registration URL"))
	}

	session, err := r.driver.NewSession(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to open automation session: %w", err))
	}
	defer session.Close()

	if err := session.Navigate(ctx, event.RegistrationURL); err != nil {
		return fail(fmt.Errorf("failed to load registration page: %w", err))
	}

	// Runtime page guard, first pass: the page as loaded.
	content, err := session.Content(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to read registration page: %w", err))
	}
	if violation := ScanContent(content); violation != nil {
		return fail(violation)
	}

	contact, err := r.contacts.Get(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to load household contact details: %w", err))
	}

	fields := map[string]string{
		`input[name="name"]`:  contact.ContactName,
		`input[name="email"]`: contact.ContactEmail,
		`input[name="phone"]`: contact.ContactPhone,
	}
	for selector, value := range fields {
		if value == "" {
			continue
		}
		if err := session.Fill(ctx, selector, value); err != nil {
			return fail(fmt.Errorf("failed to fill %s: %w", selector, err))
		}
	}

	// Second pass immediately before submission: filling fields can
	// reveal payment sections dynamically.
	content, err = session.Content(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to re-read registration page: %w", err))
	}
	if violation := ScanContent(content); violation != nil {
		return fail(violation)
	}

	if err := session.Submit(ctx, "form"); err != nil {
		return fail(fmt.Errorf("failed to submit registration form: %w", err))
	}

	confirmation := ""
	if after, err := session.Content(ctx); err == nil {
		if m := confirmationRe.FindStringSubmatch(after); len(m) == 2 {
			confirmation = m[1]
		}
	}

	attempt := r.recordAttempt(ctx, event, actor, func(a *models.RegistrationAttempt) {
		a.Success = true
		a.ConfirmationNumber = confirmation
	})

	r.logger.Info("registration succeeded",
		"event", event.Fingerprint,
		"confirmation", confirmation,
	)

	return attempt, nil
}

// recordAttempt builds and persists an attempt. PaymentCompleted stays
// at its zero value; no code path in this package assigns it.
func (r *Registrar) recordAttempt(ctx context.Context, event *models.CanonicalEvent, actor string, mutate func(*models.RegistrationAttempt)) *models.RegistrationAttempt {
	attempt := &models.RegistrationAttempt{
		ID:               uuid.NewString(),
		EventFingerprint: event.Fingerprint,
		TriggeredBy:      actor,
		AttemptedAt:      r.now(),
	}
	mutate(attempt)

	outcome := "failed"
	if attempt.Success {
		outcome = "success"
	}
	r.metrics.RegistrationAttempt(outcome)

	if err := r.store.InsertAttempt(ctx, attempt); err != nil {
		r.logger.Error("failed to persist registration attempt", "event", event.Fingerprint, "error", err)
	}

	return attempt
}

func (r *Registrar) recordViolation(ctx context.Context, event *models.CanonicalEvent, violation *ViolationError) {
	record := &models.PaymentViolation{
		ID:               uuid.NewString(),
		Type:             violation.Type,
		EventFingerprint: event.Fingerprint,
		Detail:           violation.Detail,
		DetectedAt:       r.now(),
	}

	if err := r.store.InsertViolation(ctx, record); err != nil {
		r.logger.Error("failed to persist payment violation", "event", event.Fingerprint, "error", err)
	}

	r.metrics.PaymentViolation(string(violation.Type))
	count := r.violations.Add(1)
	r.logger.Error("payment safety violation",
		"event", event.Fingerprint,
		"type", violation.Type,
		"detail", violation.Detail,
		"accumulated", count,
	)

	if count >= r.threshold && !r.stopped.Swap(true) {
		r.metrics.SetEmergencyStop(true)
		r.logger.Error("emergency stop: payment violation threshold reached, halting registration automation",
			"violations", count,
			"threshold", r.threshold,
		)
	}
}
