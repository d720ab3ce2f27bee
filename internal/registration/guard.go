package registration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hearthplan/hearthplan/internal/models"
)

// ViolationError is the non-retryable error class for payment safety
// violations. It is distinct from ordinary automation failures and
// always aborts the attempt.
type ViolationError struct {
	Type   models.ViolationType
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("payment safety violation (%s): %s", e.Type, e.Detail)
}

// paymentKeywords abort an attempt when found in rendered page content.
var paymentKeywords = []string{
	"credit card", "card number", "debit card", "billing address",
	"cvv", "cvc", "security code", "expiry date", "expiration date",
	"payment method", "payment details", "pay now", "checkout total",
	"visa", "mastercard", "amex", "paypal",
}

// paymentSelectors are known payment form field markers. The automation
// collaborator renders selectors into the content it exposes, so a
// substring scan covers both markup and rendered text.
var paymentSelectors = []string{
	`name="card_number"`, `name="cardNumber"`, `name="cc-number"`,
	`autocomplete="cc-number"`, `autocomplete="cc-csc"`,
	`id="cc-number"`, `class="payment-form"`, `id="payment"`,
	`name="cvv"`, `name="cvc"`,
}

// visiblePriceRe matches non-zero dollar amounts in visible text. A
// page can upsell even when the declared event cost was zero, so this
// runs on every attempt.
var visiblePriceRe = regexp.MustCompile(`\$\s*[1-9][0-9]*(?:\.[0-9]{2})?`)

// ScanContent inspects rendered page content for payment signals and
// returns a violation when any is found. Runs before any form
// submission, independent of the declared event cost.
func ScanContent(content string) *ViolationError {
	lower := strings.ToLower(content)

	for _, kw := range paymentKeywords {
		if strings.Contains(lower, kw) {
			return &ViolationError{
				Type:   models.ViolationPaymentKeyword,
				Detail: fmt.Sprintf("matched payment keyword %q", kw),
			}
		}
	}

	for _, sel := range paymentSelectors {
		if strings.Contains(lower, strings.ToLower(sel)) {
			return &ViolationError{
				Type:   models.ViolationPaymentField,
				Detail: fmt.Sprintf("matched payment field selector %q", sel),
			}
		}
	}

	if price := visiblePriceRe.FindString(content); price != "" {
		return &ViolationError{
			Type:   models.ViolationVisiblePrice,
			Detail: fmt.Sprintf("visible price text %q on registration page", price),
		}
	}

	return nil
}
