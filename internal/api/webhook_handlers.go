package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hearthplan/hearthplan/internal/notify"
)

// WebhookHandler receives inbound replies from the SMS and email
// providers. Neither provider includes our notification ID, so replies
// are matched to the latest open notification for the sender.
type WebhookHandler struct {
	notifier *notify.Service
	logger   *slog.Logger
}

// NewWebhookHandler creates the inbound webhook handler.
func NewWebhookHandler(notifier *notify.Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{notifier: notifier, logger: logger}
}

// smsWebhookPayload is the inbound SMS provider callback shape.
type smsWebhookPayload struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// InboundSMS handles POST /api/webhooks/sms.
func (h *WebhookHandler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload smsWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.From == "" || payload.Body == "" {
		http.Error(w, "Missing from or body", http.StatusBadRequest)
		return
	}

	h.dispatch(w, r, payload.From, payload.Body, "sms")
}

// emailWebhookPayload is the inbound email provider callback shape.
type emailWebhookPayload struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// InboundEmail handles POST /api/webhooks/email.
func (h *WebhookHandler) InboundEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload emailWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.From == "" || payload.Text == "" {
		http.Error(w, "Missing from or text", http.StatusBadRequest)
		return
	}

	h.dispatch(w, r, payload.From, payload.Text, "email")
}

func (h *WebhookHandler) dispatch(w http.ResponseWriter, r *http.Request, sender, text, channel string) {
	notification, err := h.notifier.MatchInbound(r.Context(), sender, text)
	if err != nil {
		h.logger.Error("failed to process inbound reply", "channel", channel, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Unmatched replies are acknowledged so the provider stops retrying.
	if notification == nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": "unmatched"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"result":          "recorded",
		"notification_id": notification.ID,
		"status":          string(notification.Status),
	})
}
