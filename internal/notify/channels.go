package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/retry"
	"github.com/hearthplan/hearthplan/internal/tokenstore"
)

// Sender delivers one notification over one channel and returns the
// provider's message id when it assigns one.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) (providerMessageID string, err error)
}

// SMSSender delivers via an SMS gateway's HTTP API.
type SMSSender struct {
	gatewayURL string
	accountID  string
	authToken  string
	fromNumber string
	client     *http.Client
}

// NewSMSSender creates an SMS sender against the given gateway.
func NewSMSSender(gatewayURL, accountID, authToken, fromNumber string) *SMSSender {
	return &SMSSender{
		gatewayURL: gatewayURL,
		accountID:  accountID,
		authToken:  authToken,
		fromNumber: fromNumber,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Send posts the message to the gateway. Gateway 5xx responses are
// transient; 4xx responses fail immediately.
func (s *SMSSender) Send(ctx context.Context, n *models.Notification) (string, error) {
	form := url.Values{}
	form.Set("From", s.fromNumber)
	form.Set("To", n.Recipient)
	form.Set("Body", n.Body)

	endpoint := fmt.Sprintf("%s/accounts/%s/messages", s.gatewayURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("sms gateway request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", retry.Transient(fmt.Errorf("sms gateway returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sms gateway rejected message: status %d", resp.StatusCode)
	}

	var body struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode sms gateway response: %w", err)
	}

	return body.SID, nil
}

// EmailSender delivers via a mail provider's HTTP API using the
// credential store; tokens are refreshed transparently before use.
type EmailSender struct {
	apiURL   string
	userID   string
	provider string
	from     string
	tokens   *tokenstore.Store
	client   *http.Client
}

// NewEmailSender creates an email sender backed by the token store.
func NewEmailSender(apiURL, userID, provider, from string, tokens *tokenstore.Store) *EmailSender {
	return &EmailSender{
		apiURL:   apiURL,
		userID:   userID,
		provider: provider,
		from:     from,
		tokens:   tokens,
		client:   &http.Client{Timeout: 20 * time.Second},
	}
}

// Send posts the message to the mail API. The returned provider message
// id threads inbound replies back to this notification.
func (s *EmailSender) Send(ctx context.Context, n *models.Notification) (string, error) {
	accessToken, err := s.tokens.AccessToken(ctx, s.userID, s.provider)
	if err != nil {
		return "", fmt.Errorf("failed to obtain mail token: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"from":    s.from,
		"to":      n.Recipient,
		"subject": n.Subject,
		"body":    n.Body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/messages/send", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("mail api request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", retry.Transient(fmt.Errorf("mail api returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("mail api rejected message: status %d", resp.StatusCode)
	}

	var body struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode mail api response: %w", err)
	}

	return body.MessageID, nil
}
