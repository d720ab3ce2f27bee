package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hearthplan/hearthplan/internal/tokenstore"
)

// HTTPChecker queries the calendar collaborator service. Calendar
// access authenticates with an OAuth token from the token store.
type HTTPChecker struct {
	baseURL string
	userID  string
	tokens  *tokenstore.Store
	client  *http.Client
}

// NewHTTPChecker creates a checker against the calendar service.
func NewHTTPChecker(baseURL, userID string, tokens *tokenstore.Store) *HTTPChecker {
	return &HTTPChecker{
		baseURL: baseURL,
		userID:  userID,
		tokens:  tokens,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// CheckConflicts asks the calendar service for conflicts around the
// given start time.
func (c *HTTPChecker) CheckConflicts(ctx context.Context, start time.Time) (ConflictResult, error) {
	token, err := c.tokens.AccessToken(ctx, c.userID, "calendar")
	if err != nil {
		return ConflictResult{}, fmt.Errorf("failed to get calendar token: %w", err)
	}

	endpoint := fmt.Sprintf("%s/conflicts?start=%s", c.baseURL,
		url.QueryEscape(start.Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ConflictResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return ConflictResult{}, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ConflictResult{}, fmt.Errorf("calendar service returned status %d", resp.StatusCode)
	}

	var result ConflictResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ConflictResult{}, fmt.Errorf("failed to decode conflict response: %w", err)
	}
	return result, nil
}
