package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// OAuthRefresher exchanges refresh tokens against a standard OAuth2
// token endpoint.
type OAuthRefresher struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewOAuthRefresher creates a refresher for the given token endpoint.
func NewOAuthRefresher(tokenURL, clientID, clientSecret string) *OAuthRefresher {
	return &OAuthRefresher{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 15 * time.Second},
	}
}

// Refresh performs the refresh_token grant. The refresh token is kept
// unless the provider rotates it.
func (r *OAuthRefresher) Refresh(ctx context.Context, token models.Token) (models.Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {token.RefreshToken},
		"client_id":     {r.clientID},
		"client_secret": {r.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return models.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return models.Token{}, fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Token{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var grant struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return models.Token{}, fmt.Errorf("failed to decode token response: %w", err)
	}

	refreshed := token
	refreshed.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		refreshed.RefreshToken = grant.RefreshToken
	}
	refreshed.ExpiresAt = time.Now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	refreshed.UpdatedAt = time.Now()

	return refreshed, nil
}
