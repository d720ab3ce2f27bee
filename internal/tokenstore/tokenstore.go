// Package tokenstore manages the OAuth credentials backing outbound
// email and calendar access.
package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// RefreshWindow is how close to expiry a token is refreshed before use.
const RefreshWindow = 5 * time.Minute

// Repository persists tokens per (user, provider).
type Repository interface {
	Get(ctx context.Context, userID, provider string) (*models.Token, error)
	Save(ctx context.Context, token *models.Token) error
}

// Refresher exchanges a refresh token for a new access token with the
// upstream provider.
type Refresher interface {
	Refresh(ctx context.Context, token models.Token) (models.Token, error)
}

// Store hands out access tokens, transparently refreshing any that
// expire within the refresh window and persisting the refreshed token.
type Store struct {
	repo      Repository
	refresher Refresher
	logger    *slog.Logger
}

// New creates a token store.
func New(repo Repository, refresher Refresher, logger *slog.Logger) *Store {
	return &Store{repo: repo, refresher: refresher, logger: logger}
}

// AccessToken returns a usable access token for (user, provider).
func (s *Store) AccessToken(ctx context.Context, userID, provider string) (string, error) {
	token, err := s.repo.Get(ctx, userID, provider)
	if err != nil {
		return "", fmt.Errorf("failed to load token for %s/%s: %w", userID, provider, err)
	}
	if token == nil {
		return "", fmt.Errorf("no token stored for %s/%s", userID, provider)
	}

	if !token.ExpiresWithin(RefreshWindow) {
		return token.AccessToken, nil
	}

	refreshed, err := s.refresher.Refresh(ctx, *token)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token for %s/%s: %w", userID, provider, err)
	}

	if err := s.repo.Save(ctx, &refreshed); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	s.logger.Info("refreshed access token",
		"user", userID,
		"provider", provider,
		"expires_at", refreshed.ExpiresAt,
	)

	return refreshed.AccessToken, nil
}
