package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hearthplan/hearthplan/internal/models"
)

// TokenRepository stores OAuth credentials per (user, provider) pair.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a token repository.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Get retrieves the stored token for a user and provider, or nil.
func (r *TokenRepository) Get(ctx context.Context, userID, provider string) (*models.Token, error) {
	var token models.Token
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, expires_at, updated_at
		FROM tokens
		WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(
		&token.UserID,
		&token.Provider,
		&token.AccessToken,
		&token.RefreshToken,
		&token.ExpiresAt,
		&token.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// Save upserts a token.
func (r *TokenRepository) Save(ctx context.Context, token *models.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (user_id, provider, access_token, refresh_token, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`,
		token.UserID,
		token.Provider,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}
