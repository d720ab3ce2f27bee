package models

import (
	"time"
)

// Token is a stored OAuth credential for one (user, provider) pair,
// backing outbound email and calendar access.
type Token struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ExpiresWithin reports whether the access token expires inside the
// given window. The notification sender refreshes tokens within five
// minutes of expiry before use.
func (t Token) ExpiresWithin(window time.Duration) bool {
	return time.Until(t.ExpiresAt) <= window
}
