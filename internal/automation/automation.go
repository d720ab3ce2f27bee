// Package automation defines the boundary to the browser-automation
// collaborator that drives external registration forms. The safety
// guard operates purely on the rendered content and submission hook
// exposed here; the driver itself is an opaque capability.
package automation

import (
	"context"
)

// Session is one browser session against a registration form.
type Session interface {
	// Navigate loads the registration page.
	Navigate(ctx context.Context, url string) error

	// Fill sets a form field by selector.
	Fill(ctx context.Context, selector, value string) error

	// Content returns the currently rendered page text, including any
	// dynamically inserted elements.
	Content(ctx context.Context) (string, error)

	// Submit submits the form identified by selector.
	Submit(ctx context.Context, selector string) error

	// Close releases the session.
	Close() error
}

// Driver creates browser sessions.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
}
