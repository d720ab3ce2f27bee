package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDriver talks to the headless-browser collaborator service over
// its session API.
type HTTPDriver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDriver creates a driver against the collaborator's base URL.
func NewHTTPDriver(baseURL string) *HTTPDriver {
	return &HTTPDriver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewSession opens a fresh browser session.
func (d *HTTPDriver) NewSession(ctx context.Context) (Session, error) {
	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := d.post(ctx, "/sessions", nil, &created); err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	return &httpSession{driver: d, id: created.SessionID}, nil
}

func (d *HTTPDriver) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("automation service returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type httpSession struct {
	driver *HTTPDriver
	id     string
}

func (s *httpSession) Navigate(ctx context.Context, url string) error {
	return s.driver.post(ctx, s.path("/navigate"), map[string]string{"url": url}, nil)
}

func (s *httpSession) Fill(ctx context.Context, selector, value string) error {
	return s.driver.post(ctx, s.path("/fill"), map[string]string{
		"selector": selector,
		"value":    value,
	}, nil)
}

func (s *httpSession) Content(ctx context.Context) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := s.driver.post(ctx, s.path("/content"), nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (s *httpSession) Submit(ctx context.Context, selector string) error {
	return s.driver.post(ctx, s.path("/submit"), map[string]string{"selector": selector}, nil)
}

func (s *httpSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.driver.post(ctx, s.path("/close"), nil, nil)
}

func (s *httpSession) path(action string) string {
	return "/sessions/" + s.id + action
}
