package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// Forecast is the weather collaborator's answer for one date/location.
// IsOutdoorFriendly is nil when the provider omits a verdict of its
// own; Suitable then falls back to the local thresholds.
type Forecast struct {
	Temperature         float64 `json:"temperature"`
	Condition           string  `json:"condition"`
	PrecipitationChance float64 `json:"precipitation_chance"`
	WindSpeed           float64 `json:"wind_speed"`
	IsOutdoorFriendly   *bool   `json:"is_outdoor_friendly,omitempty"`
}

// Suitable reports whether the forecast allows an outdoor event. The
// provider's own verdict is authoritative when present.
func (f Forecast) Suitable() bool {
	if f.IsOutdoorFriendly != nil {
		return *f.IsOutdoorFriendly
	}
	return OutdoorFriendly(f)
}

// Provider fetches a forecast for an event's date and location.
type Provider interface {
	Forecast(ctx context.Context, date time.Time, loc models.Location) (*Forecast, error)
}

// HTTPProvider calls an external forecast service.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider against the given service URL.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Forecast fetches the forecast for a date and location.
func (p *HTTPProvider) Forecast(ctx context.Context, date time.Time, loc models.Location) (*Forecast, error) {
	q := url.Values{}
	q.Set("date", date.Format("2006-01-02"))
	q.Set("key", p.apiKey)
	if loc.HasCoordinates() {
		q.Set("lat", fmt.Sprintf("%f", *loc.Latitude))
		q.Set("lng", fmt.Sprintf("%f", *loc.Longitude))
	} else {
		q.Set("address", loc.Address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build forecast request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast service returned status %d", resp.StatusCode)
	}

	var forecast Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}

	return &forecast, nil
}

// OutdoorFriendly applies local thresholds when the provider does not
// supply a verdict of its own.
func OutdoorFriendly(f Forecast) bool {
	return f.PrecipitationChance < 40 &&
		f.Temperature >= 5 && f.Temperature <= 35 &&
		f.WindSpeed < 30
}
