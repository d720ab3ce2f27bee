package weather

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// DefaultCacheTTL is how long a forecast stays fresh for one
// (location, date) pair before it is refetched.
const DefaultCacheTTL = 6 * time.Hour

// Cache wraps a Provider with a TTL cache keyed by (location, date) to
// avoid one lookup per event per filtering pass.
type Cache struct {
	provider Provider
	ttl      time.Duration
	mu       sync.RWMutex
	entries  map[string]cacheEntry
}

type cacheEntry struct {
	forecast  Forecast
	fetchedAt time.Time
}

// NewCache creates a caching wrapper around the given provider.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[string]cacheEntry),
	}
}

// Forecast returns a cached forecast or fetches a fresh one. Stale
// entries are refetched rather than served.
func (c *Cache) Forecast(ctx context.Context, date time.Time, loc models.Location) (*Forecast, error) {
	key := cacheKey(date, loc)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if exists && time.Since(entry.fetchedAt) < c.ttl {
		forecast := entry.forecast
		return &forecast, nil
	}

	forecast, err := c.provider.Forecast(ctx, date, loc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{forecast: *forecast, fetchedAt: time.Now()}
	c.mu.Unlock()

	return forecast, nil
}

func cacheKey(date time.Time, loc models.Location) string {
	if loc.HasCoordinates() {
		return fmt.Sprintf("%.3f,%.3f|%s", *loc.Latitude, *loc.Longitude, date.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s|%s", loc.Address, date.Format("2006-01-02"))
}
