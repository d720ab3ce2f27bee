package filter

import (
	"context"
	"sync"
	"time"

	"github.com/hearthplan/hearthplan/internal/models"
)

// DefaultConfigTTL bounds how stale a household config snapshot may be.
// Edits take effect within one TTL without a restart.
const DefaultConfigTTL = 5 * time.Minute

// ConfigSource loads the current household configuration.
type ConfigSource interface {
	Get(ctx context.Context) (models.HouseholdConfig, error)
}

// ConfigCache serves time-bounded household config snapshots. Filters
// receive an explicit snapshot threaded through each call rather than
// reading shared mutable state.
type ConfigCache struct {
	source    ConfigSource
	ttl       time.Duration
	mu        sync.RWMutex
	snapshot  models.HouseholdConfig
	fetchedAt time.Time
}

// NewConfigCache creates a cache over the given source.
func NewConfigCache(source ConfigSource, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = DefaultConfigTTL
	}
	return &ConfigCache{source: source, ttl: ttl}
}

// Snapshot returns a fresh-enough config copy, refetching when stale.
// A fetch failure with a previously cached snapshot degrades to the
// stale copy rather than failing the filtering pass.
func (c *ConfigCache) Snapshot(ctx context.Context) (models.HouseholdConfig, error) {
	c.mu.RLock()
	fresh := !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl
	snapshot := c.snapshot
	hasPrior := !c.fetchedAt.IsZero()
	c.mu.RUnlock()

	if fresh {
		return snapshot, nil
	}

	loaded, err := c.source.Get(ctx)
	if err != nil {
		if hasPrior {
			return snapshot, nil
		}
		return models.HouseholdConfig{}, err
	}

	c.mu.Lock()
	c.snapshot = loaded
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return loaded, nil
}

// Context bundles everything a filtering pass needs: the household
// config snapshot and the evaluation clock.
type Context struct {
	Config models.HouseholdConfig
	Now    time.Time
}
