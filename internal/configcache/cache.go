// Package configcache holds the last configuration received from the collector.
//
// The sampling loop reads it every cycle without touching the network; the
// delivery worker refreshes it.
package configcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
	models "github.com/Schera-ole/hostagent/internal/model"
)

// DefaultFetchTimeout bounds a single configuration fetch.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher retrieves the current configuration from the collector.
type Fetcher interface {
	FetchConfig(ctx context.Context, token string) (models.Configuration, error)
}

// Cache is a thread-safe holder of the current Configuration.
type Cache struct {
	// mu guards config, fetched and refreshedAt
	mu sync.RWMutex

	config      models.Configuration
	fetched     bool
	refreshedAt time.Time

	fetcher      Fetcher
	token        string
	fetchTimeout time.Duration
	logger       *zap.SugaredLogger
}

// New creates a cache serving the default configuration until the first
// successful Refresh.
func New(fetcher Fetcher, token string, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		config:       models.DefaultConfiguration(),
		fetcher:      fetcher,
		token:        token,
		fetchTimeout: DefaultFetchTimeout,
		logger:       logger,
	}
}

// SetFetchTimeout overrides the per-fetch timeout. Non-positive values are ignored.
func (c *Cache) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		c.fetchTimeout = d
	}
}

// Get returns a copy of the current configuration. It never blocks on I/O.
func (c *Cache) Get() models.Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.Clone()
}

// Refresh fetches a new configuration and replaces the cached one on success.
//
// On failure the previous configuration stays in place and the returned
// error wraps ErrConfigFetch. No lock is held while fetching.
func (c *Cache) Refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	config, err := c.fetcher.FetchConfig(fetchCtx, c.token)
	if err != nil {
		return fmt.Errorf("%w: %w", internalerrors.ErrConfigFetch, err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", internalerrors.ErrConfigFetch, err)
	}

	config = config.Clone()
	c.mu.Lock()
	c.config = config
	c.fetched = true
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debugw("configuration refreshed",
		"enabled", config.Enabled,
		"interval", config.Interval,
	)
	return nil
}

// Fetched reports whether at least one refresh has succeeded.
func (c *Cache) Fetched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetched
}

// LastRefresh returns the time of the last successful refresh, zero if none.
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}
