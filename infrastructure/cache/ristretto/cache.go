// Package ristretto adapts a dgraph-io/ristretto in-process cache to the
// application cache port. It backs capture dedupe keys and journal snapshots.
package ristretto

import (
	"context"
	"time"

	ristretto "github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"mnemo-backend/application/ports"
	"mnemo-backend/pkg/errors"
	"mnemo-backend/pkg/observability"
)

// Cache wraps a ristretto cache behind the ports.Cache interface
type Cache struct {
	inner   *ristretto.Cache[string, []byte]
	logger  *zap.Logger
	metrics *observability.Collector
}

var _ ports.Cache = (*Cache)(nil)

// Options sizes the cache
type Options struct {
	MaxCostBytes int64
	NumCounters  int64
	BufferItems  int64
}

// DefaultOptions returns a 64 MiB cache sized for roughly a million keys
func DefaultOptions() Options {
	return Options{
		MaxCostBytes: 64 << 20,
		NumCounters:  1e6,
		BufferItems:  64,
	}
}

// New creates a cache with the given sizing
func New(opts Options, logger *zap.Logger, metrics *observability.Collector) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxCostBytes <= 0 || opts.NumCounters <= 0 || opts.BufferItems <= 0 {
		return nil, errors.NewValidationError("cache sizing values must be positive")
	}

	inner, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCostBytes,
		BufferItems: opts.BufferItems,
	})
	if err != nil {
		return nil, errors.NewInternalError("create cache").WithCause(err)
	}

	return &Cache{
		inner:   inner,
		logger:  logger.With(zap.String("component", "cache")),
		metrics: metrics,
	}, nil
}

// Get returns the value for key if present and unexpired
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	value, found := c.inner.Get(key)
	c.metrics.ObserveCache(found)
	if !found {
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Set stores value under key for ttl. A ttl of zero stores without expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("cache set")
	}
	stored := make([]byte, len(value))
	copy(stored, value)

	cost := int64(len(stored)) + int64(len(key))
	if !c.inner.SetWithTTL(key, stored, cost, ttl) {
		// admission rejection is not an error for a best-effort cache
		c.logger.Debug("cache admission rejected", zap.String("key", key))
	}
	return nil
}

// Delete removes key if present
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("cache delete")
	}
	c.inner.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied. Tests rely on it.
func (c *Cache) Wait() {
	c.inner.Wait()
}

// Close releases the cache resources
func (c *Cache) Close() {
	c.inner.Close()
}
