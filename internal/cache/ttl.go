// Package cache provides a single-value holder that refreshes itself after a
// fixed time-to-live.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoValue is returned by Get when a refresh failed and there is no
// previous value to fall back to. It wraps the refresh error.
var ErrNoValue = errors.New("cache: no value")

// RefreshFunc produces a fresh value for the cache.
type RefreshFunc[T any] func(ctx context.Context) (T, error)

// TTL caches the result of a RefreshFunc until now reaches the expiry instant.
// Safe for concurrent use; refreshes are serialized.
type TTL[T any] struct {
	name    string
	ttl     time.Duration
	refresh RefreshFunc[T]
	now     func() time.Time

	mu      sync.Mutex
	value   T
	has     bool
	expires time.Time
}

// NewTTL creates a cache named for logging that calls refresh on miss.
func NewTTL[T any](name string, ttl time.Duration, refresh RefreshFunc[T]) *TTL[T] {
	return &TTL[T]{
		name:    name,
		ttl:     ttl,
		refresh: refresh,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *TTL[T]) WithClock(now func() time.Time) *TTL[T] {
	c.now = now
	return c
}

// Get returns the cached value while it is fresh, refreshing it otherwise.
// A failed refresh falls back to the previous value without an error; the
// expiry is left untouched so the next Get retries.
func (c *TTL[T]) Get(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.has && c.now().Before(c.expires) {
		return c.value, nil
	}

	v, err := c.refreshLocked(ctx)
	if err == nil {
		return v, nil
	}
	if c.has {
		slog.Warn("cache refresh failed, serving previous value", "cache", c.name, "error", err)
		return c.value, nil
	}
	var zero T
	return zero, fmt.Errorf("%w (%s): %w", ErrNoValue, c.name, err)
}

// Refresh forces a refresh now and reports its error. On failure the previous
// value stays in place.
func (c *TTL[T]) Refresh(ctx context.Context) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.refreshLocked(ctx)
	if err != nil {
		return c.value, err
	}
	return v, nil
}

// Invalidate makes the next Get refresh regardless of expiry.
func (c *TTL[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires = time.Time{}
}

// Set stores v as if it had just been refreshed.
func (c *TTL[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(v)
}

// Peek returns the held value without refreshing. ok is false when nothing was
// ever stored or the value expired.
func (c *TTL[T]) Peek() (v T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.has && c.now().Before(c.expires)
}

func (c *TTL[T]) refreshLocked(ctx context.Context) (T, error) {
	v, err := c.refresh(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.store(v)
	return v, nil
}

func (c *TTL[T]) store(v T) {
	c.value = v
	c.has = true
	c.expires = c.now().Add(c.ttl)
}
