// server/internal/cache/memory.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"ku-fleet-api-server/internal/models"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero: no expiry
}

// MemoryCache is a process-local Cache used when Redis is unreachable and in tests.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(locationTTL time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     locationTTL,
		now:     time.Now,
	}
}

// SetClock replaces the time source. Tests use it to expire entries.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) SetLocation(ctx context.Context, loc models.CachedLocation) error {
	return c.SetJSON(ctx, LocationKey(loc.VehicleID), loc, c.ttl)
}

func (c *MemoryCache) GetLocation(ctx context.Context, vehicleID string) (*models.CachedLocation, error) {
	var loc models.CachedLocation
	ok, err := c.GetJSON(ctx, LocationKey(vehicleID), &loc)
	if err != nil || !ok {
		return nil, err
	}
	return &loc, nil
}

func (c *MemoryCache) DeleteLocation(_ context.Context, vehicleID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, LocationKey(vehicleID))
	return nil
}

func (c *MemoryCache) SetJSON(_ context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{value: b}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.value, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *MemoryCache) PurgeWithoutTTL(_ context.Context, pattern string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed int64
	for key, e := range c.entries {
		match, err := path.Match(pattern, key)
		if err != nil {
			return removed, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if !match {
			continue
		}
		if c.expired(e) {
			delete(c.entries, key)
			continue
		}
		if e.expiresAt.IsZero() {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

// Len counts live entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !c.expired(e) {
			n++
		}
	}
	return n
}

func (c *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
