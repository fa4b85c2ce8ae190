// server/internal/cache/cache.go
package cache

import (
	"context"
	"fmt"
	"time"

	"ku-fleet-api-server/internal/models"
)

const locationKeyPrefix = "bus:location:"

// LocationKey is the cache key holding the latest known position of a vehicle.
func LocationKey(vehicleID string) string {
	return fmt.Sprintf("%s%s", locationKeyPrefix, vehicleID)
}

// AnalyticsKey namespaces derived analytics entries.
func AnalyticsKey(name string) string {
	return fmt.Sprintf("analytics:%s", name)
}

// Cache is the ephemeral key/value layer in front of MongoDB. Callers treat
// every error as non-fatal: the database stays authoritative.
type Cache interface {
	// SetLocation stores loc under LocationKey(loc.VehicleID) with the cache TTL.
	SetLocation(ctx context.Context, loc models.CachedLocation) error
	// GetLocation returns (nil, nil) when nothing is cached or the entry expired.
	GetLocation(ctx context.Context, vehicleID string) (*models.CachedLocation, error)
	DeleteLocation(ctx context.Context, vehicleID string) error

	// SetJSON stores v as JSON. A zero ttl stores the key without expiry.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// GetJSON decodes the value of key into dst and reports whether it existed.
	GetJSON(ctx context.Context, key string, dst any) (bool, error)

	// PurgeWithoutTTL deletes keys matching pattern that carry no expiry and
	// returns how many were removed.
	PurgeWithoutTTL(ctx context.Context, pattern string) (int64, error)

	Ping(ctx context.Context) error
}
