package cache

import (
	"context"
	"testing"
	"time"

	"ku-fleet-api-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"location", LocationKey("65f0c0ffee"), "bus:location:65f0c0ffee"},
		{"analytics", AnalyticsKey("daily:2024-03-01"), "analytics:daily:2024-03-01"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.got)
		})
	}
}

func TestMemoryCacheLocationRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryCache(300 * time.Second)
	c.SetClock(func() time.Time { return now })

	loc := models.CachedLocation{VehicleID: "v1", Lat: 24.9, Lng: 67.1, Speed: models.Float(42), Timestamp: now}
	require.NoError(t, c.SetLocation(ctx, loc))

	got, err := c.GetLocation(ctx, "v1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 24.9, got.Lat)
	assert.Equal(t, 42.0, *got.Speed)

	require.NoError(t, c.DeleteLocation(ctx, "v1"))
	got, err = c.GetLocation(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCacheLocationExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryCache(300 * time.Second)
	c.SetClock(func() time.Time { return now })

	require.NoError(t, c.SetLocation(ctx, models.CachedLocation{VehicleID: "v1", Lat: 1, Lng: 2, Timestamp: now}))

	now = now.Add(299 * time.Second)
	got, err := c.GetLocation(ctx, "v1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	now = now.Add(time.Second)
	got, err = c.GetLocation(ctx, "v1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCachePurgeWithoutTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)

	require.NoError(t, c.SetJSON(ctx, "analytics:stale", map[string]int{"n": 1}, 0))
	require.NoError(t, c.SetJSON(ctx, "analytics:fresh", map[string]int{"n": 2}, time.Hour))
	require.NoError(t, c.SetJSON(ctx, "other:nottl", 3, 0))

	removed, err := c.PurgeWithoutTTL(ctx, "analytics:*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var v map[string]int
	ok, err := c.GetJSON(ctx, "analytics:stale", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.GetJSON(ctx, "analytics:fresh", &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, v["n"])

	assert.Equal(t, 2, c.Len())
}
