package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 300*time.Second, cfg.Tracking.LocationTTL)
	assert.Equal(t, 80.0, cfg.Tracking.OverspeedThreshold)
	assert.Equal(t, 5, cfg.Jobs.Trip.Concurrency)
	assert.Equal(t, 3, cfg.Jobs.Analytics.Concurrency)
	assert.Equal(t, 2, cfg.Jobs.Cleanup.Concurrency)
	assert.Equal(t, 3, cfg.Jobs.Trip.Attempts)
	assert.Equal(t, 1, cfg.Jobs.Cleanup.Attempts)
	assert.Equal(t, 7, cfg.Retention.TripDays)
	assert.Equal(t, 30, cfg.Retention.AlertDays)
	assert.Equal(t, 90, cfg.Retention.FeedbackDays)
	assert.Equal(t, 30, cfg.Retention.ArchiveDays)
	assert.Equal(t, []string{"analytics:*", "bus:location:*"}, cfg.Retention.CachePatterns)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("tracking:\n  locationTTL: 120s\n  timezone: UTC\nretention:\n  tripDays: 3\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))

	t.Setenv("ALERT_RETENTION_DAYS", "14")
	t.Setenv("MONGO_DBNAME", "fleet_test")
	t.Setenv("TZ", "")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Tracking.LocationTTL)
	assert.Equal(t, 3, cfg.Retention.TripDays)
	assert.Equal(t, 14, cfg.Retention.AlertDays)
	assert.Equal(t, "fleet_test", cfg.Mongo.DBName)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := Config{Tracking: TrackingConfig{Timezone: "Mars/Olympus"}}
	_, err := cfg.Location()
	assert.Error(t, err)
}
