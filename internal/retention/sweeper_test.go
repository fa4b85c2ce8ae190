package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeArchiver struct {
	mu     sync.Mutex
	keys   []primitive.ObjectID
	failAt int // 1-based upload that fails, 0 never
}

func (a *fakeArchiver) ArchiveTrip(_ context.Context, trip models.Trip) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAt > 0 && len(a.keys)+1 == a.failAt {
		a.failAt = 0
		return "", errors.New("s3 unavailable")
	}
	a.keys = append(a.keys, trip.ID)
	return trip.ID.Hex(), nil
}

type sweepCounter map[string]int64

func (c sweepCounter) SweepRemoved(sweep string, n int64) { c[sweep] += n }

type registry map[string]jobs.Handler

func (r registry) Handle(queue, name string, h jobs.Handler) { r[queue+"/"+name] = h }

type fixture struct {
	stores  store.Stores
	ledger  *store.MemoryTripLedger
	cache   *cache.MemoryCache
	metrics sweepCounter
	now     time.Time
}

func newFixture() *fixture {
	stores := store.NewMemoryStores(time.UTC)
	return &fixture{
		stores:  stores,
		ledger:  stores.Trips.(*store.MemoryTripLedger),
		cache:   cache.NewMemoryCache(5 * time.Minute),
		metrics: sweepCounter{},
		now:     time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) sweeper(a *fakeArchiver) *Sweeper {
	d := Deps{
		Trips:    f.stores.Trips,
		Alerts:   f.stores.Alerts,
		Feedback: f.stores.Feedback,
		Cache:    f.cache,
		Metrics:  f.metrics,
		Policy: Policy{
			TripDays: 7, AlertDays: 30, FeedbackDays: 90, ArchiveDays: 30,
			CachePatterns: []string{"analytics:*", "bus:location:*"},
		},
	}
	if a != nil {
		d.Archiver = a
	}
	s := NewSweeper(d)
	s.now = func() time.Time { return f.now }
	return s
}

func (f *fixture) trip(daysAgo int, status string) models.Trip {
	start := f.now.Add(-time.Duration(daysAgo) * day)
	t := models.Trip{
		ID:        primitive.NewObjectID(),
		VehicleID: primitive.NewObjectID(),
		WindowDay: models.WindowDay(start, time.UTC),
		StartTime: start,
		Status:    status,
	}
	f.ledger.Insert(t)
	return t
}

func TestCleanupTripsKeepsOpenTrips(t *testing.T) {
	f := newFixture()
	old := f.trip(10, models.TripStatusCompleted)
	f.trip(10, models.TripStatusInProgress)
	f.trip(2, models.TripStatusCompleted)
	f.trip(8, models.TripStatusCancelled)

	n, err := f.sweeper(nil).CleanupTrips(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 2, f.metrics[JobCleanupTrips])

	trips, err := f.ledger.RecentTrips(context.Background(), old.VehicleID, 10)
	require.NoError(t, err)
	assert.Empty(t, trips)

	n, err = f.sweeper(nil).CleanupTrips(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a second run finds nothing")
}

func TestCleanupAlertsOnlyResolved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	vid := primitive.NewObjectID()
	for _, a := range []models.Alert{
		{VehicleID: vid, Type: models.AlertTypeOverspeed, Resolved: true, Timestamp: f.now.Add(-40 * day)},
		{VehicleID: vid, Type: models.AlertTypeOverspeed, Resolved: false, Timestamp: f.now.Add(-40 * day)},
		{VehicleID: vid, Type: models.AlertTypePanic, Resolved: true, Timestamp: f.now.Add(-5 * day)},
	} {
		a := a
		require.NoError(t, f.stores.Alerts.Create(ctx, &a))
	}

	n, err := f.sweeper(nil).CleanupAlerts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Len(t, f.stores.Alerts.(*store.MemoryAlertStore).All(), 2)
}

func TestCleanupFeedback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	fb := f.stores.Feedback.(*store.MemoryFeedbackStore)
	require.NoError(t, fb.Create(ctx, &models.Feedback{Rating: 4, CreatedAt: f.now.Add(-91 * day)}))
	require.NoError(t, fb.Create(ctx, &models.Feedback{Rating: 5, CreatedAt: f.now.Add(-89 * day)}))

	n, err := f.sweeper(nil).CleanupFeedback(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, fb.Len())
}

func TestClearCacheRemovesKeysWithoutTTL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.cache.SetJSON(ctx, "analytics:daily:2026-10-15", map[string]int{"trips": 3}, 0))
	require.NoError(t, f.cache.SetJSON(ctx, "analytics:daily:2026-10-16", map[string]int{"trips": 1}, time.Hour))
	require.NoError(t, f.cache.SetJSON(ctx, "bus:location:abc", models.CachedLocation{VehicleID: "abc"}, 0))
	require.NoError(t, f.cache.SetLocation(ctx, models.CachedLocation{VehicleID: "def"}))
	require.NoError(t, f.cache.SetJSON(ctx, "session:x", "keep", 0))

	n, err := f.sweeper(nil).ClearCache(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 3, f.cache.Len())
}

func TestClearCacheContinuesPastBadPattern(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.cache.SetJSON(ctx, "analytics:x", 1, 0))

	s := f.sweeper(nil)
	s.policy.CachePatterns = []string{"[", "analytics:*"}
	n, err := s.ClearCache(ctx)
	assert.Error(t, err)
	assert.EqualValues(t, 1, n)
}

func TestArchiveWithoutArchiverMarksTrips(t *testing.T) {
	f := newFixture()
	f.trip(31, models.TripStatusCompleted)
	f.trip(31, models.TripStatusInProgress)
	f.trip(29, models.TripStatusCompleted)

	n, err := f.sweeper(nil).Archive(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := f.ledger.FindArchivable(context.Background(), f.now, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1, "only the recent closed trip remains archivable")
}

func TestArchiveExportsInBatches(t *testing.T) {
	f := newFixture()
	for i := 0; i < archiveBatch+20; i++ {
		f.trip(40, models.TripStatusCompleted)
	}
	a := &fakeArchiver{}

	n, err := f.sweeper(a).Archive(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, archiveBatch+20, n)
	assert.Len(t, a.keys, archiveBatch+20)
	assert.EqualValues(t, archiveBatch+20, f.metrics[JobArchive])
}

func TestArchiveStopsOnUploadFailure(t *testing.T) {
	f := newFixture()
	for i := 0; i < 5; i++ {
		f.trip(40, models.TripStatusCompleted)
	}
	a := &fakeArchiver{failAt: 3}
	s := f.sweeper(a)

	n, err := s.Archive(context.Background())
	assert.ErrorContains(t, err, "s3 unavailable")
	assert.EqualValues(t, 2, n)

	n, err = s.Archive(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n, "the next run picks up what was left")
}

func TestRegisterHandlers(t *testing.T) {
	f := newFixture()
	f.trip(10, models.TripStatusCompleted)
	r := registry{}
	f.sweeper(nil).RegisterHandlers(r)

	for _, name := range []string{JobCleanupTrips, JobCleanupAlerts, JobCleanupFeedback, JobClearCache, JobArchive} {
		require.Contains(t, r, jobs.QueueCleanup+"/"+name)
	}
	require.NoError(t, r[jobs.QueueCleanup+"/"+JobCleanupTrips](context.Background(), &jobs.Job{}))
	assert.EqualValues(t, 1, f.metrics[JobCleanupTrips])
}
