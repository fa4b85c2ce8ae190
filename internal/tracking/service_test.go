package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/safety"
	"ku-fleet-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []*jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, queue, name string, payload any, _ ...jobs.Option) (*jobs.Job, error) {
	if q.err != nil {
		return nil, q.err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	j := &jobs.Job{ID: primitive.NewObjectID().Hex(), Queue: queue, Name: name, Payload: body}
	q.jobs = append(q.jobs, j)
	return j, nil
}

func (q *recordingQueue) last(t *testing.T) *jobs.Job {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.jobs)
	return q.jobs[len(q.jobs)-1]
}

type brokenCache struct {
	*cache.MemoryCache
}

func (brokenCache) SetLocation(context.Context, models.CachedLocation) error {
	return errors.New("redis: connection refused")
}

type recordingPublisher struct {
	mu        sync.Mutex
	alerts    []models.Alert
	positions []models.CachedLocation
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) PublishPosition(_ context.Context, l models.CachedLocation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = append(p.positions, l)
	return nil
}

type fixture struct {
	svc       *Service
	stores    store.Stores
	cache     *cache.MemoryCache
	queue     *recordingQueue
	publisher *recordingPublisher
	vehicle   *models.Vehicle
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stores:    store.NewMemoryStores(time.UTC),
		cache:     cache.NewMemoryCache(300 * time.Second),
		queue:     &recordingQueue{},
		publisher: &recordingPublisher{},
		now:       time.Now().UTC().Truncate(time.Second),
	}
	f.vehicle = &models.Vehicle{BusNumber: "KU-07", TrackerID: "IMEI-7", Status: models.VehicleStatusActive, Capacity: 50}
	require.NoError(t, f.stores.Vehicles.Create(context.Background(), f.vehicle))

	f.svc = NewService(Deps{
		Vehicles:  f.stores.Vehicles,
		Trips:     f.stores.Trips,
		Alerts:    f.stores.Alerts,
		Feedback:  f.stores.Feedback,
		Cache:     f.cache,
		Queue:     f.queue,
		Evaluator: safety.NewEvaluator(80),
		Publisher: f.publisher,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) report(lat, lng float64, speed *float64) PositionReport {
	return PositionReport{VehicleID: f.vehicle.ID.Hex(), Lat: &lat, Lng: &lng, Speed: speed}
}

func TestReportPositionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lat, lng := 24.9, 67.1
	bad := 91.0

	cases := []struct {
		name string
		r    PositionReport
		want error
	}{
		{"no vehicle reference", PositionReport{Lat: &lat, Lng: &lng}, ErrInvalidReport},
		{"missing lat", PositionReport{VehicleID: f.vehicle.ID.Hex(), Lng: &lng}, ErrInvalidCoordinates},
		{"missing lng", PositionReport{VehicleID: f.vehicle.ID.Hex(), Lat: &lat}, ErrInvalidCoordinates},
		{"lat out of range", PositionReport{VehicleID: f.vehicle.ID.Hex(), Lat: &bad, Lng: &lng}, ErrInvalidCoordinates},
		{"negative speed", PositionReport{VehicleID: f.vehicle.ID.Hex(), Lat: &lat, Lng: &lng, Speed: models.Float(-1)}, ErrInvalidReport},
		{"unknown vehicle", PositionReport{VehicleID: primitive.NewObjectID().Hex(), Lat: &lat, Lng: &lng}, ErrVehicleNotFound},
		{"malformed vehicle id", PositionReport{VehicleID: "bus-7", Lat: &lat, Lng: &lng}, ErrVehicleNotFound},
		{"unknown tracker", PositionReport{TrackerID: "IMEI-404", Lat: &lat, Lng: &lng}, ErrVehicleNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.ReportPosition(ctx, c.r)
			assert.ErrorIs(t, err, c.want)
		})
	}
	assert.Empty(t, f.queue.jobs)
	assert.Equal(t, 0, f.cache.Len())
}

func TestReportPositionAccepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accepted, err := f.svc.ReportPosition(ctx, f.report(24.9, 67.1, models.Float(42)))
	require.NoError(t, err)
	assert.Equal(t, f.vehicle.ID.Hex(), accepted.VehicleID)
	assert.True(t, accepted.Timestamp.Equal(f.now), "timestamp defaults to receipt time")
	assert.NotEmpty(t, accepted.JobID)

	cached, err := f.cache.GetLocation(ctx, f.vehicle.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 24.9, cached.Lat)

	v, err := f.stores.Vehicles.Get(ctx, f.vehicle.ID)
	require.NoError(t, err)
	require.NotNil(t, v.LastKnownLocation)
	assert.Equal(t, 67.1, v.LastKnownLocation.Lng)

	job := f.queue.last(t)
	assert.Equal(t, jobs.QueueTrip, job.Queue)
	assert.Equal(t, JobSaveTripSegment, job.Name)
	var p SegmentPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, 42.0, *p.Speed)
}

func TestReportPositionByTracker(t *testing.T) {
	f := newFixture(t)
	lat, lng := 24.9, 67.1
	ts := f.now.Add(-time.Minute)

	accepted, err := f.svc.ReportPosition(context.Background(), PositionReport{TrackerID: "IMEI-7", Lat: &lat, Lng: &lng, Timestamp: &ts})
	require.NoError(t, err)
	assert.Equal(t, f.vehicle.ID.Hex(), accepted.VehicleID)
	assert.True(t, accepted.Timestamp.Equal(ts))
}

func TestReportPositionSurvivesCacheFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.cache = brokenCache{f.cache}

	_, err := f.svc.ReportPosition(context.Background(), f.report(24.9, 67.1, nil))
	require.NoError(t, err)
	assert.Len(t, f.queue.jobs, 1)
}

func TestReportPositionEnqueueFailureKeepsSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.err = errors.New("redis down")

	_, err := f.svc.ReportPosition(ctx, f.report(24.9, 67.1, nil))
	assert.ErrorIs(t, err, ErrEnqueueFailed)

	cached, _ := f.cache.GetLocation(ctx, f.vehicle.ID.Hex())
	assert.NotNil(t, cached)
	v, _ := f.stores.Vehicles.Get(ctx, f.vehicle.ID)
	assert.NotNil(t, v.LastKnownLocation)
}

func TestCurrentLocationSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.vehicle.ID.Hex()

	_, err := f.svc.CurrentLocation(ctx, id)
	assert.ErrorIs(t, err, ErrNoLocation)

	_, err = f.svc.ReportPosition(ctx, f.report(24.9, 67.1, models.Float(30)))
	require.NoError(t, err)

	view, err := f.svc.CurrentLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, view.Source)
	assert.Equal(t, 24.9, view.Location.Lat)

	require.NoError(t, f.cache.DeleteLocation(ctx, id))
	view, err = f.svc.CurrentLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, view.Source)
	assert.Equal(t, 67.1, view.Location.Lng)
	assert.Equal(t, 30.0, *view.Location.Speed)

	_, err = f.svc.CurrentLocation(ctx, primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestSaveTripSegmentHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReportPosition(ctx, f.report(24.9, 67.1, models.Float(50)))
	require.NoError(t, err)
	require.NoError(t, f.svc.handleSaveTripSegment(ctx, f.queue.last(t)))

	_, err = f.svc.ReportPosition(ctx, f.report(24.91, 67.1, models.Float(95)))
	require.NoError(t, err)
	require.NoError(t, f.svc.handleSaveTripSegment(ctx, f.queue.last(t)))

	trips, err := f.stores.Trips.RecentTrips(ctx, f.vehicle.ID, 10)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Len(t, trips[0].Samples, 2)
	assert.Equal(t, 95.0, trips[0].MaxSpeed)

	alerts := f.stores.Alerts.(*store.MemoryAlertStore).All()
	require.Len(t, alerts, 1, "only the sample above the threshold alerts")
	assert.Equal(t, models.AlertTypeOverspeed, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "95.0")
	require.Len(t, f.publisher.alerts, 1)
	assert.Len(t, f.publisher.positions, 2)
}

func TestSaveTripSegmentKeepsNewerCachedLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.vehicle.ID.Hex()

	old := f.now.Add(-time.Minute)
	lat, lng := 24.8, 67.0
	_, err := f.svc.ReportPosition(ctx, PositionReport{VehicleID: id, Lat: &lat, Lng: &lng, Timestamp: &old})
	require.NoError(t, err)
	stale := f.queue.last(t)

	_, err = f.svc.ReportPosition(ctx, f.report(24.9, 67.1, nil))
	require.NoError(t, err)

	// The older job runs last, as a retry would.
	require.NoError(t, f.svc.handleSaveTripSegment(ctx, f.queue.last(t)))
	require.NoError(t, f.svc.handleSaveTripSegment(ctx, stale))

	cached, err := f.cache.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 24.9, cached.Lat)

	trips, err := f.stores.Trips.RecentTrips(ctx, f.vehicle.ID, 1)
	require.NoError(t, err)
	require.Len(t, trips[0].Samples, 2)
	assert.Equal(t, 24.8, trips[0].Samples[0].Lat, "samples are read back in time order")
}

func TestEndTripHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.vehicle.ID.Hex()

	_, err := f.svc.ReportPosition(ctx, f.report(24.9, 67.1, models.Float(20)))
	require.NoError(t, err)
	require.NoError(t, f.svc.handleSaveTripSegment(ctx, f.queue.last(t)))

	_, err = f.svc.EndTrip(ctx, id, &models.Coordinates{Lat: 24.95, Lng: 67.15})
	require.NoError(t, err)
	job := f.queue.last(t)
	assert.Equal(t, JobEndTrip, job.Name)
	require.NoError(t, f.svc.handleEndTrip(ctx, job))

	trips, err := f.stores.Trips.RecentTrips(ctx, f.vehicle.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.TripStatusCompleted, trips[0].Status)
	assert.Equal(t, 24.95, trips[0].EndCoordinates.Lat)

	cached, err := f.cache.GetLocation(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, cached, "closing a trip invalidates the cached location")

	// A second close finds nothing open and still succeeds.
	require.NoError(t, f.svc.handleEndTrip(ctx, job))
}

func TestEndTripRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.EndTrip(context.Background(), f.vehicle.ID.Hex(), &models.Coordinates{Lat: 100})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	_, err = f.svc.EndTrip(context.Background(), primitive.NewObjectID().Hex(), nil)
	assert.ErrorIs(t, err, ErrVehicleNotFound)
}

func TestUpdateStatusHandler(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, f.vehicle.ID.Hex(), "flying", nil)
	assert.ErrorIs(t, err, ErrInvalidReport)

	loc := &models.LocationSnapshot{Lat: 24.9, Lng: 67.1}
	_, err = f.svc.UpdateStatus(ctx, f.vehicle.ID.Hex(), models.VehicleStatusMaintenance, loc)
	require.NoError(t, err)
	require.NoError(t, f.svc.handleUpdateVehicleStatus(ctx, f.queue.last(t)))

	v, err := f.stores.Vehicles.Get(ctx, f.vehicle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleStatusMaintenance, v.Status)
	require.NotNil(t, v.LastKnownLocation)
	assert.True(t, v.LastKnownLocation.Timestamp.Equal(f.now))

	cached, err := f.cache.GetLocation(ctx, f.vehicle.ID.Hex())
	require.NoError(t, err)
	assert.NotNil(t, cached)
}

func TestRaiseAlertAndFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.vehicle.ID.Hex()

	_, err := f.svc.RaiseAlert(ctx, AlertReport{VehicleID: id, Type: "meteor"})
	assert.ErrorIs(t, err, ErrInvalidReport)

	alert, err := f.svc.RaiseAlert(ctx, AlertReport{VehicleID: id, Type: models.AlertTypePanic, Message: " help "})
	require.NoError(t, err)
	assert.Equal(t, models.AlertPriorityMedium, alert.Priority)
	assert.Equal(t, "help", alert.Message)
	assert.Len(t, f.publisher.alerts, 1)

	_, err = f.svc.SubmitFeedback(ctx, FeedbackReport{VehicleID: id, Rating: 6})
	assert.ErrorIs(t, err, ErrInvalidReport)

	fb, err := f.svc.SubmitFeedback(ctx, FeedbackReport{VehicleID: id, Rating: 5, Comment: "on time"})
	require.NoError(t, err)
	assert.Equal(t, models.FeedbackTypeGeneral, fb.Type)
}

func TestPipelineThroughRunner(t *testing.T) {
	f := newFixture(t)
	runner := jobs.NewRunner(jobs.NewMemoryBroker(), map[string]jobs.QueueOptions{
		jobs.QueueTrip: {Concurrency: 5, Attempts: 3, Backoff: 5 * time.Millisecond, KeepCompleted: 100, KeepFailed: 50},
	})
	f.svc.queue = runner
	f.svc.RegisterHandlers(runner)

	ctx, cancel := context.WithCancel(context.Background())
	runner.Start(ctx)
	defer func() {
		cancel()
		runner.Wait()
	}()

	for i := 0; i < 10; i++ {
		_, err := f.svc.ReportPosition(context.Background(), f.report(24.9+float64(i)*0.001, 67.1, models.Float(float64(70+i*2))))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		trips, err := f.stores.Trips.RecentTrips(context.Background(), f.vehicle.ID, 10)
		return err == nil && len(trips) == 1 && len(trips[0].Samples) == 10
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(f.stores.Alerts.(*store.MemoryAlertStore).All()) == 4
	}, 3*time.Second, 10*time.Millisecond, "speeds 82, 84, 86 and 88 exceed 80")
}
