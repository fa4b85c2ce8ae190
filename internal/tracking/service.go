// server/internal/tracking/service.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/geo"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/notify"
	"ku-fleet-api-server/internal/safety"
	"ku-fleet-api-server/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrVehicleNotFound    = errors.New("vehicle not found")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidReport      = errors.New("invalid report")
	ErrEnqueueFailed      = errors.New("could not queue position for processing")
	ErrNoLocation         = errors.New("no location recorded for vehicle")
)

// Job names on the trip queue.
const (
	JobSaveTripSegment     = "saveTripSegment"
	JobEndTrip             = "endTrip"
	JobUpdateVehicleStatus = "updateVehicleStatus"
)

const (
	SourceCache    = "cache"
	SourceSnapshot = "snapshot"
)

// Enqueuer is satisfied by jobs.Runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, name string, payload any, opts ...jobs.Option) (*jobs.Job, error)
}

// Metrics is satisfied by metrics.Collector. A nil Metrics disables counting.
type Metrics interface {
	PositionAccepted()
	PositionRejected(reason string)
	CacheError(op string)
	AlertRaised(kind string)
}

// Deps are the collaborators of a Service. Publisher and Metrics are optional.
type Deps struct {
	Vehicles  store.VehicleStore
	Trips     store.TripLedger
	Alerts    store.AlertStore
	Feedback  store.FeedbackStore
	Cache     cache.Cache
	Queue     Enqueuer
	Evaluator *safety.Evaluator
	Publisher notify.Publisher
	Metrics   Metrics
}

// Service is the ingestion entry point: it validates position reports, keeps
// the fast read paths current and hands durable work to the trip queue.
type Service struct {
	vehicles  store.VehicleStore
	trips     store.TripLedger
	alerts    store.AlertStore
	feedback  store.FeedbackStore
	cache     cache.Cache
	queue     Enqueuer
	evaluator *safety.Evaluator
	publisher notify.Publisher
	metrics   Metrics
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		vehicles:  d.Vehicles,
		trips:     d.Trips,
		alerts:    d.Alerts,
		feedback:  d.Feedback,
		cache:     d.Cache,
		queue:     d.Queue,
		evaluator: d.Evaluator,
		publisher: d.Publisher,
		metrics:   d.Metrics,
		now:       time.Now,
	}
	if s.evaluator == nil {
		s.evaluator = safety.NewEvaluator(safety.DefaultOverspeedThreshold)
	}
	if s.publisher == nil {
		s.publisher = notify.Fanout{}
	}
	return s
}

// PositionReport is one raw update from a tracker or a driver app. Either
// VehicleID or TrackerID identifies the bus.
type PositionReport struct {
	VehicleID string
	TrackerID string
	Lat       *float64
	Lng       *float64
	Speed     *float64
	Timestamp *time.Time
}

// AcceptedLocation echoes what was accepted.
type AcceptedLocation struct {
	VehicleID string    `json:"vehicleId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"jobId"`
}

// SegmentPayload is the saveTripSegment job body.
type SegmentPayload struct {
	VehicleID string    `json:"vehicleId"`
	DriverID  string    `json:"driverId,omitempty"`
	RouteID   string    `json:"routeId,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EndTripPayload is the endTrip job body.
type EndTripPayload struct {
	VehicleID string              `json:"vehicleId"`
	End       *models.Coordinates `json:"end,omitempty"`
}

// StatusPayload is the updateVehicleStatus job body.
type StatusPayload struct {
	VehicleID string                   `json:"vehicleId"`
	Status    string                   `json:"status"`
	Location  *models.LocationSnapshot `json:"location,omitempty"`
}

func (s *Service) reject(reason string) {
	if s.metrics != nil {
		s.metrics.PositionRejected(reason)
	}
}

func (s *Service) cacheFailed(op string, vehicleID string, err error) {
	log.Printf("Location cache %s for vehicle %s failed: %v", op, vehicleID, err)
	if s.metrics != nil {
		s.metrics.CacheError(op)
	}
}

func validSpeed(speed *float64) bool {
	return speed == nil || (*speed >= 0 && !math.IsNaN(*speed) && !math.IsInf(*speed, 0))
}

func validateReport(r PositionReport) error {
	if r.VehicleID == "" && r.TrackerID == "" {
		return fmt.Errorf("%w: vehicleId or trackerId is required", ErrInvalidReport)
	}
	if r.Lat == nil || r.Lng == nil {
		return fmt.Errorf("%w: lat and lng are required", ErrInvalidCoordinates)
	}
	if !geo.ValidCoordinates(*r.Lat, *r.Lng) {
		return fmt.Errorf("%w: lat must be within [-90, 90] and lng within [-180, 180]", ErrInvalidCoordinates)
	}
	if !validSpeed(r.Speed) {
		return fmt.Errorf("%w: speed must be a non-negative number", ErrInvalidReport)
	}
	return nil
}

// ReportPosition accepts a position update. The cache write is best effort;
// the vehicle snapshot and the enqueue must succeed. Nothing is rolled back
// when the enqueue fails.
func (s *Service) ReportPosition(ctx context.Context, r PositionReport) (*AcceptedLocation, error) {
	if err := validateReport(r); err != nil {
		s.reject("invalid")
		return nil, err
	}

	vehicle, err := s.resolveVehicle(ctx, r.VehicleID, r.TrackerID)
	if err != nil {
		if errors.Is(err, ErrVehicleNotFound) {
			s.reject("unknown_vehicle")
		}
		return nil, err
	}

	ts := s.now()
	if r.Timestamp != nil && !r.Timestamp.IsZero() {
		ts = *r.Timestamp
	}
	id := vehicle.ID.Hex()
	loc := models.CachedLocation{VehicleID: id, Lat: *r.Lat, Lng: *r.Lng, Speed: r.Speed, Timestamp: ts}

	if err := s.cache.SetLocation(ctx, loc); err != nil {
		s.cacheFailed("set", id, err)
	}

	snap := models.LocationSnapshot{Lat: loc.Lat, Lng: loc.Lng, Speed: loc.Speed, Timestamp: ts}
	if err := s.vehicles.UpdateLocation(ctx, vehicle.ID, snap); err != nil {
		return nil, fmt.Errorf("update location snapshot of %s: %w", id, err)
	}

	payload := SegmentPayload{VehicleID: id, Lat: loc.Lat, Lng: loc.Lng, Speed: loc.Speed, Timestamp: ts}
	if vehicle.DriverID != nil {
		payload.DriverID = vehicle.DriverID.Hex()
	}
	if vehicle.RouteID != nil {
		payload.RouteID = vehicle.RouteID.Hex()
	}
	job, err := s.queue.Enqueue(ctx, jobs.QueueTrip, JobSaveTripSegment, payload)
	if err != nil {
		s.reject("enqueue")
		log.Printf("Enqueue %s for vehicle %s failed: %v", JobSaveTripSegment, id, err)
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	if s.metrics != nil {
		s.metrics.PositionAccepted()
	}
	return &AcceptedLocation{
		VehicleID: id,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Speed:     loc.Speed,
		Timestamp: ts,
		JobID:     job.ID,
	}, nil
}

func (s *Service) resolveVehicle(ctx context.Context, vehicleID, trackerID string) (*models.Vehicle, error) {
	var (
		v   *models.Vehicle
		err error
	)
	if vehicleID != "" {
		oid, perr := primitive.ObjectIDFromHex(vehicleID)
		if perr != nil {
			return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
		}
		v, err = s.vehicles.Get(ctx, oid)
	} else {
		v, err = s.vehicles.GetByTracker(ctx, trackerID)
	}
	if errors.Is(err, store.ErrNotFound) {
		ref := vehicleID
		if ref == "" {
			ref = "tracker " + trackerID
		}
		return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, ref)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Vehicle loads a vehicle by its hex id.
func (s *Service) Vehicle(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	return s.resolveVehicle(ctx, vehicleID, "")
}

// EndTrip queues the close of the vehicle's open trip.
func (s *Service) EndTrip(ctx context.Context, vehicleID string, end *models.Coordinates) (*jobs.Job, error) {
	if end != nil && !geo.ValidCoordinates(end.Lat, end.Lng) {
		return nil, ErrInvalidCoordinates
	}
	v, err := s.resolveVehicle(ctx, vehicleID, "")
	if err != nil {
		return nil, err
	}
	job, err := s.queue.Enqueue(ctx, jobs.QueueTrip, JobEndTrip, EndTripPayload{VehicleID: v.ID.Hex(), End: end})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}
	return job, nil
}

// UpdateStatus queues a vehicle status change, optionally with a fresh location.
func (s *Service) UpdateStatus(ctx context.Context, vehicleID, status string, loc *models.LocationSnapshot) (*jobs.Job, error) {
	if !models.ValidVehicleStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidReport, status)
	}
	if loc != nil {
		if !geo.ValidCoordinates(loc.Lat, loc.Lng) {
			return nil, ErrInvalidCoordinates
		}
		if !validSpeed(loc.Speed) {
			return nil, fmt.Errorf("%w: speed must be a non-negative number", ErrInvalidReport)
		}
		if loc.Timestamp.IsZero() {
			loc.Timestamp = s.now()
		}
	}
	v, err := s.resolveVehicle(ctx, vehicleID, "")
	if err != nil {
		return nil, err
	}
	job, err := s.queue.Enqueue(ctx, jobs.QueueTrip, JobUpdateVehicleStatus, StatusPayload{VehicleID: v.ID.Hex(), Status: status, Location: loc})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}
	return job, nil
}

// LocationView is the answer to "where is this bus now".
type LocationView struct {
	Location models.CachedLocation `json:"location"`
	Source   string                `json:"source"`
}

// CurrentLocation prefers the cache and falls back to the vehicle snapshot.
func (s *Service) CurrentLocation(ctx context.Context, vehicleID string) (*LocationView, error) {
	v, err := s.resolveVehicle(ctx, vehicleID, "")
	if err != nil {
		return nil, err
	}
	id := v.ID.Hex()

	cached, err := s.cache.GetLocation(ctx, id)
	if err != nil {
		s.cacheFailed("get", id, err)
	}
	if cached != nil {
		return &LocationView{Location: *cached, Source: SourceCache}, nil
	}

	if v.LastKnownLocation == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLocation, id)
	}
	snap := v.LastKnownLocation
	return &LocationView{
		Location: models.CachedLocation{VehicleID: id, Lat: snap.Lat, Lng: snap.Lng, Speed: snap.Speed, Timestamp: snap.Timestamp},
		Source:   SourceSnapshot,
	}, nil
}

// RecentTrips lists the newest trips of a vehicle.
func (s *Service) RecentTrips(ctx context.Context, vehicleID string, limit int) ([]models.Trip, error) {
	v, err := s.resolveVehicle(ctx, vehicleID, "")
	if err != nil {
		return nil, err
	}
	return s.trips.RecentTrips(ctx, v.ID, limit)
}

// TodaysTrips lists the trips of the current local-day window, without samples.
func (s *Service) TodaysTrips(ctx context.Context, loc *time.Location) (string, []models.Trip, error) {
	day := models.WindowDay(s.now(), loc)
	trips, err := s.trips.TripsByDay(ctx, day)
	return day, trips, err
}
