// server/internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

const (
	VehiclesCollection = "vehicles"
	TripsCollection    = "trips"
	AlertsCollection   = "alerts"
	FeedbackCollection = "feedback"
)

// TripOwner identifies whose trip a sample belongs to. Driver and route are
// copied onto a trip when it is first created.
type TripOwner struct {
	VehicleID primitive.ObjectID
	DriverID  *primitive.ObjectID
	RouteID   *primitive.ObjectID
}

type VehicleStore interface {
	Create(ctx context.Context, v *models.Vehicle) error
	Get(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error)
	GetByTracker(ctx context.Context, trackerID string) (*models.Vehicle, error)
	List(ctx context.Context) ([]models.Vehicle, error)
	// UpdateLocation overwrites the last-known snapshot. Last writer wins.
	UpdateLocation(ctx context.Context, id primitive.ObjectID, snap models.LocationSnapshot) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error
}

// TripLedger is the authoritative, append-only record of trips.
type TripLedger interface {
	// AppendSample adds sample to the vehicle's open trip for the current
	// local day, creating that trip when needed. created reports a new trip.
	AppendSample(ctx context.Context, owner TripOwner, sample models.PositionSample) (trip *models.Trip, created bool, err error)
	// CloseTrip completes the vehicle's open trip. (nil, nil) when none is open.
	CloseTrip(ctx context.Context, vehicleID primitive.ObjectID, end *models.Coordinates) (*models.Trip, error)
	// RecentTrips returns up to limit trips, newest first, samples time-ordered.
	RecentTrips(ctx context.Context, vehicleID primitive.ObjectID, limit int) ([]models.Trip, error)
	// TripsByDay lists trips of a window day without their samples. Open
	// trips carry aggregates computed from their samples so far.
	TripsByDay(ctx context.Context, day string) ([]models.Trip, error)

	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	FindArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error)
	MarkArchived(ctx context.Context, ids []primitive.ObjectID) (int64, error)
	MarkArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AlertFilter narrows alert counts. Zero values match everything.
type AlertFilter struct {
	VehicleID *primitive.ObjectID
	From      time.Time
	To        time.Time
}

type AlertStore interface {
	Create(ctx context.Context, a *models.Alert) error
	Resolve(ctx context.Context, id primitive.ObjectID, response string) (*models.Alert, error)
	Stats(ctx context.Context, since time.Time) (models.AlertStats, error)
	Count(ctx context.Context, f AlertFilter) (int64, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type FeedbackStore interface {
	Create(ctx context.Context, f *models.Feedback) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stores bundles every store the service needs.
type Stores struct {
	Vehicles VehicleStore
	Trips    TripLedger
	Alerts   AlertStore
	Feedback FeedbackStore
}

func newStats() models.AlertStats {
	return models.AlertStats{
		ByType:     make(map[string]int64),
		ByPriority: make(map[string]int64),
	}
}

func finishStats(s *models.AlertStats) {
	s.Unresolved = s.Total - s.Resolved
	if s.Total > 0 {
		s.ResolutionRate = float64(s.Resolved) / float64(s.Total) * 100
	}
}
