// server/internal/tracking/handlers.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HandlerRegistry is satisfied by jobs.Runner.
type HandlerRegistry interface {
	Handle(queue, name string, h jobs.Handler)
}

// RegisterHandlers wires the trip queue jobs to this service.
func (s *Service) RegisterHandlers(r HandlerRegistry) {
	r.Handle(jobs.QueueTrip, JobSaveTripSegment, s.handleSaveTripSegment)
	r.Handle(jobs.QueueTrip, JobEndTrip, s.handleEndTrip)
	r.Handle(jobs.QueueTrip, JobUpdateVehicleStatus, s.handleUpdateVehicleStatus)
}

func optionalID(hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// handleSaveTripSegment appends the sample to the ledger, refreshes the
// cache and raises an overspeed alert when needed. A retry after a partial
// run can append the same sample twice; readers tolerate duplicates.
func (s *Service) handleSaveTripSegment(ctx context.Context, job *jobs.Job) error {
	var p SegmentPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	vehicleID, err := primitive.ObjectIDFromHex(p.VehicleID)
	if err != nil {
		return fmt.Errorf("bad vehicle id %q: %w", p.VehicleID, err)
	}
	owner := store.TripOwner{VehicleID: vehicleID}
	if owner.DriverID, err = optionalID(p.DriverID); err != nil {
		return fmt.Errorf("bad driver id %q: %w", p.DriverID, err)
	}
	if owner.RouteID, err = optionalID(p.RouteID); err != nil {
		return fmt.Errorf("bad route id %q: %w", p.RouteID, err)
	}

	sample := models.PositionSample{Lat: p.Lat, Lng: p.Lng, Speed: p.Speed, Timestamp: p.Timestamp}
	trip, created, err := s.trips.AppendSample(ctx, owner, sample)
	if err != nil {
		return err
	}
	if created {
		log.Printf("Started trip %s for vehicle %s (window %s)", trip.ID.Hex(), p.VehicleID, trip.WindowDay)
	}

	loc := models.CachedLocation{VehicleID: p.VehicleID, Lat: p.Lat, Lng: p.Lng, Speed: p.Speed, Timestamp: p.Timestamp}
	s.recache(ctx, loc)
	if err := s.publisher.PublishPosition(ctx, loc); err != nil {
		log.Printf("Publishing position of %s failed: %v", p.VehicleID, err)
	}

	if alert := s.evaluator.Evaluate(vehicleID, sample); alert != nil {
		return s.persistAlert(ctx, alert)
	}
	return nil
}

// recache writes loc unless the cache already holds a newer reading, so a
// late retry does not move the bus backwards.
func (s *Service) recache(ctx context.Context, loc models.CachedLocation) {
	current, err := s.cache.GetLocation(ctx, loc.VehicleID)
	if err != nil {
		s.cacheFailed("get", loc.VehicleID, err)
	}
	if current != nil && current.Timestamp.After(loc.Timestamp) {
		return
	}
	if err := s.cache.SetLocation(ctx, loc); err != nil {
		s.cacheFailed("set", loc.VehicleID, err)
	}
}

func (s *Service) handleEndTrip(ctx context.Context, job *jobs.Job) error {
	var p EndTripPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	vehicleID, err := primitive.ObjectIDFromHex(p.VehicleID)
	if err != nil {
		return fmt.Errorf("bad vehicle id %q: %w", p.VehicleID, err)
	}

	trip, err := s.trips.CloseTrip(ctx, vehicleID, p.End)
	if err != nil {
		return err
	}
	if trip == nil {
		log.Printf("No open trip to close for vehicle %s", p.VehicleID)
	} else {
		log.Printf("Closed trip %s for vehicle %s: %d samples, %.0f m", trip.ID.Hex(), p.VehicleID, trip.SampleCount, trip.DistanceMeters)
	}

	if err := s.cache.DeleteLocation(ctx, p.VehicleID); err != nil {
		s.cacheFailed("delete", p.VehicleID, err)
	}
	return nil
}

func (s *Service) handleUpdateVehicleStatus(ctx context.Context, job *jobs.Job) error {
	var p StatusPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	vehicleID, err := primitive.ObjectIDFromHex(p.VehicleID)
	if err != nil {
		return fmt.Errorf("bad vehicle id %q: %w", p.VehicleID, err)
	}

	if err := s.vehicles.UpdateStatus(ctx, vehicleID, p.Status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Vehicles are never deleted, so retrying cannot help.
			log.Printf("Status update for unknown vehicle %s dropped", p.VehicleID)
			return nil
		}
		return err
	}
	if p.Location == nil {
		return nil
	}
	if err := s.vehicles.UpdateLocation(ctx, vehicleID, *p.Location); err != nil {
		return err
	}
	s.recache(ctx, models.CachedLocation{
		VehicleID: p.VehicleID,
		Lat:       p.Location.Lat,
		Lng:       p.Location.Lng,
		Speed:     p.Location.Speed,
		Timestamp: p.Location.Timestamp,
	})
	return nil
}
