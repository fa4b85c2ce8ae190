// server/internal/store/mongo_trips.go
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// appendRetries bounds how often a lost upsert race is replayed as an append.
const appendRetries = 3

var withoutSamples = bson.M{"samples": 0}

type MongoTripLedger struct {
	DB  *mongo.Database
	loc *time.Location
	now func() time.Time
}

// NewMongoTripLedger builds a ledger whose day windows are cut at midnight in loc.
func NewMongoTripLedger(db *mongo.Database, loc *time.Location) *MongoTripLedger {
	if loc == nil {
		loc = time.Local
	}
	return &MongoTripLedger{DB: db, loc: loc, now: time.Now}
}

func (l *MongoTripLedger) SetClock(now func() time.Time) { l.now = now }

func (l *MongoTripLedger) coll() *mongo.Collection {
	return l.DB.Collection(TripsCollection)
}

func (l *MongoTripLedger) AppendSample(ctx context.Context, owner TripOwner, sample models.PositionSample) (*models.Trip, bool, error) {
	now := l.now()
	day := models.WindowDay(now, l.loc)

	if err := l.closeStale(ctx, owner.VehicleID, day, now); err != nil {
		return nil, false, err
	}

	filter := bson.M{
		"vehicleID": owner.VehicleID,
		"windowDay": day,
		"status":    models.TripStatusInProgress,
	}
	onInsert := bson.M{
		"startTime":      now,
		"createdAt":      now,
		"distanceMeters": 0.0,
		"avgSpeed":       0.0,
		"stopCount":      0,
		"passengerCount": 0,
		"archived":       false,
	}
	if owner.DriverID != nil {
		onInsert["driverID"] = *owner.DriverID
	}
	if owner.RouteID != nil {
		onInsert["routeID"] = *owner.RouteID
	}
	update := bson.M{
		"$push":        bson.M{"samples": sample},
		"$inc":         bson.M{"sampleCount": 1},
		"$set":         bson.M{"updatedAt": now},
		"$setOnInsert": onInsert,
	}
	if sample.Speed != nil {
		update["$max"] = bson.M{"maxSpeed": *sample.Speed}
	} else {
		onInsert["maxSpeed"] = 0.0
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After).
		SetProjection(withoutSamples)

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		var trip models.Trip
		err := l.coll().FindOneAndUpdate(ctx, filter, update, opts).Decode(&trip)
		if err == nil {
			// Only the upsert that created the trip sees the first sample.
			return &trip, trip.SampleCount == 1, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("append sample for %s: %w", owner.VehicleID.Hex(), err)
		}
		// Another worker created the trip between our match and insert.
		lastErr = err
	}
	return nil, false, fmt.Errorf("append sample for %s: %w", owner.VehicleID.Hex(), lastErr)
}

// closeStale completes open trips left over from earlier day windows. Their
// end time is the midnight that closed their window.
func (l *MongoTripLedger) closeStale(ctx context.Context, vehicleID primitive.ObjectID, day string, now time.Time) error {
	filter := bson.M{
		"vehicleID": vehicleID,
		"status":    models.TripStatusInProgress,
		"windowDay": bson.M{"$lt": day},
	}
	cursor, err := l.coll().Find(ctx, filter)
	if err != nil {
		return fmt.Errorf("find stale trips: %w", err)
	}
	defer cursor.Close(ctx)

	var stale []models.Trip
	if err := cursor.All(ctx, &stale); err != nil {
		return fmt.Errorf("decode stale trips: %w", err)
	}
	for _, t := range stale {
		end, err := models.WindowDayEnd(t.WindowDay, l.loc)
		if err != nil {
			end = now
		}
		if _, err := l.complete(ctx, &t, end, nil, now); err != nil {
			return err
		}
		log.Printf("Closed trip %s of vehicle %s at window boundary %s", t.ID.Hex(), vehicleID.Hex(), end.Format(time.RFC3339))
	}
	return nil
}

// complete writes the closing fields onto t. It reports false when another
// writer closed the trip first. sampleCount and maxSpeed are left to the
// $inc and $max of AppendSample, so a sample pushed after t was read still
// counts.
func (l *MongoTripLedger) complete(ctx context.Context, t *models.Trip, end time.Time, coords *models.Coordinates, now time.Time) (bool, error) {
	t.Normalize()
	t.Status = models.TripStatusCompleted
	t.EndTime = &end
	t.EndCoordinates = coords
	t.UpdatedAt = now

	set := bson.M{
		"status":         t.Status,
		"endTime":        end,
		"distanceMeters": t.DistanceMeters,
		"avgSpeed":       t.AvgSpeed,
		"stopCount":      t.StopCount,
		"updatedAt":      now,
	}
	if coords != nil {
		set["endCoordinates"] = coords
	}
	res, err := l.coll().UpdateOne(ctx,
		bson.M{"_id": t.ID, "status": models.TripStatusInProgress},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("close trip %s: %w", t.ID.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (l *MongoTripLedger) CloseTrip(ctx context.Context, vehicleID primitive.ObjectID, end *models.Coordinates) (*models.Trip, error) {
	var trip models.Trip
	opts := options.FindOne().SetSort(bson.D{{Key: "startTime", Value: -1}})
	err := l.coll().FindOne(ctx, bson.M{"vehicleID": vehicleID, "status": models.TripStatusInProgress}, opts).Decode(&trip)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open trip: %w", err)
	}

	now := l.now()
	ok, err := l.complete(ctx, &trip, now, end, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &trip, nil
}

func (l *MongoTripLedger) RecentTrips(ctx context.Context, vehicleID primitive.ObjectID, limit int) ([]models.Trip, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "startTime", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := l.coll().Find(ctx, bson.M{"vehicleID": vehicleID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find trips: %w", err)
	}
	defer cursor.Close(ctx)

	trips := []models.Trip{}
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	for i := range trips {
		trips[i].Normalize()
	}
	return trips, nil
}

// TripsByDay lists the trips of day without samples. Open trips are read
// whole so their distance and speeds are current.
func (l *MongoTripLedger) TripsByDay(ctx context.Context, day string) ([]models.Trip, error) {
	closed, err := l.findTrips(ctx, bson.M{
		"windowDay": day,
		"status":    bson.M{"$ne": models.TripStatusInProgress},
	}, options.Find().SetProjection(withoutSamples))
	if err != nil {
		return nil, fmt.Errorf("find trips of %s: %w", day, err)
	}
	open, err := l.findTrips(ctx, bson.M{
		"windowDay": day,
		"status":    models.TripStatusInProgress,
	}, options.Find())
	if err != nil {
		return nil, fmt.Errorf("find open trips of %s: %w", day, err)
	}
	for i := range open {
		open[i].Normalize()
		open[i].Samples = nil
	}
	return append(closed, open...), nil
}

func (l *MongoTripLedger) findTrips(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Trip, error) {
	cursor, err := l.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var trips []models.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, err
	}
	return trips, nil
}

func closedBefore(cutoff time.Time) bson.M {
	return bson.M{
		"status":    bson.M{"$ne": models.TripStatusInProgress},
		"startTime": bson.M{"$lt": cutoff},
	}
}

func (l *MongoTripLedger) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.coll().DeleteMany(ctx, closedBefore(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete closed trips: %w", err)
	}
	return res.DeletedCount, nil
}

func (l *MongoTripLedger) FindArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	filter := closedBefore(cutoff)
	filter["archived"] = false
	opts := options.Find().
		SetSort(bson.D{{Key: "startTime", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := l.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find archivable trips: %w", err)
	}
	defer cursor.Close(ctx)

	var trips []models.Trip
	if err := cursor.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	return trips, nil
}

func (l *MongoTripLedger) MarkArchived(ctx context.Context, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return l.markArchived(ctx, bson.M{"_id": bson.M{"$in": ids}, "archived": false})
}

func (l *MongoTripLedger) MarkArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := closedBefore(cutoff)
	filter["archived"] = false
	return l.markArchived(ctx, filter)
}

func (l *MongoTripLedger) markArchived(ctx context.Context, filter bson.M) (int64, error) {
	now := l.now()
	res, err := l.coll().UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"archived":   true,
		"archivedAt": now,
		"updatedAt":  now,
	}})
	if err != nil {
		return 0, fmt.Errorf("archive trips: %w", err)
	}
	return res.ModifiedCount, nil
}
