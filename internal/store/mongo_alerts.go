// server/internal/store/mongo_alerts.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoAlertStore struct {
	DB *mongo.Database
}

func NewMongoAlertStore(db *mongo.Database) *MongoAlertStore {
	return &MongoAlertStore{DB: db}
}

func (s *MongoAlertStore) coll() *mongo.Collection {
	return s.DB.Collection(AlertsCollection)
}

func (s *MongoAlertStore) Create(ctx context.Context, a *models.Alert) error {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	a.CreatedAt = time.Now()
	if a.Timestamp.IsZero() {
		a.Timestamp = a.CreatedAt
	}
	if _, err := s.coll().InsertOne(ctx, a); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *MongoAlertStore) Resolve(ctx context.Context, id primitive.ObjectID, response string) (*models.Alert, error) {
	now := time.Now()
	set := bson.M{"resolved": true, "resolvedAt": now}
	if response != "" {
		set["response"] = response
	}
	var alert models.Alert
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&alert)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	return &alert, nil
}

func (s *MongoAlertStore) Stats(ctx context.Context, since time.Time) (models.AlertStats, error) {
	stats := newStats()
	match := bson.M{"timestamp": bson.M{"$gte": since}}

	var err error
	if stats.Total, err = s.coll().CountDocuments(ctx, match); err != nil {
		return stats, fmt.Errorf("count alerts: %w", err)
	}
	if stats.Resolved, err = s.coll().CountDocuments(ctx, bson.M{"timestamp": bson.M{"$gte": since}, "resolved": true}); err != nil {
		return stats, fmt.Errorf("count resolved alerts: %w", err)
	}
	if err := s.groupCount(ctx, match, "$type", stats.ByType); err != nil {
		return stats, err
	}
	if err := s.groupCount(ctx, match, "$priority", stats.ByPriority); err != nil {
		return stats, err
	}
	finishStats(&stats)
	return stats, nil
}

func (s *MongoAlertStore) groupCount(ctx context.Context, match bson.M, field string, into map[string]int64) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": field, "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("group alerts by %s: %w", field, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Key   string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return fmt.Errorf("decode alert groups: %w", err)
	}
	for _, r := range rows {
		into[r.Key] = r.Count
	}
	return nil
}

func (s *MongoAlertStore) Count(ctx context.Context, f AlertFilter) (int64, error) {
	filter := bson.M{}
	if f.VehicleID != nil {
		filter["vehicleID"] = *f.VehicleID
	}
	window := bson.M{}
	if !f.From.IsZero() {
		window["$gte"] = f.From
	}
	if !f.To.IsZero() {
		window["$lt"] = f.To
	}
	if len(window) > 0 {
		filter["timestamp"] = window
	}
	n, err := s.coll().CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func (s *MongoAlertStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll().DeleteMany(ctx, bson.M{"resolved": true, "timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return res.DeletedCount, nil
}
