// server/internal/store/mongo_feedback.go
package store

import (
	"context"
	"fmt"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type MongoFeedbackStore struct {
	DB *mongo.Database
}

func NewMongoFeedbackStore(db *mongo.Database) *MongoFeedbackStore {
	return &MongoFeedbackStore{DB: db}
}

func (s *MongoFeedbackStore) Create(ctx context.Context, f *models.Feedback) error {
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	f.CreatedAt = time.Now()
	if _, err := s.DB.Collection(FeedbackCollection).InsertOne(ctx, f); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *MongoFeedbackStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.Collection(FeedbackCollection).DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete old feedback: %w", err)
	}
	return res.DeletedCount, nil
}

// NewMongoStores wires every Mongo-backed store against one database.
func NewMongoStores(db *mongo.Database, loc *time.Location) Stores {
	return Stores{
		Vehicles: NewMongoVehicleStore(db),
		Trips:    NewMongoTripLedger(db, loc),
		Alerts:   NewMongoAlertStore(db),
		Feedback: NewMongoFeedbackStore(db),
	}
}
