// server/internal/store/mongo_vehicles.go
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
)

type MongoVehicleStore struct {
	DB *mongo.Database
}

func NewMongoVehicleStore(db *mongo.Database) *MongoVehicleStore {
	return &MongoVehicleStore{DB: db}
}

func (s *MongoVehicleStore) coll() *mongo.Collection {
	return s.DB.Collection(VehiclesCollection)
}

func (s *MongoVehicleStore) Create(ctx context.Context, v *models.Vehicle) error {
	now := time.Now()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	if _, err := s.coll().InsertOne(ctx, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("vehicle %s: %w", v.BusNumber, ErrDuplicate)
		}
		return fmt.Errorf("insert vehicle: %w", err)
	}
	return nil
}

func (s *MongoVehicleStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoVehicleStore) GetByTracker(ctx context.Context, trackerID string) (*models.Vehicle, error) {
	return s.findOne(ctx, bson.M{"trackerID": trackerID})
}

func (s *MongoVehicleStore) findOne(ctx context.Context, filter bson.M) (*models.Vehicle, error) {
	var v models.Vehicle
	if err := s.coll().FindOne(ctx, filter).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find vehicle: %w", err)
	}
	return &v, nil
}

func (s *MongoVehicleStore) List(ctx context.Context) ([]models.Vehicle, error) {
	cursor, err := s.coll().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("decode vehicles: %w", err)
	}
	return vehicles, nil
}

func (s *MongoVehicleStore) UpdateLocation(ctx context.Context, id primitive.ObjectID, snap models.LocationSnapshot) error {
	return s.updateOne(ctx, id, bson.M{"lastKnownLocation": snap, "updatedAt": time.Now()})
}

func (s *MongoVehicleStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return s.updateOne(ctx, id, bson.M{"status": status, "updatedAt": time.Now()})
}

func (s *MongoVehicleStore) updateOne(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := s.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update vehicle %s: %w", id.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
