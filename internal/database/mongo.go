// server/internal/database/mongo.go
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// Connect opens a client, pings the primary and returns the configured database.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Printf("Connected to MongoDB database %q", cfg.DBName)
	return client, client.Database(cfg.DBName), nil
}

// indexSpecs lists the indexes every collection needs. The partial unique
// index on trips is what keeps a vehicle to a single open trip per day.
func indexSpecs() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		store.VehiclesCollection: {
			{Keys: bson.D{{Key: "busNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "trackerID", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		},
		store.TripsCollection: {
			{
				Keys: bson.D{{Key: "vehicleID", Value: 1}, {Key: "windowDay", Value: 1}},
				Options: options.Index().
					SetName("one_open_trip_per_window").
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": models.TripStatusInProgress}),
			},
			{Keys: bson.D{{Key: "vehicleID", Value: 1}, {Key: "startTime", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "archived", Value: 1}, {Key: "startTime", Value: 1}}},
		},
		store.AlertsCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
		store.FeedbackCollection: {
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
	}
}

// EnsureIndexes creates missing indexes. Existing ones are left untouched.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for coll, specs := range indexSpecs() {
		names, err := db.Collection(coll).Indexes().CreateMany(ctx, specs)
		if err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
		log.Printf("Indexes ready on %s: %v", coll, names)
	}
	return nil
}
