// server/internal/database/seeder.go
package database

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"
)

// demoFleet is registered on first start so the tracking endpoints have
// something to report against.
var demoFleet = []models.Vehicle{
	{BusNumber: "KU-01", PlateNumber: "JU-1101", Capacity: 50, TrackerID: "860000000000001"},
	{BusNumber: "KU-02", PlateNumber: "JU-1102", Capacity: 50, TrackerID: "860000000000002"},
	{BusNumber: "KU-03", PlateNumber: "JU-1103", Capacity: 40, TrackerID: "860000000000003"},
}

// SeedFleet registers the demo buses when the vehicle collection is empty.
func SeedFleet(ctx context.Context, vehicles store.VehicleStore) error {
	existing, err := vehicles.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Println("Fleet already registered. Seeding skipped.")
		return nil
	}

	log.Println("No vehicles found. Seeding demo fleet...")
	for _, v := range demoFleet {
		v.Status = models.VehicleStatusActive
		if err := vehicles.Create(ctx, &v); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			return fmt.Errorf("seed %s: %w", v.BusNumber, err)
		}
		log.Printf("Seeded vehicle %s (%s)", v.BusNumber, v.ID.Hex())
	}
	log.Println("Demo fleet seeded successfully.")
	return nil
}
