// server/internal/models/vehicle.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	VehicleStatusActive      = "active"
	VehicleStatusInactive    = "inactive"
	VehicleStatusMaintenance = "maintenance"
)

// ValidVehicleStatus reports whether s is one of the vehicle lifecycle states.
func ValidVehicleStatus(s string) bool {
	switch s {
	case VehicleStatusActive, VehicleStatusInactive, VehicleStatusMaintenance:
		return true
	}
	return false
}

// Vehicle is a tracked bus. Vehicles are never hard-deleted, only deactivated.
type Vehicle struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BusNumber         string              `bson:"busNumber" json:"busNumber"`
	PlateNumber       string              `bson:"plateNumber" json:"plateNumber"`
	Capacity          int                 `bson:"capacity" json:"capacity"`
	DriverID          *primitive.ObjectID `bson:"driverID,omitempty" json:"driverId,omitempty"`
	RouteID           *primitive.ObjectID `bson:"routeID,omitempty" json:"routeId,omitempty"`
	TrackerID         string              `bson:"trackerID,omitempty" json:"trackerId,omitempty"` // unique when present
	Status            string              `bson:"status" json:"status"`                           // active, inactive, maintenance
	LastKnownLocation *LocationSnapshot   `bson:"lastKnownLocation,omitempty" json:"lastKnownLocation,omitempty"`
	CreatedAt         time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time           `bson:"updatedAt" json:"updatedAt"`
}
