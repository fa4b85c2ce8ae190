// server/internal/models/common.go
package models

import "time"

// Coordinates is a bare lat/lng pair, used for trip end points.
type Coordinates struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// PositionSample is one GPS reading appended to a trip. Never mutated once stored.
type PositionSample struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	Speed     *float64  `bson:"speed,omitempty" json:"speed,omitempty"` // km/h, optional
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// SpeedValue returns the sample speed, or 0 when the tracker did not report one.
func (s PositionSample) SpeedValue() float64 {
	if s.Speed == nil {
		return 0
	}
	return *s.Speed
}

// LocationSnapshot is the denormalized last-known location kept on a vehicle.
type LocationSnapshot struct {
	Lat       float64   `bson:"lat" json:"lat"`
	Lng       float64   `bson:"lng" json:"lng"`
	Speed     *float64  `bson:"speed,omitempty" json:"speed,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// CachedLocation is the ephemeral "where is the bus now" projection stored in the cache.
type CachedLocation struct {
	VehicleID string    `json:"vehicleId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Float returns a pointer to v. Handy for optional speeds.
func Float(v float64) *float64 {
	return &v
}
