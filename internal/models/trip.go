// server/internal/models/trip.go
package models

import (
	"sort"
	"time"

	"ku-fleet-api-server/internal/geo"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TripStatusInProgress = "in_progress"
	TripStatusCompleted  = "completed"
	TripStatusCancelled  = "cancelled"
)

// stoppedBelow is the speed (km/h) under which a moving bus counts as stopped.
const stoppedBelow = 1.0

// Trip is one vehicle's journey inside a single local-day window.
type Trip struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	VehicleID      primitive.ObjectID  `bson:"vehicleID" json:"vehicleId"`
	DriverID       *primitive.ObjectID `bson:"driverID,omitempty" json:"driverId,omitempty"`
	RouteID        *primitive.ObjectID `bson:"routeID,omitempty" json:"routeId,omitempty"`
	WindowDay      string              `bson:"windowDay" json:"windowDay"` // YYYY-MM-DD, local zone
	StartTime      time.Time           `bson:"startTime" json:"startTime"`
	EndTime        *time.Time          `bson:"endTime,omitempty" json:"endTime,omitempty"`
	EndCoordinates *Coordinates        `bson:"endCoordinates,omitempty" json:"endCoordinates,omitempty"`
	Samples        []PositionSample    `bson:"samples" json:"samples"`
	SampleCount    int                 `bson:"sampleCount" json:"sampleCount"`
	MaxSpeed       float64             `bson:"maxSpeed" json:"maxSpeed"`
	DistanceMeters float64             `bson:"distanceMeters" json:"distanceMeters"`
	AvgSpeed       float64             `bson:"avgSpeed" json:"avgSpeed"`
	StopCount      int                 `bson:"stopCount" json:"stopCount"`
	PassengerCount int                 `bson:"passengerCount" json:"passengerCount"`
	Status         string              `bson:"status" json:"status"`
	Archived       bool                `bson:"archived" json:"archived"`
	ArchivedAt     *time.Time          `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Open reports whether the trip still accepts samples.
func (t *Trip) Open() bool {
	return t.Status == TripStatusInProgress
}

// TripAggregates are the derived statistics of a trip.
type TripAggregates struct {
	DistanceMeters float64
	AvgSpeed       float64
	MaxSpeed       float64
	StopCount      int
}

// ComputeAggregates derives distance, speeds and stops from samples ordered by
// timestamp. The input slice is not modified.
func ComputeAggregates(samples []PositionSample) TripAggregates {
	var agg TripAggregates
	if len(samples) == 0 {
		return agg
	}

	ordered := SortedSamples(samples)

	var speedSum float64
	var speedN int
	moving := false
	for i, s := range ordered {
		if i > 0 {
			prev := ordered[i-1]
			agg.DistanceMeters += geo.Haversine(prev.Lat, prev.Lng, s.Lat, s.Lng)
		}
		if s.Speed == nil {
			continue
		}
		speed := *s.Speed
		speedSum += speed
		speedN++
		if speed > agg.MaxSpeed {
			agg.MaxSpeed = speed
		}
		if speed >= stoppedBelow {
			moving = true
		} else if moving {
			agg.StopCount++
			moving = false
		}
	}
	if speedN > 0 {
		agg.AvgSpeed = speedSum / float64(speedN)
	}
	agg.DistanceMeters = geo.RoundTo(agg.DistanceMeters, 2)
	agg.AvgSpeed = geo.RoundTo(agg.AvgSpeed, 2)
	return agg
}

// SortedSamples returns a copy of samples ordered by timestamp. Equal
// timestamps keep their arrival order.
func SortedSamples(samples []PositionSample) []PositionSample {
	out := make([]PositionSample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Normalize sorts samples by timestamp and refreshes the derived fields.
// Used on read paths, where retries may have stored samples out of order.
func (t *Trip) Normalize() {
	t.Samples = SortedSamples(t.Samples)
	t.SampleCount = len(t.Samples)
	agg := ComputeAggregates(t.Samples)
	t.DistanceMeters = agg.DistanceMeters
	t.AvgSpeed = agg.AvgSpeed
	t.MaxSpeed = agg.MaxSpeed
	t.StopCount = agg.StopCount
}

// WindowDay formats t as the trip window key in loc.
func WindowDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// WindowEnd returns the local midnight that closes the window containing t.
func WindowEnd(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

// WindowDayEnd returns the midnight that closes the named window day.
func WindowDayEnd(day string, loc *time.Location) (time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, err
	}
	return WindowEnd(start, loc), nil
}
