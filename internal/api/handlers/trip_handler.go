// server/internal/api/handlers/trip_handler.go
package handlers

import (
	"net/http"
	"time"

	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/retention"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
)

type TripHandler struct {
	Tracking *tracking.Service
	Sweeper  *retention.Sweeper
	Location *time.Location
}

type LogPositionPayload struct {
	VehicleID string     `json:"vehicleId"`
	TrackerID string     `json:"trackerId"`
	Lat       *float64   `json:"lat" binding:"required"`
	Lng       *float64   `json:"lng" binding:"required"`
	Speed     *float64   `json:"speed"`
	Timestamp *time.Time `json:"timestamp"`
}

// LogPosition is called by trackers and the driver app.
func (h *TripHandler) LogPosition(c *gin.Context) {
	var payload LogPositionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.Tracking.ReportPosition(c.Request.Context(), tracking.PositionReport{
		VehicleID: payload.VehicleID,
		TrackerID: payload.TrackerID,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
		Speed:     payload.Speed,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Position logged", "location": accepted})
}

type EndTripPayload struct {
	VehicleID string   `json:"vehicleId" binding:"required"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
}

func (h *TripHandler) EndTrip(c *gin.Context) {
	var payload EndTripPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (payload.Lat == nil) != (payload.Lng == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng must be sent together"})
		return
	}

	var end *models.Coordinates
	if payload.Lat != nil {
		end = &models.Coordinates{Lat: *payload.Lat, Lng: *payload.Lng}
	}
	job, err := h.Tracking.EndTrip(c.Request.Context(), payload.VehicleID, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Trip close queued", "jobId": job.ID})
}

// ListTrips returns the newest trips of one vehicle.
func (h *TripHandler) ListTrips(c *gin.Context) {
	vehicleID := c.Query("vehicleId")
	if vehicleID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicleId is required"})
		return
	}
	limit, ok := intQuery(c, "limit", 10, 1, 100)
	if !ok {
		return
	}

	trips, err := h.Tracking.RecentTrips(c.Request.Context(), vehicleID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if trips == nil {
		trips = []models.Trip{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(trips), "trips": trips})
}

// DailySummary lists today's trips without their samples.
func (h *TripHandler) DailySummary(c *gin.Context) {
	day, trips, err := h.Tracking.TodaysTrips(c.Request.Context(), h.Location)
	if err != nil {
		respondError(c, err)
		return
	}

	var distance float64
	active := 0
	for _, t := range trips {
		distance += t.DistanceMeters
		if t.Open() {
			active++
		}
	}
	if trips == nil {
		trips = []models.Trip{}
	}
	c.JSON(http.StatusOK, gin.H{
		"date":           day,
		"totalTrips":     len(trips),
		"activeTrips":    active,
		"distanceMeters": distance,
		"trips":          trips,
	})
}

// Cleanup runs the trip retention sweep immediately.
func (h *TripHandler) Cleanup(c *gin.Context) {
	n, err := h.Sweeper.CleanupTrips(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Old trip logs removed", "deleted": n})
}
