// server/internal/api/handlers/vehicle_handler.go
package handlers

import (
	"net/http"
	"strings"
	"time"

	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type VehicleHandler struct {
	Vehicles store.VehicleStore
	Tracking *tracking.Service
}

type CreateVehiclePayload struct {
	BusNumber   string `json:"busNumber" binding:"required"`
	PlateNumber string `json:"plateNumber"`
	Capacity    int    `json:"capacity" binding:"gte=0"`
	TrackerID   string `json:"trackerId"`
	DriverID    string `json:"driverId"`
	RouteID     string `json:"routeId"`
}

func optionalObjectID(hex string) (*primitive.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CreateVehicle registers a bus with the fleet.
func (h *VehicleHandler) CreateVehicle(c *gin.Context) {
	var payload CreateVehiclePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	driverID, err := optionalObjectID(payload.DriverID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driverId"})
		return
	}
	routeID, err := optionalObjectID(payload.RouteID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid routeId"})
		return
	}

	vehicle := models.Vehicle{
		BusNumber:   strings.TrimSpace(payload.BusNumber),
		PlateNumber: strings.TrimSpace(payload.PlateNumber),
		Capacity:    payload.Capacity,
		TrackerID:   strings.TrimSpace(payload.TrackerID),
		DriverID:    driverID,
		RouteID:     routeID,
		Status:      models.VehicleStatusActive,
	}
	if err := h.Vehicles.Create(c.Request.Context(), &vehicle); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, vehicle)
}

func (h *VehicleHandler) ListVehicles(c *gin.Context) {
	vehicles, err := h.Vehicles.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	c.JSON(http.StatusOK, vehicles)
}

func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.Tracking.Vehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicle)
}

// DeactivateVehicle retires a bus. Its trips and alerts are kept.
func (h *VehicleHandler) DeactivateVehicle(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.Vehicles.UpdateStatus(c.Request.Context(), id, models.VehicleStatusInactive); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Vehicle deactivated", "id": id.Hex(), "status": models.VehicleStatusInactive})
}

type LocationPayload struct {
	Lat   *float64 `json:"lat" binding:"required"`
	Lng   *float64 `json:"lng" binding:"required"`
	Speed *float64 `json:"speed"`
}

type UpdateStatusPayload struct {
	Status   string           `json:"status" binding:"required"`
	Location *LocationPayload `json:"location"`
}

// UpdateStatus queues a status change, optionally with a fresh position.
func (h *VehicleHandler) UpdateStatus(c *gin.Context) {
	var payload UpdateStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var loc *models.LocationSnapshot
	if payload.Location != nil {
		loc = &models.LocationSnapshot{Lat: *payload.Location.Lat, Lng: *payload.Location.Lng, Speed: payload.Location.Speed}
	}
	job, err := h.Tracking.UpdateStatus(c.Request.Context(), c.Param("id"), payload.Status, loc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Status update queued", "jobId": job.ID})
}

type CoordinatesPayload struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

type UpdateLocationPayload struct {
	Coordinates CoordinatesPayload `json:"coordinates" binding:"required"`
	Speed       *float64           `json:"speed"`
	Timestamp   *time.Time         `json:"timestamp"`
}

// UpdateLocation goes through the same pipeline as /trips/log.
func (h *VehicleHandler) UpdateLocation(c *gin.Context) {
	var payload UpdateLocationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := h.Tracking.ReportPosition(c.Request.Context(), tracking.PositionReport{
		VehicleID: c.Param("id"),
		Lat:       payload.Coordinates.Lat,
		Lng:       payload.Coordinates.Lng,
		Speed:     payload.Speed,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Location updated", "location": accepted})
}

// GetLocation answers from the cache, falling back to the stored snapshot.
func (h *VehicleHandler) GetLocation(c *gin.Context) {
	view, err := h.Tracking.CurrentLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
