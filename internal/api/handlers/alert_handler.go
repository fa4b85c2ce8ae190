// server/internal/api/handlers/alert_handler.go
package handlers

import (
	"net/http"
	"time"

	"ku-fleet-api-server/internal/store"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	Tracking *tracking.Service
	Alerts   store.AlertStore
}

type CreateAlertPayload struct {
	VehicleID string `json:"vehicleId" binding:"required"`
	Type      string `json:"type" binding:"required"`
	Message   string `json:"message"`
	Priority  string `json:"priority"`
}

func (h *AlertHandler) CreateAlert(c *gin.Context) {
	var payload CreateAlertPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.Tracking.RaiseAlert(c.Request.Context(), tracking.AlertReport{
		VehicleID: payload.VehicleID,
		Type:      payload.Type,
		Message:   payload.Message,
		Priority:  payload.Priority,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

type ResolveAlertPayload struct {
	Response string `json:"response"`
}

func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}
	var payload ResolveAlertPayload
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	alert, err := h.Alerts.Resolve(c.Request.Context(), id, payload.Response)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Stats summarizes alerts raised in the last ?days= days (default 7).
func (h *AlertHandler) Stats(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, 1, 365)
	if !ok {
		return
	}

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := h.Alerts.Stats(c.Request.Context(), since)
	if err != nil {
		respondError(c, err)
		return
	}
	stats.Days = days
	c.JSON(http.StatusOK, stats)
}
