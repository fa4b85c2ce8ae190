// server/internal/api/handlers/feedback_handler.go
package handlers

import (
	"net/http"

	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
)

type FeedbackHandler struct {
	Tracking *tracking.Service
}

type CreateFeedbackPayload struct {
	VehicleID string `json:"vehicleId" binding:"required"`
	Rating    int    `json:"rating" binding:"required"`
	Comment   string `json:"comment"`
	Type      string `json:"type"`
}

func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var payload CreateFeedbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fb, err := h.Tracking.SubmitFeedback(c.Request.Context(), tracking.FeedbackReport{
		VehicleID: payload.VehicleID,
		Rating:    payload.Rating,
		Comment:   payload.Comment,
		Type:      payload.Type,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}
