// server/internal/api/handlers/errors.go
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"ku-fleet-api-server/internal/analytics"
	"ku-fleet-api-server/internal/store"
	"ku-fleet-api-server/internal/tracking"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrVehicleNotFound),
		errors.Is(err, tracking.ErrNoLocation),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrInvalidCoordinates),
		errors.Is(err, tracking.ErrInvalidReport),
		errors.Is(err, analytics.ErrBadDay):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, tracking.ErrEnqueueFailed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return primitive.NilObjectID, false
	}
	return id, true
}

// intQuery reads an integer query parameter within [min, max].
func intQuery(c *gin.Context, name string, def, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be an integer between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)})
		return 0, false
	}
	return n, true
}
