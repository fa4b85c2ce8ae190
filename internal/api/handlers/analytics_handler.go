// server/internal/api/handlers/analytics_handler.go
package handlers

import (
	"net/http"

	"ku-fleet-api-server/internal/analytics"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	Generator *analytics.Generator
}

// Daily serves the fleet snapshot of ?date= (today by default).
func (h *AnalyticsHandler) Daily(c *gin.Context) {
	snap, err := h.Generator.CachedDaily(c.Request.Context(), c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
