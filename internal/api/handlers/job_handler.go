// server/internal/api/handlers/job_handler.go
package handlers

import (
	"errors"
	"net/http"

	"ku-fleet-api-server/internal/jobs"

	"github.com/gin-gonic/gin"
)

type JobHandler struct {
	Runner *jobs.Runner
}

// Health reports per-queue counts against their failure thresholds.
func (h *JobHandler) Health(c *gin.Context) {
	queues, err := h.Runner.CheckHealth(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	healthy := true
	for _, q := range queues {
		healthy = healthy && q.Healthy
	}
	c.JSON(http.StatusOK, gin.H{"healthy": healthy, "queues": queues})
}

func (h *JobHandler) Failed(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 20, 1, 100)
	if !ok {
		return
	}

	failed, err := h.Runner.Failed(c.Request.Context(), c.Param("queue"), limit)
	if errors.Is(err, jobs.ErrUnknownQueue) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if failed == nil {
		failed = []jobs.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"queue": c.Param("queue"), "jobs": failed})
}
