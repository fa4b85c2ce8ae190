package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"ku-fleet-api-server/internal/jobs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCollectorExposition(t *testing.T) {
	c := NewCollector()

	c.PositionAccepted()
	c.PositionAccepted()
	c.PositionRejected("invalid")
	c.JobFinished(jobs.QueueTrip, "saveTripSegment", jobs.StateCompleted, 10*time.Millisecond)
	c.QueueCounts(jobs.QueueTrip, jobs.Counts{Waiting: 4, Failed: 2})
	c.SweepRemoved("cleanupOldTripLogs", 7)
	c.NATSSetConnected(true)

	body := scrape(t, c)
	assert.Contains(t, body, "fleet_positions_accepted_total 2")
	assert.Contains(t, body, `fleet_positions_rejected_total{reason="invalid"} 1`)
	assert.Contains(t, body, `fleet_jobs_finished_total{name="saveTripSegment",queue="tripQueue",state="completed"} 1`)
	assert.Contains(t, body, `fleet_queue_jobs{queue="tripQueue",state="waiting"} 4`)
	assert.Contains(t, body, `fleet_queue_jobs{queue="tripQueue",state="failed"} 2`)
	assert.Contains(t, body, `fleet_retention_removed_total{sweep="cleanupOldTripLogs"} 7`)
	assert.Contains(t, body, "fleet_nats_connected 1")
}

func TestNATSDisconnectResetsGauge(t *testing.T) {
	c := NewCollector()
	c.NATSSetConnected(true)
	c.NATSSetConnected(false)
	assert.Contains(t, scrape(t, c), "fleet_nats_connected 0")
}
