// server/internal/safety/evaluator.go
package safety

import (
	"fmt"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultOverspeedThreshold is the speed limit in km/h.
const DefaultOverspeedThreshold = 80.0

// Evaluator turns position samples into safety alerts. It holds no state
// beyond its threshold and is safe for concurrent use.
type Evaluator struct {
	threshold float64
	now       func() time.Time
}

func NewEvaluator(threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultOverspeedThreshold
	}
	return &Evaluator{threshold: threshold, now: time.Now}
}

func (e *Evaluator) Threshold() float64 { return e.threshold }

// Evaluate returns an overspeed alert when the sample is strictly above the
// threshold, and nil otherwise. Samples without a speed never alert.
func (e *Evaluator) Evaluate(vehicleID primitive.ObjectID, sample models.PositionSample) *models.Alert {
	if sample.Speed == nil || *sample.Speed <= e.threshold {
		return nil
	}
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	return &models.Alert{
		VehicleID: vehicleID,
		Type:      models.AlertTypeOverspeed,
		Priority:  models.AlertPriorityHigh,
		Message:   fmt.Sprintf("Overspeed detected: %.1f km/h (limit %.0f km/h)", *sample.Speed, e.threshold),
		Timestamp: ts,
	}
}
