package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ku-fleet-api-server/internal/models"
)

const (
	KindAlert    = "alert"
	KindPosition = "position"
)

// Event is the envelope pushed to subscribers of live fleet activity.
type Event struct {
	Kind      string    `json:"kind"`
	VehicleID string    `json:"vehicleId"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

func (e Event) Marshal() ([]byte, error) { return json.Marshal(e) }

// Publisher pushes fleet events to an outside audience. Delivery is best
// effort: a failed publish never undoes the stored record.
type Publisher interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
	PublishPosition(ctx context.Context, loc models.CachedLocation) error
}

// AlertEvent wraps an alert for publishing.
func AlertEvent(alert models.Alert) Event {
	return Event{Kind: KindAlert, VehicleID: alert.VehicleID.Hex(), At: alert.Timestamp, Data: alert}
}

// PositionEvent wraps a location for publishing.
func PositionEvent(loc models.CachedLocation) Event {
	return Event{Kind: KindPosition, VehicleID: loc.VehicleID, At: loc.Timestamp, Data: loc}
}

// Fanout publishes to every wrapped publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishAlert(ctx context.Context, alert models.Alert) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) PublishPosition(ctx context.Context, loc models.CachedLocation) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishPosition(ctx, loc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
