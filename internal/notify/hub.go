package notify

import (
	"context"
	"fmt"

	"ku-fleet-api-server/internal/models"
)

// Broadcaster is satisfied by socket.Hub.
type Broadcaster interface {
	Broadcast(message []byte) int
}

// HubPublisher streams events to connected dashboards.
type HubPublisher struct {
	Hub Broadcaster
	// Positions also streams every accepted position, not only alerts.
	Positions bool
}

func (p *HubPublisher) PublishAlert(_ context.Context, alert models.Alert) error {
	return p.broadcast(AlertEvent(alert))
}

func (p *HubPublisher) PublishPosition(_ context.Context, loc models.CachedLocation) error {
	if !p.Positions {
		return nil
	}
	return p.broadcast(PositionEvent(loc))
}

func (p *HubPublisher) broadcast(ev Event) error {
	b, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	p.Hub.Broadcast(b)
	return nil
}
