package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ku-fleet-api-server/internal/models"

	"github.com/nats-io/nats.go"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	NATSSetConnected(connected bool)
}

// NATSPublisher emits events on <prefix>.alerts.<type>.<vehicle> and
// <prefix>.positions.<vehicle>.
type NATSPublisher struct {
	nc      *nats.Conn
	prefix  string
	metrics PublisherMetrics
}

func NewNATSPublisher(url, prefix string, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("ku-fleet-api-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	if prefix == "" {
		prefix = "fleet"
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishAlert(_ context.Context, alert models.Alert) error {
	return p.publish(AlertSubject(p.prefix, alert), AlertEvent(alert))
}

func (p *NATSPublisher) PublishPosition(_ context.Context, loc models.CachedLocation) error {
	return p.publish(PositionSubject(p.prefix, loc.VehicleID), PositionEvent(loc))
}

func (p *NATSPublisher) publish(subject string, ev Event) error {
	b, err := ev.Marshal()
	if err != nil {
		return err
	}
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func AlertSubject(prefix string, alert models.Alert) string {
	return fmt.Sprintf("%s.alerts.%s.%s", prefix, subjectToken(alert.Type), subjectToken(alert.VehicleID.Hex()))
}

func PositionSubject(prefix, vehicleID string) string {
	return fmt.Sprintf("%s.positions.%s", prefix, subjectToken(vehicleID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
