// server/internal/tracking/alerts.go
package tracking

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ku-fleet-api-server/internal/models"
)

// AlertReport is a manually raised alert, e.g. the driver's panic button.
type AlertReport struct {
	VehicleID string
	Type      string
	Message   string
	Priority  string
}

// RaiseAlert validates and stores a manual alert, then publishes it.
func (s *Service) RaiseAlert(ctx context.Context, r AlertReport) (*models.Alert, error) {
	if !models.ValidAlertType(r.Type) {
		return nil, fmt.Errorf("%w: unknown alert type %q", ErrInvalidReport, r.Type)
	}
	if r.Priority == "" {
		r.Priority = models.AlertPriorityMedium
	}
	if !models.ValidAlertPriority(r.Priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidReport, r.Priority)
	}
	v, err := s.resolveVehicle(ctx, r.VehicleID, "")
	if err != nil {
		return nil, err
	}

	alert := &models.Alert{
		VehicleID: v.ID,
		Type:      r.Type,
		Message:   strings.TrimSpace(r.Message),
		Priority:  r.Priority,
		Timestamp: s.now(),
	}
	if err := s.persistAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// persistAlert stores the alert and notifies subscribers. Notification
// failures are logged only.
func (s *Service) persistAlert(ctx context.Context, alert *models.Alert) error {
	if err := s.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("store %s alert: %w", alert.Type, err)
	}
	if s.metrics != nil {
		s.metrics.AlertRaised(alert.Type)
	}
	if err := s.publisher.PublishAlert(ctx, *alert); err != nil {
		log.Printf("Publishing alert %s failed: %v", alert.ID.Hex(), err)
	}
	return nil
}

// FeedbackReport is a passenger rating.
type FeedbackReport struct {
	VehicleID string
	Rating    int
	Comment   string
	Type      string
}

func (s *Service) SubmitFeedback(ctx context.Context, r FeedbackReport) (*models.Feedback, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReport)
	}
	if r.Type == "" {
		r.Type = models.FeedbackTypeGeneral
	}
	if !models.ValidFeedbackType(r.Type) {
		return nil, fmt.Errorf("%w: unknown feedback type %q", ErrInvalidReport, r.Type)
	}
	v, err := s.resolveVehicle(ctx, r.VehicleID, "")
	if err != nil {
		return nil, err
	}
	fb := &models.Feedback{
		VehicleID: v.ID,
		Rating:    r.Rating,
		Comment:   strings.TrimSpace(r.Comment),
		Type:      r.Type,
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	return fb, nil
}
