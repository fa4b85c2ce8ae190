// server/internal/models/feedback.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	FeedbackTypeComplaint  = "complaint"
	FeedbackTypeSuggestion = "suggestion"
	FeedbackTypeGeneral    = "general"
)

func ValidFeedbackType(s string) bool {
	switch s {
	case FeedbackTypeComplaint, FeedbackTypeSuggestion, FeedbackTypeGeneral:
		return true
	}
	return false
}

// Feedback is a passenger rating of a bus ride.
type Feedback struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleID primitive.ObjectID `bson:"vehicleID" json:"vehicleId"`
	Rating    int                `bson:"rating" json:"rating"` // 1..5
	Comment   string             `bson:"comment,omitempty" json:"comment,omitempty"`
	Type      string             `bson:"type" json:"type"`
	Resolved  bool               `bson:"resolved" json:"resolved"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}
