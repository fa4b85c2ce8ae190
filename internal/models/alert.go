// server/internal/models/alert.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	AlertTypePanic          = "panic"
	AlertTypeOverspeed      = "overspeed"
	AlertTypeRouteDeviation = "routeDeviation"
	AlertTypeSystem         = "system"
	AlertTypeOther          = "other"
)

const (
	AlertPriorityLow    = "low"
	AlertPriorityMedium = "medium"
	AlertPriorityHigh   = "high"
)

func ValidAlertType(s string) bool {
	switch s {
	case AlertTypePanic, AlertTypeOverspeed, AlertTypeRouteDeviation, AlertTypeSystem, AlertTypeOther:
		return true
	}
	return false
}

func ValidAlertPriority(s string) bool {
	switch s {
	case AlertPriorityLow, AlertPriorityMedium, AlertPriorityHigh:
		return true
	}
	return false
}

type Alert struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VehicleID  primitive.ObjectID `bson:"vehicleID" json:"vehicleId"`
	Type       string             `bson:"type" json:"type"`
	Message    string             `bson:"message" json:"message"`
	Priority   string             `bson:"priority" json:"priority"`
	Resolved   bool               `bson:"resolved" json:"resolved"`
	Response   string             `bson:"response,omitempty" json:"response,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	ResolvedAt *time.Time         `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// AlertStats summarises alerts raised inside a time window.
type AlertStats struct {
	Days           int              `json:"days"`
	Total          int64            `json:"total"`
	Resolved       int64            `json:"resolved"`
	Unresolved     int64            `json:"unresolved"`
	ResolutionRate float64          `json:"resolutionRate"` // percent, 0..100
	ByType         map[string]int64 `json:"byType"`
	ByPriority     map[string]int64 `json:"byPriority"`
}
