// server/internal/analytics/analytics.go
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/geo"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/models"
	"ku-fleet-api-server/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Job names on the analytics queue.
const (
	JobDaily   = "generateDailyAnalytics"
	JobVehicle = "generateBusAnalytics"
)

// SnapshotTTL bounds how long a generated snapshot is served from the cache.
const SnapshotTTL = 24 * time.Hour

var ErrBadDay = errors.New("date must be formatted as YYYY-MM-DD")

type DailySnapshot struct {
	Date            string    `json:"date"`
	TotalTrips      int       `json:"totalTrips"`
	CompletedTrips  int       `json:"completedTrips"`
	ActiveVehicles  int       `json:"activeBuses"`
	TotalVehicles   int       `json:"totalBuses"`
	AlertsToday     int64     `json:"alertsToday"`
	TotalDistance   float64   `json:"totalDistance"`
	CompletionRate  float64   `json:"completionRate"`
	UtilizationRate float64   `json:"utilizationRate"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

type VehicleSnapshot struct {
	VehicleID     string    `json:"busId"`
	Date          string    `json:"date"`
	TripsCount    int       `json:"tripsCount"`
	TotalDistance float64   `json:"totalDistance"`
	AlertsCount   int64     `json:"alertsCount"`
	AverageSpeed  float64   `json:"averageSpeed"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// DailyPayload is the body of JobDaily. An empty Date means today.
type DailyPayload struct {
	Date string `json:"date,omitempty"`
}

type VehiclePayload struct {
	VehicleID string `json:"vehicleId"`
	Date      string `json:"date,omitempty"`
}

func DailyKey(day string) string { return cache.AnalyticsKey("daily:" + day) }

func VehicleKey(vehicleID, day string) string {
	return cache.AnalyticsKey(fmt.Sprintf("bus:%s:%s", vehicleID, day))
}

// Enqueuer is satisfied by jobs.Runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, name string, payload any, opts ...jobs.Option) (*jobs.Job, error)
}

type Deps struct {
	Vehicles store.VehicleStore
	Trips    store.TripLedger
	Alerts   store.AlertStore
	Cache    cache.Cache
	Queue    Enqueuer // optional; fans the daily job out per vehicle
	Location *time.Location
}

// Generator builds fleet snapshots from the ledger and keeps them in the cache.
type Generator struct {
	vehicles store.VehicleStore
	trips    store.TripLedger
	alerts   store.AlertStore
	cache    cache.Cache
	queue    Enqueuer
	loc      *time.Location
	now      func() time.Time
}

func NewGenerator(d Deps) *Generator {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	return &Generator{
		vehicles: d.Vehicles,
		trips:    d.Trips,
		alerts:   d.Alerts,
		cache:    d.Cache,
		queue:    d.Queue,
		loc:      loc,
		now:      time.Now,
	}
}

// window resolves day (today when empty) to its local [start, end) bounds.
func (g *Generator) window(day string) (string, time.Time, time.Time, error) {
	if day == "" {
		day = models.WindowDay(g.now(), g.loc)
	}
	start, err := time.ParseInLocation("2006-01-02", day, g.loc)
	if err != nil {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrBadDay, day)
	}
	return day, start, models.WindowEnd(start, g.loc), nil
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// Daily computes and caches the fleet snapshot of day.
func (g *Generator) Daily(ctx context.Context, day string) (*DailySnapshot, error) {
	day, start, end, err := g.window(day)
	if err != nil {
		return nil, err
	}

	trips, err := g.trips.TripsByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("trips of %s: %w", day, err)
	}
	vehicles, err := g.vehicles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	alerts, err := g.alerts.Count(ctx, store.AlertFilter{From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("count alerts of %s: %w", day, err)
	}

	snap := &DailySnapshot{
		Date:          day,
		TotalTrips:    len(trips),
		TotalVehicles: len(vehicles),
		AlertsToday:   alerts,
		GeneratedAt:   g.now(),
	}
	for _, t := range trips {
		if t.Status == models.TripStatusCompleted {
			snap.CompletedTrips++
		}
		snap.TotalDistance += t.DistanceMeters
	}
	for _, v := range vehicles {
		if v.Status == models.VehicleStatusActive {
			snap.ActiveVehicles++
		}
	}
	snap.CompletionRate = percent(snap.CompletedTrips, snap.TotalTrips)
	snap.UtilizationRate = percent(snap.ActiveVehicles, snap.TotalVehicles)

	if err := g.cache.SetJSON(ctx, DailyKey(day), snap, SnapshotTTL); err != nil {
		return nil, fmt.Errorf("cache daily analytics: %w", err)
	}
	return snap, nil
}

// Vehicle computes and caches one vehicle's snapshot of day.
func (g *Generator) Vehicle(ctx context.Context, vehicleID primitive.ObjectID, day string) (*VehicleSnapshot, error) {
	day, start, end, err := g.window(day)
	if err != nil {
		return nil, err
	}
	if _, err := g.vehicles.Get(ctx, vehicleID); err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", vehicleID.Hex(), err)
	}

	trips, err := g.trips.TripsByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("trips of %s: %w", day, err)
	}
	alerts, err := g.alerts.Count(ctx, store.AlertFilter{VehicleID: &vehicleID, From: start, To: end})
	if err != nil {
		return nil, fmt.Errorf("count alerts of %s: %w", vehicleID.Hex(), err)
	}

	snap := &VehicleSnapshot{
		VehicleID:   vehicleID.Hex(),
		Date:        day,
		AlertsCount: alerts,
		GeneratedAt: g.now(),
	}
	var speedSum float64
	for _, t := range trips {
		if t.VehicleID != vehicleID {
			continue
		}
		snap.TripsCount++
		snap.TotalDistance += t.DistanceMeters
		speedSum += t.AvgSpeed
	}
	if snap.TripsCount > 0 {
		snap.AverageSpeed = geo.RoundTo(speedSum/float64(snap.TripsCount), 2)
	}

	if err := g.cache.SetJSON(ctx, VehicleKey(snap.VehicleID, day), snap, SnapshotTTL); err != nil {
		return nil, fmt.Errorf("cache vehicle analytics: %w", err)
	}
	return snap, nil
}

// CachedDaily serves the cached snapshot and generates it on a miss.
func (g *Generator) CachedDaily(ctx context.Context, day string) (*DailySnapshot, error) {
	day, _, _, err := g.window(day)
	if err != nil {
		return nil, err
	}
	var snap DailySnapshot
	ok, err := g.cache.GetJSON(ctx, DailyKey(day), &snap)
	if err != nil {
		log.Printf("Reading cached analytics for %s failed: %v", day, err)
	}
	if ok {
		return &snap, nil
	}
	return g.Daily(ctx, day)
}

// HandlerRegistry is satisfied by jobs.Runner.
type HandlerRegistry interface {
	Handle(queue, name string, h jobs.Handler)
}

func (g *Generator) RegisterHandlers(r HandlerRegistry) {
	r.Handle(jobs.QueueAnalytics, JobDaily, g.handleDaily)
	r.Handle(jobs.QueueAnalytics, JobVehicle, g.handleVehicle)
}

func (g *Generator) handleDaily(ctx context.Context, job *jobs.Job) error {
	var p DailyPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	snap, err := g.Daily(ctx, p.Date)
	if err != nil {
		return err
	}
	log.Printf("Daily analytics %s: %d trips, %d completed, %d/%d buses active, %d alerts",
		snap.Date, snap.TotalTrips, snap.CompletedTrips, snap.ActiveVehicles, snap.TotalVehicles, snap.AlertsToday)

	if g.queue == nil {
		return nil
	}
	vehicles, err := g.vehicles.List(ctx)
	if err != nil {
		return fmt.Errorf("list vehicles: %w", err)
	}
	for _, v := range vehicles {
		if v.Status != models.VehicleStatusActive {
			continue
		}
		if _, err := g.queue.Enqueue(ctx, jobs.QueueAnalytics, JobVehicle, VehiclePayload{VehicleID: v.ID.Hex(), Date: snap.Date}); err != nil {
			log.Printf("Queueing analytics for bus %s failed: %v", v.BusNumber, err)
		}
	}
	return nil
}

func (g *Generator) handleVehicle(ctx context.Context, job *jobs.Job) error {
	var p VehiclePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(p.VehicleID)
	if err != nil {
		return fmt.Errorf("bad vehicle id %q: %w", p.VehicleID, err)
	}
	_, err = g.Vehicle(ctx, id, p.Date)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Analytics for unknown vehicle %s skipped", p.VehicleID)
		return nil
	}
	return err
}
