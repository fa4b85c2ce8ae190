// server/internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ku-fleet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The memory stores keep the service usable without MongoDB (demo mode) and
// act as the test doubles of the Mongo stores.

// NewMemoryStores wires every in-memory store.
func NewMemoryStores(loc *time.Location) Stores {
	return Stores{
		Vehicles: NewMemoryVehicleStore(),
		Trips:    NewMemoryTripLedger(loc),
		Alerts:   NewMemoryAlertStore(),
		Feedback: NewMemoryFeedbackStore(),
	}
}

type MemoryVehicleStore struct {
	mu       sync.RWMutex
	vehicles map[primitive.ObjectID]models.Vehicle
}

func NewMemoryVehicleStore() *MemoryVehicleStore {
	return &MemoryVehicleStore{vehicles: make(map[primitive.ObjectID]models.Vehicle)}
}

func (s *MemoryVehicleStore) Create(_ context.Context, v *models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.vehicles {
		if existing.BusNumber == v.BusNumber || (v.TrackerID != "" && existing.TrackerID == v.TrackerID) {
			return fmt.Errorf("vehicle %s: %w", v.BusNumber, ErrDuplicate)
		}
	}
	now := time.Now()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	v.CreatedAt = now
	v.UpdatedAt = now
	s.vehicles[v.ID] = *v
	return nil
}

func (s *MemoryVehicleStore) Get(_ context.Context, id primitive.ObjectID) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryVehicleStore) GetByTracker(_ context.Context, trackerID string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.vehicles {
		if trackerID != "" && v.TrackerID == trackerID {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryVehicleStore) List(context.Context) ([]models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusNumber < out[j].BusNumber })
	return out, nil
}

func (s *MemoryVehicleStore) UpdateLocation(_ context.Context, id primitive.ObjectID, snap models.LocationSnapshot) error {
	return s.update(id, func(v *models.Vehicle) { v.LastKnownLocation = &snap })
}

func (s *MemoryVehicleStore) UpdateStatus(_ context.Context, id primitive.ObjectID, status string) error {
	return s.update(id, func(v *models.Vehicle) { v.Status = status })
}

func (s *MemoryVehicleStore) update(id primitive.ObjectID, fn func(*models.Vehicle)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	fn(&v)
	v.UpdatedAt = time.Now()
	s.vehicles[id] = v
	return nil
}

type MemoryTripLedger struct {
	mu    sync.Mutex
	trips []*models.Trip
	loc   *time.Location
	now   func() time.Time
}

func NewMemoryTripLedger(loc *time.Location) *MemoryTripLedger {
	if loc == nil {
		loc = time.Local
	}
	return &MemoryTripLedger{loc: loc, now: time.Now}
}

func (l *MemoryTripLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryTripLedger) AppendSample(_ context.Context, owner TripOwner, sample models.PositionSample) (*models.Trip, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	day := models.WindowDay(now, l.loc)

	var open *models.Trip
	for _, t := range l.trips {
		if t.VehicleID != owner.VehicleID || !t.Open() {
			continue
		}
		if t.WindowDay < day {
			end, err := models.WindowDayEnd(t.WindowDay, l.loc)
			if err != nil {
				end = now
			}
			l.complete(t, end, nil, now)
			continue
		}
		if t.WindowDay == day {
			open = t
		}
	}

	created := false
	if open == nil {
		open = &models.Trip{
			ID:        primitive.NewObjectID(),
			VehicleID: owner.VehicleID,
			DriverID:  owner.DriverID,
			RouteID:   owner.RouteID,
			WindowDay: day,
			StartTime: now,
			Status:    models.TripStatusInProgress,
			CreatedAt: now,
		}
		l.trips = append(l.trips, open)
		created = true
	}

	open.Samples = append(open.Samples, sample)
	open.SampleCount++
	if s := sample.SpeedValue(); sample.Speed != nil && s > open.MaxSpeed {
		open.MaxSpeed = s
	}
	open.UpdatedAt = now

	out := copyTrip(open)
	out.Samples = nil
	return out, created, nil
}

func (l *MemoryTripLedger) complete(t *models.Trip, end time.Time, coords *models.Coordinates, now time.Time) {
	t.Normalize()
	t.Status = models.TripStatusCompleted
	t.EndTime = &end
	if coords != nil {
		c := *coords
		t.EndCoordinates = &c
	}
	t.UpdatedAt = now
}

func (l *MemoryTripLedger) CloseTrip(_ context.Context, vehicleID primitive.ObjectID, end *models.Coordinates) (*models.Trip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var open *models.Trip
	for _, t := range l.trips {
		if t.VehicleID == vehicleID && t.Open() && (open == nil || t.StartTime.After(open.StartTime)) {
			open = t
		}
	}
	if open == nil {
		return nil, nil
	}
	now := l.now()
	l.complete(open, now, end, now)
	return copyTrip(open), nil
}

func (l *MemoryTripLedger) RecentTrips(_ context.Context, vehicleID primitive.ObjectID, limit int) ([]models.Trip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []models.Trip{}
	for _, t := range l.trips {
		if t.VehicleID == vehicleID {
			out = append(out, *copyTrip(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

func (l *MemoryTripLedger) TripsByDay(_ context.Context, day string) ([]models.Trip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Trip
	for _, t := range l.trips {
		if t.WindowDay == day {
			c := copyTrip(t)
			if c.Open() {
				c.Normalize()
			}
			c.Samples = nil
			out = append(out, *c)
		}
	}
	return out, nil
}

func (l *MemoryTripLedger) DeleteClosedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.trips[:0]
	var removed int64
	for _, t := range l.trips {
		if !t.Open() && t.StartTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	l.trips = kept
	return removed, nil
}

func (l *MemoryTripLedger) FindArchivable(_ context.Context, cutoff time.Time, limit int) ([]models.Trip, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Trip
	for _, t := range l.trips {
		if archivable(t, cutoff) {
			out = append(out, *copyTrip(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryTripLedger) MarkArchived(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	now := l.now()
	var n int64
	for _, t := range l.trips {
		if want[t.ID] && !t.Archived {
			markArchived(t, now)
			n++
		}
	}
	return n, nil
}

func (l *MemoryTripLedger) MarkArchivedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var n int64
	for _, t := range l.trips {
		if archivable(t, cutoff) {
			markArchived(t, now)
			n++
		}
	}
	return n, nil
}

// Insert stores a trip as-is. Used to seed demo data and fixtures.
func (l *MemoryTripLedger) Insert(t models.Trip) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	l.trips = append(l.trips, copyTrip(&t))
}

func archivable(t *models.Trip, cutoff time.Time) bool {
	return !t.Open() && !t.Archived && t.StartTime.Before(cutoff)
}

func markArchived(t *models.Trip, now time.Time) {
	t.Archived = true
	t.ArchivedAt = &now
	t.UpdatedAt = now
}

func copyTrip(t *models.Trip) *models.Trip {
	c := *t
	c.Samples = make([]models.PositionSample, len(t.Samples))
	copy(c.Samples, t.Samples)
	return &c
}

type MemoryAlertStore struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) Create(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	a.CreatedAt = time.Now()
	if a.Timestamp.IsZero() {
		a.Timestamp = a.CreatedAt
	}
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *MemoryAlertStore) Resolve(_ context.Context, id primitive.ObjectID, response string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		now := time.Now()
		s.alerts[i].Resolved = true
		s.alerts[i].ResolvedAt = &now
		if response != "" {
			s.alerts[i].Response = response
		}
		a := s.alerts[i]
		return &a, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryAlertStore) Stats(_ context.Context, since time.Time) (models.AlertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := newStats()
	for _, a := range s.alerts {
		if a.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		if a.Resolved {
			stats.Resolved++
		}
		stats.ByType[a.Type]++
		stats.ByPriority[a.Priority]++
	}
	finishStats(&stats)
	return stats, nil
}

func (s *MemoryAlertStore) Count(_ context.Context, f AlertFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, a := range s.alerts {
		if f.VehicleID != nil && a.VehicleID != *f.VehicleID {
			continue
		}
		if !f.From.IsZero() && a.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Timestamp.Before(f.To) {
			continue
		}
		n++
	}
	return n, nil
}

func (s *MemoryAlertStore) DeleteResolvedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	var removed int64
	for _, a := range s.alerts {
		if a.Resolved && a.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed, nil
}

// All returns a copy of every stored alert.
func (s *MemoryAlertStore) All() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

type MemoryFeedbackStore struct {
	mu       sync.Mutex
	feedback []models.Feedback
}

func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{}
}

func (s *MemoryFeedbackStore) Create(_ context.Context, f *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.feedback = append(s.feedback, *f)
	return nil
}

func (s *MemoryFeedbackStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.feedback[:0]
	var removed int64
	for _, f := range s.feedback {
		if f.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	s.feedback = kept
	return removed, nil
}

func (s *MemoryFeedbackStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feedback)
}
