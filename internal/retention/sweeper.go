// server/internal/retention/sweeper.go
package retention

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/archive"
	"ku-fleet-api-server/internal/cache"
	"ku-fleet-api-server/internal/jobs"
	"ku-fleet-api-server/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sweep job names on the cleanup queue.
const (
	JobCleanupTrips    = "cleanupOldTripLogs"
	JobCleanupAlerts   = "cleanupOldAlerts"
	JobCleanupFeedback = "cleanupOldFeedback"
	JobClearCache      = "clearExpiredCache"
	JobArchive         = "archiveOldData"
)

const archiveBatch = 100

const day = 24 * time.Hour

// Metrics is satisfied by metrics.Collector.
type Metrics interface {
	SweepRemoved(sweep string, n int64)
}

type Policy struct {
	TripDays      int
	AlertDays     int
	FeedbackDays  int
	ArchiveDays   int
	CachePatterns []string
}

func PolicyFromConfig(cfg config.RetentionConfig) Policy {
	return Policy{
		TripDays:      cfg.TripDays,
		AlertDays:     cfg.AlertDays,
		FeedbackDays:  cfg.FeedbackDays,
		ArchiveDays:   cfg.ArchiveDays,
		CachePatterns: cfg.CachePatterns,
	}
}

// Deps wires a Sweeper. Archiver and Metrics are optional.
type Deps struct {
	Trips    store.TripLedger
	Alerts   store.AlertStore
	Feedback store.FeedbackStore
	Cache    cache.Cache
	Archiver archive.Archiver
	Metrics  Metrics
	Policy   Policy
}

// Sweeper deletes or archives records past their retention window.
type Sweeper struct {
	trips    store.TripLedger
	alerts   store.AlertStore
	feedback store.FeedbackStore
	cache    cache.Cache
	archiver archive.Archiver
	metrics  Metrics
	policy   Policy
	now      func() time.Time
}

func NewSweeper(d Deps) *Sweeper {
	return &Sweeper{
		trips:    d.Trips,
		alerts:   d.Alerts,
		feedback: d.Feedback,
		cache:    d.Cache,
		archiver: d.Archiver,
		metrics:  d.Metrics,
		policy:   d.Policy,
		now:      time.Now,
	}
}

func (s *Sweeper) cutoff(days int) time.Time {
	return s.now().Add(-time.Duration(days) * day)
}

func (s *Sweeper) removed(sweep string, n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.SweepRemoved(sweep, n)
	}
}

// CleanupTrips deletes closed trips that started before the trip window.
// Open trips are never touched.
func (s *Sweeper) CleanupTrips(ctx context.Context) (int64, error) {
	n, err := s.trips.DeleteClosedBefore(ctx, s.cutoff(s.policy.TripDays))
	if err != nil {
		return 0, fmt.Errorf("cleanup trips: %w", err)
	}
	s.removed(JobCleanupTrips, n)
	return n, nil
}

// CleanupAlerts deletes resolved alerts only.
func (s *Sweeper) CleanupAlerts(ctx context.Context) (int64, error) {
	n, err := s.alerts.DeleteResolvedBefore(ctx, s.cutoff(s.policy.AlertDays))
	if err != nil {
		return 0, fmt.Errorf("cleanup alerts: %w", err)
	}
	s.removed(JobCleanupAlerts, n)
	return n, nil
}

func (s *Sweeper) CleanupFeedback(ctx context.Context) (int64, error) {
	n, err := s.feedback.DeleteBefore(ctx, s.cutoff(s.policy.FeedbackDays))
	if err != nil {
		return 0, fmt.Errorf("cleanup feedback: %w", err)
	}
	s.removed(JobCleanupFeedback, n)
	return n, nil
}

// ClearCache removes keys in the configured namespaces that never got a TTL.
// Every pattern is tried even when an earlier one fails.
func (s *Sweeper) ClearCache(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	for _, pattern := range s.policy.CachePatterns {
		n, err := s.cache.PurgeWithoutTTL(ctx, pattern)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", pattern, err))
		}
	}
	s.removed(JobClearCache, total)
	return total, errors.Join(errs...)
}

// Archive marks old closed trips archived. With an archiver configured each
// trip is exported first and only exported trips are marked.
func (s *Sweeper) Archive(ctx context.Context) (int64, error) {
	cutoff := s.cutoff(s.policy.ArchiveDays)
	if s.archiver == nil {
		n, err := s.trips.MarkArchivedBefore(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("archive trips: %w", err)
		}
		s.removed(JobArchive, n)
		return n, nil
	}

	var total int64
	for {
		batch, err := s.trips.FindArchivable(ctx, cutoff, archiveBatch)
		if err != nil {
			return total, fmt.Errorf("find archivable trips: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		ids := make([]primitive.ObjectID, 0, len(batch))
		var uploadErr error
		for _, trip := range batch {
			if _, err := s.archiver.ArchiveTrip(ctx, trip); err != nil {
				uploadErr = err
				break
			}
			ids = append(ids, trip.ID)
		}
		if len(ids) > 0 {
			n, err := s.trips.MarkArchived(ctx, ids)
			total += n
			if err != nil {
				return total, fmt.Errorf("mark trips archived: %w", err)
			}
		}
		// A failed upload leaves the trip archivable; the next run picks it up.
		if uploadErr != nil {
			s.removed(JobArchive, total)
			return total, uploadErr
		}
		if len(batch) < archiveBatch {
			break
		}
	}
	s.removed(JobArchive, total)
	return total, nil
}

// HandlerRegistry is satisfied by jobs.Runner.
type HandlerRegistry interface {
	Handle(queue, name string, h jobs.Handler)
}

// RegisterHandlers binds each sweep to its job on the cleanup queue.
func (s *Sweeper) RegisterHandlers(r HandlerRegistry) {
	sweeps := map[string]struct {
		run  func(context.Context) (int64, error)
		what string
	}{
		JobCleanupTrips:    {s.CleanupTrips, "old trip logs"},
		JobCleanupAlerts:   {s.CleanupAlerts, "resolved alerts"},
		JobCleanupFeedback: {s.CleanupFeedback, "old feedback entries"},
		JobClearCache:      {s.ClearCache, "cache keys without TTL"},
		JobArchive:         {s.Archive, "trips archived"},
	}
	for name, sw := range sweeps {
		name, sw := name, sw
		r.Handle(jobs.QueueCleanup, name, func(ctx context.Context, _ *jobs.Job) error {
			n, err := sw.run(ctx)
			if err != nil {
				log.Printf("Sweep %s failed after %d: %v", name, n, err)
				return err
			}
			log.Printf("Sweep %s: %d %s", name, n, sw.what)
			return nil
		})
	}
}
