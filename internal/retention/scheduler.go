// server/internal/retention/scheduler.go
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"ku-fleet-api-server/config"
	"ku-fleet-api-server/internal/jobs"

	"github.com/robfig/cron/v3"
)

// Enqueuer is satisfied by jobs.Runner.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, name string, payload any, opts ...jobs.Option) (*jobs.Job, error)
}

// Scheduler turns cron specs into queued jobs. It does no work itself.
type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
}

func NewScheduler(queue Enqueuer, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(loc)),
		queue: queue,
	}
}

// Add enqueues job name on queue every time spec fires.
func (s *Scheduler) Add(spec, queue, name string, payload any, opts ...jobs.Option) error {
	_, err := s.cron.AddFunc(spec, func() {
		job, err := s.queue.Enqueue(context.Background(), queue, name, payload, opts...)
		if err != nil {
			log.Printf("Scheduled job %s on %s could not be queued: %v", name, queue, err)
			return
		}
		log.Printf("Scheduled job %s queued on %s (%s)", name, queue, job.ID)
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	return nil
}

// AddSweeps registers every retention sweep. Sweeps run once per firing;
// the next scheduled run is their retry.
func (s *Scheduler) AddSweeps(cfg config.RetentionConfig) error {
	entries := []struct{ spec, name string }{
		{cfg.CleanupSchedule, JobCleanupTrips},
		{cfg.CleanupSchedule, JobCleanupAlerts},
		{cfg.CleanupSchedule, JobCleanupFeedback},
		{cfg.CacheSchedule, JobClearCache},
		{cfg.ArchiveSchedule, JobArchive},
	}
	for _, e := range entries {
		if err := s.Add(e.spec, jobs.QueueCleanup, e.name, nil, jobs.WithAttempts(1)); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of registered schedules.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and returns a context done once running triggers return.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }
