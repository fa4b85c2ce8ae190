// server/internal/jobs/health.go
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// QueueHealth is the health view of one queue.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Counts           `json:"counts"`
	Threshold int64  `json:"failedThreshold"`
	Healthy   bool   `json:"healthy"`
}

// CheckHealth compares each queue's failed history against its threshold.
// It only observes; nothing is retried or purged.
func (r *Runner) CheckHealth(ctx context.Context) ([]QueueHealth, error) {
	var report []QueueHealth
	for _, q := range r.Queues() {
		c, err := r.broker.Counts(ctx, q)
		if err != nil {
			return nil, err
		}
		threshold := r.queues[q].FailedThreshold
		h := QueueHealth{
			Queue:     q,
			Counts:    c,
			Threshold: threshold,
			Healthy:   threshold <= 0 || c.Failed <= threshold,
		}
		report = append(report, h)
		if r.observer != nil {
			r.observer.QueueCounts(q, c)
		}
	}
	return report, nil
}

// RunHealthLoop logs queue health every interval until ctx is done.
func (r *Runner) RunHealthLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logHealth(ctx)
		}
	}
}

func (r *Runner) logHealth(ctx context.Context) {
	report, err := r.CheckHealth(ctx)
	if err != nil {
		log.Printf("Queue health check failed: %v", err)
		return
	}
	for _, h := range report {
		log.Printf("Queue %s: %s", h.Queue, formatCounts(h.Counts))
		if !h.Healthy {
			log.Printf("WARNING: high number of failed jobs in %s: %d (threshold %d)", h.Queue, h.Failed, h.Threshold)
		}
	}
}

func formatCounts(c Counts) string {
	return fmt.Sprintf("waiting=%d active=%d delayed=%d completed=%d failed=%d",
		c.Waiting, c.Active, c.Delayed, c.Completed, c.Failed)
}
