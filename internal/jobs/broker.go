// server/internal/jobs/broker.go
package jobs

import (
	"context"
	"time"
)

// Counts is a point-in-time view of one queue.
type Counts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Broker stores jobs between enqueue and completion. Implementations must be
// safe for concurrent use by many workers.
type Broker interface {
	// Push appends job to the waiting list of its queue.
	Push(ctx context.Context, job *Job) error
	// Pop moves the oldest waiting job to active. It returns (nil, nil) when
	// nothing arrived within timeout.
	Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error)
	// Complete and Fail remove an active job and record it in the bounded
	// history of its queue.
	Complete(ctx context.Context, job *Job, keep int) error
	Fail(ctx context.Context, job *Job, keep int) error
	// Retry removes an active job and makes it waiting again after delay.
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	// Recover returns jobs left active by a previous process to waiting.
	Recover(ctx context.Context, queue string) (int, error)

	Counts(ctx context.Context, queue string) (Counts, error)
	Failed(ctx context.Context, queue string, limit int) ([]Job, error)
}
