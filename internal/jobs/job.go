// server/internal/jobs/job.go
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	QueueTrip      = "tripQueue"
	QueueAnalytics = "analyticsQueue"
	QueueCleanup   = "cleanupQueue"
)

const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Job is one unit of background work. Payload is the handler's input as JSON.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Attempt     int             `json:"attempt"` // attempts already started
	MaxAttempts int             `json:"maxAttempts"`
	Backoff     time.Duration   `json:"backoff"`
	State       string          `json:"state"`
	Error       string          `json:"error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`

	// raw is the exact encoding the broker handed out, needed to ack it.
	raw string
}

func newJob(queue, name string, payload any, attempts int, backoff time.Duration) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Job{
		ID:          uuid.New().String(),
		Queue:       queue,
		Name:        name,
		Payload:     body,
		MaxAttempts: attempts,
		Backoff:     backoff,
		State:       StateWaiting,
		EnqueuedAt:  time.Now(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Name, err)
	}
	return nil
}

// RetryDelay is the wait before the next attempt: backoff doubled per
// attempt already made.
func (j *Job) RetryDelay() time.Duration {
	if j.Attempt < 1 {
		return j.Backoff
	}
	return j.Backoff * time.Duration(1<<(j.Attempt-1))
}

func (j *Job) encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", j.ID, err)
	}
	return string(b), nil
}

func decodeJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	j.raw = raw
	return &j, nil
}
