// server/internal/jobs/runner.go
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

const defaultPollTimeout = time.Second

// Handler processes one job. Returning an error schedules a retry until the
// job runs out of attempts. Handlers must tolerate running more than once.
type Handler func(ctx context.Context, job *Job) error

// QueueOptions holds the worker and retry policy of one queue.
type QueueOptions struct {
	Concurrency     int
	Attempts        int
	Backoff         time.Duration
	KeepCompleted   int
	KeepFailed      int
	FailedThreshold int64
}

// Observer receives job outcomes and queue snapshots, e.g. for metrics.
type Observer interface {
	JobFinished(queue, name, state string, took time.Duration)
	QueueCounts(queue string, c Counts)
}

// Option adjusts a single enqueue.
type Option func(*Job)

// WithAttempts overrides the queue's default attempt count.
func WithAttempts(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

// WithBackoff overrides the queue's default base retry delay.
func WithBackoff(d time.Duration) Option {
	return func(j *Job) { j.Backoff = d }
}

var ErrUnknownQueue = errors.New("unknown queue")

// Runner dispatches jobs from a Broker to registered handlers using a fixed
// pool of workers per queue.
type Runner struct {
	broker   Broker
	queues   map[string]QueueOptions
	observer Observer

	mu       sync.RWMutex
	handlers map[string]map[string]Handler

	pollTimeout time.Duration
	wg          sync.WaitGroup
}

func NewRunner(broker Broker, queues map[string]QueueOptions) *Runner {
	return &Runner{
		broker:      broker,
		queues:      queues,
		handlers:    make(map[string]map[string]Handler),
		pollTimeout: defaultPollTimeout,
	}
}

func (r *Runner) SetObserver(o Observer) { r.observer = o }

// Queues lists the configured queue names.
func (r *Runner) Queues() []string {
	names := make([]string, 0, len(r.queues))
	for _, q := range []string{QueueTrip, QueueAnalytics, QueueCleanup} {
		if _, ok := r.queues[q]; ok {
			names = append(names, q)
		}
	}
	for q := range r.queues {
		if q != QueueTrip && q != QueueAnalytics && q != QueueCleanup {
			names = append(names, q)
		}
	}
	return names
}

// Handle registers h for jobs called name on queue.
func (r *Runner) Handle(queue, name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers[queue] == nil {
		r.handlers[queue] = make(map[string]Handler)
	}
	r.handlers[queue][name] = h
}

func (r *Runner) handler(queue, name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[queue][name]
	return h, ok
}

// Enqueue stores a job for asynchronous processing.
func (r *Runner) Enqueue(ctx context.Context, queue, name string, payload any, opts ...Option) (*Job, error) {
	qo, ok := r.queues[queue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	job, err := newJob(queue, name, payload, qo.Attempts, qo.Backoff)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(job)
	}
	if err := r.broker.Push(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Start launches the workers. They stop taking new jobs once ctx is done;
// a job already in hand runs to completion. Call Wait to block on that.
func (r *Runner) Start(ctx context.Context) {
	for _, queue := range r.Queues() {
		qo := r.queues[queue]
		if n, err := r.broker.Recover(ctx, queue); err != nil {
			log.Printf("Queue %s: recovering stranded jobs failed: %v", queue, err)
		} else if n > 0 {
			log.Printf("Queue %s: requeued %d stranded jobs", queue, n)
		}

		workers := qo.Concurrency
		if workers < 1 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			r.wg.Add(1)
			go r.work(ctx, queue, qo)
		}
		log.Printf("Queue %s: started %d workers", queue, workers)
	}
}

// Wait blocks until every worker has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) work(ctx context.Context, queue string, qo QueueOptions) {
	defer r.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := r.broker.Pop(ctx, queue, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Queue %s: %v", queue, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}
		// Shutdown must not abort the job in hand.
		r.process(context.WithoutCancel(ctx), job, qo)
	}
}

func (r *Runner) process(ctx context.Context, job *Job, qo QueueOptions) {
	job.Attempt++
	job.State = StateActive
	start := time.Now()

	err := r.run(ctx, job)
	took := time.Since(start)

	if err == nil {
		job.Error = ""
		if err := r.broker.Complete(ctx, job, qo.KeepCompleted); err != nil {
			log.Printf("Queue %s: recording completion of %s failed: %v", job.Queue, job.ID, err)
		}
		r.observe(job, StateCompleted, took)
		return
	}

	job.Error = err.Error()
	if job.Attempt < job.MaxAttempts {
		delay := job.RetryDelay()
		log.Printf("Job %s (%s) attempt %d/%d failed: %v; retrying in %s", job.ID, job.Name, job.Attempt, job.MaxAttempts, err, delay)
		if err := r.broker.Retry(ctx, job, delay); err != nil {
			log.Printf("Queue %s: scheduling retry of %s failed: %v", job.Queue, job.ID, err)
		}
		r.observe(job, StateDelayed, took)
		return
	}

	log.Printf("Job %s (%s) failed after %d attempts: %v", job.ID, job.Name, job.Attempt, err)
	if err := r.broker.Fail(ctx, job, qo.KeepFailed); err != nil {
		log.Printf("Queue %s: recording failure of %s failed: %v", job.Queue, job.ID, err)
	}
	r.observe(job, StateFailed, took)
}

func (r *Runner) run(ctx context.Context, job *Job) (err error) {
	h, ok := r.handler(job.Queue, job.Name)
	if !ok {
		// Retrying cannot help an unknown job name.
		job.MaxAttempts = job.Attempt
		return fmt.Errorf("no handler for %s on %s", job.Name, job.Queue)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Job %s (%s) panicked: %v\n%s", job.ID, job.Name, p, debug.Stack())
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) observe(job *Job, state string, took time.Duration) {
	if r.observer != nil {
		r.observer.JobFinished(job.Queue, job.Name, state, took)
	}
}

// Counts reports every configured queue.
func (r *Runner) Counts(ctx context.Context) (map[string]Counts, error) {
	out := make(map[string]Counts, len(r.queues))
	for _, q := range r.Queues() {
		c, err := r.broker.Counts(ctx, q)
		if err != nil {
			return nil, err
		}
		out[q] = c
	}
	return out, nil
}

// Failed lists the retained failed jobs of queue, newest first.
func (r *Runner) Failed(ctx context.Context, queue string, limit int) ([]Job, error) {
	if _, ok := r.queues[queue]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return r.broker.Failed(ctx, queue, limit)
}
