// server/internal/jobs/memory_broker.go
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

type delayedJob struct {
	job *Job
	due time.Time
}

type memoryQueue struct {
	wait      []*Job
	active    map[string]*Job
	delayed   []delayedJob
	completed []Job
	failed    []Job
	notify    chan struct{}
}

// MemoryBroker keeps queues in process memory. Jobs do not survive a restart.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]*memoryQueue
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{queues: make(map[string]*memoryQueue)}
}

func (b *MemoryBroker) queue(name string) *memoryQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{active: make(map[string]*Job), notify: make(chan struct{}, 1)}
		b.queues[name] = q
	}
	return q
}

func (q *memoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func cloneJob(j *Job) *Job {
	c := *j
	c.Payload = append([]byte(nil), j.Payload...)
	return &c
}

func (b *MemoryBroker) Push(_ context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	job.State = StateWaiting
	q := b.queue(job.Queue)
	q.wait = append(q.wait, cloneJob(job))
	q.wake()
	return nil
}

func (b *MemoryBroker) Pop(ctx context.Context, queue string, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		q := b.queue(queue)
		now := time.Now()
		q.promote(now)
		if len(q.wait) > 0 {
			job := q.wait[0]
			q.wait = q.wait[1:]
			job.State = StateActive
			q.active[job.ID] = job
			b.mu.Unlock()
			return cloneJob(job), nil
		}
		wait := deadline.Sub(now)
		for _, d := range q.delayed {
			if until := d.due.Sub(now); until < wait {
				wait = until
			}
		}
		notify := q.notify
		b.mu.Unlock()

		if wait <= 0 {
			return nil, nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *memoryQueue) promote(now time.Time) {
	kept := q.delayed[:0]
	for _, d := range q.delayed {
		if !d.due.After(now) {
			d.job.State = StateWaiting
			q.wait = append(q.wait, d.job)
			continue
		}
		kept = append(kept, d)
	}
	q.delayed = kept
}

func (b *MemoryBroker) finish(job *Job, state string, keep int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)

	now := time.Now()
	done := *cloneJob(job)
	done.State = state
	done.FinishedAt = &now
	job.State = state
	job.FinishedAt = &now

	history := &q.completed
	if state == StateFailed {
		history = &q.failed
	}
	*history = append([]Job{done}, *history...)
	if keep > 0 && len(*history) > keep {
		*history = (*history)[:keep]
	}
}

func (b *MemoryBroker) Complete(_ context.Context, job *Job, keep int) error {
	b.finish(job, StateCompleted, keep)
	return nil
}

func (b *MemoryBroker) Fail(_ context.Context, job *Job, keep int) error {
	b.finish(job, StateFailed, keep)
	return nil
}

func (b *MemoryBroker) Retry(_ context.Context, job *Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(job.Queue)
	delete(q.active, job.ID)
	job.State = StateDelayed
	q.delayed = append(q.delayed, delayedJob{job: cloneJob(job), due: time.Now().Add(delay)})
	q.wake()
	return nil
}

func (b *MemoryBroker) Recover(_ context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	stranded := make([]*Job, 0, len(q.active))
	for id, j := range q.active {
		stranded = append(stranded, j)
		delete(q.active, id)
	}
	sort.Slice(stranded, func(i, k int) bool { return stranded[i].EnqueuedAt.Before(stranded[k].EnqueuedAt) })
	for _, j := range stranded {
		j.State = StateWaiting
	}
	q.wait = append(stranded, q.wait...)
	if len(stranded) > 0 {
		q.wake()
	}
	return len(stranded), nil
}

func (b *MemoryBroker) Counts(_ context.Context, queue string) (Counts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	return Counts{
		Waiting:   int64(len(q.wait)),
		Active:    int64(len(q.active)),
		Delayed:   int64(len(q.delayed)),
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
	}, nil
}

func (b *MemoryBroker) Failed(_ context.Context, queue string, limit int) ([]Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(queue)
	n := len(q.failed)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Job, n)
	copy(out, q.failed[:n])
	return out, nil
}
