// Package queue holds accepted history saves until a worker persists them.
//
// The queue is bounded; a full queue rejects instead of blocking so the HTTP
// layer can answer 429 right away.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/pkg/metrics"
)

const defaultCapacity = 1024

// Job is one accepted save request.
type Job struct {
	// Key is the idempotency key the request was accepted under.
	Key        string
	UID        string
	Drills     []drill.Drill
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns a channel of jobs. It is closed once the queue is
	// closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Capacity() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	now      func() time.Time

	mu     sync.RWMutex
	closed bool

	// held keeps jobs a consumer took off jobs but never delivered.
	heldMu sync.Mutex
	held   []Job
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue returns an empty queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)

	return q
}

// Enqueue implements Queue. EnqueuedAt is stamped if unset.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		q.reject("context_cancelled")
		return false
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = q.now()
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.gauge()
		return true
	default:
		q.reject("queue_full")
		return false
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

// Dequeue implements Queue. A job received while ctx ends is held and handed
// to the next Dequeue instead of being dropped.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			j, ok := q.next(ctx)
			if !ok {
				return
			}
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.gauge()
			case <-ctx.Done():
				q.hold(j)
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) next(ctx context.Context) (Job, bool) {
	q.heldMu.Lock()
	if len(q.held) > 0 {
		j := q.held[0]
		q.held = q.held[1:]
		q.heldMu.Unlock()
		return j, true
	}
	q.heldMu.Unlock()

	select {
	case <-ctx.Done():
		return Job{}, false
	case j, ok := <-q.jobs:
		return j, ok
	}
}

func (q *InMemoryQueue) hold(j Job) {
	q.heldMu.Lock()
	q.held = append(q.held, j)
	q.heldMu.Unlock()
	q.gauge()
}

// Len implements Queue.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.gauge()
	return q.size()
}

// Capacity implements Queue.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

func (q *InMemoryQueue) size() int {
	q.heldMu.Lock()
	defer q.heldMu.Unlock()
	return len(q.jobs) + len(q.held)
}

func (q *InMemoryQueue) gauge() {
	n := q.size()
	metrics.UpdateQueueSize(n)
	metrics.UpdateQueueUtilization(float64(n) / float64(q.capacity))
}

// Close stops accepting jobs. Jobs already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
