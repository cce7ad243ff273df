package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
)

func job(key string) Job {
	return Job{Key: key, UID: "u1", Drills: []drill.Drill{drill.New()}}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	stamp := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	q := NewInMemoryQueue(WithCapacity(2), WithClock(func() time.Time { return stamp }))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, job("k1")) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.Key != "k1" {
		t.Errorf("expected k1, got %q", got.Key)
	}
	if !got.EnqueuedAt.Equal(stamp) {
		t.Errorf("expected EnqueuedAt %v, got %v", stamp, got.EnqueuedAt)
	}
	if len(got.Drills) != 1 {
		t.Errorf("expected 1 drill, got %d", len(got.Drills))
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, job("k1")) || !q.Enqueue(ctx, job("k2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job("k3")) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if q.Enqueue(ctx, job("k1")) {
		t.Error("expected enqueue to fail with a cancelled context")
	}
}

func TestInMemoryQueue_CloseDrains(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, job(fmt.Sprintf("k%d", i)))
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, job("late")) {
		t.Error("expected enqueue after close to fail")
	}

	var keys []string
	for j := range q.Dequeue(ctx) {
		keys = append(keys, j.Key)
	}
	if fmt.Sprint(keys) != "[k0 k1 k2]" {
		t.Errorf("expected queued jobs in order, got %v", keys)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 8, 25
	q := NewInMemoryQueue(WithCapacity(producers * perProducer))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !q.Enqueue(ctx, job(fmt.Sprintf("p%d-%d", p, i))) {
					t.Errorf("enqueue p%d-%d failed", p, i)
				}
			}
		}(p)
	}
	wg.Wait()
	_ = q.Close()

	seen := make(map[string]bool)
	for j := range q.Dequeue(ctx) {
		if seen[j.Key] {
			t.Errorf("job %s delivered twice", j.Key)
		}
		seen[j.Key] = true
	}
	if len(seen) != producers*perProducer {
		t.Errorf("expected %d jobs, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_CancelledConsumerKeepsJob(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())

	if !q.Enqueue(context.Background(), job("k1")) {
		t.Fatal("expected enqueue to succeed")
	}

	// Nobody reads this channel, so the job is taken off the queue and
	// stuck in the handoff until the consumer is cancelled.
	q.Dequeue(ctx)
	waitFor(t, func() bool { return len(q.jobs) == 0 })
	cancel()
	waitFor(t, func() bool { return q.Len(context.Background()) == 1 })

	_ = q.Close()
	var keys []string
	for j := range q.Dequeue(context.Background()) {
		keys = append(keys, j.Key)
	}
	if len(keys) != 1 || keys[0] != "k1" {
		t.Errorf("expected [k1] redelivered, got %v", keys)
	}
	if l := q.Len(context.Background()); l != 0 {
		t.Errorf("expected empty queue, got %d", l)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
