// Package worker drains the history queue into the drill store.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/pepai/internal/adapters/mq/queue"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
	saveTimeout           = 15 * time.Second
)

// Saver persists a batch of drills for one user.
type Saver interface {
	SaveDrills(ctx context.Context, uid string, ds []drill.Drill) ([]repository.SavedDrill, error)
}

// Forgetter releases an idempotency key after a failed save so the client
// can retry it.
type Forgetter interface {
	Unrecord(ctx context.Context, key string)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker saves the jobs it pulls off a Queue.
type InMemoryWorker struct {
	queue  Queue
	saver  Saver
	keys   Forgetter
	name   string
	onDone func(ok bool)

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker. keys may be nil.
func NewInMemoryWorker(q Queue, saver Saver, keys Forgetter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		saver:    saver,
		keys:     keys,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	} else if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run saves jobs until ctx is done, Shutdown is called or the queue closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			err := w.process(ctx, j)
			if err != nil {
				w.logger.Error(ctx, "history save failed", logger.String("key", j.Key), logger.Error(err))
			}
			if w.onDone != nil {
				w.onDone(err == nil)
			}
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	// The request that enqueued the job is long gone; only the worker's
	// own lifetime bounds the write.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	saved, err := w.saver.SaveDrills(sctx, j.UID, j.Drills)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "save_error")
		metrics.RecordErrorByType("save_error", "high")
		if w.keys != nil && j.Key != "" {
			w.keys.Unrecord(ctx, j.Key)
		}
		return fmt.Errorf("save %d drills for %s: %w", len(j.Drills), j.UID, err)
	}

	metrics.RecordHistorySave(len(saved))
	w.logger.Debug(ctx, "history saved",
		logger.String("key", j.Key),
		logger.Int("drills", len(saved)),
		logger.Duration("waited", start.Sub(j.EnqueuedAt)),
	)
	return nil
}

// Stats is a point-in-time view of pool throughput.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	shutdown chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	window    atomic.Int64

	logger logger.Logger
}

// NewPool creates workerCount workers. Fewer than one means runtime.NumCPU().
func NewPool(workerCount int, q Queue, saver Saver, keys Forgetter, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
	}
	base := &InMemoryWorker{}
	for _, opt := range opts {
		opt(base)
	}
	p.logger = base.logger
	if p.logger == nil {
		p.logger = logger.Named("worker-pool")
	}

	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)), withDone(p.record))
		p.workers[i] = NewInMemoryWorker(q, saver, keys, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerMessagesPerSecond(0)

	return p
}

func (p *Pool) record(ok bool) {
	p.window.Add(1)
	if ok {
		p.processed.Add(1)
		return
	}
	p.failed.Add(1)
}

// Start runs every worker and the throughput gauge.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.updateMetrics(ctx)
}

func (p *Pool) updateMetrics(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case now := <-ticker.C:
			if secs := now.Sub(last).Seconds(); secs > 0 {
				metrics.UpdateWorkerMessagesPerSecond(float64(p.window.Swap(0)) / secs)
			}
			last = now
		}
	}
}

// Stats implements the /stats provider.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   len(p.workers),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown closes the queue and waits for workers to drain it. Jobs left
// behind by workers that stopped early are saved before it returns.
func (p *Pool) Shutdown(ctx context.Context) error {
	closer, closable := p.queue.(interface{ Close() error })
	if closable {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
			closable = false
		}
	}
	close(p.shutdown)

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}

	if closable {
		if err := p.drain(ctx); err != nil {
			return err
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}

func (p *Pool) drain(ctx context.Context) error {
	w := p.workers[0]
	left := 0
	for j := range p.queue.Dequeue(ctx) {
		left++
		err := w.process(ctx, j)
		if err != nil {
			w.logger.Error(ctx, "history save failed", logger.String("key", j.Key), logger.Error(err))
		}
		p.record(err == nil)
	}
	if left > 0 {
		p.logger.Warn(ctx, "saved jobs left after workers stopped", logger.Int("jobs", left))
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordErrorByComponent("worker", "drain_timeout")
		return fmt.Errorf("drain history queue: %w", err)
	}
	return nil
}
