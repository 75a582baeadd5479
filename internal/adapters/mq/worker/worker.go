// Package worker applies queued score events to leaderboards.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = model.ScoreEvent

// Applier writes one event to its leaderboard.
type Applier interface {
	Apply(ctx context.Context, e Event) (changed bool, err error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining the queue.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing events.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
	onApplied func(Event, bool, error)

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, event); err != nil {
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of events applied successfully.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of events that could not be applied.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) processEvent(ctx context.Context, event Event) error { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	changed, err := w.applier.Apply(ctx, event)
	if w.onApplied != nil {
		w.onApplied(event, changed, err)
	}
	if err != nil {
		w.failed.Add(1)
		metrics.RecordEventFailed(string(event.Mode))
		return fmt.Errorf("apply event %s to %s: %w", event.EventID, event.Leaderboard, err)
	}

	w.processed.Add(1)
	metrics.RecordEventApplied(string(event.Mode), changed)
	w.logger.Debug(ctx, "event applied",
		logger.String("eventID", event.EventID),
		logger.String("leaderboard", event.Leaderboard),
		logger.String("member", event.Member),
		logger.Bool("changed", changed),
	)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	mu      sync.Mutex
	started bool

	logger logger.Logger
}

// NewPool creates a new worker pool. A non-positive workerCount sizes the
// pool from the CPU count.
func NewPool(workerCount int, queue Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(queue, applier, wopts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of events applied by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed returns the number of events all workers failed to apply.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop stops all workers without draining the queue.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()
	for _, worker := range p.workers {
		worker.shutdownOnce.Do(func() { close(worker.shutdown) })
	}
	p.wait(ctx)
}

// Shutdown closes the queue and lets workers drain it, forcing them to stop
// once ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if !p.wait(ctx) {
		p.Stop()
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
	return nil
}

// wait blocks until every started worker is done or ctx ends.
func (p *Pool) wait(ctx context.Context) bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return true
	}
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return false
		}
	}
	return true
}
