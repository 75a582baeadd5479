// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	eventqueue "github.com/okian/ladder/internal/adapters/mq/queue"
	workerpool "github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/dedupe"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/leaderboard"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

const stopTimeout = 10 * time.Second

var (
	// ErrNotStarted is returned by calls that need a running service.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure is returned when the event queue rejects an event.
	ErrBackpressure = errors.New("backpressure")
)

// Board is the leaderboard shape served over the API: string members,
// float scores and opaque JSON payloads.
type Board = leaderboard.Board[string, float64, json.RawMessage]

// Store is the ordered-set store the boards live in.
type Store = repository.Store

// StoreFactory opens the store at Start.
type StoreFactory func(ctx context.Context) (Store, error)

// BoardSettings are the engine defaults for one board.
type BoardSettings struct {
	PageSize int
	Reverse  bool
}

// Ack reports what happened to a submitted event.
type Ack = model.Ack

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	boardsMu   sync.Mutex
	boards     map[string]*leaderboard.Leaderboard[string, float64, json.RawMessage]
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	openStore   StoreFactory
	settings    func(name string) BoardSettings
	workerCount int
	queueSize   int
	dedupeSize  int
	hydration   int

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHydrationConcurrency bounds parallel member-data lookups per query.
func WithHydrationConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.hydration = n
		}
	}
}

// WithStore sets how the store is opened. The default is an in-memory store.
func WithStore(open StoreFactory) Option {
	return func(s *Service) {
		if open != nil {
			s.openStore = open
		}
	}
}

// WithBoardSettings sets the per-board engine defaults.
func WithBoardSettings(fn func(name string) BoardSettings) Option {
	return func(s *Service) {
		if fn != nil {
			s.settings = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		boards:     make(map[string]*leaderboard.Leaderboard[string, float64, json.RawMessage]),
		queueSize:  100_000,
		dedupeSize: 50_000,
		hydration:  8,
		openStore: func(ctx context.Context) (Store, error) {
			return repository.NewMemoryStore(ctx), nil
		},
		settings: func(string) BoardSettings {
			return BoardSettings{PageSize: leaderboard.DefaultPageSize}
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store and starts the ingestion pipeline. Workers outlive
// ctx; they stop in Stop or Shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	store, err := s.openStore(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open store: %w", err)
	}

	s.store = store
	s.cancel = cancel
	s.boards = make(map[string]*leaderboard.Leaderboard[string, float64, json.RawMessage])
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	applier := workerpool.NewLeaderboardApplier(func(name string) workerpool.Board {
		return s.board(name)
	})
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, applier)
	s.workerPool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Shutdown stops accepting events, drains the queue into the store, then
// closes the store. Workers still running when ctx ends are abandoned.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped",
		logger.Int64("processed", s.workerPool.Processed()),
		logger.Int64("failed", s.workerPool.Failed()),
	)
	return errors.Join(errs...)
}

// Stop is Shutdown with a bounded wait.
func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil && s.logger != nil {
		s.logger.Warn(ctx, "unclean shutdown", logger.Error(err))
	}
}

// Board returns the leaderboard called name.
func (s *Service) Board(name string) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.board(name), nil
}

// board caches one engine per name. Workers call it without s.mu.
func (s *Service) board(name string) *leaderboard.Leaderboard[string, float64, json.RawMessage] {
	s.boardsMu.Lock()
	defer s.boardsMu.Unlock()
	if lb, ok := s.boards[name]; ok {
		return lb
	}
	cfg := s.settings(name)
	lb := leaderboard.New[string, float64, json.RawMessage](name, s.store,
		leaderboard.WithPageSize(cfg.PageSize),
		leaderboard.WithReverse(cfg.Reverse),
		leaderboard.WithHydrationConcurrency(s.hydration),
	)
	s.boards[name] = lb
	return lb
}

// Submit validates an event and queues it for the workers. A repeated event
// id is acknowledged as a duplicate without being queued again.
func (s *Service) Submit(ctx context.Context, e model.ScoreEvent) (Ack, error) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return Ack{}, ErrNotStarted
	}

	e.Normalize()
	if err := e.Validate(); err != nil {
		return Ack{}, err
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event detected, skipping",
			logger.String("eventID", e.EventID),
			logger.String("leaderboard", e.Leaderboard),
		)
		return Ack{EventID: e.EventID, Duplicate: true}, nil
	}

	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		// Let a retry through once the queue has room.
		s.deduper.Unrecord(ctx, e.EventID)
		if errors.Is(err, eventqueue.ErrFull) || errors.Is(err, eventqueue.ErrClosed) {
			return Ack{}, fmt.Errorf("%w: %w", ErrBackpressure, err)
		}
		return Ack{}, err
	}

	metrics.RecordEventAccepted()
	return Ack{EventID: e.EventID}, nil
}

// Ping checks the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(context.Background())
		s.boardsMu.Lock()
		boards := len(s.boards)
		s.boardsMu.Unlock()

		stats["workerCount"] = s.workerPool.Size()
		stats["queueLength"] = queueLen
		stats["queueCapacity"] = s.eventQueue.Capacity()
		stats["dedupeEntries"] = s.deduper.Size()
		stats["eventsProcessed"] = s.workerPool.Processed()
		stats["eventsFailed"] = s.workerPool.Failed()
		stats["boardsOpened"] = boards

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerPool.Size())
	}

	return stats
}
