package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/leaderboard"
	logging "github.com/okian/ladder/pkg/logger"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

type mockQueue struct {
	eventChan chan queue.Event
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{eventChan: make(chan queue.Event, 10)}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan queue.Event { return mq.eventChan }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.eventChan) })
	return nil
}

type mockApplier struct {
	mu      sync.Mutex
	applied []string
	err     error
}

func (m *mockApplier) Apply(_ context.Context, e worker.Event) (bool, error) { //nolint:gocritic // hugeParam
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	m.applied = append(m.applied, e.EventID)
	return true, nil
}

func (m *mockApplier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

func newBoards(t *testing.T) (repository.Store, worker.BoardResolver) {
	store := repository.NewMemoryStore(context.Background())
	t.Cleanup(func() { _ = store.Close() })
	return store, func(name string) worker.Board {
		return leaderboard.New[string, float64, json.RawMessage](name, store)
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestLeaderboardApplier(t *testing.T) {
	convey.Convey("Given an applier over in-memory boards", t, func() {
		ctx := context.Background()
		_, boards := newBoards(t)
		a := worker.NewLeaderboardApplier(boards)
		weekly := boards("weekly")

		convey.Convey("When a set event carries data", func() {
			changed, err := a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "alice", Score: 10, Mode: model.ModeSet, Data: json.RawMessage(`{"team":"red"}`)})

			convey.Convey("Then score and payload are written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(changed, convey.ShouldBeTrue)
				s, ok, _ := weekly.Score(ctx, "alice")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(s, convey.ShouldEqual, 10)
				d, _ := weekly.MemberData(ctx, "alice")
				convey.So(string(*d), convey.ShouldEqual, `{"team":"red"}`)
			})
		})

		convey.Convey("When increment events arrive", func() {
			for i := 0; i < 3; i++ {
				_, err := a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "bob", Score: 2.5, Mode: model.ModeIncrement})
				convey.So(err, convey.ShouldBeNil)
			}

			convey.Convey("Then scores accumulate", func() {
				s, _, _ := weekly.Score(ctx, "bob")
				convey.So(s, convey.ShouldEqual, 7.5)
			})
		})

		convey.Convey("When best events arrive", func() {
			changed, _ := a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "carol", Score: 50, Mode: model.ModeBest})
			convey.So(changed, convey.ShouldBeTrue)
			changed, _ = a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "carol", Score: 40, Mode: model.ModeBest})
			convey.So(changed, convey.ShouldBeFalse)
			changed, _ = a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "carol", Score: 60, Mode: model.ModeBest})
			convey.So(changed, convey.ShouldBeTrue)

			convey.Convey("Then only improvements are kept", func() {
				s, _, _ := weekly.Score(ctx, "carol")
				convey.So(s, convey.ShouldEqual, 60)
			})
		})

		convey.Convey("When the mode is unknown", func() {
			_, err := a.Apply(ctx, model.ScoreEvent{Leaderboard: "weekly", Member: "dave", Score: 1, Mode: "double"})

			convey.Convey("Then it is rejected", func() {
				convey.So(errors.Is(err, model.ErrInvalidMode), convey.ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a mock queue", t, func() {
		q := newMockQueue()
		applier := &mockApplier{}
		var (
			mu    sync.Mutex
			hooks int
		)
		w := worker.NewInMemoryWorker(q, applier,
			worker.WithName("test-worker"),
			worker.WithResultHook(func(worker.Event, bool, error) {
				mu.Lock()
				hooks++
				mu.Unlock()
			}),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When events are queued", func() {
			for i := 0; i < 3; i++ {
				q.eventChan <- model.ScoreEvent{EventID: fmt.Sprintf("e%d", i), Leaderboard: "b", Member: "m", Mode: model.ModeSet}
			}

			convey.Convey("Then each is applied and reported", func() {
				convey.So(eventually(func() bool { return w.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(applier.count(), convey.ShouldEqual, 3)
				mu.Lock()
				convey.So(hooks, convey.ShouldEqual, 3)
				mu.Unlock()
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the applier fails", func() {
			applier.mu.Lock()
			applier.err = errors.New("store down")
			applier.mu.Unlock()
			q.eventChan <- model.ScoreEvent{EventID: "bad", Leaderboard: "b", Member: "m", Mode: model.ModeSet}

			convey.Convey("Then the failure is counted and the worker keeps running", func() {
				convey.So(eventually(func() bool { return w.Failed() == 1 }), convey.ShouldBeTrue)
				convey.So(w.Processed(), convey.ShouldEqual, 0)
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool draining a real queue into boards", t, func() {
		ctx := context.Background()
		_, boards := newBoards(t)
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		pool := worker.NewPool(4, q, worker.NewLeaderboardApplier(boards))
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		for i := 0; i < 200; i++ {
			err := q.Enqueue(ctx, model.ScoreEvent{
				EventID:     fmt.Sprintf("e%d", i),
				Leaderboard: "weekly",
				Member:      fmt.Sprintf("m%d", i%20),
				Score:       1,
				Mode:        model.ModeIncrement,
			})
			convey.So(err, convey.ShouldBeNil)
		}

		pool.Start(ctx)
		pool.Start(ctx)

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued event was applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, 200)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)

				s, _, _ := boards("weekly").Score(ctx, "m7")
				convey.So(s, convey.ShouldEqual, 10)
				n, _ := boards("weekly").TotalMembers(ctx)
				convey.So(n, convey.ShouldEqual, 20)
			})
		})
	})

	convey.Convey("Given a pool that never started", t, func() {
		pool := worker.NewPool(2, newMockQueue(), &mockApplier{})

		convey.Convey("Then stopping returns immediately", func() {
			convey.So(func() { pool.Stop() }, convey.ShouldNotPanic)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}
