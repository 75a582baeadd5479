package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/internal/adapters/repository"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/model"
)

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service on the in-memory store", t, func() {
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(1000),
			service.WithDedupeSize(500),
		)
		defer svc.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When events of every mode are submitted", func() {
			events := []model.ScoreEvent{
				{EventID: "e1", Leaderboard: "weekly", Member: "alice", Score: 10, Data: json.RawMessage(`{"team":"red"}`)},
				{EventID: "e2", Leaderboard: "weekly", Member: "bob", Score: 30},
				{EventID: "e3", Leaderboard: "weekly", Member: "carol", Score: 20},
				{EventID: "e4", Leaderboard: "alltime", Member: "alice", Score: 50, Mode: model.ModeBest},
				{EventID: "e5", Leaderboard: "alltime", Member: "alice", Score: 40, Mode: model.ModeBest},
			}
			for _, e := range events {
				_, err := svc.Submit(ctx, e)
				So(err, ShouldBeNil)
			}

			Convey("Then workers apply them to the boards", func() {
				weekly, err := svc.Board("weekly")
				So(err, ShouldBeNil)
				alltime, _ := svc.Board("alltime")

				So(waitFor(func() bool {
					n, _ := weekly.TotalMembers(ctx)
					_, ok, _ := alltime.Score(ctx, "alice")
					return n == 3 && ok && svc.GetStats()["eventsProcessed"] == int64(5)
				}), ShouldBeTrue)

				top, err := weekly.Members(ctx, 1)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 3)
				So(top[0].Member, ShouldEqual, "bob")
				So(top[2].Member, ShouldEqual, "alice")

				data, err := weekly.MemberData(ctx, "alice")
				So(err, ShouldBeNil)
				So(string(*data), ShouldEqual, `{"team":"red"}`)

				best, _, _ := alltime.Score(ctx, "alice")
				So(best, ShouldEqual, 50)
			})
		})

		Convey("When increments arrive for one member", func() {
			for i := 0; i < 20; i++ {
				_, err := svc.Submit(ctx, model.ScoreEvent{
					EventID:     fmt.Sprintf("inc-%d", i),
					Leaderboard: "clicks",
					Member:      "dave",
					Score:       1,
					Mode:        model.ModeIncrement,
				})
				So(err, ShouldBeNil)
			}

			Convey("Then every increment lands exactly once", func() {
				clicks, _ := svc.Board("clicks")
				So(waitFor(func() bool {
					s, _, _ := clicks.Score(ctx, "dave")
					return s == 20
				}), ShouldBeTrue)
			})
		})
	})
}

func TestServiceIntegration_Redis(t *testing.T) {
	Convey("Given a service on a Redis store", t, func() {
		mr := miniredis.RunT(t)
		svc := service.New(
			service.WithWorkerCount(4),
			service.WithStore(func(context.Context) (service.Store, error) {
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return repository.NewRedisStore(rdb, repository.WithOwnedClient()), nil
			}),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Ping(ctx), ShouldBeNil)

		Convey("When events are submitted and the service shuts down", func() {
			for i := 0; i < 50; i++ {
				_, err := svc.Submit(ctx, model.ScoreEvent{
					EventID:     fmt.Sprintf("e%d", i),
					Leaderboard: "weekly",
					Member:      fmt.Sprintf("m%d", i%5),
					Score:       2,
					Mode:        model.ModeIncrement,
				})
				So(err, ShouldBeNil)
			}
			err := svc.Shutdown(ctx)

			Convey("Then the queue is drained into Redis", func() {
				So(err, ShouldBeNil)
				for i := 0; i < 5; i++ {
					s, zerr := mr.ZScore("weekly", fmt.Sprintf("m%d", i))
					So(zerr, ShouldBeNil)
					So(s, ShouldEqual, 20)
				}
			})
		})
	})
}
