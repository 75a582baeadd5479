package loadgen_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/internal/adapters/http/api"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/loadgen"
)

func TestGenerate(t *testing.T) {
	Convey("Given a seeded configuration", t, func() {
		cfg := loadgen.Config{Leaderboard: "weekly", NumEvents: 200, Members: 5, Mode: "best", Seed: 7}

		Convey("Then every event is valid and lands on one of the members", func() {
			events := loadgen.Generate(cfg)
			So(events, ShouldHaveLength, 200)
			members := map[string]bool{}
			for _, e := range events {
				So(e.Validate(), ShouldBeNil)
				So(e.Leaderboard, ShouldEqual, "weekly")
				So(e.Mode, ShouldEqual, model.ModeBest)
				So(e.Score, ShouldBeBetweenOrEqual, 0.1, 10)
				members[e.Member] = true
			}
			So(len(members), ShouldBeLessThanOrEqualTo, 5)
		})

		Convey("Then the same seed repeats members and scores", func() {
			a, b := loadgen.Generate(cfg), loadgen.Generate(cfg)
			for i := range a {
				So(a[i].Member, ShouldEqual, b[i].Member)
				So(a[i].Score, ShouldEqual, b[i].Score)
				So(a[i].EventID, ShouldNotEqual, b[i].EventID)
			}
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Verify", t, func() {
		So(loadgen.Verify(nil), ShouldBeNil)
		So(loadgen.Verify([]loadgen.Entry{{Rank: 1, Score: 9}, {Rank: 2, Score: 9}, {Rank: 3, Score: 1}}), ShouldBeNil)
		So(loadgen.Verify([]loadgen.Entry{{Rank: 1, Score: 1}, {Rank: 2, Score: 9}}), ShouldNotBeNil)
		So(loadgen.Verify([]loadgen.Entry{{Rank: 2, Score: 1}}), ShouldNotBeNil)
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service behind an HTTP server", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		svc := service.New(service.WithWorkerCount(4), service.WithQueueSize(10_000))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		srv := httptest.NewServer(api.NewServer(svc).Routes())
		defer srv.Close()

		Convey("When a load run completes", func() {
			stats, err := loadgen.Run(ctx, loadgen.Config{
				BaseURL:   srv.URL,
				NumEvents: 300,
				Members:   20,
				Workers:   6,
				TopN:      5,
				Seed:      1,
			}, 200*time.Millisecond)

			Convey("Then every event was accepted and the top page is ordered", func() {
				So(err, ShouldBeNil)
				So(stats.Generated, ShouldEqual, 300)
				So(stats.Accepted, ShouldEqual, 300)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Top, ShouldHaveLength, 5)
				So(stats.Throughput(), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the service is unhealthy", func() {
			down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer down.Close()

			_, err := loadgen.Run(ctx, loadgen.Config{BaseURL: down.URL, NumEvents: 1}, 0)

			Convey("Then the run stops before submitting", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}
