package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("board"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the custom names", func() {
				So(m, ShouldNotBeNil)
				m.operations.WithLabelValues("rank_member").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_board_operations_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording an operation with an error", func() {
			before := testutil.ToFloat64(globalManager.operationErrors.WithLabelValues("members"))
			RecordOperation("members", 1.5, errors.New("boom"))
			RecordOperation("members", 0.5, nil)

			Convey("Then only the failing call is counted as an error", func() {
				after := testutil.ToFloat64(globalManager.operationErrors.WithLabelValues("members"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When recording store and pipeline metrics", func() {
			So(func() {
				RecordStoreCommand("memory", "zadd", 0.1, nil)
				RecordStoreCommand("redis", "zrank", 0.2, errors.New("down"))
				RecordStoreBatch(4)
				RecordRecordsReturned("members", 25)
				RecordHTTPRequest("leaderboard", "GET", "200")
				RecordHTTPRequestDuration("leaderboard", "GET", "200", 3)
				RecordEventAccepted()
				RecordEventDuplicate()
				RecordEventApplied("best", true)
				RecordEventFailed("set")
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				RecordQueueEnqueueError("full")
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(2)
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then gauges reflect the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When scraping the handler", func() {
			RecordOperation("rank", 1, nil)
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Convey("Then service collectors are exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(strings.Contains(rec.Body.String(), "ladder_leaderboard_operations_total"), ShouldBeTrue)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
