package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/okian/ladder/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.RedisURL, convey.ShouldBeEmpty)
			convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 25)
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Board(t *testing.T) {
	convey.Convey("Given a config with one board override", t, func() {
		cfg := config.New(context.Background())
		cfg.DefaultReverse = true
		cfg.Boards["golf"] = config.BoardConfig{Reverse: true}
		cfg.Boards["weekly"] = config.BoardConfig{PageSize: 10}

		convey.Convey("Then overrides apply per board", func() {
			convey.So(cfg.Board("golf"), convey.ShouldResemble, config.BoardConfig{PageSize: 25, Reverse: true})
			convey.So(cfg.Board("weekly"), convey.ShouldResemble, config.BoardConfig{PageSize: 10})
			convey.So(cfg.Board("other"), convey.ShouldResemble, config.BoardConfig{PageSize: 25, Reverse: true})
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with unusable settings", t, func() {
		cases := []func(*config.Config){
			func(c *config.Config) { c.Addr = "" },
			func(c *config.Config) { c.DefaultPageSize = 0 },
			func(c *config.Config) { c.MaxPageSize = 5 },
			func(c *config.Config) { c.EventQueueSize = 0 },
			func(c *config.Config) { c.WorkerCount = 0 },
			func(c *config.Config) { c.DedupeSize = 0 },
			func(c *config.Config) { c.HydrationConcurrency = 0 },
			func(c *config.Config) { c.LogFormat = "xml" },
			func(c *config.Config) { c.Boards["b"] = config.BoardConfig{PageSize: -1} },
		}

		convey.Convey("Then each is rejected as invalid", func() {
			for _, mutate := range cases {
				cfg := config.New(context.Background())
				mutate(cfg)
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})
	})
}
