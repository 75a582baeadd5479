package model_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"

	model "github.com/okian/ladder/internal/domain/model"
)

func TestScoreEvent(t *testing.T) {
	convey.Convey("Given a ScoreEvent", t, func() {
		convey.Convey("When normalizing a bare event", func() {
			e := model.ScoreEvent{Leaderboard: " weekly ", Member: "alice", Score: 10, Mode: " BEST "}
			e.Normalize()

			convey.Convey("Then defaults are filled and fields trimmed", func() {
				convey.So(e.Leaderboard, convey.ShouldEqual, "weekly")
				convey.So(e.Mode, convey.ShouldEqual, model.ModeBest)
				_, err := uuid.Parse(e.EventID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the mode is omitted", func() {
			e := model.ScoreEvent{EventID: "evt-1", Leaderboard: "weekly", Member: "alice"}
			e.Normalize()

			convey.Convey("Then it defaults to set and keeps the id", func() {
				convey.So(e.Mode, convey.ShouldEqual, model.ModeSet)
				convey.So(e.EventID, convey.ShouldEqual, "evt-1")
			})
		})

		convey.Convey("When fields are invalid", func() {
			base := model.ScoreEvent{EventID: "e", Leaderboard: "b", Member: "m", Mode: model.ModeSet}

			noBoard := base
			noBoard.Leaderboard = ""
			convey.So(noBoard.Validate(), convey.ShouldEqual, model.ErrMissingLeaderboard)

			noMember := base
			noMember.Member = ""
			convey.So(noMember.Validate(), convey.ShouldEqual, model.ErrMissingMember)

			nan := base
			nan.Score = math.NaN()
			convey.So(nan.Validate(), convey.ShouldEqual, model.ErrInvalidScore)

			inf := base
			inf.Score = math.Inf(1)
			convey.So(inf.Validate(), convey.ShouldEqual, model.ErrInvalidScore)

			bad := base
			bad.Mode = "double"
			convey.So(errors.Is(bad.Validate(), model.ErrInvalidMode), convey.ShouldBeTrue)
		})

		convey.Convey("When decoding JSON", func() {
			var e model.ScoreEvent
			err := json.Unmarshal([]byte(`{"event_id":"x","leaderboard":"b","member":"m","score":1.5,"mode":"increment","data":{"team":"red"}}`), &e)

			convey.Convey("Then the payload is kept raw", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(e.Mode, convey.ShouldEqual, model.ModeIncrement)
				convey.So(e.Score, convey.ShouldEqual, 1.5)
				convey.So(string(e.Data), convey.ShouldEqual, `{"team":"red"}`)
			})
		})
	})
}
