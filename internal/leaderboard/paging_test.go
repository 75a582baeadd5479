package leaderboard_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ladder/internal/leaderboard"
)

func TestPaging(t *testing.T) {
	Convey("Given page arithmetic", t, func() {
		Convey("TotalPages is zero only for an empty board", func() {
			So(leaderboard.TotalPages(0, 2), ShouldEqual, 0)
			So(leaderboard.TotalPages(1, 2), ShouldEqual, 1)
			So(leaderboard.TotalPages(3, 2), ShouldEqual, 2)
			So(leaderboard.TotalPages(4, 2), ShouldEqual, 2)
			So(leaderboard.TotalPages(26, 0), ShouldEqual, 2)
		})

		Convey("PageOf keeps a boundary rank on the earlier page", func() {
			So(leaderboard.PageOf(0, 2), ShouldEqual, 0)
			So(leaderboard.PageOf(1, 2), ShouldEqual, 1)
			So(leaderboard.PageOf(2, 2), ShouldEqual, 1)
			So(leaderboard.PageOf(3, 2), ShouldEqual, 2)
		})

		Convey("PageBounds clamps the page", func() {
			page, start, end := leaderboard.PageBounds(5, 2, 3)
			So([]int64{page, start, end}, ShouldResemble, []int64{2, 2, 3})

			page, start, end = leaderboard.PageBounds(0, 2, 3)
			So([]int64{page, start, end}, ShouldResemble, []int64{1, 0, 1})

			page, start, end = leaderboard.PageBounds(3, 2, 0)
			So([]int64{page, start, end}, ShouldResemble, []int64{1, 0, 1})
		})

		Convey("PositionToPage splits a position into page and offset", func() {
			page, offset := leaderboard.PositionToPage(3, 2)
			So([]int64{page, offset}, ShouldResemble, []int64{2, 0})

			page, offset = leaderboard.PositionToPage(4, 2)
			So([]int64{page, offset}, ShouldResemble, []int64{2, 1})

			page, offset = leaderboard.PositionToPage(1, 25)
			So([]int64{page, offset}, ShouldResemble, []int64{1, 0})
		})

		Convey("Non-positive page sizes fall back to the default", func() {
			So(leaderboard.NormalizePageSize(0), ShouldEqual, leaderboard.DefaultPageSize)
			So(leaderboard.NormalizePageSize(-3), ShouldEqual, leaderboard.DefaultPageSize)
			So(leaderboard.NormalizePageSize(7), ShouldEqual, 7)
		})
	})
}

func TestParseSortBy(t *testing.T) {
	Convey("Given sort names", t, func() {
		by, err := leaderboard.ParseSortBy("rank")
		So(err, ShouldBeNil)
		So(by, ShouldEqual, leaderboard.SortByRank)

		by, err = leaderboard.ParseSortBy("")
		So(err, ShouldBeNil)
		So(by, ShouldEqual, leaderboard.SortNone)

		_, err = leaderboard.ParseSortBy("alpha")
		So(err, ShouldEqual, leaderboard.ErrInvalidSortBy)
	})
}
