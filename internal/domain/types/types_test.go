package types_test

import (
	"context"
	"errors"
	"testing"

	types "github.com/okian/skyscraper/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSortDescending(t *testing.T) {
	Convey("Given entries with tied scores", t, func() {
		entries := []types.Entry{
			{Player: "carol", Score: 30},
			{Player: "bob", Score: 50},
			{Player: "alice", Score: 30},
			{Player: "dave", Score: 50},
		}

		Convey("When sorting descending", func() {
			types.SortDescending(entries)

			Convey("Then scores are descending and ties are ordered by player", func() {
				So(entries[0].Player, ShouldEqual, "bob")
				So(entries[1].Player, ShouldEqual, "dave")
				So(entries[2].Player, ShouldEqual, "alice")
				So(entries[3].Player, ShouldEqual, "carol")
			})
		})

		Convey("When sorting ascending", func() {
			types.SortAscending(entries)

			Convey("Then scores are ascending and ties are still ordered by player", func() {
				So(entries[0].Player, ShouldEqual, "alice")
				So(entries[1].Player, ShouldEqual, "carol")
				So(entries[2].Player, ShouldEqual, "bob")
				So(entries[3].Player, ShouldEqual, "dave")
			})
		})
	})
}

func TestAssignRanks(t *testing.T) {
	Convey("Given a descending slice with a tie", t, func() {
		entries := []types.Entry{
			{Player: "a", Score: 90},
			{Player: "b", Score: 80},
			{Player: "c", Score: 80},
			{Player: "d", Score: 70},
		}
		types.AssignRanks(entries)

		Convey("Then tied players share a rank and the next score follows", func() {
			So(entries[0].Rank, ShouldEqual, 1)
			So(entries[1].Rank, ShouldEqual, 2)
			So(entries[2].Rank, ShouldEqual, 2)
			So(entries[3].Rank, ShouldEqual, 3)
		})
	})

	Convey("Given an empty slice", t, func() {
		So(func() { types.AssignRanks(nil) }, ShouldNotPanic)
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Given a store failure", t, func() {
		cause := context.DeadlineExceeded
		err := types.External("leaderboard.submit", cause)

		Convey("Then it matches both the kind and the cause", func() {
			So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(err.Error(), ShouldStartWith, "leaderboard.submit")
		})

		Convey("And wrapping again does not repeat the kind", func() {
			again := types.External("app.submit", err)
			So(errors.Is(again, types.ErrExternalServiceFailure), ShouldBeTrue)
			So(again.Error(), ShouldEqual, "app.submit: "+err.Error())
		})

		Convey("And a nil cause stays nil", func() {
			So(types.External("noop", nil), ShouldBeNil)
		})
	})

	Convey("Given an invariant violation", t, func() {
		err := types.Invariant("shape.validate", "groups[%s]=%d", "circle", 3)
		So(errors.Is(err, types.ErrInvariantViolation), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "groups[circle]=3")
	})
}
