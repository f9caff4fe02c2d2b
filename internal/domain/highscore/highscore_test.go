package highscore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	"github.com/okian/skyscraper/internal/domain/highscore"
	"github.com/okian/skyscraper/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type failingBoard struct {
	bottomErr error
	countErr  error
}

func (f failingBoard) Bottom(context.Context, int) ([]types.Entry, error) {
	return nil, f.bottomErr
}

func (f failingBoard) Count(context.Context) (int, error) {
	return 0, f.countErr
}

func TestClassifier_IsHighScore(t *testing.T) {
	Convey("Given an empty leaderboard", t, func() {
		ctx := context.Background()
		c := highscore.New(memory.NewTreapStore())

		Convey("Then any score is high, including zero", func() {
			for _, s := range []float64{0, -1, 1e9} {
				high, err := c.IsHighScore(ctx, s)
				So(err, ShouldBeNil)
				So(high, ShouldBeTrue)
			}
		})
	})

	Convey("Given a leaderboard holding 10, 20, 30, 40 and 50", t, func() {
		ctx := context.Background()
		store := memory.NewTreapStore()
		for i, p := range []string{"a", "b", "c", "d", "e"} {
			_, err := store.Submit(ctx, p, float64((i+1)*10))
			So(err, ShouldBeNil)
		}
		c := highscore.New(store)

		Convey("When classifying 25", func() {
			high, err := c.IsHighScore(ctx, 25)

			Convey("Then it beats entries in the low slice", func() {
				So(err, ShouldBeNil)
				So(high, ShouldBeTrue)
			})
		})

		Convey("When classifying 5", func() {
			high, err := c.IsHighScore(ctx, 5)

			Convey("Then it is not a high score", func() {
				So(err, ShouldBeNil)
				So(high, ShouldBeFalse)
			})
		})

		Convey("When classifying a score equal to the lowest", func() {
			high, err := c.IsHighScore(ctx, 10)

			Convey("Then the tie does not count", func() {
				So(err, ShouldBeNil)
				So(high, ShouldBeFalse)
			})
		})

		Convey("When the threshold is raised above the board size", func() {
			high, err := highscore.New(store, highscore.WithMinEntries(6)).IsHighScore(ctx, 1)

			Convey("Then every score is high again", func() {
				So(err, ShouldBeNil)
				So(high, ShouldBeTrue)
			})
		})

		Convey("When classifying does its work", func() {
			_, err := c.IsHighScore(ctx, 1000)
			So(err, ShouldBeNil)

			Convey("Then the board is not written", func() {
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 5)
			})
		})
	})

	Convey("Given a leaderboard with four entries", t, func() {
		ctx := context.Background()
		store := memory.NewTreapStore()
		for i, p := range []string{"a", "b", "c", "d"} {
			_, err := store.Submit(ctx, p, float64((i+1)*100))
			So(err, ShouldBeNil)
		}

		Convey("Then even the lowest candidate is high", func() {
			high, err := highscore.New(store).IsHighScore(ctx, 0)
			So(err, ShouldBeNil)
			So(high, ShouldBeTrue)
		})
	})

	Convey("Given a failing store", t, func() {
		ctx := context.Background()
		boom := types.External("test", errors.New("boom"))

		Convey("Then a fetch failure is surfaced", func() {
			_, err := highscore.New(failingBoard{bottomErr: boom}).IsHighScore(ctx, 1)
			So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
		})

		Convey("Then a count failure is surfaced", func() {
			_, err := highscore.New(failingBoard{countErr: boom}).IsHighScore(ctx, 1)
			So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
		})
	})
}
