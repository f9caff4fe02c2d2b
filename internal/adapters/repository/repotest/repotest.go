// Package repotest holds the behaviour every repository.Store backend must
// share. Backend packages call Run from their own tests.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory opens a fresh, empty store. Run closes it.
type Factory func(t *testing.T) repository.Store

// Run exercises the store contracts against stores built by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	t.Run("Sessions", func(t *testing.T) { sessions(t, open) })
	t.Run("Submit", func(t *testing.T) { submit(t, open) })
	t.Run("Ordering", func(t *testing.T) { ordering(t, open) })
	t.Run("Pointers", func(t *testing.T) { pointers(t, open) })
	t.Run("Concurrency", func(t *testing.T) { concurrency(t, open) })
}

func sessions(t *testing.T, open Factory) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()

		Convey("When reading an unknown session", func() {
			_, err := store.Get(ctx, "missing")

			Convey("Then it reports not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, types.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an inventory is stored", func() {
			inv := shape.NewGenerator(shape.WithSeed(3)).Generate()
			So(store.Put(ctx, "s1", inv), ShouldBeNil)

			Convey("Then it reads back equal", func() {
				got, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, inv)
			})

			Convey("Then storing it again changes nothing", func() {
				So(store.Put(ctx, "s1", inv), ShouldBeNil)
				got, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, inv)
			})

			Convey("Then a second write replaces the first", func() {
				other := shape.NewGenerator(shape.WithSeed(4)).Generate()
				So(store.Put(ctx, "s1", other), ShouldBeNil)
				got, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, other)
			})

			Convey("Then mutating the caller's copy does not leak into the store", func() {
				inv.Shapes[0].Size = 1
				got, err := store.Get(ctx, "s1")
				So(err, ShouldBeNil)
				So(got.Validate(), ShouldBeNil)
			})
		})
	})
}

func submit(t *testing.T, open Factory) {
	Convey("Given an empty leaderboard", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()

		Convey("When a player submits 50 then 40", func() {
			first, err := store.Submit(ctx, "p", 50)
			So(err, ShouldBeNil)
			second, err := store.Submit(ctx, "p", 40)
			So(err, ShouldBeNil)

			Convey("Then only the first write happens and the best stays 50", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				top, err := store.Top(ctx, 1)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 1)
				So(top[0].Score, ShouldEqual, 50)
				So(top[0].Rank, ShouldEqual, 1)
			})
		})

		Convey("When a player submits an equal score", func() {
			_, err := store.Submit(ctx, "p", 50)
			So(err, ShouldBeNil)
			again, err := store.Submit(ctx, "p", 50)

			Convey("Then the tie is rejected", func() {
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
			})
		})

		Convey("When a sequence of scores arrives", func() {
			scores := []float64{10, 5, 30, 30, 29.5, 31, -4}
			best := math.Inf(-1)
			for _, s := range scores {
				ok, err := store.Submit(ctx, "p", s)
				So(err, ShouldBeNil)
				So(ok, ShouldEqual, s > best)
				best = math.Max(best, s)
			}

			Convey("Then the stored best is the running maximum", func() {
				top, err := store.Top(ctx, 5)
				So(err, ShouldBeNil)
				So(top, ShouldHaveLength, 1)
				So(top[0].Score, ShouldEqual, 31)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When the first score is zero", func() {
			ok, err := store.Submit(ctx, "zero", 0)

			Convey("Then it is written", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When the score is NaN", func() {
			_, err := store.Submit(ctx, "p", math.NaN())

			Convey("Then it is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidScore), ShouldBeTrue)
			})
		})

		Convey("When the score is infinite", func() {
			_, errNeg := store.Submit(ctx, "inf", math.Inf(-1))
			_, errPos := store.Submit(ctx, "inf", math.Inf(1))

			Convey("Then both are rejected and nothing is stored", func() {
				So(errors.Is(errNeg, repository.ErrInvalidScore), ShouldBeTrue)
				So(errors.Is(errPos, repository.ErrInvalidScore), ShouldBeTrue)
				n, err := store.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When asking for a non-positive limit", func() {
			_, errTop := store.Top(ctx, 0)
			_, errBottom := store.Bottom(ctx, -1)

			Convey("Then both reads are rejected", func() {
				So(errors.Is(errTop, repository.ErrInvalidLimit), ShouldBeTrue)
				So(errors.Is(errBottom, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func ordering(t *testing.T, open Factory) {
	Convey("Given a populated leaderboard with ties", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()

		seed := map[string]float64{
			"erin": 10, "bob": 40, "alice": 40, "carl": 20,
			"dana": 20, "fay": 50, "gus": 20,
		}
		for p, s := range seed {
			_, err := store.Submit(ctx, p, s)
			So(err, ShouldBeNil)
		}

		Convey("When reading the top entries", func() {
			top, err := store.Top(ctx, 4)
			So(err, ShouldBeNil)

			Convey("Then scores descend and ties are ordered by player", func() {
				So(players(top), ShouldResemble, []string{"fay", "alice", "bob", "carl"})
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 2)
				So(top[2].Rank, ShouldEqual, 2)
				So(top[3].Rank, ShouldEqual, 3)
			})
		})

		Convey("When the limit cuts through a tie", func() {
			top, err := store.Top(ctx, 5)
			So(err, ShouldBeNil)

			Convey("Then the lowest ids in the tie are kept", func() {
				So(players(top), ShouldResemble, []string{"fay", "alice", "bob", "carl", "dana"})
			})
		})

		Convey("When the limit exceeds the population", func() {
			top, err := store.Top(ctx, 100)
			So(err, ShouldBeNil)

			Convey("Then every player is returned once", func() {
				So(top, ShouldHaveLength, len(seed))
			})
		})

		Convey("When reading the bottom entries", func() {
			bottom, err := store.Bottom(ctx, 3)
			So(err, ShouldBeNil)

			Convey("Then scores ascend and ties are ordered by player", func() {
				So(players(bottom), ShouldResemble, []string{"erin", "carl", "dana"})
				So(bottom[0].Score, ShouldEqual, 10)
				So(bottom[2].Score, ShouldEqual, 20)
			})
		})

		Convey("When the count is read", func() {
			n, err := store.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, len(seed))
		})
	})

	Convey("Given an empty leaderboard", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()

		top, err := store.Top(ctx, 5)
		So(err, ShouldBeNil)
		So(top, ShouldBeEmpty)
		bottom, err := store.Bottom(ctx, 10)
		So(err, ShouldBeNil)
		So(bottom, ShouldBeEmpty)
	})
}

func pointers(t *testing.T, open Factory) {
	Convey("Given an empty pointer store", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()
		const key = "daily_thread:jobId"

		Convey("When reading an absent pointer", func() {
			_, err := store.GetPointer(ctx, key)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a pointer is set, overwritten and deleted", func() {
			So(store.SetPointer(ctx, key, "a"), ShouldBeNil)
			So(store.SetPointer(ctx, key, "b"), ShouldBeNil)
			v, err := store.GetPointer(ctx, key)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "b")

			So(store.DeletePointer(ctx, key), ShouldBeNil)
			_, err = store.GetPointer(ctx, key)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			Convey("Then deleting again is harmless", func() {
				So(store.DeletePointer(ctx, key), ShouldBeNil)
			})
		})

		Convey("When the key is empty", func() {
			So(errors.Is(store.SetPointer(ctx, "", "x"), repository.ErrEmptyKey), ShouldBeTrue)
		})
	})
}

func concurrency(t *testing.T, open Factory) {
	Convey("Given concurrent submissions for the same players", t, func() {
		ctx := context.Background()
		store := open(t)
		defer store.Close()

		const players, perPlayer = 4, 25
		var wg sync.WaitGroup
		errs := make(chan error, players*perPlayer)
		for p := 0; p < players; p++ {
			for i := 0; i < perPlayer; i++ {
				wg.Add(1)
				go func(p, i int) {
					defer wg.Done()
					score := float64((i*7)%perPlayer) + float64(p)
					if _, err := store.Submit(ctx, fmt.Sprintf("player-%d", p), score); err != nil {
						errs <- err
					}
				}(p, i)
			}
		}
		wg.Wait()
		close(errs)

		Convey("Then no write failed and each best is the maximum submitted", func() {
			for err := range errs {
				So(err, ShouldBeNil)
			}
			top, err := store.Top(ctx, players)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, players)
			for _, e := range top {
				var p int
				_, _ = fmt.Sscanf(e.Player, "player-%d", &p)
				So(e.Score, ShouldEqual, float64(perPlayer-1+p))
			}
		})
	})
}

func players(entries []types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Player
	}
	return out
}
