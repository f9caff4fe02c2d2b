package smoke

import (
	"context"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/okian/skyscraper/internal/adapters/http/api"
	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	service "github.com/okian/skyscraper/internal/app"
	"github.com/okian/skyscraper/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithStore(memory.NewTreapStore()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		ts := httptest.NewServer(api.NewServer(svc, api.WithAdminToken("tok")).Router())
		defer ts.Close()

		cfg := &Config{
			BaseURL:     ts.URL,
			Players:     12,
			Submissions: 3,
			TopN:        20,
			Workers:     runtime.NumCPU(),
			Timeout:     5 * time.Second,
			AdminToken:  "tok",
		}

		Convey("When the smoke run executes", func() {
			stats, err := Run(ctx, cfg)

			Convey("Then every submission lands and the board verifies", func() {
				So(err, ShouldBeNil)
				So(stats.SessionID, ShouldNotBeEmpty)
				So(stats.Submitted, ShouldEqual, 36)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Accepted, ShouldBeBetweenOrEqual, 12, 36)
				So(stats.LeaderboardEntries, ShouldEqual, 12)
			})
		})

		Convey("When the admin token is wrong", func() {
			cfg.AdminToken = "nope"
			_, err := Run(ctx, cfg)

			Convey("Then the session trigger fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "session trigger failed")
			})
		})
	})
}

func TestVerifyLeaderboard(t *testing.T) {
	Convey("Given the best scores of a run", t, func() {
		best := map[string]float64{"smoke-a": 300, "smoke-b": 120}

		Convey("Then a matching board verifies", func() {
			board := []Entry{{1, "other", 500}, {2, "smoke-a", 300}, {3, "smoke-b", 120}}
			So(verifyLeaderboard(best, board), ShouldBeNil)
		})

		Convey("Then a stale score is reported", func() {
			board := []Entry{{1, "smoke-a", 250}}
			So(verifyLeaderboard(best, board), ShouldNotBeNil)
		})

		Convey("Then a missing best player is reported", func() {
			board := []Entry{{1, "other", 500}, {2, "smoke-b", 120}}
			err := verifyLeaderboard(best, board)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "missing")
		})

		Convey("Then an unsorted board is reported", func() {
			board := []Entry{{1, "smoke-b", 120}, {2, "smoke-a", 300}}
			So(verifyLeaderboard(best, board), ShouldNotBeNil)
		})

		Convey("Then an empty board is reported", func() {
			So(verifyLeaderboard(best, nil), ShouldNotBeNil)
		})
	})
}

func TestGenerateSubmissions(t *testing.T) {
	Convey("Given a run id", t, func() {
		stats := &Stats{}
		subs, err := generateSubmissions(context.Background(), &Config{Players: 5, Submissions: 2}, "0123456789abcdef", stats)

		Convey("Then each player gets the configured number of scores", func() {
			So(err, ShouldBeNil)
			So(len(subs), ShouldEqual, 10)
			So(stats.Generated, ShouldEqual, 10)
			So(len(bestScores(subs)), ShouldEqual, 5)
			for _, s := range subs {
				So(strings.HasPrefix(s.Player, PlayerPrefix+"01234567-"), ShouldBeTrue)
				So(s.Score, ShouldBeBetweenOrEqual, 0, eliteHeightMin+eliteRange)
			}
		})

		Convey("Then zero players is rejected", func() {
			_, err := generateSubmissions(context.Background(), &Config{Players: 0, Submissions: 1}, "0123456789abcdef", &Stats{})
			So(err, ShouldNotBeNil)
		})
	})
}
