package notify_test

import (
	"context"
	"testing"

	"github.com/okian/skyscraper/internal/adapters/notify"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConnect(t *testing.T) {
	Convey("Given no server url", t, func() {
		n, err := notify.Connect("", "")

		Convey("Then a no-op notifier is returned", func() {
			So(err, ShouldBeNil)
			So(n, ShouldHaveSameTypeAs, notify.Nop{})
			So(n.Notify(context.Background(), notify.Event{Type: notify.SessionCreated}), ShouldBeNil)
			So(n.Close(), ShouldBeNil)
		})
	})

	Convey("Given an unreachable server", t, func() {
		_, err := notify.Connect("nats://127.0.0.1:1", "")

		Convey("Then connecting fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSubject(t *testing.T) {
	Convey("Given event types", t, func() {
		So(notify.Subject("", notify.SessionCreated), ShouldEqual, "skyscraper.session.created")
		So(notify.Subject("game", notify.HighScore), ShouldEqual, "game.score.highscore")
	})
}
