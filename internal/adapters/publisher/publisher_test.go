package publisher_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skyscraper/internal/adapters/publisher"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTitle(t *testing.T) {
	Convey("Given a date", t, func() {
		day := time.Date(2024, time.March, 7, 1, 0, 0, 0, time.UTC)

		Convey("Then the title spells the month out", func() {
			So(publisher.Title(day), ShouldEqual, "Daily Job - March 7, 2024")
		})
	})
}

func TestLocal_CreateUnit(t *testing.T) {
	Convey("Given a local publisher with a fixed clock", t, func() {
		ctx := context.Background()
		at := time.Date(2024, time.March, 7, 1, 0, 0, 0, time.UTC)
		l := publisher.NewLocal(publisher.WithClock(func() time.Time { return at }))

		Convey("When a unit is created", func() {
			u, err := l.CreateUnit(ctx, publisher.Title(at), publisher.DefaultPreview)
			So(err, ShouldBeNil)

			Convey("Then it has a uuid and is listed", func() {
				_, perr := uuid.Parse(u.ID)
				So(perr, ShouldBeNil)
				So(u.CreatedAt, ShouldEqual, at)
				So(u.Preview, ShouldEqual, "Loading ...")
				So(l.Units(), ShouldResemble, []publisher.Unit{u})
			})
		})

		Convey("When the title is empty", func() {
			_, err := l.CreateUnit(ctx, "", publisher.DefaultPreview)
			So(errors.Is(err, publisher.ErrEmptyTitle), ShouldBeTrue)
		})
	})
}

func TestLocal_CurrentUser(t *testing.T) {
	Convey("Given a local identity service", t, func() {
		l := publisher.NewLocal()

		Convey("When the context names a player", func() {
			name, err := l.CurrentUser(publisher.WithUser(context.Background(), "alice"))
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "alice")
		})

		Convey("When the context is anonymous", func() {
			name, err := l.CurrentUser(context.Background())
			So(err, ShouldBeNil)
			So(name, ShouldBeEmpty)
		})

		Convey("When a default user is configured", func() {
			name, err := publisher.NewLocal(publisher.WithDefaultUser("mod")).CurrentUser(context.Background())
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "mod")
		})
	})
}
