package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	"github.com/okian/skyscraper/internal/adapters/scheduler"
	"github.com/okian/skyscraper/internal/domain/schedule"
	"github.com/okian/skyscraper/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCron_Lifecycle(t *testing.T) {
	Convey("Given a scheduler with a registered job", t, func() {
		ctx := context.Background()
		var runs atomic.Int32
		c := scheduler.New(scheduler.WithLocation(time.UTC))
		c.Register(schedule.JobName, func(context.Context) error {
			runs.Add(1)
			return nil
		})
		c.Start()
		defer func() { _ = c.Stop(ctx) }()

		Convey("When a job is created", func() {
			id, err := c.Create(ctx, schedule.JobName, schedule.DefaultCron)
			So(err, ShouldBeNil)

			Convey("Then it is listed with a uuid id and a next run time", func() {
				_, perr := uuid.Parse(id)
				So(perr, ShouldBeNil)
				jobs, err := c.List(ctx)
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 1)
				So(jobs[0].ID, ShouldEqual, id)
				So(jobs[0].Name, ShouldEqual, schedule.JobName)
				So(jobs[0].CronSpec, ShouldEqual, schedule.DefaultCron)
				So(jobs[0].Next.IsZero(), ShouldBeFalse)
				So(jobs[0].Next.UTC().Hour(), ShouldEqual, 1)
			})

			Convey("Then running it invokes the callback", func() {
				So(c.RunNow(id), ShouldBeNil)
				So(runs.Load(), ShouldEqual, 1)
			})

			Convey("Then cancelling removes it and a second cancel is not found", func() {
				So(c.Cancel(ctx, id), ShouldBeNil)
				jobs, err := c.List(ctx)
				So(err, ShouldBeNil)
				So(jobs, ShouldBeEmpty)

				err = c.Cancel(ctx, id)
				So(errors.Is(err, schedule.ErrJobNotFound), ShouldBeTrue)
				So(errors.Is(err, types.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When several jobs are created", func() {
			a, _ := c.Create(ctx, schedule.JobName, "@daily")
			b, _ := c.Create(ctx, schedule.JobName, "*/15 * * * *")

			Convey("Then they are listed oldest first", func() {
				jobs, err := c.List(ctx)
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 2)
				So(jobs[0].ID, ShouldEqual, a)
				So(jobs[1].ID, ShouldEqual, b)
			})
		})

		Convey("When the cron expression is malformed", func() {
			_, err := c.Create(ctx, schedule.JobName, "61 * * * *")

			Convey("Then it is rejected as invalid", func() {
				So(errors.Is(err, schedule.ErrInvalidCron), ShouldBeTrue)
			})
		})

		Convey("When the job name has no callback", func() {
			_, err := c.Create(ctx, "weekly_thread", schedule.DefaultCron)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, scheduler.ErrUnknownJob), ShouldBeTrue)
			})
		})

		Convey("When the sentinel id is cancelled", func() {
			err := c.Cancel(ctx, schedule.Sentinel)

			Convey("Then it is not found", func() {
				So(errors.Is(err, schedule.ErrJobNotFound), ShouldBeTrue)
			})
		})
	})

	Convey("Given a failing callback", t, func() {
		c := scheduler.New()
		boom := errors.New("publish failed")
		c.Register(schedule.JobName, func(context.Context) error { return boom })
		id, err := c.Create(context.Background(), schedule.JobName, schedule.DefaultCron)
		So(err, ShouldBeNil)

		Convey("Then the run reports the error", func() {
			So(errors.Is(c.RunNow(id), boom), ShouldBeTrue)
		})
	})

	Convey("Given a stopped scheduler", t, func() {
		ctx := context.Background()
		c := scheduler.New()
		c.Register(schedule.JobName, func(context.Context) error { return nil })
		So(c.Stop(ctx), ShouldBeNil)

		Convey("Then new jobs are refused", func() {
			_, err := c.Create(ctx, schedule.JobName, schedule.DefaultCron)
			So(errors.Is(err, scheduler.ErrStopped), ShouldBeTrue)
		})
	})
}

func TestCron_WithManager(t *testing.T) {
	Convey("Given the manager driving the cron scheduler", t, func() {
		ctx := context.Background()
		c := scheduler.New()
		c.Register(schedule.JobName, func(context.Context) error { return nil })
		m := schedule.NewManager(c, memory.NewTreapStore())

		Convey("When scheduling and cancelling through the manager", func() {
			h, err := m.Schedule(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)
			ok, err := m.CancelCurrent(ctx)
			So(err, ShouldBeNil)

			Convey("Then the job is gone from the scheduler", func() {
				So(ok, ShouldBeTrue)
				jobs, _ := c.List(ctx)
				So(jobs, ShouldBeEmpty)
				So(h.JobID, ShouldNotBeBlank)
			})
		})

		Convey("When nothing was scheduled", func() {
			ok, err := m.CancelCurrent(ctx)

			Convey("Then the sentinel cancel is a no-op", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}
