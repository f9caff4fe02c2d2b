package schedule_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	"github.com/okian/skyscraper/internal/domain/schedule"
	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeJobs is an in-memory JobService with injectable failures.
type fakeJobs struct {
	mu         sync.Mutex
	next       int
	jobs       map[string]schedule.Job
	createErr  error
	cancelErrs map[string]error
	block      bool
	cancels    []string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]schedule.Job{}, cancelErrs: map[string]error{}}
}

func (f *fakeJobs) Create(ctx context.Context, name, cronSpec string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	f.jobs[id] = schedule.Job{ID: id, Name: name, CronSpec: cronSpec}
	return id, nil
}

func (f *fakeJobs) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if err := f.cancelErrs[id]; err != nil {
		return err
	}
	if _, ok := f.jobs[id]; !ok {
		return fmt.Errorf("cancel %s: %w", id, schedule.ErrJobNotFound)
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobs) List(context.Context) ([]schedule.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schedule.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeJobs) ids() []string {
	jobs, _ := f.List(context.Background())
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

// flakyPointers fails SetPointer and GetPointer on demand.
type flakyPointers struct {
	*memory.TreapStore
	setErr error
	getErr error
}

func (p *flakyPointers) GetPointer(ctx context.Context, key string) (string, error) {
	if p.getErr != nil {
		return "", p.getErr
	}
	return p.TreapStore.GetPointer(ctx, key)
}

func (p *flakyPointers) SetPointer(ctx context.Context, key, value string) error {
	if p.setErr != nil {
		return p.setErr
	}
	return p.TreapStore.SetPointer(ctx, key, value)
}

func TestManager_Schedule(t *testing.T) {
	Convey("Given a manager over working collaborators", t, func() {
		ctx := context.Background()
		jobs := newFakeJobs()
		ptrs := &flakyPointers{TreapStore: memory.NewTreapStore()}
		m := schedule.NewManager(jobs, ptrs)

		Convey("When scheduling", func() {
			h, err := m.Schedule(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)

			Convey("Then the job exists and the pointer names it", func() {
				So(jobs.ids(), ShouldResemble, []string{h.JobID})
				v, err := ptrs.GetPointer(ctx, schedule.PointerKey)
				So(err, ShouldBeNil)
				So(v, ShouldEqual, h.JobID)
				So(jobs.jobs[h.JobID].Name, ShouldEqual, schedule.JobName)
			})

			Convey("Then scheduling again overwrites the pointer without cancelling the first job", func() {
				h2, err := m.Schedule(ctx, "*/5 * * * *")
				So(err, ShouldBeNil)
				So(jobs.ids(), ShouldResemble, []string{h.JobID, h2.JobID})
				v, _ := ptrs.GetPointer(ctx, schedule.PointerKey)
				So(v, ShouldEqual, h2.JobID)
			})

			Convey("Then Current reports the active handle", func() {
				cur, ok, err := m.Current(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(cur, ShouldResemble, schedule.Handle{JobID: h.JobID, CronSpec: schedule.DefaultCron, Active: true})
			})
		})

		Convey("When persisting the pointer fails after a successful create", func() {
			_, err := m.Schedule(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)
			before := jobs.ids()

			ptrs.setErr = errors.New("disk full")
			_, err = m.Schedule(ctx, schedule.DefaultCron)

			Convey("Then the new job is rolled back and one external failure is returned", func() {
				So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
				So(jobs.ids(), ShouldResemble, before)
			})
		})

		Convey("When the rollback cancel also fails", func() {
			ptrs.setErr = errors.New("disk full")
			jobs.cancelErrs["job-1"] = errors.New("scheduler down")
			_, err := m.Schedule(ctx, schedule.DefaultCron)

			Convey("Then the orphan is reported", func() {
				So(errors.Is(err, schedule.ErrOrphanedJob), ShouldBeTrue)
				So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
			})
		})

		Convey("When the job service rejects the cron expression", func() {
			jobs.createErr = fmt.Errorf("%w: bad", schedule.ErrInvalidCron)
			_, err := m.Schedule(ctx, "nope")

			Convey("Then the rejection is returned as is and nothing is recorded", func() {
				So(errors.Is(err, schedule.ErrInvalidCron), ShouldBeTrue)
				So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeFalse)
				_, ok, err := m.Current(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a job service that never answers", t, func() {
		jobs := newFakeJobs()
		jobs.block = true
		m := schedule.NewManager(jobs, memory.NewTreapStore(), schedule.WithCallTimeout(20*time.Millisecond))

		Convey("Then the call times out as an external failure", func() {
			_, err := m.Schedule(context.Background(), schedule.DefaultCron)
			So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestManager_CancelCurrent(t *testing.T) {
	Convey("Given a manager with nothing recorded", t, func() {
		ctx := context.Background()
		jobs := newFakeJobs()
		m := schedule.NewManager(jobs, memory.NewTreapStore())

		Convey("When cancelling the current job", func() {
			ok, err := m.CancelCurrent(ctx)

			Convey("Then the sentinel is tried and its rejection is benign", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(jobs.cancels, ShouldResemble, []string{schedule.Sentinel})
			})
		})
	})

	Convey("Given a scheduled job", t, func() {
		ctx := context.Background()
		jobs := newFakeJobs()
		ptrs := memory.NewTreapStore()
		m := schedule.NewManager(jobs, ptrs)
		h, err := m.Schedule(ctx, schedule.DefaultCron)
		So(err, ShouldBeNil)

		Convey("When the cancel succeeds", func() {
			ok, err := m.CancelCurrent(ctx)

			Convey("Then the job is gone and the pointer is cleared", func() {
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(jobs.ids(), ShouldBeEmpty)
				_, err := ptrs.GetPointer(ctx, schedule.PointerKey)
				So(errors.Is(err, types.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the cancel fails", func() {
			jobs.cancelErrs[h.JobID] = errors.New("scheduler down")
			ok, err := m.CancelCurrent(ctx)

			Convey("Then the failure surfaces and the pointer is kept", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, types.ErrExternalServiceFailure), ShouldBeTrue)
				v, err := ptrs.GetPointer(ctx, schedule.PointerKey)
				So(err, ShouldBeNil)
				So(v, ShouldEqual, h.JobID)
			})
		})

		Convey("When the scheduler no longer knows the job", func() {
			delete(jobs.jobs, h.JobID)
			cur, ok, err := m.Current(ctx)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(cur.Active, ShouldBeFalse)

			cancelled, err := m.CancelCurrent(ctx)

			Convey("Then the stale pointer is cleared without error", func() {
				So(err, ShouldBeNil)
				So(cancelled, ShouldBeFalse)
				_, ok, err := m.Current(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestManager_CancelAll(t *testing.T) {
	Convey("Given three jobs where cancelling the second fails", t, func() {
		ctx := context.Background()
		jobs := newFakeJobs()
		ptrs := memory.NewTreapStore()
		m := schedule.NewManager(jobs, ptrs)
		for i := 0; i < 3; i++ {
			_, err := m.Schedule(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)
		}
		jobs.cancelErrs["job-2"] = errors.New("locked")

		Convey("When cancelling all", func() {
			res, err := m.CancelAll(ctx)

			Convey("Then two are cancelled, the failure is collected and nothing is raised", func() {
				So(err, ShouldBeNil)
				So(res.Cancelled, ShouldEqual, 2)
				So(res.Failures, ShouldHaveLength, 1)
				So(res.Failures[0].JobID, ShouldEqual, "job-2")
				So(res.Err(), ShouldNotBeNil)
				So(jobs.ids(), ShouldResemble, []string{"job-2"})
			})

			Convey("Then the pointer to the cancelled third job is cleared", func() {
				_, ok, err := m.Current(ctx)
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given no jobs", t, func() {
		m := schedule.NewManager(newFakeJobs(), memory.NewTreapStore())
		res, err := m.CancelAll(context.Background())
		So(err, ShouldBeNil)
		So(res.Cancelled, ShouldEqual, 0)
		So(res.Err(), ShouldBeNil)
	})
}

func TestManager_PointerReadFailure(t *testing.T) {
	Convey("Given a manager whose pointer reads fail", t, func() {
		ctx := context.Background()
		logger.SetLevel(slog.LevelDebug)
		Reset(func() { logger.SetLevel(slog.LevelInfo) })

		var buf bytes.Buffer
		jobs := newFakeJobs()
		ptrs := &flakyPointers{TreapStore: memory.NewTreapStore()}
		m := schedule.NewManager(jobs, ptrs, schedule.WithLogger(logger.NewWithWriter(&buf)))
		_, err := m.Schedule(ctx, schedule.DefaultCron)
		So(err, ShouldBeNil)
		ptrs.getErr = errors.New("read timeout")

		Convey("When scheduling again", func() {
			h, err := m.Schedule(ctx, schedule.DefaultCron)

			Convey("Then the job is still created and the failed read is logged", func() {
				So(err, ShouldBeNil)
				So(h.JobID, ShouldEqual, "job-2")
				So(buf.String(), ShouldContainSubstring, "pointer read failed")
				So(buf.String(), ShouldContainSubstring, "read timeout")
			})
		})

		Convey("When cancelling all", func() {
			res, err := m.CancelAll(ctx)

			Convey("Then jobs are cancelled, the read failure is logged and the pointer stays", func() {
				So(err, ShouldBeNil)
				So(res.Cancelled, ShouldEqual, 1)
				So(buf.String(), ShouldContainSubstring, "pointer read failed, it will not be cleared")
				ptrs.getErr = nil
				id, err := ptrs.TreapStore.GetPointer(ctx, schedule.PointerKey)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "job-1")
			})
		})
	})
}

func TestManager_Ensure(t *testing.T) {
	Convey("Given an empty schedule", t, func() {
		ctx := context.Background()
		jobs := newFakeJobs()
		m := schedule.NewManager(jobs, memory.NewTreapStore())

		Convey("When ensuring twice", func() {
			h1, created1, err := m.Ensure(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)
			h2, created2, err := m.Ensure(ctx, schedule.DefaultCron)
			So(err, ShouldBeNil)

			Convey("Then only the first call creates a job", func() {
				So(created1, ShouldBeTrue)
				So(created2, ShouldBeFalse)
				So(h2.JobID, ShouldEqual, h1.JobID)
				So(jobs.ids(), ShouldHaveLength, 1)
			})
		})
	})
}
