// Package schedule tracks the single recurring job that creates new sessions.
// The id of that job lives in a named pointer record; the Manager owns every
// read and write of it.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

// Well-known names.
const (
	// JobName is the name every session-creating job is registered under.
	JobName = "daily_thread"
	// PointerKey holds the id of the active job.
	PointerKey = "daily_thread:jobId"
	// Sentinel is cancelled when no job id is recorded. The job service is
	// expected to reject it.
	Sentinel = "0"
	// DefaultCron runs once a day at 01:00.
	DefaultCron = "0 1 * * *"
	// DefaultCallTimeout bounds every external call.
	DefaultCallTimeout = 5 * time.Second
)

// Job is one job as listed by the JobService.
type Job struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	CronSpec string    `json:"cron"`
	Next     time.Time `json:"next,omitempty"`
}

// JobService is the external scheduler.
type JobService interface {
	Create(ctx context.Context, name, cronSpec string) (string, error)
	Cancel(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]Job, error)
}

// PointerStore persists the active job id.
type PointerStore interface {
	GetPointer(ctx context.Context, key string) (string, error)
	SetPointer(ctx context.Context, key, value string) error
	DeletePointer(ctx context.Context, key string) error
}

// Handle identifies the tracked schedule.
type Handle struct {
	JobID    string `json:"job_id"`
	CronSpec string `json:"cron,omitempty"`
	// Active is false when the pointer names a job the service no longer lists.
	Active bool `json:"active"`
}

// Failure is one job that CancelAll could not cancel.
type Failure struct {
	JobID string `json:"job_id"`
	Err   error  `json:"-"`
	// Reason is Err rendered for JSON.
	Reason string `json:"error"`
}

// Result summarizes CancelAll.
type Result struct {
	Cancelled int       `json:"cancelled"`
	Failures  []Failure `json:"failures"`
}

// Err combines every per-job failure, or returns nil.
func (r Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("cancel %s: %w", f.JobID, f.Err))
	}
	return err
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithCallTimeout bounds each external call.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithJobName overrides the job name passed to the JobService.
func WithJobName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.jobName = name
		}
	}
}

// WithPointerKey overrides the pointer record key.
func WithPointerKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.pointerKey = key
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// Manager creates, tracks and cancels the session job.
type Manager struct {
	mu         sync.Mutex
	jobs       JobService
	pointers   PointerStore
	jobName    string
	pointerKey string
	timeout    time.Duration
	log        logger.Logger
}

// NewManager constructs a Manager.
func NewManager(jobs JobService, pointers PointerStore, opts ...Option) *Manager {
	m := &Manager{
		jobs:       jobs,
		pointers:   pointers,
		jobName:    JobName,
		pointerKey: PointerKey,
		timeout:    DefaultCallTimeout,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// call runs fn under the call timeout. Failures other than not-found and
// rejected input are reported as external service failures.
func (m *Manager) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := fn(cctx)
	if err == nil || errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidInput) {
		return err
	}
	return types.External(op, err)
}

// Schedule creates a recurring job and records its id. The job is created
// first; if recording fails it is cancelled again so no job is left without
// a pointer. A previously recorded job is not cancelled.
func (m *Manager) Schedule(ctx context.Context, cronSpec string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schedule(ctx, cronSpec)
}

func (m *Manager) schedule(ctx context.Context, cronSpec string) (Handle, error) {
	var prev string
	if err := m.call(ctx, "schedule.get_pointer", func(ctx context.Context) (err error) {
		prev, err = m.pointers.GetPointer(ctx, m.pointerKey)
		return err
	}); err != nil && !errors.Is(err, types.ErrNotFound) {
		m.log.Debug(ctx, "previous job unknown, pointer read failed", logger.Error(err))
	}

	var id string
	err := m.call(ctx, "schedule.create", func(ctx context.Context) (err error) {
		id, err = m.jobs.Create(ctx, m.jobName, cronSpec)
		return err
	})
	if err != nil {
		metrics.RecordScheduleOp("schedule", "create_failed")
		return Handle{}, err
	}

	err = m.call(ctx, "schedule.persist", func(ctx context.Context) error {
		return m.pointers.SetPointer(ctx, m.pointerKey, id)
	})
	if err != nil {
		rbErr := m.call(ctx, "schedule.rollback", func(ctx context.Context) error {
			return m.jobs.Cancel(ctx, id)
		})
		if rbErr != nil {
			m.log.Error(ctx, "rollback failed, job is orphaned",
				logger.String("job_id", id), logger.Error(rbErr))
			metrics.RecordScheduleOp("schedule", "orphaned")
			return Handle{}, multierr.Combine(err, fmt.Errorf("%w: %s: %w", ErrOrphanedJob, id, rbErr))
		}
		m.log.Warn(ctx, "pointer persist failed, job rolled back",
			logger.String("job_id", id), logger.Error(err))
		metrics.RecordScheduleOp("schedule", "rolled_back")
		return Handle{}, err
	}

	if prev != "" && prev != id {
		m.log.Warn(ctx, "pointer overwritten while a previous job may still run",
			logger.String("previous_job_id", prev), logger.String("job_id", id))
	}
	m.log.Info(ctx, "scheduled job",
		logger.String("job", m.jobName), logger.String("job_id", id), logger.String("cron", cronSpec))
	metrics.RecordScheduleOp("schedule", "ok")
	return Handle{JobID: id, CronSpec: cronSpec, Active: true}, nil
}

// Ensure schedules cronSpec unless the pointer already names a listed job.
// It reports whether a new job was created.
func (m *Manager) Ensure(ctx context.Context, cronSpec string) (Handle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok, err := m.current(ctx)
	if err != nil {
		return Handle{}, false, err
	}
	if ok && h.Active {
		return h, false, nil
	}
	h, err = m.schedule(ctx, cronSpec)
	return h, err == nil, err
}

// CancelCurrent cancels the recorded job and then clears the pointer. With no
// pointer it cancels Sentinel; that rejection is logged and reports false.
// A recorded job the service does not know any more is treated as already
// gone: the pointer is cleared and false is returned.
func (m *Manager) CancelCurrent(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var id string
	err := m.call(ctx, "schedule.get_pointer", func(ctx context.Context) (err error) {
		id, err = m.pointers.GetPointer(ctx, m.pointerKey)
		return err
	})
	switch {
	case errors.Is(err, types.ErrNotFound):
		id = Sentinel
	case err != nil:
		metrics.RecordScheduleOp("cancel_current", "error")
		return false, err
	}

	err = m.call(ctx, "schedule.cancel", func(ctx context.Context) error {
		return m.jobs.Cancel(ctx, id)
	})
	if id == Sentinel {
		if err != nil {
			m.log.Info(ctx, "no job recorded, sentinel cancel rejected", logger.Error(err))
		}
		metrics.RecordScheduleOp("cancel_current", "noop")
		return false, nil
	}
	cancelled := err == nil
	if err != nil && !errors.Is(err, ErrJobNotFound) {
		metrics.RecordScheduleOp("cancel_current", "error")
		return false, err
	}
	if !cancelled {
		m.log.Warn(ctx, "recorded job unknown to scheduler, clearing pointer", logger.String("job_id", id))
	}

	if err := m.call(ctx, "schedule.clear_pointer", func(ctx context.Context) error {
		return m.pointers.DeletePointer(ctx, m.pointerKey)
	}); err != nil {
		metrics.RecordScheduleOp("cancel_current", "error")
		return cancelled, err
	}
	m.log.Info(ctx, "cancelled job", logger.String("job_id", id))
	metrics.RecordScheduleOp("cancel_current", "ok")
	return cancelled, nil
}

// CancelAll cancels every job the service lists, not only the recorded one.
// A failed cancel is logged and collected and the loop moves on; only a
// failed listing is returned as an error. The pointer is cleared when its job
// was cancelled.
func (m *Manager) CancelAll(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []Job
	if err := m.call(ctx, "schedule.list", func(ctx context.Context) (err error) {
		jobs, err = m.jobs.List(ctx)
		return err
	}); err != nil {
		metrics.RecordScheduleOp("cancel_all", "error")
		return Result{}, err
	}

	var current string
	if err := m.call(ctx, "schedule.get_pointer", func(ctx context.Context) (err error) {
		current, err = m.pointers.GetPointer(ctx, m.pointerKey)
		return err
	}); err != nil && !errors.Is(err, types.ErrNotFound) {
		m.log.Warn(ctx, "pointer read failed, it will not be cleared", logger.Error(err))
	}

	res := Result{Failures: []Failure{}}
	clearPointer := false
	for _, job := range jobs {
		err := m.call(ctx, "schedule.cancel", func(ctx context.Context) error {
			return m.jobs.Cancel(ctx, job.ID)
		})
		if err != nil {
			m.log.Warn(ctx, "cancel failed, continuing", logger.String("job_id", job.ID), logger.Error(err))
			res.Failures = append(res.Failures, Failure{JobID: job.ID, Err: err, Reason: err.Error()})
			continue
		}
		res.Cancelled++
		if job.ID == current {
			clearPointer = true
		}
	}

	if clearPointer {
		if err := m.call(ctx, "schedule.clear_pointer", func(ctx context.Context) error {
			return m.pointers.DeletePointer(ctx, m.pointerKey)
		}); err != nil {
			m.log.Warn(ctx, "pointer not cleared after cancel all", logger.Error(err))
		}
	}

	metrics.RecordJobsCancelled(res.Cancelled)
	outcome := "ok"
	if len(res.Failures) > 0 {
		outcome = "partial"
	}
	metrics.RecordScheduleOp("cancel_all", outcome)
	m.log.Info(ctx, "cancelled all jobs",
		logger.Int("cancelled", res.Cancelled), logger.Int("failed", len(res.Failures)))
	return res, nil
}

// Current reads the pointer. The bool is false when nothing is recorded.
func (m *Manager) Current(ctx context.Context) (Handle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(ctx)
}

func (m *Manager) current(ctx context.Context) (Handle, bool, error) {
	var id string
	err := m.call(ctx, "schedule.get_pointer", func(ctx context.Context) (err error) {
		id, err = m.pointers.GetPointer(ctx, m.pointerKey)
		return err
	})
	if errors.Is(err, types.ErrNotFound) {
		return Handle{}, false, nil
	}
	if err != nil {
		return Handle{}, false, err
	}

	var jobs []Job
	if err := m.call(ctx, "schedule.list", func(ctx context.Context) (err error) {
		jobs, err = m.jobs.List(ctx)
		return err
	}); err != nil {
		return Handle{}, false, err
	}
	h := Handle{JobID: id}
	for _, j := range jobs {
		if j.ID == id {
			h.CronSpec = j.CronSpec
			h.Active = true
			break
		}
	}
	return h, true, nil
}
