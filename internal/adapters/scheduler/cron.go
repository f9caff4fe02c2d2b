// Package scheduler is the in-process job service: named callbacks run on
// cron expressions, each scheduled instance identified by a uuid.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/okian/skyscraper/internal/domain/schedule"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

// Callback runs on every tick of a job.
type Callback func(ctx context.Context) error

type entry struct {
	job     schedule.Job
	entryID cron.EntryID
	seq     uint64
}

// Option applies a configuration option to the Cron.
type Option func(*Cron)

// WithLocation sets the time zone cron expressions are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(c *Cron) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithRunTimeout bounds a single callback run.
func WithRunTimeout(d time.Duration) Option {
	return func(c *Cron) {
		if d > 0 {
			c.runTimeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cron) {
		if l != nil {
			c.log = l
		}
	}
}

// Cron implements schedule.JobService on robfig/cron.
type Cron struct {
	mu         sync.Mutex
	cron       *cron.Cron
	parser     cron.Parser
	loc        *time.Location
	runTimeout time.Duration
	log        logger.Logger

	handlers map[string]Callback
	jobs     map[string]*entry
	seq      uint64
	started  bool
	stopped  bool
}

var _ schedule.JobService = (*Cron)(nil)

// New builds a stopped scheduler. Call Start to begin firing jobs.
func New(opts ...Option) *Cron {
	c := &Cron{
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:        time.Local,
		runTimeout: time.Minute,
		log:        logger.Nop(),
		handlers:   make(map[string]Callback),
		jobs:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	cl := cronLogger{log: c.log}
	c.cron = cron.New(
		cron.WithLocation(c.loc),
		cron.WithParser(c.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	return c
}

// Register binds name to cb. Jobs can only be created for registered names.
func (c *Cron) Register(name string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = cb
}

// Create implements schedule.JobService.
func (c *Cron) Create(ctx context.Context, name, cronSpec string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sched, err := c.parser.Parse(cronSpec)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", schedule.ErrInvalidCron, cronSpec, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return "", ErrStopped
	}
	if _, ok := c.handlers[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	id := uuid.NewString()
	entryID := c.cron.Schedule(sched, cron.FuncJob(func() { c.run(id, name) }))
	c.seq++
	c.jobs[id] = &entry{
		job:     schedule.Job{ID: id, Name: name, CronSpec: cronSpec},
		entryID: entryID,
		seq:     c.seq,
	}
	metrics.UpdateActiveJobs(len(c.jobs))
	c.log.Debug(ctx, "job created", logger.String("job_id", id), logger.String("job", name), logger.String("cron", cronSpec))
	return id, nil
}

// Cancel implements schedule.JobService. Unknown ids wrap schedule.ErrJobNotFound.
func (c *Cron) Cancel(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.jobs[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrJobNotFound, jobID)
	}
	c.cron.Remove(e.entryID)
	delete(c.jobs, jobID)
	metrics.UpdateActiveJobs(len(c.jobs))
	return nil
}

// List implements schedule.JobService, oldest job first.
func (c *Cron) List(ctx context.Context) ([]schedule.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.jobs))
	for _, e := range c.jobs {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]schedule.Job, len(entries))
	for i, e := range entries {
		out[i] = e.job
		out[i].Next = c.cron.Entry(e.entryID).Next
	}
	return out, nil
}

// Start begins firing jobs in the background.
func (c *Cron) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.cron.Start()
}

// Stop stops firing and waits for running callbacks or ctx, whichever ends first.
func (c *Cron) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow invokes the callback of a job immediately, outside its cron timing.
func (c *Cron) RunNow(jobID string) error {
	c.mu.Lock()
	e, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", schedule.ErrJobNotFound, jobID)
	}
	return c.run(jobID, e.job.Name)
}

func (c *Cron) run(id, name string) error {
	c.mu.Lock()
	cb := c.handlers[name]
	c.mu.Unlock()
	if cb == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.runTimeout)
	defer cancel()
	start := time.Now()
	err := cb(ctx)
	metrics.RecordJobRun(name, err == nil)
	if err != nil {
		c.log.Error(ctx, "job run failed",
			logger.String("job_id", id), logger.String("job", name), logger.Error(err))
		return err
	}
	c.log.Info(ctx, "job run finished",
		logger.String("job_id", id), logger.String("job", name), logger.Duration("took", time.Since(start)))
	return nil
}

// cronLogger feeds robfig/cron's internal logging into our logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(context.Background(), "cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(context.Background(), "cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
