// Package service coordinates sessions, score submissions and the daily
// schedule on top of the storage, scheduling and publishing adapters.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/okian/skyscraper/internal/adapters/notify"
	"github.com/okian/skyscraper/internal/adapters/publisher"
	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	"github.com/okian/skyscraper/internal/adapters/scheduler"
	"github.com/okian/skyscraper/internal/domain/highscore"
	"github.com/okian/skyscraper/internal/domain/schedule"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

// Defaults.
const (
	AnonymousPlayer        = "anon"
	DefaultLeaderboardSize = 5
	DefaultMaxLeaderboard  = 100
	DefaultPublishAttempts = 3
	MaxPlayerLength        = 64

	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

// Publisher creates content units and resolves the acting player.
type Publisher interface {
	CreateUnit(ctx context.Context, title, preview string) (publisher.Unit, error)
	// CurrentUser returns "" for an anonymous caller.
	CurrentUser(ctx context.Context) (string, error)
}

// JobRunner is a job service that also fires registered callbacks.
type JobRunner interface {
	schedule.JobService
	Register(name string, cb scheduler.Callback)
	Start()
	Stop(ctx context.Context) error
}

// Generator draws shape inventories.
type Generator interface {
	Generate() shape.Inventory
}

// SessionInfo describes a newly created session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
	Shapes    int       `json:"shapes"`
}

// SubmitResult answers a score submission.
type SubmitResult struct {
	Player      string `json:"player"`
	Accepted    bool   `json:"accepted"`
	IsHighScore bool   `json:"is_high_score"`
}

// Service implements the operations exposed over HTTP and WebSocket.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store     repository.Store
	generator Generator
	publisher Publisher
	jobs      JobRunner
	notifier  notify.Notifier

	// Domain
	classifier *highscore.Classifier
	schedules  *schedule.Manager

	// Configuration
	callTimeout     time.Duration
	publishAttempts int
	maxLimit        int
	dailyCron       string
	autoSchedule    bool

	// State
	started         bool
	stopped         bool
	sessionsCreated atomic.Int64
	submissions     atomic.Int64
	accepted        atomic.Int64
	highScores      atomic.Int64
	lastSession     atomic.Value // string

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the storage backend. The service closes it on Stop.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithGenerator sets the inventory generator.
func WithGenerator(g Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.generator = g
		}
	}
}

// WithPublisher sets the publishing and identity service.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithJobRunner sets the job service.
func WithJobRunner(j JobRunner) Option {
	return func(s *Service) {
		if j != nil {
			s.jobs = j
		}
	}
}

// WithNotifier sets where session and high score events are announced.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCallTimeout bounds every external call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithPublishAttempts sets how many times content-unit creation is tried.
func WithPublishAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.publishAttempts = n
		}
	}
}

// WithMaxLeaderboardLimit caps RequestLeaderboard.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithDailyCron sets the cron expression used when none is given.
func WithDailyCron(spec string) Option {
	return func(s *Service) {
		if spec != "" {
			s.dailyCron = spec
		}
	}
}

// WithAutoSchedule makes Start ensure the daily job exists.
func WithAutoSchedule(on bool) Option {
	return func(s *Service) { s.autoSchedule = on }
}

// New constructs a Service. Unset collaborators default to in-process ones.
func New(opts ...Option) *Service {
	s := &Service{
		callTimeout:     schedule.DefaultCallTimeout,
		publishAttempts: DefaultPublishAttempts,
		maxLimit:        DefaultMaxLeaderboard,
		dailyCron:       schedule.DefaultCron,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = memory.NewTreapStore()
	}
	if s.generator == nil {
		s.generator = shape.NewGenerator()
	}
	if s.publisher == nil {
		s.publisher = publisher.NewLocal()
	}
	if s.jobs == nil {
		s.jobs = scheduler.New(scheduler.WithLogger(s.logger.Named("scheduler")))
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	s.lastSession.Store("")

	s.classifier = highscore.New(s.store)
	s.schedules = schedule.NewManager(s.jobs, s.store,
		schedule.WithCallTimeout(s.callTimeout),
		schedule.WithLogger(s.logger.Named("schedule")),
	)
	return s
}

// Start registers the session job, starts the scheduler and, when
// configured, makes sure the daily job exists.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting skyscraper service...", logger.String("store", s.store.Backend()))

	s.jobs.Register(schedule.JobName, func(ctx context.Context) error {
		_, err := s.triggerSession(ctx, triggerSchedule)
		return err
	})
	s.jobs.Start()

	if s.autoSchedule {
		h, created, err := s.schedules.Ensure(ctx, s.dailyCron)
		if err != nil {
			return fmt.Errorf("ensure daily schedule: %w", err)
		}
		s.logger.Info(ctx, "daily schedule ready",
			logger.String("job_id", h.JobID), logger.Bool("created", created))
	}

	s.started = true
	s.logger.Info(ctx, "skyscraper service started")
	return nil
}

// Stop stops the scheduler and closes the store and the notifier.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping skyscraper service...")

	if err := s.jobs.Stop(ctx); err != nil {
		s.logger.Warn(ctx, "scheduler stop timed out", logger.Error(err))
	}
	if err := s.notifier.Close(); err != nil {
		s.logger.Warn(ctx, "notifier close failed", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "store close failed", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "skyscraper service stopped")
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// TriggerSession creates and seeds a session now.
func (s *Service) TriggerSession(ctx context.Context) (SessionInfo, error) {
	return s.triggerSession(ctx, triggerManual)
}

func (s *Service) triggerSession(ctx context.Context, trigger string) (SessionInfo, error) {
	title := publisher.Title(time.Now())

	var unit publisher.Unit
	backoff := retry.WithMaxRetries(uint64(s.publishAttempts-1), retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		metrics.RecordPublishAttempt()
		cctx, cancel := s.bounded(ctx)
		defer cancel()
		u, err := s.publisher.CreateUnit(cctx, title, publisher.DefaultPreview)
		if err != nil {
			if errors.Is(err, publisher.ErrEmptyTitle) {
				return err
			}
			s.logger.Warn(ctx, "content unit creation failed", logger.Error(err))
			return retry.RetryableError(err)
		}
		unit = u
		return nil
	})
	if err != nil {
		metrics.RecordSessionCreateError()
		return SessionInfo{}, types.External("service.publish", err)
	}

	inv := s.generator.Generate()
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.store.Put(cctx, unit.ID, inv); err != nil {
		metrics.RecordSessionCreateError()
		s.logger.Error(ctx, "session published without inventory",
			logger.String("session_id", unit.ID), logger.Error(err))
		return SessionInfo{}, fmt.Errorf("store inventory: %w", err)
	}

	info := SessionInfo{
		SessionID: unit.ID,
		Title:     unit.Title,
		Preview:   unit.Preview,
		CreatedAt: unit.CreatedAt,
		Shapes:    len(inv.Shapes),
	}
	s.sessionsCreated.Add(1)
	s.lastSession.Store(unit.ID)
	metrics.RecordSessionCreated(trigger, len(inv.Shapes))
	s.logger.Info(ctx, "session created",
		logger.String("session_id", unit.ID),
		logger.String("trigger", trigger),
		logger.Int("shapes", len(inv.Shapes)),
	)
	s.announce(ctx, notify.Event{Type: notify.SessionCreated, SessionID: unit.ID, Title: unit.Title, At: unit.CreatedAt})
	return info, nil
}

// RequestInitialInventory returns the inventory seeded for sessionID.
func (s *Service) RequestInitialInventory(ctx context.Context, sessionID string) (shape.Inventory, error) {
	if sessionID == "" {
		return shape.Inventory{}, repository.ErrNotFound
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.store.Get(cctx, sessionID)
}

// SubmitScore classifies score against the current board and then records it.
// Classification runs first so the answer reflects the board before this
// submission. Any failure is returned and the submission counts as not accepted.
func (s *Service) SubmitScore(ctx context.Context, sessionID, player string, score float64) (SubmitResult, error) {
	name, err := s.ResolvePlayer(ctx, player)
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{Player: name}

	high, err := s.IsHighScore(ctx, score)
	if err != nil {
		metrics.RecordSubmissionError()
		return res, fmt.Errorf("classify: %w", err)
	}
	res.IsHighScore = high

	accepted, err := s.RecordScore(ctx, name, score)
	if err != nil {
		return res, fmt.Errorf("submit: %w", err)
	}
	res.Accepted = accepted

	if high {
		s.announce(ctx, notify.Event{Type: notify.HighScore, SessionID: sessionID, Player: name, Score: score, At: time.Now()})
	}
	s.logger.Debug(ctx, "score submitted",
		logger.String("session_id", sessionID),
		logger.String("player", name),
		logger.Float64("score", score),
		logger.Bool("accepted", accepted),
		logger.Bool("high_score", high),
	)
	return res, nil
}

// IsHighScore classifies score without writing it.
func (s *Service) IsHighScore(ctx context.Context, score float64) (bool, error) {
	if err := repository.ValidateScore(score); err != nil {
		return false, err
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	high, err := s.classifier.IsHighScore(cctx, score)
	if err != nil {
		metrics.RecordErrorByComponent("classifier", "external")
		return false, err
	}
	metrics.RecordClassification(high)
	if high {
		s.highScores.Add(1)
	}
	return high, nil
}

// RecordScore stores score as player's best when it beats the current one.
func (s *Service) RecordScore(ctx context.Context, player string, score float64) (bool, error) {
	name, err := s.ResolvePlayer(ctx, player)
	if err != nil {
		return false, err
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()

	s.submissions.Add(1)
	accepted, err := s.store.Submit(cctx, name, score)
	if err != nil {
		metrics.RecordSubmissionError()
		return false, err
	}
	metrics.RecordSubmission(accepted)
	if accepted {
		s.accepted.Add(1)
		if n, err := s.store.Count(cctx); err == nil {
			metrics.UpdateLeaderboardSize(n)
		}
	}
	return accepted, nil
}

// RequestLeaderboard returns the best n players. n <= 0 means the default
// size and larger requests are capped.
func (s *Service) RequestLeaderboard(ctx context.Context, n int) ([]types.Entry, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	if n > s.maxLimit {
		n = s.maxLimit
	}
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.store.Top(cctx, n)
}

// ResolvePlayer returns player when given, else the identity service's
// current user, else AnonymousPlayer.
func (s *Service) ResolvePlayer(ctx context.Context, player string) (string, error) {
	if player == "" {
		cctx, cancel := s.bounded(ctx)
		name, err := s.publisher.CurrentUser(cctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "identity lookup failed, playing anonymously", logger.Error(err))
		}
		player = name
	}
	if player == "" {
		return AnonymousPlayer, nil
	}
	if len(player) > MaxPlayerLength || !utf8.ValidString(player) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlayer, player)
	}
	return player, nil
}

// EnableDailySchedule schedules the session job. An empty spec uses the
// configured daily cron.
func (s *Service) EnableDailySchedule(ctx context.Context, cronSpec string) (schedule.Handle, error) {
	if cronSpec == "" {
		cronSpec = s.dailyCron
	}
	return s.schedules.Schedule(ctx, cronSpec)
}

// DisableDailySchedule cancels the tracked job.
func (s *Service) DisableDailySchedule(ctx context.Context) (bool, error) {
	return s.schedules.CancelCurrent(ctx)
}

// PurgeAllSchedules cancels every job the scheduler knows.
func (s *Service) PurgeAllSchedules(ctx context.Context) (schedule.Result, error) {
	return s.schedules.CancelAll(ctx)
}

// ScheduleStatus reports the tracked job, if any.
func (s *Service) ScheduleStatus(ctx context.Context) (schedule.Handle, bool, error) {
	return s.schedules.Current(ctx)
}

// Jobs lists every scheduled job.
func (s *Service) Jobs(ctx context.Context) ([]schedule.Job, error) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.jobs.List(cctx)
}

func (s *Service) announce(ctx context.Context, ev notify.Event) {
	cctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.notifier.Notify(cctx, ev); err != nil {
		metrics.RecordAnnouncementError()
		s.logger.Warn(ctx, "announcement failed", logger.String("type", ev.Type), logger.Error(err))
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         started,
		"store":           s.store.Backend(),
		"sessionsCreated": s.sessionsCreated.Load(),
		"submissions":     s.submissions.Load(),
		"accepted":        s.accepted.Load(),
		"highScores":      s.highScores.Load(),
		"lastSession":     s.lastSession.Load(),
	}

	if started {
		ctx, cancel := s.bounded(context.Background())
		defer cancel()
		if n, err := s.store.Count(ctx); err == nil {
			stats["players"] = n
			metrics.UpdateLeaderboardSize(n)
		}
		if jobs, err := s.jobs.List(ctx); err == nil {
			stats["activeJobs"] = len(jobs)
			metrics.UpdateActiveJobs(len(jobs))
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats["goroutines"] = runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return stats
}
