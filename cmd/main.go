package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/skyscraper/internal/adapters/http/api"
	"github.com/okian/skyscraper/internal/adapters/http/swagger"
	"github.com/okian/skyscraper/internal/adapters/http/ws"
	"github.com/okian/skyscraper/internal/adapters/notify"
	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/adapters/repository/memory"
	"github.com/okian/skyscraper/internal/adapters/repository/redisstore"
	"github.com/okian/skyscraper/internal/adapters/repository/sqlite"
	"github.com/okian/skyscraper/internal/adapters/scheduler"
	app "github.com/okian/skyscraper/internal/app"
	"github.com/okian/skyscraper/internal/config"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "skyscraper exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	notifier, err := notify.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, notify.WithLogger(log.Named("notify")))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("connect nats: %w", err)
	}

	svc := app.New(
		app.WithLogger(log.Named("service")),
		app.WithStore(store),
		app.WithNotifier(notifier),
		app.WithJobRunner(scheduler.New(
			scheduler.WithLogger(log.Named("scheduler")),
			scheduler.WithRunTimeout(cfg.CallTimeout()*time.Duration(cfg.PublishAttempts+1)),
		)),
		app.WithCallTimeout(cfg.CallTimeout()),
		app.WithPublishAttempts(cfg.PublishAttempts),
		app.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		app.WithDailyCron(cfg.DailyCron),
		app.WithAutoSchedule(cfg.AutoSchedule),
	)
	if err := svc.Start(ctx); err != nil {
		_ = notifier.Close()
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc, cfg, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", store.Backend()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore opens the configured store backend.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case config.BackendSQLite:
		st, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.BackendRedis:
		st, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, nil
	case config.BackendMemory, "":
		return memory.NewTreapStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store_backend %q", config.ErrInvalidConfig, cfg.StoreBackend)
	}
}

// newRouter mounts the API, docs and the view bridge. The bridge is mounted
// outside the metrics wrapper so the connection can be hijacked.
func newRouter(svc *app.Service, cfg *config.Config, log logger.Logger) http.Handler {
	r := api.NewServer(svc, api.WithAdminToken(cfg.AdminToken)).Router()
	_ = swagger.Register(r)
	r.Handle("/ws", ws.NewHandler(svc, ws.WithLogger(log.Named("ws"))))
	return r
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
