// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	service "github.com/okian/skyscraper/internal/app"
	"github.com/okian/skyscraper/internal/domain/schedule"
	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	SessionDependencies
	LeaderboardDependencies
	AdminDependencies
	StatsProvider
}

// SessionDependencies backs the per-session routes.
type SessionDependencies interface {
	RequestInitialInventory(ctx context.Context, sessionID string) (shape.Inventory, error)
	SubmitScore(ctx context.Context, sessionID, player string, score float64) (service.SubmitResult, error)
}

// AdminDependencies backs the operator routes.
type AdminDependencies interface {
	TriggerSession(ctx context.Context) (service.SessionInfo, error)
	EnableDailySchedule(ctx context.Context, cronSpec string) (schedule.Handle, error)
	DisableDailySchedule(ctx context.Context) (bool, error)
	PurgeAllSchedules(ctx context.Context) (schedule.Result, error)
	ScheduleStatus(ctx context.Context) (schedule.Handle, bool, error)
	Jobs(ctx context.Context) ([]schedule.Job, error)
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAdminToken requires the X-Admin-Token header on admin routes.
// An empty token leaves them open.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	sessionsHandler    *SessionsHandler
	leaderboardHandler *LeaderboardHandler
	adminHandler       *AdminHandler
	adminToken         string
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds a chi router with every API route. Callers may mount more
// routes on the result.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	r.Get("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/inventory", MetricsMiddleware(s.sessionsHandler.HandleGetInventory, "inventory"))
		r.Post("/scores", MetricsMiddleware(s.sessionsHandler.HandlePostScore, "scores"))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminOnly(s.adminToken))
		r.Post("/sessions", MetricsMiddleware(s.adminHandler.HandleTriggerSession, "admin_sessions"))
		r.Get("/schedule", MetricsMiddleware(s.adminHandler.HandleGetSchedule, "admin_schedule"))
		r.Post("/schedule", MetricsMiddleware(s.adminHandler.HandleEnableSchedule, "admin_schedule"))
		r.Delete("/schedule", MetricsMiddleware(s.adminHandler.HandleDisableSchedule, "admin_schedule"))
		r.Get("/jobs", MetricsMiddleware(s.adminHandler.HandleListJobs, "admin_jobs"))
		r.Delete("/jobs", MetricsMiddleware(s.adminHandler.HandlePurgeJobs, "admin_jobs"))
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before touching the response so an encode failure
// still reaches the client as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Named("api").Error(context.Background(), "encode response failed",
			logger.Int("status", status), logger.Error(err))
		metrics.RecordErrorByComponent("api", "encode")
		body, _ = json.Marshal(errorResponse{Code: "internal_error", Message: ErrEncodeResponse.Error()})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Named("api").Debug(context.Background(), "write response failed", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an error kind to a status and code.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, types.ErrExternalServiceFailure):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}
