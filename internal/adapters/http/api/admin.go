package api

import (
	"net/http"

	"github.com/okian/skyscraper/internal/domain/schedule"
)

// AdminHandler serves the operator routes.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type scheduleRequest struct {
	Cron string `json:"cron"`
}

type scheduleStatus struct {
	Scheduled bool             `json:"scheduled"`
	Handle    *schedule.Handle `json:"handle,omitempty"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// HandleTriggerSession handles POST /admin/sessions.
func (h *AdminHandler) HandleTriggerSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.deps.TriggerSession(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// HandleEnableSchedule handles POST /admin/schedule. The body is optional.
func (h *AdminHandler) HandleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	handle, err := h.deps.EnableDailySchedule(r.Context(), req.Cron)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, handle)
}

// HandleDisableSchedule handles DELETE /admin/schedule.
func (h *AdminHandler) HandleDisableSchedule(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.deps.DisableDailySchedule(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}

// HandleGetSchedule handles GET /admin/schedule.
func (h *AdminHandler) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	handle, ok, err := h.deps.ScheduleStatus(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	resp := scheduleStatus{Scheduled: ok}
	if ok {
		resp.Handle = &handle
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListJobs handles GET /admin/jobs.
func (h *AdminHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.deps.Jobs(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandlePurgeJobs handles DELETE /admin/jobs.
func (h *AdminHandler) HandlePurgeJobs(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.PurgeAllSchedules(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
