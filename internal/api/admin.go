package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/solarafrica/solarplanner/internal/cron"
	"github.com/solarafrica/solarplanner/internal/storage"
)

// JobStatus describes the recalculation job as seen by operators.
type JobStatus struct {
	Name           string     `json:"name"`
	Schedule       string     `json:"schedule"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	LastSuccess    bool       `json:"lastSuccess"`
	LastError      string     `json:"lastError,omitempty"`
}

type ScheduleRequest struct {
	Schedule string `json:"schedule" example:"0 */6 * * *"`
}

type adminHandler struct {
	jobs            storage.JobStore
	recalc          cron.Recalculator
	alerter         cron.Alerter
	defaultSchedule string
}

func (h *adminHandler) schedule(r *http.Request) (string, error) {
	val, err := h.jobs.GetSetting(r.Context(), cron.ScheduleSetting)
	if err != nil {
		return "", err
	}
	if val == "" {
		return h.defaultSchedule, nil
	}
	return val, nil
}

// Status godoc
// @Summary Recalculation job status
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=JobStatus}
// @Router /admin/recalculation [get]
func (h *adminHandler) Status(w http.ResponseWriter, r *http.Request) {
	sched, err := h.schedule(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.jobs.GetScheduledJob(r.Context(), cron.JobName)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := JobStatus{Name: cron.JobName, Schedule: sched}
	if job != nil {
		last := job.LastRunAt
		status.LastRunAt = &last
		status.LastDurationMs = job.LastDurationMs
		status.LastSuccess = job.LastSuccess == 1
		status.LastError = job.LastError
	}
	ok(w, r, http.StatusOK, "", status)
}

// SetSchedule godoc
// @Summary Change the recalculation schedule
// @Description Accepts integer seconds or a five-field cron expression. Running workers pick it up on their next tick.
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ScheduleRequest true "New schedule"
// @Success 200 {object} Envelope{data=ScheduleRequest}
// @Failure 400 {object} Envelope
// @Router /admin/recalculation/schedule [put]
func (h *adminHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := cron.ValidateSchedule(req.Schedule); err != nil {
		fail(w, r, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if err := h.jobs.SetSetting(r.Context(), cron.ScheduleSetting, req.Schedule); err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, r, http.StatusOK, "Schedule updated", req)
}

// Run godoc
// @Summary Recalculate every plan now
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=plans.RecalcSummary}
// @Failure 409 {object} Envelope
// @Router /admin/recalculation/run [post]
func (h *adminHandler) Run(w http.ResponseWriter, r *http.Request) {
	sum, err := cron.RunBatch(r.Context(), h.jobs, h.recalc, h.alerter)
	switch {
	case errors.Is(err, cron.ErrLocked):
		fail(w, r, http.StatusConflict, "Recalculation already running")
	case err != nil && sum.Failed == 0:
		writeError(w, r, err)
	case sum.Failed > 0:
		ok(w, r, http.StatusOK, "Recalculation finished with failures", sum)
	default:
		ok(w, r, http.StatusOK, "Recalculation finished", sum)
	}
}
