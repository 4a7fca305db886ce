package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/httpapi/response"
	"github.com/distsched/scheduler/internal/repository"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
	statsLogSample  = 100

	// successRatePercentScale converts a successes/total fraction to the
	// 0-100 scale spec §4.7 returns for jobStats.successRate.
	successRatePercentScale = 100
)

type handler struct {
	registry JobRegistry
	executor JobExecutor
	repo     repository.JobRepository
}

func (h *handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.ValidationError(w, "id", "must be an integer")
		return 0, false
	}
	return id, true
}

// jobRequest is the wire shape accepted by create/update.
type jobRequest struct {
	JobName            string             `json:"jobName"`
	JobGroup           string             `json:"jobGroup"`
	Environment        string             `json:"environment"`
	JobClass           string             `json:"jobClass"`
	JobType            domain.JobType     `json:"jobType"`
	CronExpression     string             `json:"cronExpression"`
	Status             domain.JobStatus   `json:"status"`
	Parameters         map[string]any     `json:"parameters,omitempty"`
	RetryCount         int                `json:"retryCount"`
	RetryInterval      string             `json:"retryInterval"`
	Timeout            string             `json:"timeout"`
	GrayReleaseEnabled bool               `json:"grayReleaseEnabled"`
	GrayReleasePercent int                `json:"grayReleasePercent"`
	Alert              domain.AlertPolicy `json:"alert"`
}

func (req jobRequest) toDomain() (domain.JobConfig, error) {
	retryInterval, err := parseDurationOrZero(req.RetryInterval)
	if err != nil {
		return domain.JobConfig{}, err
	}
	timeout, err := parseDurationOrZero(req.Timeout)
	if err != nil {
		return domain.JobConfig{}, err
	}

	return domain.JobConfig{
		JobName:            req.JobName,
		JobGroup:           req.JobGroup,
		Environment:        req.Environment,
		JobClass:           req.JobClass,
		JobType:            req.JobType,
		CronExpression:     req.CronExpression,
		Status:             req.Status,
		Parameters:         req.Parameters,
		RetryCount:         req.RetryCount,
		RetryInterval:      retryInterval,
		Timeout:            timeout,
		GrayReleaseEnabled: req.GrayReleaseEnabled,
		GrayReleasePercent: req.GrayReleasePercent,
		Alert:              req.Alert,
	}, nil
}

func parseDurationOrZero(s string) (domain.Duration, error) {
	if s == "" {
		return domain.Duration{}, nil
	}
	return domain.NewDuration(s)
}

func (h *handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed JSON body")
		return
	}
	if req.Status == "" {
		req.Status = domain.JobStatusStopped
	}

	job, err := req.toDomain()
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	created, err := h.registry.CreateJob(r.Context(), job)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	response.Created(w, created)
}

func (h *handler) updateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "malformed JSON body")
		return
	}

	job, err := req.toDomain()
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	job.ID = id

	if err := h.registry.UpdateJob(r.Context(), job); err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	updated, err := h.registry.GetJob(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, updated)
}

func (h *handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.DeleteJob(r.Context(), id); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	job, err := h.registry.GetJob(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, job)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.registry.ListJobs(r.Context())
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, jobs)
}

func (h *handler) pauseJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.PauseJob(r.Context(), id); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *handler) resumeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.ResumeJob(r.Context(), id); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *handler) startJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.StartJob(r.Context(), id); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *handler) stopJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.registry.StopJob(r.Context(), id); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

// executeResponse is the wire shape for a synchronous "execute now" request
// (spec §4.7): it reports the outcome of a single C5 Fire invoked directly,
// outside of any trigger engine schedule.
type executeResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	JobID        int64  `json:"jobId"`
	JobName      string `json:"jobName"`
}

func (h *handler) executeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	job, err := h.registry.GetJob(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	success, errMsg := h.executor.Fire(r.Context(), job)
	response.OK(w, executeResponse{
		Success:      success,
		ErrorMessage: errMsg,
		JobID:        job.ID,
		JobName:      job.JobName,
	})
}

func (h *handler) listLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.ValidationError(w, "limit", "must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	logs, err := h.repo.ListLogsByJobID(r.Context(), id, limit)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, logs)
}

func (h *handler) getLogByID(w http.ResponseWriter, r *http.Request) {
	logID, err := strconv.ParseInt(chi.URLParam(r, "logId"), 10, 64)
	if err != nil {
		response.ValidationError(w, "logId", "must be an integer")
		return
	}
	log, err := h.repo.GetLogByID(r.Context(), logID)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, log)
}

func (h *handler) getLogByExecutionID(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionId")
	log, err := h.repo.GetLogByExecutionID(r.Context(), executionID)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, log)
}

type jobStatsResponse struct {
	JobID         int64            `json:"jobId"`
	Status        domain.JobStatus `json:"status"`
	TotalCount    int              `json:"totalCount"`
	SuccessCount  int              `json:"successCount"`
	FailedCount   int              `json:"failedCount"`
	SuccessRate   float64          `json:"successRate"`
	AvgDurationMs int64            `json:"avgDurationMs"`
}

func (h *handler) jobStats(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	job, err := h.registry.GetJob(r.Context(), id)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	logs, err := h.repo.ListLogsByJobID(r.Context(), id, statsLogSample)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	stats := jobStatsResponse{JobID: id, Status: job.Status, TotalCount: len(logs)}
	if len(logs) == 0 {
		response.OK(w, stats)
		return
	}

	var totalDurationMs int64
	var finished int
	for _, l := range logs {
		switch l.Status {
		case domain.JobLogStatusSuccess:
			stats.SuccessCount++
		case domain.JobLogStatusFailed:
			stats.FailedCount++
		}
		if l.FinishedAt != nil {
			totalDurationMs += l.Duration().Milliseconds()
			finished++
		}
	}

	stats.SuccessRate = float64(stats.SuccessCount) * successRatePercentScale / float64(len(logs))
	if finished > 0 {
		stats.AvgDurationMs = totalDurationMs / int64(finished)
	}

	response.OK(w, stats)
}
