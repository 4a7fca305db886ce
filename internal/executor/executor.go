// Package executor implements C5 JobExecutor: allocates an executionId for
// each fire, resolves the registered job implementation, runs it under the
// gray-release gate and retry loop, and records the outcome as a JobLog.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/jobs"
	"github.com/distsched/scheduler/internal/ptr"
	"github.com/distsched/scheduler/internal/repository"
)

// Metrics receives outcome counters; a nil Metrics is valid and simply drops them.
type Metrics interface {
	RecordFire(jobType domain.JobType, outcome string)
	RecordRetry(jobName string)
}

// Executor is the C5 implementation.
type Executor struct {
	repo           repository.JobRepository
	serverIdentity string
	metrics        Metrics
}

// New constructs an Executor. metrics may be nil.
func New(repo repository.JobRepository, serverIdentity string, metrics Metrics) *Executor {
	return &Executor{repo: repo, serverIdentity: serverIdentity, metrics: metrics}
}

func (e *Executor) recordFire(jobType domain.JobType, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordFire(jobType, outcome)
	}
}

func (e *Executor) recordRetry(jobName string) {
	if e.metrics != nil {
		e.metrics.RecordRetry(jobName)
	}
}

// Fire runs one invocation of job — scheduled or ad-hoc via the Management
// API's "execute now" — through gray-release gating, the job implementation
// lookup, the retry loop, and JobLog bookkeeping. It returns the final
// success/errorMessage so a synchronous caller (C7's execute-now handler)
// can report the outcome; the trigger engine that drives scheduled fires
// ignores the return values.
func (e *Executor) Fire(ctx context.Context, job domain.JobConfig) (success bool, errorMessage string) {
	startTime := time.Now().UTC()
	executionID := uuid.NewString()

	if !domain.ShouldFire(job.ID, startTime, job.GrayReleaseEnabled, job.GrayReleasePercent) {
		e.recordSkippedFire(ctx, job, executionID, startTime)
		e.recordFire(job.JobType, "gray_release_skipped")
		return true, ""
	}

	factory, ok := jobs.Lookup(job.JobClass)
	if !ok {
		e.recordImmediateFailure(ctx, job, executionID, startTime, domain.ErrUnknownJobClass)
		e.recordFire(job.JobType, "unknown_job_class")
		return false, domain.ErrUnknownJobClass.Error()
	}

	totalAttempts := job.RetryCount + 1
	if totalAttempts < 1 {
		totalAttempts = 1
	}

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		outcome, runErr := e.runAttempt(ctx, job, executionID, attempt, factory)
		if runErr == nil {
			e.recordFire(job.JobType, "success")
			return true, ""
		}
		if errors.Is(runErr, domain.ErrInterrupted) {
			e.recordFire(job.JobType, "interrupted")
			return false, runErr.Error()
		}
		if attempt == totalAttempts {
			e.recordFire(job.JobType, "failed")
			return false, runErr.Error()
		}

		e.recordRetry(job.JobName)
		slog.WarnContext(ctx, "executor: attempt failed, retrying",
			"job_id", job.ID, "job_name", job.JobName, "attempt", attempt, "error", runErr, "log_output", outcome)

		if !e.cooperativeSleep(ctx, job.RetryInterval.Value()) {
			e.recordFire(job.JobType, "interrupted")
			return false, domain.ErrInterrupted.Error()
		}
	}

	return false, ""
}

// cooperativeSleep waits for d, or returns false early if ctx is cancelled.
func (e *Executor) cooperativeSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runAttempt executes exactly one attempt: insert RUNNING JobLog, invoke the
// job body (subject to job.Timeout), update the JobLog with the outcome.
func (e *Executor) runAttempt(ctx context.Context, job domain.JobConfig, executionID string, attempt int, factory jobs.Factory) (string, error) {
	logEntry := domain.JobLog{
		JobID:          job.ID,
		ExecutionID:    executionID,
		ServerIdentity: e.serverIdentity,
		Status:         domain.JobLogStatusRunning,
		StartedAt:      time.Now().UTC(),
		AttemptNumber:  attempt,
	}
	logID, err := e.repo.SaveLog(ctx, logEntry)
	if err != nil {
		slog.ErrorContext(ctx, "executor: failed to save running job log", "job_id", job.ID, "error", err)
	}
	logEntry.ID = logID

	runCtx := ctx
	var cancel context.CancelFunc
	if job.Timeout.Value() > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout.Value())
		defer cancel()
	}

	jctx := &jobs.Context{
		Context:     runCtx,
		JobID:       job.ID,
		ExecutionID: executionID,
		Parameters:  job.Parameters,
	}

	runErr := e.invoke(factory, jctx)

	finished := time.Now().UTC()
	logEntry.FinishedAt = ptr.To(finished)
	logEntry.Output = jctx.Output()

	switch {
	case runErr == nil:
		logEntry.Status = domain.JobLogStatusSuccess
	case errors.Is(ctx.Err(), context.Canceled):
		logEntry.Status = domain.JobLogStatusFailed
		logEntry.ErrorText = domain.ErrInterrupted.Error()
		runErr = domain.ErrInterrupted
	default:
		logEntry.Status = domain.JobLogStatusFailed
		logEntry.ErrorText = fmt.Sprintf("%s: %v", domain.ErrExecution, runErr)
		runErr = fmt.Errorf("%w: %v", domain.ErrExecution, runErr)
	}

	if logID != 0 {
		if err := e.repo.UpdateLog(ctx, logEntry); err != nil {
			slog.ErrorContext(ctx, "executor: failed to update job log", "job_id", job.ID, "log_id", logID, "error", err)
		}
	}

	return logEntry.Output, runErr
}

// invoke runs the job body, converting a panic into an ExecutionError so one
// misbehaving implementation cannot take down the executor goroutine.
func (e *Executor) invoke(factory jobs.Factory, jctx *jobs.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job implementation panicked: %v", r)
		}
	}()
	return factory().Run(jctx)
}

func (e *Executor) recordSkippedFire(ctx context.Context, job domain.JobConfig, executionID string, startTime time.Time) {
	logEntry := domain.JobLog{
		JobID:              job.ID,
		ExecutionID:        executionID,
		ServerIdentity:     e.serverIdentity,
		Status:             domain.JobLogStatusSuccess,
		StartedAt:          startTime,
		FinishedAt:         ptr.To(startTime),
		AttemptNumber:      1,
		GrayReleaseSkipped: true,
	}
	if _, err := e.repo.SaveLog(ctx, logEntry); err != nil {
		slog.ErrorContext(ctx, "executor: failed to record gray-release-skipped log", "job_id", job.ID, "error", err)
	}
}

func (e *Executor) recordImmediateFailure(ctx context.Context, job domain.JobConfig, executionID string, startTime time.Time, cause error) {
	finished := time.Now().UTC()
	logEntry := domain.JobLog{
		JobID:          job.ID,
		ExecutionID:    executionID,
		ServerIdentity: e.serverIdentity,
		Status:         domain.JobLogStatusFailed,
		StartedAt:      startTime,
		FinishedAt:     ptr.To(finished),
		AttemptNumber:  1,
		ErrorText:      cause.Error(),
	}
	if _, err := e.repo.SaveLog(ctx, logEntry); err != nil {
		slog.ErrorContext(ctx, "executor: failed to record immediate-failure log", "job_id", job.ID, "error", err)
	}
}
