// Package scheduler implements C4 SchedulerManager: the concurrent
// jobId -> handle table, and the Trigger engine bindings for the QUARTZ
// (robfig/cron/v3, in-process) and EXTERNAL (go-co-op/gocron/v2, standing in
// for a dedicated external executor framework) job types.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"github.com/distsched/scheduler/internal/domain"
)

// Executor is the slice of executor.Executor (C5) that the Manager needs:
// a single entry point invoked on every fire. The return values are ignored
// here; they exist for C7's synchronous "execute now" caller.
type Executor interface {
	Fire(ctx context.Context, job domain.JobConfig) (success bool, errorMessage string)
}

var quartzParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Manager is the C4 SchedulerManager implementation.
type Manager struct {
	executor Executor

	mu      sync.Mutex
	handles map[int64]*handle

	cronEngine  *cron.Cron
	gocronSched gocron.Scheduler

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New constructs a Manager bound to executor. Call Start before adding jobs
// and Stop during shutdown.
func New(executor Executor) (*Manager, error) {
	gocronSched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("%w: create gocron scheduler: %v", domain.ErrConfiguration, err)
	}

	return &Manager{
		executor:    executor,
		handles:     make(map[int64]*handle),
		cronEngine:  cron.New(cron.WithParser(quartzParser)),
		gocronSched: gocronSched,
		runCtx:      context.Background(),
		runCancel:   func() {},
	}, nil
}

// Start begins dispatching fires for both trigger engine backends. ctx is
// the root context handed to every Fire call; cancelling it (via Stop, or
// the caller's own shutdown signal) is how in-flight fires learn to stop.
func (m *Manager) Start(ctx context.Context) {
	m.runCtx, m.runCancel = context.WithCancel(ctx)
	m.cronEngine.Start()
	m.gocronSched.Start()
}

// Stop halts both trigger engine backends and cancels the root context
// passed to Start, signalling in-flight fires to wind down. It waits, until
// ctx is done, for in-flight QUARTZ fires to return, then shuts down the
// EXTERNAL engine.
func (m *Manager) Stop(ctx context.Context) error {
	m.runCancel()
	stopCtx := m.cronEngine.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return m.gocronSched.Shutdown()
}

// IsCronValid reports whether expr parses under the Quartz-compatible
// dialect used by both trigger engine backends. Used eagerly at
// configuration time (HTTP create/update, ConfigChangeReconciler) as well as
// internally before scheduling.
func (m *Manager) IsCronValid(_ domain.JobType, expr string) bool {
	_, err := quartzParser.Parse(expr)
	return err == nil
}

func gocronTag(jobID int64) string {
	return fmt.Sprintf("job-%d", jobID)
}

// AddJob creates a new handle for job and schedules it on the trigger engine
// matching job.JobType. Returns ErrSchedulerDuplicate if a handle already
// exists for job.ID.
func (m *Manager) AddJob(ctx context.Context, job domain.JobConfig) error {
	if !m.IsCronValid(job.JobType, job.CronExpression) {
		return fmt.Errorf("%w: invalid cron expression %q", domain.ErrConfiguration, job.CronExpression)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.handles[job.ID]; exists {
		return domain.ErrSchedulerDuplicate
	}

	h := &handle{job: job, state: handleStateNew}
	if err := m.schedule(h); err != nil {
		return err
	}
	h.state = handleStateStarted
	m.handles[job.ID] = h

	slog.InfoContext(ctx, "scheduler: job added", "job_id", job.ID, "job_name", job.JobName, "job_type", job.JobType)
	return nil
}

// UpdateJob replaces the schedule for an existing handle with job's current
// definition (cron expression, job type may have changed).
func (m *Manager) UpdateJob(ctx context.Context, job domain.JobConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, exists := m.handles[job.ID]
	if !exists {
		h = &handle{job: job, state: handleStateNew}
		m.handles[job.ID] = h
	} else {
		m.unschedule(h)
	}

	h.job = job
	if err := m.schedule(h); err != nil {
		delete(m.handles, job.ID)
		return err
	}
	h.state = handleStateStarted

	slog.InfoContext(ctx, "scheduler: job updated", "job_id", job.ID, "job_name", job.JobName)
	return nil
}

// RemoveJob unschedules and forgets the handle for jobID.
func (m *Manager) RemoveJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, exists := m.handles[jobID]
	if !exists {
		return domain.ErrSchedulerMissing
	}
	m.unschedule(h)
	delete(m.handles, jobID)

	slog.InfoContext(ctx, "scheduler: job removed", "job_id", jobID)
	return nil
}

// PauseJob unschedules the handle's fires but keeps the handle (and its
// JobConfig snapshot) so ResumeJob can re-add it without a storage round-trip.
func (m *Manager) PauseJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, exists := m.handles[jobID]
	if !exists {
		return domain.ErrSchedulerMissing
	}
	m.unschedule(h)
	h.state = handleStatePaused

	slog.InfoContext(ctx, "scheduler: job paused", "job_id", jobID)
	return nil
}

// ResumeJob reschedules a PAUSED handle. Returns ErrSchedulerMissing if no
// handle exists at all (the caller should fall back to AddJob with a freshly
// loaded JobConfig in that case).
func (m *Manager) ResumeJob(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, exists := m.handles[jobID]
	if !exists {
		return domain.ErrSchedulerMissing
	}
	if h.state != handleStatePaused {
		return nil
	}
	if err := m.schedule(h); err != nil {
		return err
	}
	h.state = handleStateStarted

	slog.InfoContext(ctx, "scheduler: job resumed", "job_id", jobID)
	return nil
}

// Handles returns a snapshot of job ids currently tracked, for diagnostics.
func (m *Manager) Handles() map[int64]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]string, len(m.handles))
	for id, h := range m.handles {
		out[id] = string(h.state)
	}
	return out
}

// schedule registers h.job on the trigger engine matching its JobType.
// Caller must hold m.mu.
func (m *Manager) schedule(h *handle) error {
	switch h.job.JobType {
	case domain.JobTypeQuartz:
		return m.scheduleQuartz(h)
	case domain.JobTypeExternal:
		return m.scheduleExternal(h)
	default:
		return fmt.Errorf("%w: unknown job type %q", domain.ErrConfiguration, h.job.JobType)
	}
}

func (m *Manager) scheduleQuartz(h *handle) error {
	job := h.job
	entryID, err := m.cronEngine.AddFunc(job.CronExpression, func() {
		m.fire(job.ID)
	})
	if err != nil {
		return fmt.Errorf("%w: schedule quartz job: %v", domain.ErrConfiguration, err)
	}
	h.cronEntryID = entryID
	h.hasCronEntry = true
	return nil
}

func (m *Manager) scheduleExternal(h *handle) error {
	job := h.job
	_, err := m.gocronSched.NewJob(
		gocron.CronJob(job.CronExpression, true),
		gocron.NewTask(func(jobID int64) {
			m.fire(jobID)
		}, job.ID),
		gocron.WithTags(gocronTag(job.ID)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("%w: schedule external job: %v", domain.ErrConfiguration, err)
	}
	return nil
}

// unschedule removes h from whichever trigger engine backend is currently
// holding it. Caller must hold m.mu.
func (m *Manager) unschedule(h *handle) {
	switch h.job.JobType {
	case domain.JobTypeQuartz:
		if h.hasCronEntry {
			m.cronEngine.Remove(h.cronEntryID)
			h.hasCronEntry = false
		}
	case domain.JobTypeExternal:
		m.gocronSched.RemoveByTags(gocronTag(h.job.ID))
	}
}

// fire looks up the handle's current JobConfig snapshot and hands it to the
// Executor. Runs on the trigger engine's own goroutine.
func (m *Manager) fire(jobID int64) {
	m.mu.Lock()
	h, exists := m.handles[jobID]
	var job domain.JobConfig
	runCtx := m.runCtx
	if exists {
		job = h.job
	}
	m.mu.Unlock()

	if !exists {
		return
	}

	m.executor.Fire(runCtx, job)
}
