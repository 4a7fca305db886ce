// Package jobregistry implements C3 JobRegistry: it validates and persists
// JobConfig records, publishes them to the ConfigStore for other instances
// to observe, and hands RUNNING jobs to the SchedulerManager (C4).
package jobregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/jobs"
	"github.com/distsched/scheduler/internal/repository"
)

// bootstrapConcurrency bounds how many jobs Bootstrap schedules at once, so a
// fleet with thousands of RUNNING JobConfigs doesn't serialize one at a time
// behind the trigger engine's own locking.
const bootstrapConcurrency = 8

// Publisher is the slice of configstore.Store that JobRegistry needs.
type Publisher interface {
	PublishConfig(ctx context.Context, dataID, content string) error
	EncodeDocument(v any) (string, error)
}

// SchedulerManager is the slice of scheduler.Manager that JobRegistry needs.
type SchedulerManager interface {
	AddJob(ctx context.Context, job domain.JobConfig) error
	UpdateJob(ctx context.Context, job domain.JobConfig) error
	RemoveJob(ctx context.Context, jobID int64) error
	PauseJob(ctx context.Context, jobID int64) error
	ResumeJob(ctx context.Context, jobID int64) error
	IsCronValid(jobType domain.JobType, expr string) bool
}

// Registry is the C3 implementation.
type Registry struct {
	repo      repository.JobRepository
	publisher Publisher
	scheduler SchedulerManager

	// environment is the active profile used as the natural-key fallback
	// for a jobs.Registration that leaves Environment unset.
	environment string
}

// New constructs a Registry. scheduler may be nil for read-path-only use
// (e.g. the HTTP API's list/get handlers construct one without a live
// SchedulerManager reference in unit tests).
func New(repo repository.JobRepository, publisher Publisher, scheduler SchedulerManager) *Registry {
	return &Registry{repo: repo, publisher: publisher, scheduler: scheduler}
}

// WithEnvironment sets the active profile used to resolve a jobs.Registration
// whose Environment is left blank, and returns r for chaining at construction.
func (r *Registry) WithEnvironment(environment string) *Registry {
	r.environment = environment
	return r
}

func (r *Registry) validate(job domain.JobConfig) error {
	if job.JobName == "" || job.JobGroup == "" || job.Environment == "" {
		return fmt.Errorf("%w: jobName, jobGroup and environment are required", domain.ErrConfiguration)
	}
	if !job.JobType.Valid() {
		return fmt.Errorf("%w: unknown jobType %q", domain.ErrConfiguration, job.JobType)
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrConfiguration, job.Status)
	}
	if _, ok := jobs.Lookup(job.JobClass); !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownJobClass, job.JobClass)
	}
	if r.scheduler != nil && !r.scheduler.IsCronValid(job.JobType, job.CronExpression) {
		return fmt.Errorf("%w: invalid cron expression %q for job type %s", domain.ErrConfiguration, job.CronExpression, job.JobType)
	}
	if job.GrayReleasePercent < 0 || job.GrayReleasePercent > 100 {
		return fmt.Errorf("%w: grayReleasePercent must be within [0, 100]", domain.ErrConfiguration)
	}
	return nil
}

func (r *Registry) publish(ctx context.Context, job domain.JobConfig) {
	content, err := r.publisher.EncodeDocument(FromJobConfig(job))
	if err != nil {
		slog.ErrorContext(ctx, "jobregistry: failed to encode document", "job_id", job.ID, "error", err)
		return
	}
	if err := r.publisher.PublishConfig(ctx, job.DataID(), content); err != nil {
		slog.ErrorContext(ctx, "jobregistry: failed to publish document", "job_id", job.ID, "error", err)
	}
}

// CreateJob validates, persists, publishes, and (if Status is RUNNING) hands
// the new JobConfig to the SchedulerManager.
func (r *Registry) CreateJob(ctx context.Context, job domain.JobConfig) (domain.JobConfig, error) {
	if err := r.validate(job); err != nil {
		return domain.JobConfig{}, err
	}

	id, err := r.repo.Save(ctx, job)
	if err != nil {
		return domain.JobConfig{}, err
	}
	job.ID = id

	r.publish(ctx, job)

	if job.Status == domain.JobStatusRunning && r.scheduler != nil {
		if err := r.scheduler.AddJob(ctx, job); err != nil {
			return domain.JobConfig{}, fmt.Errorf("job persisted but could not be scheduled: %w", err)
		}
	}

	return job, nil
}

// UpdateJob validates and persists an update, republishes, and reconciles
// the live SchedulerManager handle to match the new status/schedule.
func (r *Registry) UpdateJob(ctx context.Context, job domain.JobConfig) error {
	if err := r.validate(job); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, job); err != nil {
		return err
	}

	r.publish(ctx, job)

	if r.scheduler == nil {
		return nil
	}

	switch job.Status {
	case domain.JobStatusRunning:
		if err := r.scheduler.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("job persisted but scheduler handle not updated: %w", err)
		}
	case domain.JobStatusPaused:
		if err := r.scheduler.PauseJob(ctx, job.ID); err != nil {
			return fmt.Errorf("job persisted but scheduler handle not paused: %w", err)
		}
	case domain.JobStatusStopped:
		if err := r.scheduler.RemoveJob(ctx, job.ID); err != nil {
			return fmt.Errorf("job persisted but scheduler handle not removed: %w", err)
		}
	}

	return nil
}

// DeleteJob removes a JobConfig from storage and the live scheduler.
func (r *Registry) DeleteJob(ctx context.Context, jobID int64) error {
	if err := r.repo.Delete(ctx, jobID); err != nil {
		return err
	}
	if r.scheduler != nil {
		if err := r.scheduler.RemoveJob(ctx, jobID); err != nil {
			slog.ErrorContext(ctx, "jobregistry: failed to remove scheduler handle after delete", "job_id", jobID, "error", err)
		}
	}
	return nil
}

// PauseJob sets status to PAUSED and pauses the live scheduler handle.
func (r *Registry) PauseJob(ctx context.Context, jobID int64) error {
	if err := r.repo.UpdateStatus(ctx, jobID, domain.JobStatusPaused); err != nil {
		return err
	}
	if r.scheduler != nil {
		if err := r.scheduler.PauseJob(ctx, jobID); err != nil {
			if errors.Is(err, domain.ErrSchedulerMissing) {
				return nil
			}
			return fmt.Errorf("status persisted but scheduler handle not paused: %w", err)
		}
	}
	return nil
}

// ResumeJob sets status to RUNNING and resumes (or (re)adds) the live
// scheduler handle.
func (r *Registry) ResumeJob(ctx context.Context, jobID int64) error {
	if err := r.repo.UpdateStatus(ctx, jobID, domain.JobStatusRunning); err != nil {
		return err
	}
	if r.scheduler == nil {
		return nil
	}
	if err := r.scheduler.ResumeJob(ctx, jobID); err != nil {
		job, getErr := r.repo.GetByID(ctx, jobID)
		if getErr != nil {
			return fmt.Errorf("status persisted but scheduler handle not resumed: %w", err)
		}
		if addErr := r.scheduler.AddJob(ctx, job); addErr != nil {
			return fmt.Errorf("status persisted but scheduler handle not resumed: %w", addErr)
		}
	}
	return nil
}

// StartJob sets status to RUNNING and adds (or re-adds) the live scheduler
// handle, for a job that was previously STOPPED. Functionally equivalent to
// ResumeJob; kept as a distinct spec operation name since spec §4.7 exposes
// start and resume as separate lifecycle transitions even though both land
// a job in RUNNING.
func (r *Registry) StartJob(ctx context.Context, jobID int64) error {
	return r.ResumeJob(ctx, jobID)
}

// StopJob sets status to STOPPED and removes the live scheduler handle
// entirely (unlike PauseJob, which keeps the handle parked for a cheap
// resume).
func (r *Registry) StopJob(ctx context.Context, jobID int64) error {
	if err := r.repo.UpdateStatus(ctx, jobID, domain.JobStatusStopped); err != nil {
		return err
	}
	if r.scheduler == nil {
		return nil
	}
	if err := r.scheduler.RemoveJob(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrSchedulerMissing) {
			return nil
		}
		return fmt.Errorf("status persisted but scheduler handle not removed: %w", err)
	}
	return nil
}

// GetJob returns a JobConfig by id.
func (r *Registry) GetJob(ctx context.Context, jobID int64) (domain.JobConfig, error) {
	return r.repo.GetByID(ctx, jobID)
}

// ListJobs returns every JobConfig.
func (r *Registry) ListJobs(ctx context.Context) ([]domain.JobConfig, error) {
	return r.repo.ListAll(ctx)
}

// Bootstrap discovers every job implementation linked into the binary (the
// internal/jobs registration table), merges each against any existing
// storage row by natural key, synthesizes and persists a new row for any
// implementation storage has never seen, and hands the resulting RUNNING
// JobConfigs, together with every other RUNNING row already in storage, to
// the SchedulerManager. Fans the scheduling step out across
// bootstrapConcurrency workers so a large fleet doesn't schedule one job at
// a time on process startup. Called once at process startup. A single
// registration's resolution or scheduling error is logged and does not stop
// the rest of the fleet from being discovered/scheduled.
func (r *Registry) Bootstrap(ctx context.Context) error {
	var toSchedule []domain.JobConfig

	for _, reg := range jobs.Registrations() {
		effective, err := r.resolveRegistration(ctx, reg)
		if err != nil {
			slog.ErrorContext(ctx, "jobregistry: bootstrap failed to resolve registration", "job_class", reg.JobClass, "error", err)
			continue
		}
		if effective.Status == domain.JobStatusRunning {
			toSchedule = append(toSchedule, effective)
		}
	}

	running, err := r.repo.ListByStatus(ctx, domain.JobStatusRunning)
	if err != nil {
		slog.ErrorContext(ctx, "jobregistry: bootstrap failed to list running jobs", "error", err)
	}
	seen := make(map[int64]bool, len(toSchedule))
	for _, job := range toSchedule {
		seen[job.ID] = true
	}
	for _, job := range running {
		if !seen[job.ID] {
			toSchedule = append(toSchedule, job)
		}
	}

	if r.scheduler == nil || len(toSchedule) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapConcurrency)

	var mu sync.Mutex
	var firstErr error
	for _, job := range toSchedule {
		job := job
		g.Go(func() error {
			if err := r.scheduler.AddJob(gctx, job); err != nil {
				slog.ErrorContext(gctx, "jobregistry: bootstrap failed to schedule job", "job_id", job.ID, "job_name", job.JobName, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return nil
			}
			slog.InfoContext(gctx, "jobregistry: bootstrap scheduled job", "job_id", job.ID, "job_name", job.JobName)
			return nil
		})
	}

	_ = g.Wait()
	return firstErr
}

// resolveRegistration merges one jobs.Registration against storage: an
// existing row found by natural key is authoritative over the registration's
// defaults, with its jobClass rebound if the registration's has diverged
// (e.g. a renamed implementation redeployed under the same jobName/jobGroup).
// When no row exists (or the registration opts out of the natural-key
// lookup entirely), a new row is synthesized from the registration's
// defaults and persisted.
func (r *Registry) resolveRegistration(ctx context.Context, reg jobs.Registration) (domain.JobConfig, error) {
	environment := reg.Environment
	if environment == "" {
		environment = r.environment
	}

	if reg.LoadFromDatabase {
		existing, err := r.repo.GetByNaturalKey(ctx, reg.JobName, reg.JobGroup, environment)
		switch {
		case err == nil:
			if existing.JobClass != reg.JobClass {
				existing.JobClass = reg.JobClass
				if err := r.repo.Update(ctx, existing); err != nil {
					return domain.JobConfig{}, fmt.Errorf("rebind job class for %q: %w", reg.JobClass, err)
				}
			}
			r.publish(ctx, existing)
			return existing, nil
		case !errors.Is(err, domain.ErrJobNotFound):
			return domain.JobConfig{}, fmt.Errorf("look up %q by natural key: %w", reg.JobClass, err)
		}
	}

	synthesized := synthesizeJobConfig(reg, environment)
	id, err := r.repo.Save(ctx, synthesized)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateNaturalKey) {
			// Another instance discovered and persisted this same natural
			// key between our lookup and our save; the row it created wins.
			existing, getErr := r.repo.GetByNaturalKey(ctx, reg.JobName, reg.JobGroup, environment)
			if getErr != nil {
				return domain.JobConfig{}, fmt.Errorf("re-read %q after concurrent discovery: %w", reg.JobClass, getErr)
			}
			r.publish(ctx, existing)
			return existing, nil
		}
		return domain.JobConfig{}, fmt.Errorf("persist discovered job %q: %w", reg.JobClass, err)
	}
	synthesized.ID = id
	r.publish(ctx, synthesized)
	slog.InfoContext(ctx, "jobregistry: bootstrap discovered new job", "job_id", id, "job_class", reg.JobClass, "job_name", reg.JobName)
	return synthesized, nil
}

// synthesizeJobConfig builds the default JobConfig for a registration storage
// has never seen before: STOPPED unless AutoStart is set, gray release off,
// no retries.
func synthesizeJobConfig(reg jobs.Registration, environment string) domain.JobConfig {
	jobType := domain.JobTypeQuartz
	if reg.JobType == string(domain.JobTypeExternal) {
		jobType = domain.JobTypeExternal
	}
	status := domain.JobStatusStopped
	if reg.AutoStart {
		status = domain.JobStatusRunning
	}
	return domain.JobConfig{
		JobName:        reg.JobName,
		JobGroup:       reg.JobGroup,
		Environment:    environment,
		JobClass:       reg.JobClass,
		JobType:        jobType,
		CronExpression: reg.CronExpression,
		Status:         status,
	}
}
