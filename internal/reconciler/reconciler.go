// Package reconciler implements C6 ConfigChangeReconciler: it applies
// ConfigStore document pushes back onto JobRepository storage and the live
// SchedulerManager, and runs a periodic full sweep to self-heal any drift
// between the two (a document written while the process was down, a crash
// mid-write, etc.). The sweep follows the same jittered-startup,
// rate-limited, level-triggered shape as a Kubernetes controller loop.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/distsched/scheduler/internal/configstore"
	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/jobregistry"
	"github.com/distsched/scheduler/internal/repository"
)

// SchedulerManager is the slice of scheduler.Manager the reconciler needs.
type SchedulerManager interface {
	AddJob(ctx context.Context, job domain.JobConfig) error
	UpdateJob(ctx context.Context, job domain.JobConfig) error
	RemoveJob(ctx context.Context, jobID int64) error
	PauseJob(ctx context.Context, jobID int64) error
	IsCronValid(jobType domain.JobType, expr string) bool
}

// Store is the slice of configstore.Store the reconciler needs.
type Store interface {
	GetConfig(ctx context.Context, dataID string) (string, bool, error)
	AddListener(dataID string, fn configstore.Listener) (unsubscribe func())
	DecodeDocument(content string, v any) error
}

// Metrics receives sweep counters; a nil Metrics is valid and simply drops them.
type Metrics interface {
	RecordSweep(reconciled, skipped, failed int)
}

// Config controls sweep cadence; zero values are replaced with defaults by New.
type Config struct {
	Interval         time.Duration
	MaxStartupJitter time.Duration
	RateLimitDelay   time.Duration
}

// Reconciler is the C6 implementation.
type Reconciler struct {
	repo      repository.JobRepository
	store     Store
	scheduler SchedulerManager
	cfg       Config
	metrics   Metrics

	mu      sync.Mutex
	watched map[int64]func()
}

// New constructs a Reconciler. Call Run to start the periodic sweep; each
// sweep establishes a ConfigStore watch for any job it hasn't seen yet.
// metrics may be nil.
func New(repo repository.JobRepository, store Store, scheduler SchedulerManager, cfg Config, metrics Metrics) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.MaxStartupJitter <= 0 {
		cfg.MaxStartupJitter = 30 * time.Second
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = 100 * time.Millisecond
	}
	return &Reconciler{
		repo:      repo,
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		metrics:   metrics,
		watched:   make(map[int64]func()),
	}
}

// Run starts the jittered, periodic full sweep. Blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.cfg.MaxStartupJitter > 0 {
		jitter := rand.N(r.cfg.MaxStartupJitter)
		slog.InfoContext(ctx, "reconciler: starting", "startup_jitter", jitter, "interval", r.cfg.Interval)

		timer := time.NewTimer(jitter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := r.ReconcileAll(ctx); err != nil {
		slog.ErrorContext(ctx, "reconciler: initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reconciler: stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.ReconcileAll(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciler: sweep failed", "error", err)
			}
		}
	}
}

// ReconcileAll lists every JobConfig in storage, ensures each has a document
// watch registered, and for each compares the published document against
// storage, applying the document's view when it differs (the ConfigStore is
// the source of truth for administrative intent; storage is the durable
// record the SchedulerManager and HTTP API read from).
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	jobs, err := r.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: list job configs: %w", err)
	}

	var reconciled, skipped, failed int

	for i, job := range jobs {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "reconciler: sweep interrupted", "processed", i, "remaining", len(jobs)-i)
			return nil
		default:
		}

		if r.cfg.RateLimitDelay > 0 && i > 0 {
			time.Sleep(r.cfg.RateLimitDelay)
		}

		r.ensureWatch(job)

		changed, err := r.reconcileOne(ctx, job)
		switch {
		case err != nil:
			slog.ErrorContext(ctx, "reconciler: failed to reconcile job", "job_id", job.ID, "error", err)
			failed++
		case changed:
			reconciled++
		default:
			skipped++
		}
	}

	slog.InfoContext(ctx, "reconciler: sweep completed", "reconciled", reconciled, "skipped", skipped, "failed", failed)
	if r.metrics != nil {
		r.metrics.RecordSweep(reconciled, skipped, failed)
	}
	return nil
}

// ensureWatch registers a ConfigStore listener for job's document exactly
// once; subsequent calls for the same job id are no-ops.
func (r *Reconciler) ensureWatch(job domain.JobConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.watched[job.ID]; exists {
		return
	}

	unsubscribe := r.store.AddListener(job.DataID(), func(ctx context.Context, _ string, content string) {
		r.onDocumentPushed(ctx, job.ID, content)
	})
	r.watched[job.ID] = unsubscribe
}

// onDocumentPushed handles an asynchronous ConfigStore push: re-read the
// current JobConfig from storage (not the stale snapshot this closure
// captured at watch-registration time), overlay the pushed document, and
// write back. This re-read-before-write pattern avoids clobbering a
// concurrent HTTP-driven update with a stale overlay.
func (r *Reconciler) onDocumentPushed(ctx context.Context, jobID int64, content string) {
	current, err := r.repo.GetByID(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrJobNotFound) {
			slog.ErrorContext(ctx, "reconciler: failed to re-read job before applying push", "job_id", jobID, "error", err)
		}
		return
	}

	var doc jobregistry.Document
	if err := r.store.DecodeDocument(content, &doc); err != nil {
		slog.ErrorContext(ctx, "reconciler: malformed pushed document", "job_id", jobID, "error", err)
		return
	}

	if err := r.apply(ctx, current, doc); err != nil {
		slog.ErrorContext(ctx, "reconciler: failed to apply pushed document", "job_id", jobID, "error", err)
	}
}

// reconcileOne compares job against its currently published document and
// applies the document if it differs. Returns changed=true if an update was
// written.
func (r *Reconciler) reconcileOne(ctx context.Context, job domain.JobConfig) (bool, error) {
	content, found, err := r.store.GetConfig(ctx, job.DataID())
	if err != nil {
		if errors.Is(err, domain.ErrTransientRemote) {
			slog.WarnContext(ctx, "reconciler: configstore transiently unavailable, skipping", "job_id", job.ID)
			return false, nil
		}
		return false, err
	}
	if !found {
		return false, nil
	}

	var doc jobregistry.Document
	if err := r.store.DecodeDocument(content, &doc); err != nil {
		return false, fmt.Errorf("%w: malformed document for job %d", domain.ErrConfiguration, job.ID)
	}

	if documentMatches(job, doc) {
		return false, nil
	}

	return true, r.apply(ctx, job, doc)
}

func documentMatches(job domain.JobConfig, doc jobregistry.Document) bool {
	return job.JobClass == doc.JobClass &&
		job.JobType == doc.JobType &&
		job.CronExpression == doc.CronExpression &&
		job.Status == doc.Status &&
		job.GrayReleaseEnabled == doc.GrayReleaseEnabled &&
		job.GrayReleasePercent == doc.GrayReleasePercent
}

// apply overlays doc onto current, persists it, and brings the
// SchedulerManager handle in line with the resulting status. Validation
// failures (bad cron dialect, unknown status) are returned to the caller,
// which logs them; they never abort the whole sweep (spec: local error
// containment).
func (r *Reconciler) apply(ctx context.Context, current domain.JobConfig, doc jobregistry.Document) error {
	updated, err := doc.ApplyTo(current)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	if !updated.JobType.Valid() {
		return fmt.Errorf("%w: unknown jobType %q", domain.ErrConfiguration, updated.JobType)
	}
	if !updated.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrConfiguration, updated.Status)
	}
	if !r.scheduler.IsCronValid(updated.JobType, updated.CronExpression) {
		return fmt.Errorf("%w: invalid cron expression %q", domain.ErrConfiguration, updated.CronExpression)
	}

	if err := r.repo.Update(ctx, updated); err != nil {
		return err
	}

	switch updated.Status {
	case domain.JobStatusRunning:
		if err := r.scheduler.UpdateJob(ctx, updated); err != nil {
			if err := r.scheduler.AddJob(ctx, updated); err != nil {
				return fmt.Errorf("storage updated but scheduler handle not applied: %w", err)
			}
		}
	case domain.JobStatusPaused:
		if err := r.scheduler.PauseJob(ctx, updated.ID); err != nil {
			slog.WarnContext(ctx, "reconciler: failed to pause scheduler handle after document push", "job_id", updated.ID, "error", err)
		}
	case domain.JobStatusStopped:
		if err := r.scheduler.RemoveJob(ctx, updated.ID); err != nil {
			slog.WarnContext(ctx, "reconciler: failed to remove scheduler handle after document push", "job_id", updated.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "reconciler: applied document", "job_id", updated.ID, "status", updated.Status)
	return nil
}

// Close unsubscribes every document watch registered by this reconciler.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, unsubscribe := range r.watched {
		unsubscribe()
	}
	r.watched = make(map[int64]func())
}
