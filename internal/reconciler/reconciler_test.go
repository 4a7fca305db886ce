package reconciler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/configstore"
	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/jobregistry"
	"github.com/distsched/scheduler/internal/reconciler"
	"github.com/distsched/scheduler/internal/repository/repotest"
)

type fakeScheduler struct {
	mu      sync.Mutex
	paused  map[int64]bool
	removed map[int64]bool
	updated map[int64]domain.JobConfig
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{paused: map[int64]bool{}, removed: map[int64]bool{}, updated: map[int64]domain.JobConfig{}}
}

func (f *fakeScheduler) AddJob(_ context.Context, job domain.JobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[job.ID] = job
	return nil
}

func (f *fakeScheduler) UpdateJob(_ context.Context, job domain.JobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[job.ID] = job
	return nil
}

func (f *fakeScheduler) RemoveJob(_ context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[jobID] = true
	return nil
}

func (f *fakeScheduler) PauseJob(_ context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused[jobID] = true
	return nil
}

func (f *fakeScheduler) IsCronValid(_ domain.JobType, expr string) bool {
	return expr != "bad-cron"
}

func TestReconciler_ReconcileAll_AppliesPushedStatusChange(t *testing.T) {
	repo := repotest.New()
	store, err := configstore.Open(t.TempDir(), "yaml")
	require.NoError(t, err)
	defer store.Close()
	sched := newFakeScheduler()

	job := domain.JobConfig{
		JobName: "nightly", JobGroup: "default", Environment: "prod",
		JobClass: "noop", JobType: domain.JobTypeQuartz, CronExpression: "0 0 1 * * *",
		Status: domain.JobStatusRunning, GrayReleasePercent: 100,
	}
	id, err := repo.Save(context.Background(), job)
	require.NoError(t, err)
	job.ID = id

	doc := jobregistry.FromJobConfig(job)
	doc.Status = domain.JobStatusPaused
	content, err := store.EncodeDocument(doc)
	require.NoError(t, err)
	require.NoError(t, store.PublishConfig(context.Background(), job.DataID(), content))

	rec := reconciler.New(repo, store, sched, reconciler.Config{RateLimitDelay: time.Millisecond}, nil)
	require.NoError(t, rec.ReconcileAll(context.Background()))

	updated, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPaused, updated.Status)

	sched.mu.Lock()
	assert.True(t, sched.paused[id])
	sched.mu.Unlock()
}

func TestReconciler_ReconcileAll_NoDocument_NoOp(t *testing.T) {
	repo := repotest.New()
	store, err := configstore.Open(t.TempDir(), "yaml")
	require.NoError(t, err)
	defer store.Close()
	sched := newFakeScheduler()

	job := domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "e",
		JobClass: "noop", JobType: domain.JobTypeQuartz, CronExpression: "0 0 1 * * *",
		Status: domain.JobStatusRunning, GrayReleasePercent: 100,
	}
	_, err = repo.Save(context.Background(), job)
	require.NoError(t, err)

	rec := reconciler.New(repo, store, sched, reconciler.Config{RateLimitDelay: time.Millisecond}, nil)
	require.NoError(t, rec.ReconcileAll(context.Background()))
}
