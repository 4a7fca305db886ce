package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/scheduler"
)

type fakeExecutor struct {
	mu    sync.Mutex
	fires []int64
	done  chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{done: make(chan struct{}, 16)}
}

func (f *fakeExecutor) Fire(_ context.Context, job domain.JobConfig) (bool, string) {
	f.mu.Lock()
	f.fires = append(f.fires, job.ID)
	f.mu.Unlock()
	f.done <- struct{}{}
	return true, ""
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fires)
}

func TestManager_IsCronValid(t *testing.T) {
	exec := newFakeExecutor()
	mgr, err := scheduler.New(exec)
	require.NoError(t, err)

	assert.True(t, mgr.IsCronValid(domain.JobTypeQuartz, "*/1 * * * * *"))
	assert.False(t, mgr.IsCronValid(domain.JobTypeQuartz, "not a cron expression"))
}

func TestManager_AddJob_FiresQuartzJob(t *testing.T) {
	exec := newFakeExecutor()
	mgr, err := scheduler.New(exec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop(context.Background())

	job := domain.JobConfig{ID: 1, JobName: "n", JobType: domain.JobTypeQuartz, CronExpression: "*/1 * * * * *"}
	require.NoError(t, mgr.AddJob(context.Background(), job))

	select {
	case <-exec.done:
	case <-time.After(3 * time.Second):
		t.Fatal("quartz job never fired")
	}
	assert.GreaterOrEqual(t, exec.count(), 1)
}

func TestManager_AddJob_DuplicateRejected(t *testing.T) {
	exec := newFakeExecutor()
	mgr, err := scheduler.New(exec)
	require.NoError(t, err)

	job := domain.JobConfig{ID: 1, JobType: domain.JobTypeQuartz, CronExpression: "0 0 0 1 1 *"}
	require.NoError(t, mgr.AddJob(context.Background(), job))
	err = mgr.AddJob(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrSchedulerDuplicate)
}

func TestManager_PauseResume_MissingHandle(t *testing.T) {
	exec := newFakeExecutor()
	mgr, err := scheduler.New(exec)
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.PauseJob(context.Background(), 999), domain.ErrSchedulerMissing)
	assert.ErrorIs(t, mgr.ResumeJob(context.Background(), 999), domain.ErrSchedulerMissing)
}

func TestManager_RemoveJob(t *testing.T) {
	exec := newFakeExecutor()
	mgr, err := scheduler.New(exec)
	require.NoError(t, err)

	job := domain.JobConfig{ID: 7, JobType: domain.JobTypeQuartz, CronExpression: "0 0 0 1 1 *"}
	require.NoError(t, mgr.AddJob(context.Background(), job))
	require.NoError(t, mgr.RemoveJob(context.Background(), 7))
	assert.ErrorIs(t, mgr.RemoveJob(context.Background(), 7), domain.ErrSchedulerMissing)
}
