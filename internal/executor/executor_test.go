package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/executor"
	"github.com/distsched/scheduler/internal/jobs"
	"github.com/distsched/scheduler/internal/repository/repotest"
)

func mustDuration(t *testing.T, s string) domain.Duration {
	t.Helper()
	d, err := domain.NewDuration(s)
	require.NoError(t, err)
	return d
}

func TestExecutor_Fire_Success(t *testing.T) {
	repo := repotest.New()
	jobID, err := repo.Save(context.Background(), domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "test",
		JobClass: "noop", JobType: domain.JobTypeQuartz,
		GrayReleasePercent: 100,
	})
	require.NoError(t, err)
	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	exec := executor.New(repo, "test-server", nil)
	exec.Fire(context.Background(), job)

	logs, err := repo.ListLogsByJobID(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.JobLogStatusSuccess, logs[0].Status)
	assert.Equal(t, "noop job executed", logs[0].Output)
}

func TestExecutor_Fire_GrayReleaseSkipped(t *testing.T) {
	repo := repotest.New()
	jobID, err := repo.Save(context.Background(), domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "test",
		JobClass: "noop", JobType: domain.JobTypeQuartz,
		GrayReleaseEnabled: true,
		GrayReleasePercent: 0,
	})
	require.NoError(t, err)
	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	exec := executor.New(repo, "test-server", nil)
	exec.Fire(context.Background(), job)

	logs, err := repo.ListLogsByJobID(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].GrayReleaseSkipped)
}

func TestExecutor_Fire_GrayReleaseDisabledAlwaysRuns(t *testing.T) {
	repo := repotest.New()
	jobID, err := repo.Save(context.Background(), domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "test",
		JobClass: "noop", JobType: domain.JobTypeQuartz,
		GrayReleaseEnabled: false,
		GrayReleasePercent: 0,
	})
	require.NoError(t, err)
	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	exec := executor.New(repo, "test-server", nil)
	success, errMsg := exec.Fire(context.Background(), job)
	assert.True(t, success)
	assert.Empty(t, errMsg)

	logs, err := repo.ListLogsByJobID(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].GrayReleaseSkipped)
	assert.Equal(t, "noop job executed", logs[0].Output)
}

func TestExecutor_Fire_UnknownJobClass(t *testing.T) {
	repo := repotest.New()
	jobID, err := repo.Save(context.Background(), domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "test",
		JobClass: "does-not-exist", JobType: domain.JobTypeQuartz,
		GrayReleasePercent: 100,
	})
	require.NoError(t, err)
	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	exec := executor.New(repo, "test-server", nil)
	exec.Fire(context.Background(), job)

	logs, err := repo.ListLogsByJobID(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.JobLogStatusFailed, logs[0].Status)
}

type flakyJob struct {
	failuresLeft int
}

func (f *flakyJob) Run(ctx *jobs.Context) error {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("transient failure")
	}
	ctx.Log("succeeded after retry")
	return nil
}

func TestExecutor_Fire_RetriesThenSucceeds(t *testing.T) {
	shared := &flakyJob{failuresLeft: 1}
	jobs.Register("flaky-retry-test", func() jobs.Job { return shared })

	repo := repotest.New()
	jobID, err := repo.Save(context.Background(), domain.JobConfig{
		JobName: "n", JobGroup: "g", Environment: "test",
		JobClass: "flaky-retry-test", JobType: domain.JobTypeQuartz,
		GrayReleasePercent: 100,
		RetryCount:         2,
		RetryInterval:      mustDuration(t, "PT0S"),
	})
	require.NoError(t, err)
	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)

	exec := executor.New(repo, "test-server", nil)

	done := make(chan struct{})
	go func() {
		exec.Fire(context.Background(), job)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fire did not complete")
	}

	logs, err := repo.ListLogsByJobID(context.Background(), jobID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
}
