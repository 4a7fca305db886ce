package jobs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/jobs"
)

func TestLookup_NoopRegistered(t *testing.T) {
	factory, ok := jobs.Lookup("noop")
	require.True(t, ok)

	job := factory()
	ctx := &jobs.Context{Context: t.Context(), JobID: 1, ExecutionID: "exec-1"}
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, "noop job executed", ctx.Output())
}

func TestLookup_UnknownClass(t *testing.T) {
	_, ok := jobs.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		jobs.Register("noop", func() jobs.Job { return nil })
	})
}

func TestRegister_DefaultsLoadFromDatabaseAndNoAutoStart(t *testing.T) {
	for _, reg := range jobs.Registrations() {
		if reg.JobClass != "noop" {
			continue
		}
		assert.Equal(t, "noop", reg.JobName)
		assert.Equal(t, "noop", reg.JobGroup)
		assert.True(t, reg.LoadFromDatabase)
		assert.False(t, reg.AutoStart)
		return
	}
	t.Fatal("noop registration not found")
}

func TestRegisterWithMetadata_DuplicatePanics(t *testing.T) {
	jobs.RegisterWithMetadata(jobs.Registration{
		JobClass: "metadata-dup-test",
		Factory:  func() jobs.Job { return nil },
	})
	assert.Panics(t, func() {
		jobs.RegisterWithMetadata(jobs.Registration{
			JobClass: "metadata-dup-test",
			Factory:  func() jobs.Job { return nil },
		})
	})
}
