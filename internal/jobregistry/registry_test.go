package jobregistry_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distsched/scheduler/internal/domain"
	"github.com/distsched/scheduler/internal/jobregistry"
	"github.com/distsched/scheduler/internal/jobs"
	"github.com/distsched/scheduler/internal/repository/repotest"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string]string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string]string)}
}

func (p *fakePublisher) PublishConfig(_ context.Context, dataID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[dataID] = content
	return nil
}

func (p *fakePublisher) EncodeDocument(v any) (string, error) {
	return "encoded", nil
}

type fakeScheduler struct {
	mu      sync.Mutex
	added   map[int64]domain.JobConfig
	paused  map[int64]bool
	removed map[int64]bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{added: make(map[int64]domain.JobConfig), paused: make(map[int64]bool), removed: make(map[int64]bool)}
}

func (s *fakeScheduler) AddJob(_ context.Context, job domain.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.added[job.ID]; exists {
		return domain.ErrSchedulerDuplicate
	}
	s.added[job.ID] = job
	delete(s.removed, job.ID)
	return nil
}

func (s *fakeScheduler) UpdateJob(_ context.Context, job domain.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[job.ID] = job
	return nil
}

func (s *fakeScheduler) RemoveJob(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.added, jobID)
	s.removed[jobID] = true
	return nil
}

func (s *fakeScheduler) PauseJob(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[jobID] = true
	return nil
}

func (s *fakeScheduler) ResumeJob(_ context.Context, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused[jobID] {
		return domain.ErrSchedulerMissing
	}
	delete(s.paused, jobID)
	return nil
}

func (s *fakeScheduler) IsCronValid(_ domain.JobType, expr string) bool {
	return expr != ""
}

func validJob() domain.JobConfig {
	return domain.JobConfig{
		JobName:            "report",
		JobGroup:           "nightly",
		Environment:        "prod",
		JobClass:           "noop",
		JobType:            domain.JobTypeQuartz,
		CronExpression:     "0 0 * * * *",
		Status:             domain.JobStatusRunning,
		GrayReleasePercent: 100,
	}
}

func TestCreateJob_SchedulesWhenRunning(t *testing.T) {
	repo := repotest.New()
	sched := newFakeScheduler()
	registry := jobregistry.New(repo, newFakePublisher(), sched)

	created, err := registry.CreateJob(t.Context(), validJob())
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	sched.mu.Lock()
	_, scheduled := sched.added[created.ID]
	sched.mu.Unlock()
	require.True(t, scheduled)
}

func TestCreateJob_UnknownJobClassRejected(t *testing.T) {
	repo := repotest.New()
	registry := jobregistry.New(repo, newFakePublisher(), newFakeScheduler())

	job := validJob()
	job.JobClass = "does-not-exist"

	_, err := registry.CreateJob(t.Context(), job)
	require.ErrorIs(t, err, domain.ErrUnknownJobClass)
}

func TestCreateJob_InvalidCronRejected(t *testing.T) {
	repo := repotest.New()
	registry := jobregistry.New(repo, newFakePublisher(), newFakeScheduler())

	job := validJob()
	job.CronExpression = ""

	_, err := registry.CreateJob(t.Context(), job)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestUpdateJob_PausedPausesTriggerEngineHandle(t *testing.T) {
	repo := repotest.New()
	sched := newFakeScheduler()
	registry := jobregistry.New(repo, newFakePublisher(), sched)

	created, err := registry.CreateJob(t.Context(), validJob())
	require.NoError(t, err)

	created.Status = domain.JobStatusPaused
	require.NoError(t, registry.UpdateJob(t.Context(), created))

	sched.mu.Lock()
	defer sched.mu.Unlock()
	require.True(t, sched.paused[created.ID])
}

func TestDeleteJob_RemovesFromStorageAndScheduler(t *testing.T) {
	repo := repotest.New()
	sched := newFakeScheduler()
	registry := jobregistry.New(repo, newFakePublisher(), sched)

	created, err := registry.CreateJob(t.Context(), validJob())
	require.NoError(t, err)

	require.NoError(t, registry.DeleteJob(t.Context(), created.ID))

	_, err = repo.GetByID(t.Context(), created.ID)
	require.ErrorIs(t, err, domain.ErrJobNotFound)

	sched.mu.Lock()
	defer sched.mu.Unlock()
	require.True(t, sched.removed[created.ID])
}

func TestBootstrap_SchedulesEveryRunningJob(t *testing.T) {
	repo := repotest.New()
	sched := newFakeScheduler()
	registry := jobregistry.New(repo, newFakePublisher(), sched)

	const jobCount = 20
	var ids []int64
	for i := 0; i < jobCount; i++ {
		job := validJob()
		job.JobName = "job"
		job.JobGroup = job.JobGroup + string(rune('a'+i))
		id, err := repo.Save(t.Context(), job)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, registry.Bootstrap(t.Context()))

	sched.mu.Lock()
	defer sched.mu.Unlock()
	// Bootstrap also discovers RUNNING-by-default registrations from the
	// jobs package (none of which are among these pre-seeded rows), so at
	// least these jobCount ids must have been scheduled rather than exactly.
	require.GreaterOrEqual(t, len(sched.added), jobCount)
	for _, id := range ids {
		_, ok := sched.added[id]
		assert.True(t, ok, "job %d was not scheduled", id)
	}
}

func TestBootstrap_DiscoversAndPersistsNewRegistration(t *testing.T) {
	jobs.RegisterWithMetadata(jobs.Registration{
		JobClass:         "bootstrap-discovery-test",
		Factory:          func() jobs.Job { return nil },
		JobName:          "discovered",
		JobGroup:         "bootstrap",
		Environment:      "test",
		CronExpression:   "0/5 * * * * *",
		AutoStart:        true,
		LoadFromDatabase: true,
	})

	repo := repotest.New()
	sched := newFakeScheduler()
	registry := jobregistry.New(repo, newFakePublisher(), sched).WithEnvironment("test")

	require.NoError(t, registry.Bootstrap(t.Context()))

	persisted, err := repo.GetByNaturalKey(t.Context(), "discovered", "bootstrap", "test")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRunning, persisted.Status)
	assert.Equal(t, "bootstrap-discovery-test", persisted.JobClass)

	sched.mu.Lock()
	defer sched.mu.Unlock()
	_, scheduled := sched.added[persisted.ID]
	assert.True(t, scheduled)
}

func TestBootstrap_RebindsJobClassOnExistingRow(t *testing.T) {
	jobs.RegisterWithMetadata(jobs.Registration{
		JobClass:         "bootstrap-rebind-test-v2",
		Factory:          func() jobs.Job { return nil },
		JobName:          "rebound",
		JobGroup:         "bootstrap",
		Environment:      "test",
		CronExpression:   "0/5 * * * * *",
		LoadFromDatabase: true,
	})

	repo := repotest.New()
	id, err := repo.Save(t.Context(), domain.JobConfig{
		JobName: "rebound", JobGroup: "bootstrap", Environment: "test",
		JobClass: "bootstrap-rebind-test-v1", JobType: domain.JobTypeQuartz,
		CronExpression: "0/5 * * * * *", Status: domain.JobStatusStopped,
	})
	require.NoError(t, err)

	registry := jobregistry.New(repo, newFakePublisher(), newFakeScheduler()).WithEnvironment("test")
	require.NoError(t, registry.Bootstrap(t.Context()))

	updated, err := repo.GetByID(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, "bootstrap-rebind-test-v2", updated.JobClass)
}
