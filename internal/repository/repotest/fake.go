// Package repotest provides an in-memory fake of repository.JobRepository
// for use in other packages' tests, in place of mocking framework.
package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/distsched/scheduler/internal/domain"
)

// Fake is an in-memory repository.JobRepository.
type Fake struct {
	mu       sync.Mutex
	jobs     map[int64]domain.JobConfig
	logs     map[int64]domain.JobLog
	nextJob  int64
	nextLog  int64
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		jobs: make(map[int64]domain.JobConfig),
		logs: make(map[int64]domain.JobLog),
	}
}

func (f *Fake) Save(_ context.Context, job domain.JobConfig) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.jobs {
		if existing.JobName == job.JobName && existing.JobGroup == job.JobGroup && existing.Environment == job.Environment {
			return 0, domain.ErrDuplicateNaturalKey
		}
	}

	f.nextJob++
	job.ID = f.nextJob
	job.Version = 1
	job.CreatedAt = time.Now().UTC()
	job.UpdatedAt = job.CreatedAt
	f.jobs[job.ID] = job
	return job.ID, nil
}

func (f *Fake) Update(_ context.Context, job domain.JobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.jobs[job.ID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Version = existing.Version + 1
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	f.jobs[job.ID] = job
	return nil
}

func (f *Fake) UpdateStatus(_ context.Context, id int64, status domain.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Status = status
	job.Version++
	job.UpdatedAt = time.Now().UTC()
	f.jobs[id] = job
	return nil
}

func (f *Fake) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.jobs[id]; !ok {
		return domain.ErrJobNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *Fake) GetByID(_ context.Context, id int64) (domain.JobConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return domain.JobConfig{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *Fake) GetByNaturalKey(_ context.Context, jobName, jobGroup, environment string) (domain.JobConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, job := range f.jobs {
		if job.JobName == jobName && job.JobGroup == jobGroup && job.Environment == environment {
			return job, nil
		}
	}
	return domain.JobConfig{}, domain.ErrJobNotFound
}

func (f *Fake) ListAll(_ context.Context) ([]domain.JobConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.JobConfig, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, job)
	}
	return out, nil
}

func (f *Fake) ListByStatus(_ context.Context, status domain.JobStatus) ([]domain.JobConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.JobConfig
	for _, job := range f.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out, nil
}

func (f *Fake) SaveLog(_ context.Context, log domain.JobLog) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextLog++
	log.ID = f.nextLog
	f.logs[log.ID] = log
	return log.ID, nil
}

func (f *Fake) UpdateLog(_ context.Context, log domain.JobLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.logs[log.ID]
	if !ok {
		return domain.ErrLogNotFound
	}
	existing.Status = log.Status
	existing.FinishedAt = log.FinishedAt
	existing.Output = log.Output
	existing.ErrorText = log.ErrorText
	f.logs[log.ID] = existing
	return nil
}

func (f *Fake) GetLogByID(_ context.Context, id int64) (domain.JobLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.logs[id]
	if !ok {
		return domain.JobLog{}, domain.ErrLogNotFound
	}
	return l, nil
}

func (f *Fake) GetLogByExecutionID(_ context.Context, executionID string) (domain.JobLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, l := range f.logs {
		if l.ExecutionID == executionID {
			return l, nil
		}
	}
	return domain.JobLog{}, domain.ErrLogNotFound
}

func (f *Fake) ListLogsByJobID(_ context.Context, jobID int64, limit int) ([]domain.JobLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.JobLog
	for _, l := range f.logs {
		if l.JobID == jobID {
			out = append(out, l)
		}
	}
	sortLogsByStartedAtDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) SweepStaleRunningLogs(_ context.Context, cutoff time.Time, errText string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int
	for id, l := range f.logs {
		if l.Status == domain.JobLogStatusRunning && l.StartedAt.Before(cutoff) {
			now := time.Now().UTC()
			l.Status = domain.JobLogStatusFailed
			l.FinishedAt = &now
			l.ErrorText = errText
			f.logs[id] = l
			n++
		}
	}
	return n, nil
}

func sortLogsByStartedAtDesc(logs []domain.JobLog) {
	for i := 1; i < len(logs); i++ {
		for j := i; j > 0 && logs[j].StartedAt.After(logs[j-1].StartedAt); j-- {
			logs[j], logs[j-1] = logs[j-1], logs[j]
		}
	}
}
