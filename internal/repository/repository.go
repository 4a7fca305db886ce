// Package repository defines the JobRepository contract (C1) consumed by the
// rest of the scheduler. The concrete implementation lives in the postgres
// subpackage; callers depend on this interface so fakes can stand in for
// tests.
package repository

import (
	"context"
	"time"

	"github.com/distsched/scheduler/internal/domain"
)

// JobRepository is the storage gateway for JobConfig and JobLog records.
type JobRepository interface {
	Save(ctx context.Context, job domain.JobConfig) (int64, error)
	Update(ctx context.Context, job domain.JobConfig) error
	UpdateStatus(ctx context.Context, id int64, status domain.JobStatus) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (domain.JobConfig, error)
	GetByNaturalKey(ctx context.Context, jobName, jobGroup, environment string) (domain.JobConfig, error)
	ListAll(ctx context.Context) ([]domain.JobConfig, error)
	ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.JobConfig, error)

	SaveLog(ctx context.Context, log domain.JobLog) (int64, error)
	UpdateLog(ctx context.Context, log domain.JobLog) error
	GetLogByID(ctx context.Context, id int64) (domain.JobLog, error)
	GetLogByExecutionID(ctx context.Context, executionID string) (domain.JobLog, error)
	ListLogsByJobID(ctx context.Context, jobID int64, limit int) ([]domain.JobLog, error)
	SweepStaleRunningLogs(ctx context.Context, cutoff time.Time, errText string) (int, error)
}
