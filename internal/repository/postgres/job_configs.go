package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/distsched/scheduler/internal/domain"
)

const pgUniqueViolation = "23505"

type jobConfigRow struct {
	ID                 int64
	JobName            string
	JobGroup           string
	Environment        string
	JobClass           string
	JobType            string
	CronExpression     string
	Status             string
	Parameters         []byte
	RetryCount         int
	RetryInterval      int64
	Timeout            int64
	GrayReleaseEnabled bool
	GrayReleasePercent int
	Alert              []byte
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (r jobConfigRow) toDomain() (domain.JobConfig, error) {
	var params map[string]any
	if len(r.Parameters) > 0 {
		if err := json.Unmarshal(r.Parameters, &params); err != nil {
			return domain.JobConfig{}, fmt.Errorf("decode parameters: %w", err)
		}
	}
	var alert domain.AlertPolicy
	if len(r.Alert) > 0 {
		if err := json.Unmarshal(r.Alert, &alert); err != nil {
			return domain.JobConfig{}, fmt.Errorf("decode alert policy: %w", err)
		}
	}
	return domain.JobConfig{
		ID:                 r.ID,
		JobName:            r.JobName,
		JobGroup:           r.JobGroup,
		Environment:        r.Environment,
		JobClass:           r.JobClass,
		JobType:            domain.JobType(r.JobType),
		CronExpression:     r.CronExpression,
		Status:             domain.JobStatus(r.Status),
		Parameters:         params,
		RetryCount:         r.RetryCount,
		RetryInterval:      durationFromNanos(r.RetryInterval),
		Timeout:            durationFromNanos(r.Timeout),
		GrayReleaseEnabled: r.GrayReleaseEnabled,
		GrayReleasePercent: r.GrayReleasePercent,
		Alert:              alert,
		Version:            r.Version,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}, nil
}

func durationFromNanos(ns int64) domain.Duration {
	d, _ := domain.NewDuration(domain.FormatDurationISO8601(time.Duration(ns)))
	return d
}

const jobConfigColumns = `id, job_name, job_group, environment, job_class, job_type,
	cron_expression, status, parameters, retry_count, retry_interval, timeout,
	gray_release_enabled, gray_release_percent, alert, version, created_at, updated_at`

func scanJobConfig(row pgx.Row) (domain.JobConfig, error) {
	var r jobConfigRow
	err := row.Scan(&r.ID, &r.JobName, &r.JobGroup, &r.Environment, &r.JobClass, &r.JobType,
		&r.CronExpression, &r.Status, &r.Parameters, &r.RetryCount, &r.RetryInterval, &r.Timeout,
		&r.GrayReleaseEnabled, &r.GrayReleasePercent, &r.Alert, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobConfig{}, domain.ErrJobNotFound
		}
		return domain.JobConfig{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return r.toDomain()
}

// Save inserts a new JobConfig and returns its assigned id.
func (s *Store) Save(ctx context.Context, job domain.JobConfig) (int64, error) {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return 0, fmt.Errorf("%w: encode parameters: %v", domain.ErrConfiguration, err)
	}
	alert, err := json.Marshal(job.Alert)
	if err != nil {
		return 0, fmt.Errorf("%w: encode alert policy: %v", domain.ErrConfiguration, err)
	}

	const q = `
		INSERT INTO job_configs
			(job_name, job_group, environment, job_class, job_type, cron_expression,
			 status, parameters, retry_count, retry_interval, timeout,
			 gray_release_enabled, gray_release_percent, alert)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, q,
		job.JobName, job.JobGroup, job.Environment, job.JobClass, string(job.JobType),
		job.CronExpression, string(job.Status), params, job.RetryCount,
		int64(job.RetryInterval.Value()), int64(job.Timeout.Value()),
		job.GrayReleaseEnabled, job.GrayReleasePercent, alert,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, domain.ErrDuplicateNaturalKey
		}
		return 0, fmt.Errorf("%w: insert job config: %v", domain.ErrStorage, err)
	}
	return id, nil
}

// Update rewrites every column except the natural key (job_name, job_group,
// environment) and created_at, keyed only on id (no version predicate):
// the caller is expected to have read-modify-written under its own
// serialization (C6's reconciler re-reads before writing).
func (s *Store) Update(ctx context.Context, job domain.JobConfig) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("%w: encode parameters: %v", domain.ErrConfiguration, err)
	}
	alert, err := json.Marshal(job.Alert)
	if err != nil {
		return fmt.Errorf("%w: encode alert policy: %v", domain.ErrConfiguration, err)
	}

	const q = `
		UPDATE job_configs SET
			job_class = $2, job_type = $3, cron_expression = $4, status = $5,
			parameters = $6, retry_count = $7, retry_interval = $8, timeout = $9,
			gray_release_enabled = $10, gray_release_percent = $11, alert = $12,
			version = version + 1, updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		job.ID, job.JobClass, string(job.JobType), job.CronExpression, string(job.Status),
		params, job.RetryCount, int64(job.RetryInterval.Value()), int64(job.Timeout.Value()),
		job.GrayReleaseEnabled, job.GrayReleasePercent, alert,
	)
	if err != nil {
		return fmt.Errorf("%w: update job config: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateStatus changes only the administrative status of a JobConfig, by id.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status domain.JobStatus) error {
	const q = `UPDATE job_configs SET status = $2, version = version + 1, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("%w: update job status: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Delete removes a JobConfig by id. Associated JobLogs cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete job config: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// GetByID fetches a single JobConfig.
func (s *Store) GetByID(ctx context.Context, id int64) (domain.JobConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobConfigColumns+` FROM job_configs WHERE id = $1`, id)
	return scanJobConfig(row)
}

// GetByNaturalKey fetches a JobConfig by (jobName, jobGroup, environment).
func (s *Store) GetByNaturalKey(ctx context.Context, jobName, jobGroup, environment string) (domain.JobConfig, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobConfigColumns+`
		FROM job_configs WHERE job_name = $1 AND job_group = $2 AND environment = $3`,
		jobName, jobGroup, environment)
	return scanJobConfig(row)
}

// ListAll returns every JobConfig, ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]domain.JobConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobConfigColumns+` FROM job_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list job configs: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	return collectJobConfigs(rows)
}

// ListByStatus returns JobConfigs in the given administrative status.
func (s *Store) ListByStatus(ctx context.Context, status domain.JobStatus) ([]domain.JobConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobConfigColumns+` FROM job_configs WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("%w: list job configs by status: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	return collectJobConfigs(rows)
}

func collectJobConfigs(rows pgx.Rows) ([]domain.JobConfig, error) {
	var out []domain.JobConfig
	for rows.Next() {
		job, err := scanJobConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}
