package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/distsched/scheduler/internal/domain"
)

const jobLogColumns = `id, job_id, execution_id, server_identity, status, started_at,
	finished_at, attempt_number, gray_release_skipped, output, error_text`

func scanJobLog(row pgx.Row) (domain.JobLog, error) {
	var l domain.JobLog
	err := row.Scan(&l.ID, &l.JobID, &l.ExecutionID, &l.ServerIdentity, &l.Status, &l.StartedAt,
		&l.FinishedAt, &l.AttemptNumber, &l.GrayReleaseSkipped, &l.Output, &l.ErrorText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobLog{}, domain.ErrLogNotFound
		}
		return domain.JobLog{}, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return l, nil
}

// SaveLog inserts a new JobLog row for a fire attempt and returns its id.
func (s *Store) SaveLog(ctx context.Context, log domain.JobLog) (int64, error) {
	const q = `
		INSERT INTO job_logs
			(job_id, execution_id, server_identity, status, started_at, finished_at,
			 attempt_number, gray_release_skipped, output, error_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, q,
		log.JobID, log.ExecutionID, log.ServerIdentity, string(log.Status),
		log.StartedAt, log.FinishedAt, log.AttemptNumber, log.GrayReleaseSkipped,
		log.Output, log.ErrorText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert job log: %v", domain.ErrStorage, err)
	}
	return id, nil
}

// UpdateLog writes the terminal state (status, finish time, output/error) of
// a fire attempt, keyed only on id.
func (s *Store) UpdateLog(ctx context.Context, log domain.JobLog) error {
	const q = `
		UPDATE job_logs SET
			status = $2, finished_at = $3, output = $4, error_text = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, log.ID, string(log.Status), log.FinishedAt, log.Output, log.ErrorText)
	if err != nil {
		return fmt.Errorf("%w: update job log: %v", domain.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLogNotFound
	}
	return nil
}

// GetLogByID fetches a single JobLog by its storage id.
func (s *Store) GetLogByID(ctx context.Context, id int64) (domain.JobLog, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobLogColumns+` FROM job_logs WHERE id = $1`, id)
	return scanJobLog(row)
}

// GetLogByExecutionID fetches a JobLog by its allocated executionId.
func (s *Store) GetLogByExecutionID(ctx context.Context, executionID string) (domain.JobLog, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobLogColumns+` FROM job_logs WHERE execution_id = $1`, executionID)
	return scanJobLog(row)
}

// ListLogsByJobID returns the most recent logs for a job, newest first,
// bounded by limit (callers must pass a positive, pre-clamped limit).
func (s *Store) ListLogsByJobID(ctx context.Context, jobID int64, limit int) ([]domain.JobLog, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobLogColumns+`
		FROM job_logs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list job logs: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.JobLog
	for rows.Next() {
		l, err := scanJobLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// SweepStaleRunningLogs marks any JobLog still RUNNING with a started_at
// older than cutoff as FAILED with errText. Used on graceful shutdown to
// close out fires that never got to report their own outcome.
func (s *Store) SweepStaleRunningLogs(ctx context.Context, cutoff time.Time, errText string) (int, error) {
	const q = `
		UPDATE job_logs SET status = 'FAILED', finished_at = now(), error_text = $2
		WHERE status = 'RUNNING' AND started_at < $1`

	tag, err := s.pool.Exec(ctx, q, cutoff, errText)
	if err != nil {
		return 0, fmt.Errorf("%w: sweep stale running logs: %v", domain.ErrStorage, err)
	}
	return int(tag.RowsAffected()), nil
}
