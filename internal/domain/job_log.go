package domain

import "time"

// JobLogStatus is the outcome of a single execution attempt.
type JobLogStatus string

const (
	JobLogStatusRunning JobLogStatus = "RUNNING"
	JobLogStatusSuccess JobLogStatus = "SUCCESS"
	JobLogStatusFailed  JobLogStatus = "FAILED"
)

// JobLog records one execution attempt (one fire, possibly retried) of a JobConfig.
type JobLog struct {
	ID          int64  `json:"id"`
	JobID       int64  `json:"jobId"`
	ExecutionID string `json:"executionId"` // google/uuid, allocated at fire time

	// ServerIdentity identifies which scheduler process ran this fire, for
	// multi-instance deployments where any live instance may pick up a fire.
	ServerIdentity string `json:"serverIdentity"`

	Status JobLogStatus `json:"status"`

	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	// AttemptNumber counts retries within a single fire: 1 for the first
	// attempt, incrementing on each ExecutionError-triggered retry.
	AttemptNumber int `json:"attemptNumber"`

	// GrayReleaseSkipped is true when this fire was excluded by the
	// gray-release percentage and never invoked the job body.
	GrayReleaseSkipped bool `json:"grayReleaseSkipped"`

	Output    string `json:"output,omitempty"`
	ErrorText string `json:"errorText,omitempty"`
}

// Duration returns the elapsed wall time of the attempt, or zero if it has
// not finished yet.
func (l JobLog) Duration() time.Duration {
	if l.FinishedAt == nil {
		return 0
	}
	return l.FinishedAt.Sub(l.StartedAt)
}
