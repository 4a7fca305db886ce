package domain

import "time"

// JobType selects which Trigger engine backend schedules a JobConfig.
type JobType string

const (
	// JobTypeQuartz is fired in-process on a Quartz-compatible cron dialect.
	JobTypeQuartz JobType = "QUARTZ"
	// JobTypeExternal delegates scheduling to the external executor framework binding.
	JobTypeExternal JobType = "EXTERNAL"
)

// Valid reports whether t is one of the known JobType values.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeQuartz, JobTypeExternal:
		return true
	default:
		return false
	}
}

// JobStatus is the administrative state of a JobConfig, independent of whether
// any particular fire succeeded or failed.
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusStopped JobStatus = "STOPPED"
	JobStatusPaused  JobStatus = "PAUSED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusRunning, JobStatusStopped, JobStatusPaused:
		return true
	default:
		return false
	}
}

// AlertReceiver is a single notification target for job failure alerts.
type AlertReceiver struct {
	Kind   string `json:"kind"`   // e.g. "email", "webhook"
	Target string `json:"target"` // address or URL, interpretation is kind-specific
}

// AlertPolicy controls whether and to whom failure notifications are sent.
type AlertPolicy struct {
	Enabled          bool            `json:"enabled"`
	Receivers        []AlertReceiver `json:"receivers,omitempty"`
	FailureThreshold int             `json:"failureThreshold"` // consecutive failures before alerting, 0 = every failure
}

// JobConfig is the scheduling and identity record for one recurring job.
// Its natural key is (JobName, JobGroup, Environment); ID is the storage
// surrogate key used by all update/delete operations.
type JobConfig struct {
	ID          int64  `json:"id"`
	JobName     string `json:"jobName"`
	JobGroup    string `json:"jobGroup"`
	Environment string `json:"environment"`

	// JobClass is the opaque key into the process-wide job registration
	// table (internal/jobs) that resolves to the concrete Job implementation.
	JobClass string `json:"jobClass"`

	JobType        JobType `json:"jobType"`
	CronExpression string  `json:"cronExpression"`

	Status JobStatus `json:"status"`

	// Parameters is an opaque JSON document handed to the job implementation
	// at execution time; the core never interprets its contents.
	Parameters map[string]any `json:"parameters,omitempty"`

	RetryCount int `json:"retryCount"`
	// RetryInterval and Timeout are ISO-8601 durations on the wire (e.g. "PT30S").
	RetryInterval Duration `json:"retryInterval"`
	Timeout       Duration `json:"timeout"`

	// GrayReleaseEnabled turns on the gray-release gate; when false every
	// fire always invokes the job body regardless of GrayReleasePercent
	// (spec §4.5: "If grayRelease is enabled...").
	GrayReleaseEnabled bool `json:"grayReleaseEnabled"`
	// GrayReleasePercent, 0-100, gates which fires actually invoke the job
	// body versus short-circuiting as a no-op dry run, when
	// GrayReleaseEnabled is true.
	GrayReleasePercent int `json:"grayReleasePercent"`

	Alert AlertPolicy `json:"alert"`

	// Version increments on every successful update; used only for
	// optimistic read-your-writes display, never for concurrency control —
	// updates are applied id-only (spec's anti-optimistic-locking rule).
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NaturalKey returns the tuple that uniquely identifies this job across the
// fleet, independent of its storage surrogate id.
func (j JobConfig) NaturalKey() (jobName, jobGroup, environment string) {
	return j.JobName, j.JobGroup, j.Environment
}

// DataID is the ConfigStore document key this JobConfig is published under:
// scheduler.job.<jobName>.<jobGroup>.<environment>.json
func (j JobConfig) DataID() string {
	return "scheduler.job." + j.JobName + "." + j.JobGroup + "." + j.Environment + ".json"
}
