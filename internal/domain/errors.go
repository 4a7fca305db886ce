package domain

import "errors"

// Domain errors are grouped by kind (spec §7) so the HTTP layer and the
// reconciler can branch on errors.Is rather than string matching.

var (
	// ErrNotFound indicates the requested JobConfig or JobLog does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrJobNotFound indicates no JobConfig matches the given id or natural key.
	ErrJobNotFound = errors.New("job config not found")

	// ErrLogNotFound indicates no JobLog matches the given id or executionId.
	ErrLogNotFound = errors.New("job log not found")

	// ErrInvalidID indicates a malformed identifier was supplied.
	ErrInvalidID = errors.New("invalid id")

	// ErrDuplicateNaturalKey indicates (jobName, jobGroup, environment) already exists.
	ErrDuplicateNaturalKey = errors.New("job config already exists for natural key")

	// ErrConfiguration indicates a malformed cron expression, unknown enum value,
	// or malformed ConfigStore document (spec §7 ConfigurationError).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrStorage wraps a JobRepository I/O failure (spec §7 StorageError).
	// The caller decides whether to retry; the core never auto-retries it.
	ErrStorage = errors.New("storage error")

	// ErrSchedulerDuplicate is returned by SchedulerManager.AddJob when a handle
	// already exists for the given jobId (spec §7 SchedulerError).
	ErrSchedulerDuplicate = errors.New("job already scheduled")

	// ErrSchedulerMissing is returned when an operation (resume, pause) targets
	// a jobId with no live handle.
	ErrSchedulerMissing = errors.New("no scheduler handle for job")

	// ErrExecution wraps an error raised from inside a job implementation body
	// (spec §7 ExecutionError). It drives the retry loop in the executor.
	ErrExecution = errors.New("job execution failed")

	// ErrTransientRemote indicates the ConfigStore was unreachable; callers
	// fall back to local cache/environment/defaults (spec §7 TransientRemoteError).
	ErrTransientRemote = errors.New("config store unavailable")

	// ErrInterrupted indicates cooperative cancellation during a retry sleep
	// or process shutdown (spec §7 InterruptedError). Not retried.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrUnknownJobClass indicates jobClass does not match any registered
	// job implementation (internal/jobs registry).
	ErrUnknownJobClass = errors.New("unknown job class")

	// ErrDurationEmpty indicates an ISO-8601 duration string was empty.
	ErrDurationEmpty = errors.New("duration string is empty")

	// ErrInvalidDurationFormat indicates an ISO-8601 duration string was malformed.
	ErrInvalidDurationFormat = errors.New("invalid ISO 8601 duration format")
)
