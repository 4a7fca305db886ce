package scheduler

import (
	"github.com/robfig/cron/v3"

	"github.com/distsched/scheduler/internal/domain"
)

// handleState tracks the lifecycle of a single scheduled job within this
// process, independent of the JobConfig.Status persisted in storage.
type handleState string

const (
	handleStateNew     handleState = "NEW"
	handleStateStarted handleState = "STARTED"
	handleStatePaused  handleState = "PAUSED"
	handleStateStopped handleState = "STOPPED"
)

// handle is the live, in-process scheduling record for one JobConfig.
type handle struct {
	job   domain.JobConfig
	state handleState

	// cronEntryID is set only for JobTypeQuartz handles.
	cronEntryID  cron.EntryID
	hasCronEntry bool
}
