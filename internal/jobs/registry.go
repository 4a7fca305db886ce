// Package jobs holds the process-wide table of job implementations. Each
// implementation package imports this one and calls Register from an
// init() function; JobConfig.JobClass is the key used to look it up at
// fire time. This replaces annotation/reflection-based discovery: the set
// of runnable job classes is exactly the set of packages linked into the
// binary.
package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Context is handed to a Job's Run method for the duration of one fire.
type Context struct {
	context.Context

	JobID       int64
	ExecutionID string
	Parameters  map[string]any

	logMu sync.Mutex
	logs  []string
}

// Log appends a line to the fire's output, later persisted on the JobLog row.
func (c *Context) Log(format string, args ...any) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	c.logs = append(c.logs, fmt.Sprintf(format, args...))
}

// Output returns the accumulated log lines joined by newlines.
func (c *Context) Output() string {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	out := ""
	for i, line := range c.logs {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

// Job is the interface a registered job implementation satisfies. Run
// returning an error is an ExecutionError and drives the executor's retry
// loop; an error returned after the fire's parent context was cancelled is
// treated as InterruptedError and never retried. Expiry of the job's own
// Timeout is an ordinary ExecutionError and is retried.
type Job interface {
	Run(ctx *Context) error
}

// Factory constructs a fresh Job instance for one fire.
type Factory func() Job

// Registration carries the discovery metadata JobRegistry's startup
// Bootstrap (C3) needs for one job implementation: the annotation
// equivalent of a Quartz @Scheduled-style declaration, expressed as struct
// literal fields instead of reflection.
type Registration struct {
	// JobClass is the registry key (required).
	JobClass string
	// Factory constructs a fresh Job instance for one fire (required).
	Factory Factory

	// JobName, JobGroup, Environment form the natural key Bootstrap looks
	// this implementation up by. Left blank, JobName and JobGroup default
	// to JobClass itself and Environment defaults to the process's active
	// profile (spec's FQN-based synthesis for an un-annotated job).
	JobName     string
	JobGroup    string
	Environment string

	// JobType selects the trigger engine backend ("QUARTZ" or "EXTERNAL").
	// Left blank, it defaults to QUARTZ.
	JobType string
	// CronExpression is the schedule used only the first time Bootstrap
	// discovers this job with no matching storage row; once a row exists,
	// storage is authoritative and this field is never consulted again.
	CronExpression string

	// AutoStart, if true, makes a freshly discovered (no storage row yet)
	// job's synthesized status RUNNING instead of STOPPED.
	AutoStart bool
	// LoadFromDatabase, if true, makes Bootstrap look the implementation up
	// by natural key before synthesizing a new row; an existing row always
	// wins over the registration's defaults. If false, Bootstrap always
	// synthesizes fresh from the registration (no natural-key lookup).
	LoadFromDatabase bool
}

var (
	mu            sync.RWMutex
	registry      = make(map[string]Factory)
	registrations = make(map[string]Registration)
)

// Register adds a job implementation under jobClass with no discovery
// metadata: JobName and JobGroup default to jobClass, LoadFromDatabase is
// true, and AutoStart is false (spec's "no annotation" case — a job is
// never auto-started unless something positively decides to run it).
// Intended to be called from an init() function; panics on duplicate
// registration since that indicates a build-time mistake, not a runtime
// condition.
func Register(jobClass string, factory Factory) {
	RegisterWithMetadata(Registration{
		JobClass:         jobClass,
		Factory:          factory,
		LoadFromDatabase: true,
	})
}

// RegisterWithMetadata adds a job implementation along with the discovery
// metadata JobRegistry's Bootstrap uses to merge it against storage and the
// ConfigStore. Intended to be called from an init() function; panics on
// duplicate registration.
func RegisterWithMetadata(reg Registration) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := registry[reg.JobClass]; exists {
		panic(fmt.Sprintf("jobs: duplicate registration for class %q", reg.JobClass))
	}
	if reg.JobName == "" {
		reg.JobName = reg.JobClass
	}
	if reg.JobGroup == "" {
		reg.JobGroup = reg.JobClass
	}
	if reg.JobType == "" {
		reg.JobType = "QUARTZ"
	}

	registry[reg.JobClass] = reg.Factory
	registrations[reg.JobClass] = reg
}

// Lookup returns the factory registered for jobClass, or false if none exists.
func Lookup(jobClass string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[jobClass]
	return factory, ok
}

// Classes returns every currently registered jobClass, for diagnostics.
func Classes() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for class := range registry {
		out = append(out, class)
	}
	return out
}

// Registrations returns the discovery metadata for every currently
// registered job implementation, for JobRegistry's startup Bootstrap to
// iterate.
func Registrations() []Registration {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Registration, 0, len(registrations))
	for _, reg := range registrations {
		out = append(out, reg)
	}
	return out
}
