package jobs

func init() {
	Register("noop", func() Job { return noopJob{} })
}

// noopJob logs that it ran and returns immediately. Useful for exercising
// the scheduler/executor path without a real workload, and as the default
// jobClass for smoke-testing a freshly created JobConfig.
type noopJob struct{}

func (noopJob) Run(ctx *Context) error {
	ctx.Log("noop job executed")
	return nil
}
