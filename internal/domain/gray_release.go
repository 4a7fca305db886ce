package domain

import (
	"fmt"
	"hash/fnv"
	"time"
)

// GrayReleaseBucket returns a deterministic value in [0, 100) for a given job
// and fire time, stable within a one-minute bucket. Callers compare it
// against JobConfig.GrayReleasePercent to decide whether a fire actually
// invokes the job body.
func GrayReleaseBucket(jobID int64, startTime time.Time) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%d:%d", jobID, startTime.Truncate(time.Minute).Unix())
	return int(h.Sum32() % 100)
}

// ShouldFire reports whether a fire for jobID at startTime should invoke the
// job body. Gray-release gating only applies when enabled is true (spec
// §4.5: "If grayRelease is enabled..."); ordinary jobs always fire. When
// enabled, percent (0-100) gates the bucketed decision: 0 means never fire,
// 100 means always.
func ShouldFire(jobID int64, startTime time.Time, enabled bool, percent int) bool {
	if !enabled {
		return true
	}
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return GrayReleaseBucket(jobID, startTime) < percent
}
