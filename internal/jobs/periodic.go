package jobs

import (
	"time"

	"github.com/riverqueue/river"
)

// PeriodicDrain returns the scheduled drain job. Each tick also requeues failed items that
// are still below the attempt limit, so transient provider outages heal on their own.
func PeriodicDrain(interval time.Duration, limit int) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return EmbeddingDrainArgs{Limit: limit, RetryFailed: true}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
