// Package jobs provides the River jobs that drain the embedding queue.
package jobs

import (
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	embeddingDrainKind = "embedding_drain"
	// EmbeddingsQueueName is the River queue drain jobs run on.
	EmbeddingsQueueName = "embeddings"
)

// EmbeddingDrainArgs asks a worker to process the embedding queue until it is empty.
// Only one drain job with the same args can be waiting at a time; a kick that arrives while
// one is queued or running is absorbed by it.
type EmbeddingDrainArgs struct {
	// Limit is the batch size handed to each ProcessBatch call.
	Limit int `json:"limit"`
	// RetryFailed requeues failed items below the attempt limit before draining.
	RetryFailed bool `json:"retry_failed,omitempty"`
}

// Kind returns the River job kind.
func (EmbeddingDrainArgs) Kind() string { return embeddingDrainKind }

// InsertOpts places drain jobs on the embeddings queue and makes them unique while pending.
func (EmbeddingDrainArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: EmbeddingsQueueName,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

var (
	_ river.JobArgs               = EmbeddingDrainArgs{}
	_ river.JobArgsWithInsertOpts = EmbeddingDrainArgs{}
)
