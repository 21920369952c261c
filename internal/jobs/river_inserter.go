package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Inserter inserts River jobs. Satisfied by *river.Client[pgx.Tx].
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// DrainKicker schedules an embedding drain after new queue items were written.
type DrainKicker struct {
	inserter Inserter
	limit    int
}

// NewDrainKicker creates a DrainKicker whose jobs process batches of limit items.
func NewDrainKicker(inserter Inserter, limit int) *DrainKicker {
	return &DrainKicker{inserter: inserter, limit: limit}
}

// KickEmbeddingDrain inserts a drain job unless an equivalent one is already waiting.
func (k *DrainKicker) KickEmbeddingDrain(ctx context.Context) error {
	if _, err := k.inserter.Insert(ctx, EmbeddingDrainArgs{Limit: k.limit}, nil); err != nil {
		return fmt.Errorf("insert embedding drain job: %w", err)
	}

	return nil
}
