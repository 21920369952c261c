package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/formbricks/precedent/internal/models"
)

const embeddingDrainTimeout = 10 * time.Minute

// QueueDrainer processes the embedding queue until it is empty.
type QueueDrainer interface {
	Drain(ctx context.Context, limit int) (models.BatchResult, error)
}

// FailedRequeuer moves failed queue items back to pending.
type FailedRequeuer interface {
	RetryFailed(ctx context.Context, maxAttempts int) (int, error)
}

// EmbeddingDrainWorker runs EmbeddingDrainArgs jobs.
type EmbeddingDrainWorker struct {
	river.WorkerDefaults[EmbeddingDrainArgs]

	drainer     QueueDrainer
	requeuer    FailedRequeuer
	maxAttempts int
	logger      *slog.Logger
}

// NewEmbeddingDrainWorker creates a drain worker. requeuer may be nil, in which case
// RetryFailed in the args is ignored.
func NewEmbeddingDrainWorker(
	drainer QueueDrainer, requeuer FailedRequeuer, maxAttempts int, logger *slog.Logger,
) *EmbeddingDrainWorker {
	if logger == nil {
		logger = slog.Default()
	}

	return &EmbeddingDrainWorker{
		drainer:     drainer,
		requeuer:    requeuer,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Timeout limits how long a single drain can run; the next kick or tick picks up the rest.
func (w *EmbeddingDrainWorker) Timeout(*river.Job[EmbeddingDrainArgs]) time.Duration {
	return embeddingDrainTimeout
}

// Work drains the queue. Items left behind by a timeout stay pending for the next run.
func (w *EmbeddingDrainWorker) Work(ctx context.Context, job *river.Job[EmbeddingDrainArgs]) error {
	if job.Args.RetryFailed && w.requeuer != nil && w.maxAttempts > 0 {
		n, err := w.requeuer.RetryFailed(ctx, w.maxAttempts)
		if err != nil {
			return fmt.Errorf("requeue failed items: %w", err)
		}

		if n > 0 {
			w.logger.Info("embedding: requeued failed items", "count", n, "max_attempts", w.maxAttempts)
		}
	}

	start := time.Now()

	total, err := w.drainer.Drain(ctx, job.Args.Limit)
	if err != nil {
		return fmt.Errorf("drain embedding queue: %w", err)
	}

	w.logger.Info("embedding: queue drained",
		"job_id", job.ID,
		"processed", total.Processed,
		"succeeded", total.Succeeded,
		"failed", total.Failed,
		"duration", time.Since(start),
	)

	return nil
}
