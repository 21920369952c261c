package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/formbricks/precedent/internal/models"
)

// DefaultBackfillBatchSize bounds each list-and-enqueue round of Backfill.
const DefaultBackfillBatchSize = 500

// MissingEmbeddingLister finds stored texts without a vector for a model.
type MissingEmbeddingLister interface {
	ListMissingEmbeddings(ctx context.Context, model string, limit int) ([]models.EmbeddingQueueItem, error)
}

// QueueWriter enqueues embedding work.
type QueueWriter interface {
	Enqueue(ctx context.Context, items []models.EmbeddingQueueItem) (int, error)
}

// BackfillStats holds statistics from a backfill operation.
type BackfillStats struct {
	Responses int `json:"responses"`
	Cases     int `json:"cases"`
	Questions int `json:"questions"`
}

// Total returns the number of enqueued items.
func (s BackfillStats) Total() int {
	return s.Responses + s.Cases + s.Questions
}

// Backfill enqueues queue items for every stored answer, case situation and question label
// that has no vector for model and no pending item. Used after a model change.
func Backfill(
	ctx context.Context, lister MissingEmbeddingLister, queue QueueWriter, model string, batchSize int, logger *slog.Logger,
) (*BackfillStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBackfillBatchSize
	}

	if logger == nil {
		logger = slog.Default()
	}

	stats := &BackfillStats{}

	for {
		items, err := lister.ListMissingEmbeddings(ctx, model, batchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to list missing embeddings: %w", err)
		}

		if len(items) == 0 {
			break
		}

		n, err := queue.Enqueue(ctx, items)
		if err != nil {
			return stats, fmt.Errorf("failed to enqueue backfill items: %w", err)
		}

		for _, it := range items {
			switch it.Source {
			case models.SourceResponse:
				stats.Responses++
			case models.SourceCase:
				stats.Cases++
			case models.SourceQuestion:
				stats.Questions++
			}
		}

		logger.Info("backfill: enqueued batch", "model", model, "items", n, "total", stats.Total())

		// The lister skips texts with pending items, so a short page is the last one.
		if n == 0 || len(items) < batchSize {
			break
		}
	}

	return stats, nil
}
