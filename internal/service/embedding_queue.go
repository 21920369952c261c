package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/formbricks/precedent/internal/embeddings"
	"github.com/formbricks/precedent/internal/googleai"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
	"github.com/formbricks/precedent/internal/openai"
	"github.com/formbricks/precedent/internal/repository"
)

const (
	// DefaultQueueBatchLimit is used when ProcessBatch is called with a non-positive limit.
	DefaultQueueBatchLimit = 100
	// DefaultEmbeddingItemTimeout bounds a single provider call.
	DefaultEmbeddingItemTimeout = 30 * time.Second
)

// EmbeddingQueueStore claims pending queue items for processing.
type EmbeddingQueueStore interface {
	ClaimBatch(ctx context.Context, limit int, fn func(ctx context.Context, batch repository.ClaimedBatch) error) error
}

// EmbeddingQueueWorkerParams holds dependencies for EmbeddingQueueWorker.
type EmbeddingQueueWorkerParams struct {
	Queue       EmbeddingQueueStore
	Client      EmbeddingClient
	Model       string
	Limiter     *rate.Limiter // nil means unlimited
	ItemTimeout time.Duration
	Metrics     observability.EmbeddingMetrics
	Logger      *slog.Logger
}

// EmbeddingQueueWorker turns pending queue items into stored vectors.
type EmbeddingQueueWorker struct {
	queue       EmbeddingQueueStore
	client      EmbeddingClient
	model       string
	limiter     *rate.Limiter
	itemTimeout time.Duration
	metrics     observability.EmbeddingMetrics
	logger      *slog.Logger
}

// NewEmbeddingQueueWorker creates an EmbeddingQueueWorker.
func NewEmbeddingQueueWorker(p EmbeddingQueueWorkerParams) *EmbeddingQueueWorker {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.ItemTimeout
	if timeout <= 0 {
		timeout = DefaultEmbeddingItemTimeout
	}

	return &EmbeddingQueueWorker{
		queue:       p.Queue,
		client:      p.Client,
		model:       p.Model,
		limiter:     p.Limiter,
		itemTimeout: timeout,
		metrics:     p.Metrics,
		logger:      logger,
	}
}

// Model returns the model identifier vectors are stored under.
func (w *EmbeddingQueueWorker) Model() string {
	return w.model
}

// ProcessBatch claims up to limit pending items and embeds them one by one.
// A provider failure marks that item failed and moves on. A storage failure aborts the
// whole batch; its transaction rolls back and the items stay pending.
func (w *EmbeddingQueueWorker) ProcessBatch(ctx context.Context, limit int) (models.BatchResult, error) {
	if limit <= 0 {
		limit = DefaultQueueBatchLimit
	}

	var result models.BatchResult

	err := w.queue.ClaimBatch(ctx, limit, func(ctx context.Context, batch repository.ClaimedBatch) error {
		result = models.BatchResult{}

		items := batch.Items()
		for i := range items {
			ok, err := w.processItem(ctx, batch, &items[i])
			if err != nil {
				return err
			}

			result.Processed++

			if ok {
				result.Succeeded++
			} else {
				result.Failed++
			}
		}

		return nil
	})
	if err != nil {
		if w.metrics != nil && ctx.Err() == nil {
			w.metrics.RecordWorkerError(ctx, "claim_failed")
		}

		return models.BatchResult{}, fmt.Errorf("process embedding batch: %w", err)
	}

	if result.Processed > 0 {
		w.logger.Info("embedding batch processed",
			"model", w.model,
			"processed", result.Processed,
			"succeeded", result.Succeeded,
			"failed", result.Failed,
		)
	}

	return result, nil
}

// processItem returns false when the item was marked failed, and an error only when the
// batch must abort.
func (w *EmbeddingQueueWorker) processItem(
	ctx context.Context, batch repository.ClaimedBatch, item *models.EmbeddingQueueItem,
) (bool, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, w.itemTimeout)
	vec, err := w.client.CreateEmbedding(callCtx, item.Text)

	cancel()

	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if w.metrics != nil {
			w.metrics.RecordProviderError(ctx, providerErrorReason(err))
		}

		w.logger.Warn("embedding provider failed",
			"queue_item_id", item.ID,
			"source", item.Source,
			"case_id", item.CaseID,
			"error", err,
		)

		return false, w.markFailed(ctx, batch, item, start, err.Error())
	}

	err = batch.SaveEmbedding(ctx, item, w.model, vec)
	if errors.Is(err, repository.ErrEmbeddingTargetGone) {
		w.logger.Info("embedding target deleted before processing",
			"queue_item_id", item.ID,
			"source", item.Source,
			"case_id", item.CaseID,
		)

		return false, w.markFailed(ctx, batch, item, start, err.Error())
	}

	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "save_failed")
		}

		return false, fmt.Errorf("save embedding for %s: %w", item.ID, err)
	}

	if err := batch.MarkDone(ctx, item.ID); err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "mark_failed")
		}

		return false, err
	}

	if w.metrics != nil {
		w.metrics.RecordEmbeddingOutcome(ctx, string(item.Source), "success")
		w.metrics.RecordEmbeddingDuration(ctx, time.Since(start), "success")
	}

	return true, nil
}

func (w *EmbeddingQueueWorker) markFailed(
	ctx context.Context, batch repository.ClaimedBatch, item *models.EmbeddingQueueItem, start time.Time, reason string,
) error {
	if err := batch.MarkFailed(ctx, item.ID, reason); err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "mark_failed")
		}

		return err
	}

	if w.metrics != nil {
		w.metrics.RecordEmbeddingOutcome(ctx, string(item.Source), "failed")
		w.metrics.RecordEmbeddingDuration(ctx, time.Since(start), "failed")
	}

	return nil
}

// Drain runs batches until one comes back empty or ctx is done, and returns the totals.
func (w *EmbeddingQueueWorker) Drain(ctx context.Context, limit int) (models.BatchResult, error) {
	var total models.BatchResult

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		res, err := w.ProcessBatch(ctx, limit)
		if err != nil {
			return total, err
		}

		total.Add(res)

		if res.Processed == 0 {
			return total, nil
		}
	}
}

func providerErrorReason(err error) string {
	switch {
	case errors.Is(err, openai.ErrEmptyInput), errors.Is(err, googleai.ErrEmptyInput),
		errors.Is(err, embeddings.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, openai.ErrDimensionMismatch), errors.Is(err, googleai.ErrDimensionMismatch):
		return "dimension_mismatch"
	default:
		return "api_error"
	}
}
