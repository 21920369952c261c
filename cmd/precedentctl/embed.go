package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/formbricks/precedent/internal/repository"
	"github.com/formbricks/precedent/internal/service"
)

const embedLongDesc = `Process the embedding queue in this process until it is empty.

With --kick the drain is only scheduled for the API server's workers.

Examples:
  precedentctl embed
  precedentctl embed --limit 50 --retry-failed
  precedentctl embed --kick`

type embedCommander struct {
	s           *session
	limit       int
	retryFailed bool
	kick        bool
}

func newEmbedCmd(s *session) *cobra.Command {
	cmder := &embedCommander{s: s}

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Drain the embedding queue",
		Long:  embedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&cmder.limit, "limit", "l", 0, "Items per batch (default: EMBEDDING_BATCH_LIMIT)")
	cmd.Flags().BoolVar(&cmder.retryFailed, "retry-failed", false, "Requeue failed items below EMBEDDING_MAX_ATTEMPTS first")
	cmd.Flags().BoolVar(&cmder.kick, "kick", false, "Schedule a drain on the API workers instead of running it here")

	return cmd
}

func (c *embedCommander) run(ctx context.Context, out io.Writer) error {
	if err := c.s.open(ctx); err != nil {
		return err
	}
	defer c.s.close()

	limit := c.limit
	if limit <= 0 {
		limit = c.s.cfg.EmbeddingBatchLimit
	}

	if c.kick {
		kicker, err := c.s.drainKicker()
		if err != nil {
			return err
		}

		return kicker.KickEmbeddingDrain(ctx)
	}

	client, err := c.s.embeddingClient(ctx)
	if err != nil {
		return err
	}

	queue := repository.NewEmbeddingQueueRepository(c.s.db)

	if c.retryFailed {
		n, err := queue.RetryFailed(ctx, c.s.cfg.EmbeddingMaxAttempts)
		if err != nil {
			return err
		}

		slog.InfoContext(ctx, "requeued failed items", "count", n)
	}

	var limiter *rate.Limiter
	if c.s.cfg.EmbeddingRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(c.s.cfg.EmbeddingRateLimit), c.s.cfg.EmbeddingRateBurst)
	}

	worker := service.NewEmbeddingQueueWorker(service.EmbeddingQueueWorkerParams{
		Queue:       queue,
		Client:      client,
		Model:       client.Model(),
		Limiter:     limiter,
		ItemTimeout: c.s.cfg.EmbeddingItemTimeout,
	})

	total, err := worker.Drain(ctx, limit)
	if encErr := json.NewEncoder(out).Encode(total); encErr != nil {
		slog.WarnContext(ctx, "failed to write result", "error", encErr)
	}

	if err != nil {
		return fmt.Errorf("drain stopped after %d items: %w", total.Processed, err)
	}

	return nil
}
