package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/formbricks/precedent/internal/jobs"
	"github.com/formbricks/precedent/internal/repository"
)

const backfillLongDesc = `Enqueue every stored answer, case situation and question label that has no
vector for the configured model. Run it after changing EMBEDDING_MODEL; the API server's
workers then compute the vectors.

Examples:
  precedentctl backfill
  precedentctl backfill --batch-size 1000 --no-kick`

type backfillCommander struct {
	s         *session
	batchSize int
	noKick    bool
}

func newBackfillCmd(s *session) *cobra.Command {
	cmder := &backfillCommander{s: s}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Enqueue texts missing a vector for the current model",
		Long:  backfillLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", jobs.DefaultBackfillBatchSize, "Items listed and enqueued per round")
	cmd.Flags().BoolVar(&cmder.noKick, "no-kick", false, "Do not schedule an embedding drain afterwards")

	return cmd
}

func (c *backfillCommander) run(ctx context.Context, out io.Writer) error {
	client, err := c.s.embeddingClient(ctx)
	if err != nil {
		return err
	}

	if err := c.s.open(ctx); err != nil {
		return err
	}
	defer c.s.close()

	stats, err := jobs.Backfill(ctx,
		repository.NewEmbeddingsRepository(c.s.db),
		repository.NewEmbeddingQueueRepository(c.s.db),
		client.Model(), c.batchSize, nil,
	)
	if err != nil {
		return err
	}

	if stats.Total() > 0 && !c.noKick {
		kicker, err := c.s.drainKicker()
		if err != nil {
			return err
		}

		if err := kicker.KickEmbeddingDrain(ctx); err != nil {
			return err
		}
	}

	return json.NewEncoder(out).Encode(stats) //nolint:wrapcheck // terminal output
}
