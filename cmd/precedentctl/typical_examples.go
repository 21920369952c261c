package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/repository"
	"github.com/formbricks/precedent/internal/service"
)

const typicalExamplesLongDesc = `Rebuild the typical examples of one score bucket: the embedded answers to
one question of one case whose main score at --score-index lies in [--low, --high) are
clustered and one representative per cluster is stored.

Examples:
  precedentctl typical-examples --case C001 --question answer_1 --score-index 0 --low 3 --high 4
  precedentctl typical-examples --case C001 --question answer_2 --score-index 2 --low 1 --high 2.5 --k 8`

type typicalExamplesCommander struct {
	s   *session
	req models.BuildTypicalExamplesRequest
	cid string
}

func newTypicalExamplesCmd(s *session) *cobra.Command {
	cmder := &typicalExamplesCommander{s: s}

	cmd := &cobra.Command{
		Use:   "typical-examples",
		Short: "Rebuild the typical examples of a score bucket",
		Long:  typicalExamplesLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.cid, "case", "", "Case id")
	cmd.Flags().StringVar(&cmder.req.Question, "question", "", "Question key (answer_1 .. answer_9)")
	cmd.Flags().IntVar(&cmder.req.ScoreIndex, "score-index", 0, "Main score index (0-5)")
	cmd.Flags().Float64Var(&cmder.req.BucketLow, "low", 0, "Inclusive lower bound of the bucket")
	cmd.Flags().Float64Var(&cmder.req.BucketHigh, "high", 0, "Exclusive upper bound of the bucket")
	cmd.Flags().IntVar(&cmder.req.K, "k", 0, "Number of clusters (default: TYPICAL_EXAMPLES_K)")

	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("high")

	return cmd
}

func (c *typicalExamplesCommander) run(ctx context.Context, out io.Writer) error {
	if c.req.BucketHigh <= c.req.BucketLow {
		return fmt.Errorf("--high (%g) must be greater than --low (%g)", c.req.BucketHigh, c.req.BucketLow)
	}

	if err := c.s.open(ctx); err != nil {
		return err
	}
	defer c.s.close()

	model := c.s.cfg.EmbeddingModel

	client, err := service.NewEmbeddingClient(ctx, c.s.cfg)
	if err != nil {
		return err
	}

	if client != nil {
		model = client.Model()
	}

	svc := service.NewTypicalExamplesService(service.TypicalExamplesServiceParams{
		Members:       repository.NewEmbeddingsRepository(c.s.db),
		Repo:          repository.NewTypicalExamplesRepository(c.s.db),
		Model:         model,
		DefaultK:      c.s.cfg.TypicalExampleK,
		MaxIterations: c.s.cfg.KMeansMaxIterations,
	})

	examples, err := svc.Build(ctx, c.req.Key(c.cid), c.req.K)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(examples) //nolint:wrapcheck // terminal output
}
