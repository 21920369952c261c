package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/internal/jobs"
	"github.com/formbricks/precedent/internal/observability"
	"github.com/formbricks/precedent/internal/repository"
	"github.com/formbricks/precedent/internal/service"
)

var errEmbeddingProviderRequired = errors.New("EMBEDDING_PROVIDER is required for this command")

const rootLongDesc = `precedentctl loads survey exports and maintains embeddings and typical examples.

Configuration is read from the environment (and .env), the same variables the API server uses.`

// session is the per-invocation state shared by subcommands.
type session struct {
	cfg *config.Config
	db  *pgxpool.Pool
}

func newRootCmd() *cobra.Command {
	s := &session{}

	cmd := &cobra.Command{
		Use:           "precedentctl",
		Short:         "Ingestion and embedding maintenance",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			s.cfg = cfg
			slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel))

			return nil
		},
	}

	cmd.AddCommand(
		newIngestCmd(s),
		newEmbedCmd(s),
		newBackfillCmd(s),
		newTypicalExamplesCmd(s),
	)

	return cmd
}

// open connects to the database. Callers must call close.
func (s *session) open(ctx context.Context) error {
	db, err := repository.OpenPool(ctx, s.cfg)
	if err != nil {
		return err
	}

	s.db = db

	return nil
}

func (s *session) close() {
	if s.db != nil {
		s.db.Close()
	}
}

// embeddingClient returns the configured provider client or an error when none is set.
func (s *session) embeddingClient(ctx context.Context) (service.ModelEmbeddingClient, error) { //nolint:ireturn
	client, err := service.NewEmbeddingClient(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	if client == nil {
		return nil, errEmbeddingProviderRequired
	}

	return client, nil
}

// drainKicker schedules drains on the API server's workers through an insert-only River
// client, so nothing is processed in this process.
func (s *session) drainKicker() (*jobs.DrainKicker, error) {
	client, err := river.NewClient[pgx.Tx](riverpgxv5.New(s.db), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return jobs.NewDrainKicker(client, s.cfg.EmbeddingBatchLimit), nil
}
