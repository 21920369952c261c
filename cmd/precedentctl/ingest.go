package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/formbricks/precedent/internal/csvstream"
	"github.com/formbricks/precedent/internal/ingest"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/repository"
)

var errIngestionFailed = errors.New("ingestion failed")

const ingestLongDesc = `Ingest a survey export CSV (UTF-8 or Shift_JIS).

Progress events are written to stdout as JSON lines; the last line is the outcome.

Examples:
  precedentctl ingest export.csv
  precedentctl ingest --encoding shift_jis --source-name march.csv export.csv
  precedentctl ingest --timeout 5m export.csv`

type ingestCommander struct {
	s          *session
	encoding   string
	sourceName string
	timeout    time.Duration
	noKick     bool
}

func newIngestCmd(s *session) *cobra.Command {
	cmder := &ingestCommander{s: s}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a survey export",
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.encoding, "encoding", "e", "auto", "Byte encoding: auto, utf-8 or shift_jis")
	cmd.Flags().StringVar(&cmder.sourceName, "source-name", "", "Name used in logs (default: file name)")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", 0, "Wall-clock budget for the run (0 means none)")
	cmd.Flags().BoolVar(&cmder.noKick, "no-kick", false, "Do not schedule an embedding drain afterwards")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, out io.Writer, path string) error {
	hint, err := csvstream.ParseEncoding(c.encoding)
	if err != nil {
		return err
	}

	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied argument
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := c.s.open(ctx); err != nil {
		return err
	}
	defer c.s.close()

	var kicker ingest.DrainKicker

	if c.s.cfg.EmbeddingProvider != "" && !c.noKick {
		k, err := c.s.drainKicker()
		if err != nil {
			return err
		}

		kicker = k
	}

	pipeline := ingest.NewPipeline(ingest.PipelineParams{
		Store:  repository.NewIngestStore(c.s.db),
		Queue:  repository.NewEmbeddingQueueRepository(c.s.db),
		Kicker: kicker,
		Schema: ingest.DefaultSchema(),
		Options: ingest.Options{
			BatchSize:      c.s.cfg.IngestBatchSize,
			MaxInvalidRows: c.s.cfg.IngestMaxInvalidRows,
			MaxHeaderSkip:  c.s.cfg.IngestMaxHeaderSkip,
			FlushTimeout:   c.s.cfg.IngestFlushTimeout,
		},
	})

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	sourceName := c.sourceName
	if sourceName == "" {
		sourceName = filepath.Base(path)
	}

	events, err := pipeline.StreamUpload(ctx, f, hint, sourceName)
	if err != nil {
		return err
	}

	return writeEvents(out, events)
}

// writeEvents writes every event as one JSON line. The channel is always drained; the
// returned error reports a failed run or, failing that, the first write error.
func writeEvents(w io.Writer, events <-chan models.ProgressEvent) error {
	enc := json.NewEncoder(w)

	var (
		last     models.ProgressEvent
		writeErr error
	)

	for ev := range events {
		last = ev

		if writeErr == nil {
			if err := enc.Encode(ev); err != nil {
				writeErr = fmt.Errorf("failed to write progress: %w", err)
			}
		}
	}

	if last.Status == models.ProgressError {
		return fmt.Errorf("%w: %s", errIngestionFailed, last.Message)
	}

	return writeErr
}
