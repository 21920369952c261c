package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockDrainer struct {
	limits []int
	err    error
}

func (m *mockDrainer) Drain(_ context.Context, limit int) (models.BatchResult, error) {
	m.limits = append(m.limits, limit)

	return models.BatchResult{Processed: 3, Succeeded: 2, Failed: 1}, m.err
}

type mockRequeuer struct {
	calls []int
}

func (m *mockRequeuer) RetryFailed(_ context.Context, maxAttempts int) (int, error) {
	m.calls = append(m.calls, maxAttempts)

	return 2, nil
}

func TestEmbeddingDrainWorker_Work(t *testing.T) {
	t.Run("kick drains without requeue", func(t *testing.T) {
		drainer, requeuer := &mockDrainer{}, &mockRequeuer{}
		w := NewEmbeddingDrainWorker(drainer, requeuer, 3, discardLogger())

		err := w.Work(context.Background(), &river.Job[EmbeddingDrainArgs]{
			JobRow: &rivertype.JobRow{ID: 1},
			Args:   EmbeddingDrainArgs{Limit: 50},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{50}, drainer.limits)
		assert.Empty(t, requeuer.calls)
	})

	t.Run("periodic run requeues failed items first", func(t *testing.T) {
		drainer, requeuer := &mockDrainer{}, &mockRequeuer{}
		w := NewEmbeddingDrainWorker(drainer, requeuer, 3, discardLogger())

		err := w.Work(context.Background(), &river.Job[EmbeddingDrainArgs]{
			JobRow: &rivertype.JobRow{ID: 2},
			Args:   EmbeddingDrainArgs{Limit: 50, RetryFailed: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{3}, requeuer.calls)
	})

	t.Run("drain error is returned for retry", func(t *testing.T) {
		w := NewEmbeddingDrainWorker(&mockDrainer{err: errors.New("db down")}, nil, 0, discardLogger())

		err := w.Work(context.Background(), &river.Job[EmbeddingDrainArgs]{
			JobRow: &rivertype.JobRow{ID: 3},
			Args:   EmbeddingDrainArgs{Limit: 10, RetryFailed: true},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

type mockInserter struct {
	args []river.JobArgs
	err  error
}

func (m *mockInserter) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	m.args = append(m.args, args)

	return &rivertype.JobInsertResult{}, m.err
}

func TestDrainKicker(t *testing.T) {
	ins := &mockInserter{}
	k := NewDrainKicker(ins, 100)

	require.NoError(t, k.KickEmbeddingDrain(context.Background()))
	require.Len(t, ins.args, 1)
	assert.Equal(t, EmbeddingDrainArgs{Limit: 100}, ins.args[0])

	ins.err = errors.New("insert failed")
	assert.Error(t, k.KickEmbeddingDrain(context.Background()))
}

func TestEmbeddingDrainArgs_InsertOpts(t *testing.T) {
	opts := EmbeddingDrainArgs{}.InsertOpts()

	assert.Equal(t, EmbeddingsQueueName, opts.Queue)
	assert.True(t, opts.UniqueOpts.ByArgs)
	assert.Contains(t, opts.UniqueOpts.ByState, rivertype.JobStatePending)
	assert.NotContains(t, opts.UniqueOpts.ByState, rivertype.JobStateCompleted)
}

type mockMissing struct {
	pages [][]models.EmbeddingQueueItem
}

func (m *mockMissing) ListMissingEmbeddings(_ context.Context, _ string, _ int) ([]models.EmbeddingQueueItem, error) {
	if len(m.pages) == 0 {
		return nil, nil
	}

	page := m.pages[0]
	m.pages = m.pages[1:]

	return page, nil
}

type mockQueueWriter struct {
	enqueued int
}

func (m *mockQueueWriter) Enqueue(_ context.Context, items []models.EmbeddingQueueItem) (int, error) {
	m.enqueued += len(items)

	return len(items), nil
}

func TestBackfill(t *testing.T) {
	lister := &mockMissing{pages: [][]models.EmbeddingQueueItem{
		{
			models.NewResponseQueueItem("C1", "R1", "q1", "a"),
			models.NewCaseQueueItem("C1", "situation"),
		},
		{
			models.NewQuestionQueueItem("C1", "q1", "How?"),
		},
	}}
	queue := &mockQueueWriter{}

	stats, err := Backfill(context.Background(), lister, queue, "m", 2, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, BackfillStats{Responses: 1, Cases: 1, Questions: 1}, *stats)
	assert.Equal(t, 3, stats.Total())
	assert.Equal(t, 3, queue.enqueued)
}
