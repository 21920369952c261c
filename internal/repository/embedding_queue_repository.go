package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/precedent/internal/models"
)

// maxLastErrorLen truncates provider error messages stored on failed items.
const maxLastErrorLen = 1000

var queueColumns = []string{"id", "source", "case_id", "response_id", "question", "text", "status", "created_at"}

// ClaimedBatch is a set of pending queue items locked by the current transaction.
// Every write goes through the same transaction; it commits when the claim callback returns nil.
type ClaimedBatch interface {
	Items() []models.EmbeddingQueueItem
	SaveEmbedding(ctx context.Context, item *models.EmbeddingQueueItem, model string, embedding []float32) error
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmbeddingQueueRepository handles data access for the embedding work queue.
type EmbeddingQueueRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingQueueRepository creates a new embedding queue repository.
func NewEmbeddingQueueRepository(db *pgxpool.Pool) *EmbeddingQueueRepository {
	return &EmbeddingQueueRepository{db: db}
}

// Enqueue inserts items as pending work using COPY. Items without an ID get a time-ordered one.
// Duplicate work for the same text is allowed; it only redoes the vector write.
func (r *EmbeddingQueueRepository) Enqueue(ctx context.Context, items []models.EmbeddingQueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now()

	for i := range items {
		if items[i].ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return 0, fmt.Errorf("generate queue item id: %w", err)
			}

			items[i].ID = id
		}

		items[i].Status = models.QueueStatusPending
		items[i].CreatedAt = now
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"embedding_queue"}, queueColumns,
		pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
			it := items[i]

			return []any{it.ID, string(it.Source), it.CaseID, it.ResponseID, it.Question, it.Text, string(it.Status), it.CreatedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue embedding work: %w", err)
	}

	return int(n), nil
}

// ClaimBatch locks up to limit pending items (oldest first) with FOR UPDATE SKIP LOCKED and
// runs fn with them inside one transaction. Concurrent callers never see the same item.
// The transaction commits when fn returns nil and rolls back otherwise, releasing the items.
func (r *EmbeddingQueueRepository) ClaimBatch(
	ctx context.Context, limit int, fn func(ctx context.Context, batch ClaimedBatch) error,
) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, source, case_id, response_id, question, text, status, retry_count, last_error, created_at
			FROM embedding_queue
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return fmt.Errorf("claim queue items: %w", err)
		}

		items, err := pgx.CollectRows(rows, scanQueueItem)
		if err != nil {
			return fmt.Errorf("scan queue items: %w", err)
		}

		return fn(ctx, &txBatch{tx: tx, items: items})
	})
	if err != nil {
		return fmt.Errorf("embedding queue batch: %w", err)
	}

	return nil
}

// RetryFailed moves failed items that were attempted fewer than maxAttempts times back to
// pending and returns how many were requeued.
func (r *EmbeddingQueueRepository) RetryFailed(ctx context.Context, maxAttempts int) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE embedding_queue SET status = 'pending'
		WHERE status = 'failed' AND retry_count < $1`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue failed items: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CountByStatus returns the number of queue items per status.
func (r *EmbeddingQueueRepository) CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, count(*) FROM embedding_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.QueueStatus]int)

	for rows.Next() {
		var (
			status models.QueueStatus
			n      int
		)

		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}

		counts[status] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue counts: %w", err)
	}

	return counts, nil
}

func scanQueueItem(row pgx.CollectableRow) (models.EmbeddingQueueItem, error) {
	var it models.EmbeddingQueueItem

	err := row.Scan(&it.ID, &it.Source, &it.CaseID, &it.ResponseID, &it.Question, &it.Text,
		&it.Status, &it.RetryCount, &it.LastError, &it.CreatedAt)

	return it, err
}

// txBatch implements ClaimedBatch on a pgx transaction.
type txBatch struct {
	tx    pgx.Tx
	items []models.EmbeddingQueueItem
}

func (b *txBatch) Items() []models.EmbeddingQueueItem {
	return b.items
}

func (b *txBatch) SaveEmbedding(
	ctx context.Context, item *models.EmbeddingQueueItem, model string, embedding []float32,
) error {
	return saveEmbedding(ctx, b.tx, item, model, embedding)
}

func (b *txBatch) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := b.tx.Exec(ctx, `
		UPDATE embedding_queue SET status = 'done', last_error = NULL, processed_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark queue item done: %w", err)
	}

	return nil
}

func (b *txBatch) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if len(reason) > maxLastErrorLen {
		reason = strings.ToValidUTF8(reason[:maxLastErrorLen], "")
	}

	_, err := b.tx.Exec(ctx, `
		UPDATE embedding_queue
		SET status = 'failed', retry_count = retry_count + 1, last_error = $2, processed_at = now()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("mark queue item failed: %w", err)
	}

	return nil
}
