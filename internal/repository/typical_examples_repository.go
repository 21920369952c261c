package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/precedent/internal/models"
)

var typicalExampleColumns = []string{
	"case_id", "question", "score_index", "bucket_low", "bucket_high", "cluster_id",
	"response_id", "text", "cluster_size", "representative_score", "model",
}

// TypicalExamplesRepository handles data access for typical examples.
type TypicalExamplesRepository struct {
	db *pgxpool.Pool
}

// NewTypicalExamplesRepository creates a new typical examples repository.
func NewTypicalExamplesRepository(db *pgxpool.Pool) *TypicalExamplesRepository {
	return &TypicalExamplesRepository{db: db}
}

// ReplaceTypicalExamples deletes exactly the rows of key and inserts examples, in one transaction.
func (r *TypicalExamplesRepository) ReplaceTypicalExamples(
	ctx context.Context, key models.BucketKey, model string, examples []models.TypicalExample,
) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			DELETE FROM typical_examples
			WHERE case_id = $1 AND question = $2 AND score_index = $3
			  AND bucket_low = $4 AND bucket_high = $5`,
			key.CaseID, key.Question, key.ScoreIndex, key.Low, key.High,
		)
		if err != nil {
			return fmt.Errorf("delete bucket: %w", err)
		}

		if len(examples) == 0 {
			return nil
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"typical_examples"}, typicalExampleColumns,
			pgx.CopyFromSlice(len(examples), func(i int) ([]any, error) {
				ex := examples[i]

				return []any{
					key.CaseID, key.Question, int16(key.ScoreIndex), key.Low, key.High, int32(ex.ClusterID),
					ex.ResponseID, ex.Text, int32(ex.ClusterSize), ex.RepresentativeScore, model,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("insert examples: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace typical examples: %w", err)
	}

	return nil
}

// ListTypicalExamples returns the stored examples of one question of a case, ordered by
// bucket and cluster.
func (r *TypicalExamplesRepository) ListTypicalExamples(
	ctx context.Context, caseID, question string,
) ([]models.TypicalExample, error) {
	rows, err := r.db.Query(ctx, `
		SELECT case_id, question, score_index, bucket_low, bucket_high, cluster_id,
		       response_id, text, cluster_size, representative_score, created_at
		FROM typical_examples
		WHERE case_id = $1 AND question = $2
		ORDER BY score_index, bucket_low, cluster_id`, caseID, question)
	if err != nil {
		return nil, fmt.Errorf("failed to list typical examples: %w", err)
	}

	examples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TypicalExample, error) {
		var ex models.TypicalExample

		err := row.Scan(&ex.CaseID, &ex.Question, &ex.ScoreIndex, &ex.BucketLow, &ex.BucketHigh, &ex.ClusterID,
			&ex.ResponseID, &ex.Text, &ex.ClusterSize, &ex.RepresentativeScore, &ex.CreatedAt)

		return ex, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan typical examples: %w", err)
	}

	return examples, nil
}
