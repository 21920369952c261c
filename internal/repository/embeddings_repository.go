package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/formbricks/precedent/internal/models"
)

// ErrEmbeddingTargetGone is returned when the row an embedding belongs to was deleted
// after its queue item was created.
var ErrEmbeddingTargetGone = errors.New("embedding target no longer exists")

// ErrUnknownQuestion is returned for a question key outside q1..q9.
var ErrUnknownQuestion = errors.New("unknown question key")

// EmbeddingsRepository handles data access for response, case and question embeddings.
// Vectors use halfvec storage (2 bytes per dimension); pgvector-go converts float32 to
// float16 when encoding.
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// SaveEmbedding stores the vector computed for item under model.
func (r *EmbeddingsRepository) SaveEmbedding(
	ctx context.Context, item *models.EmbeddingQueueItem, model string, embedding []float32,
) error {
	return saveEmbedding(ctx, r.db, item, model, embedding)
}

func saveEmbedding(
	ctx context.Context, db querier, item *models.EmbeddingQueueItem, model string, embedding []float32,
) error {
	vec := pgvector.NewHalfVector(embedding)

	var (
		query string
		args  []any
	)

	switch item.Source {
	case models.SourceResponse:
		if item.ResponseID == nil || item.Question == nil {
			return fmt.Errorf("response queue item %s: missing response id or question", item.ID)
		}

		query = `
			INSERT INTO response_embeddings (case_id, response_id, question, model, embedding)
			SELECT $1::text, $2::text, $3::text, $4::text, $5::halfvec
			WHERE EXISTS (SELECT 1 FROM responses WHERE case_id = $1 AND response_id = $2)
			ON CONFLICT (case_id, response_id, question, model)
			DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`
		args = []any{item.CaseID, *item.ResponseID, *item.Question, model, vec}
	case models.SourceCase:
		query = `
			INSERT INTO case_embeddings (case_id, model, embedding)
			SELECT $1::text, $2::text, $3::halfvec
			WHERE EXISTS (SELECT 1 FROM cases WHERE id = $1)
			ON CONFLICT (case_id, model)
			DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`
		args = []any{item.CaseID, model, vec}
	case models.SourceQuestion:
		if item.Question == nil {
			return fmt.Errorf("question queue item %s: missing question", item.ID)
		}

		query = `
			INSERT INTO question_embeddings (case_id, question, model, text, embedding)
			SELECT $1::text, $2::text, $3::text, $4::text, $5::halfvec
			WHERE EXISTS (SELECT 1 FROM cases WHERE id = $1)
			ON CONFLICT (case_id, question, model)
			DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding, updated_at = now()`
		args = []any{item.CaseID, *item.Question, model, item.Text, vec}
	default:
		return fmt.Errorf("queue item %s: unknown source %q", item.ID, item.Source)
	}

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s embedding upsert: %w", item.Source, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrEmbeddingTargetGone
	}

	return nil
}

// ListBucketMembers returns the embedded answers of one question of a case whose main score
// at key.ScoreIndex lies in [key.Low, key.High), ordered by response id.
func (r *EmbeddingsRepository) ListBucketMembers(
	ctx context.Context, key models.BucketKey, model string,
) ([]models.EmbeddedAnswer, error) {
	q := models.QuestionIndex(key.Question)
	if q < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestion, key.Question)
	}

	// Postgres arrays are 1-based.
	rows, err := r.db.Query(ctx, `
		SELECT r.response_id, r.answers[$4], r.main_scores[$5], e.embedding
		FROM response_embeddings e
		INNER JOIN responses r ON r.case_id = e.case_id AND r.response_id = e.response_id
		WHERE e.case_id = $1 AND e.question = $2 AND e.model = $3
		  AND r.main_scores[$5] >= $6 AND r.main_scores[$5] < $7
		ORDER BY r.response_id`,
		key.CaseID, key.Question, model, q+1, key.ScoreIndex+1, key.Low, key.High,
	)
	if err != nil {
		return nil, fmt.Errorf("list bucket members: %w", err)
	}

	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.EmbeddedAnswer, error) {
		var (
			m    models.EmbeddedAnswer
			text *string
			vec  pgvector.HalfVector
		)

		if err := row.Scan(&m.ResponseID, &text, &m.Score, &vec); err != nil {
			return m, err
		}

		if text != nil {
			m.Text = *text
		}

		m.Embedding = vec.Slice()

		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan bucket members: %w", err)
	}

	return members, nil
}

// ListCaseEmbeddings returns every case vector stored for model, ordered by case id.
func (r *EmbeddingsRepository) ListCaseEmbeddings(ctx context.Context, model string) ([]models.CaseEmbedding, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.name, e.embedding
		FROM case_embeddings e
		INNER JOIN cases c ON c.id = e.case_id
		WHERE e.model = $1
		ORDER BY c.id`, model)
	if err != nil {
		return nil, fmt.Errorf("list case embeddings: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CaseEmbedding, error) {
		var (
			c   models.CaseEmbedding
			vec pgvector.HalfVector
		)

		if err := row.Scan(&c.CaseID, &c.Name, &vec); err != nil {
			return c, err
		}

		c.Embedding = vec.Slice()

		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan case embeddings: %w", err)
	}

	return out, nil
}

// ListQuestionEmbeddings returns every question vector stored for model, ordered by case and question.
func (r *EmbeddingsRepository) ListQuestionEmbeddings(ctx context.Context, model string) ([]models.QuestionEmbedding, error) {
	rows, err := r.db.Query(ctx, `
		SELECT case_id, question, text, embedding
		FROM question_embeddings
		WHERE model = $1
		ORDER BY case_id, question`, model)
	if err != nil {
		return nil, fmt.Errorf("list question embeddings: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.QuestionEmbedding, error) {
		var (
			q   models.QuestionEmbedding
			vec pgvector.HalfVector
		)

		if err := row.Scan(&q.CaseID, &q.Question, &q.Text, &vec); err != nil {
			return q, err
		}

		q.Embedding = vec.Slice()

		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan question embeddings: %w", err)
	}

	return out, nil
}

// ListMissingEmbeddings returns queue items for stored texts that have no embedding for model
// and no pending queue item: non-empty answers, case situations, and question labels known
// from other models. At most limit items are returned.
func (r *EmbeddingsRepository) ListMissingEmbeddings(
	ctx context.Context, model string, limit int,
) ([]models.EmbeddingQueueItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT 'response', r.case_id, r.response_id, 'q' || a.ord, a.text
		FROM responses r
		CROSS JOIN LATERAL unnest(r.answers) WITH ORDINALITY AS a(text, ord)
		WHERE trim(a.text) <> ''
		  AND NOT EXISTS (
		    SELECT 1 FROM response_embeddings e
		    WHERE e.case_id = r.case_id AND e.response_id = r.response_id
		      AND e.question = 'q' || a.ord AND e.model = $1
		  )
		  AND NOT EXISTS (
		    SELECT 1 FROM embedding_queue q
		    WHERE q.status = 'pending' AND q.source = 'response'
		      AND q.case_id = r.case_id AND q.response_id = r.response_id AND q.question = 'q' || a.ord
		  )
		UNION ALL
		SELECT 'case', c.id, NULL, NULL, c.situation
		FROM cases c
		WHERE c.situation IS NOT NULL AND trim(c.situation) <> ''
		  AND NOT EXISTS (SELECT 1 FROM case_embeddings e WHERE e.case_id = c.id AND e.model = $1)
		  AND NOT EXISTS (
		    SELECT 1 FROM embedding_queue q
		    WHERE q.status = 'pending' AND q.source = 'case' AND q.case_id = c.id
		  )
		UNION ALL
		SELECT DISTINCT ON (qe.case_id, qe.question) 'question', qe.case_id, NULL, qe.question, qe.text
		FROM question_embeddings qe
		WHERE NOT EXISTS (
		    SELECT 1 FROM question_embeddings e
		    WHERE e.case_id = qe.case_id AND e.question = qe.question AND e.model = $1
		  )
		  AND NOT EXISTS (
		    SELECT 1 FROM embedding_queue q
		    WHERE q.status = 'pending' AND q.source = 'question'
		      AND q.case_id = qe.case_id AND q.question = qe.question
		  )
		LIMIT $2`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.EmbeddingQueueItem, error) {
		item := models.EmbeddingQueueItem{Status: models.QueueStatusPending}
		err := row.Scan(&item.Source, &item.CaseID, &item.ResponseID, &item.Question, &item.Text)

		return item, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan missing embeddings: %w", err)
	}

	return items, nil
}
