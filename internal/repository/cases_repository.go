package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/precedent/internal/huberrors"
	"github.com/formbricks/precedent/internal/models"
)

// CasesRepository handles data access for cases and their cascading delete.
type CasesRepository struct {
	db *pgxpool.Pool
}

// NewCasesRepository creates a new cases repository.
func NewCasesRepository(db *pgxpool.Pool) *CasesRepository {
	return &CasesRepository{db: db}
}

// UpsertCase inserts a case or updates it. An empty name or a nil situation never clears a
// stored value; a new case without a name is named after its id.
func (r *CasesRepository) UpsertCase(ctx context.Context, c *models.Case) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO cases (id, name, situation)
		VALUES ($1, COALESCE(NULLIF($2::text, ''), $1), $3)
		ON CONFLICT (id) DO UPDATE
		SET name = COALESCE(NULLIF($2::text, ''), cases.name),
		    situation = COALESCE(EXCLUDED.situation, cases.situation),
		    updated_at = now()
		RETURNING name, created_at, updated_at`,
		c.ID, c.Name, c.Situation,
	).Scan(&c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert case: %w", err)
	}

	return nil
}

// GetCase returns a case by id.
func (r *CasesRepository) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case

	err := r.db.QueryRow(ctx,
		`SELECT id, name, situation, created_at, updated_at FROM cases WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Situation, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huberrors.NewNotFoundError("case", "case not found")
		}

		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	return &c, nil
}

// DeleteCase removes a case with its responses, embeddings, typical examples and queue
// items in one transaction.
func (r *CasesRepository) DeleteCase(ctx context.Context, id string) (*models.DeleteCaseResult, error) {
	result := &models.DeleteCaseResult{CaseID: id}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		steps := []struct {
			sql     string
			counter *int64
		}{
			// Queue rows first: a worker holding one of them locked finishes before the
			// embeddings it may write are removed.
			{`DELETE FROM embedding_queue WHERE case_id = $1 AND status = 'pending'`, &result.QueueItems},
			{`DELETE FROM typical_examples WHERE case_id = $1`, &result.TypicalExamples},
			{`DELETE FROM response_embeddings WHERE case_id = $1`, &result.Embeddings},
			{`DELETE FROM question_embeddings WHERE case_id = $1`, &result.Embeddings},
			{`DELETE FROM case_embeddings WHERE case_id = $1`, &result.Embeddings},
			{`DELETE FROM responses WHERE case_id = $1`, &result.Responses},
		}

		for _, step := range steps {
			tag, err := tx.Exec(ctx, step.sql, id)
			if err != nil {
				return fmt.Errorf("cascade delete: %w", err)
			}

			*step.counter += tag.RowsAffected()
		}

		tag, err := tx.Exec(ctx, `DELETE FROM cases WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete case row: %w", err)
		}

		if tag.RowsAffected() == 0 {
			return huberrors.NewNotFoundError("case", "case not found")
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, huberrors.ErrNotFound) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to delete case: %w", err)
	}

	return result, nil
}
