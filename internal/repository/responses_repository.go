package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formbricks/precedent/internal/models"
)

// responseParams is the number of bind parameters per row of a response upsert.
const responseParams = 5

// maxBindParams is the Postgres wire protocol limit on parameters in one statement.
const maxBindParams = 65535

// maxRowsPerUpsert keeps a single upsert statement under maxBindParams.
const maxRowsPerUpsert = maxBindParams / responseParams

// ResponsesRepository handles data access for survey responses.
type ResponsesRepository struct {
	db *pgxpool.Pool
}

// NewResponsesRepository creates a new responses repository.
func NewResponsesRepository(db *pgxpool.Pool) *ResponsesRepository {
	return &ResponsesRepository{db: db}
}

// UpsertResponses writes rows with INSERT ... ON CONFLICT statements of at most
// maxRowsPerUpsert rows each, all in one transaction. Postgres rejects a statement that
// touches the same conflict key twice, so rows must have distinct keys.
func (r *ResponsesRepository) UpsertResponses(ctx context.Context, rows []models.Response) error {
	if len(rows) == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, chunk := range chunkResponses(rows, maxRowsPerUpsert) {
			query, args := buildResponseUpsert(chunk)

			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert responses: %w", err)
	}

	return nil
}

// chunkResponses splits rows into consecutive slices of at most size rows.
func chunkResponses(rows []models.Response, size int) [][]models.Response {
	chunks := make([][]models.Response, 0, (len(rows)+size-1)/size)

	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		chunks = append(chunks, rows[start:end])
	}

	return chunks
}

func buildResponseUpsert(rows []models.Response) (string, []any) {
	var sb strings.Builder

	args := make([]any, 0, len(rows)*responseParams)

	sb.WriteString(`INSERT INTO responses (case_id, response_id, answers, sub_scores, main_scores) VALUES `)

	for i := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteByte('(')

		for j := range responseParams {
			if j > 0 {
				sb.WriteString(", ")
			}

			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(i*responseParams + j + 1))
		}

		sb.WriteByte(')')

		args = append(args,
			rows[i].CaseID,
			rows[i].ResponseID,
			rows[i].Answers[:],
			rows[i].SubScores[:],
			rows[i].MainScores[:],
		)
	}

	sb.WriteString(` ON CONFLICT (case_id, response_id) DO UPDATE SET
		answers = EXCLUDED.answers,
		sub_scores = EXCLUDED.sub_scores,
		main_scores = EXCLUDED.main_scores,
		updated_at = now()`)

	return sb.String(), args
}

// ListScoredResponses returns the responses of caseID whose six main scores are all set,
// ordered by response id.
func (r *ResponsesRepository) ListScoredResponses(ctx context.Context, caseID string) ([]models.Response, error) {
	rows, err := r.db.Query(ctx, `
		SELECT case_id, response_id, answers, sub_scores, main_scores, created_at, updated_at
		FROM responses
		WHERE case_id = $1
		  AND cardinality(main_scores) = $2
		  AND array_position(main_scores, NULL) IS NULL
		ORDER BY response_id`,
		caseID, models.MainScoreCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list scored responses: %w", err)
	}

	responses, err := pgx.CollectRows(rows, scanResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to scan responses: %w", err)
	}

	return responses, nil
}

// CountResponses returns the number of stored responses of caseID.
func (r *ResponsesRepository) CountResponses(ctx context.Context, caseID string) (int, error) {
	var n int

	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM responses WHERE case_id = $1`, caseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}

	return n, nil
}

func scanResponse(row pgx.CollectableRow) (models.Response, error) {
	var (
		resp       models.Response
		answers    []string
		subScores  []*float64
		mainScores []*float64
	)

	err := row.Scan(&resp.CaseID, &resp.ResponseID, &answers, &subScores, &mainScores, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return resp, err
	}

	copy(resp.Answers[:], answers)
	copy(resp.SubScores[:], subScores)
	copy(resp.MainScores[:], mainScores)

	return resp, nil
}
