package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/pkg/cache"
)

type mockScoredResponses struct {
	listFunc func(ctx context.Context, caseID string) ([]models.Response, error)
}

func (m *mockScoredResponses) ListScoredResponses(ctx context.Context, caseID string) ([]models.Response, error) {
	return m.listFunc(ctx, caseID)
}

type mockCorpus struct {
	cases     []models.CaseEmbedding
	questions []models.QuestionEmbedding
	err       error
}

func (m *mockCorpus) ListCaseEmbeddings(context.Context, string) ([]models.CaseEmbedding, error) {
	return m.cases, m.err
}

func (m *mockCorpus) ListQuestionEmbeddings(context.Context, string) ([]models.QuestionEmbedding, error) {
	return m.questions, m.err
}

func responseWithScores(id string, scores ...float64) models.Response {
	r := models.Response{CaseID: "C1", ResponseID: id}
	for i := range scores {
		r.MainScores[i] = &scores[i]
	}

	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrievalService_ScorePrecedents(t *testing.T) {
	rows := []models.Response{
		responseWithScores("far", 0, 0, 0, 0, 0, 0),
		responseWithScores("near", 50, 50, 50, 50, 50, 51),
		responseWithScores("partial", 50, 50, 50),
		responseWithScores("exact", 50, 50, 50, 50, 50, 50),
		responseWithScores("tie", 50, 50, 50, 50, 50, 49),
	}

	svc := NewRetrievalService(RetrievalServiceParams{
		Responses: &mockScoredResponses{listFunc: func(_ context.Context, caseID string) ([]models.Response, error) {
			assert.Equal(t, "C1", caseID)

			return rows, nil
		}},
		Logger: discardLogger(),
	})

	target := [models.MainScoreCount]float64{50, 50, 50, 50, 50, 50}

	got, err := svc.ScorePrecedents(context.Background(), "C1", target, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "exact", got[0].ResponseID)
	assert.Equal(t, "near", got[1].ResponseID)
	assert.Equal(t, "tie", got[2].ResponseID)
	assert.InDelta(t, 1.0, got[1].Distance, 1e-12)
	assert.InDelta(t, 51.0, got[1].Scores[5], 0)

	all, err := svc.ScorePrecedents(context.Background(), "C1", target, 50)
	require.NoError(t, err)
	assert.Len(t, all, 4, "partially scored responses are skipped")
}

func TestRetrievalService_ScorePrecedents_Empty(t *testing.T) {
	svc := NewRetrievalService(RetrievalServiceParams{
		Responses: &mockScoredResponses{listFunc: func(context.Context, string) ([]models.Response, error) {
			return nil, nil
		}},
		Logger: discardLogger(),
	})

	got, err := svc.ScorePrecedents(context.Background(), "none", [models.MainScoreCount]float64{}, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetrievalService_SimilarCases(t *testing.T) {
	corpus := &mockCorpus{
		cases: []models.CaseEmbedding{
			{CaseID: "opposite", Embedding: []float32{-1, 0}},
			{CaseID: "same", Name: "Same", Embedding: []float32{2, 0}},
			{CaseID: "diagonal", Embedding: []float32{1, 1}},
		},
	}

	var calls atomic.Int32

	client := &stubEmbeddingClient{createFunc: func(_ context.Context, input string) ([]float32, error) {
		calls.Add(1)
		assert.Equal(t, "customer complaint", input)

		return []float32{1, 0}, nil
	}}

	svc := NewRetrievalService(RetrievalServiceParams{
		Corpus:          corpus,
		EmbeddingClient: client,
		Model:           "test-model",
		QueryCache:      cache.NewLoaderCache[string, []float32](10, 0, func(s string) string { return s }),
		Logger:          discardLogger(),
	})

	got, err := svc.SimilarCases(context.Background(), "  customer complaint ", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "same", got[0].CaseID)
	assert.Equal(t, "Same", got[0].Name)
	assert.Equal(t, "diagonal", got[1].CaseID)

	_, err = svc.SimilarCases(context.Background(), "customer complaint", 2)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from the cache")

	_, err = svc.SimilarCases(context.Background(), " ", 2)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRetrievalService_SimilarQuestions(t *testing.T) {
	t.Run("ranks questions", func(t *testing.T) {
		svc := NewRetrievalService(RetrievalServiceParams{
			Corpus: &mockCorpus{questions: []models.QuestionEmbedding{
				{CaseID: "C1", Question: "q1", Text: "How did you respond?", Embedding: []float32{0, 1}},
				{CaseID: "C2", Question: "q3", Text: "What did you say?", Embedding: []float32{1, 0}},
			}},
			EmbeddingClient: &stubEmbeddingClient{createFunc: func(context.Context, string) ([]float32, error) {
				return []float32{1, 0.1}, nil
			}},
			Logger: discardLogger(),
		})

		got, err := svc.SimilarQuestions(context.Background(), "what was said", 0)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "C2", got[0].CaseID)
		assert.Equal(t, "q3", got[0].Question)
	})

	t.Run("empty corpus", func(t *testing.T) {
		svc := NewRetrievalService(RetrievalServiceParams{
			Corpus:          &mockCorpus{},
			EmbeddingClient: &stubEmbeddingClient{},
			Logger:          discardLogger(),
		})

		got, err := svc.SimilarQuestions(context.Background(), "anything", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("provider failure", func(t *testing.T) {
		svc := NewRetrievalService(RetrievalServiceParams{
			Corpus: &mockCorpus{},
			EmbeddingClient: &stubEmbeddingClient{createFunc: func(context.Context, string) ([]float32, error) {
				return nil, errors.New("quota exceeded")
			}},
			Logger: discardLogger(),
		})

		_, err := svc.SimilarQuestions(context.Background(), "anything", 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}
