package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
	"github.com/formbricks/precedent/internal/retrieval"
	"github.com/formbricks/precedent/pkg/cache"
)

const (
	queryEmbeddingCacheName = "query_embedding"
	// DefaultRetrievalLimit is used when a lookup does not ask for a count.
	DefaultRetrievalLimit = 10
)

// ErrEmptyQuery is returned when a similarity lookup has no text.
var ErrEmptyQuery = errors.New("text is required and must be non-empty")

// ScoredResponseLister loads the fully scored responses of a case.
type ScoredResponseLister interface {
	ListScoredResponses(ctx context.Context, caseID string) ([]models.Response, error)
}

// EmbeddingCorpus loads stored case and question vectors for a model.
type EmbeddingCorpus interface {
	ListCaseEmbeddings(ctx context.Context, model string) ([]models.CaseEmbedding, error)
	ListQuestionEmbeddings(ctx context.Context, model string) ([]models.QuestionEmbedding, error)
}

// RetrievalServiceParams configures RetrievalService. QueryCache and CacheMetrics may be nil.
type RetrievalServiceParams struct {
	Responses       ScoredResponseLister
	Corpus          EmbeddingCorpus
	EmbeddingClient EmbeddingClient
	Model           string
	QueryCache      *cache.LoaderCache[string, []float32]
	CacheMetrics    observability.CacheMetrics
	Logger          *slog.Logger
}

// RetrievalService finds precedents in score space and similar cases or questions in
// embedding space. All lookups are read-only.
type RetrievalService struct {
	responses       ScoredResponseLister
	corpus          EmbeddingCorpus
	embeddingClient EmbeddingClient
	model           string
	queryCache      *cache.LoaderCache[string, []float32]
	cacheMetrics    observability.CacheMetrics
	logger          *slog.Logger
}

// NewRetrievalService creates a RetrievalService.
func NewRetrievalService(p RetrievalServiceParams) *RetrievalService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RetrievalService{
		responses:       p.Responses,
		corpus:          p.Corpus,
		embeddingClient: p.EmbeddingClient,
		model:           p.Model,
		queryCache:      p.QueryCache,
		cacheMetrics:    p.CacheMetrics,
		logger:          logger,
	}
}

// ScorePrecedents returns the k responses of caseID whose six main scores are closest to
// target by Euclidean distance. Responses missing any main score are not candidates.
func (s *RetrievalService) ScorePrecedents(
	ctx context.Context, caseID string, target [models.MainScoreCount]float64, k int,
) ([]models.ScoredResponse, error) {
	rows, err := s.responses.ListScoredResponses(ctx, caseID)
	if err != nil {
		s.logger.Error("score precedents: list responses failed", "error", err, "case_id", caseID)

		return nil, fmt.Errorf("list scored responses: %w", err)
	}

	candidates := make([][]float64, 0, len(rows))
	scored := make([]models.Response, 0, len(rows))

	for i := range rows {
		vec, ok := rows[i].ScoreVector()
		if !ok {
			continue
		}

		candidates = append(candidates, vec[:])
		scored = append(scored, rows[i])
	}

	matches := retrieval.NearestEuclidean(target[:], candidates, limitOrDefault(k))
	out := make([]models.ScoredResponse, len(matches))

	for i, m := range matches {
		r := scored[m.Index]
		out[i] = models.ScoredResponse{
			CaseID:     r.CaseID,
			ResponseID: r.ResponseID,
			Answers:    r.Answers,
			Distance:   m.Distance,
		}
		copy(out[i].Scores[:], candidates[m.Index])
	}

	return out, nil
}

// SimilarCases embeds text and returns the k cases whose situation vectors are closest by
// cosine distance.
func (s *RetrievalService) SimilarCases(ctx context.Context, text string, k int) ([]models.SimilarCase, error) {
	query, err := s.queryEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	corpus, err := s.corpus.ListCaseEmbeddings(ctx, s.model)
	if err != nil {
		s.logger.Error("similar cases: list embeddings failed", "error", err, "model", s.model)

		return nil, fmt.Errorf("list case embeddings: %w", err)
	}

	vectors := make([][]float32, len(corpus))
	for i := range corpus {
		vectors[i] = corpus[i].Embedding
	}

	matches := retrieval.NearestCosine(query, vectors, limitOrDefault(k))
	out := make([]models.SimilarCase, len(matches))

	for i, m := range matches {
		c := corpus[m.Index]
		out[i] = models.SimilarCase{CaseID: c.CaseID, Name: c.Name, Distance: m.Distance}
	}

	return out, nil
}

// SimilarQuestions embeds text and returns the k stored questions closest by cosine distance.
func (s *RetrievalService) SimilarQuestions(ctx context.Context, text string, k int) ([]models.SimilarQuestion, error) {
	query, err := s.queryEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	corpus, err := s.corpus.ListQuestionEmbeddings(ctx, s.model)
	if err != nil {
		s.logger.Error("similar questions: list embeddings failed", "error", err, "model", s.model)

		return nil, fmt.Errorf("list question embeddings: %w", err)
	}

	vectors := make([][]float32, len(corpus))
	for i := range corpus {
		vectors[i] = corpus[i].Embedding
	}

	matches := retrieval.NearestCosine(query, vectors, limitOrDefault(k))
	out := make([]models.SimilarQuestion, len(matches))

	for i, m := range matches {
		q := corpus[m.Index]
		out[i] = models.SimilarQuestion{CaseID: q.CaseID, Question: q.Question, Text: q.Text, Distance: m.Distance}
	}

	return out, nil
}

func (s *RetrievalService) queryEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	if s.queryCache == nil {
		vec, err := s.embeddingClient.CreateEmbedding(ctx, text)
		if err != nil {
			s.logger.Error("query embedding failed", "error", err, "model", s.model)

			return nil, fmt.Errorf("create embedding: %w", err)
		}

		return vec, nil
	}

	vec, hit, err := s.queryCache.GetWithStats(ctx, text, func(ctx context.Context, q string) ([]float32, error) {
		return s.embeddingClient.CreateEmbedding(ctx, q)
	})
	if err != nil {
		s.logger.Error("query embedding failed", "error", err, "model", s.model)

		return nil, fmt.Errorf("query embedding: %w", err)
	}

	if s.cacheMetrics != nil {
		if hit {
			s.cacheMetrics.RecordHit(ctx, queryEmbeddingCacheName)
		} else {
			s.cacheMetrics.RecordMiss(ctx, queryEmbeddingCacheName)
		}
	}

	return vec, nil
}

func limitOrDefault(k int) int {
	if k <= 0 {
		return DefaultRetrievalLimit
	}

	return k
}
