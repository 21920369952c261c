package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/formbricks/precedent/internal/huberrors"
	"github.com/formbricks/precedent/internal/kmeans"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
)

// DefaultTypicalExampleK is the cluster count used when a rebuild does not ask for one.
const DefaultTypicalExampleK = 5

// BucketMemberLister loads the embedded answers of one score bucket.
type BucketMemberLister interface {
	ListBucketMembers(ctx context.Context, key models.BucketKey, model string) ([]models.EmbeddedAnswer, error)
}

// TypicalExamplesRepository persists typical examples per bucket.
type TypicalExamplesRepository interface {
	ReplaceTypicalExamples(ctx context.Context, key models.BucketKey, model string, examples []models.TypicalExample) error
	ListTypicalExamples(ctx context.Context, caseID, question string) ([]models.TypicalExample, error)
}

// TypicalExamplesServiceParams holds dependencies for TypicalExamplesService.
type TypicalExamplesServiceParams struct {
	Members       BucketMemberLister
	Repo          TypicalExamplesRepository
	Model         string
	DefaultK      int
	MaxIterations int
	Metrics       observability.TypicalExampleMetrics
	Logger        *slog.Logger
}

// TypicalExamplesService rebuilds the representative answers of score buckets.
// Rebuilds of the same bucket must be serialized by the caller.
type TypicalExamplesService struct {
	members       BucketMemberLister
	repo          TypicalExamplesRepository
	model         string
	defaultK      int
	maxIterations int
	metrics       observability.TypicalExampleMetrics
	logger        *slog.Logger
}

// NewTypicalExamplesService creates a TypicalExamplesService.
func NewTypicalExamplesService(p TypicalExamplesServiceParams) *TypicalExamplesService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaultK := p.DefaultK
	if defaultK <= 0 {
		defaultK = DefaultTypicalExampleK
	}

	return &TypicalExamplesService{
		members:       p.Members,
		repo:          p.Repo,
		model:         p.Model,
		defaultK:      defaultK,
		maxIterations: p.MaxIterations,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// Build clusters the bucket's embedded answers into at most k groups and replaces the stored
// examples of exactly that bucket with one representative per non-empty cluster.
// An empty bucket clears its examples and returns an empty slice.
func (s *TypicalExamplesService) Build(ctx context.Context, key models.BucketKey, k int) ([]models.TypicalExample, error) {
	if err := validateBucketKey(key); err != nil {
		return nil, err
	}

	if k <= 0 {
		k = s.defaultK
	}

	start := time.Now()

	members, err := s.members.ListBucketMembers(ctx, key, s.model)
	if err != nil {
		s.recordBuild(ctx, "failed", 0)

		return nil, fmt.Errorf("load bucket members: %w", err)
	}

	vectors := make([][]float32, len(members))
	for i := range members {
		vectors[i] = members[i].Embedding
	}

	result := kmeans.Run(vectors, k, s.maxIterations)
	examples := make([]models.TypicalExample, 0, len(result.Clusters))

	for i, cluster := range result.Clusters {
		rep := kmeans.Representative(vectors, cluster)
		if rep < 0 {
			continue
		}

		m := members[rep]
		examples = append(examples, models.TypicalExample{
			CaseID:              key.CaseID,
			Question:            key.Question,
			ScoreIndex:          key.ScoreIndex,
			BucketLow:           key.Low,
			BucketHigh:          key.High,
			ClusterID:           i,
			ResponseID:          m.ResponseID,
			Text:                m.Text,
			ClusterSize:         len(cluster.Members),
			RepresentativeScore: m.Score,
		})
	}

	if err := s.repo.ReplaceTypicalExamples(ctx, key, s.model, examples); err != nil {
		s.recordBuild(ctx, "failed", 0)

		return nil, fmt.Errorf("store typical examples: %w", err)
	}

	outcome := "built"
	if len(examples) == 0 {
		outcome = "empty"
	}

	s.recordBuild(ctx, outcome, len(examples))

	s.logger.Info("typical examples rebuilt",
		"bucket", key.String(),
		"members", len(members),
		"clusters", len(examples),
		"iterations", result.Iterations,
		"converged", result.Converged,
		"duration", time.Since(start),
	)

	return examples, nil
}

// List returns the stored examples of one question of a case.
func (s *TypicalExamplesService) List(ctx context.Context, caseID, question string) ([]models.TypicalExample, error) {
	if models.QuestionIndex(question) < 0 {
		return nil, huberrors.NewValidationError("question", "question must be one of q1..q9")
	}

	examples, err := s.repo.ListTypicalExamples(ctx, caseID, question)
	if err != nil {
		return nil, fmt.Errorf("list typical examples: %w", err)
	}

	return examples, nil
}

func (s *TypicalExamplesService) recordBuild(ctx context.Context, outcome string, clusters int) {
	if s.metrics != nil {
		s.metrics.RecordBuild(ctx, outcome, clusters)
	}
}

func validateBucketKey(key models.BucketKey) error {
	switch {
	case key.CaseID == "":
		return huberrors.NewValidationError("case_id", "case id is required")
	case models.QuestionIndex(key.Question) < 0:
		return huberrors.NewValidationError("question", "question must be one of q1..q9")
	case key.ScoreIndex < 0 || key.ScoreIndex >= models.MainScoreCount:
		return huberrors.NewValidationError("score_index", "score index must be between 0 and 5")
	case !(key.High > key.Low):
		return huberrors.NewValidationError("bucket_high", "bucket_high must be greater than bucket_low")
	default:
		return nil
	}
}
