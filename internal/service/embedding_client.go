package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/internal/embeddings"
	"github.com/formbricks/precedent/internal/googleai"
	"github.com/formbricks/precedent/internal/openai"
)

// ErrUnsupportedEmbeddingProvider is returned for an EMBEDDING_PROVIDER value with no client.
var ErrUnsupportedEmbeddingProvider = errors.New("unsupported embedding provider")

// EmbeddingClient generates embedding vectors for text.
// Implemented by provider-specific clients (OpenAI, Google Gemini, OpenAI-compatible, mock).
type EmbeddingClient interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// ModelEmbeddingClient is an EmbeddingClient that reports the model its vectors belong to.
type ModelEmbeddingClient interface {
	EmbeddingClient
	Model() string
}

// NewEmbeddingClient builds the client selected by cfg.EmbeddingProvider.
// It returns (nil, nil) when no provider is configured; embeddings are optional.
func NewEmbeddingClient(ctx context.Context, cfg *config.Config) (ModelEmbeddingClient, error) { //nolint:ireturn
	switch cfg.EmbeddingProvider {
	case "":
		return nil, nil //nolint:nilnil
	case config.EmbeddingProviderOpenAI:
		opts := []openai.ClientOption{
			openai.WithModel(cfg.EmbeddingModel),
			openai.WithDimensions(cfg.EmbeddingDimensions),
		}

		if cfg.EmbeddingBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.EmbeddingBaseURL))
		}

		return openai.NewClient(cfg.EmbeddingProviderAPIKey, opts...), nil
	case config.EmbeddingProviderGoogle:
		client, err := googleai.NewClient(ctx, cfg.EmbeddingProviderAPIKey,
			googleai.WithModel(cfg.EmbeddingModel),
			googleai.WithDimensions(cfg.EmbeddingDimensions),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create google embedding client: %w", err)
		}

		return client, nil
	case config.EmbeddingProviderOpenAICompatible:
		client, err := embeddings.NewCompatibleClient(embeddings.CompatibleOptions{
			BaseURL:    cfg.EmbeddingBaseURL,
			APIKey:     cfg.EmbeddingProviderAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
			Timeout:    cfg.EmbeddingItemTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create compatible embedding client: %w", err)
		}

		return client, nil
	case config.EmbeddingProviderMock:
		return embeddings.NewMockClient(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEmbeddingProvider, cfg.EmbeddingProvider)
	}
}
