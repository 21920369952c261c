package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/internal/embeddings"
)

func TestNewEmbeddingClient(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without provider", func(t *testing.T) {
		client, err := NewEmbeddingClient(ctx, &config.Config{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("mock", func(t *testing.T) {
		client, err := NewEmbeddingClient(ctx, &config.Config{
			EmbeddingProvider:   config.EmbeddingProviderMock,
			EmbeddingDimensions: 8,
		})
		require.NoError(t, err)
		assert.Equal(t, embeddings.MockModel, client.Model())

		vec, err := client.CreateEmbedding(ctx, "hello")
		require.NoError(t, err)
		assert.Len(t, vec, 8)
	})

	t.Run("openai keeps configured model", func(t *testing.T) {
		client, err := NewEmbeddingClient(ctx, &config.Config{
			EmbeddingProvider:       config.EmbeddingProviderOpenAI,
			EmbeddingProviderAPIKey: "sk-test",
			EmbeddingModel:          "text-embedding-3-large",
		})
		require.NoError(t, err)
		assert.Equal(t, "text-embedding-3-large", client.Model())
	})

	t.Run("compatible needs base url", func(t *testing.T) {
		_, err := NewEmbeddingClient(ctx, &config.Config{EmbeddingProvider: config.EmbeddingProviderOpenAICompatible})
		assert.ErrorIs(t, err, embeddings.ErrMissingBaseURL)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewEmbeddingClient(ctx, &config.Config{EmbeddingProvider: "bedrock"})
		assert.ErrorIs(t, err, ErrUnsupportedEmbeddingProvider)
	})
}
