// Package embeddings provides the OpenAI-compatible embedding client (self-hosted or proxy
// endpoints speaking the /v1/embeddings protocol) and a deterministic mock for tests.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("embeddings: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the server returns no vector.
	ErrNoEmbeddingInResponse = errors.New("embeddings: no embedding in response")
	// ErrMissingBaseURL is returned when no endpoint is configured.
	ErrMissingBaseURL = errors.New("embeddings: base URL is required")
)

// CompatibleOptions configures a CompatibleClient.
type CompatibleOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	RetryMax   int
}

// CompatibleClient calls any server implementing the OpenAI embeddings endpoint.
// Requests go through a retrying HTTP client so transient 5xx and connection errors
// are retried with backoff before the item is marked failed.
type CompatibleClient struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewCompatibleClient creates a client for opts.BaseURL.
func NewCompatibleClient(opts CompatibleOptions) (*CompatibleClient, error) {
	if opts.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	cfg.HTTPClient = retryClient.StandardClient()

	return &CompatibleClient{
		client:     openai.NewClientWithConfig(cfg),
		model:      opts.Model,
		dimensions: opts.Dimensions,
	}, nil
}

// Model returns the model name sent with each request.
func (c *CompatibleClient) Model() string {
	return c.model
}

// CreateEmbedding returns the embedding vector for input.
func (c *CompatibleClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{input},
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("compatible embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	return resp.Data[0].Embedding, nil
}
