// Package googleai provides a thin wrapper around the Google Gen AI SDK for embeddings (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is negative or too large.
	ErrInvalidDims = errors.New("googleai: invalid embedding dimensions")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultModel = "gemini-embedding-001"
	// TaskSemanticSimilarity tunes vectors for comparing texts with each other.
	TaskSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// Client calls the Gemini embeddings API via the Google Gen AI SDK.
type Client struct {
	models     *genai.Models
	model      string
	dimensions int
	taskType   string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested output dimensionality. Zero keeps the model default.
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTaskType sets the task hint sent with every request. Answers, situations and
// questions are compared with each other, so the default is TaskSemanticSimilarity.
func WithTaskType(taskType string) ClientOption {
	return func(c *Client) {
		c.taskType = taskType
	}
}

// NewClient creates a Gemini embeddings client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		models:   genaiClient.Models,
		model:    defaultModel,
		taskType: TaskSemanticSimilarity,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.dimensions < 0 || client.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	return client, nil
}

// Model returns the embedding model name.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) embedConfig() *genai.EmbedContentConfig {
	cfg := &genai.EmbedContentConfig{TaskType: c.taskType}

	if c.dimensions > 0 {
		//nolint:gosec // G115: bounded by math.MaxInt32 in NewClient
		dim := int32(c.dimensions)
		cfg.OutputDimensionality = &dim
	}

	return cfg
}

// CreateEmbedding returns the embedding vector for input using the configured model.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}

	resp, err := c.models.EmbedContent(ctx, c.model, contents, c.embedConfig())
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, ErrNoEmbeddingInResponse
	}

	emb := resp.Embeddings[0].Values
	if c.dimensions > 0 && len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	copy(out, emb)

	return out, nil
}
