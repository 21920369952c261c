package embeddings

import (
	"context"
	"crypto/sha256"
	"strings"

	"github.com/formbricks/precedent/pkg/vecmath"
)

// MockModel is the model name reported by MockClient.
const MockModel = "mock-sha256"

// MockClient generates deterministic unit vectors from a hash of the input text.
// Identical texts always map to the same vector; it needs no network and is used by
// tests and local development.
type MockClient struct {
	dimensions int
}

// NewMockClient creates a mock client producing vectors of the given dimension.
func NewMockClient(dimensions int) *MockClient {
	if dimensions <= 0 {
		dimensions = 64
	}

	return &MockClient{dimensions: dimensions}
}

// Model returns MockModel.
func (c *MockClient) Model() string {
	return MockModel
}

// CreateEmbedding returns the deterministic vector for input.
func (c *MockClient) CreateEmbedding(_ context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	hash := sha256.Sum256([]byte(input))
	vec := make([]float32, c.dimensions)

	for i := range vec {
		// Bytes are reused cyclically, mapped to [-1, 1].
		vec[i] = float32(hash[i%len(hash)])/127.5 - 1
	}

	vecmath.NormalizeL2(vec)

	return vec, nil
}
