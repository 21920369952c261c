package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/pkg/vecmath"
)

func TestMockClient(t *testing.T) {
	c := NewMockClient(16)
	ctx := context.Background()

	a1, err := c.CreateEmbedding(ctx, "丁寧に説明した")
	require.NoError(t, err)
	a2, err := c.CreateEmbedding(ctx, "  丁寧に説明した ")
	require.NoError(t, err)
	b, err := c.CreateEmbedding(ctx, "something else")
	require.NoError(t, err)

	assert.Len(t, a1, 16)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
	assert.InDelta(t, 1.0, vecmath.Norm(a1), 1e-5)

	_, err = c.CreateEmbedding(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, MockModel, c.Model())
}

func TestCompatibleClient(t *testing.T) {
	t.Run("requires base url", func(t *testing.T) {
		_, err := NewCompatibleClient(CompatibleOptions{})
		assert.ErrorIs(t, err, ErrMissingBaseURL)
	})

	t.Run("sends model and returns the vector", func(t *testing.T) {
		var got map[string]any

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.5,-0.25,1]}],"model":"local"}`))
		}))
		defer srv.Close()

		c, err := NewCompatibleClient(CompatibleOptions{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "local"})
		require.NoError(t, err)

		vec, err := c.CreateEmbedding(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, -0.25, 1}, vec)
		assert.Equal(t, "local", got["model"])
		assert.Equal(t, "local", c.Model())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls := 0

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()

		c, err := NewCompatibleClient(CompatibleOptions{BaseURL: srv.URL, Model: "local"})
		require.NoError(t, err)

		_, err = c.CreateEmbedding(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad input")
		assert.Equal(t, 1, calls)
	})

	t.Run("empty data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
		}))
		defer srv.Close()

		c, err := NewCompatibleClient(CompatibleOptions{BaseURL: srv.URL, Model: "local"})
		require.NoError(t, err)

		_, err = c.CreateEmbedding(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrNoEmbeddingInResponse)
	})
}
