package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/internal/api/handlers"
	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
)

func TestSetupMetrics(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		mp, handler, metrics, err := setupMetrics(context.Background(), &config.Config{})
		require.NoError(t, err)
		assert.Nil(t, mp)
		assert.Nil(t, handler)
		assert.Nil(t, metrics)
	})

	t.Run("prometheus by default", func(t *testing.T) {
		mp, handler, metrics, err := setupMetrics(context.Background(), &config.Config{MetricsEnabled: true})
		require.NoError(t, err)

		t.Cleanup(func() { _ = observability.ShutdownMeterProvider(context.Background(), mp) })

		assert.NotNil(t, handler)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.API)
	})
}

func TestNewRateLimiter(t *testing.T) {
	assert.Nil(t, newRateLimiter(&config.Config{}))

	limiter := newRateLimiter(&config.Config{EmbeddingRateLimit: 5, EmbeddingRateBurst: 2})
	require.NotNil(t, limiter)
	assert.Equal(t, 2, limiter.Burst())
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestNewHTTPServer_Routing(t *testing.T) {
	_, metricsHandler, metrics, err := setupMetrics(context.Background(), &config.Config{MetricsEnabled: true})
	require.NoError(t, err)

	cfg := &config.Config{Port: "0", APIKey: "secret"}
	server := newHTTPServer(cfg, metrics.API, nil, nil, routes{
		health: handlers.NewHealthHandler(pingerFunc(func(context.Context) error {
			return errors.New("connection refused")
		})),
		ingestions:      handlers.NewIngestionHandler(nil, 1024),
		embeddingQueue:  handlers.NewEmbeddingQueueHandler(nil, 100),
		cases:           handlers.NewCasesHandler(nil),
		typicalExamples: handlers.NewTypicalExamplesHandler(nil),
		retrieval:       handlers.NewRetrievalHandler(nil, false),
		metrics:         metricsHandler,
	})

	tests := []struct {
		name   string
		method string
		path   string
		auth   bool
		want   int
	}{
		{"health is public", http.MethodGet, "/health", false, http.StatusOK},
		{"ready reports the database", http.MethodGet, "/ready", false, http.StatusServiceUnavailable},
		{"metrics are public", http.MethodGet, "/metrics", false, http.StatusOK},
		{"api needs a key", http.MethodGet, "/v1/cases/C001", false, http.StatusUnauthorized},
		{"queue processing without provider", http.MethodPost, "/v1/embedding-queue/process", true, http.StatusServiceUnavailable},
		{"unknown route", http.MethodGet, "/v1/nothing", true, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer secret")
			}

			rec := httptest.NewRecorder()
			server.Handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

type fakeQueueCounter struct {
	counts map[models.QueueStatus]int
}

func (f fakeQueueCounter) CountByStatus(context.Context) (map[models.QueueStatus]int, error) {
	return f.counts, nil
}

type depthRecorder struct {
	observability.EmbeddingMetrics

	mu              sync.Mutex
	pending, failed int
	calls           int
}

func (d *depthRecorder) SetQueueDepth(pending, failed int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending, d.failed = pending, failed
	d.calls++
}

func TestRunQueueDepthPoller_UpdatesImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	rec := &depthRecorder{}
	done := make(chan struct{})

	go func() {
		runQueueDepthPoller(ctx, fakeQueueCounter{counts: map[models.QueueStatus]int{
			models.QueueStatusPending: 7,
			models.QueueStatusFailed:  2,
			models.QueueStatusDone:    40,
		}}, rec)
		close(done)
	}()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		return rec.calls > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, 7, rec.pending)
	assert.Equal(t, 2, rec.failed)
}
