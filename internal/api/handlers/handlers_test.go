package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbricks/precedent/internal/csvstream"
	"github.com/formbricks/precedent/internal/huberrors"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/service"
)

type mockStreamer struct {
	streamFunc func(ctx context.Context, body io.Reader, hint csvstream.Encoding, sourceName string) (
		<-chan models.ProgressEvent, error)
}

func (m *mockStreamer) StreamUpload(
	ctx context.Context, body io.Reader, hint csvstream.Encoding, sourceName string,
) (<-chan models.ProgressEvent, error) {
	return m.streamFunc(ctx, body, hint, sourceName)
}

func eventsChan(events ...models.ProgressEvent) <-chan models.ProgressEvent {
	ch := make(chan models.ProgressEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}

	close(ch)

	return ch
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)

	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestIngestionHandler_Create(t *testing.T) {
	t.Run("streams ndjson progress events", func(t *testing.T) {
		var (
			gotHint csvstream.Encoding
			gotName string
		)

		handler := NewIngestionHandler(&mockStreamer{
			streamFunc: func(_ context.Context, _ io.Reader, hint csvstream.Encoding, name string) (
				<-chan models.ProgressEvent, error,
			) {
				gotHint, gotName = hint, name

				return eventsChan(
					models.ProgressEvent{Status: models.ProgressProcessing, Processed: 1000},
					models.ProgressEvent{Status: models.ProgressCompleted, Processed: 1200, Duplicates: 3},
				), nil
			},
		}, 0)

		req := httptest.NewRequest(http.MethodPost, "/v1/ingestions?encoding=sjis&source_name=export.csv",
			strings.NewReader("case_id,response_id\n"))
		rec := httptest.NewRecorder()

		handler.Create(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ndjsonContentType, rec.Header().Get("Content-Type"))
		assert.Equal(t, csvstream.EncodingShiftJIS, gotHint)
		assert.Equal(t, "export.csv", gotName)

		var events []models.ProgressEvent

		sc := bufio.NewScanner(rec.Body)
		for sc.Scan() {
			var ev models.ProgressEvent
			require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
			events = append(events, ev)
		}

		require.Len(t, events, 2)
		assert.Equal(t, models.ProgressCompleted, events[1].Status)
		assert.Equal(t, 3, events[1].Duplicates)
	})

	t.Run("unknown encoding returns 400", func(t *testing.T) {
		handler := NewIngestionHandler(&mockStreamer{}, 0)

		rec := httptest.NewRecorder()
		handler.Create(rec, httptest.NewRequest(http.MethodPost, "/v1/ingestions?encoding=latin-1", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body during sniffing returns 413", func(t *testing.T) {
		handler := NewIngestionHandler(&mockStreamer{
			streamFunc: func(_ context.Context, body io.Reader, _ csvstream.Encoding, _ string) (
				<-chan models.ProgressEvent, error,
			) {
				_, err := io.ReadAll(body)

				return nil, err
			},
		}, 4)

		rec := httptest.NewRecorder()
		handler.Create(rec, httptest.NewRequest(http.MethodPost, "/v1/ingestions", strings.NewReader("case_id,response_id\n")))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "request body exceeds the limit of 4 bytes")
	})

	t.Run("oversized body after streaming started reaches the pipeline as limit error", func(t *testing.T) {
		var readErr error

		handler := NewIngestionHandler(&mockStreamer{
			streamFunc: func(_ context.Context, body io.Reader, _ csvstream.Encoding, _ string) (
				<-chan models.ProgressEvent, error,
			) {
				_, readErr = io.ReadAll(body)

				return eventsChan(models.ProgressEvent{Status: models.ProgressError, Message: readErr.Error()}), nil
			},
		}, 4)

		rec := httptest.NewRecorder()
		handler.Create(rec, httptest.NewRequest(http.MethodPost, "/v1/ingestions", strings.NewReader("case_id,response_id\n")))

		require.ErrorIs(t, readErr, huberrors.ErrLimitExceeded)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "exceeds the limit of 4 bytes")
	})
}

type mockQueueProcessor struct {
	gotLimit int
	result   models.BatchResult
	err      error
}

func (m *mockQueueProcessor) ProcessBatch(_ context.Context, limit int) (models.BatchResult, error) {
	m.gotLimit = limit

	return m.result, m.err
}

func TestEmbeddingQueueHandler_Process(t *testing.T) {
	t.Run("empty body uses default limit", func(t *testing.T) {
		proc := &mockQueueProcessor{result: models.BatchResult{Processed: 5, Succeeded: 4, Failed: 1}}
		handler := NewEmbeddingQueueHandler(proc, 100)

		rec := httptest.NewRecorder()
		handler.Process(rec, httptest.NewRequest(http.MethodPost, "/v1/embedding-queue/process", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, proc.gotLimit)

		var got models.BatchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, proc.result, got)
	})

	t.Run("explicit limit", func(t *testing.T) {
		proc := &mockQueueProcessor{}
		handler := NewEmbeddingQueueHandler(proc, 100)

		rec := httptest.NewRecorder()
		handler.Process(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":5}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, proc.gotLimit)
	})

	t.Run("limit out of range", func(t *testing.T) {
		handler := NewEmbeddingQueueHandler(&mockQueueProcessor{}, 100)

		rec := httptest.NewRecorder()
		handler.Process(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit":5000}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "limit")
	})

	t.Run("storage failure is generic 500", func(t *testing.T) {
		handler := NewEmbeddingQueueHandler(&mockQueueProcessor{err: errors.New("pq: connection reset")}, 100)

		rec := httptest.NewRecorder()
		handler.Process(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("no provider returns 503", func(t *testing.T) {
		handler := NewEmbeddingQueueHandler(nil, 100)

		rec := httptest.NewRecorder()
		handler.Process(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

type mockTypicalExamples struct {
	buildFunc func(ctx context.Context, key models.BucketKey, k int) ([]models.TypicalExample, error)
	listFunc  func(ctx context.Context, caseID, question string) ([]models.TypicalExample, error)
}

func (m *mockTypicalExamples) Build(ctx context.Context, key models.BucketKey, k int) ([]models.TypicalExample, error) {
	return m.buildFunc(ctx, key, k)
}

func (m *mockTypicalExamples) List(ctx context.Context, caseID, question string) ([]models.TypicalExample, error) {
	return m.listFunc(ctx, caseID, question)
}

func TestTypicalExamplesHandler_Build(t *testing.T) {
	t.Run("builds bucket from path and body", func(t *testing.T) {
		var gotKey models.BucketKey

		handler := NewTypicalExamplesHandler(&mockTypicalExamples{
			buildFunc: func(_ context.Context, key models.BucketKey, k int) ([]models.TypicalExample, error) {
				gotKey = key

				assert.Equal(t, 3, k)

				return []models.TypicalExample{{CaseID: key.CaseID, ResponseID: "R001"}}, nil
			},
		})

		body := `{"question":"q2","score_index":1,"bucket_low":2,"bucket_high":3,"k":3}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Build(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, models.BucketKey{CaseID: "C001", Question: "q2", ScoreIndex: 1, Low: 2, High: 3}, gotKey)
		assert.Zero(t, handler.buckets.size())
	})

	t.Run("invalid question key", func(t *testing.T) {
		handler := NewTypicalExamplesHandler(&mockTypicalExamples{})

		body := `{"question":"q10","score_index":0,"bucket_low":1,"bucket_high":2}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Build(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "question")
	})

	t.Run("inverted bucket bounds", func(t *testing.T) {
		handler := NewTypicalExamplesHandler(&mockTypicalExamples{})

		body := `{"question":"q1","score_index":0,"bucket_low":3,"bucket_high":2}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Build(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("same bucket rebuilds never overlap", func(t *testing.T) {
		var (
			mu      sync.Mutex
			running int
			peak    int
		)

		handler := NewTypicalExamplesHandler(&mockTypicalExamples{
			buildFunc: func(context.Context, models.BucketKey, int) ([]models.TypicalExample, error) {
				mu.Lock()
				running++
				peak = max(peak, running)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()

				return nil, nil
			},
		})

		body := `{"question":"q1","score_index":0,"bucket_low":1,"bucket_high":2}`

		var wg sync.WaitGroup

		for range 4 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "caseID", "C001")
				handler.Build(httptest.NewRecorder(), req)
			}()
		}

		wg.Wait()

		assert.Equal(t, 1, peak)
		assert.Zero(t, handler.buckets.size())
	})
}

func TestTypicalExamplesHandler_List(t *testing.T) {
	handler := NewTypicalExamplesHandler(&mockTypicalExamples{
		listFunc: func(_ context.Context, caseID, question string) ([]models.TypicalExample, error) {
			return []models.TypicalExample{{CaseID: caseID, Question: question}}, nil
		},
	})

	t.Run("question is required", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "caseID", "C001"))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lists by question", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.List(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/?question=q3", nil), "caseID", "C001"))

		require.Equal(t, http.StatusOK, rec.Code)

		var got TypicalExamplesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Data, 1)
		assert.Equal(t, "q3", got.Data[0].Question)
	})
}

type mockRetrieval struct {
	precedentsFunc func(ctx context.Context, caseID string, target [models.MainScoreCount]float64, k int) (
		[]models.ScoredResponse, error)
	casesFunc func(ctx context.Context, text string, k int) ([]models.SimilarCase, error)
}

func (m *mockRetrieval) ScorePrecedents(
	ctx context.Context, caseID string, target [models.MainScoreCount]float64, k int,
) ([]models.ScoredResponse, error) {
	return m.precedentsFunc(ctx, caseID, target, k)
}

func (m *mockRetrieval) SimilarCases(ctx context.Context, text string, k int) ([]models.SimilarCase, error) {
	return m.casesFunc(ctx, text, k)
}

func (m *mockRetrieval) SimilarQuestions(context.Context, string, int) ([]models.SimilarQuestion, error) {
	return nil, nil
}

func TestRetrievalHandler_Precedents(t *testing.T) {
	handler := NewRetrievalHandler(&mockRetrieval{
		precedentsFunc: func(_ context.Context, caseID string, target [models.MainScoreCount]float64, k int) (
			[]models.ScoredResponse, error,
		) {
			return []models.ScoredResponse{{CaseID: caseID, ResponseID: "R001", Scores: target, Distance: 0}}, nil
		},
	}, false)

	t.Run("six scores required", func(t *testing.T) {
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"scores":[1,2,3]}`)), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Precedents(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("returns ranked results", func(t *testing.T) {
		body := bytes.NewBufferString(`{"scores":[1,2,3,4,3,2],"limit":3}`)
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", body), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Precedents(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var got ResultsResponse[models.ScoredResponse]
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Results, 1)
		assert.Equal(t, [models.MainScoreCount]float64{1, 2, 3, 4, 3, 2}, got.Results[0].Scores)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		body := strings.NewReader(`{"scores":[1,2,3,4,3,2],"topK":3}`)
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/", body), "caseID", "C001")
		rec := httptest.NewRecorder()

		handler.Precedents(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRetrievalHandler_SimilarCases(t *testing.T) {
	t.Run("embeddings disabled", func(t *testing.T) {
		handler := NewRetrievalHandler(&mockRetrieval{}, false)

		rec := httptest.NewRecorder()
		handler.SimilarCases(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"late delivery"}`)))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("blank text", func(t *testing.T) {
		handler := NewRetrievalHandler(&mockRetrieval{
			casesFunc: func(context.Context, string, int) ([]models.SimilarCase, error) {
				return nil, service.ErrEmptyQuery
			},
		}, true)

		rec := httptest.NewRecorder()
		handler.SimilarCases(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"   "}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success", func(t *testing.T) {
		handler := NewRetrievalHandler(&mockRetrieval{
			casesFunc: func(_ context.Context, _ string, k int) ([]models.SimilarCase, error) {
				assert.Equal(t, 2, k)

				return []models.SimilarCase{{CaseID: "C002", Distance: 0.1}}, nil
			},
		}, true)

		rec := httptest.NewRecorder()
		handler.SimilarCases(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"late delivery","limit":2}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"case_id":"C002"`)
	})
}

type mockCasesStore struct {
	deleteErr error
}

func (m *mockCasesStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	if id == "missing" {
		return nil, huberrors.NewNotFoundError("case", "case not found")
	}

	return &models.Case{ID: id, Name: "Case"}, nil
}

func (m *mockCasesStore) DeleteCase(_ context.Context, id string) (*models.DeleteCaseResult, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}

	return &models.DeleteCaseResult{CaseID: id, Responses: 7}, nil
}

func TestCasesHandler(t *testing.T) {
	t.Run("get missing case is 404", func(t *testing.T) {
		handler := NewCasesHandler(&mockCasesStore{})

		rec := httptest.NewRecorder()
		handler.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "caseID", "missing"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete reports counts", func(t *testing.T) {
		handler := NewCasesHandler(&mockCasesStore{})

		rec := httptest.NewRecorder()
		handler.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "caseID", "C001"))

		require.Equal(t, http.StatusOK, rec.Code)

		var got models.DeleteCaseResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, int64(7), got.Responses)
	})

	t.Run("delete of unknown case is 404", func(t *testing.T) {
		handler := NewCasesHandler(&mockCasesStore{deleteErr: huberrors.NewNotFoundError("case", "case not found")})

		rec := httptest.NewRecorder()
		handler.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "caseID", "C404"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(pingerFunc(func(context.Context) error { return errors.New("down") })).
		Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestKeyedMutex_CanceledWaiter(t *testing.T) {
	m := newKeyedMutex()

	unlock, err := m.Lock(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Lock(ctx, "b")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.size())

	unlock()
	unlock()
	assert.Zero(t, m.size())
}
