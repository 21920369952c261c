// Package ingest maps decoded survey export records to cases and responses and drives
// them into storage in bounded, deduplicated batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/formbricks/precedent/internal/csvstream"
	"github.com/formbricks/precedent/internal/huberrors"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
)

const tracerName = "github.com/formbricks/precedent/internal/ingest"

// Defaults for Options.
const (
	DefaultBatchSize      = 1000
	DefaultMaxInvalidRows = 10
	DefaultMaxHeaderSkip  = 4
	DefaultFlushTimeout   = 30 * time.Second
)

// Store is the write side of cases and responses.
type Store interface {
	UpsertCase(ctx context.Context, c *models.Case) error
	// UpsertResponses must be given rows with distinct keys.
	UpsertResponses(ctx context.Context, rows []models.Response) error
}

// QueueWriter accepts embedding work created by ingestion.
type QueueWriter interface {
	Enqueue(ctx context.Context, items []models.EmbeddingQueueItem) (int, error)
}

// DrainKicker schedules the embedding worker after new queue items were written.
type DrainKicker interface {
	KickEmbeddingDrain(ctx context.Context) error
}

// RecordSource yields logical CSV records. *csvstream.Reader implements it.
type RecordSource interface {
	Next() (string, error)
	Line() int
}

// Options bounds an ingestion run.
type Options struct {
	BatchSize int
	// MaxInvalidRows aborts the run once this many rows were rejected.
	MaxInvalidRows int
	// MaxHeaderSkip is how many leading non-header records are tolerated. Zero requires
	// the header on the first record; negative values select the default.
	MaxHeaderSkip int
	// FlushTimeout bounds a single batch write, including the final flush after cancellation.
	FlushTimeout time.Duration
	// SourceName identifies the upload in logs.
	SourceName string
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:      DefaultBatchSize,
		MaxInvalidRows: DefaultMaxInvalidRows,
		MaxHeaderSkip:  DefaultMaxHeaderSkip,
		FlushTimeout:   DefaultFlushTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}

	if o.MaxInvalidRows <= 0 {
		o.MaxInvalidRows = DefaultMaxInvalidRows
	}

	if o.MaxHeaderSkip < 0 {
		o.MaxHeaderSkip = DefaultMaxHeaderSkip
	}

	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}

	return o
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID uuid.UUID `json:"run_id"`
	// Processed counts valid data rows consumed, before deduplication.
	Processed int `json:"processed"`
	// Stored counts rows sent to storage after deduplication.
	Stored     int                  `json:"stored"`
	Duplicates int                  `json:"duplicates"`
	Invalid    int                  `json:"invalid"`
	Cases      int                  `json:"cases"`
	Batches    int                  `json:"batches"`
	Enqueued   int                  `json:"enqueued"`
	HeaderLine int                  `json:"header_line"`
	RowErrors  []huberrors.RowError `json:"-"`
	Duration   time.Duration        `json:"duration"`
}

// PipelineParams configures a Pipeline. Queue, Kicker, Metrics, Tracer and Logger may be nil.
type PipelineParams struct {
	Store   Store
	Queue   QueueWriter
	Kicker  DrainKicker
	Schema  Schema
	Options Options
	Metrics observability.IngestMetrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Pipeline ingests survey exports. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	store   Store
	queue   QueueWriter
	kicker  DrainKicker
	schema  Schema
	opts    Options
	metrics observability.IngestMetrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(p PipelineParams) *Pipeline {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Pipeline{
		store:   p.Store,
		queue:   p.Queue,
		kicker:  p.Kicker,
		schema:  p.Schema,
		opts:    p.Options.withDefaults(),
		metrics: p.Metrics,
		tracer:  tracer,
		logger:  logger,
	}
}

// Schema returns the column mapping the pipeline resolves headers with.
func (p *Pipeline) Schema() Schema {
	return p.schema
}

// Open detects the encoding of r using the schema's header names and returns a record source.
func (p *Pipeline) Open(r io.Reader, hint csvstream.Encoding) (*csvstream.Reader, error) {
	reader, err := csvstream.Open(r, hint, p.schema.Tokens())
	if err != nil {
		return nil, fmt.Errorf("open csv stream: %w", err)
	}

	return reader, nil
}

// Run consumes src to the end. emit receives a processing event after every flushed batch
// and exactly one terminal event (completed or error) before Run returns; it may be nil.
//
// When ctx is done mid-file, the rows accumulated so far are still flushed (bounded by
// FlushTimeout) before Run returns the context error.
func (p *Pipeline) Run(ctx context.Context, src RecordSource, emit func(models.ProgressEvent)) (*Summary, error) {
	if emit == nil {
		emit = func(models.ProgressEvent) {}
	}

	start := time.Now()
	r := &run{
		p:       p,
		src:     src,
		emit:    emit,
		cases:   make(map[string]struct{}),
		summary: &Summary{RunID: uuid.New()},
	}

	err := r.consume(ctx)
	r.summary.Duration = time.Since(start)

	if err != nil {
		outcome := outcomeOf(err)
		p.logger.ErrorContext(ctx, "ingestion failed",
			"source", p.opts.SourceName,
			"run_id", r.summary.RunID,
			"outcome", outcome,
			"processed", r.summary.Processed,
			"stored", r.summary.Stored,
			"error", err,
		)

		if p.metrics != nil {
			p.metrics.RecordRun(ctx, outcome, r.summary.Duration)
		}

		emit(errorEvent(err, r.summary))

		return r.summary, err
	}

	p.logger.InfoContext(ctx, "ingestion completed",
		"source", p.opts.SourceName,
		"run_id", r.summary.RunID,
		"processed", r.summary.Processed,
		"stored", r.summary.Stored,
		"duplicates", r.summary.Duplicates,
		"invalid", r.summary.Invalid,
		"cases", r.summary.Cases,
		"enqueued", r.summary.Enqueued,
		"duration", r.summary.Duration,
	)

	if p.metrics != nil {
		p.metrics.RecordRun(ctx, outcomeCompleted, r.summary.Duration)
	}

	if r.summary.Enqueued > 0 && p.kicker != nil {
		if err := p.kicker.KickEmbeddingDrain(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to schedule embedding drain", "run_id", r.summary.RunID, "error", err)
		}
	}

	emit(models.ProgressEvent{
		Status:     models.ProgressCompleted,
		Processed:  r.summary.Processed,
		Duplicates: r.summary.Duplicates,
		Errors:     rowErrorMessages(r.summary.RowErrors),
	})

	return r.summary, nil
}

// run is the state of one ingestion.
type run struct {
	p    *Pipeline
	src  RecordSource
	emit func(models.ProgressEvent)

	header      *header
	skipped     int
	bestMissing []string

	cases       map[string]struct{}
	batch       []models.Response
	batchOffset int
	pending     []models.EmbeddingQueueItem

	summary *Summary
}

func (r *run) consume(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return r.abort(ctx, err)
		}

		record, err := r.src.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return r.abort(ctx, fmt.Errorf("read record %d: %w", r.src.Line()+1, err))
		}

		fields := csvstream.SplitFields(record)

		if r.header == nil {
			if err := r.resolveHeader(fields); err != nil {
				return err
			}

			continue
		}

		if isBlank(fields) {
			continue
		}

		if err := r.add(ctx, fields); err != nil {
			return err
		}
	}

	if r.header == nil {
		missing := r.bestMissing
		if missing == nil {
			missing = r.p.schema.RequiredHeaders()
		}

		return huberrors.NewHeaderError(missing, r.skipped)
	}

	return r.flush(ctx)
}

func (r *run) resolveHeader(fields []string) error {
	h, missing := r.p.schema.matchHeader(fields)
	if h != nil {
		r.header = h
		r.summary.HeaderLine = r.src.Line()

		return nil
	}

	if r.bestMissing == nil || len(missing) < len(r.bestMissing) {
		r.bestMissing = missing
	}

	r.skipped++
	if r.skipped > r.p.opts.MaxHeaderSkip {
		return huberrors.NewHeaderError(r.bestMissing, r.skipped)
	}

	return nil
}

func (r *run) add(ctx context.Context, fields []string) error {
	row, reject := r.header.toRow(fields, r.p.schema)
	if reject != "" {
		r.summary.Invalid++
		r.summary.RowErrors = append(r.summary.RowErrors, huberrors.RowError{Line: r.src.Line(), Message: reject})

		if r.p.metrics != nil {
			r.p.metrics.RecordInvalidRow(ctx)
		}

		if r.summary.Invalid >= r.p.opts.MaxInvalidRows {
			return huberrors.NewTooManyInvalidRowsError(r.summary.RowErrors)
		}

		return nil
	}

	if _, seen := r.cases[row.response.CaseID]; !seen {
		if err := r.upsertCase(ctx, row); err != nil {
			if ctx.Err() != nil {
				return r.abort(ctx, ctx.Err())
			}

			return err
		}
	}

	r.batch = append(r.batch, row.response)
	r.summary.Processed++

	if len(r.batch) >= r.p.opts.BatchSize {
		return r.flush(ctx)
	}

	return nil
}

// upsertCase writes a case the first time it is seen, before any of its responses is flushed.
// An empty name leaves a stored name untouched.
func (r *run) upsertCase(ctx context.Context, row row) error {
	c := &models.Case{ID: row.response.CaseID, Name: row.caseName}

	if row.situation != "" {
		situation := row.situation
		c.Situation = &situation
	}

	if err := r.p.store.UpsertCase(ctx, c); err != nil {
		return fmt.Errorf("upsert case %q: %w", c.ID, err)
	}

	r.cases[c.ID] = struct{}{}
	r.summary.Cases++

	if c.Situation != nil {
		r.pending = append(r.pending, models.NewCaseQueueItem(c.ID, *c.Situation))
	}

	for i, pos := range r.header.answers {
		if pos >= 0 {
			r.pending = append(r.pending, models.NewQuestionQueueItem(c.ID, models.QuestionKey(i), r.header.labels[i]))
		}
	}

	return nil
}

// flush deduplicates and writes the current batch, then enqueues its embedding work.
// The write runs on a context detached from ctx's cancellation so that a batch is
// never left half-processed; FlushTimeout bounds it instead.
func (r *run) flush(ctx context.Context) error {
	if len(r.batch) == 0 && len(r.pending) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.p.opts.FlushTimeout)
	defer cancel()

	ctx, span := r.p.tracer.Start(ctx, "ingest.flush", trace.WithAttributes(
		attribute.Int("ingest.batch_offset", r.batchOffset),
		attribute.Int("ingest.batch_size", len(r.batch)),
	))
	defer span.End()

	start := time.Now()

	rows, dropped := DedupeResponses(r.batch)
	if dropped > 0 {
		r.p.logger.WarnContext(ctx, "dropped duplicate responses in batch",
			"source", r.p.opts.SourceName,
			"run_id", r.summary.RunID,
			"batch_offset", r.batchOffset,
			"dropped", dropped,
		)
	}

	if len(rows) > 0 {
		if err := r.p.store.UpsertResponses(ctx, rows); err != nil {
			r.failFlush(ctx, span, start, err)

			return fmt.Errorf("upsert responses (source %q, batch offset %d): %w", r.p.opts.SourceName, r.batchOffset, err)
		}
	}

	items := append(r.pending, responseItems(rows)...)
	if r.p.queue != nil && len(items) > 0 {
		n, err := r.p.queue.Enqueue(ctx, items)
		if err != nil {
			r.failFlush(ctx, span, start, err)

			return fmt.Errorf("enqueue embeddings (source %q, batch offset %d): %w", r.p.opts.SourceName, r.batchOffset, err)
		}

		r.summary.Enqueued += n
	}

	r.summary.Stored += len(rows)
	r.summary.Duplicates += dropped
	r.summary.Batches++
	r.batchOffset += len(r.batch)
	r.batch = r.batch[:0]
	r.pending = nil

	if r.p.metrics != nil {
		r.p.metrics.RecordFlush(ctx, len(rows), dropped, time.Since(start), "success")
	}

	r.emit(models.ProgressEvent{
		Status:     models.ProgressProcessing,
		Processed:  r.summary.Processed,
		Duplicates: r.summary.Duplicates,
	})

	return nil
}

func (r *run) failFlush(ctx context.Context, span trace.Span, start time.Time, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "flush failed")

	if r.p.metrics != nil {
		r.p.metrics.RecordFlush(ctx, 0, 0, time.Since(start), "error")
	}
}

// abort flushes what has been accumulated and reports cause. Rows read before a
// cancellation or a failed read are kept.
func (r *run) abort(ctx context.Context, cause error) error {
	if err := r.flush(ctx); err != nil {
		return errors.Join(cause, err)
	}

	return fmt.Errorf("ingestion interrupted after %d rows: %w", r.summary.Processed, cause)
}

const (
	outcomeCompleted     = "completed"
	outcomeHeaderError   = "header_error"
	outcomeInvalidRows   = "invalid_rows"
	outcomeTimeout       = "timeout"
	outcomeCanceled      = "canceled"
	outcomeLimitExceeded = "limit_exceeded"
	outcomeStorageError  = "storage_error"
)

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, huberrors.ErrHeader):
		return outcomeHeaderError
	case errors.Is(err, huberrors.ErrTooManyInvalidRows):
		return outcomeInvalidRows
	case errors.Is(err, huberrors.ErrLimitExceeded):
		return outcomeLimitExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	default:
		return outcomeStorageError
	}
}

// errorEvent renders a terminal error for the uploader. Storage and read failures are
// reported generically; details stay in the server log.
func errorEvent(err error, s *Summary) models.ProgressEvent {
	ev := models.ProgressEvent{
		Status:     models.ProgressError,
		Processed:  s.Processed,
		Duplicates: s.Duplicates,
	}

	var (
		headerErr *huberrors.HeaderError
		rowsErr   *huberrors.TooManyInvalidRowsError
		limitErr  *huberrors.LimitExceededError
	)

	switch {
	case errors.As(err, &headerErr):
		ev.Message = headerErr.Error()
	case errors.As(err, &rowsErr):
		ev.Message = rowsErr.Error()
		ev.Errors = rowsErr.Messages()
	case errors.As(err, &limitErr):
		ev.Message = fmt.Sprintf("%s; %d rows were stored", limitErr.Error(), s.Stored)
	case errors.Is(err, context.DeadlineExceeded):
		ev.Message = fmt.Sprintf("ingestion timed out; %d rows were stored before the deadline", s.Stored)
	case errors.Is(err, context.Canceled):
		ev.Message = fmt.Sprintf("ingestion canceled; %d rows were stored", s.Stored)
	default:
		ev.Message = "ingestion failed due to an internal error"
	}

	return ev
}

func rowErrorMessages(errs []huberrors.RowError) []string {
	if len(errs) == 0 {
		return nil
	}

	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}

	return out
}
