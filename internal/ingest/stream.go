package ingest

import (
	"context"
	"io"

	"github.com/formbricks/precedent/internal/csvstream"
	"github.com/formbricks/precedent/internal/models"
)

const streamBuffer = 16

// Stream runs the pipeline in a goroutine and delivers its progress events on the returned
// channel, which is closed after the terminal event. The consumer must drain the channel.
func (p *Pipeline) Stream(ctx context.Context, src RecordSource) <-chan models.ProgressEvent {
	events := make(chan models.ProgressEvent, streamBuffer)

	go func() {
		defer close(events)

		//nolint:errcheck // the error is delivered as the terminal event
		p.Run(ctx, src, func(ev models.ProgressEvent) {
			events <- ev
		})
	}()

	return events
}

// StreamUpload detects the encoding of body and streams the ingestion of it under sourceName.
// Only encoding detection errors are returned directly; everything later arrives as the
// terminal event.
func (p *Pipeline) StreamUpload(
	ctx context.Context, body io.Reader, hint csvstream.Encoding, sourceName string,
) (<-chan models.ProgressEvent, error) {
	src, err := p.Open(body, hint)
	if err != nil {
		return nil, err
	}

	return p.WithSourceName(sourceName).Stream(ctx, src), nil
}

// WithSourceName returns a copy of p that labels its runs with name. An empty name keeps
// the configured one.
func (p *Pipeline) WithSourceName(name string) *Pipeline {
	if name == "" {
		return p
	}

	cp := *p
	cp.opts.SourceName = name

	return &cp
}
