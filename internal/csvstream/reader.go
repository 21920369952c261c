package csvstream

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/transform"
)

// chunkSize is how much decoded text is scanned per read.
const chunkSize = 32 << 10

// Splitter splits decoded CSV text into logical records. It keeps quote state between
// Feed calls, so a chunk boundary may fall anywhere, including between the two quotes
// of an escaped "" pair. Records keep their raw quoting; SplitFields interprets it.
type Splitter struct {
	record       strings.Builder
	inQuotes     bool
	pendingQuote bool
}

// Feed scans chunk and calls emit for every record terminated inside it.
func (s *Splitter) Feed(chunk string, emit func(record string)) {
	start := 0

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if s.pendingQuote {
			s.pendingQuote = false
			if c == '"' {
				// Escaped literal quote; stay inside the quoted field.
				continue
			}

			s.inQuotes = false
		}

		switch c {
		case '"':
			if s.inQuotes {
				s.pendingQuote = true
			} else {
				s.inQuotes = true
			}
		case '\n':
			if s.inQuotes {
				continue
			}

			s.record.WriteString(chunk[start:i])
			emit(s.take())

			start = i + 1
		}
	}

	s.record.WriteString(chunk[start:])
}

// Flush returns the trailing partial record, if any. An unterminated quoted field is
// accepted as is rather than reported.
func (s *Splitter) Flush() (string, bool) {
	s.inQuotes = false
	s.pendingQuote = false

	if s.record.Len() == 0 {
		return "", false
	}

	rec := s.take()
	if rec == "" {
		return "", false
	}

	return rec, true
}

func (s *Splitter) take() string {
	rec := strings.TrimSuffix(s.record.String(), "\r")
	s.record.Reset()

	return rec
}

// Reader yields logical CSV records from a byte stream. It is single-pass: to restart,
// construct a new Reader over a fresh stream.
type Reader struct {
	src      io.Reader
	encoding Encoding
	splitter Splitter
	buf      []byte
	queue    []string
	eof      bool
	line     int
}

// NewReader decodes r with enc and splits it into records.
func NewReader(r io.Reader, enc Encoding) *Reader {
	if enc == EncodingAuto {
		enc = EncodingUTF8
	}

	return &Reader{
		src:      transform.NewReader(r, enc.decoder()),
		encoding: enc,
		buf:      make([]byte, chunkSize),
	}
}

// Open sniffs the encoding of r (unless hint is set) and returns a Reader over it.
func Open(r io.Reader, hint Encoding, tokens []string) (*Reader, error) {
	enc, replay, err := Detect(r, hint, tokens)
	if err != nil {
		return nil, err
	}

	return NewReader(replay, enc), nil
}

// Encoding reports the encoding the reader decodes with.
func (r *Reader) Encoding() Encoding {
	return r.encoding
}

// Line returns the 1-based ordinal of the record most recently returned by Next.
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (string, error) {
	for len(r.queue) == 0 {
		if r.eof {
			return "", io.EOF
		}

		if err := r.fill(); err != nil {
			return "", err
		}
	}

	rec := r.queue[0]
	r.queue[0] = ""
	r.queue = r.queue[1:]
	r.line++

	return rec, nil
}

// fill reads one chunk and queues every record completed by it.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.splitter.Feed(string(r.buf[:n]), func(rec string) {
			r.queue = append(r.queue, rec)
		})
	}

	if errors.Is(err, io.EOF) {
		r.eof = true
		if rec, ok := r.splitter.Flush(); ok {
			r.queue = append(r.queue, rec)
		}

		return nil
	}

	if err != nil {
		return fmt.Errorf("read csv stream: %w", err)
	}

	return nil
}
