// Package csvstream decodes survey CSV exports as a lazy stream of logical records.
//
// Exports arrive either as UTF-8 (optionally with a BOM) or as Shift_JIS from legacy
// spreadsheet tools. Detect sniffs a bounded prefix without consuming it; Reader then
// decodes and splits the stream into records, keeping quoted newlines inside a record.
package csvstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names a supported byte encoding.
type Encoding string

const (
	// EncodingAuto asks Detect to sniff the encoding.
	EncodingAuto Encoding = ""
	// EncodingUTF8 is the default 8-bit-clean encoding.
	EncodingUTF8 Encoding = "utf-8"
	// EncodingShiftJIS is the legacy double-byte encoding.
	EncodingShiftJIS Encoding = "shift_jis"
)

const (
	// sniffTarget is the prefix size examined once a full line is available.
	sniffTarget = 8 << 10
	// sniffLimit is the hard cap on bytes buffered for detection.
	sniffLimit = 64 << 10
)

// ErrUnsupportedEncoding is returned for an encoding hint outside the supported set.
var ErrUnsupportedEncoding = errors.New("csvstream: unsupported encoding")

// ParseEncoding maps user supplied names (e.g. "UTF8", "sjis", "cp932") to an Encoding.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "shift_jis", "shift-jis", "sjis", "cp932", "windows-31j":
		return EncodingShiftJIS, nil
	default:
		return EncodingAuto, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// decoder returns the x/text decoder for enc. UTF-8 strips a leading BOM.
func (enc Encoding) decoder() *encoding.Decoder {
	if enc == EncodingShiftJIS {
		return japanese.ShiftJIS.NewDecoder()
	}

	return unicode.UTF8BOM.NewDecoder()
}

// Detect determines the encoding of r. When hint is not EncodingAuto it is returned as is.
// Otherwise a prefix is read (up to 8 KiB, extended to at most 64 KiB until a line feed shows up),
// decoded as UTF-8 and as Shift_JIS, and the first candidate that both decodes cleanly and
// contains one of tokens wins. Without a clean match the first candidate containing a token
// wins; without any match UTF-8 is assumed.
//
// The returned reader replays the sniffed prefix followed by the rest of r.
func Detect(r io.Reader, hint Encoding, tokens []string) (Encoding, io.Reader, error) {
	if hint != EncodingAuto {
		if hint != EncodingUTF8 && hint != EncodingShiftJIS {
			return EncodingAuto, nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, string(hint))
		}

		return hint, r, nil
	}

	prefix, err := readPrefix(r)
	if err != nil {
		return EncodingAuto, nil, err
	}

	replay := io.MultiReader(bytes.NewReader(prefix), r)

	return sniff(prefix, tokens), replay, nil
}

// readPrefix reads sniffTarget bytes, continuing up to sniffLimit while no line feed was seen.
func readPrefix(r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, sniffTarget)
	chunk := make([]byte, 4<<10)

	for len(buf) < sniffLimit {
		if len(buf) >= sniffTarget && bytes.IndexByte(buf, '\n') >= 0 {
			break
		}

		n, err := r.Read(chunk[:min(len(chunk), sniffLimit-len(buf))])
		buf = append(buf, chunk[:n]...)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read prefix: %w", err)
		}
	}

	return buf, nil
}

type candidate struct {
	enc       Encoding
	text      string
	clean     bool
	hasTokens bool
}

func sniff(prefix []byte, tokens []string) Encoding {
	candidates := []candidate{
		decodeUTF8Prefix(prefix),
		decodeShiftJISPrefix(prefix),
	}

	for i := range candidates {
		candidates[i].hasTokens = containsAny(candidates[i].text, tokens)
	}

	for _, c := range candidates {
		if c.clean && c.hasTokens {
			return c.enc
		}
	}

	for _, c := range candidates {
		if c.hasTokens {
			return c.enc
		}
	}

	return EncodingUTF8
}

func decodeUTF8Prefix(prefix []byte) candidate {
	b := bytes.TrimPrefix(prefix, []byte("\xef\xbb\xbf"))
	b = trimIncompleteRune(b)

	return candidate{enc: EncodingUTF8, text: string(b), clean: utf8.Valid(b)}
}

func decodeShiftJISPrefix(prefix []byte) candidate {
	// A cut inside a double-byte character only damages the tail; drop it before judging.
	b := prefix
	if !endsOnTrail(b) {
		b = b[:len(b)-1]
	}

	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(b)
	if err != nil {
		return candidate{enc: EncodingShiftJIS}
	}

	text := string(decoded)

	return candidate{enc: EncodingShiftJIS, text: text, clean: !strings.ContainsRune(text, utf8.RuneError)}
}

// trimIncompleteRune drops a truncated multi-byte sequence at the end of b.
func trimIncompleteRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}

		if !utf8.FullRune(b[start:]) {
			return b[:start]
		}

		break
	}

	return b
}

func isShiftJISLead(c byte) bool {
	return (c >= 0x81 && c <= 0x9f) || (c >= 0xe0 && c <= 0xfc)
}

// endsOnTrail reports whether the final byte of b completes a double-byte pair.
func endsOnTrail(b []byte) bool {
	i := 0
	for i < len(b) {
		if isShiftJISLead(b[i]) {
			if i+1 >= len(b) {
				return false
			}

			i += 2

			continue
		}

		i++
	}

	return true
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(text, tok) {
			return true
		}
	}

	return false
}
