package huberrors

import (
	"fmt"
	"strings"
)

// ErrHeader is the sentinel for a CSV export whose header row could not be found.
var ErrHeader = &HeaderError{}

// HeaderError reports required columns that no candidate header row contained.
type HeaderError struct {
	Missing []string
	// Skipped is the number of leading records examined before giving up.
	Skipped int
}

// NewHeaderError creates a HeaderError.
func NewHeaderError(missing []string, skipped int) *HeaderError {
	return &HeaderError{Missing: missing, Skipped: skipped}
}

// Error implements the error interface.
func (e *HeaderError) Error() string {
	if len(e.Missing) == 0 {
		return "required header row not found"
	}

	return "required header columns missing: " + strings.Join(e.Missing, ", ")
}

// Is implements the error interface for error comparison.
func (e *HeaderError) Is(target error) bool {
	_, ok := target.(*HeaderError)

	return ok
}

// RowError is a rejected data row. Line is the 1-based record ordinal in the file.
type RowError struct {
	Line    int
	Message string
}

// Error implements the error interface.
func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ErrTooManyInvalidRows is the sentinel for an ingestion aborted on rejected rows.
var ErrTooManyInvalidRows = &TooManyInvalidRowsError{}

// TooManyInvalidRowsError carries every row error collected before the abort.
type TooManyInvalidRowsError struct {
	Errors []RowError
}

// NewTooManyInvalidRowsError creates a TooManyInvalidRowsError.
func NewTooManyInvalidRowsError(errs []RowError) *TooManyInvalidRowsError {
	return &TooManyInvalidRowsError{Errors: errs}
}

// Error implements the error interface.
func (e *TooManyInvalidRowsError) Error() string {
	return fmt.Sprintf("too many invalid rows (%d)", len(e.Errors))
}

// Is implements the error interface for error comparison.
func (e *TooManyInvalidRowsError) Is(target error) bool {
	_, ok := target.(*TooManyInvalidRowsError)

	return ok
}

// Messages renders each row error for a progress event.
func (e *TooManyInvalidRowsError) Messages() []string {
	out := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		out[i] = re.Error()
	}

	return out
}
