// Package huberrors defines the domain errors that handlers translate into problem responses.
// Each type has a zero-value sentinel; errors.Is matches on the type, not the fields.
package huberrors

import "strconv"

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = &NotFoundError{}

// NotFoundError reports a missing case or other stored entity.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a NotFoundError. An empty message falls back to "<resource> not found".
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{Resource: resource, Message: message}
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Resource != "":
		return e.Resource + " not found"
	default:
		return "not found"
	}
}

// Is reports whether target is a *NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation matches any *ValidationError.
var ErrValidation = &ValidationError{}

// ValidationError reports a request field the service layer rejected after decoding.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Field != "":
		return "invalid " + e.Field
	default:
		return "invalid request"
	}
}

// Is reports whether target is a *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrLimitExceeded matches any *LimitExceededError.
var ErrLimitExceeded = &LimitExceededError{}

// LimitExceededError reports an upload larger than the configured byte limit.
type LimitExceededError struct {
	What  string
	Limit int64
}

// NewLimitExceededError creates a LimitExceededError for what (e.g. "request body") capped at limit bytes.
func NewLimitExceededError(what string, limit int64) *LimitExceededError {
	return &LimitExceededError{What: what, Limit: limit}
}

func (e *LimitExceededError) Error() string {
	what := e.What
	if what == "" {
		what = "input"
	}

	if e.Limit <= 0 {
		return what + " exceeds the allowed size"
	}

	return what + " exceeds the limit of " + strconv.FormatInt(e.Limit, 10) + " bytes"
}

// Is reports whether target is a *LimitExceededError.
func (e *LimitExceededError) Is(target error) bool {
	_, ok := target.(*LimitExceededError)

	return ok
}
