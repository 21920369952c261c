package huberrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"not found with message", NewNotFoundError("case", "case C1 not found"), ErrNotFound, "case C1 not found"},
		{"not found from resource", NewNotFoundError("case", ""), ErrNotFound, "case not found"},
		{"validation with message", NewValidationError("question", "question must be one of q1..q9"), ErrValidation,
			"question must be one of q1..q9"},
		{"validation from field", NewValidationError("k", ""), ErrValidation, "invalid k"},
		{"limit with size", NewLimitExceededError("request body", 1024), ErrLimitExceeded,
			"request body exceeds the limit of 1024 bytes"},
		{"limit without size", NewLimitExceededError("", 0), ErrLimitExceeded, "input exceeds the allowed size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())

			wrapped := fmt.Errorf("failed to do work: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestSentinels_DoNotCrossMatch(t *testing.T) {
	assert.False(t, errors.Is(NewNotFoundError("case", ""), ErrValidation))
	assert.False(t, errors.Is(NewValidationError("k", ""), ErrLimitExceeded))
	assert.False(t, errors.Is(NewLimitExceededError("request body", 1), ErrNotFound))
	assert.False(t, errors.Is(NewHeaderError(nil, 0), ErrLimitExceeded))
}
