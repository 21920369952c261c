package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingSource names the table an embedding queue item writes its vector to.
type EmbeddingSource string

const (
	SourceResponse EmbeddingSource = "response"
	SourceCase     EmbeddingSource = "case"
	SourceQuestion EmbeddingSource = "question"
)

// QueueStatus is the lifecycle state of an embedding queue item.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusDone    QueueStatus = "done"
	QueueStatusFailed  QueueStatus = "failed"
)

// EmbeddingQueueItem is a unit of "text needing a vector".
// ResponseID is set for response items; Question is set for response and question items.
type EmbeddingQueueItem struct {
	ID         uuid.UUID       `json:"id"`
	Source     EmbeddingSource `json:"source"`
	CaseID     string          `json:"case_id"`
	ResponseID *string         `json:"response_id,omitempty"`
	Question   *string         `json:"question,omitempty"`
	Text       string          `json:"text"`
	Status     QueueStatus     `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  *string         `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// NewResponseQueueItem builds a pending item for one answer.
func NewResponseQueueItem(caseID, responseID, question, text string) EmbeddingQueueItem {
	return EmbeddingQueueItem{
		Source:     SourceResponse,
		CaseID:     caseID,
		ResponseID: &responseID,
		Question:   &question,
		Text:       text,
		Status:     QueueStatusPending,
	}
}

// NewCaseQueueItem builds a pending item for a case situation text.
func NewCaseQueueItem(caseID, text string) EmbeddingQueueItem {
	return EmbeddingQueueItem{
		Source: SourceCase,
		CaseID: caseID,
		Text:   text,
		Status: QueueStatusPending,
	}
}

// NewQuestionQueueItem builds a pending item for a question label.
func NewQuestionQueueItem(caseID, question, text string) EmbeddingQueueItem {
	return EmbeddingQueueItem{
		Source:   SourceQuestion,
		CaseID:   caseID,
		Question: &question,
		Text:     text,
		Status:   QueueStatusPending,
	}
}

// BatchResult counts the outcome of one worker batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
}

// ProcessQueueRequest is the body of the queue processing endpoint.
type ProcessQueueRequest struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=1000"`
}
