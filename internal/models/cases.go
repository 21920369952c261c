package models

import "time"

// Case is a scenario definition that groups many survey responses.
type Case struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Situation *string   `json:"situation,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeleteCaseResult reports how many rows a cascading case delete removed.
type DeleteCaseResult struct {
	CaseID          string `json:"case_id"`
	Responses       int64  `json:"responses"`
	Embeddings      int64  `json:"embeddings"`
	TypicalExamples int64  `json:"typical_examples"`
	QueueItems      int64  `json:"queue_items"`
}
