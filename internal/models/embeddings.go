package models

import "time"

// ResponseEmbedding is the vector of one answer of one response under one model.
type ResponseEmbedding struct {
	CaseID     string    `json:"case_id"`
	ResponseID string    `json:"response_id"`
	Question   string    `json:"question"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmbeddedAnswer is an answer with its vector and the main score selected for a bucket.
// It is the unit the typical-example builder clusters.
type EmbeddedAnswer struct {
	ResponseID string
	Text       string
	Score      *float64
	Embedding  []float32
}

// CaseEmbedding is the vector of a case situation text.
type CaseEmbedding struct {
	CaseID    string
	Name      string
	Embedding []float32
}

// QuestionEmbedding is the vector of a question label within a case.
type QuestionEmbedding struct {
	CaseID    string
	Question  string
	Text      string
	Embedding []float32
}

// SimilarCase is a case ranked by cosine distance to a query text.
type SimilarCase struct {
	CaseID   string  `json:"case_id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// SimilarQuestion is a question ranked by cosine distance to a query text.
type SimilarQuestion struct {
	CaseID   string  `json:"case_id"`
	Question string  `json:"question"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// SimilarRequest is the body of the similar cases/questions endpoints.
type SimilarRequest struct {
	Text  string `json:"text" validate:"required,min=1,max=8000,no_null_bytes"`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}
