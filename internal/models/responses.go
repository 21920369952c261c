package models

import (
	"strconv"
	"time"
)

const (
	// AnswerCount is the number of free-text answer columns per response.
	AnswerCount = 9
	// SubScoreCount is the number of rubric sub-scores (1..4) per response.
	SubScoreCount = 13
	// MainScoreCount is the number of derived main scores; it is also the dimension of
	// the score space used for precedent retrieval.
	MainScoreCount = 6
)

// Score ranges. Values outside them are stored as NULL.
const (
	SubScoreMin  = 1.0
	SubScoreMax  = 4.0
	MainScoreMin = 0.0
	MainScoreMax = 100.0
)

// Response is one respondent's submission for a case. (CaseID, ResponseID) is unique.
type Response struct {
	CaseID     string                   `json:"case_id"`
	ResponseID string                   `json:"response_id"`
	Answers    [AnswerCount]string      `json:"answers"`
	SubScores  [SubScoreCount]*float64  `json:"sub_scores"`
	MainScores [MainScoreCount]*float64 `json:"main_scores"`
	CreatedAt  time.Time                `json:"created_at,omitzero"`
	UpdatedAt  time.Time                `json:"updated_at,omitzero"`
}

// ResponseKey is the composite identity of a response.
type ResponseKey struct {
	CaseID     string
	ResponseID string
}

// Key returns the composite identity of r.
func (r *Response) Key() ResponseKey {
	return ResponseKey{CaseID: r.CaseID, ResponseID: r.ResponseID}
}

// ScoreVector returns the main scores as a dense vector. ok is false unless all six are set.
func (r *Response) ScoreVector() (vec [MainScoreCount]float64, ok bool) {
	for i, s := range r.MainScores {
		if s == nil {
			return vec, false
		}

		vec[i] = *s
	}

	return vec, true
}

// QuestionKey returns the stable identifier of the i-th (0-based) answer column: "q1".."q9".
func QuestionKey(i int) string {
	return "q" + strconv.Itoa(i+1)
}

// QuestionIndex is the inverse of QuestionKey. It returns -1 for an unknown key.
func QuestionIndex(key string) int {
	if len(key) < 2 || key[0] != 'q' {
		return -1
	}

	n, err := strconv.Atoi(key[1:])
	if err != nil || n < 1 || n > AnswerCount {
		return -1
	}

	return n - 1
}

// ScoredResponse is a precedent candidate ranked by distance in score space.
type ScoredResponse struct {
	CaseID     string                  `json:"case_id"`
	ResponseID string                  `json:"response_id"`
	Answers    [AnswerCount]string     `json:"answers"`
	Scores     [MainScoreCount]float64 `json:"scores"`
	Distance   float64                 `json:"distance"`
}

// PrecedentsRequest asks for the responses of a case closest to a target score profile.
type PrecedentsRequest struct {
	Scores []float64 `json:"scores" validate:"required,len=6,dive,gte=0,lte=100"`
	Limit  int       `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}
