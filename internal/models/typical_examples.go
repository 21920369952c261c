package models

import (
	"fmt"
	"time"
)

// BucketKey scopes a typical-example rebuild: one question of one case, restricted to
// responses whose main score at ScoreIndex lies in [Low, High).
type BucketKey struct {
	CaseID     string  `json:"case_id"`
	Question   string  `json:"question"`
	ScoreIndex int     `json:"score_index"`
	Low        float64 `json:"bucket_low"`
	High       float64 `json:"bucket_high"`
}

// String renders the key for logs and lock names.
func (k BucketKey) String() string {
	return fmt.Sprintf("%s/%s/%d/[%g,%g)", k.CaseID, k.Question, k.ScoreIndex, k.Low, k.High)
}

// Contains reports whether score falls in the bucket.
func (k BucketKey) Contains(score float64) bool {
	return score >= k.Low && score < k.High
}

// TypicalExample is the representative answer of one cluster in a bucket.
type TypicalExample struct {
	CaseID              string    `json:"case_id"`
	Question            string    `json:"question"`
	ScoreIndex          int       `json:"score_index"`
	BucketLow           float64   `json:"bucket_low"`
	BucketHigh          float64   `json:"bucket_high"`
	ClusterID           int       `json:"cluster_id"`
	ResponseID          string    `json:"response_id"`
	Text                string    `json:"text"`
	ClusterSize         int       `json:"cluster_size"`
	RepresentativeScore *float64  `json:"representative_score,omitempty"`
	CreatedAt           time.Time `json:"created_at,omitzero"`
}

// BuildTypicalExamplesRequest is the body of the typical-example rebuild endpoint.
type BuildTypicalExamplesRequest struct {
	Question   string  `json:"question" validate:"required,question_key"`
	ScoreIndex int     `json:"score_index" validate:"gte=0,lte=5"`
	BucketLow  float64 `json:"bucket_low"`
	BucketHigh float64 `json:"bucket_high" validate:"gtfield=BucketLow"`
	K          int     `json:"k,omitempty" validate:"omitempty,min=1,max=50"`
}

// Key builds the bucket key for caseID.
func (r *BuildTypicalExamplesRequest) Key(caseID string) BucketKey {
	return BucketKey{
		CaseID:     caseID,
		Question:   r.Question,
		ScoreIndex: r.ScoreIndex,
		Low:        r.BucketLow,
		High:       r.BucketHigh,
	}
}
