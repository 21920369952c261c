package ingest

import (
	"strconv"
	"strings"

	"github.com/formbricks/precedent/internal/models"
)

// Schema maps the logical columns of a survey export to header names.
// An empty name means the column is not present in the export.
type Schema struct {
	CaseID        string
	CaseName      string
	CaseSituation string
	ResponseID    string
	Answers       [models.AnswerCount]string
	SubScores     [models.SubScoreCount]string
	MainScores    [models.MainScoreCount]string
	// Required lists header names that must all appear in the header row.
	// When empty, CaseID and ResponseID are required.
	Required []string
}

// DefaultSchema returns the column naming used by the survey export tool.
func DefaultSchema() Schema {
	s := Schema{
		CaseID:        "case_id",
		CaseName:      "case_name",
		CaseSituation: "case_situation",
		ResponseID:    "response_id",
	}

	for i := range s.Answers {
		s.Answers[i] = "answer_" + strconv.Itoa(i+1)
	}

	for i := range s.SubScores {
		s.SubScores[i] = "sub_score_" + strconv.Itoa(i+1)
	}

	for i := range s.MainScores {
		s.MainScores[i] = "main_score_" + strconv.Itoa(i+1)
	}

	return s
}

// RequiredHeaders returns the header names a header row must contain.
func (s Schema) RequiredHeaders() []string {
	if len(s.Required) > 0 {
		return s.Required
	}

	return []string{s.CaseID, s.ResponseID}
}

// Tokens returns the header names used to recognize the encoding of an export.
func (s Schema) Tokens() []string {
	return s.RequiredHeaders()
}

// header is a resolved header row: column positions by logical column, -1 when absent.
type header struct {
	caseID        int
	caseName      int
	caseSituation int
	responseID    int
	answers       [models.AnswerCount]int
	subScores     [models.SubScoreCount]int
	mainScores    [models.MainScoreCount]int
	// labels holds the header text of each answer column, used as the question text.
	labels [models.AnswerCount]string
}

// matchHeader checks fields against the schema. It returns the missing required names
// when fields is not a header row.
func (s Schema) matchHeader(fields []string) (*header, []string) {
	positions := make(map[string]int, len(fields))
	for i, f := range fields {
		f = strings.TrimPrefix(f, "\ufeff")
		if _, dup := positions[f]; !dup && f != "" {
			positions[f] = i
		}
	}

	var missing []string

	for _, name := range s.RequiredHeaders() {
		if _, ok := positions[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, missing
	}

	lookup := func(name string) int {
		if name == "" {
			return -1
		}

		if pos, ok := positions[name]; ok {
			return pos
		}

		return -1
	}

	h := &header{
		caseID:        lookup(s.CaseID),
		caseName:      lookup(s.CaseName),
		caseSituation: lookup(s.CaseSituation),
		responseID:    lookup(s.ResponseID),
	}

	for i, name := range s.Answers {
		h.answers[i] = lookup(name)
		h.labels[i] = name
	}

	for i, name := range s.SubScores {
		h.subScores[i] = lookup(name)
	}

	for i, name := range s.MainScores {
		h.mainScores[i] = lookup(name)
	}

	return h, nil
}

func field(fields []string, pos int) string {
	if pos < 0 || pos >= len(fields) {
		return ""
	}

	return fields[pos]
}
