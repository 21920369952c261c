package ingest

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/formbricks/precedent/internal/models"
)

// row is one validated data record.
type row struct {
	response  models.Response
	caseName  string
	situation string
}

// toRow maps a data record. A non-empty message means the record was rejected.
func (h *header) toRow(fields []string, s Schema) (row, string) {
	caseID := field(fields, h.caseID)
	if caseID == "" {
		return row{}, "missing " + columnName(s.CaseID, "case id")
	}

	responseID := field(fields, h.responseID)
	if responseID == "" {
		return row{}, "missing " + columnName(s.ResponseID, "response id")
	}

	r := row{
		response: models.Response{
			CaseID:     caseID,
			ResponseID: responseID,
		},
		caseName:  field(fields, h.caseName),
		situation: field(fields, h.caseSituation),
	}

	for i, pos := range h.answers {
		r.response.Answers[i] = field(fields, pos)
	}

	for i, pos := range h.subScores {
		r.response.SubScores[i] = parseScore(field(fields, pos), models.SubScoreMin, models.SubScoreMax)
	}

	for i, pos := range h.mainScores {
		r.response.MainScores[i] = parseScore(field(fields, pos), models.MainScoreMin, models.MainScoreMax)
	}

	return r, ""
}

// parseScore parses a numeric cell. Empty, unparseable and out-of-range values become nil.
// Full-width digits (common in Japanese spreadsheets) are narrowed first.
func parseScore(raw string, lo, hi float64) *float64 {
	raw = strings.TrimSpace(width.Narrow.String(raw))
	if raw == "" {
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return nil
	}

	return &v
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}

	return true
}

func columnName(name, fallback string) string {
	if name == "" {
		return fallback
	}

	return name
}

// responseItems builds one queue item per non-empty answer.
func responseItems(rows []models.Response) []models.EmbeddingQueueItem {
	var items []models.EmbeddingQueueItem

	for i := range rows {
		for q, answer := range rows[i].Answers {
			if answer == "" {
				continue
			}

			items = append(items, models.NewResponseQueueItem(rows[i].CaseID, rows[i].ResponseID, models.QuestionKey(q), answer))
		}
	}

	return items
}
