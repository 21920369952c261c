package ingest

import "github.com/formbricks/precedent/internal/models"

// DedupeResponses collapses rows that share (case_id, response_id), keeping the last
// occurrence in its position. A single upsert statement must not target the same key
// twice. It returns the kept rows and the number dropped; rows is returned unchanged when
// there are no collisions.
func DedupeResponses(rows []models.Response) ([]models.Response, int) {
	last := make(map[models.ResponseKey]int, len(rows))
	for i := range rows {
		last[rows[i].Key()] = i
	}

	if len(last) == len(rows) {
		return rows, 0
	}

	kept := make([]models.Response, 0, len(last))

	for i := range rows {
		if last[rows[i].Key()] == i {
			kept = append(kept, rows[i])
		}
	}

	return kept, len(rows) - len(kept)
}
