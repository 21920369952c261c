package repository

import "github.com/jackc/pgx/v5/pgxpool"

// IngestStore is the write side used by ingestion: cases and their responses.
type IngestStore struct {
	*CasesRepository
	*ResponsesRepository
}

// NewIngestStore creates an IngestStore over db.
func NewIngestStore(db *pgxpool.Pool) *IngestStore {
	return &IngestStore{
		CasesRepository:     NewCasesRepository(db),
		ResponsesRepository: NewResponsesRepository(db),
	}
}
