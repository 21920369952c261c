package models

// ProgressStatus is the state carried by a progress event.
type ProgressStatus string

const (
	ProgressProcessing ProgressStatus = "processing"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressError      ProgressStatus = "error"
)

// ProgressEvent is one entry of an ingestion progress stream. A stream ends with exactly
// one completed or error event.
type ProgressEvent struct {
	Status     ProgressStatus `json:"status"`
	Processed  int            `json:"processed"`
	Duplicates int            `json:"duplicates,omitempty"`
	Message    string         `json:"message,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// Terminal reports whether e ends a progress stream.
func (e ProgressEvent) Terminal() bool {
	return e.Status == ProgressCompleted || e.Status == ProgressError
}
