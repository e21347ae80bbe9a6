package domain

import "time"

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is a final state. Runs move from
// running to exactly one terminal state and are never mutated afterwards.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	StoredPath string         `json:"stored_path"`
	UploadedAt time.Time      `json:"uploaded_at"`
	PageCount  int            `json:"page_count"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ProcessRun records one provider invocation against one document. Output is
// the provider-defined payload stored verbatim; its shape varies per stage.
type ProcessRun struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Stage      string         `json:"stage"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at"`
	Output     map[string]any `json:"output,omitempty"`
}

// DocumentResults is the read model for the results endpoint: a document
// together with all of its runs, newest first.
type DocumentResults struct {
	Document *Document    `json:"document"`
	Runs     []ProcessRun `json:"runs"`
}
