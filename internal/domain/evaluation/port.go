package evaluation

import (
	"context"
	"time"
)

// Client sends one prepared image plus prompt to a multimodal model and returns its raw text.
// Implementations classify service errors with ClassifyServiceMessage and never retry.
type Client interface {
	Evaluate(ctx context.Context, img PreparedImage, prompt string) (string, error)
}

// Preprocessor turns an uploaded image into the bounded-width encoding sent to the model.
type Preprocessor interface {
	Prepare(ctx context.Context, data []byte) (PreparedImage, error)
}

// ExportStore keeps a copy of exported documents.
type ExportStore interface {
	PutExport(ctx context.Context, key string, data []byte) (string, error)
}

// RunRecord is the journal entry of one finished run. Metadata only, no result payload.
type RunRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	WorkflowName string    `json:"workflow_name"`
	ImageName    string    `json:"image_name"`
	State        string    `json:"state"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	TrapCount    int       `json:"trap_count"`
	OverallScore int       `json:"overall_score"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// RunSummary counts journal entries by final state.
type RunSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// RunJournal persists run metadata for operations.
type RunJournal interface {
	Save(ctx context.Context, r *RunRecord) error
	Latest(ctx context.Context, limit int) ([]*RunRecord, error)
	Summary(ctx context.Context, since time.Time) (RunSummary, error)
}
