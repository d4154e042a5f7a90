package depth

import "context"

// ArchivedReport is the durable record of one completed session. In-flight
// session state is never persisted; only the final outcome is.
type ArchivedReport struct {
	SessionID        string   `json:"session_id"`
	Question         string   `json:"question"`
	Brief            string   `json:"brief"`
	Report           string   `json:"report"`
	References       []string `json:"references,omitempty"`
	FindingCount     int      `json:"finding_count"`
	Iterations       int      `json:"iterations"`
	UnitsUsed        int      `json:"units_used"`
	CompletionReason string   `json:"completion_reason"`
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
	DurationMS       int64    `json:"duration_ms"`
	CreatedAt        int64    `json:"created_at"`
}

// Archive persists completed reports. The store/sqlite package provides the
// default implementation; wire one in with WithArchive. Archive failures are
// logged, never fatal — the report was already produced.
type Archive interface {
	SaveReport(ctx context.Context, r ArchivedReport) error
	GetReport(ctx context.Context, sessionID string) (ArchivedReport, error)
	ListReports(ctx context.Context, limit int) ([]ArchivedReport, error)
}
