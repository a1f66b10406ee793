package event

import "time"

// LogStatus is the recorded outcome of one dispatch attempt.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
)

// LogRecord is one append-only row in the dispatch log. Records are written
// exactly once per attempt and never updated.
type LogRecord struct {
	ID              string    `json:"id"`
	TenantKey       string    `json:"tenant_key"`
	StandardName    string    `json:"event_name"`
	Status          LogStatus `json:"status"`
	ResponseSummary string    `json:"response_summary,omitempty"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
