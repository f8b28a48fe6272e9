package dto

import "time"

const (
	EventConsultationSummarized = "CONSULTATION_SUMMARIZED"
	EventConsultationFailed     = "CONSULTATION_FAILED"
	EventHistoryEntryCreated    = "HISTORY_ENTRY_CREATED"
)

// ConsultationEvent travels over the in-process bus. It never carries notes
// or summary text, only sizes.
type ConsultationEvent struct {
	Type       string    `json:"type"`
	UserId     string    `json:"user_id"`
	Model      string    `json:"model,omitempty"`
	SourceKind string    `json:"source_kind,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	Chars      int       `json:"chars,omitempty"`
	EntryId    string    `json:"entry_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
