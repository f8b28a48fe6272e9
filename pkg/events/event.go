package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "HISTORY_ENTRY_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Identified events carry a stable id the external bus de-duplicates on.
type Identified interface {
	EventID() string
}

type BaseEvent struct {
	ID         string
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) EventID() string {
	return e.ID
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// EnvelopeData is the wire form published on the external bus.
type EnvelopeData struct {
	ID         string                 `json:"id,omitempty"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func Envelope(e Event) EnvelopeData {
	var id string
	if identified, ok := e.(Identified); ok {
		id = identified.EventID()
	}
	return EnvelopeData{
		ID:         id,
		Type:       e.EventType(),
		OccurredAt: e.Timestamp().UTC(),
		Data:       e.Payload(),
	}
}
