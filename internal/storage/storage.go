// Package storage keeps an append-only log of conversation interactions.
package storage

import "time"

// Outcome values of an interaction.
const (
	OutcomeOK       = "ok"
	OutcomeTimeout  = "timeout"
	OutcomeService  = "service_error"
	OutcomeRejected = "rejected"
)

// Event is one handled user message and what came of it.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id,omitempty"`
	SessionID         string    `json:"session_id"`
	Persona           string    `json:"persona,omitempty"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response,omitempty"`
	Outcome           string    `json:"outcome"`
	Error             string    `json:"error,omitempty"`
}

// Recorder persists interaction events. LoadInteractions returns them in append
// order. Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
