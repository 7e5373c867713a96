package events

import "time"

// EventType represents the type of an enclave lifecycle event.
type EventType string

// Standard enclave event types.
const (
	RunStart         EventType = "RunStart"         // Run accepted, pipeline beginning
	RunEnd           EventType = "RunEnd"           // Result assembled, success or failure
	ToolCall         EventType = "ToolCall"         // A capability invocation crossed the boundary
	ValidationFailed EventType = "ValidationFailed" // Static rules rejected the script
	LimitExceeded    EventType = "LimitExceeded"    // A resource ceiling fired mid-run
)

// Event represents a significant occurrence within the enclave.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// RunID identifies the run context, if applicable.
	RunID string `json:"run_id,omitempty"`
	// ToolName identifies the capability involved, if applicable.
	ToolName string `json:"tool_name,omitempty"`
	// Payload contains event-specific data. Tool arguments and script values
	// MUST NOT be included; they may carry tenant data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing enclave events. Implementations
// could include logging, sending to message queues, etc.
type Bus interface {
	// Emit publishes an event to the bus. Implementations should be
	// non-blocking or handle blocking carefully to avoid slowing down runs.
	Emit(event Event)
}
