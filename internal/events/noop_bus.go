package events

import "github.com/enclave-labs/agentscript/pkg/enclave/v1/events"

// NoOpEventBus is a default implementation of the public events.Bus
// interface that does nothing. It is used as a fallback when no event
// handling mechanism is configured, so components emitting events never hit
// a nil bus.
type NoOpEventBus struct{}

// NewNoOpEventBus creates a new instance of the NoOpEventBus.
func NewNoOpEventBus() events.Bus {
	return &NoOpEventBus{}
}

// Emit implements the events.Bus interface method.
func (n *NoOpEventBus) Emit(event events.Event) {
	// Intentionally does nothing.
}

var _ events.Bus = (*NoOpEventBus)(nil)
