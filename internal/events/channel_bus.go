package events

import (
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/events"
	enclavelog "github.com/enclave-labs/agentscript/pkg/enclave/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a
// buffered Go channel. It provides in-process event distribution with
// non-blocking emission: when the buffer is full, events are dropped rather
// than stalling a run.
type ChannelEventBus struct {
	channel chan events.Event
	log     enclavelog.Logger
}

// NewChannelEventBus creates a new ChannelEventBus with the specified buffer
// size. If bufferSize is non-positive a default is used. Panics if the
// provided logger is nil.
func NewChannelEventBus(bufferSize int, log enclavelog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel. The send is
// non-blocking; if the buffer is full the event is dropped with a warning.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
		c.log.Debugf("Emitted event type '%s'", event.Type)
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for consumers. It is not
// part of the public events.Bus interface; it lets in-process listeners and
// exporters consume events directly.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying event channel, signaling consumers that no
// more events will be sent.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

var _ events.Bus = (*ChannelEventBus)(nil)
