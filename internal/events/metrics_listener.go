package events

import (
	"context"

	"github.com/enclave-labs/agentscript/pkg/enclave/v1/events"
	enclavelog "github.com/enclave-labs/agentscript/pkg/enclave/v1/log"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsEventListener subscribes to an enclave event bus and updates
// Prometheus metrics based on the events it receives.
type MetricsEventListener struct {
	bus              *ChannelEventBus
	log              enclavelog.Logger
	toolCallCounter  *prometheus.CounterVec
	rejectionCounter prometheus.Counter
}

// NewMetricsEventListener creates a new listener. It requires a
// ChannelEventBus to subscribe to and the Prometheus collectors it updates.
func NewMetricsEventListener(bus *ChannelEventBus, toolCalls *prometheus.CounterVec, rejections prometheus.Counter, log enclavelog.Logger) *MetricsEventListener {
	if bus == nil || toolCalls == nil || rejections == nil || log == nil {
		panic("MetricsEventListener requires a non-nil ChannelEventBus, collectors, and Logger")
	}
	return &MetricsEventListener{
		bus:              bus,
		log:              log.With("component", "MetricsEventListener"),
		toolCallCounter:  toolCalls,
		rejectionCounter: rejections,
	}
}

// Start begins listening for events on the bus. The provided context is used
// to signal shutdown. Start blocks; callers run it in a goroutine.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

// handleEvent processes a single event, incrementing metrics as needed.
func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.ToolCall:
		l.toolCallCounter.WithLabelValues(event.ToolName).Inc()
	case events.ValidationFailed:
		l.rejectionCounter.Inc()
	}
}
