package events_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intEvents "github.com/enclave-labs/agentscript/internal/events"
	"github.com/enclave-labs/agentscript/internal/logger"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/events"
	enclavelog "github.com/enclave-labs/agentscript/pkg/enclave/v1/log"
)

func testLog() enclavelog.Logger {
	return logger.NewLogger("error", "text", os.Stderr)
}

func TestChannelEventBus_EmitAndReceive(t *testing.T) {
	bus := intEvents.NewChannelEventBus(4, testLog())
	defer bus.Close()

	sent := events.Event{Type: events.RunStart, RunID: "r1", Timestamp: time.Now()}
	bus.Emit(sent)

	select {
	case got := <-bus.GetChannel():
		assert.Equal(t, events.RunStart, got.Type)
		assert.Equal(t, "r1", got.RunID)
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestChannelEventBus_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := intEvents.NewChannelEventBus(1, testLog())
	defer bus.Close()

	bus.Emit(events.Event{Type: events.RunStart, RunID: "kept"})

	done := make(chan struct{})
	go func() {
		bus.Emit(events.Event{Type: events.RunStart, RunID: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	got := <-bus.GetChannel()
	assert.Equal(t, "kept", got.RunID)
	select {
	case extra := <-bus.GetChannel():
		t.Fatalf("unexpected extra event %q", extra.RunID)
	default:
	}
}

func TestChannelEventBus_CloseSignalsConsumers(t *testing.T) {
	bus := intEvents.NewChannelEventBus(1, testLog())
	bus.Close()

	_, open := <-bus.GetChannel()
	assert.False(t, open)
}

func TestMetricsEventListener_CountsToolCallsAndRejections(t *testing.T) {
	bus := intEvents.NewChannelEventBus(16, testLog())

	toolCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_tool_calls_total"}, []string{"tool"})
	rejections := prometheus.NewCounter(
		prometheus.CounterOpts{Name: "test_rejections_total"})
	listener := intEvents.NewMetricsEventListener(bus, toolCalls, rejections, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		listener.Start(ctx)
		close(stopped)
	}()

	bus.Emit(events.Event{Type: events.ToolCall, ToolName: "fetch"})
	bus.Emit(events.Event{Type: events.ToolCall, ToolName: "fetch"})
	bus.Emit(events.Event{Type: events.ToolCall, ToolName: "store"})
	bus.Emit(events.Event{Type: events.ValidationFailed})
	bus.Emit(events.Event{Type: events.RunEnd})

	bus.Close()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after bus close")
	}

	require.Equal(t, float64(2), testutil.ToFloat64(toolCalls.WithLabelValues("fetch")))
	require.Equal(t, float64(1), testutil.ToFloat64(toolCalls.WithLabelValues("store")))
	require.Equal(t, float64(1), testutil.ToFloat64(rejections))
}
