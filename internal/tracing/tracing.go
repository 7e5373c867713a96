package tracing

import (
	"errors"

	"github.com/enclave-labs/agentscript/internal/sanitize"
	"go.opentelemetry.io/otel"
	codes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName is the default name used when acquiring a tracer instance.
const tracerName = "agentscript"

// GetTracer returns a named tracer from the globally configured provider.
// If no global provider is configured it falls back to a NoOp tracer.
// Injecting the TracerProvider is preferred; this exists for components that
// have no access to one.
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// RecordErrorWithContext records an error on a span, scrubbing host paths
// from the message first so spans exported off-box never carry filesystem
// layout. Does nothing if the error is nil or the span is not recording.
func RecordErrorWithContext(span oteltrace.Span, err error, san *sanitize.Sanitizer) {
	if err == nil || span == nil || !span.IsRecording() {
		return
	}
	msg := err.Error()
	if san != nil {
		msg = san.Message(msg)
	}
	span.RecordError(errors.New(msg), oteltrace.WithStackTrace(true))
	span.SetStatus(codes.Error, msg)
}
