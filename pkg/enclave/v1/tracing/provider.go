package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TracerProvider defines the interface for accessing the enclave's tracer
// provider, letting consumers integrate run tracing with an existing
// OpenTelemetry setup or supply custom implementations.
type TracerProvider interface {
	// GetTracer returns a Tracer instance with the specified name and options.
	GetTracer(name string, opts ...trace.TracerOption) trace.Tracer

	// Shutdown gracefully shuts down the tracer provider, flushing any
	// buffered spans. Implementations should tolerate being called when
	// shutdown is not applicable (e.g. a NoOp provider).
	Shutdown(ctx context.Context) error
}
