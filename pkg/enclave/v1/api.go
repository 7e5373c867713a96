package v1

import (
	"context"
	"time"

	"github.com/enclave-labs/agentscript/pkg/enclave/v1/capability"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/events"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/log"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/metrics"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/tracing"
)

// EnclaveV1 defines the public interface for a governed script sandbox.
// One enclave serves one tenant context: globals and capability handlers are
// fixed at construction, and each Run gets a fresh execution context.
type EnclaveV1 interface {
	// Run executes a script under the enclave's resource ceilings. The
	// returned error is non-nil only for host-side faults (e.g. running
	// after Close); every script-side outcome, including rejection and
	// limit faults, is reported through the ExecutionResult.
	Run(ctx context.Context, source string) (*ExecutionResult, error)

	// RunWithHandler executes a script like Run, routing every capability
	// invocation in that run to the given handler instead of the enclave's
	// registry. A nil handler falls back to the registry.
	RunWithHandler(ctx context.Context, source string, handler capability.Handler) (*ExecutionResult, error)

	// Validate checks a script against the static rules without executing
	// it. The source is transformed first, exactly as Run would.
	Validate(source string) (*ValidationReport, error)

	// Close releases the underlying runtime. Subsequent Run calls fail.
	// Close is idempotent.
	Close() error

	// MetricsRegistryProvider returns the underlying metrics provider.
	MetricsRegistryProvider() metrics.RegistryProvider
	// TracerProvider returns the underlying tracing provider.
	TracerProvider() tracing.TracerProvider

	// Setter methods for configuring enclave components programmatically.
	SetLogger(logger log.Logger) error
	SetEventBus(bus events.Bus) error
	SetCapabilityRegistry(registry capability.Registry) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetRuntimeAdapter(adapter runtime.Adapter) error
}

// EnclaveOption is a function type used to configure an enclave at creation.
type EnclaveOption func(EnclaveV1) error

// ExecutionStats aggregates the observable cost of one run.
type ExecutionStats struct {
	RunID          string        `json:"run_id"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	ToolCallCount  int           `json:"tool_call_count"`
	IterationCount int           `json:"iteration_count"`
}

// ExecutionError describes why a run did not produce a value. Code is one of
// the stable E_* constants from the errors package.
type ExecutionError struct {
	Name    string      `json:"name"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Stack   string      `json:"stack,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ExecutionResult is the complete outcome of one Run call. Exactly one of
// Value and Error is meaningful, discriminated by Success.
type ExecutionResult struct {
	Success bool            `json:"success"`
	Value   interface{}     `json:"value,omitempty"`
	Error   *ExecutionError `json:"error,omitempty"`
	Stats   ExecutionStats  `json:"stats"`
}

// ValidationReport is the outcome of a standalone Validate call.
type ValidationReport struct {
	Valid  bool                  `json:"valid"`
	Issues []enclaveerrors.Issue `json:"issues,omitempty"`
}

// WithLogger is an enclave option to provide a custom logger.
func WithLogger(logger log.Logger) EnclaveOption {
	return func(e EnclaveV1) error {
		if logger == nil {
			return enclaveerrors.NewConfigError("logger cannot be nil", nil)
		}
		return e.SetLogger(logger)
	}
}

// WithEventBus is an enclave option to provide a custom event bus.
func WithEventBus(bus events.Bus) EnclaveOption {
	return func(e EnclaveV1) error {
		if bus == nil {
			return enclaveerrors.NewConfigError("event bus cannot be nil", nil)
		}
		return e.SetEventBus(bus)
	}
}

// WithCapabilityRegistry is an enclave option to provide a custom
// capability registry.
func WithCapabilityRegistry(registry capability.Registry) EnclaveOption {
	return func(e EnclaveV1) error {
		if registry == nil {
			return enclaveerrors.NewConfigError("capability registry cannot be nil", nil)
		}
		return e.SetCapabilityRegistry(registry)
	}
}

// WithMetricsRegistryProvider is an enclave option to provide a custom
// metrics provider.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) EnclaveOption {
	return func(e EnclaveV1) error {
		if provider == nil {
			return enclaveerrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return e.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider is an enclave option to provide a custom tracing provider.
func WithTracerProvider(provider tracing.TracerProvider) EnclaveOption {
	return func(e EnclaveV1) error {
		if provider == nil {
			return enclaveerrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return e.SetTracerProvider(provider)
	}
}

// WithRuntimeAdapter is an enclave option to substitute the script engine.
func WithRuntimeAdapter(adapter runtime.Adapter) EnclaveOption {
	return func(e EnclaveV1) error {
		if adapter == nil {
			return enclaveerrors.NewConfigError("runtime adapter cannot be nil", nil)
		}
		return e.SetRuntimeAdapter(adapter)
	}
}
