// Package enclave implements the execution governor: the component that
// owns one tenant's limits, globals, and capability surface, and drives
// every script through the transform, validate, execute pipeline.
package enclave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	intCapability "github.com/enclave-labs/agentscript/internal/capability"
	"github.com/enclave-labs/agentscript/internal/config"
	intEvents "github.com/enclave-labs/agentscript/internal/events"
	"github.com/enclave-labs/agentscript/internal/interp"
	intMetrics "github.com/enclave-labs/agentscript/internal/metrics"
	"github.com/enclave-labs/agentscript/internal/paramutil"
	"github.com/enclave-labs/agentscript/internal/rules"
	"github.com/enclave-labs/agentscript/internal/sanitize"
	"github.com/enclave-labs/agentscript/internal/state"
	intTracing "github.com/enclave-labs/agentscript/internal/tracing"
	"github.com/enclave-labs/agentscript/internal/transform"
	enclave "github.com/enclave-labs/agentscript/pkg/enclave/v1"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/capability"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/events"
	enclavelog "github.com/enclave-labs/agentscript/pkg/enclave/v1/log"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/metrics"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
	enclavetracing "github.com/enclave-labs/agentscript/pkg/enclave/v1/tracing"
)

const tracerName = "agentscript-enclave"

// Enclave is the governed sandbox for one tenant context. Limits, globals,
// and the capability registry are fixed at construction; each Run gets a
// fresh interpreter environment, deadline, and counters.
type Enclave struct {
	// Core Services & Providers
	globalsStore    state.Store
	registry        capability.Registry
	adapter         runtime.Adapter
	eventBus        events.Bus
	metricsProvider metrics.RegistryProvider
	tracerProvider  enclavetracing.TracerProvider
	log             enclavelog.Logger
	san             *sanitize.Sanitizer

	// Configuration & Policies
	limits      config.Limits
	policy      rules.Policy
	funcGlobals map[string]interface{}

	// Runtime State
	runMu  sync.Mutex
	closed atomic.Bool

	// Metrics Collectors
	runCounter       *prometheus.CounterVec
	runDuration      prometheus.Histogram
	toolCallCounter  *prometheus.CounterVec
	rejectionCounter prometheus.Counter
	limitCounter     *prometheus.CounterVec
}

var _ enclave.EnclaveV1 = (*Enclave)(nil)

// New builds an enclave from a resolved profile and the host-supplied
// globals. Globals are validated eagerly: construction is the last moment a
// misconfiguration can fail loudly instead of surfacing mid-run.
func New(log enclavelog.Logger, profile *config.Profile, globals map[string]interface{}, opts ...enclave.EnclaveOption) (*Enclave, error) {
	if log == nil {
		return nil, enclaveerrors.NewConfigError("logger cannot be nil", nil)
	}
	if profile == nil {
		profile = config.DefaultProfile()
	}
	if errs := config.ValidateProfileStructure(profile); len(errs) > 0 {
		return nil, enclaveerrors.NewConfigError(fmt.Sprintf("invalid profile: %v", errs[0]), errs[0])
	}
	limits, err := profile.Resolve()
	if err != nil {
		return nil, err
	}

	e := &Enclave{
		log:         log,
		limits:      limits,
		funcGlobals: make(map[string]interface{}),
		san:         sanitize.New(limits.SanitizeStackTraces),
	}

	names, dataGlobals, err := e.splitGlobals(globals)
	if err != nil {
		return nil, err
	}
	names = append(names, profile.CustomGlobals...)
	e.policy = rules.DefaultPolicy(names)

	store := state.NewMemoryStoreWithPolicy(config.GlobalsPolicy{AccessMode: config.GlobalsAccessDeepCopy})
	if err := store.Load(dataGlobals); err != nil {
		return nil, enclaveerrors.NewConfigError("failed to load globals", err)
	}
	e.globalsStore = store

	for name, value := range globals {
		if fg, ok := value.(runtime.FunctionGlobal); ok {
			if valErr := e.validateFunctionGlobal(name, fg); valErr != nil {
				return nil, valErr
			}
		}
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, enclaveerrors.NewConfigError(fmt.Sprintf("failed to apply enclave option: %v", err), err)
		}
	}

	if e.registry == nil {
		e.registry = intCapability.NewStaticRegistry()
	}
	if e.eventBus == nil {
		e.eventBus = intEvents.NewNoOpEventBus()
	}
	if e.metricsProvider == nil {
		e.metricsProvider = intMetrics.NewPrometheusRegistryProvider()
	}
	if e.tracerProvider == nil {
		tp, err := intTracing.NewNoOpProvider()
		if err != nil {
			return nil, enclaveerrors.NewConfigError("failed to create default NoOp tracer provider", err)
		}
		e.tracerProvider = tp
	}
	if e.adapter == nil {
		e.adapter = interp.New()
	}

	e.initMetrics()
	return e, nil
}

// splitGlobals validates each global eagerly and separates data values,
// which go through the deep-copying store, from function values, which are
// installed per run.
func (e *Enclave) splitGlobals(globals map[string]interface{}) ([]string, map[string]interface{}, error) {
	names := make([]string, 0, len(globals))
	data := make(map[string]interface{})
	for name, value := range globals {
		if transform.HasReservedPrefix(name) {
			return nil, nil, enclaveerrors.NewConfigError(fmt.Sprintf("global '%s' uses a reserved name prefix", name), nil)
		}
		names = append(names, name)

		switch v := value.(type) {
		case runtime.FunctionGlobal:
			e.funcGlobals[name] = v
		case runtime.GoFunc:
			if !e.limits.AllowFunctionsInGlobals {
				return nil, nil, enclaveerrors.NewConfigError(fmt.Sprintf("global '%s' is a function but functions in globals are not allowed at this level", name), nil)
			}
			e.funcGlobals[name] = v
		default:
			if err := paramutil.EnsurePlain(value); err != nil {
				return nil, nil, enclaveerrors.NewConfigError(fmt.Sprintf("global '%s' is not plain data: %v", name, err), err)
			}
			data[name] = value
		}
	}
	return names, data, nil
}

// validateFunctionGlobal statically checks a script-source global against
// the same rules user scripts face. A function global is tenant-trusted
// code, not enclave-trusted code.
func (e *Enclave) validateFunctionGlobal(name string, fg runtime.FunctionGlobal) error {
	result, err := rules.Validate(fg.Source, e.policy)
	if err != nil {
		return enclaveerrors.NewConfigError(fmt.Sprintf("function global '%s' did not parse", name), err)
	}
	if !result.Valid {
		return enclaveerrors.NewConfigError(fmt.Sprintf("function global '%s' violates validation rules: %s", name, result.Issues[0].Message), nil)
	}
	return nil
}

func (e *Enclave) initMetrics() {
	if e.metricsProvider == nil {
		return
	}
	reg := e.metricsProvider.Registry()
	if reg == nil {
		e.log.Errorf("Metrics provider returned a nil registry, cannot initialize metrics.")
		return
	}

	e.runCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agentscript_runs_total", Help: "Total number of script runs by outcome code."},
		[]string{"outcome"},
	)
	reg.MustRegister(e.runCounter)

	e.runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "agentscript_run_duration_seconds", Help: "Duration of script runs in seconds.", Buckets: prometheus.DefBuckets},
	)
	reg.MustRegister(e.runDuration)

	e.toolCallCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agentscript_tool_calls_total", Help: "Total number of capability invocations by tool name."},
		[]string{"tool"},
	)
	reg.MustRegister(e.toolCallCounter)

	e.rejectionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "agentscript_validation_rejections_total", Help: "Total number of scripts rejected by the static validation rules."},
	)
	reg.MustRegister(e.rejectionCounter)

	e.limitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agentscript_limit_faults_total", Help: "Total number of runs aborted by a resource ceiling, by code."},
		[]string{"code"},
	)
	reg.MustRegister(e.limitCounter)

	e.log.Debugf("Prometheus metrics initialized and registered.")
}

// Run executes one script through the full pipeline. Script-side outcomes,
// including rejection and limit faults, are reported in the result; the
// returned error is reserved for host-side faults such as a closed enclave.
func (e *Enclave) Run(ctx context.Context, source string) (*enclave.ExecutionResult, error) {
	return e.run(ctx, source, nil)
}

// RunWithHandler executes one script, routing every capability invocation in
// that run to handler. A nil handler falls back to the registry, making it
// equivalent to Run.
func (e *Enclave) RunWithHandler(ctx context.Context, source string, handler capability.Handler) (*enclave.ExecutionResult, error) {
	return e.run(ctx, source, handler)
}

func (e *Enclave) run(ctx context.Context, source string, handler capability.Handler) (finalResult *enclave.ExecutionResult, finalErr error) {
	if e.closed.Load() {
		return nil, enclaveerrors.NewConfigError("enclave is closed", nil)
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	tracer := e.tracerProvider.GetTracer(tracerName)
	runCtx, span := tracer.Start(ctx, "agentscript.run")
	defer span.End()

	runID := uuid.NewString()
	startTime := time.Now()
	var iterations, toolCalls int

	e.eventBus.Emit(events.Event{Type: events.RunStart, Timestamp: startTime, RunID: runID})
	e.log.Debugf("Run %s starting.", runID)

	defer func() {
		endTime := time.Now()
		duration := endTime.Sub(startTime)
		if finalResult == nil {
			finalResult = e.failedResult(runID, enclaveerrors.NewRuntimeError("run aborted before a result was assembled", finalErr))
		}
		finalResult.Stats = enclave.ExecutionStats{
			RunID:          runID,
			StartTime:      startTime,
			EndTime:        endTime,
			Duration:       duration,
			ToolCallCount:  toolCalls,
			IterationCount: iterations,
		}

		outcome := "success"
		if finalResult.Error != nil {
			outcome = finalResult.Error.Code
		}
		if e.runDuration != nil {
			e.runDuration.Observe(duration.Seconds())
		}
		if e.runCounter != nil {
			e.runCounter.WithLabelValues(outcome).Inc()
		}

		span.SetAttributes(
			attribute.String("agentscript.run.id", runID),
			attribute.String("agentscript.run.outcome", outcome),
			attribute.Int64("agentscript.run.duration_ms", duration.Milliseconds()),
			attribute.Int("agentscript.run.tool_calls", toolCalls),
			attribute.Int("agentscript.run.iterations", iterations),
		)
		if finalResult.Error != nil {
			span.SetStatus(codes.Error, finalResult.Error.Code)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		e.eventBus.Emit(events.Event{
			Type: events.RunEnd, Timestamp: endTime, RunID: runID,
			Payload: map[string]interface{}{"outcome": outcome, "duration_ms": duration.Milliseconds()},
		})
		e.log.Debugf("Run %s finished: %s.", runID, outcome)
	}()

	prepared, err := e.prepare(source)
	if err != nil {
		return e.failedResult(runID, enclaveerrors.NewParseError("script did not parse", err)), nil
	}

	if e.limits.ValidateScripts {
		vr, vErr := rules.Validate(prepared, e.policy)
		if vErr != nil {
			return e.failedResult(runID, enclaveerrors.NewParseError("script did not parse", vErr)), nil
		}
		if !vr.Valid {
			if e.rejectionCounter != nil {
				e.rejectionCounter.Inc()
			}
			e.eventBus.Emit(events.Event{
				Type: events.ValidationFailed, Timestamp: time.Now(), RunID: runID,
				Payload: map[string]interface{}{"issue_codes": issueCodes(vr.Issues)},
			})
			return e.failedResult(runID, validationError(vr.Issues)), nil
		}
	}

	// With transformation disabled and no wrapper present, the script runs
	// as submitted: top-level statements with no entry call.
	entryName := transform.EntryName
	if !transform.IsWrapped(prepared) {
		entryName = ""
	}

	env := &runtime.Env{
		Globals:     e.buildGlobals(),
		EntryName:   entryName,
		MemoryLimit: e.limits.MemoryLimit,
		OnIteration: func(kind string) error {
			iterations++
			if iterations > e.limits.MaxIterations {
				return enclaveerrors.NewIterationLimitError(e.limits.MaxIterations)
			}
			return nil
		},
		OnToolCall: func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
			toolCalls++
			if toolCalls > e.limits.MaxToolCalls {
				return nil, enclaveerrors.NewToolCallLimitError(e.limits.MaxToolCalls)
			}
			return e.invokeCapability(ctx, runID, name, args, handler)
		},
		OnConsole: func(level, message string) {
			e.log.Log(consoleLevel(level), "script console output", "run_id", runID, "console_level", level, "message", message)
		},
	}

	execCtx, cancel := context.WithTimeout(runCtx, e.limits.Timeout)
	defer cancel()

	value, execErr := e.adapter.Execute(execCtx, prepared, env)
	if execErr != nil {
		return e.failedResult(runID, e.classify(execErr)), nil
	}
	return &enclave.ExecutionResult{Success: true, Value: value}, nil
}

// prepare transforms raw source into the wrapped, rewritten form. Already
// wrapped input passes through untouched so that Run(Transform(x)) and
// Run(x) agree; with transformation disabled, source passes through as
// submitted.
func (e *Enclave) prepare(source string) (string, error) {
	if !e.limits.TransformScripts || transform.IsWrapped(source) {
		return source, nil
	}
	return transform.Transform(source, transform.Options{
		WrapEntry:           true,
		RewriteCapabilities: true,
		RewriteLoops:        true,
		Whitelist:           e.policy.Whitelist,
	})
}

// buildGlobals snapshots the data globals through the deep-copying store and
// adds the function globals. Each run gets its own copy: one run's mutation
// of a global object must never be visible to the next.
func (e *Enclave) buildGlobals() map[string]interface{} {
	globals := e.globalsStore.Snapshot()
	for name, fn := range e.funcGlobals {
		globals[name] = fn
	}
	return globals
}

// invokeCapability routes one tool call to the per-run handler when one was
// given, otherwise through the registry. The result is checked for
// plain-data shape so handlers cannot smuggle live host values into the
// sandbox.
func (e *Enclave) invokeCapability(ctx context.Context, runID, name string, args map[string]interface{}, handler capability.Handler) (interface{}, error) {
	if handler == nil {
		h, err := e.registry.Get(name)
		if err != nil {
			return nil, err
		}
		handler = h
	}
	if e.toolCallCounter != nil {
		e.toolCallCounter.WithLabelValues(name).Inc()
	}
	e.eventBus.Emit(events.Event{Type: events.ToolCall, Timestamp: time.Now(), RunID: runID, ToolName: name})

	result, err := handler.Invoke(ctx, name, args)
	if err != nil {
		return nil, err
	}
	if err := paramutil.EnsurePlain(result); err != nil {
		return nil, enclaveerrors.NewRuntimeError(fmt.Sprintf("capability '%s' returned a non-plain value: %v", name, err), err)
	}
	return result, nil
}

// classify maps execution errors onto the public taxonomy. Deadline expiry
// comes back from the adapter as a bare context error.
func (e *Enclave) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return enclaveerrors.NewTimeoutError(e.limits.Timeout.String())
	}
	if errors.Is(err, context.Canceled) {
		return enclaveerrors.NewRuntimeError("execution canceled by the host", err)
	}
	return err
}

// failedResult assembles the error side of an ExecutionResult, sanitizing
// anything that could leak host details into tenant-visible output.
func (e *Enclave) failedResult(runID string, err error) *enclave.ExecutionResult {
	return &enclave.ExecutionResult{Success: false, Error: e.toExecutionError(runID, err)}
}

func (e *Enclave) toExecutionError(runID string, err error) *enclave.ExecutionError {
	ee := &enclave.ExecutionError{
		Name:    errorName(err),
		Message: e.san.Message(err.Error()),
		Code:    enclaveerrors.CodeOf(err),
	}
	var re *enclaveerrors.RuntimeError
	if errors.As(err, &re) {
		ee.Message = e.san.Message(re.Message)
		if re.Stack != "" {
			ee.Stack = e.san.Stack(re.Stack)
		}
		if re.Data != nil {
			ee.Data = e.san.Value(re.Data)
		}
	}
	var ve *enclaveerrors.ValidationError
	if errors.As(err, &ve) {
		ee.Data = ve.Issues
	}

	if enclaveerrors.IsLimit(err) {
		if e.limitCounter != nil {
			e.limitCounter.WithLabelValues(ee.Code).Inc()
		}
		e.eventBus.Emit(events.Event{
			Type: events.LimitExceeded, Timestamp: time.Now(), RunID: runID,
			Payload: map[string]interface{}{"code": ee.Code},
		})
	}
	return ee
}

// Validate checks a script statically, running the same transform Run would
// so later wrapped execution cannot see different source than was vetted.
func (e *Enclave) Validate(source string) (*enclave.ValidationReport, error) {
	if e.closed.Load() {
		return nil, enclaveerrors.NewConfigError("enclave is closed", nil)
	}
	prepared, err := e.prepare(source)
	if err != nil {
		return &enclave.ValidationReport{
			Valid:  false,
			Issues: []enclaveerrors.Issue{{Code: enclaveerrors.CodeParse, Message: err.Error()}},
		}, nil
	}
	result, vErr := rules.Validate(prepared, e.policy)
	if vErr != nil {
		return &enclave.ValidationReport{
			Valid:  false,
			Issues: []enclaveerrors.Issue{{Code: enclaveerrors.CodeParse, Message: vErr.Error()}},
		}, nil
	}
	report := &enclave.ValidationReport{Valid: result.Valid}
	for _, issue := range result.Issues {
		report.Issues = append(report.Issues, enclaveerrors.Issue{Code: issue.Code, Message: issue.Message})
	}
	return report, nil
}

// Close releases the runtime and the globals store. It is idempotent;
// in-flight runs finish first because Close takes the run lock.
func (e *Enclave) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	var firstErr error
	if err := e.adapter.Close(); err != nil {
		firstErr = err
	}
	if err := e.globalsStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Enclave) MetricsRegistryProvider() metrics.RegistryProvider { return e.metricsProvider }
func (e *Enclave) TracerProvider() enclavetracing.TracerProvider     { return e.tracerProvider }

func (e *Enclave) SetLogger(logger enclavelog.Logger) error {
	if logger == nil {
		return enclaveerrors.NewConfigError("logger cannot be nil", nil)
	}
	e.log = logger
	return nil
}

func (e *Enclave) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return enclaveerrors.NewConfigError("event bus cannot be nil", nil)
	}
	e.eventBus = bus
	return nil
}

func (e *Enclave) SetCapabilityRegistry(registry capability.Registry) error {
	if registry == nil {
		return enclaveerrors.NewConfigError("capability registry cannot be nil", nil)
	}
	e.registry = registry
	return nil
}

func (e *Enclave) SetMetricsRegistryProvider(provider metrics.RegistryProvider) error {
	if provider == nil {
		return enclaveerrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	e.metricsProvider = provider
	e.initMetrics()
	return nil
}

func (e *Enclave) SetTracerProvider(provider enclavetracing.TracerProvider) error {
	if provider == nil {
		return enclaveerrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	e.tracerProvider = provider
	return nil
}

func (e *Enclave) SetRuntimeAdapter(adapter runtime.Adapter) error {
	if adapter == nil {
		return enclaveerrors.NewConfigError("runtime adapter cannot be nil", nil)
	}
	e.adapter = adapter
	return nil
}

func validationError(issues []rules.Issue) error {
	converted := make([]enclaveerrors.Issue, len(issues))
	for i, issue := range issues {
		converted[i] = enclaveerrors.Issue{Code: issue.Code, Message: issue.Message}
	}
	return enclaveerrors.NewValidationError(converted)
}

func issueCodes(issues []rules.Issue) []string {
	seen := make(map[string]struct{}, len(issues))
	codes := make([]string, 0, len(issues))
	for _, issue := range issues {
		if _, dup := seen[issue.Code]; dup {
			continue
		}
		seen[issue.Code] = struct{}{}
		codes = append(codes, issue.Code)
	}
	return codes
}

func errorName(err error) string {
	switch {
	case isA[*enclaveerrors.ParseError](err):
		return "ParseError"
	case isA[*enclaveerrors.ValidationError](err):
		return "ValidationError"
	case isA[*enclaveerrors.IterationLimitError](err):
		return "IterationLimitError"
	case isA[*enclaveerrors.ToolCallLimitError](err):
		return "ToolCallLimitError"
	case isA[*enclaveerrors.TimeoutError](err):
		return "TimeoutError"
	case isA[*enclaveerrors.MemoryLimitError](err):
		return "MemoryLimitError"
	case isA[*enclaveerrors.CapabilityNotFoundError](err):
		return "CapabilityNotFoundError"
	case isA[*enclaveerrors.ConfigError](err):
		return "ConfigError"
	default:
		return "RuntimeError"
	}
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func consoleLevel(level string) slog.Level {
	switch level {
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
