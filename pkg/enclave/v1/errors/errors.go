package errors

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced in ExecutionResult.Error.Code. Scripts cannot
// distinguish "rejected before execution" from "failed during execution"
// except through these.
const (
	CodeParse          = "E_PARSE"
	CodeValidation     = "E_VALIDATION"
	CodeIterationLimit = "E_ITERATION_LIMIT"
	CodeToolCallLimit  = "E_TOOL_CALL_LIMIT"
	CodeTimeout        = "E_TIMEOUT"
	CodeMemoryLimit    = "E_MEMORY_LIMIT"
	CodeRuntime        = "E_RUNTIME"
	CodeConfig         = "E_CONFIG"
)

// ConfigError represents an invalid enclave configuration. It is the one
// taxonomy member that fails synchronously at construction rather than being
// converted into an ExecutionResult: it is a programming error by the host,
// not a runtime-data condition.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }
func (e *ConfigError) Code() string  { return CodeConfig }

// ParseError indicates the script source could not be parsed.
type ParseError struct {
	Message string
	Cause   error
}

func NewParseError(message string, cause error) *ParseError {
	return &ParseError{Message: message, Cause: cause}
}
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}
func (e *ParseError) Unwrap() error { return e.Cause }
func (e *ParseError) Code() string  { return CodeParse }

// Issue is one static-rule violation found during validation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError indicates one or more validation rules fired. All issues
// found are reported; none of the script executed.
type ValidationError struct {
	Issues []Issue
}

func NewValidationError(issues []Issue) *ValidationError {
	return &ValidationError{Issues: issues}
}
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("validation failed: %s", e.Issues[0].Message)
	}
	return fmt.Sprintf("validation failed with %d issues", len(e.Issues))
}
func (e *ValidationError) Code() string { return CodeValidation }

// IterationLimitError indicates the per-run iteration ceiling was exceeded.
type IterationLimitError struct {
	Limit int
}

func NewIterationLimitError(limit int) *IterationLimitError {
	return &IterationLimitError{Limit: limit}
}
func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("iteration limit exceeded: %d", e.Limit)
}
func (e *IterationLimitError) Code() string { return CodeIterationLimit }

// ToolCallLimitError indicates the per-run capability-call ceiling was
// exceeded.
type ToolCallLimitError struct {
	Limit int
}

func NewToolCallLimitError(limit int) *ToolCallLimitError {
	return &ToolCallLimitError{Limit: limit}
}
func (e *ToolCallLimitError) Error() string {
	return fmt.Sprintf("tool call limit exceeded: %d", e.Limit)
}
func (e *ToolCallLimitError) Code() string { return CodeToolCallLimit }

// TimeoutError indicates the wall-clock ceiling elapsed before the run
// finished. Cancellation is cooperative: the fault interrupts execution at
// the next suspension point.
type TimeoutError struct {
	Limit string
}

func NewTimeoutError(limit string) *TimeoutError {
	return &TimeoutError{Limit: limit}
}
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %s", e.Limit)
}
func (e *TimeoutError) Code() string { return CodeTimeout }

// MemoryLimitError indicates the approximate heap estimate of the run
// exceeded the configured ceiling.
type MemoryLimitError struct {
	Limit int64
}

func NewMemoryLimitError(limit int64) *MemoryLimitError {
	return &MemoryLimitError{Limit: limit}
}
func (e *MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded: %d bytes", e.Limit)
}
func (e *MemoryLimitError) Code() string { return CodeMemoryLimit }

// RuntimeError is an uncaught fault raised by the governed script itself.
// Data carries the thrown value when the script threw a non-error value.
type RuntimeError struct {
	Message string
	Stack   string
	Data    interface{}
	Cause   error
}

func NewRuntimeError(message string, cause error) *RuntimeError {
	return &RuntimeError{Message: message, Cause: cause}
}
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Message)
}
func (e *RuntimeError) Unwrap() error { return e.Cause }
func (e *RuntimeError) Code() string  { return CodeRuntime }

// CapabilityNotFoundError indicates that a script invoked a capability name
// with no registered handler and no default handler to fall back on.
type CapabilityNotFoundError struct {
	Name string
}

func NewCapabilityNotFoundError(name string) *CapabilityNotFoundError {
	return &CapabilityNotFoundError{Name: name}
}
func (e *CapabilityNotFoundError) Error() string {
	return fmt.Sprintf("capability not found: %s", e.Name)
}
func (e *CapabilityNotFoundError) Code() string { return CodeRuntime }

// Coded is implemented by every taxonomy member.
type Coded interface {
	error
	Code() string
}

// CodeOf extracts the taxonomy code from err, defaulting to CodeRuntime for
// unclassified faults.
func CodeOf(err error) string {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeRuntime
}

// IsLimit reports whether err is any of the resource-ceiling faults.
func IsLimit(err error) bool {
	switch CodeOf(err) {
	case CodeIterationLimit, CodeToolCallLimit, CodeTimeout, CodeMemoryLimit:
		return true
	}
	return false
}
