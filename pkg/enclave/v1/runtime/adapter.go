// Package runtime defines the seam between the enclave governor and the
// engine that actually evaluates transformed script source. The built-in
// in-process interpreter implements Adapter; hosts may substitute an
// embedded JavaScript engine instead.
package runtime

import "context"

// Env carries everything a run needs from the governor: the per-run globals
// snapshot and the hooks through which the adapter reports back across the
// boundary. A fresh Env is built for every run; adapters must not retain it
// after Execute returns.
type Env struct {
	// Globals is the ambient binding set for the run. Values are already
	// deep-copied; the adapter may expose them to the script directly.
	Globals map[string]interface{}

	// OnIteration is invoked once per loop-body execution, before the body
	// runs. A non-nil return aborts the run with that error. Kind is the
	// loop wrapper that fired ("forOf", "for", "while", "doWhile").
	OnIteration func(kind string) error

	// OnToolCall services a capability invocation. The returned value is
	// handed back to the script; an error aborts the run.
	OnToolCall func(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)

	// OnConsole receives script console output. Level is "log", "warn", or
	// "error". A nil hook discards output.
	OnConsole func(level string, message string)

	// EntryName is the wrapper function the adapter must invoke after
	// evaluating the top level; its return value is the run's result.
	EntryName string

	// MemoryLimit is the approximate heap ceiling in bytes for the run.
	// Zero means unlimited. Adapters that cannot estimate heap usage may
	// ignore it; the built-in interpreter enforces it.
	MemoryLimit int64
}

// GoFunc is the one host-function shape that may appear in globals when the
// enclave allows callable globals. Arguments arrive as plain Go data and the
// returned value is converted back into the script world.
type GoFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// FunctionGlobal marks a global whose value is script source defining a
// callable. The enclave validates the source against the same static rules
// as run scripts before the adapter evaluates it into the run's scope.
type FunctionGlobal struct {
	Source string
}

// Adapter evaluates transformed script source under an Env. Execute must
// honor ctx cancellation at suspension points (loop-guard calls and tool
// calls at minimum) and return the resulting value of the entry function.
//
// An Adapter is used serially per enclave; implementations need not be safe
// for concurrent Execute calls on the same instance.
type Adapter interface {
	Execute(ctx context.Context, source string, env *Env) (interface{}, error)

	// Close releases engine resources. The governor calls it exactly once.
	Close() error
}
