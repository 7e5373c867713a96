package config

import (
	"fmt"
	"time"

	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

// Level names for the built-in security presets, ordered from most to least
// restrictive. Every ceiling in a preset is at least as tight as the same
// ceiling in any preset below it.
const (
	LevelStrict     = "STRICT"
	LevelSecure     = "SECURE"
	LevelStandard   = "STANDARD"
	LevelPermissive = "PERMISSIVE"
)

// Limits is the fully resolved set of resource ceilings for an enclave.
// Construction goes through Resolve; zero values are never valid ceilings.
type Limits struct {
	// Timeout is the wall-clock ceiling per run.
	Timeout time.Duration
	// MemoryLimit is the approximate heap ceiling per run, in bytes.
	MemoryLimit int64
	// MaxToolCalls is the capability-invocation ceiling per run.
	MaxToolCalls int
	// MaxIterations is the loop-iteration ceiling per run, summed across
	// all loops.
	MaxIterations int
	// SanitizeStackTraces strips host frames and absolute paths from stack
	// traces surfaced in results.
	SanitizeStackTraces bool
	// AllowFunctionsInGlobals permits Go function values in the globals
	// map. When false, construction fails if any global is callable.
	AllowFunctionsInGlobals bool
	// ValidateScripts runs the static rules on every script before
	// execution. On by default; disabling it is an escape hatch for hosts
	// that vet source through a separate pipeline.
	ValidateScripts bool
	// TransformScripts applies the entry wrap and the capability and loop
	// rewrites before execution. On by default; disabled, source runs as
	// submitted.
	TransformScripts bool
}

const (
	kib = 1024
	mib = 1024 * kib
)

// presets holds the built-in ceiling sets keyed by level name.
var presets = map[string]Limits{
	LevelStrict: {
		Timeout:             5 * time.Second,
		MemoryLimit:         8 * mib,
		MaxToolCalls:        10,
		MaxIterations:       10_000,
		SanitizeStackTraces: true,
	},
	LevelSecure: {
		Timeout:             10 * time.Second,
		MemoryLimit:         16 * mib,
		MaxToolCalls:        25,
		MaxIterations:       100_000,
		SanitizeStackTraces: true,
	},
	LevelStandard: {
		Timeout:       30 * time.Second,
		MemoryLimit:   32 * mib,
		MaxToolCalls:  50,
		MaxIterations: 1_000_000,
	},
	LevelPermissive: {
		Timeout:       120 * time.Second,
		MemoryLimit:   128 * mib,
		MaxToolCalls:  200,
		MaxIterations: 10_000_000,
	},
}

// Levels returns the preset level names from most to least restrictive.
func Levels() []string {
	return []string{LevelStrict, LevelSecure, LevelStandard, LevelPermissive}
}

// PresetFor returns the built-in ceiling set for the given level name.
func PresetFor(level string) (Limits, error) {
	preset, ok := presets[level]
	if !ok {
		return Limits{}, enclaveerrors.NewConfigError(fmt.Sprintf("unknown security level '%s'", level), nil)
	}
	return preset, nil
}

// Profile is the declarative enclave configuration loaded from YAML. All
// ceiling fields are optional; unset fields inherit from the preset named by
// Level. Pointer types distinguish "absent" from explicit zero so that a
// profile can never silently disable a ceiling.
type Profile struct {
	SchemaVersion           string   `yaml:"schemaVersion" json:"schemaVersion"`
	Level                   string   `yaml:"level" json:"level"`
	Timeout                 string   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MemoryLimitBytes        *int64   `yaml:"memory_limit_bytes,omitempty" json:"memory_limit_bytes,omitempty"`
	MaxToolCalls            *int     `yaml:"max_tool_calls,omitempty" json:"max_tool_calls,omitempty"`
	MaxIterations           *int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	SanitizeStackTraces     *bool    `yaml:"sanitize_stack_traces,omitempty" json:"sanitize_stack_traces,omitempty"`
	AllowFunctionsInGlobals *bool    `yaml:"allow_functions_in_globals,omitempty" json:"allow_functions_in_globals,omitempty"`
	Validate                *bool    `yaml:"validate,omitempty" json:"validate,omitempty"`
	Transform               *bool    `yaml:"transform,omitempty" json:"transform,omitempty"`
	CustomGlobals           []string `yaml:"custom_globals,omitempty" json:"custom_globals,omitempty"`

	// FilePath records where the profile was loaded from, for diagnostics.
	FilePath string `yaml:"-" json:"-"`
}

// DefaultProfile returns a profile selecting the STANDARD preset with no
// overrides.
func DefaultProfile() *Profile {
	return &Profile{SchemaVersion: "1.0.0", Level: LevelStandard}
}

// Resolve merges the profile's overrides onto its preset and returns the
// effective ceilings. An explicit field always wins over the preset's value
// for that field, in either direction; only non-positive ceilings are
// rejected, since a zero ceiling would silently disable enforcement.
func (p *Profile) Resolve() (Limits, error) {
	limits, err := PresetFor(p.Level)
	if err != nil {
		return Limits{}, err
	}
	limits.ValidateScripts = true
	limits.TransformScripts = true

	if p.Timeout != "" {
		d, parseErr := time.ParseDuration(p.Timeout)
		if parseErr != nil {
			return Limits{}, enclaveerrors.NewConfigError(fmt.Sprintf("invalid format for 'timeout': %v", parseErr), nil)
		}
		if d <= 0 {
			return Limits{}, enclaveerrors.NewConfigError("'timeout' must be positive", nil)
		}
		limits.Timeout = d
	}
	if p.MemoryLimitBytes != nil {
		v := *p.MemoryLimitBytes
		if v <= 0 {
			return Limits{}, enclaveerrors.NewConfigError("'memory_limit_bytes' must be positive", nil)
		}
		limits.MemoryLimit = v
	}
	if p.MaxToolCalls != nil {
		v := *p.MaxToolCalls
		if v <= 0 {
			return Limits{}, enclaveerrors.NewConfigError("'max_tool_calls' must be positive", nil)
		}
		limits.MaxToolCalls = v
	}
	if p.MaxIterations != nil {
		v := *p.MaxIterations
		if v <= 0 {
			return Limits{}, enclaveerrors.NewConfigError("'max_iterations' must be positive", nil)
		}
		limits.MaxIterations = v
	}
	if p.SanitizeStackTraces != nil {
		limits.SanitizeStackTraces = *p.SanitizeStackTraces
	}
	if p.AllowFunctionsInGlobals != nil {
		limits.AllowFunctionsInGlobals = *p.AllowFunctionsInGlobals
	}
	if p.Validate != nil {
		limits.ValidateScripts = *p.Validate
	}
	if p.Transform != nil {
		limits.TransformScripts = *p.Transform
	}

	return limits, nil
}
