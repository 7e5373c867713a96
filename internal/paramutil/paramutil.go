// Package paramutil provides helpers for validating capability-call
// arguments at the sandbox boundary and inside host capability handlers.
package paramutil

import (
	"fmt"
	"reflect"

	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
)

// RequireObject checks that a capability-call argument value is a plain
// object and returns it as a map. Anything else, including nil, is rejected
// with a runtime fault.
func RequireObject(value interface{}) (map[string]interface{}, error) {
	if value == nil {
		return nil, enclaveerrors.NewRuntimeError("tool call arguments must be an object, got null", nil)
	}
	mapValue, ok := value.(map[string]interface{})
	if !ok {
		return nil, enclaveerrors.NewRuntimeError(fmt.Sprintf("tool call arguments must be an object, got %T", value), nil)
	}
	if err := EnsurePlain(mapValue); err != nil {
		return nil, err
	}
	return mapValue, nil
}

// EnsurePlain verifies that a value is JSON-shaped all the way down:
// strings, numbers, booleans, null, plain objects, and arrays. Functions and
// other host types cannot cross the boundary.
func EnsurePlain(value interface{}) error {
	return ensurePlainRecursive(value, "")
}

func ensurePlainRecursive(value interface{}, path string) error {
	switch v := value.(type) {
	case nil, string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return nil
	case map[string]interface{}:
		for key, nested := range v {
			if err := ensurePlainRecursive(nested, joinPath(path, key)); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		for i, nested := range v {
			if err := ensurePlainRecursive(nested, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		kind := reflect.ValueOf(value).Kind()
		where := path
		if where == "" {
			where = "arguments"
		}
		if kind == reflect.Func {
			return enclaveerrors.NewRuntimeError(fmt.Sprintf("tool call arguments cannot contain functions (at %s)", where), nil)
		}
		return enclaveerrors.NewRuntimeError(fmt.Sprintf("tool call arguments must be plain data, got %T at %s", value, where), nil)
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// GetRequiredString retrieves a required string argument from an args map.
// Capability handlers use these helpers to fail cleanly on malformed calls.
func GetRequiredString(args map[string]interface{}, key string) (string, error) {
	value, exists := args[key]
	if !exists {
		return "", enclaveerrors.NewRuntimeError(fmt.Sprintf("missing required argument '%s'", key), nil)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", enclaveerrors.NewRuntimeError(fmt.Sprintf("argument '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, nil
}

// GetOptionalString retrieves an optional string argument. It returns the
// value and true if present, empty string and false if absent, or an error
// if the key exists with the wrong type.
func GetOptionalString(args map[string]interface{}, key string) (string, bool, error) {
	value, exists := args[key]
	if !exists {
		return "", false, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", false, enclaveerrors.NewRuntimeError(fmt.Sprintf("argument '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, true, nil
}

// GetOptionalNumber retrieves an optional numeric argument as a float64,
// converting from any Go numeric type the host may have put in the map.
func GetOptionalNumber(args map[string]interface{}, key string) (float64, bool, error) {
	value, exists := args[key]
	if !exists {
		return 0, false, nil
	}
	switch n := value.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	default:
		return 0, false, enclaveerrors.NewRuntimeError(fmt.Sprintf("argument '%s' must be a number, got %T", key, value), nil)
	}
}

// GetOptionalMap retrieves an optional object argument.
func GetOptionalMap(args map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	value, exists := args[key]
	if !exists {
		return nil, false, nil
	}
	mapValue, ok := value.(map[string]interface{})
	if !ok {
		return nil, false, enclaveerrors.NewRuntimeError(fmt.Sprintf("argument '%s' must be an object, got %T", key, value), nil)
	}
	return mapValue, true, nil
}
