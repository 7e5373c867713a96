package interp

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/enclave-labs/agentscript/internal/ast"
)

// Script values are represented directly as Go values: nil, bool, float64,
// string, *arrayVal, map[string]interface{} for objects, *closure for
// script functions, and *nativeFn for host builtins. Objects and arrays are
// reference types so that aliased mutation behaves the way scripts expect.

// arrayVal is a mutable array. A pointer is shared between aliases so that
// push and friends are visible through every reference.
type arrayVal struct {
	elems []interface{}
}

func newArray(elems []interface{}) *arrayVal {
	return &arrayVal{elems: elems}
}

// closure is a script-defined function captured with its defining
// environment.
type closure struct {
	fn   *ast.FunctionLit
	env  *environment
	name string
}

// nativeFn is a builtin implemented in Go. The run receiver gives natives
// access to the hooks and the memory meter.
type nativeFn struct {
	name  string
	arity int
	fn    func(r *run, args []interface{}) (interface{}, error)
}

// boundMethod pairs a receiver with a native method so that `arr.push` can
// be read as a value and called later.
type boundMethod struct {
	recv   interface{}
	method *nativeFn
}

// truthy implements the language's boolean coercion: false, null, 0, NaN,
// and the empty string are falsy; every object and array is truthy.
func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	default:
		return true
	}
}

// strictEquals implements the semantics of ===: same type and same value,
// with objects and arrays compared by reference.
func strictEquals(a, b interface{}) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

// typeOf mirrors the typeof operator's classification for error messages.
func typeOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case *arrayVal:
		return "array"
	case map[string]interface{}:
		return "object"
	case *closure, *nativeFn, *boundMethod:
		return "function"
	default:
		return "object"
	}
}

// toDisplayString renders a value the way console output and string
// concatenation show it.
func toDisplayString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(x)
	case string:
		return x
	case *arrayVal:
		parts := make([]string, len(x.elems))
		for i, e := range x.elems {
			parts[i] = toDisplayString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + toDisplayString(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *closure:
		if x.name != "" {
			return "[function " + x.name + "]"
		}
		return "[function]"
	case *nativeFn:
		return "[function " + x.name + "]"
	case *boundMethod:
		return "[function " + x.method.name + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatNumber renders a float the way scripts expect: integers without a
// decimal point, everything else in shortest form.
func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// toNumber implements numeric coercion for arithmetic on non-numbers.
func toNumber(v interface{}) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case float64:
		return x
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// fromHost converts a host Go value (globals, tool-call results) into the
// interpreter's representation. Maps and slices are converted recursively;
// numbers widen to float64.
func fromHost(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []interface{}:
		elems := make([]interface{}, len(x))
		for i, e := range x {
			elems[i] = fromHost(e)
		}
		return newArray(elems)
	case map[string]interface{}:
		obj := make(map[string]interface{}, len(x))
		for k, e := range x {
			obj[k] = fromHost(e)
		}
		return obj
	case []string:
		elems := make([]interface{}, len(x))
		for i, e := range x {
			elems[i] = e
		}
		return newArray(elems)
	case map[string]string:
		obj := make(map[string]interface{}, len(x))
		for k, e := range x {
			obj[k] = e
		}
		return obj
	default:
		return x
	}
}

// toHost converts an interpreter value back into plain Go data for results
// and tool-call arguments. Functions convert to nil; they cannot cross the
// boundary.
func toHost(v interface{}) interface{} {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return x
	case *arrayVal:
		out := make([]interface{}, len(x.elems))
		for i, e := range x.elems {
			out[i] = toHost(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = toHost(e)
		}
		return out
	case *closure, *nativeFn, *boundMethod:
		return nil
	default:
		return x
	}
}

// estimateSize approximates the heap cost of a value in bytes for the
// memory meter. The estimate is shallow; containers are charged again as
// their elements are created.
func estimateSize(v interface{}) int64 {
	switch x := v.(type) {
	case nil, bool:
		return 8
	case float64:
		return 8
	case string:
		return int64(16 + len(x))
	case *arrayVal:
		return int64(24 + 8*len(x.elems))
	case map[string]interface{}:
		return int64(48 + 32*len(x))
	default:
		return 32
	}
}
