package interp

import (
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/enclave-labs/agentscript/internal/transform"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
)

// installBuiltins defines the standard library namespaces in the global
// environment. The set matches the free names scripts may reference.
func installBuiltins(r *run, global *environment) {
	global.define("undefined", nil, true)
	global.define("console", consoleObject(), true)
	global.define("JSON", jsonObject(), true)
	global.define("Math", mathObject(), true)
	global.define("Object", objectNamespace(), true)
	global.define("Array", arrayNamespace(), true)
	global.define("Date", dateObject(), true)

	global.define("String", method("String", 1, func(r *run, args []interface{}) (interface{}, error) {
		v := argAt(args, 0)
		if v == nil {
			return "null", nil
		}
		s := toDisplayString(v)
		if err := r.charge(s); err != nil {
			return nil, err
		}
		return s, nil
	}), true)
	global.define("Number", method("Number", 1, func(r *run, args []interface{}) (interface{}, error) {
		return toNumber(argAt(args, 0)), nil
	}), true)
	global.define("Boolean", method("Boolean", 1, func(r *run, args []interface{}) (interface{}, error) {
		return truthy(argAt(args, 0)), nil
	}), true)
	global.define("parseInt", method("parseInt", 1, func(r *run, args []interface{}) (interface{}, error) {
		s, ok := argAt(args, 0).(string)
		if !ok {
			s = toDisplayString(argAt(args, 0))
		}
		radix := 10
		if n := argAt(args, 1); n != nil {
			radix = int(toNumber(n))
		}
		return parseIntPrefix(s, radix), nil
	}), true)
	global.define("parseFloat", method("parseFloat", 1, func(r *run, args []interface{}) (interface{}, error) {
		s, ok := argAt(args, 0).(string)
		if !ok {
			s = toDisplayString(argAt(args, 0))
		}
		return parseFloatPrefix(s), nil
	}), true)
	global.define("isNaN", method("isNaN", 1, func(r *run, args []interface{}) (interface{}, error) {
		return math.IsNaN(toNumber(argAt(args, 0))), nil
	}), true)
}

func consoleObject() map[string]interface{} {
	emit := func(level string) *nativeFn {
		return method("console."+level, 1, func(r *run, args []interface{}) (interface{}, error) {
			if r.env.OnConsole == nil {
				return nil, nil
			}
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = toDisplayString(a)
			}
			r.env.OnConsole(level, strings.Join(parts, " "))
			return nil, nil
		})
	}
	return map[string]interface{}{
		"log":   emit("log"),
		"warn":  emit("warn"),
		"error": emit("error"),
	}
}

func jsonObject() map[string]interface{} {
	return map[string]interface{}{
		"stringify": method("JSON.stringify", 1, func(r *run, args []interface{}) (interface{}, error) {
			host := jsonSafe(toHost(argAt(args, 0)))
			if host == nil && argAt(args, 0) == nil {
				return "null", nil
			}
			var out []byte
			var err error
			switch indent := argAt(args, 2).(type) {
			case float64:
				out, err = json.MarshalIndent(host, "", strings.Repeat(" ", int(indent)))
			case string:
				out, err = json.MarshalIndent(host, "", indent)
			default:
				out, err = json.Marshal(host)
			}
			if err != nil {
				return nil, &thrown{value: "value is not serializable: " + err.Error()}
			}
			s := string(out)
			if err := r.charge(s); err != nil {
				return nil, err
			}
			return s, nil
		}),
		"parse": method("JSON.parse", 1, func(r *run, args []interface{}) (interface{}, error) {
			s, ok := argAt(args, 0).(string)
			if !ok {
				return nil, &thrown{value: "JSON.parse expects a string"}
			}
			var host interface{}
			if err := json.Unmarshal([]byte(s), &host); err != nil {
				return nil, &thrown{value: "invalid JSON: " + err.Error()}
			}
			v := fromHost(host)
			if err := r.charge(v); err != nil {
				return nil, err
			}
			return v, nil
		}),
	}
}

// jsonSafe replaces non-finite numbers with null so encoding does not fail.
func jsonSafe(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = jsonSafe(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = jsonSafe(e)
		}
		return out
	default:
		return v
	}
}

func mathObject() map[string]interface{} {
	unary := func(name string, fn func(float64) float64) *nativeFn {
		return method("Math."+name, 1, func(r *run, args []interface{}) (interface{}, error) {
			return fn(toNumber(argAt(args, 0))), nil
		})
	}
	spread := func(name string, pick func(a, b float64) bool, empty float64) *nativeFn {
		return method("Math."+name, 1, func(r *run, args []interface{}) (interface{}, error) {
			best := empty
			for _, a := range args {
				n := toNumber(a)
				if math.IsNaN(n) {
					return math.NaN(), nil
				}
				if pick(n, best) {
					best = n
				}
			}
			return best, nil
		})
	}
	return map[string]interface{}{
		"PI":    math.Pi,
		"E":     math.E,
		"abs":   unary("abs", math.Abs),
		"floor": unary("floor", math.Floor),
		"ceil":  unary("ceil", math.Ceil),
		"round": unary("round", math.Round),
		"trunc": unary("trunc", math.Trunc),
		"sqrt":  unary("sqrt", math.Sqrt),
		"log":   unary("log", math.Log),
		"exp":   unary("exp", math.Exp),
		"sign": unary("sign", func(n float64) float64 {
			switch {
			case n > 0:
				return 1
			case n < 0:
				return -1
			default:
				return n
			}
		}),
		"pow": method("Math.pow", 2, func(r *run, args []interface{}) (interface{}, error) {
			return math.Pow(toNumber(argAt(args, 0)), toNumber(argAt(args, 1))), nil
		}),
		"min": spread("min", func(a, b float64) bool { return a < b }, math.Inf(1)),
		"max": spread("max", func(a, b float64) bool { return a > b }, math.Inf(-1)),
		"random": method("Math.random", 0, func(r *run, args []interface{}) (interface{}, error) {
			return rand.Float64(), nil
		}),
	}
}

func objectNamespace() map[string]interface{} {
	requireObject := func(v interface{}) (map[string]interface{}, error) {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, &thrown{value: "expected an object, got " + typeOf(v)}
		}
		return obj, nil
	}
	return map[string]interface{}{
		"keys": method("Object.keys", 1, func(r *run, args []interface{}) (interface{}, error) {
			obj, err := requireObject(argAt(args, 0))
			if err != nil {
				return nil, err
			}
			keys := sortedKeys(obj)
			elems := make([]interface{}, len(keys))
			for i, k := range keys {
				elems[i] = k
			}
			out := newArray(elems)
			if err := r.charge(out); err != nil {
				return nil, err
			}
			return out, nil
		}),
		"values": method("Object.values", 1, func(r *run, args []interface{}) (interface{}, error) {
			obj, err := requireObject(argAt(args, 0))
			if err != nil {
				return nil, err
			}
			elems := make([]interface{}, 0, len(obj))
			for _, k := range sortedKeys(obj) {
				elems = append(elems, obj[k])
			}
			out := newArray(elems)
			if err := r.charge(out); err != nil {
				return nil, err
			}
			return out, nil
		}),
		"entries": method("Object.entries", 1, func(r *run, args []interface{}) (interface{}, error) {
			obj, err := requireObject(argAt(args, 0))
			if err != nil {
				return nil, err
			}
			elems := make([]interface{}, 0, len(obj))
			for _, k := range sortedKeys(obj) {
				elems = append(elems, newArray([]interface{}{k, obj[k]}))
			}
			out := newArray(elems)
			if err := r.charge(out); err != nil {
				return nil, err
			}
			return out, nil
		}),
		"assign": method("Object.assign", 1, func(r *run, args []interface{}) (interface{}, error) {
			target, err := requireObject(argAt(args, 0))
			if err != nil {
				return nil, err
			}
			for _, src := range args[1:] {
				obj, ok := src.(map[string]interface{})
				if !ok {
					continue
				}
				for k, v := range obj {
					target[k] = v
					if err := r.charge(v); err != nil {
						return nil, err
					}
				}
			}
			return target, nil
		}),
	}
}

func arrayNamespace() map[string]interface{} {
	return map[string]interface{}{
		"isArray": method("Array.isArray", 1, func(r *run, args []interface{}) (interface{}, error) {
			_, ok := argAt(args, 0).(*arrayVal)
			return ok, nil
		}),
		"from": method("Array.from", 1, func(r *run, args []interface{}) (interface{}, error) {
			var elems []interface{}
			switch src := argAt(args, 0).(type) {
			case *arrayVal:
				elems = append(elems, src.elems...)
			case string:
				for _, ch := range src {
					elems = append(elems, string(ch))
				}
			default:
				return nil, &thrown{value: "value of type " + typeOf(src) + " is not iterable"}
			}
			out := newArray(elems)
			if err := r.charge(out); err != nil {
				return nil, err
			}
			return out, nil
		}),
	}
}

func dateObject() map[string]interface{} {
	return map[string]interface{}{
		"now": method("Date.now", 0, func(r *run, args []interface{}) (interface{}, error) {
			return float64(time.Now().UnixMilli()), nil
		}),
	}
}

// installGuards defines the reserved wrapper natives the loop and capability
// rewrites call into. Scripts cannot declare these names themselves.
func installGuards(r *run, global *environment) {
	global.define(transform.CallToolWrapper, method(transform.CallToolWrapper, 2, func(r *run, args []interface{}) (interface{}, error) {
		name, ok := argAt(args, 0).(string)
		if !ok {
			return nil, &thrown{value: "tool name must be a string"}
		}
		var hostArgs map[string]interface{}
		switch a := toHost(argAt(args, 1)).(type) {
		case nil:
			hostArgs = map[string]interface{}{}
		case map[string]interface{}:
			hostArgs = a
		default:
			return nil, &thrown{value: "tool arguments must be an object"}
		}
		if r.env.OnToolCall == nil {
			return nil, &thrown{value: "tool calls are not available"}
		}
		result, err := r.env.OnToolCall(r.ctx, name, hostArgs)
		if err != nil {
			return nil, err
		}
		v := fromHost(result)
		if err := r.charge(v); err != nil {
			return nil, err
		}
		return v, nil
	}), true)

	global.define(transform.ForOfWrapper, method(transform.ForOfWrapper, 2, func(r *run, args []interface{}) (interface{}, error) {
		body := argAt(args, 1)
		return nil, r.iterate(argAt(args, 0), "forOf", func(elem interface{}) error {
			err := r.callLoopBody(body, []interface{}{elem})
			if _, isContinue := err.(continueSignal); isContinue {
				return nil
			}
			return err
		})
	}), true)

	global.define(transform.ForWrapper, method(transform.ForWrapper, 3, func(r *run, args []interface{}) (interface{}, error) {
		cond, post, body := argAt(args, 0), argAt(args, 1), argAt(args, 2)
		for {
			if err := r.checkCtx(); err != nil {
				return nil, err
			}
			keep, err := r.call(cond, nil)
			if err != nil {
				return nil, err
			}
			if !truthy(keep) {
				return nil, nil
			}
			if err := r.tick("for"); err != nil {
				return nil, err
			}
			stop, err := runGuardBody(r, body)
			if err != nil || stop {
				return nil, err
			}
			if _, err := r.call(post, nil); err != nil {
				return nil, err
			}
		}
	}), true)

	global.define(transform.WhileWrapper, method(transform.WhileWrapper, 2, func(r *run, args []interface{}) (interface{}, error) {
		cond, body := argAt(args, 0), argAt(args, 1)
		for {
			if err := r.checkCtx(); err != nil {
				return nil, err
			}
			keep, err := r.call(cond, nil)
			if err != nil {
				return nil, err
			}
			if !truthy(keep) {
				return nil, nil
			}
			if err := r.tick("while"); err != nil {
				return nil, err
			}
			stop, err := runGuardBody(r, body)
			if err != nil || stop {
				return nil, err
			}
		}
	}), true)

	global.define(transform.DoWhileWrapper, method(transform.DoWhileWrapper, 2, func(r *run, args []interface{}) (interface{}, error) {
		body, cond := argAt(args, 0), argAt(args, 1)
		for {
			if err := r.checkCtx(); err != nil {
				return nil, err
			}
			if err := r.tick("doWhile"); err != nil {
				return nil, err
			}
			stop, err := runGuardBody(r, body)
			if err != nil || stop {
				return nil, err
			}
			keep, err := r.call(cond, nil)
			if err != nil {
				return nil, err
			}
			if !truthy(keep) {
				return nil, nil
			}
		}
	}), true)
}

// runGuardBody executes one rewritten loop-body closure, translating the
// break and continue signals back into loop control.
func runGuardBody(r *run, body interface{}) (stop bool, err error) {
	callErr := r.callLoopBody(body, nil)
	switch callErr.(type) {
	case nil:
		return false, nil
	case breakSignal:
		return true, nil
	case continueSignal:
		return false, nil
	default:
		return true, callErr
	}
}

// goFuncNative bridges a host Go function into a callable script value.
// Arguments cross as plain data; the host error aborts the run unchanged.
func goFuncNative(name string, g runtime.GoFunc) *nativeFn {
	return method(name, 0, func(r *run, args []interface{}) (interface{}, error) {
		host := make([]interface{}, len(args))
		for i, a := range args {
			host[i] = toHost(a)
		}
		result, err := g(r.ctx, host)
		if err != nil {
			return nil, err
		}
		v := fromHost(result)
		if err := r.charge(v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// parseIntPrefix parses the longest leading integer in the given radix,
// returning NaN when no digits are present.
func parseIntPrefix(s string, radix int) float64 {
	s = strings.TrimSpace(s)
	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign = -1
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	if radix == 16 || radix == 0 {
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			s = s[2:]
			radix = 16
		}
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	end := 0
	for end < len(s) {
		if _, err := strconv.ParseInt(s[:end+1], radix, 64); err != nil {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN()
	}
	n, _ := strconv.ParseInt(s[:end], radix, 64)
	return sign * float64(n)
}

// parseFloatPrefix parses the longest leading decimal number, returning NaN
// when none is present.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if n, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return n
		}
	}
	return math.NaN()
}
