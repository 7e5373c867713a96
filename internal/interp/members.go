package interp

import (
	"sort"
	"strings"
)

// getMember implements dot access. Plain objects resolve their own keys;
// arrays and strings expose length plus a method set served by natives.
func (r *run) getMember(obj interface{}, prop string) (interface{}, error) {
	switch o := obj.(type) {
	case map[string]interface{}:
		return o[prop], nil

	case *arrayVal:
		if prop == "length" {
			return float64(len(o.elems)), nil
		}
		if m, ok := arrayMethods[prop]; ok {
			return &boundMethod{recv: o, method: m}, nil
		}
		return nil, nil

	case string:
		if prop == "length" {
			return float64(len([]rune(o))), nil
		}
		if m, ok := stringMethods[prop]; ok {
			return &boundMethod{recv: o, method: m}, nil
		}
		return nil, nil

	case nil:
		return nil, &thrown{value: "cannot read property '" + prop + "' of null"}

	default:
		return nil, nil
	}
}

func method(name string, arity int, fn func(r *run, args []interface{}) (interface{}, error)) *nativeFn {
	return &nativeFn{name: name, arity: arity, fn: fn}
}

func argAt(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// callback invokes a user-supplied function passed to an array method.
func (r *run) callback(fn interface{}, args ...interface{}) (interface{}, error) {
	if err := r.checkCtx(); err != nil {
		return nil, err
	}
	return r.call(fn, args)
}

var arrayMethods map[string]*nativeFn

var stringMethods map[string]*nativeFn

func init() {
	arrayMethods = map[string]*nativeFn{
		"push": method("push", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for _, v := range args[1:] {
				arr.elems = append(arr.elems, v)
				if err := r.charge(v); err != nil {
					return nil, err
				}
			}
			return float64(len(arr.elems)), nil
		}),
		"pop": method("pop", 0, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			if len(arr.elems) == 0 {
				return nil, nil
			}
			last := arr.elems[len(arr.elems)-1]
			arr.elems = arr.elems[:len(arr.elems)-1]
			return last, nil
		}),
		"shift": method("shift", 0, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			if len(arr.elems) == 0 {
				return nil, nil
			}
			first := arr.elems[0]
			arr.elems = arr.elems[1:]
			return first, nil
		}),
		"unshift": method("unshift", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			arr.elems = append(args[1:], arr.elems...)
			if err := r.charge(arr); err != nil {
				return nil, err
			}
			return float64(len(arr.elems)), nil
		}),
		"slice": method("slice", 2, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			start, end := sliceBounds(len(arr.elems), argAt(args, 1), argAt(args, 2))
			out := newArray(append([]interface{}{}, arr.elems[start:end]...))
			if err := r.charge(out); err != nil {
				return nil, err
			}
			return out, nil
		}),
		"concat": method("concat", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			out := append([]interface{}{}, arr.elems...)
			for _, extra := range args[1:] {
				if other, ok := extra.(*arrayVal); ok {
					out = append(out, other.elems...)
				} else {
					out = append(out, extra)
				}
			}
			result := newArray(out)
			if err := r.charge(result); err != nil {
				return nil, err
			}
			return result, nil
		}),
		"join": method("join", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			sep := ","
			if s, ok := argAt(args, 1).(string); ok {
				sep = s
			}
			parts := make([]string, len(arr.elems))
			for i, e := range arr.elems {
				if e != nil {
					parts[i] = toDisplayString(e)
				}
			}
			joined := strings.Join(parts, sep)
			if err := r.charge(joined); err != nil {
				return nil, err
			}
			return joined, nil
		}),
		"indexOf": method("indexOf", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				if strictEquals(e, argAt(args, 1)) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		}),
		"includes": method("includes", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for _, e := range arr.elems {
				if strictEquals(e, argAt(args, 1)) {
					return true, nil
				}
			}
			return false, nil
		}),
		"reverse": method("reverse", 0, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, j := 0, len(arr.elems)-1; i < j; i, j = i+1, j-1 {
				arr.elems[i], arr.elems[j] = arr.elems[j], arr.elems[i]
			}
			return arr, nil
		}),
		"map": method("map", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			out := make([]interface{}, len(arr.elems))
			for i, e := range arr.elems {
				v, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			result := newArray(out)
			if err := r.charge(result); err != nil {
				return nil, err
			}
			return result, nil
		}),
		"filter": method("filter", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			out := make([]interface{}, 0, len(arr.elems))
			for i, e := range arr.elems {
				keep, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				if truthy(keep) {
					out = append(out, e)
				}
			}
			result := newArray(out)
			if err := r.charge(result); err != nil {
				return nil, err
			}
			return result, nil
		}),
		"forEach": method("forEach", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				if _, err := r.callback(argAt(args, 1), e, float64(i)); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}),
		"reduce": method("reduce", 2, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			acc := argAt(args, 2)
			start := 0
			if len(args) < 3 {
				if len(arr.elems) == 0 {
					return nil, &thrown{value: "reduce of empty array with no initial value"}
				}
				acc = arr.elems[0]
				start = 1
			}
			for i := start; i < len(arr.elems); i++ {
				v, err := r.callback(argAt(args, 1), acc, arr.elems[i], float64(i))
				if err != nil {
					return nil, err
				}
				acc = v
			}
			return acc, nil
		}),
		"find": method("find", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				hit, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				if truthy(hit) {
					return e, nil
				}
			}
			return nil, nil
		}),
		"findIndex": method("findIndex", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				hit, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				if truthy(hit) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		}),
		"some": method("some", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				hit, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				if truthy(hit) {
					return true, nil
				}
			}
			return false, nil
		}),
		"every": method("every", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			for i, e := range arr.elems {
				hit, err := r.callback(argAt(args, 1), e, float64(i))
				if err != nil {
					return nil, err
				}
				if !truthy(hit) {
					return false, nil
				}
			}
			return true, nil
		}),
		"sort": method("sort", 1, func(r *run, args []interface{}) (interface{}, error) {
			arr := args[0].(*arrayVal)
			cmp := argAt(args, 1)
			var sortErr error
			sort.SliceStable(arr.elems, func(i, j int) bool {
				if sortErr != nil {
					return false
				}
				if cmp == nil {
					return toDisplayString(arr.elems[i]) < toDisplayString(arr.elems[j])
				}
				v, err := r.callback(cmp, arr.elems[i], arr.elems[j])
				if err != nil {
					sortErr = err
					return false
				}
				return toNumber(v) < 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			return arr, nil
		}),
	}

	stringMethods = map[string]*nativeFn{
		"toUpperCase": stringMethod("toUpperCase", func(s string, args []interface{}) (interface{}, error) {
			return strings.ToUpper(s), nil
		}),
		"toLowerCase": stringMethod("toLowerCase", func(s string, args []interface{}) (interface{}, error) {
			return strings.ToLower(s), nil
		}),
		"trim": stringMethod("trim", func(s string, args []interface{}) (interface{}, error) {
			return strings.TrimSpace(s), nil
		}),
		"includes": stringMethod("includes", func(s string, args []interface{}) (interface{}, error) {
			needle, _ := argAt(args, 0).(string)
			return strings.Contains(s, needle), nil
		}),
		"startsWith": stringMethod("startsWith", func(s string, args []interface{}) (interface{}, error) {
			prefix, _ := argAt(args, 0).(string)
			return strings.HasPrefix(s, prefix), nil
		}),
		"endsWith": stringMethod("endsWith", func(s string, args []interface{}) (interface{}, error) {
			suffix, _ := argAt(args, 0).(string)
			return strings.HasSuffix(s, suffix), nil
		}),
		"indexOf": stringMethod("indexOf", func(s string, args []interface{}) (interface{}, error) {
			needle, _ := argAt(args, 0).(string)
			return float64(strings.Index(s, needle)), nil
		}),
		"slice": stringMethod("slice", func(s string, args []interface{}) (interface{}, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), argAt(args, 0), argAt(args, 1))
			return string(runes[start:end]), nil
		}),
		"substring": stringMethod("substring", func(s string, args []interface{}) (interface{}, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), argAt(args, 0), argAt(args, 1))
			return string(runes[start:end]), nil
		}),
		"split": stringMethod("split", func(s string, args []interface{}) (interface{}, error) {
			sep, ok := argAt(args, 0).(string)
			if !ok {
				return newArray([]interface{}{s}), nil
			}
			var parts []string
			if sep == "" {
				for _, ch := range s {
					parts = append(parts, string(ch))
				}
			} else {
				parts = strings.Split(s, sep)
			}
			elems := make([]interface{}, len(parts))
			for i, p := range parts {
				elems[i] = p
			}
			return newArray(elems), nil
		}),
		"replace": stringMethod("replace", func(s string, args []interface{}) (interface{}, error) {
			old, _ := argAt(args, 0).(string)
			new_, _ := argAt(args, 1).(string)
			return strings.Replace(s, old, new_, 1), nil
		}),
		"replaceAll": stringMethod("replaceAll", func(s string, args []interface{}) (interface{}, error) {
			old, _ := argAt(args, 0).(string)
			new_, _ := argAt(args, 1).(string)
			return strings.ReplaceAll(s, old, new_), nil
		}),
		"charAt": stringMethod("charAt", func(s string, args []interface{}) (interface{}, error) {
			i := int(toNumber(argAt(args, 0)))
			runes := []rune(s)
			if i < 0 || i >= len(runes) {
				return "", nil
			}
			return string(runes[i]), nil
		}),
		// repeat and the pads know their result size up front, so they
		// charge before allocating rather than after.
		"repeat": method("repeat", 1, func(r *run, args []interface{}) (interface{}, error) {
			s := args[0].(string)
			n := int(toNumber(argAt(args, 1)))
			if n < 0 {
				return nil, &thrown{value: "repeat count must be non-negative"}
			}
			if err := r.chargeBytes(int64(16 + len(s)*n)); err != nil {
				return nil, err
			}
			return strings.Repeat(s, n), nil
		}),
		"padStart": padMethod("padStart", true),
		"padEnd":   padMethod("padEnd", false),
	}
}

// stringMethod wraps a pure string function, charging its result against
// the memory meter.
func stringMethod(name string, fn func(s string, args []interface{}) (interface{}, error)) *nativeFn {
	return method(name, 1, func(r *run, args []interface{}) (interface{}, error) {
		s := args[0].(string)
		out, err := fn(s, args[1:])
		if err != nil {
			return nil, err
		}
		if err := r.charge(out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func padMethod(name string, atStart bool) *nativeFn {
	return method(name, 1, func(r *run, args []interface{}) (interface{}, error) {
		s := args[0].(string)
		target := int(toNumber(argAt(args, 1)))
		filler, ok := argAt(args, 2).(string)
		if !ok || filler == "" {
			filler = " "
		}
		runes := []rune(s)
		if len(runes) >= target {
			return s, nil
		}
		if err := r.chargeBytes(int64(16 + 4*target)); err != nil {
			return nil, err
		}
		padding := strings.Repeat(filler, (target-len(runes))/len([]rune(filler))+1)
		padding = string([]rune(padding)[:target-len(runes)])
		if atStart {
			return padding + s, nil
		}
		return s + padding, nil
	})
}

// sliceBounds normalizes optional start/end arguments, handling negatives
// the way slice does.
func sliceBounds(length int, startArg, endArg interface{}) (int, int) {
	start := 0
	end := length
	if startArg != nil {
		start = normalizeIndex(int(toNumber(startArg)), length)
	}
	if endArg != nil {
		end = normalizeIndex(int(toNumber(endArg)), length)
	}
	if start > end {
		return start, start
	}
	return start, end
}

func normalizeIndex(i, length int) int {
	if i < 0 {
		i += length
	}
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}
