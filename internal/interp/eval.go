package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/enclave-labs/agentscript/internal/ast"
)

func (r *run) evalExpr(expr ast.Expr, env *environment) (interface{}, error) {
	switch e := expr.(type) {
	case *ast.NumberLit:
		return e.Value, nil

	case *ast.StringLit:
		return e.Value, nil

	case *ast.BoolLit:
		return e.Value, nil

	case *ast.NullLit:
		return nil, nil

	case *ast.Identifier:
		v, ok := env.get(e.Name)
		if !ok {
			return nil, &thrown{value: "undefined variable: " + e.Name}
		}
		return v, nil

	case *ast.ArrayLit:
		elems := make([]interface{}, 0, len(e.Elems))
		for _, el := range e.Elems {
			v, err := r.evalExpr(el, env)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		arr := newArray(elems)
		if err := r.charge(arr); err != nil {
			return nil, err
		}
		return arr, nil

	case *ast.ObjectLit:
		obj := make(map[string]interface{}, len(e.Props))
		for _, prop := range e.Props {
			v, err := r.evalExpr(prop.Value, env)
			if err != nil {
				return nil, err
			}
			obj[prop.Key] = v
		}
		if err := r.charge(obj); err != nil {
			return nil, err
		}
		return obj, nil

	case *ast.FunctionLit:
		return &closure{fn: e, env: env}, nil

	case *ast.AwaitExpr:
		// Execution is synchronous; await is a suspension point where
		// cancellation is observed.
		if err := r.checkCtx(); err != nil {
			return nil, err
		}
		return r.evalExpr(e.X, env)

	case *ast.CallExpr:
		return r.evalCall(e, env)

	case *ast.MemberExpr:
		obj, err := r.evalExpr(e.Obj, env)
		if err != nil {
			return nil, err
		}
		return r.getMember(obj, e.Prop)

	case *ast.IndexExpr:
		obj, err := r.evalExpr(e.Obj, env)
		if err != nil {
			return nil, err
		}
		idx, err := r.evalExpr(e.Index, env)
		if err != nil {
			return nil, err
		}
		return r.getIndex(obj, idx)

	case *ast.UnaryExpr:
		return r.evalUnary(e, env)

	case *ast.BinaryExpr:
		return r.evalBinary(e, env)

	case *ast.AssignExpr:
		return r.evalAssign(e, env)

	case *ast.CondExpr:
		cond, err := r.evalExpr(e.Cond, env)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return r.evalExpr(e.Then, env)
		}
		return r.evalExpr(e.Else, env)

	default:
		return nil, &thrown{value: fmt.Sprintf("unsupported expression %T", expr)}
	}
}

func (r *run) evalCall(e *ast.CallExpr, env *environment) (interface{}, error) {
	// Method calls resolve the receiver once so that natives see it.
	var callee interface{}
	if member, isMember := e.Callee.(*ast.MemberExpr); isMember {
		recv, err := r.evalExpr(member.Obj, env)
		if err != nil {
			return nil, err
		}
		m, err := r.getMember(recv, member.Prop)
		if err != nil {
			return nil, err
		}
		callee = m
	} else {
		fn, err := r.evalExpr(e.Callee, env)
		if err != nil {
			return nil, err
		}
		callee = fn
	}

	args := make([]interface{}, 0, len(e.Args))
	for _, argExpr := range e.Args {
		v, err := r.evalExpr(argExpr, env)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return r.call(callee, args)
}

func (r *run) evalUnary(e *ast.UnaryExpr, env *environment) (interface{}, error) {
	if e.Op == "++" || e.Op == "--" {
		return r.evalIncDec(e, env)
	}

	v, err := r.evalExpr(e.X, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "!":
		return !truthy(v), nil
	case "-":
		return -toNumber(v), nil
	case "+":
		return toNumber(v), nil
	default:
		return nil, &thrown{value: "unsupported unary operator " + e.Op}
	}
}

func (r *run) evalIncDec(e *ast.UnaryExpr, env *environment) (interface{}, error) {
	old, err := r.evalExpr(e.X, env)
	if err != nil {
		return nil, err
	}
	oldNum := toNumber(old)
	var newNum float64
	if e.Op == "++" {
		newNum = oldNum + 1
	} else {
		newNum = oldNum - 1
	}
	if err := r.storeTo(e.X, newNum, env); err != nil {
		return nil, err
	}
	if e.Prefix {
		return newNum, nil
	}
	return oldNum, nil
}

func (r *run) evalBinary(e *ast.BinaryExpr, env *environment) (interface{}, error) {
	// Short-circuit operators evaluate the right side conditionally.
	switch e.Op {
	case "&&":
		left, err := r.evalExpr(e.L, env)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return left, nil
		}
		return r.evalExpr(e.R, env)
	case "||":
		left, err := r.evalExpr(e.L, env)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return left, nil
		}
		return r.evalExpr(e.R, env)
	case "??":
		left, err := r.evalExpr(e.L, env)
		if err != nil {
			return nil, err
		}
		if left != nil {
			return left, nil
		}
		return r.evalExpr(e.R, env)
	}

	left, err := r.evalExpr(e.L, env)
	if err != nil {
		return nil, err
	}
	right, err := r.evalExpr(e.R, env)
	if err != nil {
		return nil, err
	}
	return r.applyBinary(e.Op, left, right)
}

func (r *run) applyBinary(op string, left, right interface{}) (interface{}, error) {
	switch op {
	case "+":
		if ls, ok := left.(string); ok {
			s := ls + toDisplayString(right)
			if err := r.charge(s); err != nil {
				return nil, err
			}
			return s, nil
		}
		if rs, ok := right.(string); ok {
			s := toDisplayString(left) + rs
			if err := r.charge(s); err != nil {
				return nil, err
			}
			return s, nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		return toNumber(left) / toNumber(right), nil
	case "%":
		return math.Mod(toNumber(left), toNumber(right)), nil
	case "===":
		return strictEquals(left, right), nil
	case "!==":
		return !strictEquals(left, right), nil
	case "==":
		return looseEquals(left, right), nil
	case "!=":
		return !looseEquals(left, right), nil
	case "<", ">", "<=", ">=":
		return compare(op, left, right), nil
	default:
		return nil, &thrown{value: "unsupported binary operator " + op}
	}
}

// looseEquals implements == with the coercions scripts actually rely on:
// same-type strict comparison, plus number/string and boolean conversion.
func looseEquals(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if typeOf(a) == typeOf(b) {
		return strictEquals(a, b)
	}
	return toNumber(a) == toNumber(b)
}

func compare(op string, a, b interface{}) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case "<":
				return as < bs
			case ">":
				return as > bs
			case "<=":
				return as <= bs
			default:
				return as >= bs
			}
		}
	}
	an, bn := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return an < bn
	case ">":
		return an > bn
	case "<=":
		return an <= bn
	default:
		return an >= bn
	}
}

func (r *run) evalAssign(e *ast.AssignExpr, env *environment) (interface{}, error) {
	value, err := r.evalExpr(e.Value, env)
	if err != nil {
		return nil, err
	}

	if e.Op != "=" {
		// Compound assignment reads the old value and applies the bare
		// operator.
		old, err := r.evalExpr(e.Target, env)
		if err != nil {
			return nil, err
		}
		op := e.Op[:len(e.Op)-1]
		value, err = r.applyBinary(op, old, value)
		if err != nil {
			return nil, err
		}
	}

	if err := r.storeTo(e.Target, value, env); err != nil {
		return nil, err
	}
	return value, nil
}

// storeTo writes a value through an assignable expression: a variable, a
// member, or an index.
func (r *run) storeTo(target ast.Expr, value interface{}, env *environment) error {
	switch t := target.(type) {
	case *ast.Identifier:
		return env.set(t.Name, value)

	case *ast.MemberExpr:
		obj, err := r.evalExpr(t.Obj, env)
		if err != nil {
			return err
		}
		return r.setMember(obj, t.Prop, value)

	case *ast.IndexExpr:
		obj, err := r.evalExpr(t.Obj, env)
		if err != nil {
			return err
		}
		idx, err := r.evalExpr(t.Index, env)
		if err != nil {
			return err
		}
		return r.setIndex(obj, idx, value)

	default:
		return &thrown{value: "invalid assignment target"}
	}
}

// getIndex implements bracket access on arrays, objects, and strings.
func (r *run) getIndex(obj, idx interface{}) (interface{}, error) {
	switch o := obj.(type) {
	case *arrayVal:
		i := int(toNumber(idx))
		if i < 0 || i >= len(o.elems) {
			return nil, nil
		}
		return o.elems[i], nil
	case map[string]interface{}:
		key, ok := idx.(string)
		if !ok {
			key = toDisplayString(idx)
		}
		return r.getMember(o, key)
	case string:
		i := int(toNumber(idx))
		runes := []rune(o)
		if i < 0 || i >= len(runes) {
			return nil, nil
		}
		return string(runes[i]), nil
	case nil:
		return nil, &thrown{value: "cannot read index of null"}
	default:
		return nil, &thrown{value: fmt.Sprintf("cannot index value of type %s", typeOf(obj))}
	}
}

func (r *run) setIndex(obj, idx, value interface{}) error {
	switch o := obj.(type) {
	case *arrayVal:
		i := int(toNumber(idx))
		if i < 0 {
			return &thrown{value: "negative array index"}
		}
		// A sparse write grows the backing array; the growth is charged
		// before allocating so an oversized index cannot blow past the
		// ceiling.
		if grow := i + 1 - len(o.elems); grow > 0 {
			if err := r.chargeBytes(int64(8 * grow)); err != nil {
				return err
			}
		}
		for len(o.elems) <= i {
			o.elems = append(o.elems, nil)
		}
		o.elems[i] = value
		return r.charge(value)
	case map[string]interface{}:
		key, ok := idx.(string)
		if !ok {
			key = toDisplayString(idx)
		}
		return r.setMember(o, key, value)
	case nil:
		return &thrown{value: "cannot set index of null"}
	default:
		return &thrown{value: fmt.Sprintf("cannot index value of type %s", typeOf(obj))}
	}
}

func (r *run) setMember(obj interface{}, prop string, value interface{}) error {
	o, ok := obj.(map[string]interface{})
	if !ok {
		if obj == nil {
			return &thrown{value: "cannot set property '" + prop + "' of null"}
		}
		return &thrown{value: fmt.Sprintf("cannot set property '%s' on %s", prop, typeOf(obj))}
	}
	o[prop] = value
	return r.charge(value)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
