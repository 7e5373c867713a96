// Package interp is the built-in execution engine for transformed scripts.
// It is a tree-walking evaluator: no JIT, no goroutine per run, and every
// loop-guard and capability call goes through the hooks the governor wires
// into the runtime Env.
package interp

import (
	"context"
	"fmt"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/parser"
	enclaveerrors "github.com/enclave-labs/agentscript/pkg/enclave/v1/errors"
	"github.com/enclave-labs/agentscript/pkg/enclave/v1/runtime"
)

// environment is a lexical frame with a parent link. Lookups walk
// parent-ward; const bindings reject reassignment.
type environment struct {
	parent *environment
	table  map[string]interface{}
	consts map[string]struct{}
}

func newEnvironment(parent *environment) *environment {
	return &environment{parent: parent, table: make(map[string]interface{})}
}

// define binds name in the current frame, shadowing any outer binding.
func (e *environment) define(name string, v interface{}, isConst bool) {
	e.table[name] = v
	if isConst {
		if e.consts == nil {
			e.consts = make(map[string]struct{})
		}
		e.consts[name] = struct{}{}
	}
}

// set updates the nearest existing binding. It does not implicitly define.
func (e *environment) set(name string, v interface{}) error {
	for frame := e; frame != nil; frame = frame.parent {
		if _, ok := frame.table[name]; ok {
			if _, isConst := frame.consts[name]; isConst {
				return &thrown{value: "assignment to constant variable: " + name}
			}
			frame.table[name] = v
			return nil
		}
	}
	return &thrown{value: "undefined variable: " + name}
}

// get retrieves the nearest visible binding for name.
func (e *environment) get(name string) (interface{}, bool) {
	for frame := e; frame != nil; frame = frame.parent {
		if v, ok := frame.table[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Control flow travels as error values so that it unwinds the evaluator's
// Go call stack the same way it unwinds the script's.
type returnSignal struct{ value interface{} }

func (returnSignal) Error() string { return "return outside function" }

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }

// thrown carries a script-thrown value up the stack. Reaching the top level
// it becomes a runtime fault.
type thrown struct{ value interface{} }

func (t *thrown) Error() string { return "uncaught " + toDisplayString(t.value) }

// Interp is the in-process runtime adapter. One Interp serves one enclave;
// each Execute call builds a fresh global environment, so no state leaks
// between runs.
type Interp struct {
	closed bool
}

// New creates an interpreter ready to serve runs.
func New() *Interp {
	return &Interp{}
}

// run carries per-execution state: the context, the governor hooks, and the
// memory meter.
type run struct {
	ctx     context.Context
	env     *runtime.Env
	memUsed int64
}

// charge records an allocation against the run's memory ceiling.
func (r *run) charge(v interface{}) error {
	return r.chargeBytes(estimateSize(v))
}

// chargeBytes records n bytes against the ceiling. Natives that can size an
// allocation up front call this before allocating, so a single oversized
// request faults instead of materializing.
func (r *run) chargeBytes(n int64) error {
	if r.env.MemoryLimit <= 0 {
		return nil
	}
	r.memUsed += n
	if r.memUsed > r.env.MemoryLimit {
		return enclaveerrors.NewMemoryLimitError(r.env.MemoryLimit)
	}
	return nil
}

// checkCtx returns the context error at a suspension point, if any.
func (r *run) checkCtx() error {
	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	default:
		return nil
	}
}

// Execute evaluates transformed source under env and returns the entry
// function's result converted to plain Go data.
func (it *Interp) Execute(ctx context.Context, source string, env *runtime.Env) (interface{}, error) {
	if it.closed {
		return nil, enclaveerrors.NewConfigError("runtime is closed", nil)
	}
	prog, err := parser.Parse(source)
	if err != nil {
		return nil, enclaveerrors.NewParseError("script did not parse", err)
	}

	r := &run{ctx: ctx, env: env}
	global := newEnvironment(nil)
	installBuiltins(r, global)
	installGuards(r, global)

	for name, value := range env.Globals {
		switch g := value.(type) {
		case runtime.FunctionGlobal:
			if err := r.evalFunctionGlobal(g.Source, global); err != nil {
				return nil, err
			}
		case runtime.GoFunc:
			global.define(name, goFuncNative(name, g), true)
		default:
			global.define(name, fromHost(value), true)
		}
	}

	if err := r.execProgram(prog, global); err != nil {
		return nil, r.surface(err)
	}

	entryName := env.EntryName
	if entryName == "" {
		return nil, nil
	}
	entry, ok := global.get(entryName)
	if !ok {
		return nil, enclaveerrors.NewRuntimeError(fmt.Sprintf("entry function '%s' is not defined", entryName), nil)
	}
	result, err := r.call(entry, nil)
	if err != nil {
		return nil, r.surface(err)
	}
	return toHost(result), nil
}

// Close marks the interpreter unusable. It holds no external resources.
func (it *Interp) Close() error {
	it.closed = true
	return nil
}

var _ runtime.Adapter = (*Interp)(nil)

// surface converts interpreter-internal signals into the public error
// taxonomy. Context errors pass through for the governor to classify.
func (r *run) surface(err error) error {
	switch e := err.(type) {
	case *thrown:
		re := enclaveerrors.NewRuntimeError(toDisplayString(e.value), nil)
		re.Data = toHost(e.value)
		return re
	case returnSignal, breakSignal, continueSignal:
		return enclaveerrors.NewRuntimeError(e.Error(), nil)
	default:
		return err
	}
}

// evalFunctionGlobal evaluates a script-source global into the global
// environment. Its declarations become ambient bindings for the run.
func (r *run) evalFunctionGlobal(source string, global *environment) error {
	prog, err := parser.Parse(source)
	if err != nil {
		return enclaveerrors.NewConfigError("function global did not parse", err)
	}
	if err := r.execProgram(prog, global); err != nil {
		return r.surface(err)
	}
	return nil
}

func (r *run) execProgram(prog *ast.Program, env *environment) error {
	for _, stmt := range prog.Body {
		if err := r.execStmt(stmt, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) execBlock(stmts []ast.Stmt, env *environment) error {
	for _, stmt := range stmts {
		if err := r.execStmt(stmt, env); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) execStmt(stmt ast.Stmt, env *environment) error {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		for _, decl := range s.Decls {
			var value interface{}
			if decl.Init != nil {
				v, err := r.evalExpr(decl.Init, env)
				if err != nil {
					return err
				}
				value = v
			}
			if err := r.bindPattern(decl.Target, value, env, s.Kind == "const"); err != nil {
				return err
			}
		}
		return nil

	case *ast.FuncDecl:
		env.define(s.Name, &closure{fn: s.Fn, env: env, name: s.Name}, false)
		return nil

	case *ast.ExprStmt:
		_, err := r.evalExpr(s.X, env)
		return err

	case *ast.BlockStmt:
		return r.execBlock(s.Body, newEnvironment(env))

	case *ast.IfStmt:
		cond, err := r.evalExpr(s.Cond, env)
		if err != nil {
			return err
		}
		if truthy(cond) {
			return r.execStmt(s.Then, newEnvironmentForBranch(s.Then, env))
		}
		if s.Else != nil {
			return r.execStmt(s.Else, newEnvironmentForBranch(s.Else, env))
		}
		return nil

	case *ast.ForOfStmt:
		return r.execForOf(s, env)

	case *ast.ForStmt:
		return r.execFor(s, env)

	case *ast.WhileStmt:
		return r.execWhile(s, env)

	case *ast.DoWhileStmt:
		return r.execDoWhile(s, env)

	case *ast.ReturnStmt:
		var value interface{}
		if s.Value != nil {
			v, err := r.evalExpr(s.Value, env)
			if err != nil {
				return err
			}
			value = v
		}
		return returnSignal{value: value}

	case *ast.ThrowStmt:
		v, err := r.evalExpr(s.Value, env)
		if err != nil {
			return err
		}
		return &thrown{value: v}

	case *ast.BreakStmt:
		return breakSignal{}

	case *ast.ContinueStmt:
		return continueSignal{}

	default:
		return &thrown{value: fmt.Sprintf("unsupported statement %T", stmt)}
	}
}

// newEnvironmentForBranch avoids allocating a frame for block statements,
// which create their own.
func newEnvironmentForBranch(stmt ast.Stmt, env *environment) *environment {
	if _, isBlock := stmt.(*ast.BlockStmt); isBlock {
		return env
	}
	return newEnvironment(env)
}

// Raw loop statements only appear when loop rewriting is disabled or inside
// function globals; transformed scripts route through the guard natives
// instead. The raw forms still call OnIteration so nothing escapes the
// iteration ceiling.

func (r *run) execForOf(s *ast.ForOfStmt, env *environment) error {
	iterable, err := r.evalExpr(s.Iterable, env)
	if err != nil {
		return err
	}
	return r.iterate(iterable, "forOf", func(elem interface{}) error {
		loopEnv := newEnvironment(env)
		if err := r.bindPattern(s.Target, elem, loopEnv, s.Kind == "const"); err != nil {
			return err
		}
		return r.runLoopBodyStmt(s.Body, loopEnv)
	})
}

func (r *run) execFor(s *ast.ForStmt, env *environment) error {
	loopEnv := newEnvironment(env)
	if s.Init != nil {
		if err := r.execStmt(s.Init, loopEnv); err != nil {
			return err
		}
	}
	for {
		if err := r.checkCtx(); err != nil {
			return err
		}
		if s.Cond != nil {
			cond, err := r.evalExpr(s.Cond, loopEnv)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				return nil
			}
		}
		if err := r.tick("for"); err != nil {
			return err
		}
		if err := r.runLoopBodyStmt(s.Body, newEnvironment(loopEnv)); err != nil {
			if _, isBreak := err.(breakSignal); isBreak {
				return nil
			}
			return err
		}
		if s.Post != nil {
			if _, err := r.evalExpr(s.Post, loopEnv); err != nil {
				return err
			}
		}
	}
}

func (r *run) execWhile(s *ast.WhileStmt, env *environment) error {
	for {
		if err := r.checkCtx(); err != nil {
			return err
		}
		cond, err := r.evalExpr(s.Cond, env)
		if err != nil {
			return err
		}
		if !truthy(cond) {
			return nil
		}
		if err := r.tick("while"); err != nil {
			return err
		}
		if err := r.runLoopBodyStmt(s.Body, newEnvironment(env)); err != nil {
			if _, isBreak := err.(breakSignal); isBreak {
				return nil
			}
			return err
		}
	}
}

func (r *run) execDoWhile(s *ast.DoWhileStmt, env *environment) error {
	for {
		if err := r.checkCtx(); err != nil {
			return err
		}
		if err := r.tick("doWhile"); err != nil {
			return err
		}
		if err := r.runLoopBodyStmt(s.Body, newEnvironment(env)); err != nil {
			if _, isBreak := err.(breakSignal); isBreak {
				return nil
			}
			return err
		}
		cond, err := r.evalExpr(s.Cond, env)
		if err != nil {
			return err
		}
		if !truthy(cond) {
			return nil
		}
	}
}

// runLoopBodyStmt executes a loop body, swallowing continue but letting
// break, return, and faults propagate to the loop driver.
func (r *run) runLoopBodyStmt(body ast.Stmt, env *environment) error {
	err := r.execStmt(body, env)
	if _, isContinue := err.(continueSignal); isContinue {
		return nil
	}
	return err
}

// tick reports one loop iteration to the governor.
func (r *run) tick(kind string) error {
	if r.env.OnIteration == nil {
		return nil
	}
	return r.env.OnIteration(kind)
}

// iterate walks an iterable value, calling body per element: array elements
// in order, string runes, or object keys. Each element first passes the
// iteration guard; break stops cleanly.
func (r *run) iterate(iterable interface{}, kind string, body func(elem interface{}) error) error {
	step := func(elem interface{}) (stop bool, err error) {
		if err := r.checkCtx(); err != nil {
			return true, err
		}
		if err := r.tick(kind); err != nil {
			return true, err
		}
		if err := body(elem); err != nil {
			if _, isBreak := err.(breakSignal); isBreak {
				return true, nil
			}
			return true, err
		}
		return false, nil
	}

	switch it := iterable.(type) {
	case *arrayVal:
		for _, elem := range it.elems {
			if stop, err := step(elem); stop {
				return err
			}
		}
		return nil
	case string:
		for _, ch := range it {
			if stop, err := step(string(ch)); stop {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		for _, key := range sortedKeys(it) {
			if stop, err := step(key); stop {
				return err
			}
		}
		return nil
	default:
		return &thrown{value: fmt.Sprintf("value of type %s is not iterable", typeOf(iterable))}
	}
}

// bindPattern binds a value to a declaration pattern, recursing through
// object and array destructuring with defaults and rest targets.
func (r *run) bindPattern(p ast.Pattern, value interface{}, env *environment, isConst bool) error {
	switch pat := p.(type) {
	case *ast.IdentPattern:
		env.define(pat.Name, value, isConst)
		return nil

	case *ast.AssignPattern:
		if value == nil {
			v, err := r.evalExpr(pat.Default, env)
			if err != nil {
				return err
			}
			value = v
		}
		return r.bindPattern(pat.Target, value, env, isConst)

	case *ast.ObjectPattern:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return &thrown{value: fmt.Sprintf("cannot destructure %s as an object", typeOf(value))}
		}
		taken := make(map[string]struct{}, len(pat.Props))
		for _, prop := range pat.Props {
			taken[prop.Key] = struct{}{}
			propValue := obj[prop.Key]
			if propValue == nil && prop.Default != nil {
				v, err := r.evalExpr(prop.Default, env)
				if err != nil {
					return err
				}
				propValue = v
			}
			if err := r.bindPattern(prop.Value, propValue, env, isConst); err != nil {
				return err
			}
		}
		if pat.Rest != nil {
			rest := make(map[string]interface{})
			for k, v := range obj {
				if _, skip := taken[k]; !skip {
					rest[k] = v
				}
			}
			if err := r.charge(rest); err != nil {
				return err
			}
			env.define(pat.Rest.Name, rest, isConst)
		}
		return nil

	case *ast.ArrayPattern:
		arr, ok := value.(*arrayVal)
		if !ok {
			return &thrown{value: fmt.Sprintf("cannot destructure %s as an array", typeOf(value))}
		}
		for i, elem := range pat.Elems {
			if elem == nil {
				continue
			}
			var elemValue interface{}
			if i < len(arr.elems) {
				elemValue = arr.elems[i]
			}
			if err := r.bindPattern(elem, elemValue, env, isConst); err != nil {
				return err
			}
		}
		if pat.Rest != nil {
			var rest []interface{}
			if len(pat.Elems) < len(arr.elems) {
				rest = append(rest, arr.elems[len(pat.Elems):]...)
			}
			restArr := newArray(rest)
			if err := r.charge(restArr); err != nil {
				return err
			}
			if err := r.bindPattern(pat.Rest, restArr, env, isConst); err != nil {
				return err
			}
		}
		return nil

	default:
		return &thrown{value: fmt.Sprintf("unsupported binding pattern %T", p)}
	}
}

// call invokes a callable value with already-evaluated arguments. Closures
// run with a fresh frame over their captured environment; a return unwinds
// here and becomes the call's value.
func (r *run) call(callee interface{}, args []interface{}) (interface{}, error) {
	switch fn := callee.(type) {
	case *closure:
		frame := newEnvironment(fn.env)
		if err := r.bindParams(fn.fn.Params, args, frame); err != nil {
			return nil, err
		}
		if fn.fn.ExprBody != nil {
			return r.evalExpr(fn.fn.ExprBody, frame)
		}
		err := r.execBlock(fn.fn.Body.Body, frame)
		if ret, isReturn := err.(returnSignal); isReturn {
			return ret.value, nil
		}
		return nil, err

	case *nativeFn:
		return fn.fn(r, args)

	case *boundMethod:
		return fn.method.fn(r, append([]interface{}{fn.recv}, args...))

	default:
		return nil, &thrown{value: fmt.Sprintf("%s is not a function", typeOf(callee))}
	}
}

// callLoopBody invokes a loop-body closure without converting a return into
// a call value, so that return inside a rewritten loop still unwinds out of
// the enclosing function. Break and continue come back as signals for the
// guard driving the loop.
func (r *run) callLoopBody(callee interface{}, args []interface{}) error {
	cl, ok := callee.(*closure)
	if !ok {
		// A non-closure body cannot carry loop control; a plain call does.
		_, err := r.call(callee, args)
		return err
	}
	frame := newEnvironment(cl.env)
	if err := r.bindParams(cl.fn.Params, args, frame); err != nil {
		return err
	}
	if cl.fn.ExprBody != nil {
		_, err := r.evalExpr(cl.fn.ExprBody, frame)
		return err
	}
	return r.execBlock(cl.fn.Body.Body, frame)
}

func (r *run) bindParams(params []ast.Pattern, args []interface{}, frame *environment) error {
	for i, param := range params {
		var arg interface{}
		if i < len(args) {
			arg = args[i]
		}
		if err := r.bindPattern(param, arg, frame, false); err != nil {
			return err
		}
	}
	return nil
}
