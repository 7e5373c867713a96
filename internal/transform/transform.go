// Package transform rewrites AgentScript source so that every sensitive free
// reference is routed through a governed wrapper and so that top-level
// suspension and early return are legal.
//
// Three independent rewrites are offered: wrapping the program in the
// reserved entry point, renaming free capability references to their reserved
// wrapper names, and driving each loop through a reserved loop wrapper. All
// rewrites are source-to-source: parse, restructure the tree, print.
package transform

import (
	"strings"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/parser"
	"github.com/enclave-labs/agentscript/internal/scope"
)

// Reserved identifier namespaces. Scripts may not declare or assign any name
// under either prefix; the validation rules enforce that.
const (
	// EnclavePrefix namespaces the entry point and the capability wrapper.
	EnclavePrefix = "__enclave"
	// GuardPrefix namespaces the loop wrappers.
	GuardPrefix = "__guard"
)

// Reserved wrapper names inserted by the rewrites.
const (
	EntryName       = "__enclave_main"
	CallToolWrapper = "__enclave_callTool"
	ForOfWrapper    = "__guard_forOf"
	ForWrapper      = "__guard_for"
	WhileWrapper    = "__guard_while"
	DoWhileWrapper  = "__guard_doWhile"
)

// CapabilityName is the bare capability-invocation name scripts write.
const CapabilityName = "callTool"

// WrapperNames returns every reserved name the rewrites may introduce.
func WrapperNames() []string {
	return []string{EntryName, CallToolWrapper, ForOfWrapper, ForWrapper, WhileWrapper, DoWhileWrapper}
}

// DefaultTargets maps each rewritable free-reference name to its reserved
// wrapper. The set is closed; hosts extend behavior through globals, not by
// adding targets.
func DefaultTargets() map[string]string {
	return map[string]string{CapabilityName: CallToolWrapper}
}

// BaseWhitelist returns the free names every script may reference without
// rewriting or rejection: the standard library namespaces of the dialect.
func BaseWhitelist() map[string]struct{} {
	names := []string{
		"console", "JSON", "Math", "Object", "Array", "String", "Number",
		"Boolean", "Date", "parseInt", "parseFloat", "isNaN", "undefined",
	}
	wl := make(map[string]struct{}, len(names))
	for _, n := range names {
		wl[n] = struct{}{}
	}
	return wl
}

// Options selects which rewrites Transform applies. Targets and Whitelist
// default to DefaultTargets and BaseWhitelist when nil.
type Options struct {
	WrapEntry           bool
	RewriteCapabilities bool
	RewriteLoops        bool
	Targets             map[string]string
	Whitelist           map[string]struct{}
}

// Transform applies the selected rewrites and returns the resulting source.
// Unparsable input fails with the parse error; use IsWrapped/Unwrap for the
// defensive, non-failing checks.
func Transform(source string, opts Options) (string, error) {
	prog, err := parser.Parse(source)
	if err != nil {
		return "", err
	}
	targets := opts.Targets
	if targets == nil {
		targets = DefaultTargets()
	}
	whitelist := opts.Whitelist
	if whitelist == nil {
		whitelist = BaseWhitelist()
	}

	if opts.RewriteCapabilities {
		rewriteCapabilities(prog, targets, whitelist)
	}
	if opts.RewriteLoops {
		prog.Body = rewriteLoopStmts(prog.Body)
	}
	if opts.WrapEntry {
		prog = wrapEntry(prog)
	}
	return ast.Print(prog), nil
}

// IsWrapped reports whether the program already consists of the single
// reserved entry-point declaration. Unparsable input reports false.
func IsWrapped(source string) bool {
	prog, err := parser.Parse(source)
	if err != nil {
		return false
	}
	return isWrappedProgram(prog)
}

// Unwrap is the left inverse of entry wrapping: a wrapped program's inner
// statement list becomes top-level source again. Unwrapped or unparsable
// input is returned unchanged.
func Unwrap(source string) string {
	prog, err := parser.Parse(source)
	if err != nil {
		return source
	}
	if !isWrappedProgram(prog) {
		return source
	}
	entry := prog.Body[0].(*ast.FuncDecl)
	return ast.Print(&ast.Program{Body: entry.Fn.Body.Body})
}

func isWrappedProgram(prog *ast.Program) bool {
	if len(prog.Body) != 1 {
		return false
	}
	decl, ok := prog.Body[0].(*ast.FuncDecl)
	return ok && decl.Name == EntryName && decl.Fn.Async
}

func wrapEntry(prog *ast.Program) *ast.Program {
	entry := &ast.FuncDecl{
		Name: EntryName,
		Fn: &ast.FunctionLit{
			Async: true,
			Body:  &ast.BlockStmt{Body: prog.Body},
		},
	}
	return &ast.Program{Body: []ast.Stmt{entry}}
}

// rewriteCapabilities renames every free reference that matches a target and
// is not whitelisted. Local references of the same textual name and all
// whitelisted names are left untouched. Property-access bases are plain
// identifier references and follow the same rule.
func rewriteCapabilities(prog *ast.Program, targets map[string]string, whitelist map[string]struct{}) {
	tree := scope.Resolve(prog)
	tree.EachRef(func(id *ast.Identifier, c scope.Class) {
		if c != scope.Free {
			return
		}
		if _, ok := whitelist[id.Name]; ok {
			return
		}
		if wrapper, ok := targets[id.Name]; ok {
			id.Name = wrapper
		}
	})
}

// rewriteLoopStmts rewrites every loop in a statement list, bottom-up so
// nested loops each receive an independent wrapper invocation.
func rewriteLoopStmts(body []ast.Stmt) []ast.Stmt {
	out := make([]ast.Stmt, len(body))
	for i, s := range body {
		out[i] = rewriteLoopStmt(s)
	}
	return out
}

func rewriteLoopStmt(s ast.Stmt) ast.Stmt {
	switch s := s.(type) {
	case *ast.BlockStmt:
		return &ast.BlockStmt{Body: rewriteLoopStmts(s.Body)}
	case *ast.IfStmt:
		out := &ast.IfStmt{Cond: rewriteLoopExpr(s.Cond), Then: rewriteLoopStmt(s.Then)}
		if s.Else != nil {
			out.Else = rewriteLoopStmt(s.Else)
		}
		return out
	case *ast.ForOfStmt:
		body := rewriteLoopStmt(s.Body)
		call := guardCall(ForOfWrapper,
			rewriteLoopExpr(s.Iterable),
			asyncArrow([]ast.Pattern{s.Target}, asBlock(body)),
		)
		return &ast.ExprStmt{X: &ast.AwaitExpr{X: call}}
	case *ast.ForStmt:
		var cond ast.Expr = &ast.BoolLit{Value: true}
		if s.Cond != nil {
			cond = rewriteLoopExpr(s.Cond)
		}
		post := &ast.BlockStmt{}
		if s.Post != nil {
			post.Body = []ast.Stmt{&ast.ExprStmt{X: rewriteLoopExpr(s.Post)}}
		}
		body := rewriteLoopStmt(s.Body)
		call := guardCall(ForWrapper,
			exprArrow(cond),
			&ast.FunctionLit{Arrow: true, Body: post},
			asyncArrow(nil, asBlock(body)),
		)
		guarded := &ast.ExprStmt{X: &ast.AwaitExpr{X: call}}
		if s.Init == nil {
			return guarded
		}
		// The init clause stays a statement so its bindings are visible to
		// the three closures; the enclosing block keeps them loop-scoped.
		return &ast.BlockStmt{Body: []ast.Stmt{rewriteLoopStmt(s.Init), guarded}}
	case *ast.WhileStmt:
		body := rewriteLoopStmt(s.Body)
		call := guardCall(WhileWrapper,
			exprArrow(rewriteLoopExpr(s.Cond)),
			asyncArrow(nil, asBlock(body)),
		)
		return &ast.ExprStmt{X: &ast.AwaitExpr{X: call}}
	case *ast.DoWhileStmt:
		body := rewriteLoopStmt(s.Body)
		call := guardCall(DoWhileWrapper,
			asyncArrow(nil, asBlock(body)),
			exprArrow(rewriteLoopExpr(s.Cond)),
		)
		return &ast.ExprStmt{X: &ast.AwaitExpr{X: call}}
	case *ast.VarDecl:
		out := &ast.VarDecl{Kind: s.Kind, Pos: s.Pos}
		for _, d := range s.Decls {
			nd := &ast.Declarator{Target: d.Target}
			if d.Init != nil {
				nd.Init = rewriteLoopExpr(d.Init)
			}
			out.Decls = append(out.Decls, nd)
		}
		return out
	case *ast.ExprStmt:
		return &ast.ExprStmt{X: rewriteLoopExpr(s.X)}
	case *ast.ReturnStmt:
		if s.Value == nil {
			return s
		}
		return &ast.ReturnStmt{Value: rewriteLoopExpr(s.Value)}
	case *ast.ThrowStmt:
		return &ast.ThrowStmt{Value: rewriteLoopExpr(s.Value)}
	case *ast.FuncDecl:
		return &ast.FuncDecl{Name: s.Name, Fn: rewriteLoopFn(s.Fn), Pos: s.Pos}
	default:
		return s
	}
}

// rewriteLoopExpr descends into function literals so loops inside nested
// callables are rewritten too.
func rewriteLoopExpr(e ast.Expr) ast.Expr {
	switch e := e.(type) {
	case nil:
		return nil
	case *ast.FunctionLit:
		return rewriteLoopFn(e)
	case *ast.ArrayLit:
		out := &ast.ArrayLit{Elems: make([]ast.Expr, len(e.Elems))}
		for i, el := range e.Elems {
			out.Elems[i] = rewriteLoopExpr(el)
		}
		return out
	case *ast.ObjectLit:
		out := &ast.ObjectLit{Props: make([]*ast.Property, len(e.Props))}
		for i, p := range e.Props {
			out.Props[i] = &ast.Property{Key: p.Key, Value: rewriteLoopExpr(p.Value), Shorthand: p.Shorthand}
		}
		return out
	case *ast.CallExpr:
		out := &ast.CallExpr{Callee: rewriteLoopExpr(e.Callee), Args: make([]ast.Expr, len(e.Args))}
		for i, a := range e.Args {
			out.Args[i] = rewriteLoopExpr(a)
		}
		return out
	case *ast.MemberExpr:
		return &ast.MemberExpr{Obj: rewriteLoopExpr(e.Obj), Prop: e.Prop, Pos: e.Pos}
	case *ast.IndexExpr:
		return &ast.IndexExpr{Obj: rewriteLoopExpr(e.Obj), Index: rewriteLoopExpr(e.Index), Pos: e.Pos}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{Op: e.Op, X: rewriteLoopExpr(e.X), Prefix: e.Prefix}
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{Op: e.Op, L: rewriteLoopExpr(e.L), R: rewriteLoopExpr(e.R)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{Op: e.Op, Target: rewriteLoopExpr(e.Target), Value: rewriteLoopExpr(e.Value), Pos: e.Pos}
	case *ast.CondExpr:
		return &ast.CondExpr{Cond: rewriteLoopExpr(e.Cond), Then: rewriteLoopExpr(e.Then), Else: rewriteLoopExpr(e.Else)}
	case *ast.AwaitExpr:
		return &ast.AwaitExpr{X: rewriteLoopExpr(e.X)}
	default:
		return e
	}
}

func rewriteLoopFn(fn *ast.FunctionLit) *ast.FunctionLit {
	out := &ast.FunctionLit{Async: fn.Async, Arrow: fn.Arrow, Params: fn.Params, Pos: fn.Pos}
	if fn.ExprBody != nil {
		out.ExprBody = rewriteLoopExpr(fn.ExprBody)
		return out
	}
	out.Body = &ast.BlockStmt{Body: rewriteLoopStmts(fn.Body.Body)}
	return out
}

func guardCall(wrapper string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Callee: &ast.Identifier{Name: wrapper}, Args: args}
}

func asyncArrow(params []ast.Pattern, body *ast.BlockStmt) *ast.FunctionLit {
	return &ast.FunctionLit{Async: true, Arrow: true, Params: params, Body: body}
}

func exprArrow(body ast.Expr) *ast.FunctionLit {
	return &ast.FunctionLit{Arrow: true, ExprBody: body}
}

func asBlock(s ast.Stmt) *ast.BlockStmt {
	if blk, ok := s.(*ast.BlockStmt); ok {
		return blk
	}
	return &ast.BlockStmt{Body: []ast.Stmt{s}}
}

// HasReservedPrefix reports whether the name lives in either reserved
// namespace.
func HasReservedPrefix(name string) bool {
	return strings.HasPrefix(name, EnclavePrefix) || strings.HasPrefix(name, GuardPrefix)
}
