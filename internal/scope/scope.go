// Package scope builds a lexical scope tree over an AgentScript program and
// classifies every identifier reference as locally bound or free.
//
// Scopes live in an arena addressed by index, each node holding its parent
// index and the set of names it binds. Classification is purely structural:
// a reference is Local when any enclosing scope declares the name, regardless
// of declaration order relative to the reference (hoisting is deliberately
// not modeled more precisely than that).
package scope

import "github.com/enclave-labs/agentscript/internal/ast"

// Class is the classification of one identifier reference.
type Class int

const (
	// Free means no enclosing scope binds the name.
	Free Class = iota
	// Local means some enclosing scope binds the name.
	Local
)

// Kind tags what construct introduced a scope.
type Kind int

const (
	ProgramScope Kind = iota
	FunctionScope
	BlockScope
	LoopScope
)

// Node is one lexical scope in the arena. Parent is -1 for the root.
type Node struct {
	Parent int
	Kind   Kind
	Bound  map[string]struct{}
}

// Tree is the resolved scope structure for one program.
type Tree struct {
	nodes []Node
	// refs maps each identifier reference node to the scope it appears in.
	refs map[*ast.Identifier]int
	// order preserves reference discovery order for deterministic iteration.
	order []*ast.Identifier
}

// Resolve walks the program and produces its scope tree.
func Resolve(prog *ast.Program) *Tree {
	r := &resolver{t: &Tree{refs: make(map[*ast.Identifier]int)}}
	root := r.push(-1, ProgramScope)
	r.hoistDecls(root, prog.Body)
	for _, s := range prog.Body {
		r.stmt(root, s)
	}
	return r.t
}

// Classify reports whether the reference resolves to an enclosing binding.
// Identifiers that were not part of the resolved program classify as Free.
func (t *Tree) Classify(id *ast.Identifier) Class {
	idx, ok := t.refs[id]
	if !ok {
		return Free
	}
	for idx >= 0 {
		if _, bound := t.nodes[idx].Bound[id.Name]; bound {
			return Local
		}
		idx = t.nodes[idx].Parent
	}
	return Free
}

// EachRef visits every identifier reference in discovery order with its
// classification.
func (t *Tree) EachRef(f func(id *ast.Identifier, c Class)) {
	for _, id := range t.order {
		f(id, t.Classify(id))
	}
}

// Len returns the number of scopes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// PatternNames returns every name a binding pattern introduces, covering
// nested object/array destructuring, aliases, defaults and rest elements.
func PatternNames(p ast.Pattern) []string {
	var names []string
	collectPatternNames(p, &names)
	return names
}

func collectPatternNames(p ast.Pattern, out *[]string) {
	switch p := p.(type) {
	case nil:
	case *ast.IdentPattern:
		*out = append(*out, p.Name)
	case *ast.AssignPattern:
		collectPatternNames(p.Target, out)
	case *ast.ObjectPattern:
		for _, prop := range p.Props {
			// `{a: b}` binds b, not a.
			collectPatternNames(prop.Value, out)
		}
		if p.Rest != nil {
			*out = append(*out, p.Rest.Name)
		}
	case *ast.ArrayPattern:
		for _, el := range p.Elems {
			collectPatternNames(el, out)
		}
		if p.Rest != nil {
			collectPatternNames(p.Rest, out)
		}
	}
}

type resolver struct {
	t *Tree
}

func (r *resolver) push(parent int, kind Kind) int {
	r.t.nodes = append(r.t.nodes, Node{Parent: parent, Kind: kind, Bound: make(map[string]struct{})})
	return len(r.t.nodes) - 1
}

func (r *resolver) bind(idx int, name string) {
	r.t.nodes[idx].Bound[name] = struct{}{}
}

func (r *resolver) bindPattern(idx int, p ast.Pattern) {
	for _, name := range PatternNames(p) {
		r.bind(idx, name)
	}
}

// hoistDecls pre-binds the names declared directly in a statement list so a
// later declaration binds earlier references in the same scope.
func (r *resolver) hoistDecls(idx int, body []ast.Stmt) {
	for _, s := range body {
		switch s := s.(type) {
		case *ast.VarDecl:
			for _, d := range s.Decls {
				r.bindPattern(idx, d.Target)
			}
		case *ast.FuncDecl:
			r.bind(idx, s.Name)
		}
	}
}

func (r *resolver) stmt(idx int, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		// Names were hoisted; defaults and initializers still need walking.
		for _, d := range s.Decls {
			r.patternExprs(idx, d.Target)
			if d.Init != nil {
				r.expr(idx, d.Init)
			}
		}
	case *ast.ExprStmt:
		r.expr(idx, s.X)
	case *ast.BlockStmt:
		inner := r.push(idx, BlockScope)
		r.hoistDecls(inner, s.Body)
		for _, st := range s.Body {
			r.stmt(inner, st)
		}
	case *ast.IfStmt:
		r.expr(idx, s.Cond)
		r.stmt(idx, s.Then)
		if s.Else != nil {
			r.stmt(idx, s.Else)
		}
	case *ast.ForOfStmt:
		// The iterable is evaluated outside the loop binding.
		r.expr(idx, s.Iterable)
		inner := r.push(idx, LoopScope)
		r.bindPattern(inner, s.Target)
		r.patternExprs(inner, s.Target)
		r.stmt(inner, s.Body)
	case *ast.ForStmt:
		inner := r.push(idx, LoopScope)
		if s.Init != nil {
			if decl, ok := s.Init.(*ast.VarDecl); ok {
				for _, d := range decl.Decls {
					r.bindPattern(inner, d.Target)
				}
			}
			r.stmt(inner, s.Init)
		}
		if s.Cond != nil {
			r.expr(inner, s.Cond)
		}
		if s.Post != nil {
			r.expr(inner, s.Post)
		}
		r.stmt(inner, s.Body)
	case *ast.WhileStmt:
		r.expr(idx, s.Cond)
		r.stmt(idx, s.Body)
	case *ast.DoWhileStmt:
		r.stmt(idx, s.Body)
		r.expr(idx, s.Cond)
	case *ast.ReturnStmt:
		if s.Value != nil {
			r.expr(idx, s.Value)
		}
	case *ast.ThrowStmt:
		r.expr(idx, s.Value)
	case *ast.FuncDecl:
		// Name was hoisted into the declaring scope.
		r.function(idx, s.Fn)
	case *ast.BreakStmt, *ast.ContinueStmt:
	}
}

func (r *resolver) function(parent int, fn *ast.FunctionLit) {
	inner := r.push(parent, FunctionScope)
	for _, p := range fn.Params {
		r.bindPattern(inner, p)
	}
	for _, p := range fn.Params {
		r.patternExprs(inner, p)
	}
	if fn.ExprBody != nil {
		r.expr(inner, fn.ExprBody)
		return
	}
	r.hoistDecls(inner, fn.Body.Body)
	for _, s := range fn.Body.Body {
		r.stmt(inner, s)
	}
}

// patternExprs walks the default-value expressions buried in a pattern.
func (r *resolver) patternExprs(idx int, p ast.Pattern) {
	switch p := p.(type) {
	case nil:
	case *ast.IdentPattern:
	case *ast.AssignPattern:
		r.expr(idx, p.Default)
		r.patternExprs(idx, p.Target)
	case *ast.ObjectPattern:
		for _, prop := range p.Props {
			if prop.Default != nil {
				r.expr(idx, prop.Default)
			}
			r.patternExprs(idx, prop.Value)
		}
	case *ast.ArrayPattern:
		for _, el := range p.Elems {
			r.patternExprs(idx, el)
		}
		if p.Rest != nil {
			r.patternExprs(idx, p.Rest)
		}
	}
}

func (r *resolver) expr(idx int, e ast.Expr) {
	switch e := e.(type) {
	case nil:
	case *ast.Identifier:
		r.t.refs[e] = idx
		r.t.order = append(r.t.order, e)
	case *ast.NumberLit, *ast.StringLit, *ast.BoolLit, *ast.NullLit:
	case *ast.ArrayLit:
		for _, el := range e.Elems {
			r.expr(idx, el)
		}
	case *ast.ObjectLit:
		for _, prop := range e.Props {
			r.expr(idx, prop.Value)
		}
	case *ast.FunctionLit:
		r.function(idx, e)
	case *ast.CallExpr:
		r.expr(idx, e.Callee)
		for _, a := range e.Args {
			r.expr(idx, a)
		}
	case *ast.MemberExpr:
		// Only the base is a reference; the property name is never
		// classified.
		r.expr(idx, e.Obj)
	case *ast.IndexExpr:
		r.expr(idx, e.Obj)
		r.expr(idx, e.Index)
	case *ast.UnaryExpr:
		r.expr(idx, e.X)
	case *ast.BinaryExpr:
		r.expr(idx, e.L)
		r.expr(idx, e.R)
	case *ast.AssignExpr:
		r.expr(idx, e.Target)
		r.expr(idx, e.Value)
	case *ast.CondExpr:
		r.expr(idx, e.Cond)
		r.expr(idx, e.Then)
		r.expr(idx, e.Else)
	case *ast.AwaitExpr:
		r.expr(idx, e.X)
	}
}
