// Package rules is the static validation engine run over transformed
// AgentScript source before execution.
//
// Each rule is an independent pure function over the syntax tree that may
// append issues; the engine runs the fixed rule list in order and rejects
// the whole program when any rule fires. Validation is meant to run on the
// transformed source: the raw dialect permits constructs (top-level
// suspension, top-level return) that are only legal once wrapped.
package rules

import (
	"fmt"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/parser"
	"github.com/enclave-labs/agentscript/internal/scope"
	"github.com/enclave-labs/agentscript/internal/transform"
)

// Issue codes, stable across releases; hosts switch on them.
const (
	CodeDynamicEval   = "dynamic-eval"
	CodeReservedName  = "reserved-identifier"
	CodeUnknownGlobal = "unknown-free-reference"
	CodeEscapeMember  = "dangerous-member-access"
)

// Issue describes one rule violation.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates the outcome of one validation pass.
type Result struct {
	Valid  bool
	Issues []Issue
}

// Policy is the configuration the rules evaluate against. It is immutable
// for the lifetime of an enclave.
type Policy struct {
	// Whitelist holds every free name a script may reference unbound:
	// the standard namespaces, host-supplied custom globals, the reserved
	// wrapper names the transformer inserts, and the entry-point name.
	Whitelist map[string]struct{}
	// AllowedReserved holds the exact reserved-prefix names a script may
	// read (the sanctioned wrapper set). Declarations and assignments of
	// reserved names are never allowed.
	AllowedReserved map[string]struct{}
}

// DefaultPolicy builds the policy for an enclave with the given additional
// free names (custom global keys).
func DefaultPolicy(customGlobals []string) Policy {
	wl := transform.BaseWhitelist()
	allowed := make(map[string]struct{})
	for _, name := range transform.WrapperNames() {
		wl[name] = struct{}{}
		allowed[name] = struct{}{}
	}
	for _, name := range customGlobals {
		wl[name] = struct{}{}
	}
	return Policy{Whitelist: wl, AllowedReserved: allowed}
}

// Rule is one independent static check.
type Rule interface {
	Name() string
	Check(prog *ast.Program, pol Policy) []Issue
}

// defaultRules is the fixed, ordered rule list. Order only affects issue
// ordering; the rules are independent.
var defaultRules = []Rule{
	denyEval{},
	denyReserved{},
	closedWorld{},
	denyEscapeMembers{},
}

// Validate parses the source and runs every rule. A parse failure is
// returned as an error, distinct from rule violations.
func Validate(source string, pol Policy) (Result, error) {
	prog, err := parser.Parse(source)
	if err != nil {
		return Result{}, err
	}
	return ValidateProgram(prog, pol), nil
}

// ValidateProgram runs every rule over an already-parsed program.
func ValidateProgram(prog *ast.Program, pol Policy) Result {
	var issues []Issue
	for _, r := range defaultRules {
		issues = append(issues, r.Check(prog, pol)...)
	}
	return Result{Valid: len(issues) == 0, Issues: issues}
}

// --- deny-eval ---

// denyEval rejects dynamic-code evaluation entry points regardless of access
// path: bare identifiers, dot access and bracket access naming an
// eval-equivalent.
type denyEval struct{}

func (denyEval) Name() string { return "deny-eval" }

var evalNames = map[string]struct{}{
	"eval":     {},
	"Function": {},
}

func (denyEval) Check(prog *ast.Program, _ Policy) []Issue {
	var issues []Issue
	flag := func(name string, how string) {
		issues = append(issues, Issue{
			Code:    CodeDynamicEval,
			Message: fmt.Sprintf("dynamic code evaluation is not permitted: %s %q", how, name),
		})
	}
	ast.Walk(prog, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Identifier:
			if _, bad := evalNames[n.Name]; bad {
				flag(n.Name, "reference to")
			}
		case *ast.IdentPattern:
			if _, bad := evalNames[n.Name]; bad {
				flag(n.Name, "binding of")
			}
		case *ast.MemberExpr:
			if _, bad := evalNames[n.Prop]; bad {
				flag(n.Prop, "property access")
			}
		case *ast.IndexExpr:
			if lit, ok := n.Index.(*ast.StringLit); ok {
				if _, bad := evalNames[lit.Value]; bad {
					flag(lit.Value, "bracket access")
				}
			}
		}
		return true
	})
	return issues
}

// --- deny-reserved ---

// denyReserved rejects any read, declaration or assignment of a name under
// either reserved prefix, including assignment-only attempts, so a script
// cannot shadow or hijack the safety wrappers. The sanctioned wrapper names
// remain readable, and the single top-level entry declaration the
// transformer inserts is exempt.
type denyReserved struct{}

func (denyReserved) Name() string { return "deny-reserved" }

func (denyReserved) Check(prog *ast.Program, pol Policy) []Issue {
	var issues []Issue
	flag := func(name, how string) {
		issues = append(issues, Issue{
			Code:    CodeReservedName,
			Message: fmt.Sprintf("%s of reserved name %q is not permitted", how, name),
		})
	}

	var entryDecl *ast.FuncDecl
	if len(prog.Body) == 1 {
		if decl, ok := prog.Body[0].(*ast.FuncDecl); ok && decl.Name == transform.EntryName {
			entryDecl = decl
		}
	}

	ast.Walk(prog, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			if transform.HasReservedPrefix(n.Name) && n != entryDecl {
				flag(n.Name, "declaration")
			}
		case *ast.IdentPattern:
			if transform.HasReservedPrefix(n.Name) {
				flag(n.Name, "declaration")
			}
		case *ast.AssignExpr:
			if id, ok := n.Target.(*ast.Identifier); ok && transform.HasReservedPrefix(id.Name) {
				flag(id.Name, "assignment")
			}
		case *ast.UnaryExpr:
			if n.Op == "++" || n.Op == "--" {
				if id, ok := n.X.(*ast.Identifier); ok && transform.HasReservedPrefix(id.Name) {
					flag(id.Name, "assignment")
				}
			}
		case *ast.Identifier:
			if transform.HasReservedPrefix(n.Name) {
				if _, ok := pol.AllowedReserved[n.Name]; !ok {
					flag(n.Name, "reference")
				}
			}
		}
		return true
	})

	// Assignment targets are also Identifier nodes and get flagged twice;
	// collapse exact duplicates to keep issue lists readable.
	return dedupe(issues)
}

// --- closed-world ---

// closedWorld enforces the whitelist: only whitelisted free names (and the
// capability-rewritten wrapper names, which the policy whitelists) may
// appear unbound.
type closedWorld struct{}

func (closedWorld) Name() string { return "closed-world" }

func (closedWorld) Check(prog *ast.Program, pol Policy) []Issue {
	var issues []Issue
	seen := make(map[string]struct{})
	tree := scope.Resolve(prog)
	tree.EachRef(func(id *ast.Identifier, c scope.Class) {
		if c != scope.Free {
			return
		}
		if _, ok := pol.Whitelist[id.Name]; ok {
			return
		}
		if _, dup := seen[id.Name]; dup {
			return
		}
		seen[id.Name] = struct{}{}
		issues = append(issues, Issue{
			Code:    CodeUnknownGlobal,
			Message: fmt.Sprintf("free reference to unknown global %q at %s", id.Name, id.Pos),
		})
	})
	return issues
}

// --- deny-escape-members ---

// denyEscapeMembers rejects direct dot or bracket access naming a
// host-escape primitive on any base. Destructuring a same-named property
// into a local binding is deliberately permitted: it copies a reference
// without opening a bypass under this design's threat model.
type denyEscapeMembers struct{}

func (denyEscapeMembers) Name() string { return "deny-escape-members" }

var escapeProps = map[string]struct{}{
	"constructor": {},
	"__proto__":   {},
	"prototype":   {},
}

func (denyEscapeMembers) Check(prog *ast.Program, _ Policy) []Issue {
	var issues []Issue
	flag := func(name string) {
		issues = append(issues, Issue{
			Code:    CodeEscapeMember,
			Message: fmt.Sprintf("access to property %q is not permitted", name),
		})
	}
	ast.Walk(prog, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.MemberExpr:
			if _, bad := escapeProps[n.Prop]; bad {
				flag(n.Prop)
			}
		case *ast.IndexExpr:
			if lit, ok := n.Index.(*ast.StringLit); ok {
				if _, bad := escapeProps[lit.Value]; bad {
					flag(lit.Value)
				}
			}
		}
		return true
	})
	return issues
}

func dedupe(issues []Issue) []Issue {
	if len(issues) < 2 {
		return issues
	}
	seen := make(map[Issue]struct{}, len(issues))
	out := issues[:0]
	for _, is := range issues {
		if _, dup := seen[is]; dup {
			continue
		}
		seen[is] = struct{}{}
		out = append(out, is)
	}
	return out
}
