// Package ast defines the AgentScript syntax tree and its canonical printer.
//
// Nodes are plain structs; the tree is immutable by convention except during
// transformation, which replaces nodes wholesale rather than mutating shared
// children.
package ast

import "github.com/enclave-labs/agentscript/internal/lexer"

// Node is implemented by every syntax tree node.
type Node interface {
	node()
}

// Stmt is implemented by statement nodes.
type Stmt interface {
	Node
	stmt()
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	expr()
}

// Pattern is implemented by binding pattern nodes (declaration targets and
// function parameters).
type Pattern interface {
	Node
	pattern()
}

// Program is the root node: an ordered list of top-level statements.
type Program struct {
	Body []Stmt
}

func (*Program) node() {}

// --- Statements ---

// VarDecl is a `const` or `let` declaration with one or more declarators.
type VarDecl struct {
	Kind  string // "const" or "let"
	Decls []*Declarator
	Pos   lexer.Position
}

// Declarator is one target/initializer pair inside a VarDecl.
type Declarator struct {
	Target Pattern
	Init   Expr // nil for `let x;`
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	X Expr
}

// BlockStmt is a braced statement list introducing a lexical scope.
type BlockStmt struct {
	Body []Stmt
}

// IfStmt is a conditional with optional else branch (which may itself be an
// IfStmt for else-if chains).
type IfStmt struct {
	Cond Expr
	Then Stmt
	Else Stmt // nil when absent
}

// ForOfStmt iterates the elements of an iterable value.
type ForOfStmt struct {
	Kind     string // "const" or "let"
	Target   Pattern
	Iterable Expr
	Body     Stmt
	Pos      lexer.Position
}

// ForStmt is the generic three-clause loop. Any clause may be absent.
type ForStmt struct {
	Init Stmt // *VarDecl or *ExprStmt, nil when absent
	Cond Expr
	Post Expr
	Body Stmt
	Pos  lexer.Position
}

// WhileStmt is a pre-tested loop.
type WhileStmt struct {
	Cond Expr
	Body Stmt
	Pos  lexer.Position
}

// DoWhileStmt is a post-tested loop.
type DoWhileStmt struct {
	Body Stmt
	Cond Expr
	Pos  lexer.Position
}

// ReturnStmt returns from the enclosing function.
type ReturnStmt struct {
	Value Expr // nil for bare `return;`
}

// ThrowStmt raises a script-level fault.
type ThrowStmt struct {
	Value Expr
}

// BreakStmt exits the nearest enclosing loop.
type BreakStmt struct{}

// ContinueStmt advances the nearest enclosing loop.
type ContinueStmt struct{}

// FuncDecl is a named function declaration statement.
type FuncDecl struct {
	Name string
	Fn   *FunctionLit
	Pos  lexer.Position
}

func (*VarDecl) node()      {}
func (*ExprStmt) node()     {}
func (*BlockStmt) node()    {}
func (*IfStmt) node()       {}
func (*ForOfStmt) node()    {}
func (*ForStmt) node()      {}
func (*WhileStmt) node()    {}
func (*DoWhileStmt) node()  {}
func (*ReturnStmt) node()   {}
func (*ThrowStmt) node()    {}
func (*BreakStmt) node()    {}
func (*ContinueStmt) node() {}
func (*FuncDecl) node()     {}

func (*VarDecl) stmt()      {}
func (*ExprStmt) stmt()     {}
func (*BlockStmt) stmt()    {}
func (*IfStmt) stmt()       {}
func (*ForOfStmt) stmt()    {}
func (*ForStmt) stmt()      {}
func (*WhileStmt) stmt()    {}
func (*DoWhileStmt) stmt()  {}
func (*ReturnStmt) stmt()   {}
func (*ThrowStmt) stmt()    {}
func (*BreakStmt) stmt()    {}
func (*ContinueStmt) stmt() {}
func (*FuncDecl) stmt()     {}

// --- Expressions ---

// Identifier is a bare name reference.
type Identifier struct {
	Name string
	Pos  lexer.Position
}

// NumberLit is a numeric literal; Raw preserves the source spelling.
type NumberLit struct {
	Value float64
	Raw   string
}

// StringLit is a string literal holding the decoded value.
type StringLit struct {
	Value string
}

// BoolLit is `true` or `false`.
type BoolLit struct {
	Value bool
}

// NullLit is `null`.
type NullLit struct{}

// ArrayLit is `[e1, e2, ...]`.
type ArrayLit struct {
	Elems []Expr
}

// Property is one entry of an ObjectLit.
type Property struct {
	Key       string
	Value     Expr
	Shorthand bool // `{x}` rather than `{x: x}`
}

// ObjectLit is `{k: v, ...}`.
type ObjectLit struct {
	Props []*Property
}

// FunctionLit is a function expression, declaration body, or arrow function.
type FunctionLit struct {
	Async    bool
	Arrow    bool
	Params   []Pattern
	Body     *BlockStmt // nil when ExprBody is set
	ExprBody Expr       // arrow concise body, nil otherwise
	Pos      lexer.Position
}

// CallExpr is `callee(args...)`.
type CallExpr struct {
	Callee Expr
	Args   []Expr
}

// MemberExpr is dot access `obj.prop`.
type MemberExpr struct {
	Obj  Expr
	Prop string
	Pos  lexer.Position
}

// IndexExpr is bracket access `obj[index]`.
type IndexExpr struct {
	Obj   Expr
	Index Expr
	Pos   lexer.Position
}

// UnaryExpr is a prefix operator (`!`, `-`, `+`) or an increment/decrement in
// either position.
type UnaryExpr struct {
	Op     string
	X      Expr
	Prefix bool
}

// BinaryExpr covers arithmetic, comparison and logical operators.
type BinaryExpr struct {
	Op string
	L  Expr
	R  Expr
}

// AssignExpr is `target = value` and the compound forms.
type AssignExpr struct {
	Op     string // "=", "+=", ...
	Target Expr   // Identifier, MemberExpr or IndexExpr
	Value  Expr
	Pos    lexer.Position
}

// CondExpr is the ternary `cond ? a : b`.
type CondExpr struct {
	Cond Expr
	Then Expr
	Else Expr
}

// AwaitExpr suspends on its operand.
type AwaitExpr struct {
	X Expr
}

func (*Identifier) node()  {}
func (*NumberLit) node()   {}
func (*StringLit) node()   {}
func (*BoolLit) node()     {}
func (*NullLit) node()     {}
func (*ArrayLit) node()    {}
func (*ObjectLit) node()   {}
func (*FunctionLit) node() {}
func (*CallExpr) node()    {}
func (*MemberExpr) node()  {}
func (*IndexExpr) node()   {}
func (*UnaryExpr) node()   {}
func (*BinaryExpr) node()  {}
func (*AssignExpr) node()  {}
func (*CondExpr) node()    {}
func (*AwaitExpr) node()   {}

func (*Identifier) expr()  {}
func (*NumberLit) expr()   {}
func (*StringLit) expr()   {}
func (*BoolLit) expr()     {}
func (*NullLit) expr()     {}
func (*ArrayLit) expr()    {}
func (*ObjectLit) expr()   {}
func (*FunctionLit) expr() {}
func (*CallExpr) expr()    {}
func (*MemberExpr) expr()  {}
func (*IndexExpr) expr()   {}
func (*UnaryExpr) expr()   {}
func (*BinaryExpr) expr()  {}
func (*AssignExpr) expr()  {}
func (*CondExpr) expr()    {}
func (*AwaitExpr) expr()   {}

// --- Patterns ---

// IdentPattern binds a single name.
type IdentPattern struct {
	Name string
	Pos  lexer.Position
}

// PatternProp is one property of an ObjectPattern. `{a}` binds a; `{a: b}`
// binds b (the alias), not a; either form may carry a default.
type PatternProp struct {
	Key   string
	Value Pattern // IdentPattern for the shorthand form
	// Default applies when the property is absent or undefined.
	Default Expr
}

// ObjectPattern destructures object properties, with an optional rest target
// collecting the remaining properties.
type ObjectPattern struct {
	Props []*PatternProp
	Rest  *IdentPattern // nil when absent
}

// ArrayPattern destructures array elements positionally. A nil element is a
// hole. Rest collects the remaining elements.
type ArrayPattern struct {
	Elems []Pattern
	Rest  Pattern // nil when absent
}

// AssignPattern wraps a pattern with a default value expression.
type AssignPattern struct {
	Target  Pattern
	Default Expr
}

func (*IdentPattern) node()  {}
func (*ObjectPattern) node() {}
func (*ArrayPattern) node()  {}
func (*AssignPattern) node() {}

func (*IdentPattern) pattern()  {}
func (*ObjectPattern) pattern() {}
func (*ArrayPattern) pattern()  {}
func (*AssignPattern) pattern() {}
