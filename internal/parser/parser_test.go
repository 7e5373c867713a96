package parser_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/lexer"
	"github.com/enclave-labs/agentscript/internal/parser"
)

// ignorePositions compares trees structurally, since a reparse of printed
// output lands every node on different source coordinates.
var ignorePositions = cmp.Comparer(func(a, b lexer.Position) bool { return true })

func parse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, err := parser.Parse(src)
	require.NoError(t, err, "source: %s", src)
	return prog
}

func TestParse_VarDeclarations(t *testing.T) {
	prog := parse(t, "const a = 1, b = 'two'; let c;")
	require.Len(t, prog.Body, 2)

	decl := prog.Body[0].(*ast.VarDecl)
	assert.Equal(t, "const", decl.Kind)
	require.Len(t, decl.Decls, 2)
	assert.Equal(t, "a", decl.Decls[0].Target.(*ast.IdentPattern).Name)
	assert.Equal(t, float64(1), decl.Decls[0].Init.(*ast.NumberLit).Value)
	assert.Equal(t, "two", decl.Decls[1].Init.(*ast.StringLit).Value)

	bare := prog.Body[1].(*ast.VarDecl)
	assert.Equal(t, "let", bare.Kind)
	assert.Nil(t, bare.Decls[0].Init)
}

func TestParse_ConstInitializerForms(t *testing.T) {
	cases := map[string]string{
		"scalar":      "const x = 1;",
		"array":       "const xs = [1, 2, 3];",
		"object":      "const {a} = obj;",
		"destructure": "const [first, ...more] = xs;",
		"call":        "const users = await callTool('x', {});",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			prog := parse(t, src)
			decl := prog.Body[0].(*ast.VarDecl)
			require.Equal(t, "const", decl.Kind)
			require.Len(t, decl.Decls, 1)
			assert.NotNil(t, decl.Decls[0].Init, "initializer belongs to the declarator")
			_, isAssign := decl.Decls[0].Target.(*ast.AssignPattern)
			assert.False(t, isAssign, "declarator target must be a bare pattern")
		})
	}

	_, err := parser.Parse("const x;")
	var perr *parser.Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, "initializer")
}

func TestParse_OperatorPrecedence(t *testing.T) {
	prog := parse(t, "x = 1 + 2 * 3 === 7 && !done;")
	expr := prog.Body[0].(*ast.ExprStmt).X.(*ast.AssignExpr)

	and := expr.Value.(*ast.BinaryExpr)
	require.Equal(t, "&&", and.Op)
	eq := and.L.(*ast.BinaryExpr)
	require.Equal(t, "===", eq.Op)
	add := eq.L.(*ast.BinaryExpr)
	require.Equal(t, "+", add.Op)
	mul := add.R.(*ast.BinaryExpr)
	require.Equal(t, "*", mul.Op)
	not := and.R.(*ast.UnaryExpr)
	assert.Equal(t, "!", not.Op)
}

func TestParse_MemberIndexCallChain(t *testing.T) {
	prog := parse(t, "obj.list[0].fn(1, 'x');")
	call := prog.Body[0].(*ast.ExprStmt).X.(*ast.CallExpr)
	require.Len(t, call.Args, 2)

	member := call.Callee.(*ast.MemberExpr)
	assert.Equal(t, "fn", member.Prop)
	index := member.Obj.(*ast.IndexExpr)
	assert.Equal(t, float64(0), index.Index.(*ast.NumberLit).Value)
	inner := index.Obj.(*ast.MemberExpr)
	assert.Equal(t, "list", inner.Prop)
	assert.Equal(t, "obj", inner.Obj.(*ast.Identifier).Name)
}

func TestParse_ArrowVersusParenExpression(t *testing.T) {
	prog := parse(t, "const f = (a, b) => a + b; const g = (a + b);")

	fn := prog.Body[0].(*ast.VarDecl).Decls[0].Init.(*ast.FunctionLit)
	assert.True(t, fn.Arrow)
	require.Len(t, fn.Params, 2)
	assert.NotNil(t, fn.ExprBody)
	assert.Nil(t, fn.Body)

	_, isBinary := prog.Body[1].(*ast.VarDecl).Decls[0].Init.(*ast.BinaryExpr)
	assert.True(t, isBinary, "parenthesized sum must stay an expression")
}

func TestParse_AsyncArrowAndAwait(t *testing.T) {
	prog := parse(t, "const f = async (x) => { return await g(x); };")
	fn := prog.Body[0].(*ast.VarDecl).Decls[0].Init.(*ast.FunctionLit)
	assert.True(t, fn.Async)
	require.NotNil(t, fn.Body)

	ret := fn.Body.Body[0].(*ast.ReturnStmt)
	await := ret.Value.(*ast.AwaitExpr)
	_, isCall := await.X.(*ast.CallExpr)
	assert.True(t, isCall)
}

func TestParse_DestructuringPatterns(t *testing.T) {
	prog := parse(t, "const {a, b: c = 2, ...rest} = src; const [x, , z = 3, ...tail] = xs;")

	obj := prog.Body[0].(*ast.VarDecl).Decls[0].Target.(*ast.ObjectPattern)
	require.Len(t, obj.Props, 2)
	assert.Equal(t, "a", obj.Props[0].Key)
	assert.Equal(t, "b", obj.Props[1].Key)
	assert.Equal(t, "c", obj.Props[1].Value.(*ast.IdentPattern).Name)
	assert.NotNil(t, obj.Props[1].Default)
	require.NotNil(t, obj.Rest)
	assert.Equal(t, "rest", obj.Rest.Name)

	arr := prog.Body[1].(*ast.VarDecl).Decls[0].Target.(*ast.ArrayPattern)
	require.Len(t, arr.Elems, 3)
	assert.Equal(t, "x", arr.Elems[0].(*ast.IdentPattern).Name)
	assert.Nil(t, arr.Elems[1], "elision keeps its slot")
	assign := arr.Elems[2].(*ast.AssignPattern)
	assert.Equal(t, "z", assign.Target.(*ast.IdentPattern).Name)
	require.NotNil(t, arr.Rest)
	assert.Equal(t, "tail", arr.Rest.(*ast.IdentPattern).Name)
}

func TestParse_LoopForms(t *testing.T) {
	prog := parse(t, `
		for (const x of xs) { use(x); }
		for (let i = 0; i < 3; i++) { use(i); }
		while (ready) { tick(); }
		do { once(); } while (false);
	`)
	require.Len(t, prog.Body, 4)

	forOf := prog.Body[0].(*ast.ForOfStmt)
	assert.Equal(t, "const", forOf.Kind)
	assert.Equal(t, "x", forOf.Target.(*ast.IdentPattern).Name)
	assert.Equal(t, "xs", forOf.Iterable.(*ast.Identifier).Name)

	forStmt := prog.Body[1].(*ast.ForStmt)
	assert.NotNil(t, forStmt.Init)
	assert.NotNil(t, forStmt.Cond)
	assert.NotNil(t, forStmt.Post)

	_, isWhile := prog.Body[2].(*ast.WhileStmt)
	assert.True(t, isWhile)
	doStmt := prog.Body[3].(*ast.DoWhileStmt)
	assert.Equal(t, false, doStmt.Cond.(*ast.BoolLit).Value)
}

func TestParse_IfElseChain(t *testing.T) {
	prog := parse(t, "if (a) { f(); } else if (b) { g(); } else { h(); }")
	ifStmt := prog.Body[0].(*ast.IfStmt)
	elseIf, ok := ifStmt.Else.(*ast.IfStmt)
	require.True(t, ok)
	_, ok = elseIf.Else.(*ast.BlockStmt)
	assert.True(t, ok)
}

func TestParse_TernaryAndNullish(t *testing.T) {
	prog := parse(t, "const v = a ?? b ? 'yes' : 'no';")
	cond := prog.Body[0].(*ast.VarDecl).Decls[0].Init.(*ast.CondExpr)
	nullish := cond.Cond.(*ast.BinaryExpr)
	assert.Equal(t, "??", nullish.Op)
	assert.Equal(t, "yes", cond.Then.(*ast.StringLit).Value)
}

func TestParse_ObjectAndArrayLiterals(t *testing.T) {
	prog := parse(t, "const o = {a: 1, b, 'c d': 3}; const xs = [1, [2], {}];")

	obj := prog.Body[0].(*ast.VarDecl).Decls[0].Init.(*ast.ObjectLit)
	require.Len(t, obj.Props, 3)
	assert.False(t, obj.Props[0].Shorthand)
	assert.True(t, obj.Props[1].Shorthand)
	assert.Equal(t, "c d", obj.Props[2].Key)

	arr := prog.Body[1].(*ast.VarDecl).Decls[0].Init.(*ast.ArrayLit)
	require.Len(t, arr.Elems, 3)
}

func TestParse_FunctionDeclaration(t *testing.T) {
	prog := parse(t, "async function run(a, b = 2) { return a + b; }")
	decl := prog.Body[0].(*ast.FuncDecl)
	assert.Equal(t, "run", decl.Name)
	assert.True(t, decl.Fn.Async)
	require.Len(t, decl.Fn.Params, 2)
	_, hasDefault := decl.Fn.Params[1].(*ast.AssignPattern)
	assert.True(t, hasDefault)
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		"const = 1;",
		"if (a { f(); }",
		"let a = ;",
		"for (const x of) {}",
		"function () {}",
		"a +",
	}
	for _, src := range cases {
		_, err := parser.Parse(src)
		var perr *parser.Error
		require.ErrorAs(t, err, &perr, "source: %s", src)
		assert.NotZero(t, perr.Pos.Line, "source: %s", src)
	}
}

// Printing then reparsing must reproduce the same tree. The transformer
// depends on this to rewrite source without disturbing untouched nodes.
func TestPrintReparseFixpoint(t *testing.T) {
	sources := []string{
		"const a = 1 + 2 * 3;",
		"const {a, b = 2, ...rest} = src;",
		"for (const x of xs) { if (x > 1) { break; } total += x; }",
		"async function f(a) { return await g({k: a, list: [1, 2]}); }",
		"const pick = (c) => c ? 'l' : 'r';",
		"do { i++; } while (i < 10);",
		"obj.a['b'].c(1)(2);",
		"throw {code: 3, msg: 'boom'};",
	}
	for _, src := range sources {
		first := parse(t, src)
		printed := ast.Print(first)
		second := parse(t, printed)
		if diff := cmp.Diff(first, second, ignorePositions); diff != "" {
			t.Fatalf("reparse of %q diverged (-first +second):\n%s", src, diff)
		}
		assert.Equal(t, printed, ast.Print(second), "printing must be a fixpoint for %q", src)
	}
}
