// Package parser builds AgentScript syntax trees from source text.
//
// The parser is recursive descent over the full token slice produced by the
// lexer, with a Pratt loop for binary operators. Holding the whole token
// stream makes backtracking a pointer reset, which is how arrow-function
// parameter lists are disambiguated from parenthesized expressions.
package parser

import (
	"fmt"
	"strconv"

	"github.com/enclave-labs/agentscript/internal/ast"
	"github.com/enclave-labs/agentscript/internal/lexer"
)

// Error reports a syntactic fault with its source position.
type Error struct {
	Pos lexer.Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// Parse lexes and parses a complete program.
func Parse(src string) (*ast.Program, error) {
	toks, err := lexer.Lex(src)
	if err != nil {
		if lerr, ok := err.(*lexer.Error); ok {
			return nil, &Error{Pos: lerr.Pos, Msg: lerr.Msg}
		}
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &ast.Program{}
	for !p.at(lexer.EOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Body = append(prog.Body, stmt)
	}
	return prog, nil
}

type parser struct {
	toks []lexer.Token
	pos  int
}

func (p *parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *parser) at(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *parser) is(lit string) bool { return p.cur().Is(lit) }

func (p *parser) peekIs(offset int, lit string) bool {
	i := p.pos + offset
	if i >= len(p.toks) {
		return false
	}
	return p.toks[i].Is(lit)
}

func (p *parser) next() lexer.Token {
	t := p.cur()
	if t.Kind != lexer.EOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(lit string) (lexer.Token, error) {
	if !p.is(lit) {
		return lexer.Token{}, p.errf("expected %q, found %q", lit, p.describe())
	}
	return p.next(), nil
}

func (p *parser) describe() string {
	t := p.cur()
	if t.Kind == lexer.EOF {
		return "end of input"
	}
	return t.Lit
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &Error{Pos: p.cur().Pos, Msg: fmt.Sprintf(format, args...)}
}

// eatSemi consumes an optional statement terminator.
func (p *parser) eatSemi() {
	if p.is(";") {
		p.next()
	}
}

// --- Statements ---

func (p *parser) parseStmt() (ast.Stmt, error) {
	switch {
	case p.is("const") || p.is("let"):
		return p.parseVarDecl()
	case p.is("{"):
		return p.parseBlock()
	case p.is("if"):
		return p.parseIf()
	case p.is("for"):
		return p.parseFor()
	case p.is("while"):
		return p.parseWhile()
	case p.is("do"):
		return p.parseDoWhile()
	case p.is("return"):
		p.next()
		if p.is(";") || p.is("}") || p.at(lexer.EOF) {
			p.eatSemi()
			return &ast.ReturnStmt{}, nil
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.eatSemi()
		return &ast.ReturnStmt{Value: val}, nil
	case p.is("throw"):
		p.next()
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.eatSemi()
		return &ast.ThrowStmt{Value: val}, nil
	case p.is("break"):
		p.next()
		p.eatSemi()
		return &ast.BreakStmt{}, nil
	case p.is("continue"):
		p.next()
		p.eatSemi()
		return &ast.ContinueStmt{}, nil
	case p.is("function"):
		return p.parseFuncDecl(false)
	case p.is("async") && p.peekIs(1, "function"):
		p.next()
		return p.parseFuncDecl(true)
	case p.is(";"):
		p.next()
		return p.parseStmt()
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.eatSemi()
	return &ast.ExprStmt{X: expr}, nil
}

func (p *parser) parseVarDecl() (ast.Stmt, error) {
	kindTok := p.next()
	decl := &ast.VarDecl{Kind: kindTok.Lit, Pos: kindTok.Pos}
	for {
		// The declarator target is a bare pattern; "=" here is the
		// initializer, not a destructuring default.
		target, err := p.parsePatternBase()
		if err != nil {
			return nil, err
		}
		d := &ast.Declarator{Target: target}
		if p.is("=") {
			p.next()
			init, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			d.Init = init
		} else if decl.Kind == "const" {
			return nil, p.errf("const declaration requires an initializer")
		}
		decl.Decls = append(decl.Decls, d)
		if !p.is(",") {
			break
		}
		p.next()
	}
	p.eatSemi()
	return decl, nil
}

func (p *parser) parseBlock() (*ast.BlockStmt, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	blk := &ast.BlockStmt{}
	for !p.is("}") {
		if p.at(lexer.EOF) {
			return nil, p.errf("unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		blk.Body = append(blk.Body, stmt)
	}
	p.next()
	return blk, nil
}

func (p *parser) parseIf() (ast.Stmt, error) {
	p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	stmt := &ast.IfStmt{Cond: cond, Then: then}
	if p.is("else") {
		p.next()
		els, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmt.Else = els
	}
	return stmt, nil
}

func (p *parser) parseFor() (ast.Stmt, error) {
	forTok := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}

	if p.is("const") || p.is("let") {
		kindTok := p.next()
		target, err := p.parsePatternBase()
		if err != nil {
			return nil, err
		}
		if p.is("of") {
			p.next()
			iterable, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			body, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			return &ast.ForOfStmt{Kind: kindTok.Lit, Target: target, Iterable: iterable, Body: body, Pos: forTok.Pos}, nil
		}

		// Generic for with a declaration initializer.
		decl := &ast.VarDecl{Kind: kindTok.Lit, Pos: kindTok.Pos}
		d := &ast.Declarator{Target: target}
		if p.is("=") {
			p.next()
			init, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			d.Init = init
		} else if decl.Kind == "const" {
			return nil, p.errf("const declaration requires an initializer")
		}
		decl.Decls = append(decl.Decls, d)
		for p.is(",") {
			p.next()
			more, err := p.parsePatternBase()
			if err != nil {
				return nil, err
			}
			d := &ast.Declarator{Target: more}
			if p.is("=") {
				p.next()
				init, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				d.Init = init
			}
			decl.Decls = append(decl.Decls, d)
		}
		return p.parseForClauses(forTok.Pos, decl)
	}

	if p.is(";") {
		return p.parseForClauses(forTok.Pos, nil)
	}
	initExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return p.parseForClauses(forTok.Pos, &ast.ExprStmt{X: initExpr})
}

func (p *parser) parseForClauses(pos lexer.Position, init ast.Stmt) (ast.Stmt, error) {
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	var cond, post ast.Expr
	var err error
	if !p.is(";") {
		cond, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	if !p.is(")") {
		post, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Init: init, Cond: cond, Post: post, Body: body, Pos: pos}, nil
}

func (p *parser) parseWhile() (ast.Stmt, error) {
	whileTok := p.next()
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Cond: cond, Body: body, Pos: whileTok.Pos}, nil
}

func (p *parser) parseDoWhile() (ast.Stmt, error) {
	doTok := p.next()
	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("while"); err != nil {
		return nil, err
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	p.eatSemi()
	return &ast.DoWhileStmt{Body: body, Cond: cond, Pos: doTok.Pos}, nil
}

func (p *parser) parseFuncDecl(async bool) (ast.Stmt, error) {
	fnTok := p.next() // "function"
	if !p.at(lexer.Ident) {
		return nil, p.errf("expected function name, found %q", p.describe())
	}
	name := p.next().Lit
	fn, err := p.parseFunctionRest(async, fnTok.Pos)
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{Name: name, Fn: fn, Pos: fnTok.Pos}, nil
}

// parseFunctionRest parses "(params) { body }" after the function keyword and
// optional name have been consumed.
func (p *parser) parseFunctionRest(async bool, pos lexer.Position) (*ast.FunctionLit, error) {
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionLit{Async: async, Params: params, Body: body, Pos: pos}, nil
}

func (p *parser) parseParamList() ([]ast.Pattern, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var params []ast.Pattern
	for !p.is(")") {
		pat, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		params = append(params, pat)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect(")"); err != nil {
		return nil, err
	}
	return params, nil
}

// --- Patterns ---

func (p *parser) parsePattern() (ast.Pattern, error) {
	base, err := p.parsePatternBase()
	if err != nil {
		return nil, err
	}
	if p.is("=") {
		p.next()
		def, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssignPattern{Target: base, Default: def}, nil
	}
	return base, nil
}

func (p *parser) parsePatternBase() (ast.Pattern, error) {
	switch {
	case p.at(lexer.Ident):
		tok := p.next()
		return &ast.IdentPattern{Name: tok.Lit, Pos: tok.Pos}, nil
	case p.is("{"):
		return p.parseObjectPattern()
	case p.is("["):
		return p.parseArrayPattern()
	}
	return nil, p.errf("expected binding pattern, found %q", p.describe())
}

func (p *parser) parseObjectPattern() (ast.Pattern, error) {
	p.next() // "{"
	pat := &ast.ObjectPattern{}
	for !p.is("}") {
		if p.is("...") {
			p.next()
			if !p.at(lexer.Ident) {
				return nil, p.errf("expected identifier after rest element")
			}
			tok := p.next()
			pat.Rest = &ast.IdentPattern{Name: tok.Lit, Pos: tok.Pos}
			break
		}
		var key string
		switch {
		case p.at(lexer.Ident):
			key = p.next().Lit
		case p.at(lexer.String):
			key = p.next().Lit
		default:
			return nil, p.errf("expected property name in object pattern, found %q", p.describe())
		}
		prop := &ast.PatternProp{Key: key}
		if p.is(":") {
			p.next()
			value, err := p.parsePatternBase()
			if err != nil {
				return nil, err
			}
			prop.Value = value
		} else {
			prop.Value = &ast.IdentPattern{Name: key}
		}
		if p.is("=") {
			p.next()
			def, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			prop.Default = def
		}
		pat.Props = append(pat.Props, prop)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return pat, nil
}

func (p *parser) parseArrayPattern() (ast.Pattern, error) {
	p.next() // "["
	pat := &ast.ArrayPattern{}
	for !p.is("]") {
		if p.is(",") {
			// Hole.
			pat.Elems = append(pat.Elems, nil)
			p.next()
			continue
		}
		if p.is("...") {
			p.next()
			rest, err := p.parsePatternBase()
			if err != nil {
				return nil, err
			}
			pat.Rest = rest
			break
		}
		el, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		pat.Elems = append(pat.Elems, el)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return pat, nil
}

// --- Expressions ---

var assignOps = map[string]bool{"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true}

func (p *parser) parseExpr() (ast.Expr, error) {
	if fn, ok := p.tryArrowFunction(); ok {
		return fn, nil
	}
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == lexer.Punct && assignOps[p.cur().Lit] {
		opTok := p.next()
		switch left.(type) {
		case *ast.Identifier, *ast.MemberExpr, *ast.IndexExpr:
		default:
			return nil, &Error{Pos: opTok.Pos, Msg: "invalid assignment target"}
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.AssignExpr{Op: opTok.Lit, Target: left, Value: value, Pos: opTok.Pos}, nil
	}
	return left, nil
}

// tryArrowFunction attempts to parse an arrow function at the current
// position, resetting on failure.
func (p *parser) tryArrowFunction() (ast.Expr, bool) {
	saved := p.pos
	async := false
	pos := p.cur().Pos
	if p.is("async") && (p.peekIs(1, "(") || p.toks[p.pos+1].Kind == lexer.Ident) {
		async = true
		p.next()
	}

	var params []ast.Pattern
	switch {
	case p.at(lexer.Ident) && p.peekIs(1, "=>"):
		tok := p.next()
		params = []ast.Pattern{&ast.IdentPattern{Name: tok.Lit, Pos: tok.Pos}}
	case p.is("("):
		parsed, err := p.parseParamList()
		if err != nil || !p.is("=>") {
			p.pos = saved
			return nil, false
		}
		params = parsed
	default:
		p.pos = saved
		return nil, false
	}

	if !p.is("=>") {
		p.pos = saved
		return nil, false
	}
	p.next()

	fn := &ast.FunctionLit{Async: async, Arrow: true, Params: params, Pos: pos}
	if p.is("{") {
		body, err := p.parseBlock()
		if err != nil {
			p.pos = saved
			return nil, false
		}
		fn.Body = body
		return fn, true
	}
	expr, err := p.parseExpr()
	if err != nil {
		p.pos = saved
		return nil, false
	}
	fn.ExprBody = expr
	return fn, true
}

func (p *parser) parseConditional() (ast.Expr, error) {
	cond, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if !p.is("?") {
		return cond, nil
	}
	p.next()
	then, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(":"); err != nil {
		return nil, err
	}
	els, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.CondExpr{Cond: cond, Then: then, Else: els}, nil
}

// binding powers for binary operators; 0 means not a binary operator.
func binaryPower(tok lexer.Token) int {
	if tok.Kind != lexer.Punct {
		return 0
	}
	switch tok.Lit {
	case "??":
		return 1
	case "||":
		return 2
	case "&&":
		return 3
	case "==", "!=", "===", "!==":
		return 4
	case "<", "<=", ">", ">=":
		return 5
	case "+", "-":
		return 6
	case "*", "/", "%":
		return 7
	}
	return 0
}

func (p *parser) parseBinary(minPower int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		power := binaryPower(p.cur())
		if power < minPower || power == 0 {
			return left, nil
		}
		op := p.next().Lit
		right, err := p.parseBinary(power + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (ast.Expr, error) {
	switch {
	case p.is("await"):
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.AwaitExpr{X: x}, nil
	case p.is("!") || p.is("-") || p.is("+"):
		op := p.next().Lit
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: op, X: x, Prefix: true}, nil
	case p.is("++") || p.is("--"):
		op := p.next().Lit
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: op, X: x, Prefix: true}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.is("."):
			dotTok := p.next()
			if !p.at(lexer.Ident) && !p.at(lexer.Keyword) {
				return nil, p.errf("expected property name after '.', found %q", p.describe())
			}
			prop := p.next()
			expr = &ast.MemberExpr{Obj: expr, Prop: prop.Lit, Pos: dotTok.Pos}
		case p.is("["):
			brTok := p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			expr = &ast.IndexExpr{Obj: expr, Index: idx, Pos: brTok.Pos}
		case p.is("("):
			p.next()
			var args []ast.Expr
			for !p.is(")") {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.is(",") {
					break
				}
				p.next()
			}
			if _, err := p.expect(")"); err != nil {
				return nil, err
			}
			expr = &ast.CallExpr{Callee: expr, Args: args}
		case p.is("++") || p.is("--"):
			op := p.next().Lit
			expr = &ast.UnaryExpr{Op: op, X: expr, Prefix: false}
		default:
			return expr, nil
		}
	}
}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur()
	switch {
	case tok.Kind == lexer.Ident:
		p.next()
		return &ast.Identifier{Name: tok.Lit, Pos: tok.Pos}, nil
	case tok.Kind == lexer.Number:
		p.next()
		value, err := strconv.ParseFloat(tok.Lit, 64)
		if err != nil {
			return nil, p.errf("malformed number literal %q", tok.Lit)
		}
		return &ast.NumberLit{Value: value, Raw: tok.Raw}, nil
	case tok.Kind == lexer.String:
		p.next()
		return &ast.StringLit{Value: tok.Lit}, nil
	case tok.Is("true"):
		p.next()
		return &ast.BoolLit{Value: true}, nil
	case tok.Is("false"):
		p.next()
		return &ast.BoolLit{Value: false}, nil
	case tok.Is("null"):
		p.next()
		return &ast.NullLit{}, nil
	case tok.Is("("):
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil
	case tok.Is("["):
		return p.parseArrayLit()
	case tok.Is("{"):
		return p.parseObjectLit()
	case tok.Is("function"):
		p.next()
		// Optional name on function expressions is accepted and dropped;
		// the dialect has no named function expression recursion.
		if p.at(lexer.Ident) {
			p.next()
		}
		return p.parseFunctionRest(false, tok.Pos)
	case tok.Is("async") && p.peekIs(1, "function"):
		p.next()
		p.next()
		if p.at(lexer.Ident) {
			p.next()
		}
		return p.parseFunctionRest(true, tok.Pos)
	}
	return nil, p.errf("unexpected token %q", p.describe())
}

func (p *parser) parseArrayLit() (ast.Expr, error) {
	p.next() // "["
	lit := &ast.ArrayLit{}
	for !p.is("]") {
		el, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, el)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect("]"); err != nil {
		return nil, err
	}
	return lit, nil
}

func (p *parser) parseObjectLit() (ast.Expr, error) {
	p.next() // "{"
	lit := &ast.ObjectLit{}
	for !p.is("}") {
		var key string
		switch {
		case p.at(lexer.Ident) || p.at(lexer.Keyword):
			key = p.next().Lit
		case p.at(lexer.String):
			key = p.next().Lit
		case p.at(lexer.Number):
			key = p.next().Lit
		default:
			return nil, p.errf("expected property name in object literal, found %q", p.describe())
		}
		prop := &ast.Property{Key: key}
		if p.is(":") {
			p.next()
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			prop.Value = value
		} else {
			prop.Shorthand = true
			prop.Value = &ast.Identifier{Name: key}
		}
		lit.Props = append(lit.Props, prop)
		if !p.is(",") {
			break
		}
		p.next()
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return lit, nil
}
