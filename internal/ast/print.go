package ast

import (
	"fmt"
	"strings"
)

// Print renders the program as canonical AgentScript source. Printing then
// reparsing yields a structurally identical tree, which the transformer
// relies on for source-to-source rewrites.
func Print(p *Program) string {
	pr := &printer{}
	for _, s := range p.Body {
		pr.stmt(s)
	}
	return pr.b.String()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) line(s string) {
	p.b.WriteString(strings.Repeat("  ", p.indent))
	p.b.WriteString(s)
	p.b.WriteByte('\n')
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *VarDecl:
		parts := make([]string, 0, len(s.Decls))
		for _, d := range s.Decls {
			if d.Init != nil {
				parts = append(parts, fmt.Sprintf("%s = %s", p.pattern(d.Target), p.expr(d.Init, precLowest)))
			} else {
				parts = append(parts, p.pattern(d.Target))
			}
		}
		p.line(s.Kind + " " + strings.Join(parts, ", ") + ";")
	case *ExprStmt:
		text := p.expr(s.X, precLowest)
		// A leading brace or `function` would reparse as a block or
		// declaration, so those expressions are parenthesized.
		if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "function") {
			text = "(" + text + ")"
		}
		p.line(text + ";")
	case *BlockStmt:
		p.line("{")
		p.indent++
		for _, inner := range s.Body {
			p.stmt(inner)
		}
		p.indent--
		p.line("}")
	case *IfStmt:
		p.line("if (" + p.expr(s.Cond, precLowest) + ") {")
		p.indent++
		p.bodyOf(s.Then)
		p.indent--
		if s.Else == nil {
			p.line("}")
			return
		}
		if elseIf, ok := s.Else.(*IfStmt); ok {
			p.line("} else " + strings.TrimSpace(p.capture(func() { p.stmt(elseIf) })))
			return
		}
		p.line("} else {")
		p.indent++
		p.bodyOf(s.Else)
		p.indent--
		p.line("}")
	case *ForOfStmt:
		p.line(fmt.Sprintf("for (%s %s of %s) {", s.Kind, p.pattern(s.Target), p.expr(s.Iterable, precLowest)))
		p.indent++
		p.bodyOf(s.Body)
		p.indent--
		p.line("}")
	case *ForStmt:
		init := ""
		if s.Init != nil {
			init = strings.TrimSuffix(strings.TrimSpace(p.capture(func() { p.stmt(s.Init) })), ";")
		}
		cond := ""
		if s.Cond != nil {
			cond = p.expr(s.Cond, precLowest)
		}
		post := ""
		if s.Post != nil {
			post = p.expr(s.Post, precLowest)
		}
		p.line(fmt.Sprintf("for (%s; %s; %s) {", init, cond, post))
		p.indent++
		p.bodyOf(s.Body)
		p.indent--
		p.line("}")
	case *WhileStmt:
		p.line("while (" + p.expr(s.Cond, precLowest) + ") {")
		p.indent++
		p.bodyOf(s.Body)
		p.indent--
		p.line("}")
	case *DoWhileStmt:
		p.line("do {")
		p.indent++
		p.bodyOf(s.Body)
		p.indent--
		p.line("} while (" + p.expr(s.Cond, precLowest) + ");")
	case *ReturnStmt:
		if s.Value != nil {
			p.line("return " + p.expr(s.Value, precLowest) + ";")
		} else {
			p.line("return;")
		}
	case *ThrowStmt:
		p.line("throw " + p.expr(s.Value, precLowest) + ";")
	case *BreakStmt:
		p.line("break;")
	case *ContinueStmt:
		p.line("continue;")
	case *FuncDecl:
		kw := "function"
		if s.Fn.Async {
			kw = "async function"
		}
		p.line(fmt.Sprintf("%s %s(%s) {", kw, s.Name, p.params(s.Fn.Params)))
		p.indent++
		for _, inner := range s.Fn.Body.Body {
			p.stmt(inner)
		}
		p.indent--
		p.line("}")
	default:
		panic(fmt.Sprintf("ast: unknown statement %T", s))
	}
}

// bodyOf prints the statements of a body that is conventionally a block,
// flattening the block braces into the surrounding construct.
func (p *printer) bodyOf(s Stmt) {
	if blk, ok := s.(*BlockStmt); ok {
		for _, inner := range blk.Body {
			p.stmt(inner)
		}
		return
	}
	p.stmt(s)
}

// capture renders via a nested printer at the current indent.
func (p *printer) capture(f func()) string {
	saved := p.b
	p.b = strings.Builder{}
	f()
	out := p.b.String()
	p.b = saved
	return out
}

// Operator precedence levels, loosest first.
const (
	precLowest = iota
	precAssign
	precCond
	precNullish
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
	precPostfix
)

func binaryPrec(op string) int {
	switch op {
	case "??":
		return precNullish
	case "||":
		return precOr
	case "&&":
		return precAnd
	case "==", "!=", "===", "!==":
		return precEquality
	case "<", "<=", ">", ">=":
		return precRelational
	case "+", "-":
		return precAdditive
	case "*", "/", "%":
		return precMultiplicative
	}
	panic("ast: unknown binary operator " + op)
}

func (p *printer) expr(e Expr, ctx int) string {
	text, prec := p.exprPrec(e)
	if prec < ctx {
		return "(" + text + ")"
	}
	return text
}

func (p *printer) exprPrec(e Expr) (string, int) {
	switch e := e.(type) {
	case *Identifier:
		return e.Name, precPostfix
	case *NumberLit:
		if e.Raw != "" {
			return e.Raw, precPostfix
		}
		return strings.TrimSuffix(fmt.Sprintf("%g", e.Value), ".0"), precPostfix
	case *StringLit:
		return quoteString(e.Value), precPostfix
	case *BoolLit:
		if e.Value {
			return "true", precPostfix
		}
		return "false", precPostfix
	case *NullLit:
		return "null", precPostfix
	case *ArrayLit:
		elems := make([]string, len(e.Elems))
		for i, el := range e.Elems {
			elems[i] = p.expr(el, precAssign)
		}
		return "[" + strings.Join(elems, ", ") + "]", precPostfix
	case *ObjectLit:
		props := make([]string, len(e.Props))
		for i, pr := range e.Props {
			if pr.Shorthand {
				props[i] = pr.Key
			} else {
				props[i] = quoteKeyIfNeeded(pr.Key) + ": " + p.expr(pr.Value, precAssign)
			}
		}
		return "{ " + strings.Join(props, ", ") + " }", precPostfix
	case *FunctionLit:
		return p.function(e), precLowest
	case *CallExpr:
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = p.expr(a, precAssign)
		}
		return p.expr(e.Callee, precPostfix) + "(" + strings.Join(args, ", ") + ")", precPostfix
	case *MemberExpr:
		return p.expr(e.Obj, precPostfix) + "." + e.Prop, precPostfix
	case *IndexExpr:
		return p.expr(e.Obj, precPostfix) + "[" + p.expr(e.Index, precLowest) + "]", precPostfix
	case *UnaryExpr:
		if e.Prefix {
			return e.Op + p.expr(e.X, precUnary), precUnary
		}
		return p.expr(e.X, precPostfix) + e.Op, precPostfix
	case *BinaryExpr:
		prec := binaryPrec(e.Op)
		// Left-associative: the right operand needs one level tighter.
		return p.expr(e.L, prec) + " " + e.Op + " " + p.expr(e.R, prec+1), prec
	case *AssignExpr:
		return p.expr(e.Target, precPostfix) + " " + e.Op + " " + p.expr(e.Value, precAssign), precAssign
	case *CondExpr:
		return p.expr(e.Cond, precNullish) + " ? " + p.expr(e.Then, precAssign) + " : " + p.expr(e.Else, precAssign), precCond
	case *AwaitExpr:
		return "await " + p.expr(e.X, precUnary), precUnary
	default:
		panic(fmt.Sprintf("ast: unknown expression %T", e))
	}
}

func (p *printer) function(fn *FunctionLit) string {
	if fn.Arrow {
		head := "(" + p.params(fn.Params) + ")"
		if fn.Async {
			head = "async " + head
		}
		if fn.ExprBody != nil {
			body := p.expr(fn.ExprBody, precAssign)
			if strings.HasPrefix(body, "{") {
				body = "(" + body + ")"
			}
			return head + " => " + body
		}
		return head + " => " + p.blockInline(fn.Body)
	}
	kw := "function"
	if fn.Async {
		kw = "async function"
	}
	return kw + "(" + p.params(fn.Params) + ") " + p.blockInline(fn.Body)
}

func (p *printer) blockInline(b *BlockStmt) string {
	inner := p.capture(func() {
		p.indent++
		for _, s := range b.Body {
			p.stmt(s)
		}
		p.indent--
	})
	if inner == "" {
		return "{}"
	}
	return "{\n" + inner + strings.Repeat("  ", p.indent) + "}"
}

func (p *printer) params(params []Pattern) string {
	out := make([]string, len(params))
	for i, pat := range params {
		out[i] = p.pattern(pat)
	}
	return strings.Join(out, ", ")
}

func (p *printer) pattern(pat Pattern) string {
	switch pat := pat.(type) {
	case *IdentPattern:
		return pat.Name
	case *AssignPattern:
		return p.pattern(pat.Target) + " = " + p.expr(pat.Default, precAssign)
	case *ObjectPattern:
		parts := make([]string, 0, len(pat.Props)+1)
		for _, prop := range pat.Props {
			text := prop.Key
			if ip, ok := prop.Value.(*IdentPattern); !ok || ip.Name != prop.Key {
				text += ": " + p.pattern(prop.Value)
			}
			if prop.Default != nil {
				text += " = " + p.expr(prop.Default, precAssign)
			}
			parts = append(parts, text)
		}
		if pat.Rest != nil {
			parts = append(parts, "..."+pat.Rest.Name)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case *ArrayPattern:
		parts := make([]string, 0, len(pat.Elems)+1)
		for _, el := range pat.Elems {
			if el == nil {
				parts = append(parts, "")
			} else {
				parts = append(parts, p.pattern(el))
			}
		}
		if pat.Rest != nil {
			parts = append(parts, "..."+p.pattern(pat.Rest))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		panic(fmt.Sprintf("ast: unknown pattern %T", pat))
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func quoteKeyIfNeeded(key string) string {
	if key == "" {
		return "''"
	}
	for i, r := range key {
		ok := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ok {
			return quoteString(key)
		}
	}
	return key
}
