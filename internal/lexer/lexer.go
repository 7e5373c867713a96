// Package lexer tokenizes AgentScript source text.
//
// The lexer is a straightforward single-pass scanner: it produces the full
// token slice up front so the parser can backtrack cheaply (needed to
// disambiguate parenthesized expressions from arrow-function parameter
// lists). Line comments (//), block comments (/* */) and all whitespace are
// discarded.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies the lexical class of a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	Number
	String
	Punct
)

// Position is a 1-based line/column location in the source.
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Token is a single lexical unit.
type Token struct {
	Kind Kind
	// Lit is the token text. For String tokens it holds the decoded value;
	// for Number tokens the raw spelling is preserved in Raw.
	Lit string
	Raw string
	Pos Position
}

// Is reports whether the token is the given punctuation or keyword.
func (t Token) Is(lit string) bool {
	return (t.Kind == Punct || t.Kind == Keyword) && t.Lit == lit
}

var keywords = map[string]bool{
	"const": true, "let": true, "function": true, "async": true,
	"await": true, "return": true, "throw": true, "if": true, "else": true,
	"for": true, "of": true, "while": true, "do": true, "break": true,
	"continue": true, "true": true, "false": true, "null": true,
}

// multi-character punctuation, longest first so maximal munch works.
var puncts = []string{
	"===", "!==", "...", "=>", "==", "!=", "<=", ">=", "&&", "||", "??",
	"++", "--", "+=", "-=", "*=", "/=", "%=",
	"(", ")", "{", "}", "[", "]", ",", ";", ":", ".", "?",
	"=", "<", ">", "+", "-", "*", "/", "%", "!",
}

// Error reports a lexical fault with its source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lex error at %s: %s", e.Pos, e.Msg)
}

type scanner struct {
	src  string
	off  int
	line int
	col  int
}

// Lex scans the entire source and returns the token stream, terminated by an
// EOF token.
func Lex(src string) ([]Token, error) {
	s := &scanner{src: src, line: 1, col: 1}
	var toks []Token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == EOF {
			return toks, nil
		}
	}
}

func (s *scanner) peek() rune {
	if s.off >= len(s.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(s.src[s.off:])
	return r
}

func (s *scanner) advance() rune {
	r, size := utf8.DecodeRuneInString(s.src[s.off:])
	s.off += size
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) pos() Position {
	return Position{Line: s.line, Col: s.col}
}

func (s *scanner) skipSpaceAndComments() error {
	for s.off < len(s.src) {
		r := s.peek()
		switch {
		case unicode.IsSpace(r):
			s.advance()
		case strings.HasPrefix(s.src[s.off:], "//"):
			for s.off < len(s.src) && s.peek() != '\n' {
				s.advance()
			}
		case strings.HasPrefix(s.src[s.off:], "/*"):
			start := s.pos()
			s.advance()
			s.advance()
			closed := false
			for s.off < len(s.src) {
				if strings.HasPrefix(s.src[s.off:], "*/") {
					s.advance()
					s.advance()
					closed = true
					break
				}
				s.advance()
			}
			if !closed {
				return &Error{Pos: start, Msg: "unterminated block comment"}
			}
		default:
			return nil
		}
	}
	return nil
}

func (s *scanner) next() (Token, error) {
	if err := s.skipSpaceAndComments(); err != nil {
		return Token{}, err
	}
	pos := s.pos()
	if s.off >= len(s.src) {
		return Token{Kind: EOF, Pos: pos}, nil
	}

	r := s.peek()
	switch {
	case isIdentStart(r):
		return s.scanIdent(pos), nil
	case unicode.IsDigit(r):
		return s.scanNumber(pos)
	case r == '\'' || r == '"':
		return s.scanString(pos)
	}

	// A '.' immediately followed by a digit starts a number literal.
	if r == '.' && s.off+1 < len(s.src) && unicode.IsDigit(rune(s.src[s.off+1])) {
		return s.scanNumber(pos)
	}

	for _, p := range puncts {
		if strings.HasPrefix(s.src[s.off:], p) {
			for range p {
				s.advance()
			}
			return Token{Kind: Punct, Lit: p, Pos: pos}, nil
		}
	}
	return Token{}, &Error{Pos: pos, Msg: fmt.Sprintf("unexpected character %q", r)}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func (s *scanner) scanIdent(pos Position) Token {
	start := s.off
	for s.off < len(s.src) && isIdentPart(s.peek()) {
		s.advance()
	}
	lit := s.src[start:s.off]
	kind := Ident
	if keywords[lit] {
		kind = Keyword
	}
	return Token{Kind: kind, Lit: lit, Pos: pos}
}

func (s *scanner) scanNumber(pos Position) (Token, error) {
	start := s.off
	seenDot := false
	seenExp := false
	for s.off < len(s.src) {
		r := s.peek()
		if unicode.IsDigit(r) {
			s.advance()
			continue
		}
		if r == '.' && !seenDot && !seenExp {
			seenDot = true
			s.advance()
			continue
		}
		if (r == 'e' || r == 'E') && !seenExp {
			seenExp = true
			s.advance()
			if s.peek() == '+' || s.peek() == '-' {
				s.advance()
			}
			continue
		}
		break
	}
	raw := s.src[start:s.off]
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return Token{}, &Error{Pos: pos, Msg: fmt.Sprintf("malformed number literal %q", raw)}
	}
	return Token{Kind: Number, Lit: raw, Raw: raw, Pos: pos}, nil
}

func (s *scanner) scanString(pos Position) (Token, error) {
	quote := s.advance()
	var b strings.Builder
	for {
		if s.off >= len(s.src) {
			return Token{}, &Error{Pos: pos, Msg: "unterminated string literal"}
		}
		r := s.advance()
		if r == quote {
			return Token{Kind: String, Lit: b.String(), Raw: s.quoteRaw(quote, b.String()), Pos: pos}, nil
		}
		if r == '\n' {
			return Token{}, &Error{Pos: pos, Msg: "newline in string literal"}
		}
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if s.off >= len(s.src) {
			return Token{}, &Error{Pos: pos, Msg: "unterminated escape sequence"}
		}
		esc := s.advance()
		switch esc {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case '0':
			b.WriteByte(0)
		case 'u':
			if s.off+4 > len(s.src) {
				return Token{}, &Error{Pos: pos, Msg: "truncated unicode escape"}
			}
			hex := s.src[s.off : s.off+4]
			n, err := strconv.ParseUint(hex, 16, 32)
			if err != nil {
				return Token{}, &Error{Pos: pos, Msg: fmt.Sprintf("invalid unicode escape \\u%s", hex)}
			}
			for i := 0; i < 4; i++ {
				s.advance()
			}
			b.WriteRune(rune(n))
		default:
			return Token{}, &Error{Pos: pos, Msg: fmt.Sprintf("unknown escape sequence \\%c", esc)}
		}
	}
}

func (s *scanner) quoteRaw(quote rune, decoded string) string {
	// Raw keeps a printable spelling for diagnostics only.
	return string(quote) + decoded + string(quote)
}
