package lexer_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enclave-labs/agentscript/internal/lexer"
)

func lexKinds(t *testing.T, src string) []lexer.Token {
	t.Helper()
	toks, err := lexer.Lex(src)
	require.NoError(t, err)
	require.NotEmpty(t, toks)
	require.Equal(t, lexer.EOF, toks[len(toks)-1].Kind)
	return toks[:len(toks)-1]
}

func TestLex_IdentifiersAndKeywords(t *testing.T) {
	toks := lexKinds(t, "const answer = await $fn(_x1);")

	var got []lexer.Kind
	var lits []string
	for _, tok := range toks {
		got = append(got, tok.Kind)
		lits = append(lits, tok.Lit)
	}

	wantKinds := []lexer.Kind{
		lexer.Keyword, lexer.Ident, lexer.Punct, lexer.Keyword,
		lexer.Ident, lexer.Punct, lexer.Ident, lexer.Punct, lexer.Punct,
	}
	wantLits := []string{"const", "answer", "=", "await", "$fn", "(", "_x1", ")", ";"}
	if diff := cmp.Diff(wantKinds, got); diff != "" {
		t.Fatalf("kind mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantLits, lits); diff != "" {
		t.Fatalf("literal mismatch (-want +got):\n%s", diff)
	}
}

func TestLex_MaximalMunchPunctuation(t *testing.T) {
	toks := lexKinds(t, "a === b ?? c => ...d ++e")

	var lits []string
	for _, tok := range toks {
		if tok.Kind == lexer.Punct {
			lits = append(lits, tok.Lit)
		}
	}
	want := []string{"===", "??", "=>", "...", "++"}
	if diff := cmp.Diff(want, lits); diff != "" {
		t.Fatalf("punct mismatch (-want +got):\n%s", diff)
	}
}

func TestLex_NumberForms(t *testing.T) {
	cases := map[string]string{
		"42":     "42",
		"3.25":   "3.25",
		".5":     ".5",
		"1e5":    "1e5",
		"2.5E-3": "2.5E-3",
	}
	for src, want := range cases {
		toks := lexKinds(t, src)
		require.Len(t, toks, 1, "source %q", src)
		assert.Equal(t, lexer.Number, toks[0].Kind, "source %q", src)
		assert.Equal(t, want, toks[0].Raw, "source %q", src)
	}
}

func TestLex_MalformedNumber(t *testing.T) {
	_, err := lexer.Lex("1e")
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Contains(t, lexErr.Msg, "malformed number")
}

func TestLex_StringEscapes(t *testing.T) {
	toks := lexKinds(t, `'a\n\t\\\'' "bA"`)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\n\t\\'", toks[0].Lit)
	assert.Equal(t, "bA", toks[1].Lit)
}

func TestLex_StringFaults(t *testing.T) {
	for _, src := range []string{
		`'open`,
		"'line\nbreak'",
		`'bad \q escape'`,
		`'trunc \u00'`,
	} {
		_, err := lexer.Lex(src)
		var lexErr *lexer.Error
		require.ErrorAs(t, err, &lexErr, "source %q", src)
	}
}

func TestLex_CommentsAreSkipped(t *testing.T) {
	toks := lexKinds(t, `
		// leading comment
		let x = 1; /* inline
		spanning */ x
	`)
	var lits []string
	for _, tok := range toks {
		lits = append(lits, tok.Lit)
	}
	want := []string{"let", "x", "=", "1", ";", "x"}
	if diff := cmp.Diff(want, lits); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestLex_UnterminatedBlockComment(t *testing.T) {
	_, err := lexer.Lex("let x /* never closed")
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Contains(t, lexErr.Msg, "unterminated block comment")
}

func TestLex_Positions(t *testing.T) {
	toks := lexKinds(t, "let a\nlet b")
	require.Len(t, toks, 4)
	assert.Equal(t, lexer.Position{Line: 1, Col: 1}, toks[0].Pos)
	assert.Equal(t, lexer.Position{Line: 1, Col: 5}, toks[1].Pos)
	assert.Equal(t, lexer.Position{Line: 2, Col: 1}, toks[2].Pos)
	assert.Equal(t, lexer.Position{Line: 2, Col: 5}, toks[3].Pos)
}

func TestLex_UnexpectedCharacter(t *testing.T) {
	_, err := lexer.Lex("let a = @b")
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
	assert.Equal(t, lexer.Position{Line: 1, Col: 9}, lexErr.Pos)
}
