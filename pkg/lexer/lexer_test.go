package lexer

import (
	"strings"
	"testing"

	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/token"
	"github.com/google/go-cmp/cmp"
)

type lexeme struct {
	Type  token.Type
	Value string
}

func lex(src string) ([]token.Token, *diag.Collector) {
	d := diag.NewCollector(nil)
	return NewLexer([]rune(src), 0, d).Tokenize(), d
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []lexeme
	}{
		{
			"declaration",
			"var x[2] @ 0x10;",
			[]lexeme{
				{token.Var, "var"}, {token.Ident, "x"}, {token.LBracket, ""}, {token.Number, "2"},
				{token.RBracket, ""}, {token.At, ""}, {token.Number, "16"}, {token.Semi, ""}, {token.EOF, ""},
			},
		},
		{
			"operators",
			"x += 1; y++ <<= a && b || !c != d",
			[]lexeme{
				{token.Ident, "x"}, {token.PlusEq, ""}, {token.Number, "1"}, {token.Semi, ""},
				{token.Ident, "y"}, {token.Inc, ""}, {token.ShlEq, ""}, {token.Ident, "a"},
				{token.AndAnd, ""}, {token.Ident, "b"}, {token.OrOr, ""}, {token.Not, ""},
				{token.Ident, "c"}, {token.Neq, ""}, {token.Ident, "d"}, {token.EOF, ""},
			},
		},
		{
			"comments",
			"a // line\n/* block\n comment */ b",
			[]lexeme{{token.Ident, "a"}, {token.Ident, "b"}, {token.EOF, ""}},
		},
		{
			"string and other",
			`-YYT "hi" $`,
			[]lexeme{
				{token.Minus, ""}, {token.Ident, "YYT"}, {token.String, "hi"}, {token.Other, "$"}, {token.EOF, ""},
			},
		},
		{
			"copy block",
			"copy { -x {1} }",
			[]lexeme{{token.Copy, "copy"}, {token.RawText, " -x {1} "}, {token.EOF, ""}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			toks, d := lex(tc.src)
			if d.HasErrors() {
				t.Fatalf("unexpected errors: %v", d.Messages())
			}
			got := make([]lexeme, len(toks))
			for i, tok := range toks {
				got[i] = lexeme{tok.Type, tok.Value}
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPositions(t *testing.T) {
	toks, _ := lex("a\n  bb = 1")
	bb := toks[1]
	if bb.Line != 2 || bb.Column != 3 || bb.Len != 2 || bb.Pos != 4 {
		t.Errorf("bb at line %d col %d len %d pos %d, want 2 3 2 4", bb.Line, bb.Column, bb.Len, bb.Pos)
	}
}

func TestLexErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"abc`, "unterminated string literal"},
		{"/* x", "unterminated block comment"},
		{"99999999999999999999", "invalid number literal"},
		{"copy { -x", "unterminated copy block"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			toks, d := lex(tc.src)
			if !strings.Contains(strings.Join(d.Messages(), "\n"), tc.want) {
				t.Errorf("expected %q, got %v", tc.want, d.Messages())
			}
			if toks[len(toks)-1].Type != token.EOF {
				t.Errorf("token stream does not end in EOF")
			}
		})
	}
}
