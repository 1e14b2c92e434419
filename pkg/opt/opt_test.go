package opt

import (
	"fmt"
	"testing"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/fold"
	"github.com/errael/castro/pkg/lexer"
	"github.com/errael/castro/pkg/parser"
	"github.com/google/go-cmp/cmp"
)

type constEnv map[string]int64

func (e constEnv) IdentValue(n *ast.Node) (fold.Result, bool) {
	v, ok := e[n.Data.(ast.IdentNode).Name]
	return fold.Value(v), ok
}
func (e constEnv) CallValue(n *ast.Node) fold.Result { return fold.NotConstant(n) }
func (e constEnv) Finalized() bool                   { return true }

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	d := diag.NewCollector(config.NewConfig())
	toks := lexer.NewLexer([]rune(src), 0, d).Tokenize()
	n, ok := parser.NewParser(toks, []rune(src), d).ParseExpr()
	if !ok {
		t.Fatalf("parse %q: %v", src, d.Messages())
	}
	return n
}

// recorder renders identifiers as their name and calls as name(), and
// remembers which operands were generated.
type recorder struct {
	generated []string
}

func (r *recorder) gen(n *ast.Node) string {
	var s string
	switch d := n.Data.(type) {
	case ast.IdentNode:
		s = d.Name
	case ast.CallNode:
		s = d.Name + "()"
	case ast.BinaryNode:
		s = fmt.Sprintf("<%s>", n.Tok.Type)
	default:
		s = "?"
	}
	r.generated = append(r.generated, s)
	return s
}

func emit(t *testing.T, src string, incdec bool) (string, *recorder) {
	t.Helper()
	n := parse(t, src)
	folder := fold.New(constEnv{"K": 4, "ONE": 1}, 32, diag.NewCollector(config.NewConfig()))
	o := New(folder, incdec)
	o.Check(n)
	st := o.State(n)
	if st == nil {
		t.Fatalf("%s: expected a chain root", src)
	}
	rec := &recorder{}
	text, ok := o.Emit(st, rec.gen)
	if !ok {
		t.Fatalf("%s: emit failed", src)
	}
	return text, rec
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"a - b + c - d", []string{"+a", "-b", "+c", "-d"}},
		{"a - (b - c)", []string{"+a", "-b", "+c"}},
		{"-(a + b)", []string{"-a", "-b"}},
		{"a - -b", []string{"+a", "+b"}},
		{"a + b * c", []string{"+a", "+*"}},
		{"(a && b) && (c && d)", []string{"+a", "+b", "+c", "+d"}},
		{"a || b && c", []string{"+a", "+&&"}},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			n := parse(t, tc.src)
			o := New(nil, true)
			o.Check(n)
			st := o.State(n)
			var got []string
			for _, op := range st.Operands {
				sign := "+"
				if op.Neg {
					sign = "-"
				}
				name := ""
				if id, ok := op.Node.Data.(ast.IdentNode); ok {
					name = id.Name
				} else {
					name = op.Node.Tok.Type.String()
					name = name[1 : len(name)-1]
				}
				got = append(got, sign+name)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("%s: operands mismatch (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}

func TestRoots(t *testing.T) {
	n := parse(t, "(a + b) * (c - d + e)")
	o := New(nil, true)
	o.Check(n)
	mul := n.Data.(ast.BinaryNode)
	left := ast.Unparen(mul.Left)
	right := ast.Unparen(mul.Right)
	if o.State(n) != nil {
		t.Errorf("'*' node: expected no chain")
	}
	if !IsRoot(left) || !IsRoot(right) {
		t.Errorf("expected both parenthesized sums to be chain roots")
	}
	inner := right.Data.(ast.BinaryNode).Left
	if IsRoot(inner) || o.State(inner) != nil {
		t.Errorf("'c - d' inside a chain: expected not a root")
	}
}

func TestEmitPlusMinus(t *testing.T) {
	tests := []struct {
		src    string
		incdec bool
		want   string
	}{
		{"a + 5", true, "Add a 5"},
		{"a - b + c - d", true, "Sub Add Sub a b c d"},
		{"a + 3 - b - 3", true, "Sub a b"},
		{"a + 2 + K - 5", true, "Inc a"},
		{"a - ONE", true, "Dec a"},
		{"a - ONE", false, "Sub a 1"},
		{"a + b - 1", true, "Dec Add a b"},
		{"-a - 1", true, "Sub -1 a"},
		{"-a - b + 7", true, "Sub Sub 7 a b"},
		{"-a - b", true, "Sub Sub 0 a b"},
		{"-a", true, "Neg a"},
		{"-(a - 3)", true, "Sub 3 a"},
		{"-a + b + 9", true, "Add Add Neg a b 9"},
		{"a - 10", true, "Sub a 10"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			got, _ := emit(t, tc.src, tc.incdec)
			if got != tc.want {
				t.Errorf("%s: expected %q, got %q", tc.src, tc.want, got)
			}
		})
	}
}

func TestEmitOverflowFallsBack(t *testing.T) {
	tests := []struct {
		bits int
		src  string
		ok   bool
	}{
		{32, "a + 2147483647 + 1", false},
		{32, "a + 30000 + 30000", true},
		{16, "a + 30000 + 30000", false},
		{16, "a - 30000 - 30000", false},
		{16, "a + 30000 - 30000", true},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d/%s", tc.bits, tc.src), func(t *testing.T) {
			n := parse(t, tc.src)
			folder := fold.New(constEnv{}, tc.bits, diag.NewCollector(config.NewConfig()))
			o := New(folder, true)
			o.Check(n)
			if _, ok := o.Emit(o.State(n), (&recorder{}).gen); ok != tc.ok {
				t.Errorf("emit ok = %v, want %v", ok, tc.ok)
			}
		})
	}
}

func TestEmitLogical(t *testing.T) {
	tests := []struct {
		src       string
		want      string
		generated []string
	}{
		{"f() && 0 && g()", "If f() 0", []string{"f()"}},
		{"f() && 1 && g()", "If f() Neq g() 0", []string{"f()", "g()"}},
		{"0 && f()", "0", nil},
		{"a && b < c", "If a <'<'>", []string{"a", "<'<'>"}},
		{"a || b", "IfElse a 1 Neq b 0", []string{"a", "b"}},
		{"f() || K || g()", "IfElse f() 1 1", []string{"f()"}},
		{"0 || a || 0", "Neq a 0", []string{"a"}},
		{"a || b || c", "IfElse a 1 IfElse b 1 Neq c 0", []string{"a", "b", "c"}},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			got, rec := emit(t, tc.src, true)
			if got != tc.want {
				t.Errorf("%s: expected %q, got %q", tc.src, tc.want, got)
			}
			if diff := cmp.Diff(tc.generated, rec.generated); diff != "" {
				t.Errorf("%s: generated operands mismatch (-want +got):\n%s", tc.src, diff)
			}
		})
	}
}
