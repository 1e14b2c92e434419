package checker

import (
	"strings"
	"testing"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/lexer"
	"github.com/errael/castro/pkg/parser"
	"github.com/errael/castro/pkg/token"
	"github.com/google/go-cmp/cmp"
)

func check(t *testing.T, src string) (*Checker, *ast.Node, *diag.Collector) {
	t.Helper()
	cfg := config.NewConfig()
	d := diag.NewCollector(cfg)
	toks := lexer.NewLexer([]rune(src), 0, d).Tokenize()
	prog := parser.NewParser(toks, []rune(src), d).Parse()
	if d.HasErrors() {
		t.Fatalf("parse: %v", d.Messages())
	}
	c := New(cfg, d)
	c.Declare(prog)
	c.Finalize()
	c.Resolve(prog)
	return c, prog, d
}

// messages strips positions so tests compare only the text.
func messages(d *diag.Collector) []string {
	var out []string
	for _, dg := range d.Diagnostics() {
		out = append(out, dg.Message)
	}
	return out
}

func TestDeclareAndAllocate(t *testing.T) {
	c, _, d := check(t, `
		var x;
		var y @ 100;
		var arr[] = {1, 2, 3};
		var s[N];
		const N = 4;
		macro m() { x = 1; }
		switch sw { -zi; }
	`)
	if d.HasErrors() {
		t.Fatalf("unexpected errors: %v", d.Messages())
	}
	// unplaced symbols are allocated in name order
	want := map[string][2]int{"arr": {27, 3}, "s": {30, 4}, "x": {34, 1}, "y": {100, 1}}
	for name, w := range want {
		sym := c.Mem.Lookup(name)
		if sym == nil {
			t.Fatalf("%s: not declared", name)
		}
		if sym.Addr != w[0] || sym.Size != w[1] {
			t.Errorf("%s: expected addr %d size %d, got addr %d size %d", name, w[0], w[1], sym.Addr, sym.Size)
		}
	}
	if m := c.Macro("m"); m == nil || m.Sym.Addr != 1 {
		t.Errorf("macro m: expected slot 1, got %v", m)
	}
	if sw := c.Switch("sw"); sw == nil || sw.Addr != 1 {
		t.Errorf("switch sw: expected slot 1, got %v", sw)
	}
}

func TestDeclareErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"builtin", "var a[2];", "a is a builtin register"},
		{"duplicate", "var v; var v;", "v already declared in memory space"},
		{"overlap", "var v @ 30; var w[4] @ 28;", "w at 28 overlaps v at 30"},
		{"out of range", "var w[2] @ 1000;", "w at 1000 (size 2) is outside memory space 1..1000"},
		{"zero size", "var v[0];", "invalid size 0 for v"},
		{"init count", "var v[2] = {1, 2, 3};", "v has size 2 but 3 initializers"},
		{"size not constant", "var n; var v[n];", "size of v must be a constant"},
		{"const cycle", "const A = B + 1; const B = A;", "constant A is defined in terms of itself"},
		{"const duplicate", "const A = 1; const A = 2;", "constant A already declared"},
		{"var shadows const", "const A = 1; var A;", "A already declared as a constant"},
		{"late layout", "var v; layout memory { base 100; }", "layout for memory space must come before its declarations"},
		{"bad base", "layout memory { base 0; }", "memory space: base 0 is outside 1..1000"},
		{"unknown function", "macro m() { f(); }", "unknown function f"},
		{"arity", "macro m(p, q) { } macro n() { m(1); }", "m expects 2 argument(s), got 1"},
		{"builtin macro", "macro Abs() { }", "macro Abs conflicts with a builtin function"},
		{"macro and switch", "macro m() { } switch m { -zi; }", "m already declared"},
		{"duplicate param", "macro m(p, p) { }", "duplicate parameter p"},
		{"param hides const", "const P = 1; macro m(P) { }", "parameter P hides a constant"},
		{"addr of expression", "var v; macro m() { v = addr(v + 1); }", "argument of addr must be a name"},
		{"no room", "layout memory { limit 27; } var v[2];", "no room in memory space for v (size 2)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, d := check(t, tc.src)
			got := messages(d)
			found := false
			for _, m := range got {
				found = found || m == tc.want
			}
			if !found {
				t.Errorf("expected %q among %q", tc.want, got)
			}
		})
	}
}

func TestUnknownReportedOnce(t *testing.T) {
	c, _, d := check(t, "macro m() { q = 1; q = q + 2; r = 3; }")
	want := []string{"unknown variable q", "unknown variable r"}
	if diff := cmp.Diff(want, messages(d)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if sym := c.Mem.Lookup("q"); sym == nil || sym.Allocated() {
		t.Errorf("q: expected an unplaced stand-in symbol, got %v", sym)
	}
}

func TestUnknownFunctionEveryCall(t *testing.T) {
	_, _, d := check(t, "macro m() { f(); f(); }")
	if d.ErrorCount() != 2 {
		t.Errorf("expected an error per call site, got %v", d.Messages())
	}
}

func TestParamBinding(t *testing.T) {
	c, prog, d := check(t, "var p; macro m(p) { p = 1; } macro n() { p = 2; }")
	if d.HasErrors() {
		t.Fatalf("unexpected errors: %v", d.Messages())
	}
	var got []string
	ast.Walk(prog, func(n *ast.Node) bool {
		if n.Type == ast.Ident && n.Parent.Type != ast.MacroDecl {
			got = append(got, c.Binding(n).Name)
		}
		return true
	})
	if diff := cmp.Diff([]string{"m.p", "p"}, got); diff != "" {
		t.Errorf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestAddrFoldsAfterFinalize(t *testing.T) {
	c, prog, _ := check(t, "var v @ 40; var w[3]; macro m() { v = addr(v) + 2; v = sizeof(w); }")
	var vals []int64
	ast.Walk(prog, func(n *ast.Node) bool {
		if n.Type == ast.Assign {
			v, ok := c.Folder.Int(n.Data.(ast.AssignNode).Rhs)
			if !ok {
				t.Errorf("expected a constant right-hand side")
			}
			vals = append(vals, v)
		}
		return true
	})
	if diff := cmp.Diff([]int64{42, 3}, vals); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"const K = 1; macro m() { K = 2; }", "cannot assign to constant K"},
		{"const K = 1; macro m() { K++; }", "cannot assign to constant K"},
		{"const K = 1; var v; macro m() { v = addr(K); }", "addr of constant K"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			_, _, d := check(t, tc.src)
			if !strings.Contains(strings.Join(messages(d), "\n"), tc.want) {
				t.Errorf("expected %q, got %q", tc.want, messages(d))
			}
		})
	}
}

func TestReserveWarning(t *testing.T) {
	c, _, d := check(t, "layout memory { reserve 100:110; } var v @ 105; var w;")
	if d.HasErrors() {
		t.Fatalf("unexpected errors: %v", d.Messages())
	}
	if diff := cmp.Diff([]string{"v assigned to reserve area"}, messages(d)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if w := c.Mem.Lookup("w"); w.Addr != 27 {
		t.Errorf("w: expected 27, got %d", w.Addr)
	}
}

func TestUnusedWarning(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnused, true)
	d := diag.NewCollector(cfg)
	src := "var used, idle; macro m() { used = 1; }"
	toks := lexer.NewLexer([]rune(src), 0, d).Tokenize()
	prog := parser.NewParser(toks, []rune(src), d).Parse()
	c := New(cfg, d)
	c.Declare(prog)
	c.Finalize()
	c.Resolve(prog)
	if diff := cmp.Diff([]string{"variable idle is never used"}, messages(d)); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveBeforeFinalize(t *testing.T) {
	cfg := config.NewConfig()
	c := New(cfg, diag.NewCollector(cfg))
	err := func() (err error) {
		defer diag.Recover(&err)
		c.Resolve(ast.NewProgram(token.Token{}, nil))
		return nil
	}()
	if err == nil {
		t.Errorf("expected an internal error")
	}
}
