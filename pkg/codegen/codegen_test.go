package codegen

import (
	"strings"
	"testing"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/checker"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/lexer"
	"github.com/errael/castro/pkg/parser"
	"github.com/errael/castro/pkg/token"
	"github.com/google/go-cmp/cmp"
)

func generate(t *testing.T, cfg *config.Config, src string) ([]string, *diag.Collector) {
	t.Helper()
	d := diag.NewCollector(cfg)
	toks := lexer.NewLexer([]rune(src), 0, d).Tokenize()
	prog := parser.NewParser(toks, []rune(src), d).Parse()
	c := checker.New(cfg, d)
	c.Declare(prog)
	c.Finalize()
	c.Resolve(prog)
	if d.HasErrors() {
		t.Fatalf("%s: %v", src, d.Messages())
	}
	return NewContext(cfg, c, d).Generate(prog), d
}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			"five statement block",
			"var v; macro m() { v = 1; v = 2; v = 3; v = 4; v = 5; }",
			[]string{`~M 1 "Do3 =27 1 =27 2 =27 3 Do =27 4 =27 5"`},
		},
		{
			"folded assignment",
			"var a; macro m() { a = 3 - 1; }",
			[]string{`~M 1 "=a 2"`},
		},
		{
			"short circuit",
			"macro side() { } macro other() { } var v; macro m() { v = side() && 0 && other(); }",
			[]string{`~M 3 "0"`, `~M 2 "0"`, `~M 1 "=27 If Macro 3 0"`},
		},
		{
			"initializers",
			"var t[3] = {1, 2, 3}; var k = addr(t) + 1;",
			[]string{`~1 "Do2 =28 1 =29 2 =30 3"`, `~1 "=27 29"`},
		},
		{
			"macro parameters",
			"var v; macro f(x, y) { v = x + y; } macro m() { f(1, 2); }",
			[]string{`~M 1 "=29 Add @27 @28"`, `~M 2 "Do2 =27 1 =28 2 Macro 1"`},
		},
		{
			"for loop",
			"var i, s; macro m() { for (i = 0; i < 10; i++) s += i; }",
			[]string{`~M 1 "For =27 0 Lt @27 10 ++27 +=28 @27"`},
		},
		{
			"empty for parts",
			"var i; macro m() { for (;;) i--; }",
			[]string{`~M 1 "For 0 1 0 --27"`},
		},
		{
			"postfix value",
			"var s; macro m() { s = c++; }",
			[]string{`~M 1 "=27 Dec ++c"`},
		},
		{
			"control flow",
			"var x; macro m() { if (x) x = 0; else x = 1; while (x < 3) ++x; do x -= 2; while (x); repeat (4) x *= 2; }",
			[]string{`~M 1 "Do3 IfElse @27 =27 0 =27 1 While Lt @27 3 ++27 DoWhile -=27 2 @27 Repeat 4 *=27 2"`},
		},
		{
			"indexing",
			"var arr[4], i; macro m() { arr[2] = 1; arr[i] = 2; arr[i] += 3; }",
			[]string{`~M 1 "Do2 =29 1 Assign Add 27 @31 2 Assign Add 27 @31 Add Var Add 27 @31 3"`},
		},
		{
			"indirection",
			"var p; macro m() { *p = *40 + 1; }",
			[]string{`~M 1 "Assign @27 Inc @40"`},
		},
		{
			"logical or",
			"var x, y; macro m() { x = x || y; }",
			[]string{`~M 1 "=27 IfElse @27 1 Neq @28 0"`},
		},
		{
			"ternary and builtins",
			"var x; macro m() { x = x > 2 ? Abs(x) : Min(x, 7); }",
			[]string{`~M 1 "=27 IfElse Gt @27 2 Abs @27 Min @27 7"`},
		},
		{
			"switch quoting",
			`switch s { -YYT "hi" ; -Xn ; }`,
			[]string{`-M0 1 '-YYT "hi" -Xn'`},
		},
		{
			"run and copy",
			"macro m() { } run { -zi 1 { m(); } ; -Xn ; } copy {\n-YQ 0\n-zv 5\n}",
			[]string{`-zi 1 "Macro 1"`, `-Xn`, `-YQ 0`, `-zv 5`},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := generate(t, config.NewConfig(), tc.src)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	src := "var v, w; macro m() { v = w + 5; }"
	on, _ := generate(t, config.NewConfig(), src)
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatOptimize, false)
	off, _ := generate(t, cfg, src)
	if diff := cmp.Diff(off, on); diff != "" {
		t.Errorf("optimized and plain output differ (-plain +optimized):\n%s", diff)
	}
	if on[0] != `~M 1 "=27 Add @28 5"` {
		t.Errorf("expected Add @28 5, got %q", on[0])
	}
}

func TestFeatures(t *testing.T) {
	src := "var s; macro m() { s = a + b - b + 1; s++; }"
	tests := []struct {
		name string
		set  func(*config.Config)
		want string
	}{
		{"default", func(*config.Config) {}, `~M 1 "Do =27 Inc Sub Add @a @b @b ++27"`},
		{"no letters", func(c *config.Config) { c.SetFeature(config.FeatLetters, false) },
			`~M 1 "Do =27 Inc Sub Add @1 @2 @2 ++27"`},
		{"no incdec", func(c *config.Config) { c.SetFeature(config.FeatIncDec, false) },
			`~M 1 "Do =27 Add Sub Add @a @b @b 1 +=27 1"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewConfig()
			tc.set(cfg)
			got, _ := generate(t, cfg, src)
			if diff := cmp.Diff([]string{tc.want}, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"quote", "switch s { -YYT \"it's `x`\" ; }", "cannot quote output"},
		{"nested call", "var v; macro f(x, y) { } macro m() { v = f(1, f(2, 3)); }", "call to f nested inside another call to f"},
		{"side effect address", "var arr[4], i; macro m() { arr[i++] *= 2; }", "address expression with side effects cannot be updated in place"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, d := generate(t, config.NewConfig(), tc.src)
			if !strings.Contains(strings.Join(d.Messages(), "\n"), tc.want) {
				t.Errorf("expected %q, got %v", tc.want, d.Messages())
			}
		})
	}
}

func TestSingleParamNesting(t *testing.T) {
	_, d := generate(t, config.NewConfig(), "var v; macro g(x) { v = x; } macro m() { g(g(1)); }")
	if d.HasErrors() {
		t.Errorf("single parameter macros may nest, got %v", d.Messages())
	}
}

func TestWarnings(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"var arr[2]; macro m() { arr[5] = 1; }", "index 5 is outside arr[2]"},
		{"layout memory { reserve 1:3; } macro m() { b = 1; }", "assignment to b in reserve area"},
		{"layout memory { reserve 100:110; } var v @ 105; macro m() { v = 1; }", "v assigned to reserve area"},
		{"var p; macro m() { p = *5000; }", "address 5000 is outside memory 1..1000"},
		{"macro m() { *(-1) = 1; }", "address -1 is outside memory 1..1000"},
		{"macro m() { *0 += 2; }", "address 0 is outside memory 1..1000"},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			_, d := generate(t, config.NewConfig(), tc.src)
			if d.WarningCount() != 1 || !strings.Contains(d.Messages()[0], tc.want) {
				t.Errorf("expected one warning %q, got %v", tc.want, d.Messages())
			}
		})
	}
}

func TestFragmentAccounting(t *testing.T) {
	cfg := config.NewConfig()
	d := diag.NewCollector(cfg)
	ctx := NewContext(cfg, checker.New(cfg, d), d)
	n := ast.NewNumber(token.Token{}, 1)

	twice := func() (err error) {
		defer diag.Recover(&err)
		ctx.put(n, "1")
		ctx.put(n, "1")
		return nil
	}
	if twice() == nil {
		t.Errorf("producing a fragment twice: expected an internal error")
	}

	leftover := func() (err error) {
		defer diag.Recover(&err)
		ctx.drained(n)
		return nil
	}
	if leftover() == nil {
		t.Errorf("leftover fragment: expected an internal error")
	}
}

func TestCopyLines(t *testing.T) {
	got := copyLines("\n  -YQ 0\n\n-zv 5\n  ")
	if diff := cmp.Diff([]string{"  -YQ 0", "", "-zv 5"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}
