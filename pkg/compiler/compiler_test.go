package compiler

import (
	"strings"
	"testing"

	"github.com/errael/castro/pkg/config"
	"github.com/google/go-cmp/cmp"
)

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source
		want    []string
	}{
		{
			"folded constant",
			[]Source{{"a.castro", "var a; macro m() { a = 3 - 1; }"}},
			[]string{`~M 1 "=a 2"`},
		},
		{
			"five statements",
			[]Source{{"b.castro", "macro m() { a = 1; b = 2; c = 3; d = 4; e = 5; }"}},
			[]string{`~M 1 "Do3 =a 1 =b 2 =c 3 Do =d 4 =e 5"`},
		},
		{
			"several files",
			[]Source{
				{"defs.castro", "const N = 3; var tab[N];"},
				{"main.castro", "macro fill() { tab[0] = N; tab[N - 1] = sizeof(tab); }"},
			},
			[]string{`~M 1 "Do =27 3 =29 3"`},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, got, err := Compile(config.NewConfig(), tc.sources...)
			if err != nil {
				t.Fatalf("unexpected internal error: %v", err)
			}
			if u.Diag.HasErrors() {
				t.Fatalf("unexpected errors: %v", u.Diag.Messages())
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorsSuppressOutput(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		stage Stage
	}{
		{"parse error", "var ;", StageParsed},
		{"declare error", "var v[0]; macro m() { v = 1; }", StageResolved},
		{"generate error", "var v; macro f(x, y) { } macro m() { v = f(1, f(2, 3)); }", StageGenerated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, got, err := Compile(config.NewConfig(), Source{"e.castro", tc.src})
			if err != nil {
				t.Fatalf("unexpected internal error: %v", err)
			}
			if !u.Diag.HasErrors() {
				t.Fatalf("expected errors")
			}
			if got != nil {
				t.Errorf("expected no output, got %q", got)
			}
			if u.Stage() != tc.stage {
				t.Errorf("expected to stop at %s, got %s", tc.stage, u.Stage())
			}
		})
	}
}

func TestRunTwice(t *testing.T) {
	u := NewUnit(config.NewConfig())
	u.AddSource(Source{"x.castro", "macro m() { a = 1; }"})
	if _, err := u.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := u.Run(); err == nil {
		t.Errorf("second run: expected an internal error")
	}
}

func TestIndependentUnits(t *testing.T) {
	src := Source{"i.castro", "var x, y; macro m() { x = y + 1; }"}
	_, first, _ := Compile(config.NewConfig(), src)
	_, second, _ := Compile(config.NewConfig(), src)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("units influenced each other (-first +second):\n%s", diff)
	}
}

func TestIncomplete(t *testing.T) {
	u, _, _ := Compile(config.NewConfig(), Source{"r.castro", "macro m() { a = 1;"})
	if !u.Incomplete() {
		t.Errorf("expected the unit to be incomplete, errors %v", u.Diag.Messages())
	}
	u, _, _ = Compile(config.NewConfig(), Source{"r.castro", "macro m() { a = 1; ) }"})
	if u.Incomplete() {
		t.Errorf("a syntax error is not an incomplete input")
	}
}

func TestWriteMap(t *testing.T) {
	u, _, err := Compile(config.NewConfig(), Source{"m.castro", "var one; var arr[3] @ 30; macro go() { } switch sw { -zi; }"})
	if err != nil || u.Diag.HasErrors() {
		t.Fatalf("compile: %v %v", err, u.Diag.Messages())
	}
	var sb strings.Builder
	if err := u.WriteMap(&sb); err != nil {
		t.Fatal(err)
	}
	want := "# memory\n" +
		"    27    1 one\n" +
		"    30    3 arr\n" +
		"# macro\n" +
		"     1    1 go\n" +
		"# switch\n" +
		"     1    1 sw\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}
}

func TestShiftOverflow(t *testing.T) {
	for _, src := range []string{
		"var v; macro m() { v = 1 << 40; }",
		"var t[1 << 40];",
	} {
		t.Run(src, func(t *testing.T) {
			u, got, err := Compile(config.NewConfig(), Source{"s.castro", src})
			if err != nil {
				t.Fatalf("unexpected internal error: %v", err)
			}
			msgs := strings.Join(u.Diag.Messages(), "\n")
			if !strings.Contains(msgs, "constant overflow") || strings.Contains(msgs, "must be a constant") {
				t.Errorf("expected an overflow error, got %v", u.Diag.Messages())
			}
			if got != nil {
				t.Errorf("expected no output, got %q", got)
			}
		})
	}
}
