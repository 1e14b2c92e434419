package diag

import (
	"errors"
	"strings"
	"testing"

	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/token"
	"github.com/google/go-cmp/cmp"
)

func TestFormat(t *testing.T) {
	cfg := config.NewConfig()
	c := NewCollector(cfg)
	idx := c.AddFile("x.castro", []rune("var a;\nmacro m() {\n    q = 1;\n}\n"))
	c.Errorf(token.Token{FileIndex: idx, Line: 3, Column: 5, Len: 1}, "unknown variable %s", "q")
	c.Warn(config.WarnBounds, token.Token{FileIndex: idx, Line: 1, Column: 5, Len: 1}, "index %d is outside", 3)

	var sb strings.Builder
	c.Print(&sb)
	want := "x.castro:3:5: error: unknown variable q\n" +
		"      q = 1;\n" +
		"      ^\n" +
		"x.castro:1:5: warning: index 3 is outside [-Wbounds]\n" +
		"  var a;\n" +
		"      ^\n"
	if diff := cmp.Diff(want, sb.String()); diff != "" {
		t.Errorf("format mismatch (-want +got):\n%s", diff)
	}
	if c.ErrorCount() != 1 || c.WarningCount() != 1 {
		t.Errorf("counts: %d errors, %d warnings", c.ErrorCount(), c.WarningCount())
	}
}

func TestCaretSpan(t *testing.T) {
	c := NewCollector(nil)
	idx := c.AddFile("y.castro", []rune("sizeof(k)"))
	got := c.Format(Diagnostic{Severity: SevError, Tok: token.Token{FileIndex: idx, Line: 1, Column: 1, Len: 6}, Message: "m"})
	if !strings.HasSuffix(got, "  ^~~~~~\n") {
		t.Errorf("unexpected caret line in %q", got)
	}
}

func TestUnknownLocation(t *testing.T) {
	c := NewCollector(nil)
	c.Errorf(token.Token{FileIndex: -1, Line: 0}, "oops")
	if diff := cmp.Diff("unknown:0:0: error: oops\n", c.Format(c.Diagnostics()[0])); diff != "" {
		t.Errorf("format mismatch (-want +got):\n%s", diff)
	}
}

func TestDisabledWarning(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnReserve, false)
	c := NewCollector(cfg)
	c.Warn(config.WarnReserve, token.Token{}, "ignored")
	if c.WarningCount() != 0 || len(c.Diagnostics()) != 0 {
		t.Errorf("disabled warning was recorded: %v", c.Messages())
	}
}

func TestColor(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Color = true
	c := NewCollector(cfg)
	c.Errorf(token.Token{FileIndex: -1}, "bad")
	if got := c.Format(c.Diagnostics()[0]); !strings.Contains(got, "\033[31merror:\033[0m") {
		t.Errorf("expected a colored severity, got %q", got)
	}
}

func TestRecover(t *testing.T) {
	run := func(fn func()) (err error) {
		defer Recover(&err)
		fn()
		return nil
	}
	err := run(func() { Internal("table has %d leftovers", 2) })
	var ie *InternalError
	if !errors.As(err, &ie) || ie.Msg != "table has 2 leftovers" {
		t.Errorf("unexpected error %v", err)
	}
	if err.Error() != "internal error: table has 2 leftovers" {
		t.Errorf("unexpected text %q", err.Error())
	}

	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("foreign panic was not propagated, got %v", r)
		}
	}()
	_ = run(func() { panic("boom") })
}
