// Package diag collects user-facing compiler diagnostics and renders them with
// the offending source line and a caret. Internal faults are panics of type
// InternalError; they mark compiler defects rather than bad input.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/token"
)

type Severity int

const (
	SevError Severity = iota
	SevWarning
)

// SourceFile tracks the name and content of a single source file.
type SourceFile struct {
	Name    string
	Content []rune
}

type Diagnostic struct {
	Severity Severity
	Tok      token.Token
	Message  string
	Warning  string // -W name for warnings
}

// Collector accumulates diagnostics so that one run reports every problem it
// can find. It is owned by a single compilation unit.
type Collector struct {
	cfg      *config.Config
	files    []SourceFile
	diags    []Diagnostic
	errors   int
	warnings int
	Color    bool
}

func NewCollector(cfg *config.Config) *Collector {
	return &Collector{cfg: cfg, Color: cfg != nil && cfg.Color}
}

// AddFile registers source text and returns the index tokens use to refer to it.
func (c *Collector) AddFile(name string, content []rune) int {
	c.files = append(c.files, SourceFile{Name: name, Content: content})
	return len(c.files) - 1
}

func (c *Collector) Files() []SourceFile { return c.files }

func (c *Collector) Errorf(tok token.Token, format string, args ...interface{}) {
	c.diags = append(c.diags, Diagnostic{Severity: SevError, Tok: tok, Message: fmt.Sprintf(format, args...)})
	c.errors++
}

// Warn records a warning if it is enabled in the configuration.
func (c *Collector) Warn(wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if c.cfg != nil && !c.cfg.IsWarningEnabled(wt) {
		return
	}
	name := ""
	if c.cfg != nil {
		name = c.cfg.Warnings[wt].Name
	}
	c.diags = append(c.diags, Diagnostic{Severity: SevWarning, Tok: tok, Message: fmt.Sprintf(format, args...), Warning: name})
	c.warnings++
}

func (c *Collector) ErrorCount() int   { return c.errors }
func (c *Collector) WarningCount() int { return c.warnings }
func (c *Collector) HasErrors() bool   { return c.errors > 0 }

func (c *Collector) Diagnostics() []Diagnostic { return c.diags }

// Messages returns the bare text of every diagnostic, in report order.
func (c *Collector) Messages() []string {
	out := make([]string, len(c.diags))
	for i, d := range c.diags {
		out[i] = d.Message
	}
	return out
}

// Print writes all diagnostics in the order they were recorded.
func (c *Collector) Print(w io.Writer) {
	for _, d := range c.diags {
		io.WriteString(w, c.Format(d))
	}
}

func (c *Collector) Format(d Diagnostic) string {
	var sb strings.Builder
	name, line, col := c.location(d.Tok)
	fmt.Fprintf(&sb, "%s:%d:%d: ", name, line, col)
	switch d.Severity {
	case SevError:
		sb.WriteString(c.paint("31", "error:"))
	case SevWarning:
		sb.WriteString(c.paint("33", "warning:"))
	}
	sb.WriteByte(' ')
	sb.WriteString(d.Message)
	if d.Warning != "" {
		fmt.Fprintf(&sb, " [-W%s]", d.Warning)
	}
	sb.WriteByte('\n')
	c.writeSourceLine(&sb, d.Tok)
	return sb.String()
}

func (c *Collector) paint(code, s string) string {
	if !c.Color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (c *Collector) location(tok token.Token) (string, int, int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(c.files) {
		return "unknown", tok.Line, tok.Column
	}
	return c.files[tok.FileIndex].Name, tok.Line, tok.Column
}

func (c *Collector) writeSourceLine(sb *strings.Builder, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(c.files) || tok.Line == 0 {
		return
	}
	content := c.files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}
	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(sb, "  %s\n", string(content[lineStart:lineEnd]))
	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(sb, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), c.paint("32", caret))
}

// InternalError is a compiler defect: state that correct code can never reach.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.Msg }

// Internal aborts the current compilation with an InternalError.
func Internal(format string, args ...interface{}) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}

// Recover turns an InternalError panic into *err. Other panics propagate.
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*err = ie
		return
	}
	panic(r)
}
