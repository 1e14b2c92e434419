package codegen

import (
	"strconv"
	"strings"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/astro"
	"github.com/errael/castro/pkg/checker"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/fold"
	"github.com/errael/castro/pkg/opt"
)

// Context holds the state of one generation run. Every node's text is put
// into frags by the node itself and taken exactly once by its parent.
type Context struct {
	cfg    *config.Config
	chk    *checker.Checker
	folder *fold.Folder
	opt    *opt.Optimizer
	diag   *diag.Collector

	optimize bool
	incdec   bool
	letters  bool

	frags     map[*ast.Node]string
	produced  int
	consumed  int
	openRoots map[string]*ast.Node
}

func NewContext(cfg *config.Config, chk *checker.Checker, d *diag.Collector) *Context {
	return &Context{
		cfg:       cfg,
		chk:       chk,
		folder:    chk.Folder,
		opt:       opt.New(chk.Folder, cfg.IsFeatureEnabled(config.FeatIncDec)),
		diag:      d,
		optimize:  cfg.IsFeatureEnabled(config.FeatOptimize),
		incdec:    cfg.IsFeatureEnabled(config.FeatIncDec),
		letters:   cfg.IsFeatureEnabled(config.FeatLetters),
		frags:     make(map[*ast.Node]string),
		openRoots: make(map[string]*ast.Node),
	}
}

func (ctx *Context) put(n *ast.Node, text string) {
	if _, dup := ctx.frags[n]; dup {
		diag.Internal("fragment for %s at line %d produced twice", n.Type, n.Tok.Line)
	}
	ctx.frags[n] = text
	ctx.produced++
}

func (ctx *Context) take(n *ast.Node) string {
	text, ok := ctx.frags[n]
	if !ok {
		diag.Internal("no fragment for %s at line %d", n.Type, n.Tok.Line)
	}
	delete(ctx.frags, n)
	ctx.consumed++
	return text
}

// drained checks that a top level construct consumed everything it produced.
func (ctx *Context) drained(n *ast.Node) {
	if len(ctx.frags) != 0 || ctx.produced != ctx.consumed {
		diag.Internal("%s at line %d: %d fragments produced, %d consumed, %d left",
			n.Type, n.Tok.Line, ctx.produced, ctx.consumed, len(ctx.frags))
	}
	ctx.produced, ctx.consumed = 0, 0
}

// Generate lowers every top level construct to output lines.
func (ctx *Context) Generate(prog *ast.Node) []string {
	ctx.opt.Check(prog)
	var out []string
	for _, decl := range prog.Data.(ast.ProgramNode).Decls {
		out = append(out, ctx.construct(decl)...)
		ctx.drained(decl)
	}
	return out
}

func (ctx *Context) construct(n *ast.Node) []string {
	switch d := n.Data.(type) {
	case ast.VarDeclNode:
		return ctx.varInit(n, d)
	case ast.MacroDeclNode:
		m := ctx.chk.Macro(d.Name)
		body := ctx.stmt(d.Body)
		if q, ok := ctx.quote(n, body); ok {
			return []string{"~M " + strconv.Itoa(m.Sym.Addr) + " " + q}
		}
	case ast.SwitchDeclNode:
		var cmds []string
		for _, cmd := range d.Cmds {
			cmds = append(cmds, ctx.command(cmd))
		}
		if q, ok := ctx.quote(n, strings.Join(cmds, " ")); ok {
			return []string{"-M0 " + strconv.Itoa(ctx.chk.Switch(d.Name).Addr) + " " + q}
		}
	case ast.RunNode:
		var lines []string
		for _, cmd := range d.Cmds {
			lines = append(lines, ctx.command(cmd))
		}
		return lines
	case ast.CopyNode:
		return copyLines(d.Text)
	case ast.ConstDeclNode, ast.LayoutNode:
	default:
		diag.Internal("unexpected top level %s", n.Type)
	}
	return nil
}

// varInit emits `~1` with one assignment per initializer, element by
// element from the variable's address.
func (ctx *Context) varInit(n *ast.Node, d ast.VarDeclNode) []string {
	if len(d.Init) == 0 {
		return nil
	}
	sym := ctx.chk.Mem.Lookup(d.Name)
	var stmts []string
	for i, init := range d.Init {
		stmts = append(stmts, "="+ctx.ref(sym.Addr+i)+" "+ctx.expr(init))
	}
	if q, ok := ctx.quote(n, astro.Chain(stmts)); ok {
		return []string{"~1 " + q}
	}
	return nil
}

// command renders one switch or run command: raw text is copied, and each
// expression block becomes a quoted expression.
func (ctx *Context) command(n *ast.Node) string {
	var parts []string
	for _, part := range n.Data.(ast.CommandNode).Parts {
		switch d := part.Data.(type) {
		case ast.RawCmdNode:
			parts = append(parts, d.Text)
		case ast.BlockNode:
			if q, ok := ctx.quote(part, ctx.stmt(part)); ok {
				parts = append(parts, q)
			}
		default:
			diag.Internal("unexpected command part %s", part.Type)
		}
	}
	return strings.Join(parts, " ")
}

func (ctx *Context) quote(n *ast.Node, text string) (string, bool) {
	q, ok := astro.Quote(text)
	if !ok {
		ctx.diag.Errorf(n.Tok, "cannot quote output: it contains every quote character (%s)", astro.Quotes)
	}
	return q, ok
}

// copyLines splits verbatim text into lines, dropping the blank first and
// last lines left by the braces.
func copyLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// --- statements ---

func (ctx *Context) stmt(n *ast.Node) string {
	ctx.genStmt(n)
	return ctx.take(n)
}

func (ctx *Context) genStmt(n *ast.Node) {
	switch d := n.Data.(type) {
	case ast.ExprStmtNode:
		ctx.put(n, ctx.expr(d.Expr))
	case ast.BlockNode:
		stmts := make([]string, 0, len(d.Stmts))
		for _, s := range d.Stmts {
			stmts = append(stmts, ctx.stmt(s))
		}
		ctx.put(n, astro.Chain(stmts))
	case ast.IfNode:
		cond := ctx.expr(d.Cond)
		then := ctx.stmt(d.Then)
		if d.Else == nil {
			ctx.put(n, join(astro.OpIf, cond, then))
			return
		}
		ctx.put(n, join(astro.OpIfElse, cond, then, ctx.stmt(d.Else)))
	case ast.WhileNode:
		cond := ctx.expr(d.Cond)
		ctx.put(n, join(astro.OpWhile, cond, ctx.stmt(d.Body)))
	case ast.DoWhileNode:
		body := ctx.stmt(d.Body)
		ctx.put(n, join(astro.OpDoWhile, body, ctx.expr(d.Cond)))
	case ast.ForNode:
		init := ctx.optExpr(d.Init, "0")
		cond := ctx.optExpr(d.Cond, "1")
		step := ctx.optExpr(d.Step, "0")
		ctx.put(n, join(astro.OpFor, init, cond, step, ctx.stmt(d.Body)))
	case ast.RepeatNode:
		count := ctx.expr(d.Count)
		ctx.put(n, join(astro.OpRepeat, count, ctx.stmt(d.Body)))
	default:
		diag.Internal("unexpected statement %s", n.Type)
	}
}

func (ctx *Context) optExpr(n *ast.Node, missing string) string {
	if n == nil {
		return missing
	}
	return ctx.expr(n)
}

func join(parts ...string) string {
	return strings.Join(parts, " ")
}
