package codegen

import (
	"strconv"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/astro"
	"github.com/errael/castro/pkg/checker"
	"github.com/errael/castro/pkg/config"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/fold"
	"github.com/errael/castro/pkg/memspace"
	"github.com/errael/castro/pkg/opt"
	"github.com/errael/castro/pkg/token"
)

// ref renders a memory address. The builtin registers 1..26 are written as
// their letter when the letters feature is on.
func (ctx *Context) ref(addr int) string {
	if ctx.letters && addr >= 1 && addr <= 26 {
		return string(rune('a' + addr - 1))
	}
	return strconv.Itoa(addr)
}

func (ctx *Context) expr(n *ast.Node) string {
	ctx.genExpr(n)
	return ctx.take(n)
}

func (ctx *Context) genExpr(n *ast.Node) {
	switch r := ctx.folder.Fold(n); r.Status {
	case fold.Const:
		ctx.put(n, strconv.FormatInt(r.Value, 10))
		return
	case fold.Overflow:
		ctx.put(n, "0")
		return
	}
	if ctx.optimize && opt.IsRoot(n) {
		if st := ctx.opt.State(n); st != nil {
			if text, ok := ctx.opt.Emit(st, ctx.expr); ok {
				ctx.put(n, text)
				return
			}
		}
	}

	switch d := n.Data.(type) {
	case ast.ParenNode:
		ctx.put(n, ctx.expr(d.Expr))
	case ast.IdentNode, ast.IndexNode, ast.DerefNode:
		ctx.put(n, ctx.lvalue(n).read())
	case ast.UnaryNode:
		ctx.genUnary(n, d)
	case ast.BinaryNode:
		ctx.genBinary(n, d)
	case ast.TernaryNode:
		cond := ctx.expr(d.Cond)
		then := ctx.expr(d.Then)
		ctx.put(n, join(astro.OpIfElse, cond, then, ctx.expr(d.Else)))
	case ast.AssignNode:
		ctx.genAssign(n, d)
	case ast.PrefixNode:
		ctx.put(n, ctx.step(ctx.lvalue(d.Expr), d.Op))
	case ast.PostfixNode:
		ctx.genPostfix(n, d)
	case ast.CallNode:
		ctx.genCall(n, d)
	default:
		diag.Internal("unexpected expression %s", n.Type)
	}
}

func (ctx *Context) genUnary(n *ast.Node, d ast.UnaryNode) {
	x := ctx.expr(d.Expr)
	switch d.Op {
	case token.Plus:
		ctx.put(n, x)
	case token.Minus:
		ctx.put(n, join(astro.OpNeg, x))
	case token.Complement:
		ctx.put(n, join(astro.OpInv, x))
	case token.Not:
		ctx.put(n, join(astro.OpNot, x))
	default:
		diag.Internal("unexpected unary %s", d.Op)
	}
}

func (ctx *Context) genBinary(n *ast.Node, d ast.BinaryNode) {
	switch d.Op {
	case token.AndAnd:
		l := ctx.expr(d.Left)
		r := ctx.expr(d.Right)
		ctx.put(n, join(astro.OpIf, l, opt.Bool(r, d.Right, ctx.folder)))
		return
	case token.OrOr:
		l := ctx.expr(d.Left)
		r := ctx.expr(d.Right)
		ctx.put(n, join(astro.OpIfElse, l, "1", opt.Bool(r, d.Right, ctx.folder)))
		return
	case token.Plus, token.Minus:
		if v, ok := ctx.folder.Int(d.Right); ok && v == 1 && ctx.incdec {
			op := astro.OpInc
			if d.Op == token.Minus {
				op = astro.OpDec
			}
			ctx.put(n, join(op, ctx.expr(d.Left)))
			return
		}
	}
	opcode, ok := astro.BinaryOps[d.Op]
	if !ok {
		diag.Internal("unexpected binary %s", d.Op)
	}
	l := ctx.expr(d.Left)
	ctx.put(n, join(opcode, l, ctx.expr(d.Right)))
}

// lvalue is a generated storage location: a fixed address, or an address
// computed at run time.
type lvalue struct {
	ctx    *Context
	node   *ast.Node
	sym    *memspace.Symbol
	direct bool
	addr   int
	expr   string    // computed address
	source *ast.Node // node the computed address came from
}

func (lv lvalue) read() string {
	if lv.direct {
		return "@" + lv.ctx.ref(lv.addr)
	}
	return join(astro.OpVar, lv.expr)
}

func (lv lvalue) write(value string) string {
	if lv.direct {
		return "=" + lv.ctx.ref(lv.addr) + " " + value
	}
	return join(astro.OpAssign, lv.expr, value)
}

// reusable reports whether the address may be used a second time, which a
// read-modify-write on a computed address needs.
func (lv lvalue) reusable() bool {
	if lv.direct || !ast.HasSideEffects(lv.source) {
		return true
	}
	lv.ctx.diag.Errorf(lv.node.Tok, "address expression with side effects cannot be updated in place")
	return false
}

func (ctx *Context) lvalue(n *ast.Node) lvalue {
	n = ast.Unparen(n)
	lv := lvalue{ctx: ctx, node: n}
	switch d := n.Data.(type) {
	case ast.IdentNode:
		lv.sym = ctx.symbol(n)
		lv.direct, lv.addr = true, lv.sym.Addr
	case ast.IndexNode:
		lv.sym = ctx.symbol(ast.Unparen(d.Array))
		if k, ok := ctx.folder.Int(d.Index); ok {
			if k < 0 || k >= int64(lv.sym.Size) {
				ctx.diag.Warn(config.WarnBounds, d.Index.Tok, "index %d is outside %s[%d]", k, lv.sym.Name, lv.sym.Size)
			}
			lv.direct, lv.addr = true, lv.sym.Addr+int(k)
			break
		}
		lv.expr = join(astro.OpAdd, strconv.Itoa(lv.sym.Addr), ctx.expr(d.Index))
		lv.source = d.Index
	case ast.DerefNode:
		if p, ok := ctx.folder.Int(d.Expr); ok {
			if limit := ctx.chk.Mem.Limit(); p < 1 || p > int64(limit) {
				ctx.diag.Warn(config.WarnBounds, d.Expr.Tok, "address %d is outside memory 1..%d", p, limit)
			}
			lv.direct, lv.addr = true, int(p)
			break
		}
		lv.expr = ctx.expr(d.Expr)
		lv.source = d.Expr
	default:
		diag.Internal("%s is not assignable", n.Type)
	}
	return lv
}

func (ctx *Context) symbol(n *ast.Node) *memspace.Symbol {
	sym := ctx.chk.Binding(n)
	if sym == nil || !sym.Allocated() {
		diag.Internal("unbound %s at line %d", n.Type, n.Tok.Line)
	}
	return sym
}

// warnReserve flags plain stores to a builtin register inside a reserved
// range. Explicitly placed variables are reported once by the checker.
func (ctx *Context) warnReserve(lv lvalue) {
	if !lv.direct || lv.node.Type != ast.Ident || !lv.sym.Has(memspace.Builtin) {
		return
	}
	for _, r := range ctx.chk.Mem.Reserves() {
		if r.Lo <= lv.addr && lv.addr <= r.Hi {
			ctx.diag.Warn(config.WarnReserve, lv.node.Tok, "assignment to %s in reserve area", lv.sym.Name)
			return
		}
	}
}

func (ctx *Context) genAssign(n *ast.Node, d ast.AssignNode) {
	lv := ctx.lvalue(d.Lhs)
	binOp, compound := astro.CompoundOps[d.Op]
	if v, ok := ctx.folder.Int(d.Rhs); ok && compound && v == 1 && ctx.incdec && (binOp == token.Plus || binOp == token.Minus) {
		step := token.Inc
		if binOp == token.Minus {
			step = token.Dec
		}
		// the right side is a constant, so it has no fragment to consume
		ctx.put(n, ctx.step(lv, step))
		return
	}
	ctx.warnReserve(lv)
	if d.Op == token.Eq {
		ctx.put(n, lv.write(ctx.expr(d.Rhs)))
		return
	}
	if !compound {
		diag.Internal("unexpected assignment %s", d.Op)
	}
	rhs := ctx.expr(d.Rhs)
	if lv.direct {
		ctx.put(n, token.TypeStrings[d.Op]+ctx.ref(lv.addr)+" "+rhs)
		return
	}
	if !lv.reusable() {
		ctx.put(n, "0")
		return
	}
	ctx.put(n, lv.write(join(astro.BinaryOps[binOp], lv.read(), rhs)))
}

// step increments or decrements lv and yields the new value.
func (ctx *Context) step(lv lvalue, op token.Type) string {
	ctx.warnReserve(lv)
	if lv.direct {
		if ctx.incdec {
			return token.TypeStrings[op] + ctx.ref(lv.addr)
		}
		compound := token.PlusEq
		if op == token.Dec {
			compound = token.MinusEq
		}
		return token.TypeStrings[compound] + ctx.ref(lv.addr) + " 1"
	}
	if !lv.reusable() {
		return "0"
	}
	return lv.write(ctx.adjust(lv.read(), op == token.Inc))
}

// adjust adds or subtracts one from text.
func (ctx *Context) adjust(text string, up bool) string {
	switch {
	case ctx.incdec && up:
		return join(astro.OpInc, text)
	case ctx.incdec:
		return join(astro.OpDec, text)
	case up:
		return join(astro.OpAdd, text, "1")
	}
	return join(astro.OpSub, text, "1")
}

// genPostfix yields the old value: the stored value stepped back. As a
// statement the value is unused and the prefix form is enough.
func (ctx *Context) genPostfix(n *ast.Node, d ast.PostfixNode) {
	text := ctx.step(ctx.lvalue(d.Expr), d.Op)
	if isVoid(n) {
		ctx.put(n, text)
		return
	}
	ctx.put(n, ctx.adjust(text, d.Op == token.Dec))
}

func isVoid(n *ast.Node) bool {
	p := n.Parent
	if p == nil {
		return false
	}
	switch d := p.Data.(type) {
	case ast.ExprStmtNode:
		return true
	case ast.ForNode:
		return n == d.Init || n == d.Step
	}
	return false
}

func (ctx *Context) genCall(n *ast.Node, d ast.CallNode) {
	f, ok := ctx.chk.Funcs.Lookup(d.Name)
	if !ok {
		diag.Internal("unknown function %s reached generation", d.Name)
	}
	switch f.Kind {
	case astro.Builtin:
		parts := []string{f.Opcode}
		for _, arg := range d.Args {
			parts = append(parts, ctx.expr(arg))
		}
		ctx.put(n, join(parts...))
	case astro.UserSwitch:
		ctx.put(n, join(astro.OpSwitch, strconv.Itoa(ctx.chk.Switch(d.Name).Addr)))
	case astro.UserMacro:
		ctx.genMacroCall(n, d, ctx.chk.Macro(d.Name))
	default:
		// addr and sizeof of a declared name always fold
		diag.Internal("%s did not fold", d.Name)
	}
}

// genMacroCall stores each argument in its parameter slot, then invokes the
// macro. Calls to a macro with several parameters may not nest inside an
// open call to the same macro: the inner call would overwrite the slots the
// outer call has already filled.
func (ctx *Context) genMacroCall(n *ast.Node, d ast.CallNode, m *checker.Macro) {
	call := join(astro.OpMacro, strconv.Itoa(m.Sym.Addr))
	if len(m.Params) == 0 {
		ctx.put(n, call)
		return
	}
	if len(m.Params) > 1 {
		if root, open := ctx.openRoots[d.Name]; open {
			ctx.diag.Errorf(n.Tok, "call to %s nested inside another call to %s (line %d)", d.Name, d.Name, root.Tok.Line)
		} else {
			ctx.openRoots[d.Name] = n
			defer delete(ctx.openRoots, d.Name)
		}
	}
	stmts := make([]string, 0, len(d.Args)+1)
	for i, arg := range d.Args {
		stmts = append(stmts, "="+ctx.ref(m.Params[i].Addr)+" "+ctx.expr(arg))
	}
	ctx.put(n, astro.Chain(append(stmts, call)))
}
