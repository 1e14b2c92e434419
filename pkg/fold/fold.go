// Package fold evaluates constant expressions at compile time. Results are
// memoized per node. Arithmetic is done in int64 and checked against the
// target word size.
package fold

import (
	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/token"
)

type Status int

const (
	Const Status = iota
	NotConst
	Overflow
)

// Result is the outcome of folding one node. Culprit is the node that made
// the expression non-constant or overflow.
type Result struct {
	Status  Status
	Value   int64
	Culprit *ast.Node
}

func (r Result) IsConst() bool { return r.Status == Const }

func Value(v int64) Result { return Result{Status: Const, Value: v} }

func NotConstant(culprit *ast.Node) Result { return Result{Status: NotConst, Culprit: culprit} }

// Env answers the questions that depend on declarations.
type Env interface {
	// IdentValue reports whether n names a constant, and its value.
	IdentValue(n *ast.Node) (Result, bool)
	// CallValue folds a call site, such as addr(v) once addresses are final.
	CallValue(n *ast.Node) Result
	// Finalized reports whether allocation has completed.
	Finalized() bool
}

type Folder struct {
	env      Env
	min, max int64
	memo     map[*ast.Node]Result
	reported map[*ast.Node]bool
	diag     *diag.Collector
}

func New(env Env, bits int, d *diag.Collector) *Folder {
	return &Folder{
		env:      env,
		min:      -1 << (bits - 1),
		max:      1<<(bits-1) - 1,
		memo:     make(map[*ast.Node]Result),
		reported: make(map[*ast.Node]bool),
		diag:     d,
	}
}

// Fold evaluates n. "Not constant" is only remembered once allocation is
// final, since addr() becomes constant at that point.
func (f *Folder) Fold(n *ast.Node) Result {
	if r, ok := f.memo[n]; ok {
		return r
	}
	r := f.eval(n)
	if r.Status != NotConst || f.env.Finalized() {
		f.memo[n] = r
	}
	return r
}

// Int is a convenience for callers that need a constant or nothing.
func (f *Folder) Int(n *ast.Node) (int64, bool) {
	r := f.Fold(n)
	return r.Value, r.IsConst()
}

func (f *Folder) check(n *ast.Node, v int64) Result {
	if !f.InRange(v) {
		if !f.reported[n] {
			f.reported[n] = true
			f.diag.Errorf(n.Tok, "constant overflow: %d does not fit in %d bits", v, bitsOf(f.max))
		}
		return Result{Status: Overflow, Culprit: n}
	}
	return Value(v)
}

// InRange reports whether v fits the target word.
func (f *Folder) InRange(v int64) bool { return v >= f.min && v <= f.max }

func (f *Folder) badShift(n *ast.Node, count int64) Result {
	if !f.reported[n] {
		f.reported[n] = true
		f.diag.Errorf(n.Tok, "shift count %d out of range in constant expression", count)
	}
	return Result{Status: Overflow, Culprit: n}
}

func bitsOf(max int64) int {
	bits := 1
	for max > 0 {
		max >>= 1
		bits++
	}
	return bits
}

func truth(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (f *Folder) eval(n *ast.Node) Result {
	switch d := n.Data.(type) {
	case ast.NumberNode:
		return f.check(n, d.Value)
	case ast.ParenNode:
		return f.Fold(d.Expr)
	case ast.IdentNode:
		if r, ok := f.env.IdentValue(n); ok {
			return r
		}
		return NotConstant(n)
	case ast.CallNode:
		return f.env.CallValue(n)
	case ast.UnaryNode:
		r := f.Fold(d.Expr)
		if !r.IsConst() {
			return r
		}
		switch d.Op {
		case token.Plus:
			return r
		case token.Minus:
			return f.check(n, -r.Value)
		case token.Complement:
			return f.check(n, ^r.Value)
		case token.Not:
			return Value(truth(r.Value == 0))
		}
	case ast.BinaryNode:
		return f.binary(n, d)
	}
	return NotConstant(n)
}

func (f *Folder) binary(n *ast.Node, d ast.BinaryNode) Result {
	switch d.Op {
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return NotConstant(n)
	}
	l := f.Fold(d.Left)
	r := f.Fold(d.Right)
	if !l.IsConst() {
		return l
	}
	if !r.IsConst() {
		return r
	}
	a, b := l.Value, r.Value
	switch d.Op {
	case token.Plus:
		return f.check(n, a+b)
	case token.Minus:
		return f.check(n, a-b)
	case token.Star:
		return f.check(n, a*b)
	case token.Slash, token.Rem:
		if b == 0 {
			if !f.reported[n] {
				f.reported[n] = true
				f.diag.Errorf(n.Tok, "division by zero in constant expression")
			}
			return NotConstant(n)
		}
		if d.Op == token.Slash {
			return f.check(n, a/b)
		}
		return f.check(n, a%b)
	case token.And:
		return Value(a & b)
	case token.Or:
		return Value(a | b)
	case token.Xor:
		return Value(a ^ b)
	case token.Shl:
		if b < 0 || b >= 64 {
			return f.badShift(n, b)
		}
		if v := a << b; v>>b == a {
			return f.check(n, v)
		}
		if !f.reported[n] {
			f.reported[n] = true
			f.diag.Errorf(n.Tok, "constant overflow: %d << %d does not fit in %d bits", a, b, bitsOf(f.max))
		}
		return Result{Status: Overflow, Culprit: n}
	case token.Shr:
		if b < 0 {
			return f.badShift(n, b)
		}
		return Value(a >> min(b, 63))
	case token.AndAnd:
		return Value(truth(a != 0 && b != 0))
	case token.OrOr:
		return Value(truth(a != 0 || b != 0))
	}
	return NotConstant(n)
}
