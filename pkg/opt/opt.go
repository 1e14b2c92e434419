// Package opt flattens chains of same-precedence operators ('+'/'-', '&&',
// '||') into operand lists and re-emits them with constants combined and
// short circuits applied. Evaluation order of the non-constant operands is
// never changed.
package opt

import (
	"strconv"
	"strings"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/astro"
	"github.com/errael/castro/pkg/fold"
	"github.com/errael/castro/pkg/token"
)

type Class int

const (
	Other Class = iota
	PlusMinus
	AndAnd
	OrOr
)

func (c Class) String() string {
	return [...]string{"other", "+/-", "&&", "||"}[c]
}

// Operand is one chain member. Neg is set when the operand is subtracted.
type Operand struct {
	Node *ast.Node
	Neg  bool
}

// State is the flattened view of a chain root.
type State struct {
	Class    Class
	Operands []Operand
}

// GenFunc produces the text for an operand. It is only called for operands
// that end up in the output.
type GenFunc func(*ast.Node) string

type Optimizer struct {
	folder *fold.Folder
	incdec bool
	states map[*ast.Node]*State
}

func New(folder *fold.Folder, incdec bool) *Optimizer {
	return &Optimizer{folder: folder, incdec: incdec, states: make(map[*ast.Node]*State)}
}

// ClassOf classifies a single node. A unary sign belongs to the +/- class so
// that it can be pushed into the chain below it.
func ClassOf(n *ast.Node) Class {
	switch d := n.Data.(type) {
	case ast.BinaryNode:
		switch d.Op {
		case token.Plus, token.Minus:
			return PlusMinus
		case token.AndAnd:
			return AndAnd
		case token.OrOr:
			return OrOr
		}
	case ast.UnaryNode:
		if d.Op == token.Plus || d.Op == token.Minus {
			return PlusMinus
		}
	}
	return Other
}

// chainParent is the nearest non-parenthesis ancestor.
func chainParent(n *ast.Node) *ast.Node {
	p := n.Parent
	for p != nil && p.Type == ast.Paren {
		p = p.Parent
	}
	return p
}

// IsRoot reports whether n heads a chain: it has a class and its parent is
// not part of the same chain.
func IsRoot(n *ast.Node) bool {
	c := ClassOf(n)
	if c == Other {
		return false
	}
	p := chainParent(n)
	return p == nil || ClassOf(p) != c
}

// Check builds the operand lists for every chain root under root.
func (o *Optimizer) Check(root *ast.Node) {
	ast.Walk(root, func(n *ast.Node) bool {
		if IsRoot(n) {
			st := &State{Class: ClassOf(n)}
			o.flatten(st, n, false)
			o.states[n] = st
		}
		return true
	})
}

func (o *Optimizer) State(n *ast.Node) *State { return o.states[n] }

func (o *Optimizer) flatten(st *State, n *ast.Node, neg bool) {
	inner := ast.Unparen(n)
	if ClassOf(inner) != st.Class {
		st.Operands = append(st.Operands, Operand{Node: inner, Neg: neg})
		return
	}
	switch d := inner.Data.(type) {
	case ast.UnaryNode:
		o.flatten(st, d.Expr, neg != (d.Op == token.Minus))
	case ast.BinaryNode:
		o.flatten(st, d.Left, neg)
		o.flatten(st, d.Right, neg != (d.Op == token.Minus))
	}
}

// IsStrictBool reports whether n always evaluates to 0 or 1.
func IsStrictBool(n *ast.Node, folder *fold.Folder) bool {
	n = ast.Unparen(n)
	if v, ok := folder.Int(n); ok {
		return v == 0 || v == 1
	}
	switch d := n.Data.(type) {
	case ast.BinaryNode:
		switch d.Op {
		case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte, token.AndAnd, token.OrOr:
			return true
		}
	case ast.UnaryNode:
		return d.Op == token.Not
	}
	return false
}

// Bool normalizes text produced for n to 0 or 1.
func Bool(text string, n *ast.Node, folder *fold.Folder) string {
	if IsStrictBool(n, folder) {
		return text
	}
	return astro.OpNeq + " " + text + " 0"
}

// Emit renders a chain. It returns false if combining the constants
// overflowed; the caller then renders the expression as written.
func (o *Optimizer) Emit(st *State, gen GenFunc) (string, bool) {
	switch st.Class {
	case PlusMinus:
		return o.emitPlusMinus(st, gen)
	case AndAnd:
		return o.emitLogical(st, gen, true), true
	case OrOr:
		return o.emitLogical(st, gen, false), true
	}
	return "", false
}

func (o *Optimizer) emitPlusMinus(st *State, gen GenFunc) (string, bool) {
	var net int64
	var vars []Operand
	for _, op := range st.Operands {
		v, ok := o.folder.Int(op.Node)
		if !ok {
			vars = append(vars, op)
			continue
		}
		if op.Neg {
			v = -v
		}
		net += v
		if !o.folder.InRange(net) {
			return "", false
		}
	}
	if len(vars) == 0 {
		return strconv.FormatInt(net, 10), true
	}

	allNeg := true
	for _, op := range vars {
		allNeg = allNeg && op.Neg
	}

	texts := make([]string, len(vars))
	for i, op := range vars {
		texts[i] = gen(op.Node)
	}

	switch {
	case allNeg && (net != 0 || len(vars) > 1):
		// c - x - y ...
		var sb strings.Builder
		for range vars {
			sb.WriteString(astro.OpSub + " ")
		}
		sb.WriteString(strconv.FormatInt(net, 10))
		for _, t := range texts {
			sb.WriteString(" " + t)
		}
		return sb.String(), true
	case (net == 1 || net == -1) && o.incdec:
		opcode := astro.OpInc
		if net < 0 {
			opcode = astro.OpDec
		}
		return opcode + " " + chain(vars, texts, 0), true
	}
	return chain(vars, texts, net), true
}

// chain renders v1 +/- v2 ... +/- c. Prefix notation puts the opcode of the
// last element first.
func chain(vars []Operand, texts []string, c int64) string {
	var ops []string
	var args []string
	for i, op := range vars {
		t := texts[i]
		switch {
		case i == 0 && op.Neg:
			t = astro.OpNeg + " " + t
		case i > 0 && op.Neg:
			ops = append(ops, astro.OpSub)
		case i > 0:
			ops = append(ops, astro.OpAdd)
		}
		args = append(args, t)
	}
	if c > 0 {
		ops = append(ops, astro.OpAdd)
		args = append(args, strconv.FormatInt(c, 10))
	} else if c < 0 {
		ops = append(ops, astro.OpSub)
		args = append(args, strconv.FormatInt(-c, 10))
	}
	var sb strings.Builder
	for i := len(ops) - 1; i >= 0; i-- {
		sb.WriteString(ops[i] + " ")
	}
	sb.WriteString(strings.Join(args, " "))
	return sb.String()
}

// emitLogical handles && (and=true) and ||. A deciding constant stops the
// chain; later operands are never generated.
func (o *Optimizer) emitLogical(st *State, gen GenFunc, and bool) string {
	var kept []*ast.Node
	decided := false
	for _, op := range st.Operands {
		v, ok := o.folder.Int(op.Node)
		if !ok {
			kept = append(kept, op.Node)
			continue
		}
		if (v == 0) == and {
			decided = true
			break
		}
	}

	result := "1"
	if and {
		result = "0"
	}
	var sb strings.Builder
	for i, n := range kept {
		t := gen(n)
		if i == len(kept)-1 && !decided {
			sb.WriteString(Bool(t, n, o.folder))
			return sb.String()
		}
		if and {
			sb.WriteString(astro.OpIf + " " + t + " ")
		} else {
			sb.WriteString(astro.OpIfElse + " " + t + " 1 ")
		}
	}
	if !decided {
		// every operand was a non-deciding constant
		if and {
			return "1"
		}
		return "0"
	}
	sb.WriteString(result)
	return sb.String()
}
