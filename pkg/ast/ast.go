// Package ast defines the types used to represent the castro syntax tree.
package ast

import (
	"github.com/errael/castro/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	// Expressions
	Number NodeType = iota
	String
	Ident
	Index
	Deref
	Unary
	Prefix
	Postfix
	Binary
	Assign
	Ternary
	Call
	Paren

	// Statements
	ExprStmt
	Block
	If
	While
	DoWhile
	For
	Repeat

	// Declarations and top level constructs
	VarDecl
	ConstDecl
	Layout
	LayoutItem
	MacroDecl
	SwitchDecl
	Run
	Copy
	Command
	RawCmd
	Program
)

var nodeNames = [...]string{
	Number: "number", String: "string", Ident: "identifier", Index: "index", Deref: "indirection",
	Unary: "unary", Prefix: "prefix", Postfix: "postfix", Binary: "binary", Assign: "assignment",
	Ternary: "ternary", Call: "call", Paren: "parentheses", ExprStmt: "expression statement",
	Block: "block", If: "if", While: "while", DoWhile: "do-while", For: "for", Repeat: "repeat",
	VarDecl: "var", ConstDecl: "const", Layout: "layout", LayoutItem: "layout item",
	MacroDecl: "macro", SwitchDecl: "switch", Run: "run", Copy: "copy", Command: "command",
	RawCmd: "raw command", Program: "program",
}

func (t NodeType) String() string {
	if int(t) < len(nodeNames) {
		return nodeNames[t]
	}
	return "node"
}

// Node represents a node in the AST. Data holds one of the *Node payload
// structs below, selected by Type.
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type StringNode struct{ Value string }
type IdentNode struct{ Name string }
type IndexNode struct{ Array, Index *Node }
type DerefNode struct{ Expr *Node }
type UnaryNode struct{ Op token.Type; Expr *Node }
type PrefixNode struct{ Op token.Type; Expr *Node }
type PostfixNode struct{ Op token.Type; Expr *Node }
type BinaryNode struct{ Op token.Type; Left, Right *Node }
type AssignNode struct{ Op token.Type; Lhs, Rhs *Node }
type TernaryNode struct{ Cond, Then, Else *Node }
type CallNode struct{ Name string; Args []*Node }
type ParenNode struct{ Expr *Node }

type ExprStmtNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type IfNode struct{ Cond, Then, Else *Node }
type WhileNode struct{ Cond, Body *Node }
type DoWhileNode struct{ Body, Cond *Node }

// ForNode parts may be nil when omitted in the source.
type ForNode struct{ Init, Cond, Step, Body *Node }
type RepeatNode struct{ Count, Body *Node }

// VarDeclNode covers `var n;`, `var n[4] @ 100;` and `var n[] = {1, 2};`.
// Size is nil without an explicit size; Addr is nil without '@'.
type VarDeclNode struct {
	Name        string
	Size        *Node
	IsArray     bool
	Addr        *Node
	Init        []*Node
	IsBraceInit bool
}
type ConstDeclNode struct{ Name string; Value *Node }

// LayoutNode constrains one memory space. Space is "memory", "macro" or "switch".
type LayoutNode struct{ Space string; Items []*Node }

// LayoutItemNode is base, limit or one reserve range. Hi is nil unless a
// reserve range was written as lo:hi.
type LayoutItemNode struct{ Kind token.Type; Lo, Hi *Node }

type MacroDeclNode struct {
	Name   string
	Addr   *Node
	Params []*Node
	Body   *Node
}
type SwitchDeclNode struct {
	Name string
	Addr *Node
	Cmds []*Node
}
type RunNode struct{ Cmds []*Node }
type CopyNode struct{ Text string }

// CommandNode is one switch command: raw text pieces and expression blocks in
// source order.
type CommandNode struct{ Parts []*Node }
type RawCmdNode struct{ Text string }
type ProgramNode struct{ Decls []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewIndex(tok token.Token, array, index *Node) *Node {
	return newNode(tok, Index, IndexNode{Array: array, Index: index}, array, index)
}
func NewDeref(tok token.Token, expr *Node) *Node {
	return newNode(tok, Deref, DerefNode{Expr: expr}, expr)
}
func NewUnary(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Unary, UnaryNode{Op: op, Expr: expr}, expr)
}
func NewPrefix(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Prefix, PrefixNode{Op: op, Expr: expr}, expr)
}
func NewPostfix(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, Postfix, PostfixNode{Op: op, Expr: expr}, expr)
}
func NewBinary(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, Binary, BinaryNode{Op: op, Left: left, Right: right}, left, right)
}
func NewAssign(tok token.Token, op token.Type, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewTernary(tok token.Token, cond, thenExpr, elseExpr *Node) *Node {
	return newNode(tok, Ternary, TernaryNode{Cond: cond, Then: thenExpr, Else: elseExpr}, cond, thenExpr, elseExpr)
}
func NewCall(tok token.Token, name string, args []*Node) *Node {
	return newNode(tok, Call, CallNode{Name: name, Args: args}, args...)
}
func NewParen(tok token.Token, expr *Node) *Node {
	return newNode(tok, Paren, ParenNode{Expr: expr}, expr)
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts}, stmts...)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, Then: thenBody, Else: elseBody}, cond, thenBody, elseBody)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewDoWhile(tok token.Token, body, cond *Node) *Node {
	return newNode(tok, DoWhile, DoWhileNode{Body: body, Cond: cond}, body, cond)
}
func NewFor(tok token.Token, init, cond, step, body *Node) *Node {
	return newNode(tok, For, ForNode{Init: init, Cond: cond, Step: step, Body: body}, init, cond, step, body)
}
func NewRepeat(tok token.Token, count, body *Node) *Node {
	return newNode(tok, Repeat, RepeatNode{Count: count, Body: body}, count, body)
}
func NewVarDecl(tok token.Token, name string, size *Node, isArray bool, addr *Node, init []*Node, isBraceInit bool) *Node {
	node := newNode(tok, VarDecl, VarDeclNode{
		Name: name, Size: size, IsArray: isArray, Addr: addr, Init: init, IsBraceInit: isBraceInit,
	}, size, addr)
	for _, e := range init {
		e.Parent = node
	}
	return node
}
func NewConstDecl(tok token.Token, name string, value *Node) *Node {
	return newNode(tok, ConstDecl, ConstDeclNode{Name: name, Value: value}, value)
}
func NewLayout(tok token.Token, space string, items []*Node) *Node {
	return newNode(tok, Layout, LayoutNode{Space: space, Items: items}, items...)
}
func NewLayoutItem(tok token.Token, kind token.Type, lo, hi *Node) *Node {
	return newNode(tok, LayoutItem, LayoutItemNode{Kind: kind, Lo: lo, Hi: hi}, lo, hi)
}
func NewMacroDecl(tok token.Token, name string, addr *Node, params []*Node, body *Node) *Node {
	node := newNode(tok, MacroDecl, MacroDeclNode{Name: name, Addr: addr, Params: params, Body: body}, addr, body)
	for _, p := range params {
		p.Parent = node
	}
	return node
}
func NewSwitchDecl(tok token.Token, name string, addr *Node, cmds []*Node) *Node {
	node := newNode(tok, SwitchDecl, SwitchDeclNode{Name: name, Addr: addr, Cmds: cmds}, addr)
	for _, c := range cmds {
		c.Parent = node
	}
	return node
}
func NewRun(tok token.Token, cmds []*Node) *Node {
	return newNode(tok, Run, RunNode{Cmds: cmds}, cmds...)
}
func NewCopy(tok token.Token, text string) *Node {
	return newNode(tok, Copy, CopyNode{Text: text})
}
func NewCommand(tok token.Token, parts []*Node) *Node {
	return newNode(tok, Command, CommandNode{Parts: parts}, parts...)
}
func NewRawCmd(tok token.Token, text string) *Node {
	return newNode(tok, RawCmd, RawCmdNode{Text: text})
}
func NewProgram(tok token.Token, decls []*Node) *Node {
	return newNode(tok, Program, ProgramNode{Decls: decls}, decls...)
}

// Children returns the direct children of n in source order, skipping
// omitted (nil) parts.
func Children(n *Node) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	add := func(nodes ...*Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	switch d := n.Data.(type) {
	case IndexNode:
		add(d.Array, d.Index)
	case DerefNode:
		add(d.Expr)
	case UnaryNode:
		add(d.Expr)
	case PrefixNode:
		add(d.Expr)
	case PostfixNode:
		add(d.Expr)
	case BinaryNode:
		add(d.Left, d.Right)
	case AssignNode:
		add(d.Lhs, d.Rhs)
	case TernaryNode:
		add(d.Cond, d.Then, d.Else)
	case CallNode:
		add(d.Args...)
	case ParenNode:
		add(d.Expr)
	case ExprStmtNode:
		add(d.Expr)
	case BlockNode:
		add(d.Stmts...)
	case IfNode:
		add(d.Cond, d.Then, d.Else)
	case WhileNode:
		add(d.Cond, d.Body)
	case DoWhileNode:
		add(d.Body, d.Cond)
	case ForNode:
		add(d.Init, d.Cond, d.Step, d.Body)
	case RepeatNode:
		add(d.Count, d.Body)
	case VarDeclNode:
		add(d.Size, d.Addr)
		add(d.Init...)
	case ConstDeclNode:
		add(d.Value)
	case LayoutNode:
		add(d.Items...)
	case LayoutItemNode:
		add(d.Lo, d.Hi)
	case MacroDeclNode:
		add(d.Addr)
		add(d.Params...)
		add(d.Body)
	case SwitchDeclNode:
		add(d.Addr)
		add(d.Cmds...)
	case RunNode:
		add(d.Cmds...)
	case CommandNode:
		add(d.Parts...)
	case ProgramNode:
		add(d.Decls...)
	}
	return out
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of that node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Unparen strips any number of enclosing parentheses.
func Unparen(n *Node) *Node {
	for n != nil && n.Type == Paren {
		n = n.Data.(ParenNode).Expr
	}
	return n
}

// IsLvalue reports whether n (ignoring parentheses) can be assigned to.
func IsLvalue(n *Node) bool {
	switch Unparen(n).Type {
	case Ident, Index, Deref:
		return true
	}
	return false
}

// HasSideEffects reports whether evaluating n could modify state: any
// assignment, increment, or call.
func HasSideEffects(n *Node) bool {
	found := false
	Walk(n, func(c *Node) bool {
		switch c.Type {
		case Assign, Prefix, Postfix, Call:
			found = true
		}
		return !found
	})
	return found
}
