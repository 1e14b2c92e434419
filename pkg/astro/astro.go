// Package astro describes the AstroLog expression language the compiler
// targets: opcode names, the builtin function table and output quoting.
package astro

import (
	"sort"
	"strings"

	"github.com/errael/castro/pkg/token"
)

// Opcodes emitted directly by the code generator.
const (
	OpAdd     = "Add"
	OpSub     = "Sub"
	OpMul     = "Mul"
	OpDiv     = "Div"
	OpMod     = "Mod"
	OpAnd     = "And"
	OpOr      = "Or"
	OpXor     = "Xor"
	OpShl     = "<<"
	OpShr     = ">>"
	OpEqu     = "Equ"
	OpNeq     = "Neq"
	OpLt      = "Lt"
	OpGt      = "Gt"
	OpLte     = "Lte"
	OpGte     = "Gte"
	OpNeg     = "Neg"
	OpInv     = "Inv"
	OpNot     = "Not"
	OpInc     = "Inc"
	OpDec     = "Dec"
	OpIf      = "If"
	OpIfElse  = "IfElse"
	OpWhile   = "While"
	OpDoWhile = "DoWhile"
	OpFor     = "For"
	OpRepeat  = "Repeat"
	OpDo      = "Do"
	OpDo2     = "Do2"
	OpDo3     = "Do3"
	OpMacro   = "Macro"
	OpSwitch  = "Switch"
	OpVar     = "Var"
	OpAssign  = "Assign"
)

// BinaryOps maps source binary operators to their opcode.
var BinaryOps = map[token.Type]string{
	token.Plus: OpAdd, token.Minus: OpSub, token.Star: OpMul, token.Slash: OpDiv, token.Rem: OpMod,
	token.And: OpAnd, token.Or: OpOr, token.Xor: OpXor, token.Shl: OpShl, token.Shr: OpShr,
	token.EqEq: OpEqu, token.Neq: OpNeq, token.Lt: OpLt, token.Gt: OpGt, token.Lte: OpLte, token.Gte: OpGte,
}

// CompoundOps maps compound assignment operators to the binary operator they
// apply.
var CompoundOps = map[token.Type]token.Type{
	token.PlusEq: token.Plus, token.MinusEq: token.Minus, token.StarEq: token.Star,
	token.SlashEq: token.Slash, token.RemEq: token.Rem, token.AndEq: token.And,
	token.OrEq: token.Or, token.XorEq: token.Xor, token.ShlEq: token.Shl, token.ShrEq: token.Shr,
}

type Kind int

const (
	Builtin Kind = iota
	AddrOf
	SizeOf
	UserMacro
	UserSwitch
)

// Func is one callable name.
type Func struct {
	Name   string
	Arity  int
	Opcode string
	Kind   Kind
	Decl   interface{}
}

var builtins = []Func{
	{Name: "addr", Arity: 1, Kind: AddrOf},
	{Name: "sizeof", Arity: 1, Kind: SizeOf},

	{Name: "Abs", Arity: 1}, {Name: "Sgn", Arity: 1}, {Name: "Odd", Arity: 1},
	{Name: "Min", Arity: 2}, {Name: "Max", Arity: 2}, {Name: "Pow", Arity: 2},
	{Name: "Tween", Arity: 3}, {Name: "Rnd", Arity: 2}, {Name: "Int", Arity: 1},
	{Name: "Frac", Arity: 1}, {Name: "Sqr", Arity: 1}, {Name: "Dist", Arity: 2},
	{Name: "Sin", Arity: 1}, {Name: "Cos", Arity: 1}, {Name: "Tan", Arity: 1},
	{Name: "Asin", Arity: 1}, {Name: "Acos", Arity: 1}, {Name: "Atan", Arity: 1},
	{Name: "Atan2", Arity: 2}, {Name: "Sin2", Arity: 2}, {Name: "Cos2", Arity: 2},
	{Name: "Mon", Arity: 0}, {Name: "Day", Arity: 0}, {Name: "Yea", Arity: 0},
	{Name: "Tim", Arity: 0}, {Name: "Dst", Arity: 0}, {Name: "Zon", Arity: 0},
	{Name: "Lon", Arity: 0}, {Name: "Lat", Arity: 0}, {Name: "MonN", Arity: 0},
	{Name: "DayN", Arity: 0}, {Name: "YeaN", Arity: 0}, {Name: "TimN", Arity: 0},
	{Name: "DayWeek", Arity: 3}, {Name: "DaysMon", Arity: 2}, {Name: "JulianT", Arity: 0},
	{Name: "ObjLon", Arity: 1}, {Name: "ObjLat", Arity: 1}, {Name: "ObjDir", Arity: 1},
	{Name: "ObjHouse", Arity: 1}, {Name: "ObjSign", Arity: 1}, {Name: "ObjOrb", Arity: 1},
	{Name: "ObjAdd", Arity: 1}, {Name: "ObjOn", Arity: 1}, {Name: "ObjDist", Arity: 1},
	{Name: "Cusp", Arity: 1}, {Name: "AspOrb", Arity: 1}, {Name: "AspOn", Arity: 1},
	{Name: "AspAngle", Arity: 1}, {Name: "Aspect", Arity: 2}, {Name: "AspDeg", Arity: 2},
	{Name: "Sign", Arity: 1}, {Name: "House", Arity: 1}, {Name: "Ruler", Arity: 1},
	{Name: "Exalt", Arity: 1}, {Name: "Color", Arity: 1}, {Name: "KeyC", Arity: 0},
	{Name: "Char", Arity: 1}, {Name: "Prompt", Arity: 1}, {Name: "Var2", Arity: 2},
	{Name: "Assign2", Arity: 3}, {Name: "VarMon", Arity: 0}, {Name: "VarDay", Arity: 0},
	{Name: "Timer", Arity: 0}, {Name: "Rand", Arity: 0},
}

// Table is the callable-name lookup for one compilation unit. User macros
// and switches are added during declaration.
type Table struct {
	funcs map[string]*Func
}

func NewTable() *Table {
	t := &Table{funcs: make(map[string]*Func, len(builtins))}
	for i := range builtins {
		f := builtins[i]
		if f.Opcode == "" && f.Kind == Builtin {
			f.Opcode = f.Name
		}
		t.funcs[f.Name] = &f
	}
	return t
}

func (t *Table) Lookup(name string) (*Func, bool) {
	f, ok := t.funcs[name]
	return f, ok
}

// Add registers a user macro or switch. It returns the existing entry and
// false if the name is taken.
func (t *Table) Add(name string, kind Kind, arity int, decl interface{}) (*Func, bool) {
	if f, ok := t.funcs[name]; ok {
		return f, false
	}
	f := &Func{Name: name, Arity: arity, Kind: kind, Decl: decl}
	t.funcs[name] = f
	return f, true
}

// Names lists every callable name in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain joins statement texts with the fixed-arity sequencing opcodes. More
// than four statements take three per Do3 and recurse on the rest.
func Chain(stmts []string) string {
	switch len(stmts) {
	case 0:
		return "0"
	case 1:
		return stmts[0]
	case 2:
		return OpDo + " " + strings.Join(stmts, " ")
	case 3:
		return OpDo2 + " " + strings.Join(stmts, " ")
	case 4:
		return OpDo3 + " " + strings.Join(stmts, " ")
	}
	return OpDo3 + " " + strings.Join(stmts[:3], " ") + " " + Chain(stmts[3:])
}

// Quotes lists the string delimiters AstroLog accepts, in preference order.
const Quotes = "\"'`"

// Quote wraps text in the first delimiter it does not contain.
func Quote(text string) (string, bool) {
	for _, q := range Quotes {
		if !strings.ContainsRune(text, q) {
			return string(q) + text + string(q), true
		}
	}
	return "", false
}
