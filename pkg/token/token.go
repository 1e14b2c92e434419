package token

type Type int

const (
	EOF Type = iota
	Ident
	Number
	String
	RawText
	Var
	Const
	Layout
	Macro
	Switch
	Run
	Copy
	If
	Else
	While
	Do
	For
	Repeat
	Base
	Limit
	Reserve
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Question
	At
	Eq
	PlusEq
	MinusEq
	StarEq
	SlashEq
	RemEq
	AndEq
	OrEq
	XorEq
	ShlEq
	ShrEq
	Plus
	Minus
	Star
	Slash
	Rem
	And
	Or
	Xor
	Shl
	Shr
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Complement
	Inc
	Dec
	Other
)

var KeywordMap = map[string]Type{
	"var":    Var,
	"const":  Const,
	"layout": Layout,
	"macro":  Macro,
	"switch": Switch,
	"run":    Run,
	"copy":   Copy,
	"if":     If,
	"else":   Else,
	"while":  While,
	"do":     Do,
	"for":    For,
	"repeat": Repeat,
}

// Layout items are only keywords inside a layout block, so the parser matches
// them by identifier text instead.
var LayoutWords = map[string]Type{
	"base":    Base,
	"limit":   Limit,
	"reserve": Reserve,
}

var opStrings = map[Type]string{
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Question: "?", At: "@",
	Eq: "=", PlusEq: "+=", MinusEq: "-=", StarEq: "*=", SlashEq: "/=", RemEq: "%=",
	AndEq: "&=", OrEq: "|=", XorEq: "^=", ShlEq: "<<=", ShrEq: ">>=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", And: "&", Or: "|", Xor: "^",
	Shl: "<<", Shr: ">>", EqEq: "==", Neq: "!=", Lt: "<", Gt: ">", Gte: ">=", Lte: "<=",
	AndAnd: "&&", OrOr: "||", Not: "!", Complement: "~", Inc: "++", Dec: "--",
}

// Reverse mapping from Type to the keyword or operator string
var TypeStrings = make(map[Type]string)

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for str, typ := range LayoutWords {
		TypeStrings[typ] = str
	}
	for typ, str := range opStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	switch t {
	case EOF:
		return "end of file"
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case RawText:
		return "raw text"
	}
	if s, ok := TypeStrings[t]; ok {
		return "'" + s + "'"
	}
	return "token"
}

// Token is one lexeme. Pos is the rune offset of the lexeme in its file, which
// the parser uses to slice raw command text back out of the source.
type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Pos       int
	Line      int
	Column    int
	Len       int
}
