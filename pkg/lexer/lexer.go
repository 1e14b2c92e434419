package lexer

import (
	"strconv"
	"unicode"

	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/token"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	diag      *diag.Collector
	afterCopy bool
}

func NewLexer(source []rune, fileIndex int, d *diag.Collector) *Lexer {
	return &Lexer{source: source, fileIndex: fileIndex, line: 1, column: 1, diag: d}
}

// Tokenize runs the lexer to the end of input. The last token is always EOF.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			return toks
		}
	}
}

func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	if l.afterCopy {
		l.afterCopy = false
		if l.peek() == '{' {
			return l.rawBlock(startPos, startCol, startLine)
		}
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
	case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
	case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
	case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '?': return l.makeToken(token.Question, "", startPos, startCol, startLine)
	case '@': return l.makeToken(token.At, "", startPos, startCol, startLine)
	case '~': return l.makeToken(token.Complement, "", startPos, startCol, startLine)
	case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
	case '^': return l.matchThen('=', token.XorEq, token.Xor, startPos, startCol, startLine)
	case '%': return l.matchThen('=', token.RemEq, token.Rem, startPos, startCol, startLine)
	case '*': return l.matchThen('=', token.StarEq, token.Star, startPos, startCol, startLine)
	case '/': return l.matchThen('=', token.SlashEq, token.Slash, startPos, startCol, startLine)
	case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
	case '+':
		return l.doubled('+', token.Inc, token.PlusEq, token.Plus, startPos, startCol, startLine)
	case '-':
		return l.doubled('-', token.Dec, token.MinusEq, token.Minus, startPos, startCol, startLine)
	case '&':
		return l.doubled('&', token.AndAnd, token.AndEq, token.And, startPos, startCol, startLine)
	case '|':
		return l.doubled('|', token.OrOr, token.OrEq, token.Or, startPos, startCol, startLine)
	case '<':
		return l.shift('<', token.ShlEq, token.Shl, token.Lte, token.Lt, startPos, startCol, startLine)
	case '>':
		return l.shift('>', token.ShrEq, token.Shr, token.Gte, token.Gt, startPos, startCol, startLine)
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	// Switch commands may contain characters the expression language has no
	// use for; the parser copies them through by position.
	return l.makeToken(token.Other, string(ch), startPos, startCol, startLine)
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex, Pos: startPos,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				for !l.isAtEnd() && l.peek() != '\n' {
					l.advance()
				}
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.Other, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	l.diag.Errorf(startTok, "unterminated block comment")
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		l.afterCopy = tokType == token.Copy
	}
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	valueStr := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Number, "0", startPos, startCol, startLine)
	// Values past int32 are kept; the constant folder reports them as overflow.
	val, err := strconv.ParseInt(valueStr, 0, 64)
	if err != nil {
		l.diag.Errorf(tok, "invalid number literal: %s", valueStr)
		return tok
	}
	tok.Value = strconv.FormatInt(val, 10)
	return tok
}

func isHexDigit(c rune) bool {
	return unicode.IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// AstroLog strings have no escapes; the literal ends at the next quote.
func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	for !l.isAtEnd() && l.peek() != '\n' {
		if l.advance() == '"' {
			return l.makeToken(token.String, string(l.source[startPos+1:l.pos-1]), startPos, startCol, startLine)
		}
	}
	tok := l.makeToken(token.String, string(l.source[startPos+1:l.pos]), startPos, startCol, startLine)
	l.diag.Errorf(tok, "unterminated string literal")
	return tok
}

// rawBlock scans the body of a copy block up to the matching close brace.
// The token's value is the text between the braces.
func (l *Lexer) rawBlock(startPos, startCol, startLine int) token.Token {
	l.advance()
	depth := 1
	for !l.isAtEnd() {
		switch l.advance() {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return l.makeToken(token.RawText, string(l.source[startPos+1:l.pos-1]), startPos, startCol, startLine)
			}
		}
	}
	tok := l.makeToken(token.RawText, string(l.source[startPos+1:l.pos]), startPos, startCol, startLine)
	l.diag.Errorf(tok, "unterminated copy block")
	return tok
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// doubled handles the families like '+', '++' and '+='.
func (l *Lexer) doubled(ch rune, twice, assign, single token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.makeToken(twice, "", sPos, sCol, sLine)
	}
	return l.matchThen('=', assign, single, sPos, sCol, sLine)
}

func (l *Lexer) shift(ch rune, shiftEq, shiftOp, cmpEq, cmp token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(ch) {
		return l.matchThen('=', shiftEq, shiftOp, sPos, sCol, sLine)
	}
	return l.matchThen('=', cmpEq, cmp, sPos, sCol, sLine)
}
