package parser

import (
	"strconv"
	"strings"

	"github.com/errael/castro/pkg/ast"
	"github.com/errael/castro/pkg/diag"
	"github.com/errael/castro/pkg/token"
)

// bailout unwinds to the enclosing top level construct after an error.
type bailout struct{}

// Parser holds the state for the parsing process
type Parser struct {
	tokens     []token.Token
	source     []rune
	pos        int
	current    token.Token
	previous   token.Token
	diag       *diag.Collector
	incomplete bool
}

// NewParser creates a Parser over a token stream. source is the text the
// tokens were produced from; switch commands are sliced out of it verbatim.
func NewParser(tokens []token.Token, source []rune, d *diag.Collector) *Parser {
	p := &Parser{tokens: tokens, source: source, diag: d}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Incomplete reports whether parsing failed only because the input ended
// early. The REPL keeps reading in that case.
func (p *Parser) Incomplete() bool { return p.incomplete }

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens)-1 {
		p.previous = p.current
		p.pos++
		p.current = p.tokens[p.pos]
	}
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	p.fail(p.current, "%s", message)
}

func (p *Parser) fail(tok token.Token, format string, args ...interface{}) {
	if tok.Type == token.EOF {
		p.incomplete = true
	}
	p.diag.Errorf(tok, format, args...)
	panic(bailout{})
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 13
	case token.Plus, token.Minus:
		return 12
	case token.Shl, token.Shr:
		return 11
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 10
	case token.EqEq, token.Neq:
		return 9
	case token.And:
		return 8
	case token.Xor:
		return 7
	case token.Or:
		return 6
	case token.AndAnd:
		return 5
	case token.OrOr:
		return 4
	default:
		return -1
	}
}

func (p *Parser) parseNumber() *ast.Node {
	tok := p.current
	p.expect(token.Number, "expected a number")
	val, _ := strconv.ParseInt(tok.Value, 10, 64)
	return ast.NewNumber(tok, val)
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.check(token.Number):
		return p.parseNumber()
	case p.match(token.Ident):
		if p.match(token.LParen) {
			var args []*ast.Node
			if !p.check(token.RParen) {
				for {
					args = append(args, p.parseAssignmentExpr())
					if !p.match(token.Comma) {
						break
					}
				}
			}
			p.expect(token.RParen, "expected ')' after call arguments")
			return ast.NewCall(tok, tok.Value, args)
		}
		return ast.NewIdent(tok, tok.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "expected ')' after expression")
		return ast.NewParen(tok, expr)
	case p.check(token.String):
		p.fail(tok, "string literal is only allowed in a command")
	}
	p.fail(tok, "expected an expression, found %s", tok.Type)
	return nil
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for {
		tok := p.current
		switch {
		case p.match(token.LBracket):
			index := p.parseExpr()
			p.expect(token.RBracket, "expected ']' after index")
			expr = ast.NewIndex(tok, expr, index)
		case p.match(token.Inc), p.match(token.Dec):
			if !ast.IsLvalue(expr) {
				p.fail(tok, "'%s' requires a variable", token.TypeStrings[tok.Type])
			}
			expr = ast.NewPostfix(tok, tok.Type, expr)
		default:
			return expr
		}
	}
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	switch tok.Type {
	case token.Not, token.Complement, token.Minus, token.Plus:
		p.advance()
		return ast.NewUnary(tok, tok.Type, p.parseUnaryExpr())
	case token.Inc, token.Dec:
		p.advance()
		operand := p.parseUnaryExpr()
		if !ast.IsLvalue(operand) {
			p.fail(tok, "'%s' requires a variable", token.TypeStrings[tok.Type])
		}
		return ast.NewPrefix(tok, tok.Type, operand)
	case token.Star:
		p.advance()
		return ast.NewDeref(tok, p.parseUnaryExpr())
	case token.And:
		// &v is shorthand for addr(v)
		p.advance()
		operand := p.parseUnaryExpr()
		return ast.NewCall(tok, "addr", []*ast.Node{operand})
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.NewBinary(opTok, op, left, right)
	}
	return left
}

func (p *Parser) parseTernaryExpr() *ast.Node {
	cond := p.parseBinaryExpr(0)
	if p.match(token.Question) {
		tok := p.previous
		thenExpr := p.parseExpr()
		p.expect(token.Colon, "expected ':' in conditional expression")
		elseExpr := p.parseTernaryExpr()
		return ast.NewTernary(tok, cond, thenExpr, elseExpr)
	}
	return cond
}

func isAssignmentOp(op token.Type) bool {
	return op >= token.Eq && op <= token.ShrEq
}

func (p *Parser) parseAssignmentExpr() *ast.Node {
	left := p.parseTernaryExpr()
	if isAssignmentOp(p.current.Type) {
		tok := p.current
		if !ast.IsLvalue(left) {
			p.fail(tok, "invalid target for assignment")
		}
		p.advance()
		right := p.parseAssignmentExpr()
		return ast.NewAssign(tok, tok.Type, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseAssignmentExpr()
}

func (p *Parser) parseParenExpr(what string) *ast.Node {
	p.expect(token.LParen, "expected '(' after '"+what+"'")
	expr := p.parseExpr()
	p.expect(token.RParen, "expected ')' after "+what+" condition")
	return expr
}

// Statement Parsing
func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "expected '{'")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace, "expected '}' after block")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.If):
		cond := p.parseParenExpr("if")
		thenBody := p.parseStmt()
		var elseBody *ast.Node
		if p.match(token.Else) {
			elseBody = p.parseStmt()
		}
		return ast.NewIf(tok, cond, thenBody, elseBody)
	case p.match(token.While):
		cond := p.parseParenExpr("while")
		return ast.NewWhile(tok, cond, p.parseStmt())
	case p.match(token.Do):
		body := p.parseStmt()
		p.expect(token.While, "expected 'while' after do body")
		cond := p.parseParenExpr("while")
		p.expect(token.Semi, "expected ';' after do-while")
		return ast.NewDoWhile(tok, body, cond)
	case p.match(token.For):
		p.expect(token.LParen, "expected '(' after 'for'")
		var init, cond, step *ast.Node
		if !p.check(token.Semi) {
			init = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after for initializer")
		if !p.check(token.Semi) {
			cond = p.parseExpr()
		}
		p.expect(token.Semi, "expected ';' after for condition")
		if !p.check(token.RParen) {
			step = p.parseExpr()
		}
		p.expect(token.RParen, "expected ')' after for clauses")
		return ast.NewFor(tok, init, cond, step, p.parseStmt())
	case p.match(token.Repeat):
		count := p.parseParenExpr("repeat")
		return ast.NewRepeat(tok, count, p.parseStmt())
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	case p.match(token.Semi):
		return ast.NewBlock(tok, nil)
	case p.check(token.Var), p.check(token.Const):
		p.fail(tok, "declarations are only allowed at top level")
	}
	expr := p.parseExpr()
	p.expect(token.Semi, "expected ';' after expression")
	return ast.NewExprStmt(tok, expr)
}

// Top-Level Parsing

func (p *Parser) parseOptAddr() *ast.Node {
	if p.match(token.At) {
		return p.parseTernaryExpr()
	}
	return nil
}

func (p *Parser) parseVarDecls() []*ast.Node {
	var decls []*ast.Node
	for {
		nameTok := p.current
		p.expect(token.Ident, "expected variable name")
		var size *ast.Node
		isArray := false
		if p.match(token.LBracket) {
			isArray = true
			if !p.check(token.RBracket) {
				size = p.parseExpr()
			}
			p.expect(token.RBracket, "expected ']' after size")
		}
		addr := p.parseOptAddr()

		var init []*ast.Node
		isBrace := false
		if p.match(token.Eq) || p.check(token.LBrace) {
			if p.match(token.LBrace) {
				isBrace = true
				for !p.check(token.RBrace) {
					init = append(init, p.parseTernaryExpr())
					if !p.match(token.Comma) {
						break
					}
				}
				p.expect(token.RBrace, "expected '}' after initializer list")
			} else {
				init = append(init, p.parseTernaryExpr())
			}
		}
		decls = append(decls, ast.NewVarDecl(nameTok, nameTok.Value, size, isArray, addr, init, isBrace))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Semi, "expected ';' after declaration")
	return decls
}

func (p *Parser) parseConstDecls() []*ast.Node {
	var decls []*ast.Node
	for {
		nameTok := p.current
		p.expect(token.Ident, "expected constant name")
		p.expect(token.Eq, "expected '=' after constant name")
		decls = append(decls, ast.NewConstDecl(nameTok, nameTok.Value, p.parseTernaryExpr()))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Semi, "expected ';' after constant")
	return decls
}

func (p *Parser) parseLayout(tok token.Token) *ast.Node {
	var space string
	switch {
	case p.match(token.Macro):
		space = "macro"
	case p.match(token.Switch):
		space = "switch"
	case p.check(token.Ident) && p.current.Value == "memory":
		p.advance()
		space = "memory"
	default:
		p.fail(p.current, "expected 'memory', 'macro' or 'switch' after 'layout'")
	}
	p.expect(token.LBrace, "expected '{' after layout space")
	var items []*ast.Node
	for !p.check(token.RBrace) {
		if p.match(token.Semi) {
			continue
		}
		itemTok := p.current
		kind, ok := token.LayoutWords[itemTok.Value]
		if itemTok.Type != token.Ident || !ok {
			p.fail(itemTok, "expected 'base', 'limit' or 'reserve'")
		}
		p.advance()
		for {
			lo := p.parseTernaryExpr()
			var hi *ast.Node
			if kind == token.Reserve && p.match(token.Colon) {
				hi = p.parseTernaryExpr()
			}
			items = append(items, ast.NewLayoutItem(itemTok, kind, lo, hi))
			if kind != token.Reserve || !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.Semi, "expected ';' after layout item")
	}
	p.expect(token.RBrace, "expected '}' after layout")
	return ast.NewLayout(tok, space, items)
}

func (p *Parser) parseMacro(tok token.Token) *ast.Node {
	nameTok := p.current
	p.expect(token.Ident, "expected macro name")
	addr := p.parseOptAddr()
	p.expect(token.LParen, "expected '(' after macro name")
	var params []*ast.Node
	if !p.check(token.RParen) {
		for {
			paramTok := p.current
			p.expect(token.Ident, "expected parameter name")
			params = append(params, ast.NewIdent(paramTok, paramTok.Value))
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "expected ')' after parameters")
	body := p.parseBlockStmt()
	return ast.NewMacroDecl(nameTok, nameTok.Value, addr, params, body)
}

// parseCommands reads `{ cmd; cmd; ... }`. A command is raw text copied
// through unchanged, with any `{ statements }` inside it compiled in place.
func (p *Parser) parseCommands() []*ast.Node {
	p.expect(token.LBrace, "expected '{' to start commands")
	var cmds []*ast.Node
	for !p.check(token.RBrace) {
		if p.match(token.Semi) {
			continue
		}
		cmdTok := p.current
		var parts []*ast.Node
		for !p.check(token.Semi) && !p.check(token.RBrace) {
			switch {
			case p.check(token.EOF):
				p.fail(p.current, "unterminated command list")
			case p.check(token.LBrace):
				parts = append(parts, p.parseBlockStmt())
			default:
				parts = append(parts, p.parseRawRun())
			}
		}
		cmds = append(cmds, ast.NewCommand(cmdTok, parts))
	}
	p.expect(token.RBrace, "expected '}' after commands")
	return cmds
}

func (p *Parser) parseRawRun() *ast.Node {
	first := p.current
	last := first
	for !p.check(token.Semi) && !p.check(token.RBrace) && !p.check(token.LBrace) && !p.check(token.EOF) {
		last = p.current
		p.advance()
	}
	text := strings.TrimSpace(string(p.source[first.Pos : last.Pos+last.Len]))
	return ast.NewRawCmd(first, text)
}

func (p *Parser) parseTopLevel() []*ast.Node {
	tok := p.current
	switch {
	case p.match(token.Var):
		return p.parseVarDecls()
	case p.match(token.Const):
		return p.parseConstDecls()
	case p.match(token.Layout):
		return []*ast.Node{p.parseLayout(tok)}
	case p.match(token.Macro):
		return []*ast.Node{p.parseMacro(tok)}
	case p.match(token.Switch):
		nameTok := p.current
		p.expect(token.Ident, "expected switch name")
		addr := p.parseOptAddr()
		return []*ast.Node{ast.NewSwitchDecl(nameTok, nameTok.Value, addr, p.parseCommands())}
	case p.match(token.Run):
		return []*ast.Node{ast.NewRun(tok, p.parseCommands())}
	case p.match(token.Copy):
		raw := p.current
		p.expect(token.RawText, "expected '{' after 'copy'")
		return []*ast.Node{ast.NewCopy(tok, raw.Value)}
	}
	p.fail(tok, "expected a top-level declaration, found %s", tok.Type)
	return nil
}

func isTopLevelKeyword(t token.Type) bool {
	switch t {
	case token.Var, token.Const, token.Layout, token.Macro, token.Switch, token.Run, token.Copy:
		return true
	}
	return false
}

// synchronize skips to the next token that can start a top level construct,
// always making progress past start.
func (p *Parser) synchronize(start int) {
	if p.pos == start {
		p.advance()
	}
	for !p.check(token.EOF) && !isTopLevelKeyword(p.current.Type) {
		p.advance()
	}
}

func (p *Parser) parseTopLevelSafe() (decls []*ast.Node, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isBailout := r.(bailout); !isBailout {
				panic(r)
			}
			ok = false
		}
	}()
	return p.parseTopLevel(), true
}

// Parse reads the whole token stream. Errors are recorded in the collector;
// the returned program holds every construct that parsed cleanly.
func (p *Parser) Parse() *ast.Node {
	var decls []*ast.Node
	tok := p.current
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		start := p.pos
		nodes, ok := p.parseTopLevelSafe()
		if !ok {
			p.synchronize(start)
			continue
		}
		decls = append(decls, nodes...)
	}
	return ast.NewProgram(tok, decls)
}

// ParseExpr parses a single expression that must span the whole input.
func (p *Parser) ParseExpr() (expr *ast.Node, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			if _, isBailout := r.(bailout); !isBailout {
				panic(r)
			}
			expr, ok = nil, false
		}
	}()
	expr = p.parseExpr()
	if !p.check(token.EOF) {
		p.fail(p.current, "unexpected %s after expression", p.current.Type)
	}
	return expr, true
}
