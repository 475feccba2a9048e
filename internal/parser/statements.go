package parser

import (
	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
	"github.com/funvibe/taffy/internal/token"
)

// ParseProgram parses statements up to EOF into a Tree.
func (p *Parser) ParseProgram() *ast.Tree {
	start := p.curToken
	list := ast.NewList()
	p.at(list, start)
	for {
		for p.curTokenIs(token.NEWLINE) || p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
		}
		if p.curTokenIs(token.EOF) {
			break
		}
		stmt := p.parseStatement()
		if stmt == nil {
			p.skipToStatementBoundary()
		} else {
			list.Push(stmt)
			if !p.endStatement(token.EOF) {
				p.skipToStatementBoundary()
			}
		}
		p.nextToken()
	}
	tree := ast.NewTree(list)
	p.at(tree, start)
	return tree
}

// endStatement checks that a statement is followed by a separator or
// the closing token end, without consuming end.
func (p *Parser) endStatement(end token.TokenType) bool {
	switch p.peekToken.Type {
	case token.NEWLINE, token.SEMICOLON, token.EOF, end:
		return true
	}
	p.errorAt(p.peekToken, "unexpected %s after statement", describe(p.peekToken))
	return false
}

func (p *Parser) skipToStatementBoundary() {
	depth := 0
	for !p.peekTokenIs(token.EOF) {
		switch p.peekToken.Type {
		case token.LBRACE, token.CARET_LB:
			depth++
		case token.RBRACE:
			if depth == 0 {
				return
			}
			depth--
		case token.NEWLINE, token.SEMICOLON:
			if depth == 0 {
				return
			}
		}
		p.nextToken()
	}
}

// parseStatementsUntil parses a brace body. curToken is the opening
// token; on return curToken is the closing end.
func (p *Parser) parseStatementsUntil(end token.TokenType) *ast.List {
	list := ast.NewList()
	p.at(list, p.curToken)
	for {
		p.nextToken()
		for p.curTokenIs(token.NEWLINE) || p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
		}
		switch {
		case p.curTokenIs(end):
			return list
		case p.curTokenIs(token.EOF):
			p.errorAt(p.curToken, "expected %s, got end of input", end)
			return nil
		}
		stmt := p.parseStatement()
		if stmt == nil {
			return nil
		}
		list.Push(stmt)
		if !p.endStatement(end) {
			return nil
		}
	}
}

// parseBody expects a { ... } body after optional newlines.
func (p *Parser) parseBody() *ast.List {
	if !p.expectPeekSkipping(token.LBRACE) {
		return nil
	}
	return p.parseStatementsUntil(token.RBRACE)
}

func (p *Parser) parseStatement() node.Node {
	switch p.curToken.Type {
	case token.CLASS:
		return p.parseClassDefinition(0)
	case token.IDENT:
		if flags, ok := classModifier(p.curToken); ok && p.classAhead() {
			return p.parseModifiedClass(flags)
		}
	case token.IF:
		return p.parseIfStatement()
	case token.WHILE:
		return p.parseWhileStatement()
	case token.FOR:
		return p.parseForStatement()
	case token.TRY:
		return p.parseTryStatement()
	case token.SYNCHRONIZED:
		return p.parseSynchronizedStatement()
	case token.RETURN:
		return p.parseReturnStatement()
	case token.THROW:
		tok := p.curToken
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		return p.at(ast.NewThrow(value), tok)
	case token.BREAK:
		return p.at(&ast.Break{}, p.curToken)
	case token.EXIT:
		return p.at(&ast.Exit{}, p.curToken)
	case token.PACKAGE:
		tok := p.curToken
		path, _, ok := p.parsePath(false)
		if !ok {
			return nil
		}
		return p.at(ast.NewPackage(path...), tok)
	case token.IMPORT:
		tok := p.curToken
		path, wild, ok := p.parsePath(true)
		if !ok {
			return nil
		}
		return p.at(ast.NewImport(path, wild), tok)
	case token.GLOBAL, token.CONST:
		return p.parseModifiedAssignment()
	}
	return p.parseExpressionStatement(0)
}

// parsePath parses a.b.c after package/import, optionally ending in .*
func (p *Parser) parsePath(allowWild bool) ([]string, bool, bool) {
	var path []string
	for {
		if !p.expectPeek(token.IDENT) {
			return nil, false, false
		}
		path = append(path, p.curToken.Literal.(string))
		if !p.peekTokenIs(token.DOT) {
			return path, false, true
		}
		p.nextToken()
		if allowWild && p.peekTokenIs(token.ASTERISK) {
			p.nextToken()
			return path, true, true
		}
	}
}

func (p *Parser) parseModifiedAssignment() node.Node {
	var flags scope.Flags
	for {
		switch p.curToken.Type {
		case token.GLOBAL:
			flags |= scope.Global
		case token.CONST:
			flags |= scope.Constant
		default:
			return p.parseExpressionStatement(flags)
		}
		p.nextToken()
	}
}

// parseExpressionStatement parses an expression followed by an
// assignment, a compound assignment, a function definition, or an
// unbracketed message send.
func (p *Parser) parseExpressionStatement(flags scope.Flags) node.Node {
	tok := p.curToken
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}

	switch p.peekToken.Type {
	case token.ASSIGN:
		p.nextToken()
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		return p.assignment(expr, value, flags, tok)
	case token.ASSIGN_OP:
		p.nextToken()
		opTok := p.curToken
		op, ok := ast.OperatorForSymbol(opTok.Literal.(string))
		if !ok {
			p.errorAt(opTok, "unknown compound operator %q", opTok.Lexeme)
			return nil
		}
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		return p.at(ast.NewMethodCall(expr, op.AssignMethodName(), value), opTok)
	}

	if flags != 0 {
		p.errorAt(tok, "modifier without an assignment")
		return nil
	}
	if p.canStartMessage() {
		return p.parseMessage(expr, tok)
	}
	return expr
}

// assignment builds the node for `target = value`.
func (p *Parser) assignment(target, value node.Node, flags scope.Flags, tok token.Token) node.Node {
	switch t := target.(type) {
	case *ast.Identifier:
		return p.at(ast.NewAssignment(t, value, flags), tok)
	case *ast.MethodCall:
		switch t.Name {
		case config.IndexMethodName:
			args := append(append([]node.Node{}, t.Arguments...), value)
			return p.at(ast.NewMethodCall(t.Receiver, config.IndexSetMethodName, args...), tok)
		case config.CallMethodName:
			return p.functionDefinition(t, value, flags, tok)
		}
	}
	p.errorAt(tok, "cannot assign to %s", target)
	return nil
}

// functionDefinition handles f(x, y) = body and the specific case
// form f(0) = 1.
func (p *Parser) functionDefinition(call *ast.MethodCall, body node.Node, flags scope.Flags, tok token.Token) node.Node {
	id, ok := call.Receiver.(*ast.Identifier)
	if !ok {
		p.errorAt(tok, "cannot define a function on %s", call.Receiver)
		return nil
	}
	args := make([]string, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		arg, ok := a.(*ast.Identifier)
		if !ok || arg.Flags != 0 {
			return p.at(ast.NewFunctionUpdate(id, call.Arguments, body), tok)
		}
		args = append(args, arg.Name)
	}
	fn := p.literal(p.builder.Function(args, body), tok)
	if fn == nil {
		return nil
	}
	return p.at(ast.NewAssignment(id, fn, flags), tok)
}

func (p *Parser) parseReturnStatement() node.Node {
	tok := p.curToken
	switch p.peekToken.Type {
	case token.NEWLINE, token.SEMICOLON, token.RBRACE, token.EOF:
		return p.at(ast.NewReturn(nil), tok)
	}
	p.nextToken()
	value := p.parseExpression(LOWEST)
	if value == nil {
		return nil
	}
	return p.at(ast.NewReturn(value), tok)
}

// parseCondition parses ( expr ).
func (p *Parser) parseCondition() node.Node {
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	p.nextToken()
	cond := p.parseExpression(LOWEST)
	if cond == nil || !p.expectPeek(token.RPAREN) {
		return nil
	}
	return cond
}

func (p *Parser) parseIfStatement() node.Node {
	tok := p.curToken
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	result := ast.NewIf(cond, body, nil)
	p.at(result, tok)

	// else may sit on the next line
	if next := p.peekPastNewlines(); next.Type == token.ELSE {
		p.skipNewlines()
		p.nextToken()
		elseTok := p.curToken
		if p.peekTokenIs(token.IF) {
			p.nextToken()
			result.Next = p.parseIfStatement()
			if result.Next == nil {
				return nil
			}
		} else {
			elseBody := p.parseBody()
			if elseBody == nil {
				return nil
			}
			result.Next = p.at(ast.NewIf(nil, elseBody, nil), elseTok)
		}
	}
	return result
}

func (p *Parser) peekPastNewlines() token.Token {
	if !p.peekTokenIs(token.NEWLINE) {
		return p.peekToken
	}
	for i := 1; ; i++ {
		if t := p.peekAt(i); t.Type != token.NEWLINE {
			return t
		}
	}
}

func (p *Parser) parseWhileStatement() node.Node {
	tok := p.curToken
	cond := p.parseCondition()
	if cond == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return p.at(ast.NewWhile(cond, body), tok)
}

// parseForStatement parses for (init; cond; step) { body }.
func (p *Parser) parseForStatement() node.Node {
	tok := p.curToken
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	var parts [3]node.Node
	for i, end := range []token.TokenType{token.SEMICOLON, token.SEMICOLON, token.RPAREN} {
		if p.peekTokenIs(end) {
			p.nextToken()
			continue
		}
		p.nextToken()
		if i == 1 {
			parts[i] = p.parseExpression(LOWEST)
		} else {
			parts[i] = p.parseExpressionStatement(0)
		}
		if parts[i] == nil || !p.expectPeek(end) {
			return nil
		}
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return p.at(ast.NewFor(parts[0], parts[1], parts[2], body), tok)
}

// parseTryStatement parses try { } catch (Type name) { } ...
func (p *Parser) parseTryStatement() node.Node {
	tok := p.curToken
	body := p.parseBody()
	if body == nil {
		return nil
	}
	try := ast.NewTryBlock(body)
	p.at(try, tok)
	for p.peekPastNewlines().Type == token.CATCH {
		p.skipNewlines()
		p.nextToken()
		catchTok := p.curToken
		if !p.expectPeek(token.LPAREN) || !p.expectPeek(token.IDENT) {
			return nil
		}
		first := p.parseIdentifier()
		var (
			typ  node.Node
			name string
		)
		if p.peekTokenIs(token.IDENT) {
			p.nextToken()
			typ, name = first, p.curToken.Literal.(string)
		} else {
			name = first.(*ast.Identifier).Name
		}
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
		catchBody := p.parseBody()
		if catchBody == nil {
			return nil
		}
		try.Catches = append(try.Catches, p.at(ast.NewCatchBlock(typ, name, catchBody), catchTok))
	}
	if len(try.Catches) == 0 {
		p.errorAt(tok, "try without catch")
		return nil
	}
	return try
}

func (p *Parser) parseSynchronizedStatement() node.Node {
	tok := p.curToken
	target := p.parseCondition()
	if target == nil {
		return nil
	}
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return p.at(ast.NewSynchronized(target, body), tok)
}
