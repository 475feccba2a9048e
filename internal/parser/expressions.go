package parser

import (
	"strings"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
	"github.com/funvibe/taffy/internal/token"
)

func (p *Parser) parseExpression(precedence int) node.Node {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxRecursionDepth {
		p.errorAt(p.curToken, "expression too complex: recursion depth limit exceeded")
		return nil
	}

	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken)
		return nil
	}
	left := prefix()
	if left == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
		if left == nil {
			return nil
		}
	}
	return left
}

func (p *Parser) parseIdentifier() node.Node {
	tok := p.curToken
	name := tok.Literal.(string)
	var flags scope.Flags
	switch tok.Type {
	case token.IVAR:
		flags = scope.Instance
	case token.CVAR:
		flags = scope.Meta
	default:
		// qualified names: org.taffy.core.Number, Outer.Inner
		for p.peekTokenIs(token.DOT) && p.adjacent() && p.peekAt(1).Type == token.IDENT {
			p.nextToken()
			p.nextToken()
			name += "." + p.curToken.Literal.(string)
		}
	}
	return p.at(ast.NewIdentifier(name, flags), tok)
}

func (p *Parser) parseKeywordValue() node.Node {
	var n node.Node
	switch p.curToken.Type {
	case token.SELF:
		n = &ast.Self{}
	case token.UPSELF:
		n = &ast.UpSelf{}
	case token.SUPER:
		n = &ast.Super{}
	case token.YES:
		n = &ast.True{}
	case token.NO:
		n = &ast.False{}
	default:
		n = &ast.Nil{}
	}
	return p.at(n, p.curToken)
}

func (p *Parser) parseSymbol() node.Node {
	return p.at(ast.NewSymbol(p.curToken.Literal.(string)), p.curToken)
}

func (p *Parser) parseNew() node.Node {
	tok := p.curToken
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	id := p.parseIdentifier()
	return p.at(ast.NewNew(id), tok)
}

func (p *Parser) parsePrefixExpression() node.Node {
	tok := p.curToken
	if tok.Type == token.MINUS && p.peekTokenIs(token.NUMBER) && p.adjacent() {
		p.nextToken()
		return p.literalNumber("-"+p.curToken.Literal.(string), tok)
	}
	p.nextToken()
	operand := p.parseExpression(PREFIX)
	if operand == nil {
		return nil
	}
	return p.at(ast.NewMethodCall(operand, config.PrefixOperatorMethodName(tok.Lexeme)), tok)
}

func (p *Parser) parsePostfixExpression(left node.Node) node.Node {
	tok := p.curToken
	return p.at(ast.NewMethodCall(left, config.PostfixOperatorMethodName(tok.Lexeme)), tok)
}

// parseArithmetic builds FlatArithmetic chains: 1 + 2 + 3 becomes one
// node. Parenthesized chains are Grouped and never merged.
func (p *Parser) parseArithmetic(left node.Node) node.Node {
	tok := p.curToken
	op, ok := ast.OperatorForSymbol(tok.Lexeme)
	if !ok {
		p.errorAt(tok, "unknown operator %q", tok.Lexeme)
		return nil
	}
	precedence := precedences[tok.Type]
	if op.RightAssociative() {
		precedence--
	}
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}

	if op.RightAssociative() {
		if fa, ok := right.(*ast.FlatArithmetic); ok && fa.Operator == op && !fa.Grouped {
			fa.Values = append([]node.Node{left}, fa.Values...)
			return p.at(fa, tok)
		}
		return p.at(ast.NewFlatArithmetic(op, left, right), tok)
	}
	if fa, ok := left.(*ast.FlatArithmetic); ok && fa.Operator == op && !fa.Grouped {
		fa.Values = append(fa.Values, right)
		return fa
	}
	return p.at(ast.NewFlatArithmetic(op, left, right), tok)
}

func (p *Parser) parseComparison(left node.Node) node.Node {
	tok := p.curToken
	precedence := precedences[tok.Type]
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return p.at(ast.NewMethodCall(left, config.OperatorMethodName(tok.Lexeme), right), tok)
}

func (p *Parser) parseNotEqual(left node.Node) node.Node {
	tok := p.curToken
	p.nextToken()
	right := p.parseExpression(EQUALS)
	if right == nil {
		return nil
	}
	call := p.at(ast.NewMethodCall(left, config.EqualsMethodName, right), tok)
	return p.at(ast.NewNotEqualCall(call), tok)
}

func (p *Parser) parseLogical(left node.Node) node.Node {
	tok := p.curToken
	precedence := precedences[tok.Type]
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	if tok.Type == token.AND {
		return p.at(ast.NewAnd(left, right), tok)
	}
	return p.at(ast.NewOr(left, right), tok)
}

// parseIn handles `x in [a, b, c]`.
func (p *Parser) parseIn(left node.Node) node.Node {
	tok := p.curToken
	if !p.expectPeek(token.LBRACKET) {
		return nil
	}
	values := p.parseExpressionList(token.RBRACKET)
	if values == nil {
		return nil
	}
	return p.at(ast.NewIn(left, values), tok)
}

func (p *Parser) parseCallExpression(function node.Node) node.Node {
	tok := p.curToken
	args := p.parseExpressionList(token.RPAREN)
	if args == nil {
		return nil
	}
	return p.at(ast.NewMethodCall(function, config.CallMethodName, args...), tok)
}

func (p *Parser) parseIndexExpression(left node.Node) node.Node {
	tok := p.curToken
	args := p.parseExpressionList(token.RBRACKET)
	if args == nil {
		return nil
	}
	return p.at(ast.NewMethodCall(left, config.IndexMethodName, args...), tok)
}

// parseExpressionList parses comma separated expressions after the
// opening delimiter in curToken, consuming the closing end. An empty
// list is returned as a non-nil empty slice; nil means failure.
func (p *Parser) parseExpressionList(end token.TokenType) []node.Node {
	list := []node.Node{}
	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}
	p.nextToken()
	for {
		item := p.parseExpression(LOWEST)
		if item == nil {
			return nil
		}
		list = append(list, item)
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
	}
	if !p.expectPeek(end) {
		return nil
	}
	return list
}

// parseGroupedOrHash parses (expr), a hash literal (k => v, ...), or ().
func (p *Parser) parseGroupedOrHash() node.Node {
	tok := p.curToken
	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return p.literal(p.builder.Hash(nil), tok)
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	if p.peekTokenIs(token.FAT_ARROW) {
		return p.parseHashRest(first, tok)
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if fa, ok := first.(*ast.FlatArithmetic); ok {
		fa.Grouped = true
	}
	return first
}

func (p *Parser) parseHashRest(firstKey node.Node, tok token.Token) node.Node {
	var pairs []node.Node
	key := firstKey
	for {
		arrow := p.peekToken
		if !p.expectPeek(token.FAT_ARROW) {
			return nil
		}
		p.nextToken()
		value := p.parseExpression(LOWEST)
		if value == nil {
			return nil
		}
		pairs = append(pairs, p.at(ast.NewGraphDataPair(key, value), arrow))
		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
		p.nextToken()
		if key = p.parseExpression(LOWEST); key == nil {
			return nil
		}
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return p.literal(p.builder.Hash(pairs), tok)
}

// parseBracket parses an array literal [a, b] or a message send
// [receiver message] / [receiver key: arg key2: arg2].
func (p *Parser) parseBracket() node.Node {
	tok := p.curToken
	if p.peekTokenIs(token.RBRACKET) {
		p.nextToken()
		return p.literal(p.builder.Array(nil), tok)
	}
	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	switch p.peekToken.Type {
	case token.RBRACKET:
		p.nextToken()
		return p.literal(p.builder.Array([]node.Node{first}), tok)
	case token.COMMA:
		items := []node.Node{first}
		for p.peekTokenIs(token.COMMA) {
			p.nextToken()
			p.nextToken()
			item := p.parseExpression(LOWEST)
			if item == nil {
				return nil
			}
			items = append(items, item)
		}
		if !p.expectPeek(token.RBRACKET) {
			return nil
		}
		return p.literal(p.builder.Array(items), tok)
	}
	send := p.parseMessage(first, tok)
	if send == nil || !p.expectPeek(token.RBRACKET) {
		return nil
	}
	return send
}

// canStartMessage reports whether peekToken begins a message selector.
func (p *Parser) canStartMessage() bool {
	switch p.peekToken.Type {
	case token.IDENT, token.KEYWORD:
		return true
	}
	return false
}

// parseMessage parses the selector and arguments sent to receiver. The
// selector starts at peekToken.
func (p *Parser) parseMessage(receiver node.Node, tok token.Token) node.Node {
	switch p.peekToken.Type {
	case token.IDENT:
		p.nextToken()
		return p.at(ast.NewMethodCall(receiver, p.curToken.Literal.(string)), tok)
	case token.KEYWORD:
		var (
			name strings.Builder
			args []node.Node
		)
		for p.peekTokenIs(token.KEYWORD) {
			p.nextToken()
			name.WriteString(p.curToken.Literal.(string))
			p.nextToken()
			arg := p.parseExpression(LOWEST)
			if arg == nil {
				return nil
			}
			args = append(args, arg)
		}
		return p.at(ast.NewMethodCall(receiver, name.String(), args...), tok)
	}
	p.errorAt(p.peekToken, "expected a message, got %s", describe(p.peekToken))
	return nil
}

// parseMatrixLiteral parses ||1, 2; 3, 4||.
func (p *Parser) parseMatrixLiteral() node.Node {
	tok := p.curToken
	var (
		cells []node.Node
		cols  = -1
		row   int
	)
	if p.peekTokenIs(token.DOUBLE_PIPE) {
		p.nextToken()
		return p.literal(p.builder.Matrix(0, 0, nil), tok)
	}
	for {
		p.nextToken()
		cell := p.parseExpression(LOWEST)
		if cell == nil {
			return nil
		}
		cells = append(cells, cell)
		row++
		switch p.peekToken.Type {
		case token.COMMA:
			p.nextToken()
			continue
		case token.SEMICOLON, token.DOUBLE_PIPE:
			if cols == -1 {
				cols = row
			} else if cols != row {
				p.errorAt(p.peekToken, "matrix rows have different lengths")
				return nil
			}
			row = 0
			p.nextToken()
			if p.curTokenIs(token.DOUBLE_PIPE) {
				rows := uint32(len(cells) / cols)
				return p.literal(p.builder.Matrix(rows, uint32(cols), cells), tok)
			}
			continue
		}
		p.peekError(token.DOUBLE_PIPE)
		return nil
	}
}

// parseBlockLiteral parses ^{ <a, b> statements }.
func (p *Parser) parseBlockLiteral() node.Node {
	tok := p.curToken
	p.skipNewlines()
	var args []string
	if p.peekTokenIs(token.LT) {
		p.nextToken()
		for !p.peekTokenIs(token.GT) {
			if !p.expectPeek(token.IDENT) {
				return nil
			}
			args = append(args, p.curToken.Literal.(string))
			if p.peekTokenIs(token.COMMA) {
				p.nextToken()
			}
		}
		p.nextToken()
	}
	body := p.parseStatementsUntil(token.RBRACE)
	if body == nil {
		return nil
	}
	return p.literal(p.builder.Block(args, body), tok)
}

func (p *Parser) parseNumberLiteral() node.Node {
	return p.literalNumber(p.curToken.Literal.(string), p.curToken)
}

func (p *Parser) literalNumber(text string, tok token.Token) node.Node {
	n, err := p.builder.Number(text)
	if err != nil {
		p.errorAt(tok, "%v", err)
		return nil
	}
	return p.literal(n, tok)
}

// parseStringLiteral splits interpolated strings into literal text and
// parsed expressions.
func (p *Parser) parseStringLiteral() node.Node {
	tok := p.curToken
	parts := node.NewList()
	for _, part := range tok.Literal.([]token.StringPart) {
		if !part.Code {
			parts.Push(node.NewString(part.Text))
			continue
		}
		sub := newAt(part.Text, p.filename, part.Line, p.builder)
		expr := sub.parseExpression(LOWEST)
		if err := sub.Err(); err != nil {
			p.errors = append(p.errors, sub.errors...)
			return nil
		}
		if expr == nil || !sub.peekTokenIs(token.EOF) {
			p.errorAt(tok, "invalid interpolation #[%s]", part.Text)
			return nil
		}
		parts.Push(expr)
	}
	return p.literal(p.builder.String(parts), tok)
}

func (p *Parser) literal(value node.Node, tok token.Token) node.Node {
	if value == nil {
		return nil
	}
	return p.at(ast.NewClass(value), tok)
}
