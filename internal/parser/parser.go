// Package parser turns Taffy source into an ast.Tree.
//
// The parser is a Pratt parser over a fully lexed token slice. Literal
// values (numbers, strings, containers, blocks) are produced by a
// Builder so that the runtime can hand back its own objects; the
// parser wraps each literal in an ast.Class node.
package parser

import (
	"errors"
	"fmt"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/lexer"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/token"
)

const MaxRecursionDepth = 400

const (
	_ int = iota
	LOWEST
	OR_PREC     // or
	AND_PREC    // and
	EQUALS      // == != in
	LESSGREATER // < > <= >=
	BIT_OR      // |
	BIT_XOR     // ^^
	BIT_AND     // &
	SHIFT       // << >>
	SUM         // + -
	PRODUCT     // * / %
	POWER       // ^
	PREFIX      // -x !x ~x
	POSTFIX     // f(x) a[i] a++ n!
)

var precedences = map[token.TokenType]int{
	token.OR:          OR_PREC,
	token.AND:         AND_PREC,
	token.EQ:          EQUALS,
	token.NOT_EQ:      EQUALS,
	token.IN:          EQUALS,
	token.LT:          LESSGREATER,
	token.GT:          LESSGREATER,
	token.LTE:         LESSGREATER,
	token.GTE:         LESSGREATER,
	token.PIPE:        BIT_OR,
	token.CARET_CARET: BIT_XOR,
	token.AMPERSAND:   BIT_AND,
	token.LSHIFT:      SHIFT,
	token.RSHIFT:      SHIFT,
	token.PLUS:        SUM,
	token.MINUS:       SUM,
	token.ASTERISK:    PRODUCT,
	token.SLASH:       PRODUCT,
	token.PERCENT:     PRODUCT,
	token.CARET:       POWER,
	token.LPAREN:      POSTFIX,
	token.LBRACKET:    POSTFIX,
	token.INCREMENT:   POSTFIX,
	token.DECREMENT:   POSTFIX,
	token.BANG:        POSTFIX,
}

// tokens that must touch the previous token to act as postfix operators
var adjacentOnly = map[token.TokenType]bool{
	token.LPAREN:    true,
	token.LBRACKET:  true,
	token.INCREMENT: true,
	token.DECREMENT: true,
	token.BANG:      true,
}

type (
	prefixParseFn func() node.Node
	infixParseFn  func(node.Node) node.Node
)

// Error is a syntax error with its source location.
type Error struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
}

type Parser struct {
	tokens   []token.Token
	pos      int
	filename string
	builder  Builder
	errors   []error
	depth    int

	curToken  token.Token
	peekToken token.Token
	prevToken token.Token

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn
}

// New prepares a parser over source. A nil builder selects PlainBuilder.
func New(source, filename string, b Builder) *Parser {
	return newAt(source, filename, 1, b)
}

func newAt(source, filename string, line int, b Builder) *Parser {
	if b == nil {
		b = PlainBuilder{}
	}
	p := &Parser{
		tokens:   lexer.NewAt(source, line).Tokens(),
		filename: filename,
		builder:  b,
	}

	p.prefixParseFns = map[token.TokenType]prefixParseFn{
		token.NUMBER:      p.parseNumberLiteral,
		token.STRING:      p.parseStringLiteral,
		token.SYMBOL:      p.parseSymbol,
		token.IDENT:       p.parseIdentifier,
		token.IVAR:        p.parseIdentifier,
		token.CVAR:        p.parseIdentifier,
		token.SELF:        p.parseKeywordValue,
		token.UPSELF:      p.parseKeywordValue,
		token.SUPER:       p.parseKeywordValue,
		token.YES:         p.parseKeywordValue,
		token.NO:          p.parseKeywordValue,
		token.NIL:         p.parseKeywordValue,
		token.LPAREN:      p.parseGroupedOrHash,
		token.LBRACKET:    p.parseBracket,
		token.DOUBLE_PIPE: p.parseMatrixLiteral,
		token.CARET_LB:    p.parseBlockLiteral,
		token.MINUS:       p.parsePrefixExpression,
		token.BANG:        p.parsePrefixExpression,
		token.TILDE:       p.parsePrefixExpression,
		token.NEW:         p.parseNew,
	}

	p.infixParseFns = map[token.TokenType]infixParseFn{
		token.OR:        p.parseLogical,
		token.AND:       p.parseLogical,
		token.EQ:        p.parseComparison,
		token.LT:        p.parseComparison,
		token.GT:        p.parseComparison,
		token.LTE:       p.parseComparison,
		token.GTE:       p.parseComparison,
		token.NOT_EQ:    p.parseNotEqual,
		token.IN:        p.parseIn,
		token.LPAREN:    p.parseCallExpression,
		token.LBRACKET:  p.parseIndexExpression,
		token.INCREMENT: p.parsePostfixExpression,
		token.DECREMENT: p.parsePostfixExpression,
		token.BANG:      p.parsePostfixExpression,
	}
	for _, t := range []token.TokenType{token.PLUS, token.MINUS, token.ASTERISK, token.SLASH, token.PERCENT,
		token.CARET, token.CARET_CARET, token.AMPERSAND, token.PIPE, token.LSHIFT, token.RSHIFT} {
		p.infixParseFns[t] = p.parseArithmetic
	}

	p.nextToken()
	p.nextToken()
	return p
}

// ParseString parses a whole source file.
func ParseString(source, filename string, b Builder) (*ast.Tree, error) {
	p := New(source, filename, b)
	tree := p.ParseProgram()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return tree, nil
}

// Errors returns every syntax error seen so far.
func (p *Parser) Errors() []error { return p.errors }

// Err joins the syntax errors, or returns nil.
func (p *Parser) Err() error { return errors.Join(p.errors...) }

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	if p.pos < len(p.tokens) {
		p.peekToken = p.tokens[p.pos]
		p.pos++
	} else {
		p.peekToken = token.Token{Type: token.EOF, Line: p.curToken.Line}
	}
}

// peekAt returns the token n places after peekToken.
func (p *Parser) peekAt(n int) token.Token {
	if i := p.pos + n - 1; i < len(p.tokens) {
		return p.tokens[i]
	}
	return token.Token{Type: token.EOF}
}

func (p *Parser) curTokenIs(t token.TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t token.TokenType) bool { return p.peekToken.Type == t }

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t token.TokenType) {
	p.errorAt(p.peekToken, "expected %s, got %s", t, describe(p.peekToken))
}

func (p *Parser) errorAt(tok token.Token, format string, args ...any) {
	p.errors = append(p.errors, &Error{File: p.filename, Line: tok.Line, Column: tok.Column,
		Message: fmt.Sprintf(format, args...)})
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of input"
	case token.NEWLINE:
		return "newline"
	case token.ILLEGAL:
		if msg, ok := tok.Literal.(string); ok && msg != tok.Lexeme {
			return msg
		}
	}
	return fmt.Sprintf("%q", tok.Lexeme)
}

// skipNewlines advances past newline tokens following curToken.
func (p *Parser) skipNewlines() {
	for p.peekTokenIs(token.NEWLINE) {
		p.nextToken()
	}
}

// expectPeekSkipping is expectPeek that allows newlines before t.
func (p *Parser) expectPeekSkipping(t token.TokenType) bool {
	p.skipNewlines()
	return p.expectPeek(t)
}

// adjacent reports whether peekToken follows curToken without space.
func (p *Parser) adjacent() bool {
	return p.peekToken.Line == p.curToken.Line &&
		p.peekToken.Column == p.curToken.Column+len([]rune(p.curToken.Lexeme))
}

func (p *Parser) peekPrecedence() int {
	if adjacentOnly[p.peekToken.Type] && !p.adjacent() {
		return LOWEST
	}
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) position(tok token.Token) ast.Position {
	return ast.Position{Filename: p.filename, Line: uint32(tok.Line)}
}

// at stamps n with the location of tok.
func (p *Parser) at(n node.Node, tok token.Token) node.Node {
	if g, ok := n.(interface{ SetPos(ast.Position) }); ok {
		g.SetPos(p.position(tok))
	}
	return n
}

func (p *Parser) noPrefixParseFnError(tok token.Token) {
	p.errorAt(tok, "unexpected %s", describe(tok))
}
