package parser

import (
	"strings"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
	"github.com/funvibe/taffy/internal/token"
)

var classModifiers = map[string]ast.ClassFlags{
	"abstract":  ast.ClassAbstract,
	"atomic":    ast.ClassAtomic,
	"final":     ast.ClassFinal,
	"singleton": ast.ClassSingleton,
}

// method modifiers written as #symbols after the header
var methodModifiers = map[string]scope.Flags{
	"const":             scope.Const,
	"synchronized":      scope.Synchronized,
	"synchronizedRead":  scope.SynchronizedRead,
	"synchronizedWrite": scope.SynchronizedWrite,
	"breakthrough":      scope.Breakthrough,
	"containerLoop":     scope.ContainerLoop,
	"modifiesContainer": scope.ModifiesContainer,
	"noCast":            scope.NoCast,
	"protected":         scope.Protected,
}

func classModifier(tok token.Token) (ast.ClassFlags, bool) {
	f, ok := classModifiers[tok.Literal.(string)]
	return f, ok
}

// classAhead reports whether the modifiers at curToken lead to `class`.
func (p *Parser) classAhead() bool {
	if p.peekTokenIs(token.CLASS) {
		return true
	}
	for i := 0; ; i++ {
		var t token.Token
		if i == 0 {
			t = p.peekToken
		} else {
			t = p.peekAt(i)
		}
		switch {
		case t.Type == token.CLASS:
			return true
		case t.Type != token.IDENT:
			return false
		}
		if _, ok := classModifiers[t.Literal.(string)]; !ok {
			return false
		}
	}
}

func (p *Parser) parseModifiedClass(flags ast.ClassFlags) node.Node {
	for !p.curTokenIs(token.CLASS) {
		f, _ := classModifier(p.curToken)
		flags |= f
		p.nextToken()
	}
	return p.parseClassDefinition(flags)
}

// parseClassDefinition parses
//
//	class Name(Super) { variables; methods; nested classes }
func (p *Parser) parseClassDefinition(flags ast.ClassFlags) node.Node {
	tok := p.curToken
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	def := &ast.ClassDefinition{Name: p.curToken.Literal.(string), Flags: flags}
	p.at(def, tok)
	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		def.Super = p.parseIdentifier().(*ast.Identifier).Name
		if !p.expectPeek(token.RPAREN) {
			return nil
		}
	}
	if !p.expectPeekSkipping(token.LBRACE) {
		return nil
	}

	visibility := scope.Public
	for {
		p.nextToken()
		for p.curTokenIs(token.NEWLINE) || p.curTokenIs(token.SEMICOLON) {
			p.nextToken()
		}
		switch p.curToken.Type {
		case token.RBRACE:
			return def
		case token.EOF:
			p.errorAt(p.curToken, "unterminated class %s", def.Name)
			return nil
		case token.IVAR, token.CVAR:
			name := p.curToken.Literal.(string)
			if p.curTokenIs(token.IVAR) && (name == "public" || name == "protected") {
				visibility = scope.Public
				if name == "protected" {
					visibility = scope.Protected
				}
				continue
			}
			v := p.parseClassVariable(visibility)
			if v == nil {
				return nil
			}
			def.Variables = append(def.Variables, v)
		case token.LPAREN:
			m := p.parseMethod(visibility)
			if m == nil {
				return nil
			}
			def.Methods = append(def.Methods, m)
		case token.CLASS:
			inner := p.parseClassDefinition(0)
			if inner == nil {
				return nil
			}
			def.Classes = append(def.Classes, inner)
		case token.IDENT:
			if f, ok := classModifier(p.curToken); ok && p.classAhead() {
				inner := p.parseModifiedClass(f)
				if inner == nil {
					return nil
				}
				def.Classes = append(def.Classes, inner)
				continue
			}
			fallthrough
		default:
			p.errorAt(p.curToken, "unexpected %s in class %s", describe(p.curToken), def.Name)
			return nil
		}
	}
}

// parseClassVariable parses `@x`, `@x, @rw`, `@@count = 0, @r`.
func (p *Parser) parseClassVariable(visibility scope.Flags) node.Node {
	tok := p.curToken
	flags := scope.Instance | visibility
	if tok.Type == token.CVAR {
		flags = scope.Meta | visibility
	}
	id := ast.NewIdentifier(tok.Literal.(string), flags)
	p.at(id, tok)

	var value node.Node
	if p.peekTokenIs(token.ASSIGN) {
		p.nextToken()
		p.nextToken()
		if value = p.parseExpression(LOWEST); value == nil {
			return nil
		}
	}
	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		if !p.expectPeek(token.IVAR) {
			return nil
		}
		switch p.curToken.Literal.(string) {
		case "r":
			id.Flags |= scope.Reader
		case "w":
			id.Flags |= scope.Writer
		case "rw":
			id.Flags |= scope.Reader | scope.Writer
		default:
			p.errorAt(p.curToken, "unknown accessor %s", p.curToken.Lexeme)
			return nil
		}
	}
	return p.at(ast.NewAssignment(id, value, 0), tok)
}

// parseMethod parses
//
//	(@) name { }
//	(@@) key: _a other: _b #const, #synchronized { }
//	(@) #operator(+): _other { }
func (p *Parser) parseMethod(visibility scope.Flags) node.Node {
	tok := p.curToken
	flags := scope.Method | visibility
	switch p.peekToken.Type {
	case token.AT:
	case token.ATAT:
		flags |= scope.Meta
	default:
		p.peekError(token.AT)
		return nil
	}
	p.nextToken()
	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	var (
		name string
		args []string
	)
	p.nextToken()
	switch p.curToken.Type {
	case token.IDENT:
		name = p.curToken.Literal.(string)
	case token.KEYWORD:
		var b strings.Builder
		for p.curTokenIs(token.KEYWORD) {
			b.WriteString(p.curToken.Literal.(string))
			if !p.expectPeek(token.IDENT) {
				return nil
			}
			args = append(args, p.curToken.Literal.(string))
			if !p.peekTokenIs(token.KEYWORD) {
				break
			}
			p.nextToken()
		}
		name = b.String()
	case token.SYMBOL:
		var ok bool
		if name, ok = p.parseOperatorSelector(); !ok {
			return nil
		}
		if strings.HasSuffix(name, ":") {
			if !p.expectPeek(token.IDENT) {
				return nil
			}
			args = append(args, p.curToken.Literal.(string))
		}
	default:
		p.errorAt(p.curToken, "expected a method name, got %s", describe(p.curToken))
		return nil
	}

	// modifiers: #const, #synchronized
	p.skipNewlines()
	for p.peekTokenIs(token.SYMBOL) {
		p.nextToken()
		modifier, ok := methodModifiers[p.curToken.Literal.(string)]
		if !ok {
			p.errorAt(p.curToken, "unknown method modifier %s", p.curToken.Lexeme)
			return nil
		}
		flags |= modifier
		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
		}
		p.skipNewlines()
	}

	header := ast.NewMethodHeader(name, args, flags)
	p.at(header, tok)
	body := p.parseBody()
	if body == nil {
		return nil
	}
	return p.at(ast.NewGraphDataPair(header, body), tok)
}

// parseOperatorSelector reads #operator(+): or #prefixOperator(-) where
// curToken is the symbol.
func (p *Parser) parseOperatorSelector() (string, bool) {
	kind := p.curToken.Literal.(string)
	if kind != "operator" && kind != "prefixOperator" {
		p.errorAt(p.curToken, "expected #operator or #prefixOperator, got %s", p.curToken.Lexeme)
		return "", false
	}
	if !p.expectPeek(token.LPAREN) {
		return "", false
	}
	var b strings.Builder
	b.WriteString("#" + kind + "(")
	// () and [] are operators themselves; read up to the balancing paren
	depth := 0
	for {
		p.nextToken()
		switch p.curToken.Type {
		case token.EOF, token.NEWLINE:
			p.errorAt(p.curToken, "unterminated operator name")
			return "", false
		case token.LPAREN:
			depth++
		case token.RPAREN:
			if depth == 0 {
				b.WriteString(")")
				if p.peekTokenIs(token.COLON) {
					p.nextToken()
					b.WriteString(":")
				}
				return b.String(), true
			}
			depth--
		}
		b.WriteString(p.curToken.Lexeme)
	}
}
