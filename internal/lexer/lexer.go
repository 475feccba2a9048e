package lexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/taffy/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int
	column       int

	// open delimiters; newlines only count as statement ends at the top
	// level or directly inside braces
	nesting []rune
}

func New(input string) *Lexer {
	return NewAt(input, 1)
}

// NewAt starts line numbering at line, for interpolated code fragments.
func NewAt(input string, line int) *Lexer {
	l := &Lexer{input: input, line: line}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	if l.readPosition >= len(l.input) {
		if l.ch != 0 || l.position < len(l.input) {
			l.column++
		}
		l.ch = 0
		l.position = len(l.input)
		l.readPosition = len(l.input)
		return
	}
	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) peekCharAt(offset int) rune {
	pos := l.readPosition
	for i := 0; i < offset; i++ {
		if pos >= len(l.input) {
			return 0
		}
		_, w := utf8.DecodeRuneInString(l.input[pos:])
		pos += w
	}
	if pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[pos:])
	return r
}

func (l *Lexer) open(r rune) { l.nesting = append(l.nesting, r) }

func (l *Lexer) close(r rune) {
	if n := len(l.nesting); n > 0 && l.nesting[n-1] == r {
		l.nesting = l.nesting[:n-1]
	}
}

func (l *Lexer) newlinesSignificant() bool {
	return len(l.nesting) == 0 || l.nesting[len(l.nesting)-1] == '{'
}

// Tokens lexes the whole input, ending with EOF.
func (l *Lexer) Tokens() []token.Token {
	var out []token.Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == token.EOF {
			return out
		}
	}
}

func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	line, col := l.line, l.column
	simple := func(t token.TokenType, lexeme string) token.Token {
		for i := 1; i < utf8.RuneCountInString(lexeme); i++ {
			l.readChar()
		}
		l.readChar()
		return token.Token{Type: t, Lexeme: lexeme, Literal: lexeme, Line: line, Column: col}
	}
	assignOp := func(op string) token.Token {
		tok := simple(token.ASSIGN_OP, op+"=")
		tok.Literal = op
		return tok
	}

	switch l.ch {
	case 0:
		return token.Token{Type: token.EOF, Line: line, Column: col}
	case '\n':
		return simple(token.NEWLINE, "\n")
	case '=':
		switch l.peekChar() {
		case '=':
			return simple(token.EQ, "==")
		case '>':
			return simple(token.FAT_ARROW, "=>")
		}
		return simple(token.ASSIGN, "=")
	case '+':
		switch l.peekChar() {
		case '+':
			return simple(token.INCREMENT, "++")
		case '=':
			return assignOp("+")
		}
		return simple(token.PLUS, "+")
	case '-':
		switch l.peekChar() {
		case '-':
			return simple(token.DECREMENT, "--")
		case '=':
			return assignOp("-")
		}
		return simple(token.MINUS, "-")
	case '*':
		if l.peekChar() == '=' {
			return assignOp("*")
		}
		return simple(token.ASTERISK, "*")
	case '/':
		if l.peekChar() == '=' {
			return assignOp("/")
		}
		return simple(token.SLASH, "/")
	case '%':
		if l.peekChar() == '=' {
			return assignOp("%")
		}
		return simple(token.PERCENT, "%")
	case '&':
		if l.peekChar() == '=' {
			return assignOp("&")
		}
		return simple(token.AMPERSAND, "&")
	case '|':
		switch l.peekChar() {
		case '|':
			if n := len(l.nesting); n > 0 && l.nesting[n-1] == '|' {
				l.close('|')
			} else {
				l.open('|')
			}
			return simple(token.DOUBLE_PIPE, "||")
		case '=':
			return assignOp("|")
		}
		return simple(token.PIPE, "|")
	case '^':
		switch l.peekChar() {
		case '{':
			l.open('{')
			return simple(token.CARET_LB, "^{")
		case '^':
			if l.peekCharAt(1) == '=' {
				return assignOp("^^")
			}
			return simple(token.CARET_CARET, "^^")
		case '=':
			return assignOp("^")
		}
		return simple(token.CARET, "^")
	case '<':
		switch l.peekChar() {
		case '<':
			if l.peekCharAt(1) == '=' {
				return assignOp("<<")
			}
			return simple(token.LSHIFT, "<<")
		case '=':
			return simple(token.LTE, "<=")
		}
		return simple(token.LT, "<")
	case '>':
		switch l.peekChar() {
		case '>':
			if l.peekCharAt(1) == '=' {
				return assignOp(">>")
			}
			return simple(token.RSHIFT, ">>")
		case '=':
			return simple(token.GTE, ">=")
		}
		return simple(token.GT, ">")
	case '!':
		if l.peekChar() == '=' {
			return simple(token.NOT_EQ, "!=")
		}
		return simple(token.BANG, "!")
	case '~':
		return simple(token.TILDE, "~")
	case ',':
		return simple(token.COMMA, ",")
	case '.':
		return simple(token.DOT, ".")
	case ';':
		return simple(token.SEMICOLON, ";")
	case ':':
		return simple(token.COLON, ":")
	case '(':
		l.open('(')
		return simple(token.LPAREN, "(")
	case ')':
		l.close('(')
		return simple(token.RPAREN, ")")
	case '[':
		l.open('[')
		return simple(token.LBRACKET, "[")
	case ']':
		l.close('[')
		return simple(token.RBRACKET, "]")
	case '{':
		l.open('{')
		return simple(token.LBRACE, "{")
	case '}':
		l.close('{')
		return simple(token.RBRACE, "}")
	case '"':
		return l.readString(line, col)
	case '@':
		return l.readAt(line, col)
	case '#':
		if isLetter(l.peekChar()) {
			l.readChar()
			name := l.readWhile(func(r rune) bool { return isLetter(r) || isDigit(r) || r == ':' })
			return token.Token{Type: token.SYMBOL, Lexeme: "#" + name, Literal: name, Line: line, Column: col}
		}
	}

	if isLetter(l.ch) {
		ident := l.readIdentifier()
		if l.ch == ':' && l.peekChar() != '=' {
			l.readChar()
			return token.Token{Type: token.KEYWORD, Lexeme: ident + ":", Literal: ident + ":", Line: line, Column: col}
		}
		return token.Token{Type: token.LookupIdent(ident), Lexeme: ident, Literal: ident, Line: line, Column: col}
	}
	if isDigit(l.ch) {
		num := l.readNumber()
		return token.Token{Type: token.NUMBER, Lexeme: num, Literal: num, Line: line, Column: col}
	}

	tok := token.Token{Type: token.ILLEGAL, Lexeme: string(l.ch), Literal: string(l.ch), Line: line, Column: col}
	l.readChar()
	return tok
}

func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '\n' && !l.newlinesSignificant():
			l.readChar()
		case l.ch == '\\' && (l.peekChar() == '\n' || l.peekChar() == '\r'):
			l.readChar()
			for l.ch == '\r' || l.ch == '\n' {
				done := l.ch == '\n'
				l.readChar()
				if done {
					break
				}
			}
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '~' && l.peekChar() == '(':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == ')' && l.peekChar() == '~') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readWhile(pred func(rune) bool) string {
	start := l.position
	for pred(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readIdentifier reads a name; a trailing ? is part of predicate names
// such as isEmpty?.
func (l *Lexer) readIdentifier() string {
	start := l.position
	l.readWhile(func(r rune) bool { return isLetter(r) || isDigit(r) })
	if l.ch == '?' {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readNumber() string {
	start := l.position
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		l.readWhile(isHexDigit)
		return l.input[start:l.position]
	}
	l.readWhile(isDigit)
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		l.readWhile(isDigit)
	}
	if (l.ch == 'e' || l.ch == 'E') &&
		(isDigit(l.peekChar()) || ((l.peekChar() == '-' || l.peekChar() == '+') && isDigit(l.peekCharAt(1)))) {
		l.readChar()
		if l.ch == '-' || l.ch == '+' {
			l.readChar()
		}
		l.readWhile(isDigit)
	}
	return l.input[start:l.position]
}

func (l *Lexer) readAt(line, col int) token.Token {
	l.readChar()
	if l.ch == '@' {
		l.readChar()
		if isLetter(l.ch) {
			name := l.readIdentifier()
			return token.Token{Type: token.CVAR, Lexeme: "@@" + name, Literal: name, Line: line, Column: col}
		}
		return token.Token{Type: token.ATAT, Lexeme: "@@", Literal: "@@", Line: line, Column: col}
	}
	if isLetter(l.ch) {
		name := l.readIdentifier()
		return token.Token{Type: token.IVAR, Lexeme: "@" + name, Literal: name, Line: line, Column: col}
	}
	return token.Token{Type: token.AT, Lexeme: "@", Literal: "@", Line: line, Column: col}
}

// readString reads a double-quoted literal. Interpolated #[...] code is
// kept as source text in a separate part; \#[ escapes it.
func (l *Lexer) readString(line, col int) token.Token {
	start := l.position
	var (
		parts []token.StringPart
		text  strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, token.StringPart{Text: text.String(), Line: line})
			text.Reset()
		}
	}
	l.readChar()
	for {
		switch {
		case l.ch == 0:
			return token.Token{Type: token.ILLEGAL, Lexeme: l.input[start:l.position],
				Literal: "unterminated string", Line: line, Column: col}
		case l.ch == '"':
			l.readChar()
			flush()
			return token.Token{Type: token.STRING, Lexeme: l.input[start:l.position], Literal: parts, Line: line, Column: col}
		case l.ch == '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				text.WriteRune('\n')
			case 't':
				text.WriteRune('\t')
			case 'r':
				text.WriteRune('\r')
			case '0':
				text.WriteRune(0)
			case 0:
				continue
			default:
				text.WriteRune(l.ch)
			}
			l.readChar()
		case l.ch == '#' && l.peekChar() == '[':
			flush()
			codeLine := l.line
			l.readChar()
			l.readChar()
			code, ok := l.readInterpolation()
			if !ok {
				return token.Token{Type: token.ILLEGAL, Lexeme: l.input[start:l.position],
					Literal: "unterminated interpolation", Line: line, Column: col}
			}
			parts = append(parts, token.StringPart{Text: code, Code: true, Line: codeLine})
		default:
			text.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readInterpolation reads up to the ] that closes a #[ and consumes it.
func (l *Lexer) readInterpolation() (string, bool) {
	start := l.position
	depth := 0
	for l.ch != 0 {
		switch l.ch {
		case '[':
			depth++
		case ']':
			if depth == 0 {
				code := l.input[start:l.position]
				l.readChar()
				return code, true
			}
			depth--
		case '"':
			l.readChar()
			for l.ch != '"' && l.ch != 0 {
				if l.ch == '\\' {
					l.readChar()
				}
				l.readChar()
			}
		}
		l.readChar()
	}
	return "", false
}

func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isDigit(ch rune) bool { return '0' <= ch && ch <= '9' }

func isHexDigit(ch rune) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
