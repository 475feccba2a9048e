package token

import "fmt"

type TokenType string

const (
	ILLEGAL TokenType = "ILLEGAL"
	EOF     TokenType = "EOF"
	NEWLINE TokenType = "NEWLINE"

	IDENT    TokenType = "IDENT"    // foo
	IVAR     TokenType = "IVAR"     // @foo
	CVAR     TokenType = "CVAR"     // @@foo
	KEYWORD  TokenType = "KEYWORD"  // put:
	NUMBER   TokenType = "NUMBER"   // 12, 0.5, 1e3
	STRING   TokenType = "STRING"   // "a #[b] c"
	SYMBOL   TokenType = "SYMBOL"   // #foo
	AT       TokenType = "AT"       // @
	ATAT     TokenType = "ATAT"     // @@
	CARET_LB TokenType = "CARET_LB" // ^{

	ASSIGN      TokenType = "="
	ASSIGN_OP   TokenType = "OP=" // +=, -=, <<=, ...
	PLUS        TokenType = "+"
	MINUS       TokenType = "-"
	ASTERISK    TokenType = "*"
	SLASH       TokenType = "/"
	CARET       TokenType = "^"
	CARET_CARET TokenType = "^^"
	PERCENT     TokenType = "%"
	AMPERSAND   TokenType = "&"
	PIPE        TokenType = "|"
	DOUBLE_PIPE TokenType = "||"
	LSHIFT      TokenType = "<<"
	RSHIFT      TokenType = ">>"
	EQ          TokenType = "=="
	NOT_EQ      TokenType = "!="
	LT          TokenType = "<"
	LTE         TokenType = "<="
	GT          TokenType = ">"
	GTE         TokenType = ">="
	BANG        TokenType = "!"
	TILDE       TokenType = "~"
	INCREMENT   TokenType = "++"
	DECREMENT   TokenType = "--"
	FAT_ARROW   TokenType = "=>"
	COMMA       TokenType = ","
	DOT         TokenType = "."
	SEMICOLON   TokenType = ";"
	COLON       TokenType = ":"
	LPAREN      TokenType = "("
	RPAREN      TokenType = ")"
	LBRACKET    TokenType = "["
	RBRACKET    TokenType = "]"
	LBRACE      TokenType = "{"
	RBRACE      TokenType = "}"

	CLASS        TokenType = "CLASS"
	NEW          TokenType = "NEW"
	IF           TokenType = "IF"
	ELSE         TokenType = "ELSE"
	WHILE        TokenType = "WHILE"
	FOR          TokenType = "FOR"
	TRY          TokenType = "TRY"
	CATCH        TokenType = "CATCH"
	THROW        TokenType = "THROW"
	RETURN       TokenType = "RETURN"
	BREAK        TokenType = "BREAK"
	EXIT         TokenType = "EXIT"
	SYNCHRONIZED TokenType = "SYNCHRONIZED"
	GLOBAL       TokenType = "GLOBAL"
	CONST        TokenType = "CONST"
	PACKAGE      TokenType = "PACKAGE"
	IMPORT       TokenType = "IMPORT"
	SELF         TokenType = "SELF"
	UPSELF       TokenType = "UPSELF"
	SUPER        TokenType = "SUPER"
	YES          TokenType = "YES"
	NO           TokenType = "NO"
	NIL          TokenType = "NIL"
	AND          TokenType = "AND"
	OR           TokenType = "OR"
	IN           TokenType = "IN"
)

var keywords = map[string]TokenType{
	"class":        CLASS,
	"new":          NEW,
	"if":           IF,
	"else":         ELSE,
	"while":        WHILE,
	"for":          FOR,
	"try":          TRY,
	"catch":        CATCH,
	"throw":        THROW,
	"return":       RETURN,
	"break":        BREAK,
	"exit":         EXIT,
	"synchronized": SYNCHRONIZED,
	"global":       GLOBAL,
	"const":        CONST,
	"package":      PACKAGE,
	"import":       IMPORT,
	"self":         SELF,
	"upSelf":       UPSELF,
	"super":        SUPER,
	"yes":          YES,
	"true":         YES,
	"no":           NO,
	"false":        NO,
	"nil":          NIL,
	"and":          AND,
	"or":           OR,
	"in":           IN,
}

// LookupIdent returns the keyword type for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// StringPart is one piece of a string literal: either literal text or
// the source of an interpolated #[...] expression.
type StringPart struct {
	Text string
	Code bool
	Line int
}

type Token struct {
	Type    TokenType
	Lexeme  string
	Literal interface{}
	Line    int
	Column  int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Lexeme, t.Line, t.Column)
}
