package lexer_test

import (
	"testing"

	"github.com/funvibe/taffy/internal/lexer"
	"github.com/funvibe/taffy/internal/token"
)

func types(input string) []token.TokenType {
	var out []token.TokenType
	for _, tok := range lexer.New(input).Tokens() {
		out = append(out, tok.Type)
	}
	return out
}

func expectTypes(t *testing.T, input string, want ...token.TokenType) {
	t.Helper()
	want = append(want, token.EOF)
	got := types(input)
	if len(got) != len(want) {
		t.Fatalf("%q: got %v, want %v", input, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%q: token %d is %s, want %s (all: %v)", input, i, got[i], want[i], got)
		}
	}
}

func TestOperators(t *testing.T) {
	expectTypes(t, "a += 1",
		token.IDENT, token.ASSIGN_OP, token.NUMBER)
	expectTypes(t, "a <<= b >> c",
		token.IDENT, token.ASSIGN_OP, token.IDENT, token.RSHIFT, token.IDENT)
	expectTypes(t, "x ^^ y ^ z ^^= 1",
		token.IDENT, token.CARET_CARET, token.IDENT, token.CARET, token.IDENT, token.ASSIGN_OP, token.NUMBER)
	expectTypes(t, "a == b != c <= d >= e",
		token.IDENT, token.EQ, token.IDENT, token.NOT_EQ, token.IDENT, token.LTE, token.IDENT, token.GTE, token.IDENT)
	expectTypes(t, "i++ j-- n! ~m",
		token.IDENT, token.INCREMENT, token.IDENT, token.DECREMENT, token.IDENT, token.BANG, token.TILDE, token.IDENT)
	expectTypes(t, "(1 => 2)",
		token.LPAREN, token.NUMBER, token.FAT_ARROW, token.NUMBER, token.RPAREN)
	expectTypes(t, "a : b; c",
		token.IDENT, token.COLON, token.IDENT, token.SEMICOLON, token.IDENT)
}

func TestAssignOpLiteral(t *testing.T) {
	toks := lexer.New("a ^^= 2").Tokens()
	if toks[1].Literal != "^^" || toks[1].Lexeme != "^^=" {
		t.Fatalf("got %v", toks[1])
	}
}

func TestKeywordsAndNames(t *testing.T) {
	expectTypes(t, `[io put: x]`,
		token.LBRACKET, token.IDENT, token.KEYWORD, token.IDENT, token.RBRACKET)
	expectTypes(t, "if yes else no nil self upSelf super",
		token.IF, token.YES, token.ELSE, token.NO, token.NIL, token.SELF, token.UPSELF, token.SUPER)
	expectTypes(t, "@x @@y @ @@",
		token.IVAR, token.CVAR, token.AT, token.ATAT)
	expectTypes(t, "#foo #at:put:",
		token.SYMBOL, token.SYMBOL)

	toks := lexer.New("isEmpty? #at:put: @@count").Tokens()
	if toks[0].Literal != "isEmpty?" {
		t.Errorf("predicate name = %v", toks[0].Literal)
	}
	if toks[1].Literal != "at:put:" {
		t.Errorf("symbol = %v", toks[1].Literal)
	}
	if toks[2].Literal != "count" || toks[2].Lexeme != "@@count" {
		t.Errorf("class variable = %v", toks[2])
	}
}

func TestNumbers(t *testing.T) {
	tests := []string{"12", "0.5", "1e3", "2.5E-4", "0xFF"}
	for _, input := range tests {
		toks := lexer.New(input).Tokens()
		if toks[0].Type != token.NUMBER || toks[0].Literal != input {
			t.Errorf("%q lexed as %v", input, toks[0])
		}
	}
	// a dot not followed by a digit ends the number
	expectTypes(t, "1.x", token.NUMBER, token.DOT, token.IDENT)
}

func TestNewlineSignificance(t *testing.T) {
	expectTypes(t, "a\nb",
		token.IDENT, token.NEWLINE, token.IDENT)
	expectTypes(t, "f(a,\nb)",
		token.IDENT, token.LPAREN, token.IDENT, token.COMMA, token.IDENT, token.RPAREN)
	expectTypes(t, "[a\nb]",
		token.LBRACKET, token.IDENT, token.IDENT, token.RBRACKET)
	expectTypes(t, "{\na\n}",
		token.LBRACE, token.NEWLINE, token.IDENT, token.NEWLINE, token.RBRACE)
	expectTypes(t, "||1,\n2||",
		token.DOUBLE_PIPE, token.NUMBER, token.COMMA, token.NUMBER, token.DOUBLE_PIPE)
	expectTypes(t, "a = 1 + \\\n2",
		token.IDENT, token.ASSIGN, token.NUMBER, token.PLUS, token.NUMBER)
}

func TestComments(t *testing.T) {
	expectTypes(t, "a // trailing\nb",
		token.IDENT, token.NEWLINE, token.IDENT)
	expectTypes(t, "a ~( block\ncomment )~ b",
		token.IDENT, token.IDENT)
}

func TestStrings(t *testing.T) {
	toks := lexer.New(`"x #[a + "]"] y\t"`).Tokens()
	if toks[0].Type != token.STRING {
		t.Fatalf("got %v", toks[0])
	}
	parts := toks[0].Literal.([]token.StringPart)
	if len(parts) != 3 {
		t.Fatalf("parts = %+v", parts)
	}
	if parts[0].Text != "x " || parts[0].Code {
		t.Errorf("part 0 = %+v", parts[0])
	}
	if parts[1].Text != `a + "]"` || !parts[1].Code {
		t.Errorf("part 1 = %+v", parts[1])
	}
	if parts[2].Text != " y\t" || parts[2].Code {
		t.Errorf("part 2 = %+v", parts[2])
	}

	if toks := lexer.New(`""`).Tokens(); len(toks[0].Literal.([]token.StringPart)) != 0 {
		t.Errorf("empty string parts = %v", toks[0].Literal)
	}
	for _, bad := range []string{`"open`, `"#[1 + 2"`} {
		if tok := lexer.New(bad).NextToken(); tok.Type != token.ILLEGAL {
			t.Errorf("%q lexed as %v", bad, tok)
		}
	}
}

func TestPositions(t *testing.T) {
	toks := lexer.New("a\n  bc d").Tokens()
	want := [][2]int{{1, 1}, {1, 2}, {2, 3}, {2, 6}}
	for i, w := range want {
		if toks[i].Line != w[0] || toks[i].Column != w[1] {
			t.Errorf("token %d (%v) at %d:%d, want %d:%d", i, toks[i].Lexeme, toks[i].Line, toks[i].Column, w[0], w[1])
		}
	}
	if tok := lexer.NewAt("x", 7).NextToken(); tok.Line != 7 {
		t.Errorf("NewAt line = %d", tok.Line)
	}
}
