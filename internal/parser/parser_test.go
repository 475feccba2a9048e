package parser_test

import (
	"strings"
	"testing"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/config"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/parser"
	"github.com/funvibe/taffy/internal/scope"
)

func parse(t *testing.T, input string) []node.Node {
	t.Helper()
	tree, err := parser.ParseString(input, "test.ty", nil)
	if err != nil {
		t.Fatalf("ParseString(%q): %v", input, err)
	}
	return tree.Statements().Items
}

func single(t *testing.T, input string) node.Node {
	t.Helper()
	stmts := parse(t, input)
	if len(stmts) != 1 {
		t.Fatalf("%q: got %d statements, want 1", input, len(stmts))
	}
	return stmts[0]
}

func literal(t *testing.T, n node.Node) node.Node {
	t.Helper()
	c, ok := n.(*ast.Class)
	if !ok {
		t.Fatalf("expected a literal, got %T (%s)", n, n)
	}
	return c.Object
}

func TestInterpolatedString(t *testing.T) {
	obj := literal(t, single(t, `"1+1 is #[1 + 1]"`))
	parts, ok := obj.(*node.List)
	if !ok || parts.Len() != 2 {
		t.Fatalf("parts = %T %v", obj, obj)
	}
	if s, ok := parts.Items[0].(*node.String); !ok || s.Value != "1+1 is " {
		t.Fatalf("literal part = %v", parts.Items[0])
	}
	fa, ok := parts.Items[1].(*ast.FlatArithmetic)
	if !ok || fa.Operator != ast.OpAdd || len(fa.Values) != 2 {
		t.Fatalf("code part = %T %v", parts.Items[1], parts.Items[1])
	}
	for _, v := range fa.Values {
		if got := literal(t, v).String(); got != "1" {
			t.Fatalf("operand = %s", got)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	obj := literal(t, single(t, `"a\#[b] \"q\"\n"`))
	s, ok := obj.(*node.String)
	if !ok || s.Value != "a#[b] \"q\"\n" {
		t.Fatalf("string = %T %q", obj, obj)
	}
}

func TestFlatArithmetic(t *testing.T) {
	tests := []struct {
		input   string
		op      ast.Operator
		values  int
		grouped bool
	}{
		{"1 + 2 + 3", ast.OpAdd, 3, false},
		{"1 - 2 - 3 - 4", ast.OpSubtract, 4, false},
		{"(1 + 2) + 3", ast.OpAdd, 2, false},
		{"(1 + 2 + 3)", ast.OpAdd, 3, true},
		{"2 ^ 3 ^ 4", ast.OpRaise, 3, false},
		{"1 + 2 * 3 + 4", ast.OpAdd, 3, false},
		{"1 << 2", ast.OpLeftShift, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			fa, ok := single(t, tt.input).(*ast.FlatArithmetic)
			if !ok {
				t.Fatalf("not flat arithmetic")
			}
			if fa.Operator != tt.op || len(fa.Values) != tt.values || fa.Grouped != tt.grouped {
				t.Fatalf("got %s with %d values grouped=%v", fa.Operator, len(fa.Values), fa.Grouped)
			}
		})
	}
}

func TestMessageSends(t *testing.T) {
	tests := []struct {
		input string
		name  string
		args  int
	}{
		{`[io put: "x"]`, "put:", 1},
		{`io put: "x"`, "put:", 1},
		{`Test initializeIt`, "initializeIt", 0},
		{`[a at: 1 put: 2]`, "at:put:", 2},
		{`[self foo]`, "foo", 0},
		{`[super init]`, "init", 0},
		{`kernel assert: ([Test x] == 2)`, "assert:", 1},
		{`a += 3`, "#operator(+=):", 1},
		{`a <<= 3`, "#operator(<<=):", 1},
		{`a[1] = 2`, config.IndexSetMethodName, 2},
		{`a[1]`, config.IndexMethodName, 1},
		{`f(1, 2)`, config.CallMethodName, 2},
		{`a == b`, config.EqualsMethodName, 1},
		{`x++`, "#operator(++)", 0},
		{`-x`, "#prefixOperator(-)", 0},
		{`[org.taffy.core.Number zero]`, "zero", 0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, ok := single(t, tt.input).(*ast.MethodCall)
			if !ok {
				t.Fatalf("not a method call")
			}
			if m.Name != tt.name || len(m.Arguments) != tt.args {
				t.Fatalf("got %s with %d args", m.Name, len(m.Arguments))
			}
		})
	}
}

func TestQualifiedReceiver(t *testing.T) {
	m := single(t, `[org.taffy.core.Number zero]`).(*ast.MethodCall)
	if id, ok := m.Receiver.(*ast.Identifier); !ok || id.Name != "org.taffy.core.Number" {
		t.Fatalf("receiver = %v", m.Receiver)
	}
}

func TestLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"[1, 2, 3]", "[1, 2, 3]"},
		{"[]", "[]"},
		{"[7]", "[7]"},
		{"||1, 2; 3, 4||", "||1, 2; 3, 4||"},
		{"-5", "-5"},
		{"0.25", "0.25"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := literal(t, single(t, tt.input)).String(); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}

	hash := literal(t, single(t, "(1 => 2, 3 => 4)")).(*node.List)
	if hash.Len() != 2 || !ast.Is(hash.Items[0], ast.GraphPair) {
		t.Fatalf("hash = %v", hash)
	}
	block := literal(t, single(t, "^{ <a, b> a + b }")).(*node.Pair)
	if block.Left.String() != "[a, b]" || block.Right.(*ast.List).Len() != 1 {
		t.Fatalf("block = %v", block)
	}
	if sym := single(t, "#foo").(*ast.Symbol); sym.Name != "foo" {
		t.Fatalf("symbol = %v", sym)
	}
}

func TestAssignments(t *testing.T) {
	a := single(t, "global const x = 5").(*ast.Assignment)
	if !a.Flags.Has(scope.Global) || !a.Flags.Has(scope.Constant) {
		t.Fatalf("flags = %s", a.Flags)
	}
	iv := single(t, "@value = 1").(*ast.Assignment)
	if id := iv.Identifier.(*ast.Identifier); !id.Flags.Has(scope.Instance) || id.Name != "value" {
		t.Fatalf("identifier = %v", id)
	}

	fn := single(t, "f(x) = x * 2").(*ast.Assignment)
	if fn.Identifier.(*ast.Identifier).Name != "f" {
		t.Fatalf("function name = %v", fn.Identifier)
	}
	if args := literal(t, fn.Value).(*node.Pair).Left.String(); args != "[x]" {
		t.Fatalf("function args = %s", args)
	}

	up := single(t, "f(0) = 1").(*ast.FunctionUpdate)
	if len(up.Arguments) != 1 || up.Identifier.(*ast.Identifier).Name != "f" {
		t.Fatalf("function update = %v", up)
	}
}

func TestControlFlow(t *testing.T) {
	stmt := single(t, "if (a) { b } else if (c) { d }\nelse\n{ e }")
	first := stmt.(*ast.If)
	second, ok := first.Next.(*ast.If)
	if !ok || second.Condition == nil {
		t.Fatalf("else if = %v", first.Next)
	}
	last, ok := second.Next.(*ast.If)
	if !ok || last.Condition != nil || last.Next != nil {
		t.Fatalf("else = %v", second.Next)
	}

	loop := single(t, "for (i = 0; i < 10; i++) { total += i }").(*ast.For)
	if loop.Initial == nil || loop.Condition == nil || loop.Increment == nil {
		t.Fatalf("for = %v", loop)
	}
	empty := single(t, "for (;;) { break }").(*ast.For)
	if empty.Initial != nil || empty.Condition != nil || empty.Increment != nil {
		t.Fatalf("empty for = %v", empty)
	}

	try := single(t, "try { a = 1 } catch (Exception e) { io put: \"oh dear\" } catch (e) { }").(*ast.TryBlock)
	if len(try.Catches) != 2 {
		t.Fatalf("catches = %d", len(try.Catches))
	}
	if c := try.Catches[0].(*ast.CatchBlock); c.Name != "e" || c.Type.(*ast.Identifier).Name != "Exception" {
		t.Fatalf("typed catch = %v", c)
	}
	if c := try.Catches[1].(*ast.CatchBlock); c.Type != nil {
		t.Fatalf("untyped catch = %v", c)
	}

	if _, ok := single(t, "while (x < 3) { x++ }").(*ast.While); !ok {
		t.Fatal("while")
	}
	if _, ok := single(t, "synchronized (x) { x++ }").(*ast.Synchronized); !ok {
		t.Fatal("synchronized")
	}
	if in, ok := single(t, "x in [1, 2]").(*ast.In); !ok || len(in.Values) != 2 {
		t.Fatal("in")
	}
	if _, ok := single(t, "a != b").(*ast.NotEqualCall); !ok {
		t.Fatal("not equal")
	}
	if _, ok := single(t, "a and b or c").(*ast.Or); !ok {
		t.Fatal("or binds looser than and")
	}
}

func TestPackageAndImport(t *testing.T) {
	stmts := parse(t, "package org.taffy.tests\nimport org.taffy.core.*\nimport a.B")
	if p := stmts[0].(*ast.Package); p.Name() != "org.taffy.tests" {
		t.Fatalf("package = %v", p)
	}
	if i := stmts[1].(*ast.Import); !i.Wild || i.Name() != "org.taffy.core" {
		t.Fatalf("import = %v", i)
	}
	if i := stmts[2].(*ast.Import); i.Wild || i.Name() != "a.B" {
		t.Fatalf("import = %v", i)
	}
}

const testClass = `
abstract class Test(Base)
{
    @@x, @rw;
    @value = 3, @r
    @protected
    @hidden

    (@@) initializeIt
    {
        @@x = 0
    }

    (@) at: _index put: _value
    #synchronized,
    #const
    {
        return (_value)
    }

    (@) #operator(+): _other { return 1 }
    (@) #operator([]=): _index { }

    class Inner {}
}
`

func TestClassDefinition(t *testing.T) {
	def, ok := single(t, testClass).(*ast.ClassDefinition)
	if !ok {
		t.Fatal("not a class definition")
	}
	if def.Name != "Test" || def.Super != "Base" || !def.Flags.Has(ast.ClassAbstract) {
		t.Fatalf("class = %s(%s) %v", def.Name, def.Super, def.Flags)
	}
	if len(def.Variables) != 3 || len(def.Methods) != 4 || len(def.Classes) != 1 {
		t.Fatalf("variables=%d methods=%d classes=%d", len(def.Variables), len(def.Methods), len(def.Classes))
	}

	x := def.Variables[0].(*ast.Assignment).Identifier.(*ast.Identifier)
	if !x.Flags.Has(scope.Meta | scope.Reader | scope.Writer) {
		t.Fatalf("@@x flags = %s", x.Flags)
	}
	value := def.Variables[1].(*ast.Assignment)
	if value.Value == nil || !value.Identifier.(*ast.Identifier).Flags.Has(scope.Instance|scope.Reader) {
		t.Fatalf("@value = %v", value)
	}
	if !def.Variables[2].(*ast.Assignment).Identifier.(*ast.Identifier).Flags.Has(scope.Protected) {
		t.Fatal("@hidden is not protected")
	}

	headers := make([]*ast.MethodHeader, len(def.Methods))
	for i, m := range def.Methods {
		headers[i] = m.(*ast.GraphDataPair).Left.(*ast.MethodHeader)
	}
	if !headers[0].Flags.Has(scope.Meta) || headers[0].Name != "initializeIt" {
		t.Fatalf("meta method = %v %s", headers[0], headers[0].Flags)
	}
	if headers[1].Name != "at:put:" || len(headers[1].Arguments) != 2 ||
		!headers[1].Flags.Has(scope.Synchronized|scope.Const) {
		t.Fatalf("keyword method = %s %v %s", headers[1].Name, headers[1].Arguments, headers[1].Flags)
	}
	if headers[2].Name != "#operator(+):" || headers[2].Arguments[0] != "_other" {
		t.Fatalf("operator method = %s", headers[2].Name)
	}
	if headers[3].Name != config.IndexSetMethodName {
		t.Fatalf("index set method = %s", headers[3].Name)
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []string{
		"a = ",
		"[1, 2",
		`"unterminated`,
		"||1, 2; 3||",
		"class { }",
		"try { a }",
		"if a { b }",
		"5 = 3",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := parser.ParseString(input, "bad.ty", nil)
			if err == nil {
				t.Fatalf("no error for %q", input)
			}
			if !strings.Contains(err.Error(), "bad.ty:") {
				t.Fatalf("error without location: %v", err)
			}
		})
	}
}

func TestParsedTreeMarshallRoundTrip(t *testing.T) {
	sources := []string{
		testClass,
		"a = 1; a += 3; a += 0.1",
		"try { a = 1 } catch (Exception e) { io put: \"oh dear #[a]\" }",
		"x = ||1, 2; 3, 4||; y = (1 => [2, 3]); f(x) = x ^ 2; f(0) = 1",
		"for (i = 0; i < 3; i++) { if (i in [1]) { break } else { exit } }",
	}
	for _, src := range sources {
		tree, err := parser.ParseString(src, "rt.ty", nil)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		decoded, err := node.Unmarshall(node.Marshall(tree), nil)
		if err != nil {
			t.Fatalf("unmarshall %q: %v", src, err)
		}
		if !node.Equals(tree, decoded) {
			t.Fatalf("round trip differs:\n%s\n%s", tree, decoded)
		}
		if ast.PosOf(decoded) != ast.PosOf(tree) {
			t.Fatalf("position lost")
		}
	}
}

func FuzzParseString(f *testing.F) {
	f.Add(testClass)
	f.Add(`"#[1 + [a b: c]]"`)
	f.Add("||1,2;3,4|| ^{ <a> a } (1 => 2)")
	f.Add("~( comment )~ a = 1 // tail\n b = \\\n 2")
	f.Fuzz(func(t *testing.T, src string) {
		tree, err := parser.ParseString(src, "fuzz.ty", nil)
		if err == nil && tree == nil {
			t.Fatal("nil tree without error")
		}
	})
}
