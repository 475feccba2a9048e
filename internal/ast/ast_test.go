package ast_test

import (
	"errors"
	"testing"

	"github.com/funvibe/taffy/internal/ast"
	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/scope"
)

func num(s string) node.Node {
	n, ok := node.ParseNumber(s)
	if !ok {
		panic("bad number " + s)
	}
	return ast.NewClass(n)
}

func id(name string) *ast.Identifier { return ast.NewIdentifier(name, 0) }

func at(n node.Node, line uint32) node.Node {
	n.(interface{ SetPos(ast.Position) }).SetPos(ast.Position{Filename: "sample.ty", Line: line})
	return n
}

// samples holds one value of every graph kind.
func samples() map[ast.GraphKind]node.Node {
	call := ast.NewMethodCall(id("io"), "put:", ast.NewClass(node.NewString("x")))
	header := ast.NewMethodHeader("at:put:", []string{"_index", "_value"}, scope.Method|scope.Synchronized)
	body := ast.NewList(ast.NewReturn(id("_value")))
	catch := ast.NewCatchBlock(id("Exception"), "e", ast.NewList(call))
	return map[ast.GraphKind]node.Node{
		ast.GraphAnd:            ast.NewAnd(&ast.True{}, &ast.False{}),
		ast.GraphAssignment:     ast.NewAssignment(ast.NewIdentifier("x", scope.Instance), num("4.1"), scope.Constant),
		ast.GraphBreak:          &ast.Break{},
		ast.GraphCatchBlock:     catch,
		ast.GraphClass:          num("-3"),
		ast.GraphExit:           &ast.Exit{},
		ast.GraphFalse:          &ast.False{},
		ast.GraphFlatArithmetic: ast.NewFlatArithmetic(ast.OpRaise, num("2"), id("a"), num("4")),
		ast.GraphFor: ast.NewFor(ast.NewAssignment(id("i"), num("0"), 0),
			ast.NewMethodCall(id("i"), "#operator(<):", num("3")), ast.NewMethodCall(id("i"), "#operator(++)"),
			ast.NewList(&ast.Break{})),
		ast.GraphFunctionUpdate: ast.NewFunctionUpdate(id("f"), []node.Node{num("0")}, num("1")),
		ast.GraphList:           ast.NewList(&ast.Nil{}, &ast.Self{}),
		ast.GraphNode:           ast.NewGraphDataNode(node.NewString("raw")),
		ast.GraphPair:           ast.NewGraphDataPair(header, body),
		ast.GraphTree:           ast.NewTree(ast.NewList(call)),
		ast.GraphIdentifier:     ast.NewIdentifier("count", scope.Meta|scope.Reader),
		ast.GraphIf: ast.NewIf(&ast.True{}, ast.NewList(call),
			ast.NewIf(nil, ast.NewList(&ast.Exit{}), nil)),
		ast.GraphImport:       ast.NewImport([]string{"org", "taffy", "core"}, true),
		ast.GraphIn:           ast.NewIn(id("x"), []node.Node{num("1"), num("2")}),
		ast.GraphMethodCall:   call,
		ast.GraphMethodHeader: header,
		ast.GraphNew:          ast.NewNew(id("Test")),
		ast.GraphNil:          &ast.Nil{},
		ast.GraphNotEqualCall: ast.NewNotEqualCall(ast.NewMethodCall(id("a"), "#operator(==):", id("b"))),
		ast.GraphOr:           ast.NewOr(id("a"), &ast.UpSelf{}),
		ast.GraphPackage:      ast.NewPackage("org", "taffy", "tests"),
		ast.GraphReturn:       ast.NewReturn(nil),
		ast.GraphSelf:         &ast.Self{},
		ast.GraphSuper:        &ast.Super{},
		ast.GraphSymbol:       ast.NewSymbol("foo"),
		ast.GraphSynchronized: ast.NewSynchronized(id("m"), ast.NewList(call)),
		ast.GraphThrow:        ast.NewThrow(ast.NewNew(id("Exception"))),
		ast.GraphTrue:         &ast.True{},
		ast.GraphTryBlock:     ast.NewTryBlock(ast.NewList(ast.NewAssignment(id("a"), num("1"), 0)), catch),
		ast.GraphUpSelf:       &ast.UpSelf{},
		ast.GraphWhile:        ast.NewWhile(&ast.False{}, ast.NewList()),
		ast.GraphClassDefinition: &ast.ClassDefinition{
			Package:   "org.taffy.tests",
			Name:      "Test",
			Super:     "Object",
			Flags:     ast.ClassAbstract,
			Variables: []node.Node{ast.NewAssignment(ast.NewIdentifier("x", scope.Meta|scope.Reader), num("1"), 0)},
			Methods:   []node.Node{ast.NewGraphDataPair(header, body)},
			Classes:   []node.Node{&ast.ClassDefinition{Name: "Inner"}},
		},
	}
}

func TestSamplesCoverEveryKind(t *testing.T) {
	s := samples()
	for k := ast.GraphKind(0); k < ast.GraphLast; k++ {
		n, ok := s[k]
		if !ok {
			t.Errorf("no sample for %s", k)
			continue
		}
		if got := ast.KindOf(n); got != k {
			t.Errorf("sample for %s has kind %s", k, got)
		}
	}
}

func TestMarshallRoundTrip(t *testing.T) {
	for k, original := range samples() {
		t.Run(k.String(), func(t *testing.T) {
			at(original, 42)
			decoded, err := node.Unmarshall(node.Marshall(original), nil)
			if err != nil {
				t.Fatalf("Unmarshall: %v", err)
			}
			if got := node.Compare(original, decoded); got != node.Equal {
				t.Fatalf("Compare = %s\noriginal %s\ndecoded  %s", got, original, decoded)
			}
			if pos := ast.PosOf(decoded); pos.Line != 42 || pos.Filename != "sample.ty" {
				t.Fatalf("position = %s", pos)
			}
		})
	}
}

func TestUnmarshallTruncated(t *testing.T) {
	for k, original := range samples() {
		t.Run(k.String(), func(t *testing.T) {
			data := node.Marshall(original)
			for n := 0; n < len(data); n++ {
				decoded, err := node.Unmarshall(data[:n], nil)
				if err == nil {
					t.Fatalf("truncation to %d of %d bytes decoded %v", n, len(data), decoded)
				}
				if !errors.Is(err, node.ErrUnmarshall) {
					t.Fatalf("error %v does not wrap ErrUnmarshall", err)
				}
			}
		})
	}
}

func TestUnmarshallRejectsIllTyped(t *testing.T) {
	enc := func(f func(e *node.Encoder)) []byte {
		e := node.NewEncoder()
		f(e)
		return e.Bytes()
	}
	begin := func(e *node.Encoder, k ast.GraphKind) {
		e.Write("uuXw", uint8(node.KindGraphData), uint8(k), "", uint32(1))
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"unknown graph kind", enc(func(e *node.Encoder) { begin(e, ast.GraphLast) })},
		{"flat arithmetic with one value", enc(func(e *node.Encoder) {
			begin(e, ast.GraphFlatArithmetic)
			e.Write("ulb", uint8(ast.OpAdd), []node.Node{num("1")}, false)
		})},
		{"flat arithmetic with comparison", enc(func(e *node.Encoder) {
			begin(e, ast.GraphFlatArithmetic)
			e.Write("ulb", uint8(ast.OpEquals), []node.Node{num("1"), num("2")}, false)
		})},
		{"assignment to a string", enc(func(e *node.Encoder) {
			begin(e, ast.GraphAssignment)
			e.Write("wnn", uint32(0), node.NewString("x"), nil)
		})},
		{"throw nothing", enc(func(e *node.Encoder) {
			begin(e, ast.GraphThrow)
			e.Write("n", nil)
		})},
		{"method call without name", enc(func(e *node.Encoder) {
			begin(e, ast.GraphMethodCall)
			e.Write("nXl", nil, "", []node.Node(nil))
		})},
		{"new of a number", enc(func(e *node.Encoder) {
			begin(e, ast.GraphNew)
			e.Write("n", num("1"))
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if n, err := node.Unmarshall(tt.data, nil); err == nil {
				t.Fatalf("decoded %v", n)
			} else if !errors.Is(err, node.ErrUnmarshall) {
				t.Fatalf("error %v does not wrap ErrUnmarshall", err)
			}
		})
	}
}

func TestCopyDepth(t *testing.T) {
	inner := ast.NewMethodCall(id("a"), "foo")
	original := ast.NewList(inner)

	shallow := original.Copy(node.Shallow).(*ast.List)
	if shallow == original || shallow.Items[0] != inner {
		t.Fatal("shallow copy must share children")
	}
	deep := original.Copy(node.Deep).(*ast.List)
	if deep.Items[0] == inner {
		t.Fatal("deep copy must duplicate children")
	}
	if !node.Equals(original, deep) {
		t.Fatalf("deep copy differs: %s vs %s", original, deep)
	}

	inner.Name = "bar"
	if node.Equals(original, deep) {
		t.Fatal("mutating the original changed the deep copy")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		n    node.Node
		want string
	}{
		{ast.NewFlatArithmetic(ast.OpAdd, num("1"), id("a")), "(1 + a)"},
		{ast.NewMethodCall(id("a"), "at:put:", num("1"), num("2")), "[a at: 1 put: 2]"},
		{ast.NewMethodCall(nil, "foo"), "[self foo]"},
		{ast.NewMethodHeader("at:put:", []string{"_i", "_v"}, 0), "at: _i put: _v"},
		{ast.NewIdentifier("x", scope.Instance), "@x"},
		{ast.NewIdentifier("x", scope.Meta), "@@x"},
		{ast.NewAssignment(id("x"), num("5"), scope.Global|scope.Constant), "global const x = 5"},
		{ast.NewNotEqualCall(ast.NewMethodCall(id("a"), "#operator(==):", id("b"))), "a != b"},
		{ast.NewIn(id("x"), []node.Node{num("1"), num("2")}), "x in [1, 2]"},
		{ast.NewImport([]string{"org", "taffy"}, true), "import org.taffy.*"},
		{ast.NewReturn(nil), "return"},
		{ast.NewSymbol("foo"), "#foo"},
		{&ast.True{}, "yes"},
	}
	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSplitSelector(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"at:put:", []string{"at:", "put:"}},
		{"put:", []string{"put:"}},
		{"asString", []string{"asString"}},
		{"#operator(+):", []string{"#operator(+):"}},
	}
	for _, tt := range tests {
		got := ast.SplitSelector(tt.in)
		if len(got) != len(tt.want) {
			t.Fatalf("SplitSelector(%q) = %v", tt.in, got)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("SplitSelector(%q) = %v", tt.in, got)
			}
		}
	}
}

func TestFold(t *testing.T) {
	concat := func(l, r node.Node) (node.Node, error) {
		return node.NewString("(" + l.String() + " " + r.String() + ")"), nil
	}
	values := []node.Node{node.NewString("a"), node.NewString("b"), node.NewString("c")}

	left, err := ast.Fold(ast.NewFlatArithmetic(ast.OpSubtract, values...), nil, concat)
	if err != nil || left.String() != "((a b) c)" {
		t.Fatalf("left fold = %v, %v", left, err)
	}
	right, err := ast.Fold(ast.NewFlatArithmetic(ast.OpRaise, values...), nil, concat)
	if err != nil || right.String() != "(a (b c))" {
		t.Fatalf("right fold = %v, %v", right, err)
	}

	boom := errors.New("boom")
	_, err = ast.Fold(ast.NewFlatArithmetic(ast.OpAdd, values...),
		func(n node.Node) (node.Node, error) { return nil, boom }, concat)
	if !errors.Is(err, boom) {
		t.Fatalf("eval error = %v", err)
	}
}

func TestFlattenAndConstant(t *testing.T) {
	grouped := ast.NewFlatArithmetic(ast.OpAdd, num("3"), num("4"))
	grouped.Grouped = true
	f := ast.NewFlatArithmetic(ast.OpAdd, ast.NewFlatArithmetic(ast.OpAdd, num("1"), num("2")), grouped)
	ast.Flatten(f)
	if len(f.Values) != 3 {
		t.Fatalf("flattened to %d values: %s", len(f.Values), f)
	}
	if !ast.Constant(f) {
		t.Fatal("literal chain must be constant")
	}

	sub := ast.NewFlatArithmetic(ast.OpSubtract, ast.NewFlatArithmetic(ast.OpSubtract, num("1"), num("2")), num("3"))
	if ast.Flatten(sub); len(sub.Values) != 2 {
		t.Fatal("subtraction chains must not be merged")
	}

	withName := ast.NewFlatArithmetic(ast.OpMultiply, num("2"), id("x"))
	if ast.Constant(withName) {
		t.Fatal("chain with an identifier is not constant")
	}
	var names []string
	ast.Identifiers(ast.NewMethodCall(withName, "foo:", id("y")), func(n string) { names = append(names, n) })
	if len(names) != 2 || names[0] != "x" || names[1] != "y" {
		t.Fatalf("identifiers = %v", names)
	}
}

func FuzzUnmarshall(f *testing.F) {
	for _, n := range samples() {
		f.Add(node.Marshall(n))
	}
	for k := ast.GraphKind(0); k <= ast.GraphLast; k++ {
		f.Add([]byte{byte(node.KindGraphData), byte(k), 0, 1, 7, 7, 7})
	}
	f.Fuzz(func(t *testing.T, data []byte) {
		n, err := node.Unmarshall(data, nil)
		if err == nil && n != nil {
			if _, err := node.Unmarshall(node.Marshall(n), nil); err != nil {
				t.Fatalf("re-unmarshall of %s: %v", n, err)
			}
		}
	})
}
