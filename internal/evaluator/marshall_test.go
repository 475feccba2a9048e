package evaluator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/funvibe/taffy/internal/node"
	"github.com/funvibe/taffy/internal/store"
)

// evalValue evaluates src and returns its result object.
func evalValue(t *testing.T, rt *Runtime, src string) *Object {
	t.Helper()
	o, err := rt.EvalString(context.Background(), src, "value.ty")
	if err != nil {
		t.Fatalf("eval %q: %v", src, err)
	}
	return o
}

func TestMarshallObjects(t *testing.T) {
	sources := []string{
		"42",
		"1 / 3",
		"\"text\"",
		"[1, \"two\", [3]]",
		"(1 => 2, \"a\" => [3])",
		"||1, 2; 3, 4||",
		counterClass + "c = new Counter\n[c add]",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			rt, _ := newTestRuntime(t)
			o := evalValue(t, rt, src)
			decoded, err := rt.Unmarshall(Marshall(o))
			if err != nil {
				t.Fatalf("Unmarshall: %v", err)
			}
			if decoded.template != o.template {
				t.Fatalf("class %s, want %s", decoded.template.FullName(), o.template.FullName())
			}
			if !node.Equals(o, decoded) {
				t.Errorf("decoded %s, want %s", decoded, o)
			}
		})
	}
}

func TestMarshallFuture(t *testing.T) {
	rt, _ := newTestRuntime(t)

	done := rt.Template(futureFQ).instantiate()
	done.aux.(*futureData).set(rt.NewNumberInt(42), nil)
	decoded, err := rt.Unmarshall(Marshall(done))
	if err != nil {
		t.Fatalf("Unmarshall: %v", err)
	}
	f, ok := auxOf[*futureData](decoded)
	if !ok || !f.ready() {
		t.Fatal("decoded finished future is pending")
	}
	if v, err := f.wait(); err != nil || v.String() != "42" {
		t.Errorf("value = %v, %v", v, err)
	}

	pending := rt.Template(futureFQ).instantiate()
	decoded, err = rt.Unmarshall(Marshall(pending))
	if err != nil {
		t.Fatalf("Unmarshall: %v", err)
	}
	if f, ok := auxOf[*futureData](decoded); !ok || f.ready() {
		t.Error("decoded pending future has a value")
	}
}

// A value class decoded with the wrong aux is rejected instead of
// failing later, e.g. when used as a hash key.
func TestUnmarshallRejectsBadAux(t *testing.T) {
	tests := []struct {
		name  string
		build func(rt *Runtime) *Object
	}{
		{"number without aux", func(rt *Runtime) *Object {
			o := rt.NewNumberInt(1)
			o.aux = nil
			return o
		}},
		{"number with a string", func(rt *Runtime) *Object {
			o := rt.NewNumberInt(1)
			o.aux = node.NewString("1")
			return o
		}},
		{"string without aux", func(rt *Runtime) *Object {
			o := rt.NewString("x")
			o.aux = nil
			return o
		}},
		{"initialized string with parts", func(rt *Runtime) *Object {
			o := rt.NewString("x")
			o.aux = node.NewList(node.NewString("x"))
			return o
		}},
		{"array literal with a string", func(rt *Runtime) *Object {
			o := rt.NewArray()
			o.aux = node.NewString("x")
			o.uninitialized = true
			return o
		}},
		{"hash with a list", func(rt *Runtime) *Object {
			o := rt.NewHash()
			o.aux = node.NewList()
			return o
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newTestRuntime(t)
			_, err := rt.Unmarshall(Marshall(tt.build(rt)))
			if !errors.Is(err, node.ErrUnmarshall) {
				t.Fatalf("error = %v, want ErrUnmarshall", err)
			}
		})
	}
}

func TestDecodedValuesHash(t *testing.T) {
	rt, _ := newTestRuntime(t)
	for _, o := range []*Object{rt.NewNumberInt(3), rt.NewString("k"), rt.NewComplex(big.NewRat(1, 2), big.NewRat(1, 1))} {
		decoded, err := rt.Unmarshall(Marshall(o))
		if err != nil {
			t.Fatal(err)
		}
		h := node.NewHash()
		h.Set(decoded, decoded)
		if _, ok := h.Get(o); !ok {
			t.Errorf("%s does not hash like its original", o)
		}
	}
}

func TestMarshallSymbolsAreInterned(t *testing.T) {
	rt, _ := newTestRuntime(t)
	sym := rt.Symbol("taffy")
	decoded, err := rt.Unmarshall(Marshall(sym))
	if err != nil {
		t.Fatal(err)
	}
	if decoded != sym {
		t.Error("decoded symbol is a different object")
	}
}

func TestMarshallBlock(t *testing.T) {
	rt, out := newTestRuntime(t)
	block := evalValue(t, rt, "n = 2\nb = ^{ <a> a * n }")
	decoded, err := rt.Unmarshall(Marshall(block))
	if err != nil {
		t.Fatal(err)
	}
	ev := rt.NewEvaluator(context.Background())
	defer ev.Close()
	result, err := ev.Call(decoded, "value:", rt.NewNumberInt(21))
	if err != nil {
		t.Fatal(err)
	}
	if got := result.String(); got != "42" {
		t.Errorf("value: = %s", got)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMarshallThroughLanguage(t *testing.T) {
	got, err := run(t, "a = [1, 2]\ns = [a marshall]\nb = [Array unmarshall: s]\nio putLine: b\nc = [kernel unmarshall: [kernel marshall: #x]]\nio putLine: c")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != "[1, 2]\n#x\n" {
		t.Errorf("output = %q", got)
	}
}

func TestUnmarshallRejectsGarbage(t *testing.T) {
	rt, _ := newTestRuntime(t)
	inputs := [][]byte{
		nil,
		{0xff},
		{byte(node.KindClass)},
		append(Marshall(rt.NewString("x")), 0),
	}
	for _, in := range inputs {
		if _, err := rt.Unmarshall(in); !errors.Is(err, node.ErrUnmarshall) {
			t.Errorf("Unmarshall(%x) = %v, want ErrUnmarshall", in, err)
		}
	}
}

func TestStoreClass(t *testing.T) {
	src := `
s = [Store openPath: ":memory:"]
[s put: "list" value: [1, "two"]]
[s put: #answer value: 42]
io putLine: [s get: "list"]
io putLine: [s get: "answer"]
io putLine: [s get: "missing"]
io putLine: [s keys]
io putLine: [s remove: "list"]
io putLine: [s contains: "list"]
`
	got, err := run(t, src)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	want := "[1, two]\n42\nnil\n[answer, list]\nyes\nno\n"
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestGlobalsPersistAcrossRuntimes(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.MemoryPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	first, _ := newTestRuntime(t)
	evalValue(t, first, "a = [1, 2]\ngreeting = \"hello\"")
	if err := first.SaveGlobals(ctx, db); err != nil {
		t.Fatalf("SaveGlobals: %v", err)
	}

	second, out := newTestRuntime(t)
	if err := second.LoadGlobals(ctx, db); err != nil {
		t.Fatalf("LoadGlobals: %v", err)
	}
	evalValue(t, second, "io putLine: greeting\nio putLine: [a size]")
	if got := out.String(); got != "hello\n2\n" {
		t.Errorf("output = %q", got)
	}
}

func FuzzUnmarshall(f *testing.F) {
	rt, err := New(Options{})
	if err != nil {
		f.Fatal(err)
	}
	defer rt.Close()
	f.Add(Marshall(rt.NewNumberInt(7)))
	f.Add(Marshall(rt.NewString("seed")))
	f.Add(Marshall(rt.NewArray(rt.NewNumberInt(1), rt.Symbol("s"))))
	f.Add(Marshall(rt.nilObject))
	f.Fuzz(func(t *testing.T, data []byte) {
		o, err := rt.Unmarshall(data)
		if err != nil {
			return
		}
		if o == nil {
			t.Fatal("nil object without error")
		}
		_ = node.HashKey(o)
	})
}
